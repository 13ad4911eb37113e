package batch

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Ledger tracks which URLs have already been crawled or have already failed,
// so a re-run in resume mode can skip them.
type Ledger interface {
	Seen(ctx context.Context, url string) (bool, error)
	MarkCrawled(ctx context.Context, url string) error
	MarkFailed(ctx context.Context, url string, statusCode int) error
	Close() error
}

const (
	crawledURLsFile = "crawled-urls.txt"
	failedURLsFile  = "failed-urls.txt"
)

// FileLedger is the default ledger: two append-only text files in the output
// directory. crawled-urls.txt holds one URL per line; failed-urls.txt holds
// "url,status" lines.
type FileLedger struct {
	seen    map[string]struct{}
	crawled *os.File
	failed  *os.File
}

// OpenFileLedger loads (creating if absent) the ledger files under dir.
func OpenFileLedger(dir string) (*FileLedger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	ledger := &FileLedger{seen: make(map[string]struct{})}

	crawledPath := filepath.Join(dir, crawledURLsFile)
	if err := loadLedgerFile(crawledPath, func(line string) {
		ledger.seen[line] = struct{}{}
	}); err != nil {
		return nil, err
	}

	failedPath := filepath.Join(dir, failedURLsFile)
	if err := loadLedgerFile(failedPath, func(line string) {
		// Failed lines are "url,status"; only the URL matters for skipping.
		url, _, _ := strings.Cut(line, ",")
		ledger.seen[url] = struct{}{}
	}); err != nil {
		return nil, err
	}

	var err error
	ledger.crawled, err = os.OpenFile(crawledPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s for append: %w", crawledPath, err)
	}

	ledger.failed, err = os.OpenFile(failedPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		ledger.crawled.Close()
		return nil, fmt.Errorf("failed to open %s for append: %w", failedPath, err)
	}

	return ledger, nil
}

func loadLedgerFile(path string, record func(line string)) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open ledger file %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		record(line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read ledger file %s: %w", path, err)
	}

	return nil
}

// Seen reports whether url was crawled or failed in a previous run (or
// earlier in this one).
func (l *FileLedger) Seen(_ context.Context, url string) (bool, error) {
	_, ok := l.seen[url]
	return ok, nil
}

// MarkCrawled appends url to the crawled file.
func (l *FileLedger) MarkCrawled(_ context.Context, url string) error {
	if _, err := fmt.Fprintf(l.crawled, "%s\n", url); err != nil {
		return fmt.Errorf("failed to record crawled URL %s: %w", url, err)
	}
	l.seen[url] = struct{}{}
	return nil
}

// MarkFailed appends url and the status it failed with to the failed file.
func (l *FileLedger) MarkFailed(_ context.Context, url string, statusCode int) error {
	if _, err := fmt.Fprintf(l.failed, "%s,%d\n", url, statusCode); err != nil {
		return fmt.Errorf("failed to record failed URL %s: %w", url, err)
	}
	l.seen[url] = struct{}{}
	return nil
}

// Close closes both ledger files.
func (l *FileLedger) Close() error {
	crawledErr := l.crawled.Close()
	failedErr := l.failed.Close()
	if crawledErr != nil {
		return crawledErr
	}
	return failedErr
}

package batch

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LineSource yields the URLs of an input file one at a time: lines are
// trimmed, blank lines are skipped, and order is preserved. It is a single
// forward pass over the file, not restartable.
type LineSource struct {
	file    *os.File
	scanner *bufio.Scanner
}

// OpenLineSource opens the input file. A missing or unreadable file is an
// error here, before any URL is yielded.
func OpenLineSource(path string) (*LineSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file %s: %w", path, err)
	}

	return &LineSource{
		file:    file,
		scanner: bufio.NewScanner(file),
	}, nil
}

// Next returns the next non-blank trimmed line. ok is false once the file is
// exhausted or a read error occurred; check Err after the loop.
func (s *LineSource) Next() (url string, ok bool) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		return line, true
	}
	return "", false
}

// Err reports a read error encountered during scanning, if any.
func (s *LineSource) Err() error {
	if err := s.scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input file %s: %w", s.file.Name(), err)
	}
	return nil
}

// Close closes the underlying file.
func (s *LineSource) Close() error {
	return s.file.Close()
}

package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"lambda-url-crawler/internal/models"
)

// ResultSink stores the result of a successful crawl and returns where it
// was stored.
type ResultSink interface {
	Save(ctx context.Context, url string, result *models.CrawlResult) (string, error)
}

// DirSink writes one JSON file per crawled URL into a local directory.
type DirSink struct {
	dir string
}

// NewDirSink creates the directory if needed and returns a sink writing
// into it.
func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results directory %s: %w", dir, err)
	}
	return &DirSink{dir: dir}, nil
}

// Save writes the result for url to its file and returns the file path.
func (d *DirSink) Save(_ context.Context, url string, result *models.CrawlResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal crawl result: %w", err)
	}

	path := filepath.Join(d.dir, models.ResultFileName(url))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write result for %s: %w", url, err)
	}

	return path, nil
}

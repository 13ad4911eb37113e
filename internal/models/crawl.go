package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CrawlRequest is the invocation payload sent to the crawl function. It is
// the same shape used when invoking the function directly, e.g.
// {"url": "https://example.com"}.
type CrawlRequest struct {
	URL string `json:"url"`
}

// CrawlResult is the crawl function's return payload. StatusCode carries the
// HTTP status of the fetch; the remaining fields come from the extraction
// step and are only present on success.
type CrawlResult struct {
	StatusCode int    `json:"status_code"`
	RootTag    string `json:"root_tag,omitempty"`
	Title      string `json:"title,omitempty"`
}

// OK reports whether the crawl fetched the page successfully.
func (r *CrawlResult) OK() bool {
	return r.StatusCode == 200
}

// URLResult records the outcome of one invocation in a batch run.
type URLResult struct {
	URL        string        `json:"url"`
	StatusCode int           `json:"status_code,omitempty"`
	Location   string        `json:"location,omitempty"` // where the result was stored
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// BatchSummary aggregates a complete batch run.
type BatchSummary struct {
	RunID       string      `json:"run_id"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt time.Time   `json:"completed_at"`
	Invoked     int         `json:"invoked"`
	Succeeded   int         `json:"succeeded"`
	Failed      int         `json:"failed"`
	Skipped     int         `json:"skipped"`
	Resets      int         `json:"resets"`
	Results     []URLResult `json:"results"`
}

// NewRunID creates a unique ID for a batch run.
func NewRunID() string {
	return "run_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// ResultFileName returns the file name a crawl result is stored under: the
// URL's last path segment (trailing slashes trimmed) plus ".json". URLs
// without a usable segment get a stable hash-derived name instead.
func ResultFileName(url string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(url), "/")
	segment := trimmed[strings.LastIndex(trimmed, "/")+1:]

	if segment == "" || strings.Contains(segment, ":") {
		hash := sha256.Sum256([]byte(url))
		return hex.EncodeToString(hash[:])[:8] + ".json"
	}

	// Strip characters that don't belong in a file name.
	segment = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		}
		return '-'
	}, segment)

	return fmt.Sprintf("%s.json", segment)
}

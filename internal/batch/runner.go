// Package batch drives the crawl: it reads a URL file and invokes the
// deployed crawl function once per line, sequentially, recording each
// outcome.
package batch

import (
	"context"
	"net/http"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/rs/zerolog"

	"lambda-url-crawler/internal/models"
)

// Invoker is the remote crawl function as seen by the runner.
type Invoker interface {
	// Invoke crawls one URL and returns the function's result.
	Invoke(ctx context.Context, url string) (*models.CrawlResult, error)
	// Reset forces the function to cold start on its next invocation.
	Reset(ctx context.Context) error
}

// ResetPolicy controls when the runner resets the crawl function to rotate
// its source IP.
type ResetPolicy struct {
	// MaxRequests resets after this many completed invocations per session.
	MaxRequests int
	// MaxForbidden resets after this many 403 responses per session.
	MaxForbidden int
	// Cooldown is how long to wait after a reset before invoking again.
	Cooldown time.Duration
}

// DefaultResetPolicy matches the thresholds the crawl function tolerates in
// practice.
func DefaultResetPolicy() ResetPolicy {
	return ResetPolicy{
		MaxRequests:  1000,
		MaxForbidden: 10,
		Cooldown:     60 * time.Second,
	}
}

// RunnerConfig assembles a Runner.
type RunnerConfig struct {
	Invoker  Invoker
	Sink     ResultSink
	Ledger   Ledger // nil disables resume
	Policy   ResetPolicy
	Logger   zerolog.Logger
	Progress bool
}

// Runner executes one batch: a strictly sequential pass over the input, one
// invocation at a time. A failed invocation is logged and the run moves on;
// no outcome depends on another line's.
type Runner struct {
	invoker  Invoker
	sink     ResultSink
	ledger   Ledger
	policy   ResetPolicy
	logger   zerolog.Logger
	progress bool
	sleep    func(time.Duration)
}

// NewRunner builds a runner, filling unset policy fields with defaults.
func NewRunner(cfg RunnerConfig) *Runner {
	policy := cfg.Policy
	defaults := DefaultResetPolicy()
	if policy.MaxRequests <= 0 {
		policy.MaxRequests = defaults.MaxRequests
	}
	if policy.MaxForbidden <= 0 {
		policy.MaxForbidden = defaults.MaxForbidden
	}
	if policy.Cooldown <= 0 {
		policy.Cooldown = defaults.Cooldown
	}

	return &Runner{
		invoker:  cfg.Invoker,
		sink:     cfg.Sink,
		ledger:   cfg.Ledger,
		policy:   policy,
		logger:   cfg.Logger,
		progress: cfg.Progress,
		sleep:    time.Sleep,
	}
}

// Run drains src, invoking the crawl function for each URL in input order.
// It returns the summary of the run together with any input read error;
// per-URL failures live in the summary, not in the returned error.
func (r *Runner) Run(ctx context.Context, src *LineSource) (*models.BatchSummary, error) {
	summary := &models.BatchSummary{
		RunID:     models.NewRunID(),
		StartedAt: time.Now(),
	}

	r.logger.Info().Str("run_id", summary.RunID).Msg("Starting crawl batch")

	var bar *pb.ProgressBar
	if r.progress {
		bar = pb.New(0).Start()
		defer bar.Finish()
	}

	requests := 0
	forbidden := 0

	for url, ok := src.Next(); ok; url, ok = src.Next() {
		if err := ctx.Err(); err != nil {
			summary.CompletedAt = time.Now()
			return summary, err
		}

		if bar != nil {
			bar.Increment()
		}

		if r.skipSeen(ctx, url) {
			summary.Skipped++
			continue
		}

		result := r.crawlOne(ctx, url, summary)
		if result == nil || result.StatusCode == http.StatusForbidden {
			if result != nil {
				forbidden++
				if forbidden >= r.policy.MaxForbidden {
					r.logger.Debug().Int("forbidden", forbidden).Msg("Too many forbidden responses in this session")
					r.reset(ctx, summary)
					requests, forbidden = 0, 0
				}
			}
			continue
		}

		requests++
		if requests >= r.policy.MaxRequests {
			r.logger.Debug().Int("requests", requests).Msg("Request budget for this session exhausted")
			r.reset(ctx, summary)
			requests, forbidden = 0, 0
		}
	}

	summary.CompletedAt = time.Now()

	if err := src.Err(); err != nil {
		return summary, err
	}

	r.logger.Info().
		Str("run_id", summary.RunID).
		Int("invoked", summary.Invoked).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Dur("duration", summary.CompletedAt.Sub(summary.StartedAt)).
		Msg("Crawl batch finished")

	return summary, nil
}

// skipSeen reports whether resume mode already has an outcome for url. A
// ledger read error is logged and treated as unseen.
func (r *Runner) skipSeen(ctx context.Context, url string) bool {
	if r.ledger == nil {
		return false
	}

	seen, err := r.ledger.Seen(ctx, url)
	if err != nil {
		r.logger.Warn().Err(err).Str("url", url).Msg("Failed to read ledger, crawling anyway")
		return false
	}
	if seen {
		r.logger.Debug().Str("url", url).Msg("Skipping previously processed URL")
	}
	return seen
}

// crawlOne performs a single invocation and records its outcome. It returns
// the function's result, or nil when the invocation itself failed.
func (r *Runner) crawlOne(ctx context.Context, url string, summary *models.BatchSummary) *models.CrawlResult {
	start := time.Now()
	record := models.URLResult{URL: url}

	result, err := r.invoker.Invoke(ctx, url)
	summary.Invoked++
	record.Duration = time.Since(start)

	if err != nil {
		record.Error = err.Error()
		summary.Failed++
		summary.Results = append(summary.Results, record)
		r.logger.Error().Err(err).Str("url", url).Msg("Invocation failed")
		return nil
	}

	record.StatusCode = result.StatusCode

	switch {
	case result.StatusCode == http.StatusForbidden:
		// Likely a block rather than a property of the page; never
		// recorded in the failed ledger.
		summary.Failed++
		r.logger.Debug().Str("url", url).Msg("Request was forbidden")

	case !result.OK():
		summary.Failed++
		r.logger.Debug().Str("url", url).Int("status_code", result.StatusCode).Msg("Crawl failed")
		if r.ledger != nil {
			if err := r.ledger.MarkFailed(ctx, url, result.StatusCode); err != nil {
				r.logger.Warn().Err(err).Str("url", url).Msg("Failed to record failed URL")
			}
		}

	default:
		location, err := r.sink.Save(ctx, url, result)
		if err != nil {
			record.Error = err.Error()
			summary.Failed++
			summary.Results = append(summary.Results, record)
			r.logger.Error().Err(err).Str("url", url).Msg("Failed to store crawl result")
			return result
		}

		record.Location = location
		summary.Succeeded++
		r.logger.Debug().Str("url", url).Str("location", location).Msg("Crawled")
		if r.ledger != nil {
			if err := r.ledger.MarkCrawled(ctx, url); err != nil {
				r.logger.Warn().Err(err).Str("url", url).Msg("Failed to record crawled URL")
			}
		}
	}

	summary.Results = append(summary.Results, record)
	return result
}

// reset rotates the crawl function's source IP and waits out the cooldown.
func (r *Runner) reset(ctx context.Context, summary *models.BatchSummary) {
	r.logger.Info().Msg("Resetting crawl function for a fresh source IP")

	if err := r.invoker.Reset(ctx); err != nil {
		r.logger.Error().Err(err).Msg("Failed to reset crawl function")
		return
	}

	summary.Resets++
	// The configuration change takes a while to propagate.
	r.sleep(r.policy.Cooldown)
}

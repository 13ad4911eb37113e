package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lambda-url-crawler/internal/models"
)

// fakeInvoker scripts per-URL outcomes and records the invocation order.
type fakeInvoker struct {
	calls   []string
	results map[string]*models.CrawlResult
	errs    map[string]error
	resets  int
}

func (f *fakeInvoker) Invoke(_ context.Context, url string) (*models.CrawlResult, error) {
	f.calls = append(f.calls, url)
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	if result, ok := f.results[url]; ok {
		return result, nil
	}
	return &models.CrawlResult{StatusCode: 200, RootTag: "html", Title: "ok"}, nil
}

func (f *fakeInvoker) Reset(context.Context) error {
	f.resets++
	return nil
}

type memSink struct {
	saved []string
	err   error
}

func (m *memSink) Save(_ context.Context, url string, _ *models.CrawlResult) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.saved = append(m.saved, url)
	return "mem://" + models.ResultFileName(url), nil
}

func newTestRunner(cfg RunnerConfig) *Runner {
	cfg.Logger = zerolog.Nop()
	runner := NewRunner(cfg)
	runner.sleep = func(time.Duration) {}
	return runner
}

func openSource(t *testing.T, content string) *LineSource {
	t.Helper()
	src, err := OpenLineSource(writeInputFile(t, content))
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })
	return src
}

func TestRunnerInvokesEachNonBlankLineInOrder(t *testing.T) {
	invoker := &fakeInvoker{}
	sink := &memSink{}
	runner := newTestRunner(RunnerConfig{Invoker: invoker, Sink: sink})

	src := openSource(t, "https://example.com\n\n   \nhttps://example.org\n")

	summary, err := runner.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com", "https://example.org"}, invoker.calls)
	assert.Equal(t, 2, summary.Invoked)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Zero(t, summary.Failed)
	assert.Zero(t, summary.Skipped)
}

func TestRunnerInvokesDuplicateLinesAgain(t *testing.T) {
	invoker := &fakeInvoker{}
	runner := newTestRunner(RunnerConfig{Invoker: invoker, Sink: &memSink{}})

	src := openSource(t, "https://example.com\nhttps://example.com\n")

	summary, err := runner.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Len(t, invoker.calls, 2)
	assert.Equal(t, 2, summary.Invoked)
}

func TestRunnerContinuesAfterInvocationFailure(t *testing.T) {
	invoker := &fakeInvoker{
		errs: map[string]error{
			"https://b.example.com": errors.New("function error: Unhandled"),
		},
	}
	runner := newTestRunner(RunnerConfig{Invoker: invoker, Sink: &memSink{}})

	src := openSource(t, "https://a.example.com\nhttps://b.example.com\nhttps://c.example.com\n")

	summary, err := runner.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Len(t, invoker.calls, 3, "failing URL must not abort the batch")
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)

	var failed []models.URLResult
	for _, record := range summary.Results {
		if record.Error != "" {
			failed = append(failed, record)
		}
	}
	require.Len(t, failed, 1)
	assert.Equal(t, "https://b.example.com", failed[0].URL)
	assert.Contains(t, failed[0].Error, "function error")
}

func TestRunnerWritesResultFiles(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewDirSink(dir)
	require.NoError(t, err)

	invoker := &fakeInvoker{
		results: map[string]*models.CrawlResult{
			"https://example.com/widget": {StatusCode: 200, RootTag: "html", Title: "Widget"},
		},
	}
	runner := newTestRunner(RunnerConfig{Invoker: invoker, Sink: sink})

	src := openSource(t, "https://example.com/widget\n")

	summary, err := runner.Run(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Succeeded)

	data, err := os.ReadFile(filepath.Join(dir, "widget.json"))
	require.NoError(t, err)

	var result models.CrawlResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, 200, result.StatusCode)
	assert.Equal(t, "Widget", result.Title)
}

func TestRunnerSinkFailureCountsAsFailed(t *testing.T) {
	invoker := &fakeInvoker{}
	runner := newTestRunner(RunnerConfig{Invoker: invoker, Sink: &memSink{err: errors.New("disk full")}})

	src := openSource(t, "https://example.com\n")

	summary, err := runner.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.Succeeded)
}

func TestRunnerResumeSkipsSeenURLs(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	ledger, err := OpenFileLedger(dir)
	require.NoError(t, err)
	require.NoError(t, ledger.MarkCrawled(ctx, "https://example.com"))

	invoker := &fakeInvoker{}
	runner := newTestRunner(RunnerConfig{Invoker: invoker, Sink: &memSink{}, Ledger: ledger})

	src := openSource(t, "https://example.com\nhttps://example.org\n")

	summary, err := runner.Run(ctx, src)
	require.NoError(t, err)
	require.NoError(t, ledger.Close())

	assert.Equal(t, []string{"https://example.org"}, invoker.calls)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Invoked)
}

func TestRunnerLedgerRecording(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	ledger, err := OpenFileLedger(dir)
	require.NoError(t, err)

	invoker := &fakeInvoker{
		results: map[string]*models.CrawlResult{
			"https://ok.example.com":        {StatusCode: 200},
			"https://gone.example.com":      {StatusCode: 404},
			"https://forbidden.example.com": {StatusCode: 403},
		},
	}
	runner := newTestRunner(RunnerConfig{Invoker: invoker, Sink: &memSink{}, Ledger: ledger})

	src := openSource(t, "https://ok.example.com\nhttps://gone.example.com\nhttps://forbidden.example.com\n")

	_, err = runner.Run(ctx, src)
	require.NoError(t, err)
	require.NoError(t, ledger.Close())

	crawled, err := os.ReadFile(filepath.Join(dir, "crawled-urls.txt"))
	require.NoError(t, err)
	assert.Equal(t, "https://ok.example.com\n", string(crawled))

	failed, err := os.ReadFile(filepath.Join(dir, "failed-urls.txt"))
	require.NoError(t, err)
	assert.Equal(t, "https://gone.example.com,404\n", string(failed),
		"403 responses must not be recorded as failed")
}

func TestRunnerResetsAfterForbiddenThreshold(t *testing.T) {
	results := make(map[string]*models.CrawlResult)
	var input string
	for i := 0; i < 3; i++ {
		url := fmt.Sprintf("https://blocked%d.example.com", i)
		results[url] = &models.CrawlResult{StatusCode: 403}
		input += url + "\n"
	}

	invoker := &fakeInvoker{results: results}
	runner := newTestRunner(RunnerConfig{
		Invoker: invoker,
		Sink:    &memSink{},
		Policy:  ResetPolicy{MaxForbidden: 2, MaxRequests: 1000, Cooldown: time.Millisecond},
	})

	src := openSource(t, input)

	summary, err := runner.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 1, invoker.resets, "two 403s hit the threshold, the third starts a new session")
	assert.Equal(t, 1, summary.Resets)
	assert.Equal(t, 3, summary.Failed)
}

func TestRunnerResetsAfterRequestBudget(t *testing.T) {
	invoker := &fakeInvoker{}
	runner := newTestRunner(RunnerConfig{
		Invoker: invoker,
		Sink:    &memSink{},
		Policy:  ResetPolicy{MaxRequests: 2, MaxForbidden: 10, Cooldown: time.Millisecond},
	})

	src := openSource(t, "https://a.example.com\nhttps://b.example.com\nhttps://c.example.com\n")

	summary, err := runner.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 1, invoker.resets)
	assert.Equal(t, 1, summary.Resets)
	assert.Equal(t, 3, summary.Succeeded)
}

func TestRunnerStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	invoker := &fakeInvoker{}
	runner := newTestRunner(RunnerConfig{Invoker: invoker, Sink: &memSink{}})

	src := openSource(t, "https://example.com\n")

	_, err := runner.Run(ctx, src)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, invoker.calls)
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"

	"lambda-url-crawler/internal/models"
	"lambda-url-crawler/internal/services"
)

var (
	fetcher *services.PageFetcher
	log     zerolog.Logger
)

func init() {
	fetcher = services.NewPageFetcher(30 * time.Second)
	log = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// handleRequest crawls the URL in the event. A fetch that comes back with a
// non-200 status is reported in the result's status_code, not as a handler
// error; handler errors are reserved for requests that could not complete.
func handleRequest(ctx context.Context, event models.CrawlRequest) (*models.CrawlResult, error) {
	if event.URL == "" {
		return nil, fmt.Errorf("event is missing the url field")
	}

	page, err := fetcher.Fetch(ctx, event.URL)
	if err != nil {
		log.Error().Err(err).Str("url", event.URL).Msg("Fetch failed")
		return nil, err
	}

	if page.StatusCode != http.StatusOK {
		log.Debug().Str("url", event.URL).Int("status_code", page.StatusCode).Msg("Non-200 response")
		return &models.CrawlResult{StatusCode: page.StatusCode}, nil
	}

	// services.ExtractResult holds the example extraction; adjust it (and
	// models.CrawlResult) to pull the data the deployment needs.
	result, err := services.ExtractResult(page)
	if err != nil {
		log.Error().Err(err).Str("url", event.URL).Msg("Extraction failed")
		return nil, err
	}

	log.Debug().Str("url", event.URL).Str("title", result.Title).Msg("Crawled")
	return result, nil
}

func main() {
	lambda.Start(handleRequest)
}

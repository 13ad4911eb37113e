package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"lambda-url-crawler/internal/models"
)

// S3ResultStore stores crawl results as JSON objects in an S3 bucket, as an
// alternative to the local output directory.
type S3ResultStore struct {
	client *s3.Client
	bucket string
	prefix string
	region string
}

// NewS3ResultStore creates a result store for the given bucket. Keys are
// placed under prefix ("crawled" when empty).
func NewS3ResultStore(cfg aws.Config, bucket, prefix string) (*S3ResultStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name cannot be empty")
	}
	if prefix == "" {
		prefix = "crawled"
	}

	return &S3ResultStore{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		region: cfg.Region,
	}, nil
}

// Save uploads the crawl result for url and returns the object's public URL.
func (s *S3ResultStore) Save(ctx context.Context, url string, result *models.CrawlResult) (string, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal crawl result: %w", err)
	}

	key := path.Join(s.prefix, models.ResultFileName(url))

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"source-url":  url,
			"upload-time": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload result for %s: %w", url, err)
	}

	return s.PublicURL(key), nil
}

// PublicURL generates the public URL for an object key.
func (s *S3ResultStore) PublicURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

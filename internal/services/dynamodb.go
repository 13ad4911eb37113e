package services

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoLedger tracks crawled and failed URLs in a DynamoDB table keyed by
// URL. It backs the batch driver's resume mode for deployments that run the
// driver from more than one machine.
type DynamoLedger struct {
	client *dynamodb.Client
	table  string
}

// ledgerItem is one ledger entry. Status is "crawled" or "failed".
type ledgerItem struct {
	URL        string    `dynamodbav:"url"`
	Status     string    `dynamodbav:"status"`
	StatusCode int       `dynamodbav:"status_code,omitempty"`
	RecordedAt time.Time `dynamodbav:"recorded_at"`
}

const (
	ledgerStatusCrawled = "crawled"
	ledgerStatusFailed  = "failed"
)

// NewDynamoLedger creates a ledger backed by the named table.
func NewDynamoLedger(cfg aws.Config, table string) (*DynamoLedger, error) {
	if table == "" {
		return nil, fmt.Errorf("ledger table cannot be empty")
	}

	return &DynamoLedger{
		client: dynamodb.NewFromConfig(cfg),
		table:  table,
	}, nil
}

// Seen reports whether url already has a ledger entry.
func (l *DynamoLedger) Seen(ctx context.Context, url string) (bool, error) {
	result, err := l.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(l.table),
		Key: map[string]types.AttributeValue{
			"url": &types.AttributeValueMemberS{Value: url},
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to read ledger entry for %s: %w", url, err)
	}

	return result.Item != nil, nil
}

// MarkCrawled records a successful crawl of url.
func (l *DynamoLedger) MarkCrawled(ctx context.Context, url string) error {
	return l.put(ctx, ledgerItem{
		URL:        url,
		Status:     ledgerStatusCrawled,
		RecordedAt: time.Now().UTC(),
	})
}

// MarkFailed records a failed crawl of url with the HTTP status it failed
// with.
func (l *DynamoLedger) MarkFailed(ctx context.Context, url string, statusCode int) error {
	return l.put(ctx, ledgerItem{
		URL:        url,
		Status:     ledgerStatusFailed,
		StatusCode: statusCode,
		RecordedAt: time.Now().UTC(),
	})
}

func (l *DynamoLedger) put(ctx context.Context, entry ledgerItem) error {
	item, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry: %w", err)
	}

	_, err = l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(l.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to write ledger entry for %s: %w", entry.URL, err)
	}

	return nil
}

// Close satisfies the ledger interface; the DynamoDB client holds no local
// state to flush.
func (l *DynamoLedger) Close() error { return nil }

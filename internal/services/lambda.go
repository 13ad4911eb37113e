package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"

	"lambda-url-crawler/internal/models"
)

// FunctionInvoker invokes the deployed crawl function once per URL.
type FunctionInvoker struct {
	client       *lambda.Client
	functionName string
}

// InvokerConfig holds the deployment identity of the crawl function.
type InvokerConfig struct {
	FunctionName string
	Profile      string // AWS profile to use, empty for the default chain
	Region       string // overrides the region from the shared config
}

// LoadAWSConfig loads the SDK configuration with optional profile and region
// overrides.
func LoadAWSConfig(ctx context.Context, profile, region string) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

// NewFunctionInvoker creates an invoker for the named crawl function.
func NewFunctionInvoker(cfg aws.Config, functionName string) (*FunctionInvoker, error) {
	if functionName == "" {
		return nil, fmt.Errorf("function name cannot be empty")
	}

	return &FunctionInvoker{
		client:       lambda.NewFromConfig(cfg),
		functionName: functionName,
	}, nil
}

// Invoke sends one synchronous crawl invocation for url and decodes the
// function's return payload.
func (fi *FunctionInvoker) Invoke(ctx context.Context, url string) (*models.CrawlResult, error) {
	payload, err := json.Marshal(models.CrawlRequest{URL: url})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal crawl request: %w", err)
	}

	output, err := fi.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName: aws.String(fi.functionName),
		Payload:      payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke %s: %w", fi.functionName, err)
	}

	if output.FunctionError != nil {
		return nil, fmt.Errorf("function error from %s: %s: %s",
			fi.functionName, aws.ToString(output.FunctionError), output.Payload)
	}

	var result models.CrawlResult
	if err := json.Unmarshal(output.Payload, &result); err != nil {
		return nil, fmt.Errorf("bad return payload %q: %w", output.Payload, err)
	}

	// A payload without a status code means the handler returned something
	// other than a crawl result.
	if result.StatusCode == 0 {
		return nil, fmt.Errorf("bad return payload %q: missing status_code", output.Payload)
	}

	return &result, nil
}

// Reset updates the function configuration with a fresh description. The
// configuration change forces the next invocation to cold start, which
// assigns the function a new source IP.
func (fi *FunctionInvoker) Reset(ctx context.Context) error {
	_, err := fi.client.UpdateFunctionConfiguration(ctx, &lambda.UpdateFunctionConfigurationInput{
		FunctionName: aws.String(fi.functionName),
		Description:  aws.String(fmt.Sprintf("crawler-%d", time.Now().Unix())),
	})
	if err != nil {
		return fmt.Errorf("failed to reset %s: %w", fi.functionName, err)
	}
	return nil
}

// Package storage holds the AWS plumbing shared by the binaries and the
// S3 archive written before a campaign is deleted.
package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// AWSOptions selects the region and credentials for SDK clients.
type AWSOptions struct {
	Region    string
	AccessKey string
	SecretKey string
	// Endpoint overrides every service endpoint, e.g. for LocalStack.
	// AWS_ENDPOINT is used when empty.
	Endpoint string
}

// LoadAWSConfig loads SDK configuration. Static keys are used when both
// are set; otherwise the default credential chain applies (IAM role on ECS).
func LoadAWSConfig(ctx context.Context, opts AWSOptions) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("AWS_ENDPOINT")
	}
	if endpoint != "" {
		loaders = append(loaders, config.WithBaseEndpoint(endpoint))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}

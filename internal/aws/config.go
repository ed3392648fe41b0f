package aws

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

const (
	DefaultRegion = "us-east-1"
	// conditional-write conflicts surface as errors, not retries; this only
	// covers throttling and transient 5xx.
	maxAttempts = 5
)

// Settings selects the region and an optional endpoint override. Endpoint
// points every client at a local emulator such as localstack.
type Settings struct {
	Region   string
	Endpoint string
}

// LoadAWSConfig resolves credentials through the default chain and applies s.
func LoadAWSConfig(ctx context.Context, s Settings) (sdkaws.Config, error) {
	if s.Region == "" {
		s.Region = DefaultRegion
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(s.Region),
		config.WithRetryMaxAttempts(maxAttempts),
		config.WithRetryMode(sdkaws.RetryModeStandard),
	)
	if err != nil {
		return cfg, fmt.Errorf("load aws config for %s: %w", s.Region, err)
	}
	if s.Endpoint != "" {
		cfg.BaseEndpoint = sdkaws.String(s.Endpoint)
	}
	return cfg, nil
}

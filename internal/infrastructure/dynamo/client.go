package dynamo

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/coach-onboarding/internal/config"
)

// NewClient creates the DynamoDB client backing both onboarding tables.
func NewClient(cfg *config.Config) (*dynamodb.Client, error) {
	awsCfg, err := cfg.AWS(context.Background(), cfg.AWSRegion)
	if err != nil {
		return nil, err
	}
	return dynamodb.NewFromConfig(awsCfg, localEndpoint(cfg.AWSEndpointURL)), nil
}

// localEndpoint points the client at LocalStack when an endpoint is set.
func localEndpoint(url string) func(*dynamodb.Options) {
	return func(o *dynamodb.Options) {
		if url != "" {
			o.BaseEndpoint = aws.String(url)
		}
	}
}

package providers

import (
	"context"
	"fmt"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/dkershaw/converge/internal/model"
)

// New builds a model.Client for the named provider. Credentials come from
// the environment: the AWS default chain for bedrock, ANTHROPIC_API_KEY for
// anthropic.
func New(ctx context.Context, provider, region string) (model.Client, error) {
	switch provider {
	case "", "bedrock":
		opts := []func(*awsconfig.LoadOptions) error{}
		if region != "" {
			opts = append(opts, awsconfig.WithRegion(region))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return NewBedrockClient(bedrockruntime.NewFromConfig(cfg))

	case "anthropic":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		return NewAnthropicClient(apiKey)

	default:
		return nil, fmt.Errorf("unknown provider %q (supported: bedrock, anthropic)", provider)
	}
}

package upstream

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/rs/zerolog/log"
)

const (
	bedrockService     = "bedrock"
	bedrockHostPattern = "bedrock-runtime.%s.amazonaws.com"
)

// BedrockSigner signs requests to the Bedrock Runtime API with AWS SigV4.
// Credentials come from the standard AWS chain (environment, shared config,
// IAM roles) via aws-sdk-go-v2/config.
type BedrockSigner struct {
	region string
	signer *v4.Signer

	// The credential chain resolves lazily on first SignRequest: chain
	// resolution can hit the network (EC2 IMDS), which must not happen at
	// registry construction when Bedrock is unconfigured.
	credsOnce   sync.Once
	credentials aws.CredentialsProvider
}

// NewBedrockSigner builds a signer for the region from AWS_REGION /
// AWS_DEFAULT_REGION, defaulting to us-east-1. Construction never touches
// the credential chain; missing credentials surface on SignRequest.
func NewBedrockSigner() *BedrockSigner {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = os.Getenv("AWS_DEFAULT_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}

	return &BedrockSigner{
		region: region,
		signer: v4.NewSigner(),
	}
}

// Region returns the configured AWS region.
func (bs *BedrockSigner) Region() string { return bs.region }

// BaseURL returns the Bedrock Runtime endpoint root for the region.
func (bs *BedrockSigner) BaseURL() string {
	return "https://" + fmt.Sprintf(bedrockHostPattern, bs.region)
}

func (bs *BedrockSigner) loadCredentials(ctx context.Context) aws.CredentialsProvider {
	bs.credsOnce.Do(func() {
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(bs.region))
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load AWS config for Bedrock signer")
			return
		}
		bs.credentials = cfg.Credentials
		log.Info().Str("region", bs.region).Msg("Bedrock signer initialized")
	})
	return bs.credentials
}

// SignRequest signs req with SigV4 for the bedrock-runtime service. The
// request URL must already point at the Bedrock endpoint.
func (bs *BedrockSigner) SignRequest(ctx context.Context, req *http.Request, body []byte) error {
	provider := bs.loadCredentials(ctx)
	if provider == nil {
		return fmt.Errorf("bedrock signer not configured: no AWS credentials available")
	}

	creds, err := provider.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve AWS credentials: %w", err)
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return fmt.Errorf("bedrock signer not configured: no AWS credentials available")
	}

	payloadHash := fmt.Sprintf("%x", sha256.Sum256(body))

	if err := bs.signer.SignHTTP(ctx, creds, req, payloadHash, bedrockService, bs.region, time.Now()); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}
	return nil
}

var _ RequestSigner = (*BedrockSigner)(nil)

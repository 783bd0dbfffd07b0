package mlflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/skosovsky/promptreg"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// SageMaker request constants.
const (
	SageMakerARNHeader      = "x-mlflow-sm-tracking-server-arn"
	sageMakerSigningName    = "sagemaker-mlflow"
	sageMakerResourcePrefix = "mlflow-tracking-server/"
)

// IsSageMakerARN reports whether uri looks like a SageMaker tracking server ARN.
func IsSageMakerARN(uri string) bool {
	return strings.HasPrefix(uri, "arn:") && strings.Contains(uri, ":sagemaker:")
}

// SageMakerEndpoint parses a tracking server ARN
// (arn:aws:sagemaker:<region>:<account>:mlflow-tracking-server/<name>) and returns
// the regional endpoint and region.
func SageMakerEndpoint(trackingARN string) (endpoint, region string, err error) {
	a, err := arn.Parse(trackingARN)
	if err != nil {
		return "", "", fmt.Errorf("%w: mlflow: %w", promptreg.ErrConfiguration, err)
	}
	if a.Service != "sagemaker" || !strings.HasPrefix(a.Resource, sageMakerResourcePrefix) || a.Region == "" {
		return "", "", fmt.Errorf("%w: mlflow: %q is not a SageMaker MLflow tracking server ARN",
			promptreg.ErrConfiguration, trackingARN)
	}
	return fmt.Sprintf("https://%s.experiments.sagemaker.aws", a.Region), a.Region, nil
}

// SageMakerOption configures the AWS side of NewSageMaker.
type SageMakerOption func(*sageMakerOptions)

type sageMakerOptions struct {
	profile     string
	credentials aws.CredentialsProvider
	clientOpts  []Option
}

// WithProfile selects a shared config profile instead of the default credential chain.
func WithProfile(profile string) SageMakerOption {
	return func(o *sageMakerOptions) {
		o.profile = profile
	}
}

// WithStaticCredentials signs with fixed keys instead of the default credential chain.
func WithStaticCredentials(accessKeyID, secretAccessKey, sessionToken string) SageMakerOption {
	return func(o *sageMakerOptions) {
		o.credentials = credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, sessionToken)
	}
}

// WithClientOptions passes Options through to the underlying Client.
func WithClientOptions(opts ...Option) SageMakerOption {
	return func(o *sageMakerOptions) {
		o.clientOpts = append(o.clientOpts, opts...)
	}
}

// NewSageMaker creates a Client for a SageMaker managed tracking server. Credentials come
// from the AWS default chain (env, shared config, IAM role) unless overridden.
func NewSageMaker(ctx context.Context, trackingARN string, opts ...SageMakerOption) (*Client, error) {
	endpoint, region, err := SageMakerEndpoint(trackingARN)
	if err != nil {
		return nil, err
	}
	var o sageMakerOptions
	for _, opt := range opts {
		opt(&o)
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if o.profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(o.profile))
	}
	if o.credentials != nil {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(o.credentials))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: mlflow: load AWS config: %w", promptreg.ErrConfiguration, err)
	}
	clientOpts := []Option{
		WithHeader(SageMakerARNHeader, trackingARN),
		WithSigner(NewSigV4Signer(awsCfg.Credentials, region)),
	}
	return New(endpoint, append(clientOpts, o.clientOpts...)...)
}

// SigV4Signer signs requests for the sagemaker-mlflow service.
type SigV4Signer struct {
	creds  aws.CredentialsProvider
	region string
	signer *v4.Signer
	now    func() time.Time
}

// NewSigV4Signer creates a signer for region using creds.
func NewSigV4Signer(creds aws.CredentialsProvider, region string) *SigV4Signer {
	return &SigV4Signer{
		creds:  creds,
		region: region,
		signer: v4.NewSigner(),
		now:    time.Now,
	}
}

// Sign implements Signer.
func (s *SigV4Signer) Sign(ctx context.Context, req *http.Request, body []byte) error {
	if s.creds == nil {
		return fmt.Errorf("mlflow: no AWS credentials configured")
	}
	creds, err := s.creds.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("mlflow: retrieve AWS credentials: %w", err)
	}
	sum := sha256.Sum256(body)
	return s.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), sageMakerSigningName, s.region, s.now())
}

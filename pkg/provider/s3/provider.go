package s3

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/auscope/vgljobs/pkg/provider"
)

// listAPI is the subset of the S3 client used for listing.
type listAPI interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Client holds one S3 client shared by every bucket it opens.
type Client struct {
	api     listAPI
	maxKeys int
}

// Provider lists a single bucket through a shared Client.
type Provider struct {
	api     listAPI
	bucket  string
	maxKeys int
}

var (
	_ provider.Provider = (*Provider)(nil)
	_ provider.Opener   = (*Client)(nil)
)

// NewClient creates a Client using the AWS SDK v2 default credential chain
// unless explicit credentials are configured.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &provider.ProviderError{Op: "New", Provider: provider.ProviderS3, Err: err}
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return newClient(api, cfg.MaxKeys), nil
}

func newClient(api listAPI, maxKeys int) *Client {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	return &Client{api: api, maxKeys: maxKeys}
}

// Open returns the Provider for bucket.
func (c *Client) Open(_ context.Context, bucket string) (provider.Provider, error) {
	return c.Bucket(bucket)
}

// Bucket returns the Provider for bucket.
func (c *Client) Bucket(bucket string) (*Provider, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	}
	return &Provider{api: c.api, bucket: bucket, maxKeys: c.maxKeys}, nil
}

// loadAWSConfig builds the AWS configuration with appropriate credentials.
func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	// Only apply an explicit region; let the SDK resolve env/profile first.
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	awsCfg.Region = resolveRegion(cfg.Endpoint, awsCfg.Region)
	return awsCfg, nil
}

// Bucket returns the bucket served by p.
func (p *Provider) Bucket() string {
	return p.bucket
}

// List returns a page of objects with the given prefix.
func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(p.bucket),
		MaxKeys: aws.Int32(int32(clampMaxKeys(opts.MaxKeys, p.maxKeys))),
	}
	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}
	if opts.ContinuationToken != "" {
		input.ContinuationToken = aws.String(opts.ContinuationToken)
	}

	output, err := p.api.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, p.wrapError("List", "", err)
	}

	objects := make([]provider.ObjectSummary, 0, len(output.Contents))
	for _, obj := range output.Contents {
		objects = append(objects, provider.ObjectSummary{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			ETag:         cleanETag(aws.ToString(obj.ETag)),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}

	return &provider.ListResult{
		Objects:           objects,
		IsTruncated:       aws.ToBool(output.IsTruncated),
		ContinuationToken: aws.ToString(output.NextContinuationToken),
	}, nil
}

// Close is a no-op; the shared client owns no per-bucket resources.
func (p *Provider) Close() error {
	return nil
}

// wrapError converts S3 errors to provider errors with appropriate sentinel errors.
func (p *Provider) wrapError(op, key string, err error) error {
	return &provider.ProviderError{
		Op:       op,
		Provider: provider.ProviderS3,
		Bucket:   p.bucket,
		Key:      key,
		Err:      classify(err),
	}
}

var errorCodes = map[string]error{
	"NoSuchKey":             provider.ErrNotFound,
	"NotFound":              provider.ErrNotFound,
	"NoSuchBucket":          provider.ErrBucketNotFound,
	"AccessDenied":          provider.ErrAccessDenied,
	"Forbidden":             provider.ErrAccessDenied,
	"InvalidAccessKeyId":    provider.ErrInvalidCredentials,
	"SignatureDoesNotMatch": provider.ErrInvalidCredentials,
	"SlowDown":              provider.ErrThrottled,
	"Throttling":            provider.ErrThrottled,
	"RequestLimitExceeded":  provider.ErrThrottled,
	"ServiceUnavailable":    provider.ErrProviderUnavailable,
	"InternalError":         provider.ErrProviderUnavailable,
}

// classify maps an SDK error onto a provider sentinel, keeping the original
// message for errors it cannot classify.
func classify(err error) error {
	var (
		notFound     *types.NotFound
		noSuchKey    *types.NoSuchKey
		noSuchBucket *types.NoSuchBucket
	)
	switch {
	case errors.As(err, &notFound), errors.As(err, &noSuchKey):
		return provider.ErrNotFound
	case errors.As(err, &noSuchBucket):
		return provider.ErrBucketNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if sentinel, ok := errorCodes[apiErr.ErrorCode()]; ok {
			return sentinel
		}
		return err
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "NoSuchBucket"):
		return provider.ErrBucketNotFound
	case strings.Contains(msg, "AccessDenied") || strings.Contains(msg, "403"):
		return provider.ErrAccessDenied
	case strings.Contains(msg, "SlowDown") || strings.Contains(msg, "429"):
		return provider.ErrThrottled
	case strings.Contains(msg, "ServiceUnavailable") || strings.Contains(msg, "503"):
		return provider.ErrProviderUnavailable
	}
	return err
}

// cleanETag removes surrounding quotes from an ETag value.
func cleanETag(etag string) string {
	return strings.Trim(etag, "\"")
}

// clampMaxKeys applies defaults and limits to maxKeys values.
func clampMaxKeys(requested, providerDefault int) int {
	if requested <= 0 {
		requested = providerDefault
	}
	if requested > MaxAllowedKeys {
		return MaxAllowedKeys
	}
	return requested
}

// resolveRegion applies the us-east-1 fallback for AWS S3 after the SDK
// resolved explicit, env, and profile regions into sdkRegion.
func resolveRegion(endpoint, sdkRegion string) string {
	if sdkRegion != "" {
		return sdkRegion
	}
	if endpoint == "" {
		return DefaultAWSRegion
	}
	return ""
}

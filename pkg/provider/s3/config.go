// Package s3 lists job output buckets in AWS S3 and S3-compatible storage.
package s3

// Config configures the shared S3 client.
//
// Authentication priority (AWS SDK v2 default chain):
//  1. Explicit AccessKeyID/SecretAccessKey (if provided)
//  2. Environment variables (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY)
//  3. Shared credentials and config files, honouring Profile
//  4. EC2 instance metadata / ECS task role / EKS IRSA
//
// For AWS S3 an empty Region falls back to us-east-1 once env/profile
// resolution found nothing. When Endpoint is set (Wasabi, MinIO, moto) no
// default region is applied.
type Config struct {
	Region   string
	Endpoint string
	Profile  string

	// AccessKeyID and SecretAccessKey must be set together.
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle puts the bucket in the path instead of the host name.
	// Most S3-compatible stores require it.
	ForcePathStyle bool

	// MaxKeys is the default page size for List operations.
	// Zero uses 1000. Values over 1000 are clamped.
	MaxKeys int
}

// DefaultMaxKeys is the default page size for List operations.
const DefaultMaxKeys = 1000

// MaxAllowedKeys is the maximum page size allowed by S3.
const MaxAllowedKeys = 1000

// DefaultAWSRegion is the fallback region for AWS S3 when not specified.
const DefaultAWSRegion = "us-east-1"

// Validate checks that the configuration is self-consistent.
func (c *Config) Validate() error {
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	if c.MaxKeys < 0 {
		return &ConfigError{Field: "MaxKeys", Message: "must not be negative"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "s3 config: " + e.Field + ": " + e.Message
}

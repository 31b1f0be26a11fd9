package provider

import (
	"errors"
	"fmt"
)

// Sentinel errors for storage operations.
var (
	ErrNotFound            = errors.New("object not found")
	ErrAccessDenied        = errors.New("access denied")
	ErrBucketNotFound      = errors.New("bucket not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrThrottled           = errors.New("request throttled")
)

// ProviderError wraps backend errors with the bucket and key involved.
type ProviderError struct {
	Op       string
	Provider ProviderType
	Bucket   string
	Key      string
	Err      error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Key != "":
		return fmt.Sprintf("%s %s: %s/%s: %v", e.Provider, e.Op, e.Bucket, e.Key, e.Err)
	case e.Bucket != "":
		return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Bucket, e.Err)
	default:
		return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
	}
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates an object was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsBucketNotFound returns true if the error indicates the bucket does not exist.
func IsBucketNotFound(err error) bool {
	return errors.Is(err, ErrBucketNotFound)
}

// IsAccessDenied returns true for permission and credential failures.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied) || errors.Is(err, ErrInvalidCredentials)
}

// IsRetryable returns true for failures that may succeed on a later attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrThrottled) || errors.Is(err, ErrProviderUnavailable)
}

// ErrorCode returns a stable, log-friendly code for err.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrBucketNotFound):
		return "BUCKET_NOT_FOUND"
	case errors.Is(err, ErrAccessDenied):
		return "ACCESS_DENIED"
	case errors.Is(err, ErrInvalidCredentials):
		return "INVALID_CREDENTIALS"
	case errors.Is(err, ErrThrottled):
		return "THROTTLED"
	case errors.Is(err, ErrProviderUnavailable):
		return "UNAVAILABLE"
	default:
		return "STORAGE_ERROR"
	}
}

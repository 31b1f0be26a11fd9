// Package provider defines the object-storage listing surface used to
// discover job outputs.
//
// Authentication uses SDK default credential chains; providers do not
// implement custom auth logic.
package provider

import (
	"context"
	"time"
)

// Provider lists and inspects objects in a single bucket.
//
// Implementations should:
//   - Support pagination via continuation tokens
//   - Be safe for concurrent use
type Provider interface {
	// List returns a page of objects with the given prefix.
	// Use ContinuationToken from ListResult for subsequent pages.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Opener returns the Provider serving a named bucket.
type Opener interface {
	Open(ctx context.Context, bucket string) (Provider, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, bucket string) (Provider, error)

// Open calls f(ctx, bucket).
func (f OpenerFunc) Open(ctx context.Context, bucket string) (Provider, error) {
	return f(ctx, bucket)
}

// ListOptions configures a List operation.
type ListOptions struct {
	// Prefix filters results to keys starting with this value.
	// Empty string lists all objects.
	Prefix string

	// ContinuationToken resumes listing from a previous ListResult.
	ContinuationToken string

	// MaxKeys limits the number of objects returned per page.
	// Zero uses provider default (typically 1000).
	MaxKeys int
}

// ListResult contains a page of objects from a List operation.
type ListResult struct {
	Objects []ObjectSummary

	// ContinuationToken is used to retrieve the next page.
	// Empty string indicates no more pages.
	ContinuationToken string

	IsTruncated bool
}

// ObjectSummary contains basic metadata returned from List operations.
type ObjectSummary struct {
	// Key is the full object key (path) in the bucket.
	Key string

	// Size is the object size in bytes.
	Size int64

	ETag         string
	LastModified time.Time
}

// ListAll pages through every object under prefix, calling fn for each one
// in listing order. Listing stops at the first error from the provider or fn.
func ListAll(ctx context.Context, p Provider, prefix string, fn func(ObjectSummary) error) error {
	token := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := p.List(ctx, ListOptions{Prefix: prefix, ContinuationToken: token})
		if err != nil {
			return err
		}
		for _, obj := range page.Objects {
			if err := fn(obj); err != nil {
				return err
			}
		}

		if !page.IsTruncated || page.ContinuationToken == "" {
			return nil
		}
		token = page.ContinuationToken
	}
}

// ProviderType identifies a storage provider.
type ProviderType string

const (
	// ProviderS3 represents AWS S3 or S3-compatible storage.
	ProviderS3 ProviderType = "s3"

	// ProviderFile represents a local directory tree laid out as buckets.
	ProviderFile ProviderType = "file"
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}

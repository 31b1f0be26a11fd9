package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ProviderError
		expected string
	}{
		{
			name:     "with key",
			err:      &ProviderError{Op: "List", Provider: ProviderS3, Bucket: "my-bucket", Key: "path/to/file.txt", Err: ErrNotFound},
			expected: "s3 List: my-bucket/path/to/file.txt: object not found",
		},
		{
			name:     "without key",
			err:      &ProviderError{Op: "List", Provider: ProviderS3, Bucket: "my-bucket", Err: ErrAccessDenied},
			expected: "s3 List: my-bucket: access denied",
		},
		{
			name:     "without bucket",
			err:      &ProviderError{Op: "New", Provider: ProviderS3, Err: errors.New("failed to load config")},
			expected: "s3 New: failed to load config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestErrorClassification(t *testing.T) {
	wrap := func(err error) error { return &ProviderError{Op: "List", Provider: ProviderS3, Err: err} }

	assert.True(t, IsNotFound(wrap(ErrNotFound)))
	assert.True(t, IsBucketNotFound(wrap(ErrBucketNotFound)))
	assert.True(t, IsAccessDenied(wrap(ErrAccessDenied)))
	assert.True(t, IsAccessDenied(wrap(ErrInvalidCredentials)))
	assert.True(t, IsRetryable(wrap(ErrThrottled)))
	assert.True(t, IsRetryable(wrap(ErrProviderUnavailable)))
	assert.False(t, IsRetryable(wrap(ErrNotFound)))

	assert.Equal(t, "", ErrorCode(nil))
	assert.Equal(t, "THROTTLED", ErrorCode(wrap(ErrThrottled)))
	assert.Equal(t, "BUCKET_NOT_FOUND", ErrorCode(wrap(ErrBucketNotFound)))
	assert.Equal(t, "STORAGE_ERROR", ErrorCode(errors.New("boom")))
}

// pagedProvider serves fixed pages keyed by continuation token.
type pagedProvider struct {
	pages map[string]*ListResult
	calls []ListOptions
	err   error
}

func (p *pagedProvider) List(_ context.Context, opts ListOptions) (*ListResult, error) {
	p.calls = append(p.calls, opts)
	if p.err != nil {
		return nil, p.err
	}
	page, ok := p.pages[opts.ContinuationToken]
	if !ok {
		return nil, fmt.Errorf("unexpected token %q", opts.ContinuationToken)
	}
	return page, nil
}

func (p *pagedProvider) Close() error { return nil }

func TestListAll(t *testing.T) {
	ctx := context.Background()

	t.Run("follows continuation tokens in order", func(t *testing.T) {
		p := &pagedProvider{pages: map[string]*ListResult{
			"":   {Objects: []ObjectSummary{{Key: "out/a"}, {Key: "out/b"}}, IsTruncated: true, ContinuationToken: "t1"},
			"t1": {Objects: []ObjectSummary{{Key: "out/c"}}},
		}}

		var keys []string
		err := ListAll(ctx, p, "out/", func(o ObjectSummary) error {
			keys = append(keys, o.Key)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"out/a", "out/b", "out/c"}, keys)
		require.Len(t, p.calls, 2)
		assert.Equal(t, "out/", p.calls[1].Prefix)
	})

	t.Run("propagates provider errors", func(t *testing.T) {
		p := &pagedProvider{err: &ProviderError{Op: "List", Provider: ProviderS3, Err: ErrAccessDenied}}
		err := ListAll(ctx, p, "", func(ObjectSummary) error { return nil })
		assert.True(t, IsAccessDenied(err))
	})

	t.Run("stops on callback error", func(t *testing.T) {
		p := &pagedProvider{pages: map[string]*ListResult{
			"": {Objects: []ObjectSummary{{Key: "a"}, {Key: "b"}}},
		}}
		stop := errors.New("stop")
		n := 0
		err := ListAll(ctx, p, "", func(ObjectSummary) error {
			n++
			return stop
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 1, n)
	})

	t.Run("honours cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		p := &pagedProvider{}
		err := ListAll(cctx, p, "", func(ObjectSummary) error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, p.calls)
	})
}

// Package file serves job output listings from a local directory tree in
// which each top-level directory is a bucket.
package file

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/auscope/vgljobs/pkg/provider"
)

// Config configures a local bucket root.
type Config struct {
	BaseDir string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseDir) == "" {
		return fmt.Errorf("base dir is required")
	}
	return nil
}

// Root opens buckets as subdirectories of BaseDir.
type Root struct {
	baseDir string
}

// Provider lists the files of one bucket directory.
//
// Keys are slash-separated paths relative to the bucket directory.
type Provider struct {
	bucket string
	dir    string
}

var (
	_ provider.Provider = (*Provider)(nil)
	_ provider.Opener   = (*Root)(nil)
)

func New(cfg Config) (*Root, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Root{baseDir: filepath.Clean(cfg.BaseDir)}, nil
}

// Open returns the Provider for bucket. A bucket directory that does not
// exist yields ErrBucketNotFound.
func (r *Root) Open(_ context.Context, bucket string) (provider.Provider, error) {
	return r.Bucket(bucket)
}

// Bucket returns the Provider for bucket.
func (r *Root) Bucket(bucket string) (*Provider, error) {
	name := strings.TrimSpace(bucket)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return nil, &provider.ProviderError{Op: "Open", Provider: provider.ProviderFile, Bucket: bucket, Err: fmt.Errorf("invalid bucket name")}
	}
	dir := filepath.Join(r.baseDir, name)
	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		return nil, &provider.ProviderError{Op: "Open", Provider: provider.ProviderFile, Bucket: name, Err: provider.ErrBucketNotFound}
	}
	return &Provider{bucket: name, dir: dir}, nil
}

func (p *Provider) Close() error { return nil }

func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	maxKeys := opts.MaxKeys
	if maxKeys <= 0 {
		maxKeys = 1000
	}

	prefix := strings.TrimPrefix(opts.Prefix, "/")
	keys, err := p.collectKeys(prefix)
	if err != nil {
		return nil, p.wrapError("List", opts.Prefix, err)
	}
	sort.Strings(keys)

	start := 0
	if opts.ContinuationToken != "" {
		// Start strictly after the last returned key.
		start = sort.Search(len(keys), func(i int) bool { return keys[i] > opts.ContinuationToken })
	}

	end := start + maxKeys
	if end > len(keys) {
		end = len(keys)
	}

	objects := make([]provider.ObjectSummary, 0, end-start)
	for _, k := range keys[start:end] {
		st, err := os.Stat(filepath.Join(p.dir, filepath.FromSlash(k)))
		if err != nil || st.IsDir() {
			continue
		}
		objects = append(objects, provider.ObjectSummary{Key: k, Size: st.Size(), LastModified: st.ModTime()})
	}

	res := &provider.ListResult{Objects: objects}
	if end < len(keys) {
		res.IsTruncated = true
		res.ContinuationToken = keys[end-1]
	}
	return res, nil
}

func (p *Provider) fullPath(key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	// Prevent path traversal.
	clean := strings.TrimPrefix(path.Clean("/"+key), "/")
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid key path")
	}
	return filepath.Join(p.dir, filepath.FromSlash(clean)), nil
}

// collectKeys walks the deepest directory named by prefix and keeps the
// files whose key starts with prefix.
func (p *Provider) collectKeys(prefix string) ([]string, error) {
	dirPart := ""
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		dirPart = prefix[:i]
	}
	root, err := p.fullPath(dirPart)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var keys []string
	err = filepath.WalkDir(root, func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(p.dir, full)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			keys = append(keys, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (p *Provider) wrapError(op, key string, err error) error {
	wrapped := &provider.ProviderError{Op: op, Provider: provider.ProviderFile, Bucket: p.bucket, Key: key, Err: err}
	// Normalize common filesystem errors to provider sentinels.
	if os.IsNotExist(err) {
		wrapped.Err = provider.ErrNotFound
	}
	if os.IsPermission(err) {
		wrapped.Err = provider.ErrAccessDenied
	}
	return wrapped
}

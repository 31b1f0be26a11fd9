// Package jobstorage lists the output files a job wrote to object storage.
package jobstorage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/auscope/vgljobs/pkg/jobstore"
	"github.com/auscope/vgljobs/pkg/provider"
)

// DefaultPublicURLTemplate builds virtual-hosted AWS S3 URLs.
const DefaultPublicURLTemplate = "https://{bucket}.s3.amazonaws.com/{key}"

// ErrNoOutputLocation is returned for jobs that have no output bucket.
var ErrNoOutputLocation = errors.New("job has no output location")

// OutputFileInfo describes one output file of a job.
type OutputFileInfo struct {
	Key       string `json:"key" yaml:"key"`
	Size      int64  `json:"size" yaml:"size"`
	PublicURL string `json:"public_url" yaml:"public_url"`
}

// Config controls which objects are reported and how their URLs are formed.
type Config struct {
	// PublicURLTemplate may reference {bucket} and {key}.
	PublicURLTemplate string

	// Include and Exclude are doublestar globs matched against the key
	// relative to the job's output base key.
	Include []string
	Exclude []string
}

// Service lists job outputs through a provider.Opener.
type Service struct {
	opener      provider.Opener
	filter      *keyFilter
	urlTemplate string
	logger      *zap.Logger
}

// New creates a Service. A nil logger disables logging.
func New(opener provider.Opener, cfg Config, logger *zap.Logger) (*Service, error) {
	if opener == nil {
		return nil, fmt.Errorf("jobstorage: opener is required")
	}
	filter, err := newKeyFilter(cfg.Include, cfg.Exclude)
	if err != nil {
		return nil, err
	}
	tmpl := strings.TrimSpace(cfg.PublicURLTemplate)
	if tmpl == "" {
		tmpl = DefaultPublicURLTemplate
	}
	if !strings.Contains(tmpl, "{key}") {
		return nil, fmt.Errorf("jobstorage: public url template %q has no {key} placeholder", tmpl)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{opener: opener, filter: filter, urlTemplate: tmpl, logger: logger}, nil
}

// GetOutputFileDetails lists every file under the job's output location in
// key order. An empty result is not an error.
func (s *Service) GetOutputFileDetails(ctx context.Context, job *jobstore.Job) ([]OutputFileInfo, error) {
	if job == nil || strings.TrimSpace(job.OutputBucket) == "" {
		return nil, ErrNoOutputLocation
	}

	p, err := s.opener.Open(ctx, job.OutputBucket)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", job.OutputBucket, err)
	}
	defer func() { _ = p.Close() }()

	prefix := basePrefix(job.OutputBaseKey)
	files := make([]OutputFileInfo, 0)
	err = provider.ListAll(ctx, p, prefix, func(obj provider.ObjectSummary) error {
		if isDirectoryPlaceholder(obj) {
			return nil
		}
		if !s.filter.match(strings.TrimPrefix(obj.Key, prefix)) {
			return nil
		}
		files = append(files, OutputFileInfo{
			Key:       obj.Key,
			Size:      obj.Size,
			PublicURL: s.publicURL(job.OutputBucket, obj.Key),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", job.OutputBucket, prefix, err)
	}

	s.logger.Debug("listed job outputs",
		zap.Int64("job_id", job.ID),
		zap.String("bucket", job.OutputBucket),
		zap.String("prefix", prefix),
		zap.Int("files", len(files)),
	)
	return files, nil
}

func (s *Service) publicURL(bucket, key string) string {
	return strings.NewReplacer("{bucket}", bucket, "{key}", escapeKey(key)).Replace(s.urlTemplate)
}

// basePrefix normalises a base key into a listing prefix ending in "/".
func basePrefix(baseKey string) string {
	k := strings.Trim(strings.TrimSpace(baseKey), "/")
	if k == "" {
		return ""
	}
	return k + "/"
}

func isDirectoryPlaceholder(obj provider.ObjectSummary) bool {
	return strings.HasSuffix(obj.Key, "/") && obj.Size == 0
}

// escapeKey escapes each path segment, keeping the separators.
func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

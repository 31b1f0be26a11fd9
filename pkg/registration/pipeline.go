// Package registration publishes a catalogue record for a job's outputs and
// stores the resulting URL on the job.
package registration

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/auscope/vgljobs/pkg/catalog"
	"github.com/auscope/vgljobs/pkg/jobstorage"
	"github.com/auscope/vgljobs/pkg/jobstore"
)

// JobManager reads and saves jobs and series.
type JobManager interface {
	GetJobByID(ctx context.Context, id int64) (*jobstore.Job, error)
	GetSeriesByID(ctx context.Context, id int64) (*jobstore.Series, error)
	SaveJob(ctx context.Context, job *jobstore.Job) error
}

// StorageLister lists a job's output files.
type StorageLister interface {
	GetOutputFileDetails(ctx context.Context, job *jobstore.Job) ([]jobstorage.OutputFileInfo, error)
}

// Registrar inserts records into the catalogue.
type Registrar interface {
	MakeCSWRecordInsertion(ctx context.Context, rec *catalog.Record) (string, error)
}

// Pipeline runs job registrations. It holds no per-call state.
type Pipeline struct {
	jobs      JobManager
	storage   StorageLister
	registrar Registrar
	logger    *zap.Logger
}

// NewPipeline wires a Pipeline. A nil logger disables logging.
func NewPipeline(jobs JobManager, storage StorageLister, registrar Registrar, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{jobs: jobs, storage: storage, registrar: registrar, logger: logger}
}

// RegisterJob publishes the catalogue record for jobID and returns the
// registered URL. Every error is an *Error.
func (p *Pipeline) RegisterJob(ctx context.Context, jobID int64) (string, error) {
	log := p.logger.With(zap.Int64("job_id", jobID))

	job, rec, err := p.prepare(ctx, jobID)
	if err != nil {
		log.Warn("job registration failed", zap.Stringer("kind", KindOf(err)), zap.Error(err))
		return "", err
	}

	url, err := guard(func() (string, error) { return p.registrar.MakeCSWRecordInsertion(ctx, rec) })
	if err == nil && url == "" {
		err = fmt.Errorf("catalog returned an empty url")
	}
	if err != nil {
		log.Warn("job registration failed", zap.Stringer("kind", KindCatalogRegistrationFailed), zap.Error(err))
		return "", &Error{Kind: KindCatalogRegistrationFailed, JobID: jobID, Err: err}
	}

	previous := job.RegisteredURL
	job.RegisteredURL = &url
	_, err = guard(func() (struct{}, error) { return struct{}{}, p.jobs.SaveJob(ctx, job) })
	if err != nil {
		job.RegisteredURL = previous
		kind := KindPersistFailed
		if jobstore.IsAlreadyRegistered(err) {
			kind = KindAlreadyRegistered
		}
		// The catalogue now holds a record the job does not point at.
		log.Error("registered record not saved",
			zap.String("url", url),
			zap.String("file_identifier", rec.FileIdentifier),
			zap.Stringer("kind", kind),
			zap.Error(err),
		)
		return "", &Error{Kind: kind, JobID: jobID, Err: err}
	}

	log.Info("job registered", zap.String("url", url), zap.Int("files", len(rec.OnlineResources)))
	return url, nil
}

// Preview builds the record RegisterJob would publish without contacting
// the catalogue or saving the job.
func (p *Pipeline) Preview(ctx context.Context, jobID int64) (*catalog.Record, error) {
	_, rec, err := p.prepare(ctx, jobID)
	return rec, err
}

// prepare runs the lookup, listing, and build steps.
func (p *Pipeline) prepare(ctx context.Context, jobID int64) (*jobstore.Job, *catalog.Record, error) {
	fail := func(kind Kind, err error) (*jobstore.Job, *catalog.Record, error) {
		return nil, nil, &Error{Kind: kind, JobID: jobID, Err: err}
	}

	job, err := guard(func() (*jobstore.Job, error) { return p.jobs.GetJobByID(ctx, jobID) })
	switch {
	case jobstore.IsNotFound(err):
		return fail(KindJobNotFound, err)
	case err != nil:
		return fail(KindDataAccessFailed, err)
	case job == nil:
		return fail(KindJobNotFound, nil)
	}
	if job.IsRegistered() {
		return fail(KindAlreadyRegistered, fmt.Errorf("registered at %s", *job.RegisteredURL))
	}

	series, err := guard(func() (*jobstore.Series, error) { return p.jobs.GetSeriesByID(ctx, job.SeriesID) })
	switch {
	case jobstore.IsNotFound(err):
		return fail(KindSeriesNotFound, err)
	case err != nil:
		return fail(KindDataAccessFailed, err)
	case series == nil:
		return fail(KindSeriesNotFound, fmt.Errorf("series %d", job.SeriesID))
	}

	files, err := guard(func() ([]jobstorage.OutputFileInfo, error) { return p.storage.GetOutputFileDetails(ctx, job) })
	if err != nil {
		return fail(KindStorageListingFailed, err)
	}

	rec, err := catalog.BuildRecord(job, series, files)
	if err != nil {
		return fail(KindCatalogRegistrationFailed, err)
	}
	return job, rec, nil
}

// guard converts a collaborator panic into an error.
func guard[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

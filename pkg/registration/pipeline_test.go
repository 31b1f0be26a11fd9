package registration

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auscope/vgljobs/pkg/catalog"
	"github.com/auscope/vgljobs/pkg/jobstorage"
	"github.com/auscope/vgljobs/pkg/jobstore"
)

const registeredURL = "http://example.csw.url/"

// fakes records every collaborator call in order.
type fakes struct {
	calls []string

	job     *jobstore.Job
	jobErr  error
	series  *jobstore.Series
	serErr  error
	files   []jobstorage.OutputFileInfo
	listErr error
	url     string
	catErr  error
	saveErr error

	panicOn string

	records  []*catalog.Record
	savedURL []*string
}

func (f *fakes) maybePanic(step string) {
	if f.panicOn == step {
		panic(step + " exploded")
	}
}

func (f *fakes) GetJobByID(_ context.Context, id int64) (*jobstore.Job, error) {
	f.calls = append(f.calls, fmt.Sprintf("getJob(%d)", id))
	f.maybePanic("getJob")
	return f.job, f.jobErr
}

func (f *fakes) GetSeriesByID(_ context.Context, id int64) (*jobstore.Series, error) {
	f.calls = append(f.calls, fmt.Sprintf("getSeries(%d)", id))
	f.maybePanic("getSeries")
	return f.series, f.serErr
}

func (f *fakes) SaveJob(_ context.Context, job *jobstore.Job) error {
	f.calls = append(f.calls, "save")
	f.maybePanic("save")
	var url *string
	if job.RegisteredURL != nil {
		v := *job.RegisteredURL
		url = &v
	}
	f.savedURL = append(f.savedURL, url)
	return f.saveErr
}

func (f *fakes) GetOutputFileDetails(_ context.Context, job *jobstore.Job) ([]jobstorage.OutputFileInfo, error) {
	f.calls = append(f.calls, fmt.Sprintf("list(%d)", job.ID))
	f.maybePanic("list")
	return f.files, f.listErr
}

func (f *fakes) MakeCSWRecordInsertion(_ context.Context, rec *catalog.Record) (string, error) {
	f.calls = append(f.calls, "insert")
	f.maybePanic("insert")
	f.records = append(f.records, rec)
	return f.url, f.catErr
}

func scenario() *fakes {
	return &fakes{
		job: &jobstore.Job{
			ID:                   1235,
			SeriesID:             5432,
			Name:                 "name",
			Description:          "description",
			User:                 "user",
			EmailAddress:         "email@address",
			SubmitDate:           "20110713_105730",
			SelectionMaxEasting:  1.0,
			SelectionMinEasting:  2.0,
			SelectionMaxNorthing: 3.0,
			SelectionMinNorthing: 4.0,
			OutputBucket:         "s3-output-bucket",
		},
		series: &jobstore.Series{ID: 5432, Name: "seriesName", Description: "seriesDescription"},
		files: []jobstorage.OutputFileInfo{
			{Key: "my/key1", Size: 100, PublicURL: "http://public.url1"},
			{Key: "my/key2", Size: 200, PublicURL: "http://public.url2"},
			{Key: "my/key3", Size: 300, PublicURL: "http://public.url3"},
		},
		url: registeredURL,
	}
}

func pipeline(f *fakes) *Pipeline {
	return NewPipeline(f, f, f, nil)
}

func TestRegisterJob(t *testing.T) {
	f := scenario()

	url, err := pipeline(f).RegisterJob(context.Background(), 1235)
	require.NoError(t, err)
	assert.Equal(t, registeredURL, url)

	assert.Equal(t, []string{"getJob(1235)", "getSeries(5432)", "list(1235)", "insert", "save"}, f.calls)

	// The URL is on the job before the single save.
	require.Len(t, f.savedURL, 1)
	require.NotNil(t, f.savedURL[0])
	assert.Equal(t, registeredURL, *f.savedURL[0])
	require.NotNil(t, f.job.RegisteredURL)
	assert.Equal(t, registeredURL, *f.job.RegisteredURL)

	require.Len(t, f.records, 1)
	rec := f.records[0]
	assert.Equal(t, catalog.BoundingBox{West: 2.0, East: 1.0, South: 4.0, North: 3.0}, rec.BoundingBox)
	require.Len(t, rec.OnlineResources, 3)
	for i, want := range []string{"http://public.url1", "http://public.url2", "http://public.url3"} {
		assert.Equal(t, want, rec.OnlineResources[i].URL)
	}
}

func TestRegisterJob_EmptyListing(t *testing.T) {
	f := scenario()
	f.files = nil

	url, err := pipeline(f).RegisterJob(context.Background(), 1235)
	require.NoError(t, err)
	assert.Equal(t, registeredURL, url)
	require.Len(t, f.records, 1)
	assert.Empty(t, f.records[0].OnlineResources)
}

func TestRegisterJob_Failures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		mutate    func(f *fakes)
		kind      Kind
		category  Category
		calls     []string
		predicate func(error) bool
	}{
		{
			name:      "job missing",
			mutate:    func(f *fakes) { f.job = nil },
			kind:      KindJobNotFound,
			category:  CategoryNotFound,
			calls:     []string{"getJob(1235)"},
			predicate: IsJobNotFound,
		},
		{
			name:      "job lookup not found error",
			mutate:    func(f *fakes) { f.job, f.jobErr = nil, fmt.Errorf("get job 1235: %w", jobstore.ErrNotFound) },
			kind:      KindJobNotFound,
			category:  CategoryNotFound,
			calls:     []string{"getJob(1235)"},
			predicate: IsJobNotFound,
		},
		{
			name:     "job lookup broken",
			mutate:   func(f *fakes) { f.job, f.jobErr = nil, boom },
			kind:     KindDataAccessFailed,
			category: CategoryInternal,
			calls:    []string{"getJob(1235)"},
		},
		{
			name:      "already registered",
			mutate:    func(f *fakes) { u := "http://old/"; f.job.RegisteredURL = &u },
			kind:      KindAlreadyRegistered,
			category:  CategoryConflict,
			calls:     []string{"getJob(1235)"},
			predicate: IsAlreadyRegistered,
		},
		{
			name:      "series missing",
			mutate:    func(f *fakes) { f.series = nil },
			kind:      KindSeriesNotFound,
			category:  CategoryNotFound,
			calls:     []string{"getJob(1235)", "getSeries(5432)"},
			predicate: IsSeriesNotFound,
		},
		{
			name:      "series lookup not found error",
			mutate:    func(f *fakes) { f.series, f.serErr = nil, jobstore.ErrNotFound },
			kind:      KindSeriesNotFound,
			category:  CategoryNotFound,
			calls:     []string{"getJob(1235)", "getSeries(5432)"},
			predicate: IsSeriesNotFound,
		},
		{
			name:      "storage listing",
			mutate:    func(f *fakes) { f.listErr = boom },
			kind:      KindStorageListingFailed,
			category:  CategoryUpstreamUnavailable,
			calls:     []string{"getJob(1235)", "getSeries(5432)", "list(1235)"},
			predicate: IsStorageListingFailed,
		},
		{
			name:      "bad submit date",
			mutate:    func(f *fakes) { f.job.SubmitDate = "yesterday" },
			kind:      KindCatalogRegistrationFailed,
			category:  CategoryUpstreamUnavailable,
			calls:     []string{"getJob(1235)", "getSeries(5432)", "list(1235)"},
			predicate: IsCatalogRegistrationFailed,
		},
		{
			name:      "catalog rejects",
			mutate:    func(f *fakes) { f.url, f.catErr = "", boom },
			kind:      KindCatalogRegistrationFailed,
			category:  CategoryUpstreamUnavailable,
			calls:     []string{"getJob(1235)", "getSeries(5432)", "list(1235)", "insert"},
			predicate: IsCatalogRegistrationFailed,
		},
		{
			name:      "catalog returns empty url",
			mutate:    func(f *fakes) { f.url = "" },
			kind:      KindCatalogRegistrationFailed,
			category:  CategoryUpstreamUnavailable,
			calls:     []string{"getJob(1235)", "getSeries(5432)", "list(1235)", "insert"},
			predicate: IsCatalogRegistrationFailed,
		},
		{
			name:     "final save fails",
			mutate:   func(f *fakes) { f.saveErr = boom },
			kind:     KindPersistFailed,
			category: CategoryInternal,
			calls:    []string{"getJob(1235)", "getSeries(5432)", "list(1235)", "insert", "save"},
		},
		{
			name:      "final save loses race",
			mutate:    func(f *fakes) { f.saveErr = fmt.Errorf("save job 1235: %w", jobstore.ErrAlreadyRegistered) },
			kind:      KindAlreadyRegistered,
			category:  CategoryConflict,
			calls:     []string{"getJob(1235)", "getSeries(5432)", "list(1235)", "insert", "save"},
			predicate: IsAlreadyRegistered,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := scenario()
			tt.mutate(f)
			var before jobstore.Job
			if f.job != nil {
				before = *f.job
			}

			url, err := pipeline(f).RegisterJob(context.Background(), 1235)
			require.Error(t, err)
			assert.Empty(t, url)

			var re *Error
			require.True(t, errors.As(err, &re))
			assert.Equal(t, tt.kind, re.Kind)
			assert.Equal(t, int64(1235), re.JobID)
			assert.Equal(t, tt.category, re.Kind.Category())
			assert.Equal(t, tt.kind, KindOf(err))
			if tt.predicate != nil {
				assert.True(t, tt.predicate(err))
			}
			assert.Equal(t, tt.calls, f.calls)
			if f.job != nil {
				assert.Equal(t, before, *f.job, "job must not stay mutated")
			}
		})
	}
}

func TestRegisterJob_WrapsCause(t *testing.T) {
	f := scenario()
	cause := errors.New("s3: access denied")
	f.listErr = cause

	_, err := pipeline(f).RegisterJob(context.Background(), 1235)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "register job 1235: storage listing failed")
}

func TestRegisterJob_RecoversPanics(t *testing.T) {
	tests := []struct {
		step string
		kind Kind
	}{
		{"getJob", KindDataAccessFailed},
		{"getSeries", KindDataAccessFailed},
		{"list", KindStorageListingFailed},
		{"insert", KindCatalogRegistrationFailed},
		{"save", KindPersistFailed},
	}
	for _, tt := range tests {
		t.Run(tt.step, func(t *testing.T) {
			f := scenario()
			f.panicOn = tt.step

			var err error
			require.NotPanics(t, func() {
				_, err = pipeline(f).RegisterJob(context.Background(), 1235)
			})
			assert.Equal(t, tt.kind, KindOf(err))
			assert.Contains(t, err.Error(), tt.step+" exploded")
			assert.Nil(t, f.job.RegisteredURL)
		})
	}
}

func TestPreview(t *testing.T) {
	f := scenario()

	rec, err := pipeline(f).Preview(context.Background(), 1235)
	require.NoError(t, err)
	assert.Equal(t, "seriesName: name", rec.Title)
	assert.Equal(t, []string{"getJob(1235)", "getSeries(5432)", "list(1235)"}, f.calls)
	assert.Nil(t, f.job.RegisteredURL)
}

func TestKind(t *testing.T) {
	assert.Equal(t, "unknown", KindUnknown.String())
	assert.Equal(t, CategoryInternal, KindUnknown.Category())
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))

	err := &Error{Kind: KindJobNotFound, JobID: 7}
	assert.Equal(t, "register job 7: job not found", err.Error())
}

// Identical collaborator responses give identical outcomes.
func TestRegisterJob_RepeatableOutcome(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name   string
		mutate func(f *fakes)
		kind   Kind
	}{
		{name: "success", mutate: func(*fakes) {}, kind: KindUnknown},
		{name: "job missing", mutate: func(f *fakes) { f.job = nil }, kind: KindJobNotFound},
		{name: "series missing", mutate: func(f *fakes) { f.series = nil }, kind: KindSeriesNotFound},
		{name: "storage listing", mutate: func(f *fakes) { f.listErr = boom }, kind: KindStorageListingFailed},
		{name: "catalog rejects", mutate: func(f *fakes) { f.url, f.catErr = "", boom }, kind: KindCatalogRegistrationFailed},
		{name: "final save fails", mutate: func(f *fakes) { f.saveErr = boom }, kind: KindPersistFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			type outcome struct {
				url   string
				kind  Kind
				calls []string
				ids   []string
			}
			run := func() outcome {
				f := scenario()
				tt.mutate(f)
				url, err := pipeline(f).RegisterJob(context.Background(), 1235)
				o := outcome{url: url, kind: KindOf(err), calls: f.calls}
				for _, rec := range f.records {
					o.ids = append(o.ids, rec.FileIdentifier)
				}
				return o
			}

			first, second := run(), run()
			assert.Equal(t, tt.kind, first.kind)
			assert.Equal(t, first, second)
			if tt.kind == KindUnknown {
				assert.Equal(t, registeredURL, first.url)
			} else {
				assert.Empty(t, first.url)
			}
		})
	}
}

// Registering twice against a real store publishes once.
func TestRegisterJob_PublishesOnce(t *testing.T) {
	ctx := context.Background()
	store, err := jobstore.Open(ctx, jobstore.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))

	f := scenario()
	series := &jobstore.Series{ID: 5432, User: "user", Name: "seriesName", Description: "seriesDescription"}
	require.NoError(t, store.CreateSeries(ctx, series))
	job := *f.job
	require.NoError(t, store.CreateJob(ctx, &job))

	p := NewPipeline(store, f, f, nil)

	url, err := p.RegisterJob(ctx, 1235)
	require.NoError(t, err)
	assert.Equal(t, registeredURL, url)

	saved, err := store.GetJobByID(ctx, 1235)
	require.NoError(t, err)
	require.NotNil(t, saved.RegisteredURL)
	assert.Equal(t, registeredURL, *saved.RegisteredURL)

	_, err = p.RegisterJob(ctx, 1235)
	assert.True(t, IsAlreadyRegistered(err))
	assert.Len(t, f.records, 1, "catalog must be called once")

	_, err = p.RegisterJob(ctx, 999)
	assert.True(t, IsJobNotFound(err))
}

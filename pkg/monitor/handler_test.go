package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/auscope/vgljobs/pkg/jobstore"
)

var fixedNow = time.Date(2011, 7, 14, 9, 0, 0, 0, time.UTC)

// recorder captures collaborator calls in order.
type recorder struct {
	calls []string

	saved   []jobstore.Job
	audits  []auditCall
	mailed  []int64
	saveErr error
	audErr  error
	mailErr error
	panicky bool
}

type auditCall struct {
	oldStatus string
	newStatus string
	message   string
}

func (r *recorder) SaveJob(_ context.Context, job *jobstore.Job) error {
	r.calls = append(r.calls, "save")
	r.saved = append(r.saved, *job)
	return r.saveErr
}

func (r *recorder) CreateJobAuditTrail(_ context.Context, oldStatus string, job *jobstore.Job, message string) error {
	r.calls = append(r.calls, "audit")
	r.audits = append(r.audits, auditCall{oldStatus: oldStatus, newStatus: job.Status, message: message})
	return r.audErr
}

func (r *recorder) SendMail(_ context.Context, job *jobstore.Job) error {
	r.calls = append(r.calls, "mail")
	if r.panicky {
		panic("smtp exploded")
	}
	r.mailed = append(r.mailed, job.ID)
	return r.mailErr
}

func newHandler(rec *recorder, logger *zap.Logger) *StatusChangeHandler[*jobstore.Job] {
	return NewStatusChangeHandler[*jobstore.Job](rec, rec, logger, WithClock(func() time.Time { return fixedNow }))
}

func TestHandleStatusChange_Done(t *testing.T) {
	rec := &recorder{}
	job := &jobstore.Job{ID: 1235, Status: jobstore.StatusActive, EmailNotification: true}

	err := newHandler(rec, nil).HandleStatusChange(context.Background(), job, jobstore.StatusDone, jobstore.StatusActive)
	require.NoError(t, err)

	assert.Equal(t, []string{"save", "audit", "mail"}, rec.calls)
	require.Len(t, rec.saved, 1)
	assert.Equal(t, jobstore.StatusDone, rec.saved[0].Status)
	require.NotNil(t, rec.saved[0].ProcessDate)
	assert.Equal(t, fixedNow, *rec.saved[0].ProcessDate)
	assert.Equal(t, []auditCall{{oldStatus: jobstore.StatusActive, newStatus: jobstore.StatusDone, message: "Job status updated."}}, rec.audits)
	assert.Equal(t, []int64{1235}, rec.mailed)
}

func TestHandleStatusChange_Unsubmitted(t *testing.T) {
	rec := &recorder{}
	job := &jobstore.Job{ID: 1, Status: jobstore.StatusPending, EmailNotification: true}

	err := newHandler(rec, nil).HandleStatusChange(context.Background(), job, jobstore.StatusUnsubmitted, jobstore.StatusPending)
	require.NoError(t, err)

	assert.Empty(t, rec.calls)
	assert.Equal(t, jobstore.StatusPending, job.Status)
	assert.Nil(t, job.ProcessDate)
}

func TestHandleStatusChange_NoMail(t *testing.T) {
	tests := []struct {
		name      string
		newStatus string
		notify    bool
	}{
		{"done without notification", jobstore.StatusDone, false},
		{"active with notification", jobstore.StatusActive, true},
		{"error with notification", jobstore.StatusError, true},
		{"unknown status", "Suspended", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			job := &jobstore.Job{ID: 7, Status: jobstore.StatusPending, EmailNotification: tt.notify}

			err := newHandler(rec, nil).HandleStatusChange(context.Background(), job, tt.newStatus, jobstore.StatusPending)
			require.NoError(t, err)
			assert.Equal(t, []string{"save", "audit"}, rec.calls)
			assert.Equal(t, tt.newStatus, job.Status)
		})
	}
}

func TestHandleStatusChange_MailFailureIsSwallowed(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	rec := &recorder{mailErr: errors.New("connection refused")}
	job := &jobstore.Job{ID: 1235, EmailNotification: true}

	err := newHandler(rec, zap.New(core)).HandleStatusChange(context.Background(), job, jobstore.StatusDone, jobstore.StatusActive)
	require.NoError(t, err)

	assert.Equal(t, []string{"save", "audit", "mail"}, rec.calls)
	require.Equal(t, 1, logs.FilterMessage("completion email failed").Len())
	assert.Equal(t, int64(1235), logs.All()[0].ContextMap()["job_id"])
}

func TestHandleStatusChange_MailPanicIsSwallowed(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	rec := &recorder{panicky: true}
	job := &jobstore.Job{ID: 1235, EmailNotification: true}

	err := newHandler(rec, zap.New(core)).HandleStatusChange(context.Background(), job, jobstore.StatusDone, jobstore.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("completion email panicked").Len())
}

func TestHandleStatusChange_NilMailSender(t *testing.T) {
	rec := &recorder{}
	h := NewStatusChangeHandler[*jobstore.Job](rec, nil, nil)
	job := &jobstore.Job{ID: 1, EmailNotification: true}

	require.NoError(t, h.HandleStatusChange(context.Background(), job, jobstore.StatusDone, jobstore.StatusActive))
	assert.Equal(t, []string{"save", "audit"}, rec.calls)
}

func TestHandleStatusChange_SaveFailure(t *testing.T) {
	saveErr := errors.New("database is locked")
	rec := &recorder{saveErr: saveErr}
	job := &jobstore.Job{ID: 9, EmailNotification: true}

	err := newHandler(rec, nil).HandleStatusChange(context.Background(), job, jobstore.StatusDone, jobstore.StatusActive)
	require.Error(t, err)
	assert.ErrorIs(t, err, saveErr)
	assert.Equal(t, []string{"save"}, rec.calls)
}

func TestHandleStatusChange_AuditFailure(t *testing.T) {
	audErr := errors.New("disk full")
	rec := &recorder{audErr: audErr}
	job := &jobstore.Job{ID: 9, EmailNotification: true}

	err := newHandler(rec, nil).HandleStatusChange(context.Background(), job, jobstore.StatusDone, jobstore.StatusActive)
	assert.ErrorIs(t, err, audErr)
	assert.Equal(t, []string{"save", "audit"}, rec.calls)
}

// A store-backed run checks the handler against the real persistence layer.
func TestHandleStatusChange_Store(t *testing.T) {
	ctx := context.Background()
	store, err := jobstore.Open(ctx, jobstore.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))

	series := &jobstore.Series{User: "user", Name: "seriesName"}
	require.NoError(t, store.CreateSeries(ctx, series))
	job := &jobstore.Job{SeriesID: series.ID, Name: "name", Status: jobstore.StatusActive, SubmitDate: "20110713_105730"}
	require.NoError(t, store.CreateJob(ctx, job))

	h := NewStatusChangeHandler[*jobstore.Job](store, nil, nil, WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, h.HandleStatusChange(ctx, job, jobstore.StatusDone, jobstore.StatusActive))

	got, err := store.GetJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusDone, got.Status)
	require.NotNil(t, got.ProcessDate)
	assert.True(t, fixedNow.Equal(*got.ProcessDate))

	trail, err := store.ListAuditTrail(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, jobstore.StatusActive, trail[0].FromStatus)
	assert.Equal(t, jobstore.StatusDone, trail[0].ToStatus)
	assert.Equal(t, AuditMessage, trail[0].Message)
}

// Package monitor reacts to job status transitions reported by the external
// job monitor.
package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Status labels the handler treats specially.
const (
	StatusUnsubmitted = "Unsubmitted"
	StatusDone        = "Done"
)

// AuditMessage is recorded with every handled transition.
const AuditMessage = "Job status updated."

// Job is the capability set the handler needs from a job.
type Job interface {
	JobID() int64
	SetStatus(status string)
	SetProcessDate(t time.Time)
	NotifyByEmail() bool
}

// JobManager persists jobs and their audit trail.
type JobManager[J Job] interface {
	SaveJob(ctx context.Context, job J) error
	CreateJobAuditTrail(ctx context.Context, oldStatus string, job J, message string) error
}

// MailSender delivers completion notifications.
type MailSender[J Job] interface {
	SendMail(ctx context.Context, job J) error
}

type options struct {
	now func() time.Time
}

// Option configures a StatusChangeHandler.
type Option func(*options)

// WithClock overrides the clock used for process dates.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// StatusChangeHandler records status transitions and sends completion
// emails.
type StatusChangeHandler[J Job] struct {
	jobs   JobManager[J]
	mail   MailSender[J]
	logger *zap.Logger
	now    func() time.Time
}

// NewStatusChangeHandler wires a handler. mail may be nil to disable
// notifications; a nil logger disables logging.
func NewStatusChangeHandler[J Job](jobs JobManager[J], mail MailSender[J], logger *zap.Logger, opts ...Option) *StatusChangeHandler[J] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusChangeHandler[J]{jobs: jobs, mail: mail, logger: logger, now: o.now}
}

// HandleStatusChange records the transition of job from oldStatus to
// newStatus. Transitions to Unsubmitted are ignored. Persistence errors are
// returned; notification errors are logged and swallowed.
func (h *StatusChangeHandler[J]) HandleStatusChange(ctx context.Context, job J, newStatus, oldStatus string) error {
	if newStatus == StatusUnsubmitted {
		return nil
	}

	id := job.JobID()
	job.SetProcessDate(h.now())
	job.SetStatus(newStatus)

	if err := h.jobs.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("save job %d: %w", id, err)
	}
	if err := h.jobs.CreateJobAuditTrail(ctx, oldStatus, job, AuditMessage); err != nil {
		return fmt.Errorf("audit job %d: %w", id, err)
	}

	h.logger.Info("job status updated",
		zap.Int64("job_id", id),
		zap.String("from", oldStatus),
		zap.String("to", newStatus),
	)

	if newStatus == StatusDone && job.NotifyByEmail() {
		h.notify(ctx, job, id)
	}
	return nil
}

// notify never fails the transition.
func (h *StatusChangeHandler[J]) notify(ctx context.Context, job J, id int64) {
	if h.mail == nil {
		h.logger.Debug("mail disabled, skipping completion email", zap.Int64("job_id", id))
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("completion email panicked", zap.Int64("job_id", id), zap.Any("panic", r))
		}
	}()
	if err := h.mail.SendMail(ctx, job); err != nil {
		h.logger.Warn("completion email failed", zap.Int64("job_id", id), zap.Error(err))
		return
	}
	h.logger.Debug("job completion email notification sent", zap.Int64("job_id", id))
}

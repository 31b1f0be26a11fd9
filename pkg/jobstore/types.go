// Package jobstore persists VGL jobs, job series, and the append-only job
// audit trail.
//
// The store is backed by database/sql. Local SQLite (modernc or libsql,
// depending on cgo) is the default; PostgreSQL is available through pgx.
package jobstore

import "time"

// Job status labels observed by the portal. The set is open-ended: the
// external job monitor may report any string.
const (
	StatusUnsubmitted = "Unsubmitted"
	StatusPending     = "Pending"
	StatusActive      = "Active"
	StatusDone        = "Done"
	StatusError       = "Error"
)

// SubmitDateLayout is the layout of Job.SubmitDate.
const SubmitDateLayout = "20060102_150405"

// Job is a unit of submitted compute work.
type Job struct {
	ID       int64
	SeriesID int64

	Name         string
	Description  string
	User         string
	EmailAddress string

	// EmailNotification requests a completion email when the job reaches Done.
	EmailNotification bool

	Status string

	// ProcessDate is set on every recorded status transition.
	ProcessDate *time.Time

	// SubmitDate is string encoded using SubmitDateLayout.
	SubmitDate string

	SelectionMaxEasting  float64
	SelectionMinEasting  float64
	SelectionMaxNorthing float64
	SelectionMinNorthing float64

	// OutputBucket and OutputBaseKey locate the job's outputs in object storage.
	OutputBucket  string
	OutputBaseKey string

	// RegisteredURL is set once, after the job's catalog record was accepted.
	RegisteredURL *string
}

// JobID returns the job identifier.
func (j *Job) JobID() int64 { return j.ID }

// SetStatus sets the job status label.
func (j *Job) SetStatus(status string) { j.Status = status }

// SetProcessDate records when the job was last processed.
func (j *Job) SetProcessDate(t time.Time) {
	t = t.UTC()
	j.ProcessDate = &t
}

// NotifyByEmail reports whether the owner asked for a completion email.
func (j *Job) NotifyByEmail() bool { return j.EmailNotification }

// IsRegistered reports whether a catalog record was already registered.
func (j *Job) IsRegistered() bool {
	return j.RegisteredURL != nil && *j.RegisteredURL != ""
}

// Series is a named grouping of related jobs.
type Series struct {
	ID          int64
	User        string
	Name        string
	Description string
}

// AuditTrailEntry records one observed status transition of a job.
type AuditTrailEntry struct {
	ID         int64
	JobID      int64
	FromStatus string
	ToStatus   string
	Message    string
	CreatedAt  time.Time
}

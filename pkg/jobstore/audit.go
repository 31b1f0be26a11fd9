package jobstore

import (
	"context"
	"fmt"
	"time"
)

// CreateJobAuditTrail appends an audit entry for a status transition of job.
//
// The entry records oldStatus and the job's current (post-update) status.
func (s *Store) CreateJobAuditTrail(ctx context.Context, oldStatus string, job *Job, message string) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}

	_, err := s.db.ExecContext(ctx,
		s.dialect.rebind(`INSERT INTO job_audit_log
		 (job_id, from_status, to_status, message, created_at)
		 VALUES (?, ?, ?, ?, ?)`),
		job.ID, oldStatus, job.Status, message, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("create job audit trail: %w", err)
	}
	return nil
}

// ListAuditTrail returns the audit entries of a job, oldest first.
func (s *Store) ListAuditTrail(ctx context.Context, jobID int64) ([]AuditTrailEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		s.dialect.rebind(`SELECT id, job_id, from_status, to_status, message, created_at
		 FROM job_audit_log
		 WHERE job_id = ?
		 ORDER BY id ASC`),
		jobID)
	if err != nil {
		return nil, fmt.Errorf("list job audit trail: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []AuditTrailEntry
	for rows.Next() {
		var (
			e         AuditTrailEntry
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.JobID, &e.FromStatus, &e.ToStatus, &e.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		e.CreatedAt = t
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list job audit trail: %w", err)
	}
	return entries, nil
}

package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const jobColumns = `id, series_id, name, description, user_name, email_address,
	email_notification, status, process_date, submit_date,
	selection_max_easting, selection_min_easting,
	selection_max_northing, selection_min_northing,
	output_bucket, output_base_key, registered_url`

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateSeries inserts a new series. A zero ID is assigned by the database.
func (s *Store) CreateSeries(ctx context.Context, series *Series) error {
	if series == nil {
		return fmt.Errorf("series is nil")
	}

	var (
		query = `INSERT INTO series (user_name, name, description) VALUES (?, ?, ?) RETURNING id`
		args  = []any{series.User, series.Name, series.Description}
	)
	if series.ID != 0 {
		query = `INSERT INTO series (id, user_name, name, description) VALUES (?, ?, ?, ?) RETURNING id`
		args = append([]any{series.ID}, args...)
	}

	if err := s.writeReturning(ctx, s.dialect.rebind(query), args, &series.ID); err != nil {
		return fmt.Errorf("create series: %w", err)
	}
	return nil
}

// GetSeriesByID returns the series with the given id, or ErrNotFound.
func (s *Store) GetSeriesByID(ctx context.Context, id int64) (*Series, error) {
	var series Series
	err := s.db.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT id, user_name, name, description FROM series WHERE id = ?`),
		id).Scan(&series.ID, &series.User, &series.Name, &series.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("series %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get series: %w", err)
	}
	return &series, nil
}

// CreateJob inserts a new job. A zero ID is assigned by the database.
func (s *Store) CreateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	if job.Status == "" {
		job.Status = StatusUnsubmitted
	}

	cols := `series_id, name, description, user_name, email_address,
		email_notification, status, process_date, submit_date,
		selection_max_easting, selection_min_easting,
		selection_max_northing, selection_min_northing,
		output_bucket, output_base_key, registered_url`
	marks := `?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?`
	args := []any{
		job.SeriesID, job.Name, job.Description, job.User, job.EmailAddress,
		boolToInt(job.EmailNotification), job.Status, formatNullTime(job.ProcessDate), job.SubmitDate,
		job.SelectionMaxEasting, job.SelectionMinEasting,
		job.SelectionMaxNorthing, job.SelectionMinNorthing,
		job.OutputBucket, job.OutputBaseKey, nullString(job.RegisteredURL),
	}
	if job.ID != 0 {
		cols = "id, " + cols
		marks = "?, " + marks
		args = append([]any{job.ID}, args...)
	}

	query := `INSERT INTO jobs (` + cols + `) VALUES (` + marks + `) RETURNING id`
	if err := s.writeReturning(ctx, s.dialect.rebind(query), args, &job.ID); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// GetJobByID returns the job with the given id, or ErrNotFound.
func (s *Store) GetJobByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`), id)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobsBySeries returns the jobs of a series ordered by id.
func (s *Store) ListJobsBySeries(ctx context.Context, seriesID int64) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx,
		s.dialect.rebind(`SELECT `+jobColumns+` FROM jobs WHERE series_id = ? ORDER BY id ASC`),
		seriesID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// SaveJob persists every mutable field of an existing job.
//
// The registered URL is write-once: a nil value never clears a stored URL,
// and replacing a stored URL with a different one fails with
// ErrAlreadyRegistered. On success job.RegisteredURL reflects the stored
// value.
func (s *Store) SaveJob(ctx context.Context, job *Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}

	url := nullString(job.RegisteredURL)
	query := `UPDATE jobs SET
			series_id = ?, name = ?, description = ?, user_name = ?, email_address = ?,
			email_notification = ?, status = ?, process_date = ?, submit_date = ?,
			selection_max_easting = ?, selection_min_easting = ?,
			selection_max_northing = ?, selection_min_northing = ?,
			output_bucket = ?, output_base_key = ?,
			registered_url = COALESCE(NULLIF(registered_url, ''), ?)
		WHERE id = ?
		  AND (CAST(? AS TEXT) IS NULL OR COALESCE(registered_url, '') = '' OR registered_url = ?)
		RETURNING registered_url`

	var stored sql.NullString
	err := s.writeReturning(ctx, s.dialect.rebind(query), []any{
		job.SeriesID, job.Name, job.Description, job.User, job.EmailAddress,
		boolToInt(job.EmailNotification), job.Status, formatNullTime(job.ProcessDate), job.SubmitDate,
		job.SelectionMaxEasting, job.SelectionMinEasting,
		job.SelectionMaxNorthing, job.SelectionMinNorthing,
		job.OutputBucket, job.OutputBaseKey,
		url, job.ID, url, url,
	}, &stored)

	if errors.Is(err, sql.ErrNoRows) {
		exists, existsErr := s.jobExists(ctx, job.ID)
		if existsErr != nil {
			return existsErr
		}
		if !exists {
			return fmt.Errorf("save job %d: %w", job.ID, ErrNotFound)
		}
		return fmt.Errorf("save job %d: %w", job.ID, ErrAlreadyRegistered)
	}
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}

	job.RegisteredURL = nil
	if stored.Valid && stored.String != "" {
		v := stored.String
		job.RegisteredURL = &v
	}
	return nil
}

func (s *Store) jobExists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT 1 FROM jobs WHERE id = ?`), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check job: %w", err)
	}
	return true, nil
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job          Job
		notify       int64
		processDate  sql.NullString
		registeredAt sql.NullString
	)
	err := row.Scan(
		&job.ID, &job.SeriesID, &job.Name, &job.Description, &job.User, &job.EmailAddress,
		&notify, &job.Status, &processDate, &job.SubmitDate,
		&job.SelectionMaxEasting, &job.SelectionMinEasting,
		&job.SelectionMaxNorthing, &job.SelectionMinNorthing,
		&job.OutputBucket, &job.OutputBaseKey, &registeredAt)
	if err != nil {
		return nil, err
	}

	job.EmailNotification = notify != 0
	if processDate.Valid && processDate.String != "" {
		t, err := time.Parse(time.RFC3339Nano, processDate.String)
		if err != nil {
			return nil, fmt.Errorf("parse process_date: %w", err)
		}
		job.ProcessDate = &t
	}
	if registeredAt.Valid && registeredAt.String != "" {
		v := registeredAt.String
		job.RegisteredURL = &v
	}
	return &job, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// nullString stores an empty URL as NULL.
func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// writeReturning runs a write with a RETURNING clause and steps its rows to
// completion before closing them.
func (s *Store) writeReturning(ctx context.Context, query string, args []any, dest ...any) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	if err := rows.Scan(dest...); err != nil {
		return err
	}
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return rows.Close()
}

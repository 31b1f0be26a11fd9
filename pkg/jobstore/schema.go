package jobstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const SchemaVersion = 1

var schemaStmts = []string{
	`CREATE TABLE IF NOT EXISTS schema_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		schema_version INTEGER NOT NULL
	);`,
	`INSERT INTO schema_meta (id, schema_version)
		VALUES (1, 0)
		ON CONFLICT(id) DO NOTHING;`,
	`UPDATE schema_meta SET schema_version = {{version}}
		WHERE id = 1 AND schema_version < {{version}};`,

	`CREATE TABLE IF NOT EXISTS series (
		id {{serial}},
		user_name TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	);`,
	`CREATE INDEX IF NOT EXISTS idx_series_user_name ON series(user_name);`,

	`CREATE TABLE IF NOT EXISTS jobs (
		id {{serial}},
		series_id {{bigint}} NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		user_name TEXT NOT NULL DEFAULT '',
		email_address TEXT NOT NULL DEFAULT '',
		email_notification INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		-- process_date is RFC3339 (UTC), NULL until the first recorded transition.
		process_date TEXT,
		-- submit_date keeps the portal encoding (yyyyMMdd_HHmmss).
		submit_date TEXT NOT NULL DEFAULT '',
		selection_max_easting {{double}} NOT NULL DEFAULT 0,
		selection_min_easting {{double}} NOT NULL DEFAULT 0,
		selection_max_northing {{double}} NOT NULL DEFAULT 0,
		selection_min_northing {{double}} NOT NULL DEFAULT 0,
		output_bucket TEXT NOT NULL DEFAULT '',
		output_base_key TEXT NOT NULL DEFAULT '',
		-- registered_url is written once and never replaced.
		registered_url TEXT,
		FOREIGN KEY(series_id) REFERENCES series(id)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_series_id ON jobs(series_id);`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);`,

	`CREATE TABLE IF NOT EXISTS job_audit_log (
		id {{serial}},
		job_id {{bigint}} NOT NULL,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at TEXT NOT NULL,
		FOREIGN KEY(job_id) REFERENCES jobs(id)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_job_audit_log_job_id ON job_audit_log(job_id);`,
}

func (d dialect) ddl(stmt string) string {
	var r *strings.Replacer
	switch d {
	case dialectPostgres:
		r = strings.NewReplacer(
			"{{serial}}", "BIGSERIAL PRIMARY KEY",
			"{{bigint}}", "BIGINT",
			"{{double}}", "DOUBLE PRECISION",
			"{{version}}", strconv.Itoa(SchemaVersion),
		)
	default:
		r = strings.NewReplacer(
			"{{serial}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
			"{{bigint}}", "INTEGER",
			"{{double}}", "REAL",
			"{{version}}", strconv.Itoa(SchemaVersion),
		)
	}
	return r.Replace(stmt)
}

// Migrate creates the job schema in-place. It only executes statements, so
// it can run on every open.
func (s *Store) Migrate(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("db is nil")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range schemaStmts {
		if _, err := tx.ExecContext(ctx, s.dialect.ddl(stmt)); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

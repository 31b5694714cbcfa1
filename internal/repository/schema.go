package repository

import (
	"context"

	"github.com/pesio-ai/be-timesheet-approvals/internal/database"
	"github.com/pesio-ai/be-timesheet-approvals/internal/errors"
)

// postgresSchema is applied in order by Migrate. Every statement is
// idempotent.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS timesheet_approvals (
		id                        TEXT PRIMARY KEY,
		seq                       BIGSERIAL NOT NULL,
		composite_key             TEXT NOT NULL,
		project_id                TEXT NOT NULL,
		project_name              TEXT NOT NULL,
		project_requires_approval BOOLEAN NOT NULL,
		approver_name             TEXT NOT NULL DEFAULT '',
		approver_email            TEXT NOT NULL,
		client_id                 TEXT NOT NULL,
		client_name               TEXT NOT NULL,
		user_id                   TEXT NOT NULL,
		submitter_email           TEXT NOT NULL DEFAULT '',
		period_start              DATE NOT NULL,
		period_end                DATE NOT NULL,
		total_hours               NUMERIC(12,2) NOT NULL,
		status                    TEXT NOT NULL
		                          CHECK (status IN ('pending', 'approved', 'rejected', 'withdrawn')),
		submitted_at              TIMESTAMPTZ NOT NULL,
		approved_at               TIMESTAMPTZ,
		rejected_at               TIMESTAMPTZ,
		withdrawn_at              TIMESTAMPTZ,
		rejection_reason          TEXT,
		updated_at                TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (period_end >= period_start)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_timesheet_approvals_key ON timesheet_approvals (composite_key, seq DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_timesheet_approvals_owner ON timesheet_approvals (project_id, user_id, period_start, period_end)`,
	`CREATE INDEX IF NOT EXISTS idx_timesheet_approvals_user ON timesheet_approvals (user_id, submitted_at DESC)`,
	// At most one live approval per key.
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_timesheet_approvals_active
		ON timesheet_approvals (composite_key)
		WHERE status IN ('pending', 'approved')`,

	`CREATE TABLE IF NOT EXISTS timesheet_approval_events (
		id            TEXT PRIMARY KEY,
		seq           BIGSERIAL NOT NULL,
		approval_id   TEXT NOT NULL REFERENCES timesheet_approvals (id),
		composite_key TEXT NOT NULL,
		action        TEXT NOT NULL,
		actor         TEXT NOT NULL DEFAULT '',
		status_before TEXT NOT NULL DEFAULT '',
		status_after  TEXT NOT NULL,
		performed_at  TIMESTAMPTZ NOT NULL,
		metadata      JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_timesheet_approval_events_approval ON timesheet_approval_events (approval_id, seq)`,

	`CREATE TABLE IF NOT EXISTS time_entries (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		client_id   TEXT NOT NULL,
		project_id  TEXT NOT NULL,
		task_id     TEXT NOT NULL DEFAULT '',
		entry_date  DATE NOT NULL,
		hours       NUMERIC(6,2) NOT NULL CHECK (hours >= 0),
		description TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_time_entries_owner ON time_entries (project_id, user_id, entry_date)`,
}

// Migrate creates the Postgres schema.
func Migrate(ctx context.Context, db *database.DB) error {
	for _, stmt := range postgresSchema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to apply schema")
		}
	}
	return nil
}

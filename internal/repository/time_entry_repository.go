package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-timesheet-approvals/internal/approval"
	"github.com/pesio-ai/be-timesheet-approvals/internal/database"
	"github.com/pesio-ai/be-timesheet-approvals/internal/errors"
)

const entryColumns = `id, user_id, client_id, project_id, task_id, entry_date, hours, description`

// TimeEntryRepository handles time entry persistence in Postgres. It does
// not enforce locking; callers go through the entry service.
type TimeEntryRepository struct {
	db *database.DB
}

// NewTimeEntryRepository creates a new time entry repository.
func NewTimeEntryRepository(db *database.DB) *TimeEntryRepository {
	return &TimeEntryRepository{db: db}
}

// FindEntries returns a user's entries on a project within period, by date.
func (r *TimeEntryRepository) FindEntries(ctx context.Context, projectID, userID string, period approval.Period) ([]approval.TimeEntry, error) {
	query := `SELECT ` + entryColumns + `
		FROM time_entries
		WHERE project_id = $1 AND user_id = $2
		  AND entry_date BETWEEN $3 AND $4
		ORDER BY entry_date ASC, created_at ASC`

	rows, err := r.db.Query(ctx, query, projectID, userID, approval.Day(period.Start), approval.Day(period.End))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list time entries")
	}
	defer rows.Close()

	var entries []approval.TimeEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read time entries")
	}
	return entries, nil
}

// GetByID retrieves one entry.
func (r *TimeEntryRepository) GetByID(ctx context.Context, id string) (*approval.TimeEntry, error) {
	e, err := scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM time_entries WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("time_entry", id)
	}
	return e, err
}

// Create inserts e, assigning an id when it has none.
func (r *TimeEntryRepository) Create(ctx context.Context, e *approval.TimeEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	query := `
		INSERT INTO time_entries (id, user_id, client_id, project_id, task_id, entry_date, hours, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		e.ID, e.UserID, e.ClientID, e.ProjectID, e.TaskID, approval.Day(e.Date), e.Hours, e.Description)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create time entry")
	}
	return nil
}

// Update overwrites every mutable field of e.
func (r *TimeEntryRepository) Update(ctx context.Context, e *approval.TimeEntry) error {
	query := `
		UPDATE time_entries
		SET client_id   = $2,
		    project_id  = $3,
		    task_id     = $4,
		    entry_date  = $5,
		    hours       = $6,
		    description = $7,
		    updated_at  = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		e.ID, e.ClientID, e.ProjectID, e.TaskID, approval.Day(e.Date), e.Hours, e.Description)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update time entry")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("time_entry", e.ID)
	}
	return nil
}

// Delete removes an entry.
func (r *TimeEntryRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM time_entries WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete time entry")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("time_entry", id)
	}
	return nil
}

type entryScanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc entryScanner) (*approval.TimeEntry, error) {
	e := &approval.TimeEntry{}
	err := sc.Scan(
		&e.ID,
		&e.UserID,
		&e.ClientID,
		&e.ProjectID,
		&e.TaskID,
		&e.Date,
		&e.Hours,
		&e.Description,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan time entry")
	}
	return e, nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pesio-ai/be-timesheet-approvals/internal/approval"
	"github.com/pesio-ai/be-timesheet-approvals/internal/database"
	"github.com/pesio-ai/be-timesheet-approvals/internal/errors"
)

const pgUniqueViolation = "23505"

const approvalColumns = `
	id, composite_key,
	project_id, project_name, project_requires_approval,
	approver_name, approver_email,
	client_id, client_name,
	user_id, submitter_email,
	period_start, period_end, total_hours,
	status, submitted_at,
	approved_at, rejected_at, withdrawn_at, rejection_reason`

// ApprovalRepository is the Postgres approval store. Creation takes a
// transaction-scoped advisory lock on the composite key, and the partial
// unique index on live records backs it up.
type ApprovalRepository struct {
	db    *database.DB
	audit *ApprovalAuditRepository
}

// NewApprovalRepository creates a new ApprovalRepository.
func NewApprovalRepository(db *database.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db, audit: NewApprovalAuditRepository(db)}
}

var _ approval.Store = (*ApprovalRepository)(nil)

// CreateIfEligible inserts a and its "submitted" event when the key's
// latest record is resubmittable.
func (r *ApprovalRepository) CreateIfEligible(ctx context.Context, a *approval.Approval) (*approval.Approval, error) {
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, a.CompositeKey); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to lock approval key")
		}

		latest, err := r.scanApproval(tx.QueryRow(ctx,
			`SELECT `+approvalColumns+` FROM timesheet_approvals WHERE composite_key = $1 ORDER BY seq DESC LIMIT 1`,
			a.CompositeKey))
		if err != nil && err != pgx.ErrNoRows {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to read latest approval")
		}
		if latest != nil && !latest.Status.Resubmittable() {
			return &approval.ConflictError{CompositeKey: a.CompositeKey, ApprovalID: latest.ID, Status: latest.Status}
		}

		query := `
			INSERT INTO timesheet_approvals
			    (id, composite_key,
			     project_id, project_name, project_requires_approval,
			     approver_name, approver_email,
			     client_id, client_name,
			     user_id, submitter_email,
			     period_start, period_end, total_hours,
			     status, submitted_at)
			VALUES ($1, $2,
			        $3, $4, $5,
			        $6, $7,
			        $8, $9,
			        $10, $11,
			        $12, $13, $14,
			        $15, $16)
		`
		_, err = tx.Exec(ctx, query,
			a.ID, a.CompositeKey,
			a.Project.ID, a.Project.Name, a.Project.RequiresApproval,
			a.Project.ApproverName, a.Project.ApproverEmail,
			a.Client.ID, a.Client.Name,
			a.UserID, a.SubmitterEmail,
			a.Period.Start, a.Period.End, a.TotalHours,
			string(a.Status), a.SubmittedAt,
		)
		if err != nil {
			return err
		}

		return r.audit.appendTx(ctx, tx, submittedEvent(a))
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, r.conflictFor(ctx, a.CompositeKey)
		}
		if approval.IsConflict(err) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval")
	}
	return a, nil
}

// Transition applies change iff the record's status is still expected.
func (r *ApprovalRepository) Transition(ctx context.Context, id string, expected approval.Status, change approval.Change) (*approval.Approval, error) {
	column, err := terminalColumn(change.Status)
	if err != nil {
		return nil, err
	}

	var updated *approval.Approval
	err = r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := fmt.Sprintf(`
			UPDATE timesheet_approvals
			SET status           = $3,
			    %s               = $4,
			    rejection_reason = $5,
			    updated_at       = NOW()
			WHERE id = $1 AND status = $2
			RETURNING `+approvalColumns, column)

		a, err := r.scanApproval(tx.QueryRow(ctx, query, id, string(expected), string(change.Status), change.At, change.Reason))
		if err == pgx.ErrNoRows {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM timesheet_approvals WHERE id = $1)`, id).Scan(&exists); err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to check approval")
			}
			if !exists {
				return approval.ErrNotFound
			}
			return approval.ErrInvalidTransition
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update approval")
		}
		updated = a

		return r.audit.appendTx(ctx, tx, transitionEvent(a, expected, change))
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// FindLatestByKey returns the newest record for key, or nil.
func (r *ApprovalRepository) FindLatestByKey(ctx context.Context, key string) (*approval.Approval, error) {
	a, err := r.scanApproval(r.db.QueryRow(ctx,
		`SELECT `+approvalColumns+` FROM timesheet_approvals WHERE composite_key = $1 ORDER BY seq DESC LIMIT 1`, key))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to find approval by key")
	}
	return a, nil
}

// FindByID retrieves a record by its primary key.
func (r *ApprovalRepository) FindByID(ctx context.Context, id string) (*approval.Approval, error) {
	a, err := r.scanApproval(r.db.QueryRow(ctx,
		`SELECT `+approvalColumns+` FROM timesheet_approvals WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, approval.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval")
	}
	return a, nil
}

// FindByUser returns a user's records, newest first.
func (r *ApprovalRepository) FindByUser(ctx context.Context, userID string) ([]*approval.Approval, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+approvalColumns+` FROM timesheet_approvals WHERE user_id = $1 ORDER BY seq DESC`, userID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approvals")
	}
	defer rows.Close()
	return r.scanApprovals(rows)
}

// FindCovering returns the records of (projectID, userID) whose period
// overlaps [from, to], oldest first.
func (r *ApprovalRepository) FindCovering(ctx context.Context, projectID, userID string, from, to time.Time) ([]*approval.Approval, error) {
	query := `SELECT ` + approvalColumns + `
		FROM timesheet_approvals
		WHERE project_id = $1
		  AND user_id = $2
		  AND period_start <= $4
		  AND period_end >= $3
		ORDER BY seq ASC`

	rows, err := r.db.Query(ctx, query, projectID, userID, approval.Day(from), approval.Day(to))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to find covering approvals")
	}
	defer rows.Close()
	return r.scanApprovals(rows)
}

// History returns the audit trail of one record.
func (r *ApprovalRepository) History(ctx context.Context, approvalID string) ([]*approval.Event, error) {
	return r.audit.GetByApprovalID(ctx, approvalID)
}

func (r *ApprovalRepository) conflictFor(ctx context.Context, key string) error {
	latest, err := r.FindLatestByKey(ctx, key)
	if err != nil {
		return err
	}
	c := &approval.ConflictError{CompositeKey: key, Status: approval.StatusPending}
	if latest != nil {
		c.ApprovalID = latest.ID
		c.Status = latest.Status
	}
	return c
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func terminalColumn(status approval.Status) (string, error) {
	switch status {
	case approval.StatusApproved:
		return "approved_at", nil
	case approval.StatusRejected:
		return "rejected_at", nil
	case approval.StatusWithdrawn:
		return "withdrawn_at", nil
	}
	return "", errors.InvalidInput("status", fmt.Sprintf("%q is not a terminal status", status))
}

func submittedEvent(a *approval.Approval) *approval.Event {
	return &approval.Event{
		ApprovalID:   a.ID,
		CompositeKey: a.CompositeKey,
		Action:       "submitted",
		Actor:        a.UserID,
		StatusAfter:  approval.StatusPending,
		PerformedAt:  a.SubmittedAt,
		Metadata: map[string]any{
			"period":      a.Period.String(),
			"total_hours": a.TotalHours.String(),
		},
	}
}

func transitionEvent(a *approval.Approval, before approval.Status, change approval.Change) *approval.Event {
	e := &approval.Event{
		ApprovalID:   a.ID,
		CompositeKey: a.CompositeKey,
		Action:       change.Action(),
		Actor:        change.Actor,
		StatusBefore: before,
		StatusAfter:  change.Status,
		PerformedAt:  change.At,
	}
	if change.Reason != nil {
		e.Metadata = map[string]any{"reason": *change.Reason}
	}
	return e
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type approvalScanner interface {
	Scan(dest ...any) error
}

func (r *ApprovalRepository) scanApproval(row approvalScanner) (*approval.Approval, error) {
	a := &approval.Approval{}
	var status string
	err := row.Scan(
		&a.ID,
		&a.CompositeKey,
		&a.Project.ID,
		&a.Project.Name,
		&a.Project.RequiresApproval,
		&a.Project.ApproverName,
		&a.Project.ApproverEmail,
		&a.Client.ID,
		&a.Client.Name,
		&a.UserID,
		&a.SubmitterEmail,
		&a.Period.Start,
		&a.Period.End,
		&a.TotalHours,
		&status,
		&a.SubmittedAt,
		&a.ApprovedAt,
		&a.RejectedAt,
		&a.WithdrawnAt,
		&a.RejectionReason,
	)
	if err != nil {
		return nil, err
	}
	a.Status = approval.Status(status)
	return a, nil
}

func (r *ApprovalRepository) scanApprovals(rows pgx.Rows) ([]*approval.Approval, error) {
	var out []*approval.Approval
	for rows.Next() {
		a, err := r.scanApproval(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read approvals")
	}
	return out, nil
}

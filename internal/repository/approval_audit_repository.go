package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-timesheet-approvals/internal/approval"
	"github.com/pesio-ai/be-timesheet-approvals/internal/database"
	"github.com/pesio-ai/be-timesheet-approvals/internal/errors"
)

// ApprovalAuditRepository appends and reads the immutable approval event
// log. Appends only happen inside the transaction that changes the record.
type ApprovalAuditRepository struct {
	db *database.DB
}

// NewApprovalAuditRepository creates a new ApprovalAuditRepository.
func NewApprovalAuditRepository(db *database.DB) *ApprovalAuditRepository {
	return &ApprovalAuditRepository{db: db}
}

// appendTx inserts one event within tx.
func (r *ApprovalAuditRepository) appendTx(ctx context.Context, tx pgx.Tx, entry *approval.Event) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	query := `
		INSERT INTO timesheet_approval_events
		    (id, approval_id, composite_key,
		     action, actor,
		     status_before, status_after,
		     performed_at, metadata)
		VALUES ($1, $2, $3,
		        $4, $5,
		        $6, $7,
		        $8, $9)
	`

	_, err := tx.Exec(ctx, query,
		entry.ID,
		entry.ApprovalID,
		entry.CompositeKey,
		entry.Action,
		entry.Actor,
		string(entry.StatusBefore),
		string(entry.StatusAfter),
		entry.PerformedAt,
		metadataJSON,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append audit entry")
	}
	return nil
}

// GetByApprovalID returns the trail for one approval, oldest first.
func (r *ApprovalAuditRepository) GetByApprovalID(ctx context.Context, approvalID string) ([]*approval.Event, error) {
	query := `
		SELECT id, approval_id, composite_key,
		       action, actor,
		       status_before, status_after,
		       performed_at, metadata
		FROM timesheet_approval_events
		WHERE approval_id = $1
		ORDER BY seq ASC
	`

	rows, err := r.db.Query(ctx, query, approvalID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit log")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *ApprovalAuditRepository) scanRows(rows pgx.Rows) ([]*approval.Event, error) {
	var entries []*approval.Event
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read audit log")
	}
	return entries, nil
}

type auditScanner interface {
	Scan(dest ...any) error
}

func (r *ApprovalAuditRepository) scanEntry(sc auditScanner) (*approval.Event, error) {
	entry := &approval.Event{}
	var before, after string
	var metadataJSON []byte

	err := sc.Scan(
		&entry.ID,
		&entry.ApprovalID,
		&entry.CompositeKey,
		&entry.Action,
		&entry.Actor,
		&before,
		&after,
		&entry.PerformedAt,
		&metadataJSON,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
	}
	entry.StatusBefore = approval.Status(before)
	entry.StatusAfter = approval.Status(after)

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
		}
	}

	return entry, nil
}

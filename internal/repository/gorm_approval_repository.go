package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pesio-ai/be-timesheet-approvals/internal/approval"
	"github.com/pesio-ai/be-timesheet-approvals/internal/errors"
)

// GormApprovalRepository is the embedded SQLite approval store. It relies
// on the single-connection pool from database.OpenSQLite to serialise
// transactions, and carries the same partial unique index as Postgres.
type GormApprovalRepository struct {
	db *gorm.DB
}

// NewGormApprovalRepository migrates the approval tables and returns the store.
func NewGormApprovalRepository(db *gorm.DB) (*GormApprovalRepository, error) {
	if err := db.AutoMigrate(&approvalRow{}, &approvalEventRow{}); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to migrate approval tables")
	}
	err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_timesheet_approvals_active
		ON timesheet_approvals (composite_key)
		WHERE status IN ('pending', 'approved')`).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create active approval index")
	}
	return &GormApprovalRepository{db: db}, nil
}

var _ approval.Store = (*GormApprovalRepository)(nil)

func (r *GormApprovalRepository) CreateIfEligible(ctx context.Context, a *approval.Approval) (*approval.Approval, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		latest, err := latestByKey(tx, a.CompositeKey)
		if err != nil {
			return err
		}
		if latest != nil && !approval.Status(latest.Status).Resubmittable() {
			return &approval.ConflictError{CompositeKey: a.CompositeKey, ApprovalID: latest.ID, Status: approval.Status(latest.Status)}
		}

		if err := tx.Create(newApprovalRow(a)).Error; err != nil {
			return err
		}
		return appendEvent(tx, submittedEvent(a))
	})
	switch {
	case err == nil:
		return a, nil
	case approval.IsConflict(err):
		return nil, err
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return nil, r.conflictFor(ctx, a.CompositeKey)
	default:
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval")
	}
}

func (r *GormApprovalRepository) Transition(ctx context.Context, id string, expected approval.Status, change approval.Change) (*approval.Approval, error) {
	column, err := terminalColumn(change.Status)
	if err != nil {
		return nil, err
	}

	var updated *approval.Approval
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&approvalRow{}).
			Where("id = ? AND status = ?", id, string(expected)).
			Updates(map[string]any{
				"status":           string(change.Status),
				column:             change.At,
				"rejection_reason": change.Reason,
				"updated_at":       time.Now().UTC(),
			})
		if res.Error != nil {
			return errors.Wrap(res.Error, errors.ErrCodeInternal, "failed to update approval")
		}

		var row approvalRow
		if err := tx.Where("id = ?", id).Take(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return approval.ErrNotFound
			}
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to reload approval")
		}
		if res.RowsAffected == 0 {
			return approval.ErrInvalidTransition
		}
		updated = row.toApproval()

		return appendEvent(tx, transitionEvent(updated, expected, change))
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *GormApprovalRepository) FindLatestByKey(ctx context.Context, key string) (*approval.Approval, error) {
	row, err := latestByKey(r.db.WithContext(ctx), key)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to find approval by key")
	}
	if row == nil {
		return nil, nil
	}
	return row.toApproval(), nil
}

func (r *GormApprovalRepository) FindByID(ctx context.Context, id string) (*approval.Approval, error) {
	var row approvalRow
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, approval.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval")
	}
	return row.toApproval(), nil
}

func (r *GormApprovalRepository) FindByUser(ctx context.Context, userID string) ([]*approval.Approval, error) {
	var rows []approvalRow
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("rowid DESC").Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approvals")
	}
	return toApprovals(rows), nil
}

func (r *GormApprovalRepository) FindCovering(ctx context.Context, projectID, userID string, from, to time.Time) ([]*approval.Approval, error) {
	var rows []approvalRow
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ? AND period_start <= ? AND period_end >= ?",
			projectID, userID, approval.Day(to), approval.Day(from)).
		Order("rowid ASC").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to find covering approvals")
	}
	return toApprovals(rows), nil
}

func (r *GormApprovalRepository) History(ctx context.Context, approvalID string) ([]*approval.Event, error) {
	var rows []approvalEventRow
	err := r.db.WithContext(ctx).Where("approval_id = ?", approvalID).Order("rowid ASC").Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit log")
	}
	events := make([]*approval.Event, 0, len(rows))
	for i := range rows {
		e, err := rows[i].toEvent()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
		}
		events = append(events, e)
	}
	return events, nil
}

func (r *GormApprovalRepository) conflictFor(ctx context.Context, key string) error {
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

func latestByKey(db *gorm.DB, key string) (*approvalRow, error) {
	var row approvalRow
	err := db.Where("composite_key = ?", key).Order("rowid DESC").Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func appendEvent(tx *gorm.DB, e *approval.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	row, err := newEventRow(e)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
	}
	if err := tx.Create(row).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append audit entry")
	}
	return nil
}

func toApprovals(rows []approvalRow) []*approval.Approval {
	out := make([]*approval.Approval, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toApproval())
	}
	return out
}

package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pesio-ai/be-timesheet-approvals/internal/approval"
	"github.com/pesio-ai/be-timesheet-approvals/internal/errors"
)

// GormTimeEntryRepository is the SQLite counterpart of TimeEntryRepository.
type GormTimeEntryRepository struct {
	db *gorm.DB
}

func NewGormTimeEntryRepository(db *gorm.DB) (*GormTimeEntryRepository, error) {
	if err := db.AutoMigrate(&entryRow{}); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to migrate time entries")
	}
	return &GormTimeEntryRepository{db: db}, nil
}

func (r *GormTimeEntryRepository) FindEntries(ctx context.Context, projectID, userID string, period approval.Period) ([]approval.TimeEntry, error) {
	var rows []entryRow
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ? AND entry_date >= ? AND entry_date <= ?",
			projectID, userID, approval.Day(period.Start), approval.Day(period.End)).
		Order("entry_date ASC").Order("rowid ASC").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list time entries")
	}
	entries := make([]approval.TimeEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, rows[i].toEntry())
	}
	return entries, nil
}

func (r *GormTimeEntryRepository) GetByID(ctx context.Context, id string) (*approval.TimeEntry, error) {
	var row entryRow
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.NotFound("time_entry", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get time entry")
	}
	e := row.toEntry()
	return &e, nil
}

func (r *GormTimeEntryRepository) Create(ctx context.Context, e *approval.TimeEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(newEntryRow(e)).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create time entry")
	}
	return nil
}

func (r *GormTimeEntryRepository) Update(ctx context.Context, e *approval.TimeEntry) error {
	res := r.db.WithContext(ctx).Model(&entryRow{}).Where("id = ?", e.ID).Updates(map[string]any{
		"client_id":   e.ClientID,
		"project_id":  e.ProjectID,
		"task_id":     e.TaskID,
		"entry_date":  approval.Day(e.Date),
		"hours":       e.Hours,
		"description": e.Description,
	})
	if res.Error != nil {
		return errors.Wrap(res.Error, errors.ErrCodeInternal, "failed to update time entry")
	}
	if res.RowsAffected == 0 {
		return errors.NotFound("time_entry", e.ID)
	}
	return nil
}

func (r *GormTimeEntryRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&entryRow{})
	if res.Error != nil {
		return errors.Wrap(res.Error, errors.ErrCodeInternal, "failed to delete time entry")
	}
	if res.RowsAffected == 0 {
		return errors.NotFound("time_entry", id)
	}
	return nil
}

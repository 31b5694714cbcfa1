package repository

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-timesheet-approvals/internal/approval"
)

// Row models for the embedded SQLite store. Table and column names match
// the Postgres schema.

type approvalRow struct {
	ID                      string          `gorm:"primaryKey;type:varchar(36)"`
	CompositeKey            string          `gorm:"not null;index:idx_timesheet_approvals_key"`
	ProjectID               string          `gorm:"not null;index:idx_timesheet_approvals_owner,priority:1"`
	ProjectName             string          `gorm:"not null"`
	ProjectRequiresApproval bool            `gorm:"not null"`
	ApproverName            string          `gorm:"not null;default:''"`
	ApproverEmail           string          `gorm:"not null"`
	ClientID                string          `gorm:"not null"`
	ClientName              string          `gorm:"not null"`
	UserID                  string          `gorm:"not null;index:idx_timesheet_approvals_owner,priority:2;index:idx_timesheet_approvals_user"`
	SubmitterEmail          string          `gorm:"not null;default:''"`
	PeriodStart             time.Time       `gorm:"type:date;not null"`
	PeriodEnd               time.Time       `gorm:"type:date;not null"`
	TotalHours              decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Status                  string          `gorm:"type:varchar(16);not null"`
	SubmittedAt             time.Time       `gorm:"not null"`
	ApprovedAt              *time.Time
	RejectedAt              *time.Time
	WithdrawnAt             *time.Time
	RejectionReason         *string
	UpdatedAt               time.Time `gorm:"autoUpdateTime"`
}

func (approvalRow) TableName() string { return "timesheet_approvals" }

func newApprovalRow(a *approval.Approval) *approvalRow {
	return &approvalRow{
		ID:                      a.ID,
		CompositeKey:            a.CompositeKey,
		ProjectID:               a.Project.ID,
		ProjectName:             a.Project.Name,
		ProjectRequiresApproval: a.Project.RequiresApproval,
		ApproverName:            a.Project.ApproverName,
		ApproverEmail:           a.Project.ApproverEmail,
		ClientID:                a.Client.ID,
		ClientName:              a.Client.Name,
		UserID:                  a.UserID,
		SubmitterEmail:          a.SubmitterEmail,
		PeriodStart:             a.Period.Start,
		PeriodEnd:               a.Period.End,
		TotalHours:              a.TotalHours,
		Status:                  string(a.Status),
		SubmittedAt:             a.SubmittedAt,
		ApprovedAt:              a.ApprovedAt,
		RejectedAt:              a.RejectedAt,
		WithdrawnAt:             a.WithdrawnAt,
		RejectionReason:         a.RejectionReason,
	}
}

func (r *approvalRow) toApproval() *approval.Approval {
	return &approval.Approval{
		ID:           r.ID,
		CompositeKey: r.CompositeKey,
		Project: approval.ProjectSnapshot{
			ID:               r.ProjectID,
			Name:             r.ProjectName,
			RequiresApproval: r.ProjectRequiresApproval,
			ApproverName:     r.ApproverName,
			ApproverEmail:    r.ApproverEmail,
		},
		Client:          approval.ClientSnapshot{ID: r.ClientID, Name: r.ClientName},
		UserID:          r.UserID,
		SubmitterEmail:  r.SubmitterEmail,
		Period:          approval.NewPeriod(r.PeriodStart, r.PeriodEnd),
		TotalHours:      r.TotalHours,
		Status:          approval.Status(r.Status),
		SubmittedAt:     r.SubmittedAt.UTC(),
		ApprovedAt:      utcPtr(r.ApprovedAt),
		RejectedAt:      utcPtr(r.RejectedAt),
		WithdrawnAt:     utcPtr(r.WithdrawnAt),
		RejectionReason: r.RejectionReason,
	}
}

type approvalEventRow struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)"`
	ApprovalID   string    `gorm:"not null;index:idx_timesheet_approval_events_approval"`
	CompositeKey string    `gorm:"not null"`
	Action       string    `gorm:"not null"`
	Actor        string    `gorm:"not null;default:''"`
	StatusBefore string    `gorm:"not null;default:''"`
	StatusAfter  string    `gorm:"not null"`
	PerformedAt  time.Time `gorm:"not null"`
	Metadata     string
}

func (approvalEventRow) TableName() string { return "timesheet_approval_events" }

func newEventRow(e *approval.Event) (*approvalEventRow, error) {
	row := &approvalEventRow{
		ID:           e.ID,
		ApprovalID:   e.ApprovalID,
		CompositeKey: e.CompositeKey,
		Action:       e.Action,
		Actor:        e.Actor,
		StatusBefore: string(e.StatusBefore),
		StatusAfter:  string(e.StatusAfter),
		PerformedAt:  e.PerformedAt,
	}
	if e.Metadata != nil {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, err
		}
		row.Metadata = string(raw)
	}
	return row, nil
}

func (r *approvalEventRow) toEvent() (*approval.Event, error) {
	e := &approval.Event{
		ID:           r.ID,
		ApprovalID:   r.ApprovalID,
		CompositeKey: r.CompositeKey,
		Action:       r.Action,
		Actor:        r.Actor,
		StatusBefore: approval.Status(r.StatusBefore),
		StatusAfter:  approval.Status(r.StatusAfter),
		PerformedAt:  r.PerformedAt.UTC(),
	}
	if r.Metadata != "" {
		if err := json.Unmarshal([]byte(r.Metadata), &e.Metadata); err != nil {
			return nil, err
		}
	}
	return e, nil
}

type entryRow struct {
	ID          string          `gorm:"primaryKey;type:varchar(36)"`
	UserID      string          `gorm:"not null;index:idx_time_entries_owner,priority:2"`
	ClientID    string          `gorm:"not null"`
	ProjectID   string          `gorm:"not null;index:idx_time_entries_owner,priority:1"`
	TaskID      string          `gorm:"not null;default:''"`
	Date        time.Time       `gorm:"column:entry_date;type:date;not null;index:idx_time_entries_owner,priority:3"`
	Hours       decimal.Decimal `gorm:"type:decimal(6,2);not null"`
	Description string          `gorm:"not null;default:''"`
	CreatedAt   time.Time       `gorm:"autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime"`
}

func (entryRow) TableName() string { return "time_entries" }

func newEntryRow(e *approval.TimeEntry) *entryRow {
	return &entryRow{
		ID:          e.ID,
		UserID:      e.UserID,
		ClientID:    e.ClientID,
		ProjectID:   e.ProjectID,
		TaskID:      e.TaskID,
		Date:        approval.Day(e.Date),
		Hours:       e.Hours,
		Description: e.Description,
	}
}

func (r *entryRow) toEntry() approval.TimeEntry {
	return approval.TimeEntry{
		ID:          r.ID,
		UserID:      r.UserID,
		ClientID:    r.ClientID,
		ProjectID:   r.ProjectID,
		TaskID:      r.TaskID,
		Date:        approval.Day(r.Date),
		Hours:       r.Hours,
		Description: r.Description,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-timesheet-approvals/internal/approval"
	"github.com/pesio-ai/be-timesheet-approvals/internal/errors"
	"github.com/pesio-ai/be-timesheet-approvals/internal/logger"
)

// maxHoursPerEntry caps a single entry at one calendar day.
var maxHoursPerEntry = decimal.NewFromInt(24)

const hoursScale = 2

// CoveringFinder loads the approval records that may lock a date range.
type CoveringFinder interface {
	FindCovering(ctx context.Context, projectID, userID string, from, to time.Time) ([]*approval.Approval, error)
}

// TimeEntryService guards entry mutations with the locking policy.
type TimeEntryService struct {
	entries   EntryStore
	approvals CoveringFinder
	guard     *approval.Guard
	log       *logger.Logger
}

// NewTimeEntryService creates a new time entry service
// guard must be the one given to the ApprovalService so that a submission
// and an entry write for the same project and user never interleave.
func NewTimeEntryService(entries EntryStore, approvals CoveringFinder, guard *approval.Guard, log *logger.Logger) *TimeEntryService {
	return &TimeEntryService{
		entries:   entries,
		approvals: approvals,
		guard:     guard,
		log:       log.Component("time_entry_service"),
	}
}

// EntryLock is one row of a lock listing.
type EntryLock struct {
	Entry      approval.TimeEntry `json:"entry"`
	Locked     bool               `json:"locked"`
	ApprovalID string             `json:"approval_id,omitempty"`
	Status     approval.Status    `json:"status,omitempty"`
}

// CreateEntry records new time. An entry dated inside a pending or approved
// period is refused the same way an edit would be.
func (s *TimeEntryService) CreateEntry(ctx context.Context, e *approval.TimeEntry) error {
	if err := validateEntry(e); err != nil {
		return err
	}
	e.Date = approval.Day(e.Date)

	unlock := s.guard.Lock(approval.Pair(e.ProjectID, e.UserID))
	defer unlock()

	if err := s.ensureUnlocked(ctx, e.ProjectID, e.UserID, e.Date); err != nil {
		return err
	}
	if err := s.entries.Create(ctx, e); err != nil {
		return err
	}

	s.log.Debug().
		Str("entry_id", e.ID).
		Str("project_id", e.ProjectID).
		Str("date", e.Date.Format(approval.DateLayout)).
		Msg("Time entry created")
	return nil
}

// UpdateEntry overwrites an entry owned by userID. Both the entry's current
// position and the one it moves to must be unlocked.
func (s *TimeEntryService) UpdateEntry(ctx context.Context, userID string, e *approval.TimeEntry) error {
	current, err := s.owned(ctx, userID, e.ID)
	if err != nil {
		return err
	}
	e.UserID = current.UserID
	if err := validateEntry(e); err != nil {
		return err
	}
	e.Date = approval.Day(e.Date)

	unlock := s.guard.Lock(approval.Pair(current.ProjectID, current.UserID), approval.Pair(e.ProjectID, e.UserID))
	defer unlock()

	if err := s.ensureUnlocked(ctx, current.ProjectID, current.UserID, current.Date); err != nil {
		return err
	}
	if e.ProjectID != current.ProjectID || !e.Date.Equal(current.Date) {
		if err := s.ensureUnlocked(ctx, e.ProjectID, e.UserID, e.Date); err != nil {
			return err
		}
	}

	return s.entries.Update(ctx, e)
}

// DeleteEntry removes an unlocked entry owned by userID.
func (s *TimeEntryService) DeleteEntry(ctx context.Context, userID, entryID string) error {
	current, err := s.owned(ctx, userID, entryID)
	if err != nil {
		return err
	}
	unlock := s.guard.Lock(approval.Pair(current.ProjectID, current.UserID))
	defer unlock()

	if err := s.ensureUnlocked(ctx, current.ProjectID, current.UserID, current.Date); err != nil {
		return err
	}
	return s.entries.Delete(ctx, entryID)
}

// LockStatus lists a user's entries on a project between from and to with
// their lock state, using one approval query for the whole range.
func (s *TimeEntryService) LockStatus(ctx context.Context, projectID, userID string, from, to time.Time) ([]EntryLock, error) {
	period := approval.NewPeriod(from, to)
	if err := period.Validate(); err != nil {
		return nil, err
	}

	entries, err := s.entries.FindEntries(ctx, projectID, userID, period)
	if err != nil {
		return nil, err
	}
	records, err := s.approvals.FindCovering(ctx, projectID, userID, period.Start, period.End)
	if err != nil {
		return nil, err
	}
	locks := approval.NewLockSet(records)

	out := make([]EntryLock, 0, len(entries))
	for _, e := range entries {
		row := EntryLock{Entry: e}
		if a := locks.LockedBy(e.ProjectID, e.UserID, e.Date); a != nil {
			row.Locked = true
			row.ApprovalID = a.ID
			row.Status = a.Status
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *TimeEntryService) owned(ctx context.Context, userID, entryID string) (*approval.TimeEntry, error) {
	if entryID == "" {
		return nil, errors.InvalidInput("id", "entry id is required")
	}
	current, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if current.UserID != userID {
		return nil, errors.New(errors.ErrCodeForbidden, "time entry belongs to another user")
	}
	return current, nil
}

func (s *TimeEntryService) ensureUnlocked(ctx context.Context, projectID, userID string, date time.Time) error {
	records, err := s.approvals.FindCovering(ctx, projectID, userID, date, date)
	if err != nil {
		return err
	}
	if a := approval.NewLockSet(records).LockedBy(projectID, userID, date); a != nil {
		s.log.Info().
			Str("project_id", projectID).
			Str("user_id", userID).
			Str("date", date.Format(approval.DateLayout)).
			Str("approval_id", a.ID).
			Str("status", string(a.Status)).
			Msg("Entry mutation refused: period locked")
		return approval.ErrEntryLocked
	}
	return nil
}

func validateEntry(e *approval.TimeEntry) error {
	if err := approval.ValidateIdentifier("project_id", e.ProjectID); err != nil {
		return err
	}
	if err := approval.ValidateIdentifier("user_id", e.UserID); err != nil {
		return err
	}
	if strings.TrimSpace(e.ClientID) == "" {
		return errors.InvalidInput("client_id", "client_id is required")
	}
	if e.Date.IsZero() {
		return errors.InvalidInput("date", "date is required")
	}
	if e.Hours.IsNegative() {
		return errors.InvalidInput("hours", "hours must not be negative")
	}
	if e.Hours.GreaterThan(maxHoursPerEntry) {
		return errors.InvalidInput("hours", "hours must not exceed 24")
	}
	// Matches the NUMERIC(6,2) column.
	if !e.Hours.Equal(e.Hours.Round(hoursScale)) {
		return errors.InvalidInput("hours", "hours allow at most two decimal places")
	}
	return nil
}

package approval

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-timesheet-approvals/internal/callbacktoken"
	"github.com/pesio-ai/be-timesheet-approvals/internal/clock"
	"github.com/pesio-ai/be-timesheet-approvals/internal/errors"
)

// Store persists approval records. Implementations must make
// CreateIfEligible and Transition atomic with respect to concurrent callers.
type Store interface {
	// CreateIfEligible inserts a when the latest record for a.CompositeKey is
	// absent, rejected or withdrawn, and returns *ConflictError otherwise.
	CreateIfEligible(ctx context.Context, a *Approval) (*Approval, error)
	// Transition applies change to the record only if its status is still
	// expected. Returns ErrInvalidTransition when it is not and ErrNotFound
	// for unknown ids.
	Transition(ctx context.Context, id string, expected Status, change Change) (*Approval, error)
	// FindLatestByKey returns the most recently created record for key, or
	// nil when none exists.
	FindLatestByKey(ctx context.Context, key string) (*Approval, error)
	FindByID(ctx context.Context, id string) (*Approval, error)
	FindByUser(ctx context.Context, userID string) ([]*Approval, error)
	// FindCovering returns every record of (projectID, userID) whose period
	// overlaps [from, to].
	FindCovering(ctx context.Context, projectID, userID string, from, to time.Time) ([]*Approval, error)
	History(ctx context.Context, approvalID string) ([]*Event, error)
}

// Verifier checks callback tokens.
type Verifier interface {
	Verify(token, approvalID string, action callbacktoken.Action) error
}

// SubmitInput carries everything frozen into a new record.
type SubmitInput struct {
	Project        ProjectSnapshot
	Client         ClientSnapshot
	Period         Period
	Entries        []TimeEntry
	UserID         string
	SubmitterEmail string
}

// Machine drives approval records through their lifecycle. It performs at
// most one store write per call and has no other side effects.
type Machine struct {
	store  Store
	tokens Verifier
	clock  clock.Clock
	newID  func() string
}

// NewMachine creates a state machine.
func NewMachine(store Store, tokens Verifier, clk clock.Clock) *Machine {
	return &Machine{
		store:  store,
		tokens: tokens,
		clock:  clk,
		newID:  uuid.NewString,
	}
}

// Submit creates a pending record for the input's key. The caller decides
// whether the project requires approval at all.
func (m *Machine) Submit(ctx context.Context, in SubmitInput) (*Approval, error) {
	if err := ValidateIdentifier("project.id", in.Project.ID); err != nil {
		return nil, err
	}
	if err := ValidateIdentifier("user_id", in.UserID); err != nil {
		return nil, err
	}
	if err := in.Period.Validate(); err != nil {
		return nil, err
	}
	period := NewPeriod(in.Period.Start, in.Period.End)

	total, err := totalHours(in, period)
	if err != nil {
		return nil, err
	}

	a := &Approval{
		ID:             m.newID(),
		CompositeKey:   KeyFor(in.Project.ID, period, in.UserID),
		Project:        in.Project,
		Client:         in.Client,
		UserID:         in.UserID,
		SubmitterEmail: in.SubmitterEmail,
		Period:         period,
		TotalHours:     total,
		Status:         StatusPending,
		SubmittedAt:    m.clock.Now().UTC(),
	}
	return m.store.CreateIfEligible(ctx, a)
}

func totalHours(in SubmitInput, period Period) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, e := range in.Entries {
		if e.Hours.IsNegative() {
			return decimal.Zero, errors.InvalidInput("entries.hours", "hours must not be negative")
		}
		if e.ProjectID != in.Project.ID || e.UserID != in.UserID {
			return decimal.Zero, errors.InvalidInput("entries", "entry "+e.ID+" belongs to another project or user")
		}
		if !period.Contains(e.Date) {
			return decimal.Zero, errors.InvalidInput("entries", "entry "+e.ID+" lies outside the period")
		}
		total = total.Add(e.Hours)
	}
	return total, nil
}

// Approve moves a pending record to approved. A record that is no longer
// pending yields ErrInvalidTransition whatever the token.
func (m *Machine) Approve(ctx context.Context, approvalID, token string) (*Approval, error) {
	a, err := m.pendingForLink(ctx, approvalID, token, callbacktoken.ActionApprove)
	if err != nil {
		return nil, err
	}
	return m.store.Transition(ctx, approvalID, StatusPending, Change{
		Status: StatusApproved,
		At:     m.clock.Now().UTC(),
		Actor:  a.Project.ApproverEmail,
	})
}

// Reject moves a pending record to rejected with a mandatory reason.
func (m *Machine) Reject(ctx context.Context, approvalID, token, reason string) (*Approval, error) {
	a, err := m.pendingForLink(ctx, approvalID, token, callbacktoken.ActionReject)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errors.InvalidInput("reason", "a rejection reason is required")
	}
	return m.store.Transition(ctx, approvalID, StatusPending, Change{
		Status: StatusRejected,
		At:     m.clock.Now().UTC(),
		Actor:  a.Project.ApproverEmail,
		Reason: &reason,
	})
}

// Withdraw lets the submitter pull back a pending record.
func (m *Machine) Withdraw(ctx context.Context, approvalID, requestingUserID string) (*Approval, error) {
	a, err := m.store.FindByID(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if a.UserID != requestingUserID {
		return nil, ErrForbidden
	}
	if a.Status != StatusPending {
		return nil, ErrInvalidTransition
	}
	return m.store.Transition(ctx, approvalID, StatusPending, Change{
		Status: StatusWithdrawn,
		At:     m.clock.Now().UTC(),
		Actor:  requestingUserID,
	})
}

// Status reports the state of a key; StatusUnsubmitted when it has no record.
func (m *Machine) Status(ctx context.Context, key string) (StatusView, error) {
	a, err := m.store.FindLatestByKey(ctx, key)
	if err != nil {
		return StatusView{}, err
	}
	if a == nil {
		return StatusView{Status: StatusUnsubmitted}, nil
	}
	return StatusView{Status: a.Status, ApprovalID: a.ID}, nil
}

func (m *Machine) pendingForLink(ctx context.Context, approvalID, token string, action callbacktoken.Action) (*Approval, error) {
	a, err := m.store.FindByID(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusPending {
		return nil, ErrInvalidTransition
	}
	if err := m.tokens.Verify(token, approvalID, action); err != nil {
		return nil, err
	}
	return a, nil
}

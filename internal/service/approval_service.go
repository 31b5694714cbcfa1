package service

import (
	"context"
	"time"

	"github.com/pesio-ai/be-timesheet-approvals/internal/approval"
	"github.com/pesio-ai/be-timesheet-approvals/internal/callbacktoken"
	"github.com/pesio-ai/be-timesheet-approvals/internal/clock"
	"github.com/pesio-ai/be-timesheet-approvals/internal/errors"
	"github.com/pesio-ai/be-timesheet-approvals/internal/logger"
)

// EntryStore reads and writes time entries.
type EntryStore interface {
	FindEntries(ctx context.Context, projectID, userID string, period approval.Period) ([]approval.TimeEntry, error)
	GetByID(ctx context.Context, id string) (*approval.TimeEntry, error)
	Create(ctx context.Context, e *approval.TimeEntry) error
	Update(ctx context.Context, e *approval.TimeEntry) error
	Delete(ctx context.Context, id string) error
}

// Dispatcher delivers fully rendered emails.
type Dispatcher interface {
	Send(ctx context.Context, recipient, subject, htmlBody string) error
}

// LinkConfig holds the base URLs the emailed links point at.
type LinkConfig struct {
	ApproveURL string
	RejectURL  string
}

// ApprovalService wires the state machine to entry lookup, link minting and
// email dispatch.
type ApprovalService struct {
	machine    *approval.Machine
	store      approval.Store
	entries    EntryStore
	guard      *approval.Guard
	tokens     *callbacktoken.Service
	dispatcher Dispatcher
	links      LinkConfig
	log        *logger.Logger
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(
	store approval.Store,
	entries EntryStore,
	guard *approval.Guard,
	tokens *callbacktoken.Service,
	dispatcher Dispatcher,
	links LinkConfig,
	clk clock.Clock,
	log *logger.Logger,
) *ApprovalService {
	return &ApprovalService{
		machine:    approval.NewMachine(store, tokens, clk),
		store:      store,
		entries:    entries,
		guard:      guard,
		tokens:     tokens,
		dispatcher: dispatcher,
		links:      links,
		log:        log.Component("approval_service"),
	}
}

// SubmitRequest represents a submit-for-approval request
type SubmitRequest struct {
	Project        approval.ProjectSnapshot
	Client         approval.ClientSnapshot
	Period         approval.Period
	UserID         string
	SubmitterEmail string
}

// ── Lifecycle ─────────────────────────────────────────────────────────────────

// SubmitForApproval snapshots the user's current entries for the period into
// a pending record and emails the approver. A failed email is logged and
// does not undo the submission.
func (s *ApprovalService) SubmitForApproval(ctx context.Context, req SubmitRequest) (*approval.Approval, error) {
	if !req.Project.RequiresApproval {
		return nil, errors.InvalidInput("project.requires_approval", "project does not require approval")
	}
	if req.Project.ApproverEmail == "" {
		return nil, errors.InvalidInput("project.approver_email", "project has no approver email")
	}
	if err := req.Period.Validate(); err != nil {
		return nil, err
	}

	unlock := s.guard.Lock(approval.Pair(req.Project.ID, req.UserID))
	defer unlock()

	entries, err := s.entries.FindEntries(ctx, req.Project.ID, req.UserID, req.Period)
	if err != nil {
		return nil, err
	}

	a, err := s.machine.Submit(ctx, approval.SubmitInput{
		Project:        req.Project,
		Client:         req.Client,
		Period:         req.Period,
		Entries:        entries,
		UserID:         req.UserID,
		SubmitterEmail: req.SubmitterEmail,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("approval_id", a.ID).
		Str("project_id", a.Project.ID).
		Str("user_id", a.UserID).
		Str("period", a.Period.String()).
		Str("total_hours", a.TotalHours.String()).
		Int("entries", len(entries)).
		Msg("Timesheet submitted for approval")

	s.sendRequest(ctx, a)
	return a, nil
}

// ApproveViaLink handles a click on the emailed approve link.
func (s *ApprovalService) ApproveViaLink(ctx context.Context, approvalID, token string) (*approval.Approval, error) {
	a, err := s.machine.Approve(ctx, approvalID, token)
	if err != nil {
		s.logRefused(approvalID, "approve", err)
		return nil, err
	}

	s.log.Info().Str("approval_id", a.ID).Str("approver", a.Project.ApproverEmail).Msg("Timesheet approved")
	s.sendOutcome(ctx, a, "approved", "Your timesheet was approved")
	return a, nil
}

// RejectViaLink handles the reject form posted from the emailed link.
func (s *ApprovalService) RejectViaLink(ctx context.Context, approvalID, token, reason string) (*approval.Approval, error) {
	a, err := s.machine.Reject(ctx, approvalID, token, reason)
	if err != nil {
		s.logRefused(approvalID, "reject", err)
		return nil, err
	}

	s.log.Info().Str("approval_id", a.ID).Str("approver", a.Project.ApproverEmail).Msg("Timesheet rejected")
	s.sendOutcome(ctx, a, "rejected", "Your timesheet was rejected")
	return a, nil
}

// RejectFormFor returns the record behind an emailed reject link. The record
// must still be pending and the token must be a valid reject token for it.
func (s *ApprovalService) RejectFormFor(ctx context.Context, approvalID, token string) (*approval.Approval, error) {
	a, err := s.store.FindByID(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if a.Status != approval.StatusPending {
		return nil, approval.ErrInvalidTransition
	}
	if err := s.tokens.Verify(token, approvalID, callbacktoken.ActionReject); err != nil {
		s.logRefused(approvalID, "reject-form", err)
		return nil, err
	}
	return a, nil
}

// Withdraw lets the submitter pull back a pending record, unlocking its entries.
func (s *ApprovalService) Withdraw(ctx context.Context, approvalID, requestingUserID string) (*approval.Approval, error) {
	a, err := s.machine.Withdraw(ctx, approvalID, requestingUserID)
	if err != nil {
		s.logRefused(approvalID, "withdraw", err)
		return nil, err
	}

	s.log.Info().Str("approval_id", a.ID).Str("user_id", requestingUserID).Msg("Timesheet withdrawn")
	return a, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

// GetApprovalStatus reports the status of a composite key.
func (s *ApprovalService) GetApprovalStatus(ctx context.Context, compositeKey string) (approval.StatusView, error) {
	if _, _, _, ok := approval.SplitKey(compositeKey); !ok {
		return approval.StatusView{}, errors.InvalidInput("key", "malformed composite key")
	}
	return s.machine.Status(ctx, compositeKey)
}

// StatusFor is GetApprovalStatus for callers holding the key's parts.
func (s *ApprovalService) StatusFor(ctx context.Context, projectID string, period approval.Period, userID string) (approval.StatusView, error) {
	if err := period.Validate(); err != nil {
		return approval.StatusView{}, err
	}
	return s.machine.Status(ctx, approval.KeyFor(projectID, period, userID))
}

func (s *ApprovalService) GetApproval(ctx context.Context, approvalID string) (*approval.Approval, error) {
	return s.store.FindByID(ctx, approvalID)
}

// ListForUser returns a user's records, newest first.
func (s *ApprovalService) ListForUser(ctx context.Context, userID string) ([]*approval.Approval, error) {
	if userID == "" {
		return nil, errors.InvalidInput("user_id", "user_id is required")
	}
	return s.store.FindByUser(ctx, userID)
}

// History returns the audit trail of one record.
func (s *ApprovalService) History(ctx context.Context, approvalID string) ([]*approval.Event, error) {
	if _, err := s.store.FindByID(ctx, approvalID); err != nil {
		return nil, err
	}
	return s.store.History(ctx, approvalID)
}

// LinkMaxAge is how long emailed links stay valid.
func (s *ApprovalService) LinkMaxAge() time.Duration {
	return s.tokens.MaxAge()
}

// ── Notifications ─────────────────────────────────────────────────────────────

func (s *ApprovalService) sendRequest(ctx context.Context, a *approval.Approval) {
	data := newEmailData(a)
	data.ApproveURL = s.tokens.ApproveURL(s.links.ApproveURL, a.ID)
	data.RejectURL = s.tokens.RejectURL(s.links.RejectURL, a.ID)
	data.ExpiresInDays = int(s.tokens.MaxAge() / (24 * time.Hour))

	body, err := renderEmail("request", data)
	if err != nil {
		s.log.Error().Err(err).Str("approval_id", a.ID).Msg("Failed to render approval request email")
		return
	}
	subject := "Timesheet approval requested: " + a.Project.Name + " " + data.Start + " to " + data.End
	s.send(ctx, a, a.Project.ApproverEmail, subject, body)
}

func (s *ApprovalService) sendOutcome(ctx context.Context, a *approval.Approval, tmpl, subject string) {
	if a.SubmitterEmail == "" {
		s.log.Debug().Str("approval_id", a.ID).Msg("No submitter email, outcome notification skipped")
		return
	}
	body, err := renderEmail(tmpl, newEmailData(a))
	if err != nil {
		s.log.Error().Err(err).Str("approval_id", a.ID).Msg("Failed to render outcome email")
		return
	}
	s.send(ctx, a, a.SubmitterEmail, subject, body)
}

func (s *ApprovalService) send(ctx context.Context, a *approval.Approval, to, subject, body string) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Send(ctx, to, subject, body); err != nil {
		s.log.Warn().Err(err).
			Str("approval_id", a.ID).
			Str("to", to).
			Msg("Failed to dispatch notification")
	}
}

func (s *ApprovalService) logRefused(approvalID, action string, err error) {
	ev := s.log.Warn()
	if errors.CodeOf(err) == errors.ErrCodeInternal {
		ev = s.log.Error()
	}
	ev.Err(err).
		Str("approval_id", approvalID).
		Str("action", action).
		Str("code", string(errors.CodeOf(err))).
		Msg("Approval action refused")
}

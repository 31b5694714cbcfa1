// Package approval implements the timesheet approval lifecycle: the
// composite key that ties a batch of time entries to one submission, the
// state machine that drives a submission from pending to a terminal state,
// and the locking policy that freezes entries while a submission is live.
package approval

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an approval key.
type Status string

const (
	// StatusUnsubmitted is never stored. It is reported for keys that have
	// no approval record.
	StatusUnsubmitted Status = "unsubmitted"
	StatusPending     Status = "pending"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusWithdrawn   Status = "withdrawn"
)

// Resubmittable reports whether a new submission may be created for a key
// whose latest record is in this state.
func (s Status) Resubmittable() bool {
	switch s {
	case StatusUnsubmitted, StatusRejected, StatusWithdrawn:
		return true
	}
	return false
}

// Locked reports whether entries covered by a record in this state are
// frozen.
func (s Status) Locked() bool {
	return s == StatusPending || s == StatusApproved
}

// Terminal reports whether a record in this state can no longer change.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusWithdrawn
}

// Valid reports whether s may be stored on a record.
func (s Status) Valid() bool {
	return s == StatusPending || s.Terminal()
}

// ProjectSnapshot is the project as it looked at submission time.
type ProjectSnapshot struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	RequiresApproval bool   `json:"requires_approval"`
	ApproverName     string `json:"approver_name,omitempty"`
	ApproverEmail    string `json:"approver_email"`
}

// ClientSnapshot is the client as it looked at submission time.
type ClientSnapshot struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TimeEntry is one user's hours on one day against a client/project/task.
type TimeEntry struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	ClientID    string          `json:"client_id"`
	ProjectID   string          `json:"project_id"`
	TaskID      string          `json:"task_id"`
	Date        time.Time       `json:"date"`
	Hours       decimal.Decimal `json:"hours"`
	Description string          `json:"description,omitempty"`
}

// Approval is a single submission-for-approval. Project, Client and
// TotalHours are copied at submission and never recomputed.
type Approval struct {
	ID              string          `json:"id"`
	CompositeKey    string          `json:"composite_key"`
	Project         ProjectSnapshot `json:"project"`
	Client          ClientSnapshot  `json:"client"`
	UserID          string          `json:"user_id"`
	SubmitterEmail  string          `json:"submitter_email,omitempty"`
	Period          Period          `json:"period"`
	TotalHours      decimal.Decimal `json:"total_hours"`
	Status          Status          `json:"status"`
	SubmittedAt     time.Time       `json:"submitted_at"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	RejectedAt      *time.Time      `json:"rejected_at,omitempty"`
	WithdrawnAt     *time.Time      `json:"withdrawn_at,omitempty"`
	RejectionReason *string         `json:"rejection_reason,omitempty"`
}

// Change describes a terminal transition applied to a pending record.
type Change struct {
	Status Status
	At     time.Time
	Actor  string
	// Reason is set for rejections only.
	Reason *string
}

// Apply copies the change onto a. Stores use it to build the returned
// record after a successful conditional write.
func (c Change) Apply(a *Approval) {
	at := c.At
	a.Status = c.Status
	switch c.Status {
	case StatusApproved:
		a.ApprovedAt = &at
	case StatusRejected:
		a.RejectedAt = &at
		a.RejectionReason = c.Reason
	case StatusWithdrawn:
		a.WithdrawnAt = &at
	}
}

// Action names a lifecycle event in the audit trail.
func (c Change) Action() string {
	return string(c.Status)
}

// Event is one immutable row of an approval's audit trail.
type Event struct {
	ID           string         `json:"id"`
	ApprovalID   string         `json:"approval_id"`
	CompositeKey string         `json:"composite_key"`
	Action       string         `json:"action"`
	Actor        string         `json:"actor"`
	StatusBefore Status         `json:"status_before"`
	StatusAfter  Status         `json:"status_after"`
	PerformedAt  time.Time      `json:"performed_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// StatusView is the answer to "what state is this key in".
type StatusView struct {
	Status     Status `json:"status"`
	ApprovalID string `json:"approval_id,omitempty"`
}

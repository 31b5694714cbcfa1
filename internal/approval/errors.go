package approval

import (
	"fmt"

	"github.com/pesio-ai/be-timesheet-approvals/internal/callbacktoken"
	"github.com/pesio-ai/be-timesheet-approvals/internal/errors"
)

var (
	// ErrInvalidTransition is returned when a record is no longer in the
	// state an action expects, e.g. a second click on an approve link.
	ErrInvalidTransition = errors.New(errors.ErrCodeConflict, "approval was already processed")

	// ErrForbidden is returned when someone other than the submitter tries
	// to withdraw.
	ErrForbidden = errors.New(errors.ErrCodeForbidden, "only the submitter may withdraw an approval")

	// ErrNotFound is returned for unknown approval ids.
	ErrNotFound = errors.New(errors.ErrCodeNotFound, "approval not found")

	// Token failures are re-exported so callers of the machine need only
	// this package.
	ErrInvalidToken = callbacktoken.ErrInvalidToken
	ErrTokenExpired = callbacktoken.ErrTokenExpired
)

// ConflictError reports that a key already has a pending or approved record.
type ConflictError struct {
	CompositeKey string
	ApprovalID   string
	Status       Status
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("approval conflict: an approval for this period is already %s", e.Status)
}

// ErrorCode maps the conflict onto the shared error codes.
func (e *ConflictError) ErrorCode() errors.Code { return errors.ErrCodeConflict }

// IsConflict reports whether err is an approval conflict.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

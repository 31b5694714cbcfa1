package service

import (
	"github.com/pesio-ai/be-timesheet-approvals/internal/approval"
	"github.com/pesio-ai/be-timesheet-approvals/internal/errors"
)

// LinkInvalidMessage is shown for any bad or stale email link. Expired and
// forged links read the same.
const LinkInvalidMessage = "This approval link is invalid or has expired. Ask the submitter to resend the request."

// UserMessage translates an error from this package into text fit for an
// end user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var conflict *approval.ConflictError
	switch {
	case errors.As(err, &conflict):
		return "A timesheet for this period is already " + string(conflict.Status) + "."
	case errors.Is(err, approval.ErrInvalidToken), errors.Is(err, approval.ErrTokenExpired):
		return LinkInvalidMessage
	case errors.Is(err, approval.ErrInvalidTransition):
		return "This timesheet has already been processed."
	case errors.Is(err, approval.ErrForbidden):
		return "Only the person who submitted this timesheet can withdraw it."
	case errors.Is(err, approval.ErrEntryLocked):
		return "This entry is part of a timesheet that is awaiting approval or already approved."
	case errors.Is(err, approval.ErrNotFound):
		return "This timesheet could not be found."
	}

	var coded *errors.Error
	if errors.As(err, &coded) {
		switch coded.Code {
		case errors.ErrCodeInvalidInput:
			return coded.Message
		case errors.ErrCodeNotFound:
			return "The requested item could not be found."
		case errors.ErrCodeForbidden:
			return "You are not allowed to do that."
		}
	}
	return "Something went wrong. Please try again later."
}

package approval

import (
	"strings"
	"time"

	"github.com/pesio-ai/be-timesheet-approvals/internal/errors"
)

// KeyDelimiter separates the four parts of a composite key. It is the ASCII
// unit separator, which ValidateIdentifier forbids in project and user ids.
const KeyDelimiter = "\x1f"

// CompositeKey derives the key correlating a (project, period, user) batch
// of entries with its approval records.
func CompositeKey(projectID string, start, end time.Time, userID string) string {
	return strings.Join([]string{
		projectID,
		Day(start).Format(DateLayout),
		Day(end).Format(DateLayout),
		userID,
	}, KeyDelimiter)
}

// KeyFor is CompositeKey over a Period.
func KeyFor(projectID string, p Period, userID string) string {
	return CompositeKey(projectID, p.Start, p.End, userID)
}

// SplitKey reverses CompositeKey. ok is false for strings that were not
// produced by it.
func SplitKey(key string) (projectID string, p Period, userID string, ok bool) {
	parts := strings.Split(key, KeyDelimiter)
	if len(parts) != 4 {
		return "", Period{}, "", false
	}
	start, err := time.Parse(DateLayout, parts[1])
	if err != nil {
		return "", Period{}, "", false
	}
	end, err := time.Parse(DateLayout, parts[2])
	if err != nil {
		return "", Period{}, "", false
	}
	return parts[0], Period{Start: start, End: end}, parts[3], true
}

// ValidateIdentifier rejects ids that could make two distinct tuples map to
// the same composite key.
func ValidateIdentifier(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.InvalidInput(field, "must not be empty")
	}
	if strings.Contains(id, KeyDelimiter) {
		return errors.InvalidInput(field, "contains a reserved character")
	}
	return nil
}

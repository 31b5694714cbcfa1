package approval

import (
	"time"

	"github.com/pesio-ai/be-timesheet-approvals/internal/errors"
)

// ErrEntryLocked is returned by entry mutation paths when the entry is
// covered by a pending or approved record.
var ErrEntryLocked = errors.New(errors.ErrCodeLocked, "time entry is locked by a pending or approved timesheet")

// LockSet answers lock queries for entries against a batch of records
// loaded in one query. Build a fresh LockSet for every mutation; approval
// status can change between requests.
type LockSet struct {
	records []*Approval
	active  map[string]*Approval
}

// NewLockSet indexes records by composite key.
func NewLockSet(records []*Approval) *LockSet {
	ls := &LockSet{
		records: records,
		active:  make(map[string]*Approval, len(records)),
	}
	for _, a := range records {
		if a.Status.Locked() {
			ls.active[a.CompositeKey] = a
		}
	}
	return ls
}

// LockedBy returns the record locking a (project, user, date) position,
// or nil. Every period containing the date is considered; the position is
// locked when any record under that period's key is pending or approved.
func (ls *LockSet) LockedBy(projectID, userID string, date time.Time) *Approval {
	for _, a := range ls.records {
		if a.Project.ID != projectID || a.UserID != userID || !a.Period.Contains(date) {
			continue
		}
		if locker, ok := ls.active[CompositeKey(projectID, a.Period.Start, a.Period.End, userID)]; ok {
			return locker
		}
	}
	return nil
}

// IsLocked reports whether e may not be edited or deleted.
func (ls *LockSet) IsLocked(e TimeEntry) bool {
	return ls.LockedBy(e.ProjectID, e.UserID, e.Date) != nil
}

// IsLocked is the single-entry form of the locking policy.
func IsLocked(e TimeEntry, records []*Approval) bool {
	return NewLockSet(records).IsLocked(e)
}

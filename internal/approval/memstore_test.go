package approval

import (
	"context"
	"sync"
	"time"
)

// memStore is a mutex-guarded Store used to exercise the machine without a
// database. Records are kept in creation order.
type memStore struct {
	mu      sync.Mutex
	records []*Approval
	events  []*Event
}

func newMemStore() *memStore { return &memStore{} }

func clone(a *Approval) *Approval {
	c := *a
	return &c
}

func (s *memStore) latestLocked(key string) *Approval {
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].CompositeKey == key {
			return s.records[i]
		}
	}
	return nil
}

func (s *memStore) CreateIfEligible(_ context.Context, a *Approval) (*Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if latest := s.latestLocked(a.CompositeKey); latest != nil && !latest.Status.Resubmittable() {
		return nil, &ConflictError{CompositeKey: a.CompositeKey, ApprovalID: latest.ID, Status: latest.Status}
	}
	s.records = append(s.records, clone(a))
	s.events = append(s.events, &Event{ApprovalID: a.ID, Action: "submitted", StatusAfter: StatusPending})
	return clone(a), nil
}

func (s *memStore) Transition(_ context.Context, id string, expected Status, change Change) (*Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.records {
		if a.ID != id {
			continue
		}
		if a.Status != expected {
			return nil, ErrInvalidTransition
		}
		change.Apply(a)
		s.events = append(s.events, &Event{ApprovalID: id, Action: change.Action(), StatusBefore: expected, StatusAfter: change.Status})
		return clone(a), nil
	}
	return nil, ErrNotFound
}

func (s *memStore) FindLatestByKey(_ context.Context, key string) (*Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a := s.latestLocked(key); a != nil {
		return clone(a), nil
	}
	return nil, nil
}

func (s *memStore) FindByID(_ context.Context, id string) (*Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.records {
		if a.ID == id {
			return clone(a), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) FindByUser(_ context.Context, userID string) ([]*Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Approval
	for _, a := range s.records {
		if a.UserID == userID {
			out = append(out, clone(a))
		}
	}
	return out, nil
}

func (s *memStore) FindCovering(_ context.Context, projectID, userID string, from, to time.Time) ([]*Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Approval
	for _, a := range s.records {
		if a.Project.ID == projectID && a.UserID == userID && !a.Period.Start.After(to) && !a.Period.End.Before(from) {
			out = append(out, clone(a))
		}
	}
	return out, nil
}

func (s *memStore) History(_ context.Context, approvalID string) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Event
	for _, e := range s.events {
		if e.ApprovalID == approvalID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) countActive(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.records {
		if a.CompositeKey == key && a.Status.Locked() {
			n++
		}
	}
	return n
}

package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/pesio-ai/be-timesheet-approvals/internal/approval"
	"github.com/pesio-ai/be-timesheet-approvals/internal/database"
	"github.com/pesio-ai/be-timesheet-approvals/internal/errors"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "approvals.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = database.CloseSQLite(db) })
	return db
}

func newTestStore(t *testing.T) *GormApprovalRepository {
	t.Helper()
	store, err := NewGormApprovalRepository(openTestDB(t))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

var week = approval.NewPeriod(approval.Date(2024, 6, 1), approval.Date(2024, 6, 7))

func pendingRecord(userID string, at time.Time) *approval.Approval {
	return &approval.Approval{
		ID:           uuid.NewString(),
		CompositeKey: approval.KeyFor("P", week, userID),
		Project: approval.ProjectSnapshot{
			ID: "P", Name: "Project P", RequiresApproval: true,
			ApproverName: "Ada", ApproverEmail: "ada@example.com",
		},
		Client:      approval.ClientSnapshot{ID: "C", Name: "Client C"},
		UserID:      userID,
		Period:      week,
		TotalHours:  decimal.RequireFromString("37.5"),
		Status:      approval.StatusPending,
		SubmittedAt: at,
	}
}

func TestGormCreateAndFind(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	at := time.Date(2024, 6, 8, 10, 0, 0, 0, time.UTC)

	rec := pendingRecord("U", at)
	if _, err := store.CreateIfEligible(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.FindByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if got.Status != approval.StatusPending || got.CompositeKey != rec.CompositeKey {
		t.Fatalf("unexpected record %+v", got)
	}
	if !got.Period.Start.Equal(week.Start) || !got.Period.End.Equal(week.End) {
		t.Fatalf("period = %s, want %s", got.Period, week)
	}
	if !got.TotalHours.Equal(rec.TotalHours) {
		t.Fatalf("total hours = %s, want %s", got.TotalHours, rec.TotalHours)
	}
	if !got.SubmittedAt.Equal(at) {
		t.Fatalf("submitted at = %v, want %v", got.SubmittedAt, at)
	}

	latest, err := store.FindLatestByKey(ctx, rec.CompositeKey)
	if err != nil || latest == nil || latest.ID != rec.ID {
		t.Fatalf("latest = %+v, %v", latest, err)
	}

	missing, err := store.FindLatestByKey(ctx, approval.KeyFor("P", week, "nobody"))
	if err != nil || missing != nil {
		t.Fatalf("missing key = %+v, %v", missing, err)
	}

	if _, err := store.FindByID(ctx, "does-not-exist"); !errors.Is(err, approval.ErrNotFound) {
		t.Fatalf("find missing: got %v, want ErrNotFound", err)
	}
}

func TestGormCreateRejectsSecondLiveRecord(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	at := time.Date(2024, 6, 8, 10, 0, 0, 0, time.UTC)

	first := pendingRecord("U", at)
	if _, err := store.CreateIfEligible(ctx, first); err != nil {
		t.Fatal(err)
	}

	_, err := store.CreateIfEligible(ctx, pendingRecord("U", at))
	var conflict *approval.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("got %v, want ConflictError", err)
	}
	if conflict.ApprovalID != first.ID || conflict.Status != approval.StatusPending {
		t.Fatalf("conflict = %+v", conflict)
	}
}

func TestGormResubmitAfterRejection(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	at := time.Date(2024, 6, 8, 10, 0, 0, 0, time.UTC)

	first := pendingRecord("U", at)
	if _, err := store.CreateIfEligible(ctx, first); err != nil {
		t.Fatal(err)
	}
	reason := "missing task codes"
	if _, err := store.Transition(ctx, first.ID, approval.StatusPending, approval.Change{
		Status: approval.StatusRejected, At: at.Add(time.Hour), Actor: "ada@example.com", Reason: &reason,
	}); err != nil {
		t.Fatalf("reject: %v", err)
	}

	second := pendingRecord("U", at.Add(2*time.Hour))
	if _, err := store.CreateIfEligible(ctx, second); err != nil {
		t.Fatalf("resubmit: %v", err)
	}

	latest, err := store.FindLatestByKey(ctx, first.CompositeKey)
	if err != nil {
		t.Fatal(err)
	}
	if latest.ID != second.ID {
		t.Fatalf("latest = %s, want the resubmission %s", latest.ID, second.ID)
	}

	old, err := store.FindByID(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if old.Status != approval.StatusRejected || old.RejectionReason == nil || *old.RejectionReason != reason {
		t.Fatalf("rejected record changed: %+v", old)
	}
}

func TestGormTransitionIsConditional(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	at := time.Date(2024, 6, 8, 10, 0, 0, 0, time.UTC)

	rec := pendingRecord("U", at)
	if _, err := store.CreateIfEligible(ctx, rec); err != nil {
		t.Fatal(err)
	}

	approved, err := store.Transition(ctx, rec.ID, approval.StatusPending, approval.Change{
		Status: approval.StatusApproved, At: at.Add(time.Hour), Actor: "ada@example.com",
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != approval.StatusApproved || approved.ApprovedAt == nil {
		t.Fatalf("approved = %+v", approved)
	}

	_, err = store.Transition(ctx, rec.ID, approval.StatusPending, approval.Change{
		Status: approval.StatusWithdrawn, At: at.Add(2 * time.Hour), Actor: "U",
	})
	if !errors.Is(err, approval.ErrInvalidTransition) {
		t.Fatalf("second transition: got %v, want ErrInvalidTransition", err)
	}

	_, err = store.Transition(ctx, "missing", approval.StatusPending, approval.Change{
		Status: approval.StatusApproved, At: at,
	})
	if !errors.Is(err, approval.ErrNotFound) {
		t.Fatalf("missing transition: got %v, want ErrNotFound", err)
	}

	history, err := store.History(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history has %d events, want 2", len(history))
	}
	if history[0].Action != "submitted" || history[1].Action != "approved" {
		t.Fatalf("history actions = %s, %s", history[0].Action, history[1].Action)
	}
	if history[1].StatusBefore != approval.StatusPending || history[1].Actor != "ada@example.com" {
		t.Fatalf("approve event = %+v", history[1])
	}
	if history[0].Metadata["total_hours"] != "37.5" {
		t.Fatalf("submitted metadata = %v", history[0].Metadata)
	}
}

func TestGormConcurrentCreateKeepsOneLiveRecord(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	at := time.Date(2024, 6, 8, 10, 0, 0, 0, time.UTC)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.CreateIfEligible(ctx, pendingRecord("U", at))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case approval.IsConflict(err):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if created != 1 || conflicts != workers-1 {
		t.Fatalf("created=%d conflicts=%d, want 1 and %d", created, conflicts, workers-1)
	}
}

func TestGormFindCovering(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	at := time.Date(2024, 6, 8, 10, 0, 0, 0, time.UTC)

	rec := pendingRecord("U", at)
	if _, err := store.CreateIfEligible(ctx, rec); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name     string
		project  string
		user     string
		from, to time.Time
		want     int
	}{
		{"inside", "P", "U", approval.Date(2024, 6, 3), approval.Date(2024, 6, 3), 1},
		{"first day", "P", "U", approval.Date(2024, 6, 1), approval.Date(2024, 6, 1), 1},
		{"last day", "P", "U", approval.Date(2024, 6, 7), approval.Date(2024, 6, 7), 1},
		{"overlapping range", "P", "U", approval.Date(2024, 5, 30), approval.Date(2024, 6, 2), 1},
		{"day after", "P", "U", approval.Date(2024, 6, 8), approval.Date(2024, 6, 8), 0},
		{"other user", "P", "V", approval.Date(2024, 6, 3), approval.Date(2024, 6, 3), 0},
		{"other project", "Q", "U", approval.Date(2024, 6, 3), approval.Date(2024, 6, 3), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := store.FindCovering(ctx, tc.project, tc.user, tc.from, tc.to)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tc.want {
				t.Fatalf("got %d records, want %d", len(got), tc.want)
			}
		})
	}
}

func TestGormTimeEntries(t *testing.T) {
	ctx := context.Background()
	entries, err := NewGormTimeEntryRepository(openTestDB(t))
	if err != nil {
		t.Fatal(err)
	}

	e := &approval.TimeEntry{
		UserID: "U", ClientID: "C", ProjectID: "P", TaskID: "T",
		Date:  approval.Date(2024, 6, 3),
		Hours: decimal.RequireFromString("7.5"),
	}
	if err := entries.Create(ctx, e); err != nil {
		t.Fatalf("create: %v", err)
	}
	if e.ID == "" {
		t.Fatal("create did not assign an id")
	}
	outside := &approval.TimeEntry{
		UserID: "U", ClientID: "C", ProjectID: "P",
		Date:  approval.Date(2024, 6, 10),
		Hours: decimal.NewFromInt(2),
	}
	if err := entries.Create(ctx, outside); err != nil {
		t.Fatal(err)
	}

	found, err := entries.FindEntries(ctx, "P", "U", week)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].ID != e.ID {
		t.Fatalf("found %+v, want only %s", found, e.ID)
	}

	e.Hours = decimal.NewFromInt(8)
	if err := entries.Update(ctx, e); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := entries.GetByID(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Hours.Equal(decimal.NewFromInt(8)) || !got.Date.Equal(e.Date) {
		t.Fatalf("after update = %+v", got)
	}

	if err := entries.Delete(ctx, e.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := entries.GetByID(ctx, e.ID); errors.CodeOf(err) != errors.ErrCodeNotFound {
		t.Fatalf("get deleted: got %v, want not found", err)
	}
	if err := entries.Delete(ctx, e.ID); errors.CodeOf(err) != errors.ErrCodeNotFound {
		t.Fatalf("delete twice: got %v, want not found", err)
	}
}

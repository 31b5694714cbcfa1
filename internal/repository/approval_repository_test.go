package repository

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-timesheet-approvals/internal/approval"
	"github.com/pesio-ai/be-timesheet-approvals/internal/database"
	"github.com/pesio-ai/be-timesheet-approvals/internal/errors"
)

// Runs against a live Postgres when TEST_DATABASE_URL is set.
func openPostgres(t *testing.T) *database.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := database.New(ctx, database.Config{DSN: dsn, MaxConns: 8})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(db.Close)
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestPostgresLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewApprovalRepository(openPostgres(t))
	at := time.Now().UTC().Truncate(time.Millisecond)

	// a fresh user per run keeps keys unique in a shared database
	user := "user-" + uuid.NewString()
	rec := pendingRecord(user, at)
	if _, err := store.CreateIfEligible(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.CreateIfEligible(ctx, pendingRecord(user, at)); !approval.IsConflict(err) {
		t.Fatalf("duplicate create: got %v, want conflict", err)
	}

	reason := "wrong project"
	rejected, err := store.Transition(ctx, rec.ID, approval.StatusPending, approval.Change{
		Status: approval.StatusRejected, At: at, Actor: "ada@example.com", Reason: &reason,
	})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.RejectedAt == nil || rejected.RejectionReason == nil {
		t.Fatalf("rejected = %+v", rejected)
	}
	if _, err := store.Transition(ctx, rec.ID, approval.StatusPending, approval.Change{
		Status: approval.StatusApproved, At: at,
	}); !errors.Is(err, approval.ErrInvalidTransition) {
		t.Fatalf("approve after reject: got %v", err)
	}

	again := pendingRecord(user, at)
	if _, err := store.CreateIfEligible(ctx, again); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	latest, err := store.FindLatestByKey(ctx, rec.CompositeKey)
	if err != nil || latest.ID != again.ID {
		t.Fatalf("latest = %+v, %v", latest, err)
	}

	history, err := store.History(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[1].Metadata["reason"] != reason {
		t.Fatalf("history = %+v", history)
	}
}

func TestPostgresConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	store := NewApprovalRepository(openPostgres(t))
	at := time.Now().UTC()
	user := "user-" + uuid.NewString()

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.CreateIfEligible(ctx, pendingRecord(user, at))
			if err != nil && !approval.IsConflict(err) {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if created != 1 {
		t.Fatalf("created %d live records, want 1", created)
	}
}

package ratelimit

import (
	"testing"
	"time"

	"github.com/dalemusser/stratadrive/internal/testutil"
)

func newStore(t *testing.T, max int) *Store {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return New(db, max, 15*time.Minute, 30*time.Minute)
}

func TestStore_EnsureIndexes(t *testing.T) {
	store := newStore(t, 5)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes() error = %v", err)
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes() second call error = %v", err)
	}
}

func TestStore_CheckAllowed_NoRecord(t *testing.T) {
	store := newStore(t, 5)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	allowed, remaining, lockedUntil := store.CheckAllowed(ctx, "newuser@example.com")
	if !allowed || remaining != 5 || lockedUntil != nil {
		t.Errorf("CheckAllowed() = %v, %d, %v; want true, 5, nil", allowed, remaining, lockedUntil)
	}
}

func TestStore_RecordFailure_CountsCaseInsensitively(t *testing.T) {
	store := newStore(t, 5)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store.RecordFailure(ctx, "test@example.com")
	store.RecordFailure(ctx, "TEST@Example.com ")

	allowed, remaining, _ := store.CheckAllowed(ctx, "Test@Example.com")
	if !allowed {
		t.Error("CheckAllowed() should allow after two failures")
	}
	if remaining != 3 {
		t.Errorf("remaining = %d, want 3", remaining)
	}
}

func TestStore_RecordFailure_TriggersLockout(t *testing.T) {
	store := newStore(t, 3)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	email := "lock@example.com"
	for i := 0; i < 2; i++ {
		if lockedOut, _ := store.RecordFailure(ctx, email); lockedOut {
			t.Fatalf("locked out after %d failures", i+1)
		}
	}

	lockedOut, until := store.RecordFailure(ctx, email)
	if !lockedOut || until == nil {
		t.Fatal("third failure should lock out")
	}
	if d := time.Until(*until); d < 29*time.Minute || d > 31*time.Minute {
		t.Errorf("lockout lasts %v, want about 30m", d)
	}

	allowed, remaining, lockedUntil := store.CheckAllowed(ctx, email)
	if allowed || remaining != -1 || lockedUntil == nil {
		t.Errorf("CheckAllowed() = %v, %d, %v; want locked", allowed, remaining, lockedUntil)
	}

	// Further failures during the lockout do not extend it.
	if again, _ := store.RecordFailure(ctx, email); again {
		t.Error("failure during lockout should not report a new lockout")
	}
}

func TestStore_ClearOnSuccess(t *testing.T) {
	store := newStore(t, 5)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store.RecordFailure(ctx, "clear@example.com")
	if err := store.ClearOnSuccess(ctx, "clear@example.com"); err != nil {
		t.Fatalf("ClearOnSuccess() error = %v", err)
	}

	a, err := store.GetAttempt(ctx, "clear@example.com")
	if err != nil {
		t.Fatalf("GetAttempt() error = %v", err)
	}
	if a != nil {
		t.Errorf("GetAttempt() = %+v, want nil", a)
	}
}

func TestStore_WindowExpiry_ResetsCounter(t *testing.T) {
	store := newStore(t, 3)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	base := time.Now()
	store.now = func() time.Time { return base }
	store.RecordFailure(ctx, "window@example.com")
	store.RecordFailure(ctx, "window@example.com")

	store.now = func() time.Time { return base.Add(20 * time.Minute) }
	if lockedOut, _ := store.RecordFailure(ctx, "window@example.com"); lockedOut {
		t.Error("failure in a fresh window should not lock out")
	}

	a, err := store.GetAttempt(ctx, "window@example.com")
	if err != nil || a == nil {
		t.Fatalf("GetAttempt() = %v, %v", a, err)
	}
	if a.AttemptCount != 1 {
		t.Errorf("attempt_count = %d, want 1", a.AttemptCount)
	}
}

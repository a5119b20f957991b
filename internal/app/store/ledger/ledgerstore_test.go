package ledgerstore

import (
	"testing"
	"time"

	"github.com/dalemusser/stratadrive/internal/testutil"
)

func TestStore_CreateAndGet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	err := store.Create(ctx, Entry{
		RequestID:  "req-1",
		Method:     "PUT",
		Path:       "/api/folders/abc/move",
		StatusCode: 400,
		ErrorClass: "cyclic_move",
		StartedAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := store.GetByRequestID(ctx, "req-1")
	if err != nil {
		t.Fatalf("GetByRequestID() error = %v", err)
	}
	if got.ErrorClass != "cyclic_move" || got.ID.IsZero() {
		t.Errorf("entry = %+v", got)
	}
}

func TestStore_RecentErrorsAndCounts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	now := time.Now()
	entries := []Entry{
		{RequestID: "a", StatusCode: 404, ErrorClass: "not_found", StartedAt: now.Add(-3 * time.Minute)},
		{RequestID: "b", StatusCode: 404, ErrorClass: "not_found", StartedAt: now.Add(-2 * time.Minute)},
		{RequestID: "c", StatusCode: 413, ErrorClass: "quota_exceeded", StartedAt: now.Add(-time.Minute)},
		{RequestID: "d", StatusCode: 200, StartedAt: now},
		{RequestID: "old", StatusCode: 500, ErrorClass: "internal", StartedAt: now.Add(-48 * time.Hour)},
	}
	for _, e := range entries {
		if err := store.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	recent, err := store.RecentErrors(ctx, 2)
	if err != nil {
		t.Fatalf("RecentErrors() error = %v", err)
	}
	if len(recent) != 2 || recent[0].RequestID != "c" || recent[1].RequestID != "b" {
		t.Errorf("RecentErrors() = %+v, want c then b", recent)
	}

	counts, err := store.CountByErrorClass(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountByErrorClass() error = %v", err)
	}
	if counts["not_found"] != 2 || counts["quota_exceeded"] != 1 || counts["internal"] != 0 {
		t.Errorf("CountByErrorClass() = %v", counts)
	}

	deleted, err := store.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("DeleteOlderThan() = %d, want 1", deleted)
	}
}

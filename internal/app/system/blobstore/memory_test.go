package blobstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMemory_UploadDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	b, err := m.Upload(ctx, "u/1-a.txt", strings.NewReader("hello"), 5, "text/plain")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if b.Name != "u/1-a.txt" || b.ID == "" {
		t.Errorf("Upload() = %+v, want name and id set", b)
	}
	if data, ok := m.Read(b.Name); !ok || string(data) != "hello" {
		t.Errorf("Read() = %q, %v", data, ok)
	}

	if err := m.Delete(ctx, b); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if m.Has(b.Name) {
		t.Error("blob still present after Delete")
	}
	// Deleting again is not an error.
	if err := m.Delete(ctx, b); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestMemory_UploadSizeMismatch(t *testing.T) {
	m := NewMemory()
	if _, err := m.Upload(context.Background(), "x", strings.NewReader("abc"), 10, ""); err == nil {
		t.Error("expected error for short body")
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}

func TestMemory_CancelledUpload(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.Upload(ctx, "x", strings.NewReader("abc"), 3, ""); !errors.Is(err, context.Canceled) {
		t.Errorf("Upload() error = %v, want context.Canceled", err)
	}
	if m.Has("x") {
		t.Error("cancelled upload was stored")
	}
}

func TestMemory_FailOn(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	boom := errors.New("boom")

	b, err := m.Upload(ctx, "x", strings.NewReader("abc"), 3, "")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	m.FailOn("delete", boom)
	if err := m.Delete(ctx, b); !errors.Is(err, boom) {
		t.Errorf("Delete() error = %v, want boom", err)
	}
	if !m.Has("x") {
		t.Error("failed delete removed the blob")
	}

	m.FailOn("delete", nil)
	if err := m.Delete(ctx, b); err != nil {
		t.Errorf("Delete() after clearing failure error = %v", err)
	}

	m.FailOn("upload", boom)
	if _, err := m.Upload(ctx, "y", strings.NewReader("a"), 1, ""); !errors.Is(err, boom) {
		t.Errorf("Upload() error = %v, want boom", err)
	}
}

func TestMemory_SignedURL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.SignedURL(ctx, Blob{Name: "missing"}, time.Minute); !errors.Is(err, ErrNotFound) {
		t.Errorf("SignedURL(missing) error = %v, want ErrNotFound", err)
	}

	b, _ := m.Upload(ctx, "u/a b.txt", strings.NewReader("a"), 1, "")
	u, err := m.SignedURL(ctx, b, 0)
	if err != nil {
		t.Fatalf("SignedURL() error = %v", err)
	}
	if !strings.HasPrefix(u, "memory://u%2Fa%20b.txt?expires=") {
		t.Errorf("SignedURL() = %q", u)
	}
}

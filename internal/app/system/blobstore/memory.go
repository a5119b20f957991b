package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"
)

// Memory keeps blobs in process memory. Contents are lost on restart.
type Memory struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	seq      int
	failures map[string]error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		blobs:    make(map[string][]byte),
		failures: make(map[string]error),
	}
}

// FailOn makes every later call of op ("upload", "delete", "sign") return
// err. Pass a nil err to clear it.
func (m *Memory) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// Upload implements Store.
func (m *Memory) Upload(ctx context.Context, name string, r io.Reader, size int64, _ string) (Blob, error) {
	m.mu.Lock()
	failErr := m.failures["upload"]
	m.mu.Unlock()
	if failErr != nil {
		return Blob{}, failErr
	}

	data, err := io.ReadAll(io.LimitReader(r, size+1))
	if err != nil {
		return Blob{}, err
	}
	if int64(len(data)) != size {
		return Blob{}, fmt.Errorf("upload %s: got %d bytes, want %d", name, len(data), size)
	}
	if err := ctx.Err(); err != nil {
		return Blob{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.blobs[name] = data
	return Blob{ID: fmt.Sprintf("mem-%d", m.seq), Name: name}, nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, b Blob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["delete"]; err != nil {
		return err
	}
	delete(m.blobs, b.Name)
	return nil
}

// SignedURL implements Store. The URL is not dereferenceable; it exists so
// callers can be exercised without a real backend.
func (m *Memory) SignedURL(_ context.Context, b Blob, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["sign"]; err != nil {
		return "", err
	}
	if _, ok := m.blobs[b.Name]; !ok {
		return "", ErrNotFound
	}
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	return fmt.Sprintf("memory://%s?expires=%d", url.PathEscape(b.Name), time.Now().Add(ttl).Unix()), nil
}

// Has reports whether a blob named name is stored.
func (m *Memory) Has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[name]
	return ok
}

// Len returns the number of stored blobs.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}

// Read returns a copy of a stored blob's bytes.
func (m *Memory) Read(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[name]
	if !ok {
		return nil, false
	}
	return bytes.Clone(data), true
}

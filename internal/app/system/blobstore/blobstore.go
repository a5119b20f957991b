// Package blobstore stores file bytes outside the database.
//
// Backends:
//   - s3: any S3-compatible service (AWS, Backblaze B2, MinIO) with presigned downloads
//   - local: a directory on disk, served back through signed, expiring /blobs URLs
//   - memory: process-local, for development and tests
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultURLTTL is how long a download URL stays valid.
const DefaultURLTTL = time.Hour

// ErrNotFound is returned when a blob does not exist.
var ErrNotFound = errors.New("blob not found")

// Blob is the opaque handle a backend returns for stored bytes.
type Blob struct {
	ID   string // backend identifier (version id, etag or path)
	Name string // object key
}

// Store is implemented by every blob backend.
type Store interface {
	// Upload writes size bytes from r under name.
	Upload(ctx context.Context, name string, r io.Reader, size int64, contentType string) (Blob, error)
	// Delete removes the blob. Deleting a blob that is already gone is not an error.
	Delete(ctx context.Context, b Blob) error
	// SignedURL returns a time-limited download URL for the blob.
	SignedURL(ctx context.Context, b Blob, ttl time.Duration) (string, error)
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// SanitizeObjectName replaces every character outside [a-zA-Z0-9.-] with '_'.
func SanitizeObjectName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "_")
}

// ObjectName builds the key for a new upload: "<ownerID>/<uuid>-<sanitized name>".
// The uuid keeps keys unique when a user uploads the same name twice.
func ObjectName(ownerID primitive.ObjectID, original string) string {
	return fmt.Sprintf("%s/%s-%s", ownerID.Hex(), uuid.New().String(), SanitizeObjectName(original))
}

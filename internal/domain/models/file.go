package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// File represents an uploaded file. The bytes live in the blob store;
// BlobID and BlobName are the opaque handle it returned.
type File struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	OwnerID      primitive.ObjectID  `bson:"owner_id" json:"owner_id"`
	FolderID     *primitive.ObjectID `bson:"folder_id" json:"folder_id"` // nil = root level
	Name         string              `bson:"name" json:"name"`           // Display name (original filename)
	NameCI       string              `bson:"name_ci" json:"-"`
	Size         int64               `bson:"size" json:"size"`
	ContentType  string              `bson:"content_type" json:"content_type"`
	BlobID       string              `bson:"blob_id" json:"-"`
	BlobName     string              `bson:"blob_name" json:"-"`
	IsStarred    bool                `bson:"is_starred" json:"is_starred"`
	IsDeleted    bool                `bson:"is_deleted" json:"is_deleted"`
	DeletedAt    *time.Time          `bson:"deleted_at" json:"deleted_at"`
	SharedWith   []string            `bson:"shared_with" json:"shared_with"`
	LastAccessed time.Time           `bson:"last_accessed" json:"last_accessed"`
	CreatedAt    time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time           `bson:"updated_at" json:"updated_at"`
}

// IsInRoot returns true if the file is at the root level (not in any folder).
func (f *File) IsInRoot() bool {
	return f.FolderID == nil
}

// IsSharedWith reports whether email appears in the file's share list.
func (f *File) IsSharedWith(email string) bool {
	return containsEmail(f.SharedWith, email)
}

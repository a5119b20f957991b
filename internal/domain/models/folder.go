package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Folder represents a folder in a user's drive.
type Folder struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	OwnerID      primitive.ObjectID  `bson:"owner_id" json:"owner_id"`
	Name         string              `bson:"name" json:"name"`
	NameCI       string              `bson:"name_ci" json:"-"`                            // Case-insensitive for sorting
	ParentID     *primitive.ObjectID `bson:"parent_id" json:"parent_id"`                  // nil = root folder
	IsStarred    bool                `bson:"is_starred" json:"is_starred"`
	IsDeleted    bool                `bson:"is_deleted" json:"is_deleted"`
	DeletedAt    *time.Time          `bson:"deleted_at" json:"deleted_at"`
	SharedWith   []string            `bson:"shared_with" json:"shared_with"`              // lowercase emails
	LastAccessed time.Time           `bson:"last_accessed" json:"last_accessed"`
	CreatedAt    time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time           `bson:"updated_at" json:"updated_at"`
}

// IsRoot returns true if the folder is at the root level.
func (f *Folder) IsRoot() bool {
	return f.ParentID == nil
}

// IsSharedWith reports whether email appears in the folder's share list.
func (f *Folder) IsSharedWith(email string) bool {
	return containsEmail(f.SharedWith, email)
}

func containsEmail(list []string, email string) bool {
	if email == "" {
		return false
	}
	for _, e := range list {
		if e == email {
			return true
		}
	}
	return false
}

// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultStorageLimit is the per-user quota assigned at registration (250 MB).
const DefaultStorageLimit int64 = 262_144_000

// User represents an account that owns files and folders.
//
// Storage fields:
//   - StorageUsed: running total of bytes held by the user's non-purged files.
//     Folder placement and trash state never change it; only upload and
//     permanent delete do.
//   - StorageLimit: the byte quota checked before each upload.
type User struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email      string             `bson:"email" json:"email"` // lowercase, unique
	FullName   string             `bson:"full_name" json:"full_name"`
	FullNameCI string             `bson:"full_name_ci" json:"-"`

	PasswordHash string `bson:"password_hash,omitempty" json:"-"` // bcrypt hash (never in JSON)

	StorageUsed  int64 `bson:"storage_used" json:"storage_used"`
	StorageLimit int64 `bson:"storage_limit" json:"storage_limit"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// StorageAvailable returns the number of bytes the user may still upload.
func (u *User) StorageAvailable() int64 {
	if u.StorageUsed >= u.StorageLimit {
		return 0
	}
	return u.StorageLimit - u.StorageUsed
}

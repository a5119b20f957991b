// internal/app/system/authz/authz.go
package authz

import (
	"errors"
	"net/http"

	"github.com/dalemusser/stratadrive/internal/app/system/auth"
	"github.com/dalemusser/stratadrive/internal/app/system/normalize"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrForbidden is returned when the requester may not perform an operation
// on an entity it can see.
var ErrForbidden = errors.New("access denied")

// UserCtx returns the caller's ObjectID, email (lowercased) and a found flag.
// If no user is present in context it returns NilObjectID, "", false, so
// callers can trust that ok=true means an authenticated user.
func UserCtx(r *http.Request) (userID primitive.ObjectID, email string, ok bool) {
	user, ok := auth.CurrentUser(r)
	if !ok || user.ID.IsZero() {
		return primitive.NilObjectID, "", false
	}
	return user.ID, normalize.Email(user.Email), true
}

// DisplayName returns the caller's name, falling back to their email.
func DisplayName(r *http.Request) string {
	u, ok := auth.CurrentUser(r)
	if !ok {
		return ""
	}
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// IsLoggedIn reports whether there is a user in the request context.
func IsLoggedIn(r *http.Request) bool {
	_, _, ok := UserCtx(r)
	return ok
}

// IsOwner reports whether requester owns an entity with the given owner.
func IsOwner(owner, requester primitive.ObjectID) bool {
	return !owner.IsZero() && owner == requester
}

// RequireOwner returns ErrForbidden unless requester is the owner.
// Every mutation (rename, move, delete, restore, star, share) goes through it.
func RequireOwner(owner, requester primitive.ObjectID) error {
	if !IsOwner(owner, requester) {
		return ErrForbidden
	}
	return nil
}

// CanRead reports whether requester may read an entity: the owner always
// can, and so can anyone whose email is in sharedWith.
func CanRead(owner primitive.ObjectID, sharedWith []string, requester primitive.ObjectID, requesterEmail string) bool {
	if IsOwner(owner, requester) {
		return true
	}
	email := normalize.Email(requesterEmail)
	if email == "" {
		return false
	}
	for _, e := range sharedWith {
		if normalize.Email(e) == email {
			return true
		}
	}
	return false
}

// RequireRead returns ErrForbidden unless CanRead allows the access.
func RequireRead(owner primitive.ObjectID, sharedWith []string, requester primitive.ObjectID, requesterEmail string) error {
	if !CanRead(owner, sharedWith, requester, requesterEmail) {
		return ErrForbidden
	}
	return nil
}

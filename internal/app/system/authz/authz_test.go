package authz

import (
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/stratadrive/internal/app/system/auth"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestUserCtx(t *testing.T) {
	id := primitive.NewObjectID()

	t.Run("no user", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		gotID, email, ok := UserCtx(req)
		if ok || !gotID.IsZero() || email != "" {
			t.Errorf("UserCtx() = %v, %q, %v; want nil, \"\", false", gotID, email, ok)
		}
	})

	t.Run("user with mixed case email", func(t *testing.T) {
		req := auth.WithTestUser(httptest.NewRequest("GET", "/", nil), &auth.User{ID: id, Email: " Owner@Example.COM "})
		gotID, email, ok := UserCtx(req)
		if !ok {
			t.Fatal("UserCtx() ok = false, want true")
		}
		if gotID != id {
			t.Errorf("userID = %v, want %v", gotID, id)
		}
		if email != "owner@example.com" {
			t.Errorf("email = %q, want %q", email, "owner@example.com")
		}
	})

	t.Run("zero id fails closed", func(t *testing.T) {
		req := auth.WithTestUser(httptest.NewRequest("GET", "/", nil), &auth.User{Email: "x@example.com"})
		if IsLoggedIn(req) {
			t.Error("IsLoggedIn() = true for zero id, want false")
		}
	})
}

func TestDisplayName(t *testing.T) {
	id := primitive.NewObjectID()
	tests := []struct {
		name string
		user *auth.User
		want string
	}{
		{"no user", nil, ""},
		{"name set", &auth.User{ID: id, Name: "Alice", Email: "alice@example.com"}, "Alice"},
		{"email fallback", &auth.User{ID: id, Email: "alice@example.com"}, "alice@example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.user != nil {
				req = auth.WithTestUser(req, tt.user)
			}
			if got := DisplayName(req); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequireOwner(t *testing.T) {
	owner := primitive.NewObjectID()
	other := primitive.NewObjectID()

	tests := []struct {
		name      string
		owner     primitive.ObjectID
		requester primitive.ObjectID
		wantErr   error
	}{
		{"owner", owner, owner, nil},
		{"stranger", owner, other, ErrForbidden},
		{"zero owner", primitive.NilObjectID, primitive.NilObjectID, ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := RequireOwner(tt.owner, tt.requester); err != tt.wantErr {
				t.Errorf("RequireOwner() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCanRead(t *testing.T) {
	owner := primitive.NewObjectID()
	sharee := primitive.NewObjectID()
	stranger := primitive.NewObjectID()
	shared := []string{"sharee@example.com"}

	tests := []struct {
		name      string
		requester primitive.ObjectID
		email     string
		want      bool
	}{
		{"owner", owner, "owner@example.com", true},
		{"sharee", sharee, "sharee@example.com", true},
		{"sharee uppercase email", sharee, "SHAREE@example.com", true},
		{"stranger", stranger, "stranger@example.com", false},
		{"stranger without email", stranger, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanRead(owner, shared, tt.requester, tt.email); got != tt.want {
				t.Errorf("CanRead() = %v, want %v", got, tt.want)
			}
			wantErr := !tt.want
			if err := RequireRead(owner, shared, tt.requester, tt.email); (err != nil) != wantErr {
				t.Errorf("RequireRead() error = %v, wantErr %v", err, wantErr)
			}
		})
	}
}

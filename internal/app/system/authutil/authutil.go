// Package authutil validates account credentials and hashes passwords for
// the register and login endpoints.
package authutil

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/dalemusser/stratadrive/internal/app/system/inputval"
	"github.com/dalemusser/stratadrive/internal/app/system/normalize"
)

// MaxNameLength bounds the display name stored on an account.
const MaxNameLength = 100

var (
	ErrNameRequired  = errors.New("Full name is required.")
	ErrNameTooLong   = fmt.Errorf("Full name must be at most %d characters.", MaxNameLength)
	ErrEmailRequired = errors.New("Email is required.")
	ErrInvalidEmail  = errors.New("Please enter a valid email address.")

	// ErrHash wraps a bcrypt failure. Every other error from
	// ValidateRegistration is the client's to fix.
	ErrHash = errors.New("hash password")
)

// RegisterInput is what the register endpoint receives.
type RegisterInput struct {
	FullName string
	Email    string
	Password string
}

// Registration is a RegisterInput that passed validation, ready to store.
type Registration struct {
	FullName     string
	Email        string // normalized
	PasswordHash string
}

// ValidateRegistration checks name, email and password in that order and
// hashes the password. The returned error is safe to show the client.
func ValidateRegistration(in RegisterInput) (*Registration, error) {
	name := normalize.Name(in.FullName)
	switch {
	case name == "":
		return nil, ErrNameRequired
	case utf8.RuneCountInString(name) > MaxNameLength:
		return nil, ErrNameTooLong
	}

	email := normalize.Email(in.Email)
	switch {
	case email == "":
		return nil, ErrEmailRequired
	case !inputval.IsValidEmail(email):
		return nil, ErrInvalidEmail
	}

	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHash, err)
	}
	return &Registration{FullName: name, Email: email, PasswordHash: hash}, nil
}

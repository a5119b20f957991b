package authutil

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength is counted in characters.
	MinPasswordLength = 8
	// MaxPasswordBytes is bcrypt's input limit. Longer input would be
	// truncated silently, so it is rejected instead.
	MaxPasswordBytes = 72
)

// HashCost is the bcrypt work factor for new hashes. Tests lower it.
var HashCost = 12

var (
	ErrPasswordRequired = errors.New("Password is required.")
	ErrPasswordTooShort = fmt.Errorf("Password must be at least %d characters.", MinPasswordLength)
	ErrPasswordTooLong  = fmt.Errorf("Password must be at most %d bytes.", MaxPasswordBytes)
	ErrPasswordCommon   = errors.New("This password is too common. Please choose a different one.")
)

// Passwords that pass the length rule but show up at the top of every
// breach list. Compared case-insensitively.
var commonPasswords = strings.Fields(`
	12345678 123456789 1234567890 password password1 password123 qwerty123
	qwertyuiop iloveyou sunshine football baseball welcome1 letmein1
	abcd1234 11111111 00000000 87654321 dropbox1 changeme passw0rd
`)

// burnHash is compared against on the unknown-account login path so it
// costs the same as a real check.
var burnHash, _ = bcrypt.GenerateFromPassword([]byte("no account has this password"), bcrypt.MinCost)

// ValidatePassword applies the length and common-password rules.
func ValidatePassword(password string) error {
	switch n := utf8.RuneCountInString(password); {
	case n == 0:
		return ErrPasswordRequired
	case n < MinPasswordLength:
		return ErrPasswordTooShort
	case len(password) > MaxPasswordBytes:
		return ErrPasswordTooLong
	}
	lower := strings.ToLower(password)
	for _, p := range commonPasswords {
		if lower == p {
			return ErrPasswordCommon
		}
	}
	return nil
}

// HashPassword returns the bcrypt hash of an already validated password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), HashCost)
	return string(hash), err
}

// CheckPassword reports whether password matches hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// BurnComparison spends one bcrypt comparison and discards the result.
func BurnComparison(password string) {
	_ = bcrypt.CompareHashAndPassword(burnHash, []byte(password))
}

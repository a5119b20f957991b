// Package normalize holds the canonical forms used for share lists, account
// lookups and query parameters.
package normalize

import (
	"strings"
	"unicode/utf8"
)

// MaxQueryParam bounds a normalized query value in bytes.
const MaxQueryParam = 256

// Email trims and lowercases an address. Share lists and the users
// collection only ever hold this form.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims a display name and collapses inner whitespace runs to a
// single space, so "Ada \t Lovelace" and "Ada Lovelace" are stored alike.
func Name(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// QueryParam trims a query value and cuts it to MaxQueryParam bytes on a
// rune boundary.
func QueryParam(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= MaxQueryParam {
		return s
	}
	cut := MaxQueryParam
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Package htmlsanitize strips markup from user-supplied display names.
// Names are stored and returned as plain text; any tags in them are removed
// using bluemonday's strict policy.
package htmlsanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// StripTags removes every HTML element from s and returns the remaining
// text. Strings without markup are returned unchanged, so names such as
// "Q&A.txt" survive as typed.
func StripTags(s string) string {
	if IsPlainText(s) {
		return s
	}
	return strings.TrimSpace(html.UnescapeString(getPolicy().Sanitize(s)))
}

// IsPlainText reports whether s contains no HTML tags.
func IsPlainText(s string) bool {
	if s == "" {
		return true
	}
	// A tag needs both brackets.
	return !strings.Contains(s, "<") || !strings.Contains(s, ">")
}

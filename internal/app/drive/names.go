package drive

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dalemusser/stratadrive/internal/app/system/htmlsanitize"
)

// MaxNameLength is the longest folder or file name accepted, in characters.
const MaxNameLength = 255

var controlChars = regexp.MustCompile(`[\x00-\x1F\x7F]`)

// SanitizeName trims name, removes control characters and rejects names
// that are empty or could be read as a path.
func SanitizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", newErr(InvalidInput, "name is required")
	}

	name = strings.TrimSpace(controlChars.ReplaceAllString(name, ""))
	if name == "" {
		return "", newErr(InvalidInput, "name is required")
	}

	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return "", newErr(InvalidInput, "name contains invalid characters")
	}

	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", newErr(InvalidInput, "name is too long (max 255 characters)")
	}

	return name, nil
}

// SanitizeFileName is SanitizeName for user-supplied file names, which may
// also carry markup.
func SanitizeFileName(name string) (string, error) {
	return SanitizeName(htmlsanitize.StripTags(strings.TrimSpace(name)))
}

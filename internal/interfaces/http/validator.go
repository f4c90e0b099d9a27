package http

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Input validation constants
const (
	MaxSlugLength    = 64
	MaxNameLength    = 256
	MaxKeywordLength = 128
	MaxPromptLength  = 50000 // For AI prompts
	MaxPhoneLength   = 32
)

var (
	slugPattern  = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	phonePattern = regexp.MustCompile(`^[0-9]{6,20}$`)
)

// ValidSlug checks if a slug is safe (alphanumeric + underscore + hyphen)
func ValidSlug(s string) bool {
	if s == "" || len(s) > MaxSlugLength {
		return false
	}
	return slugPattern.MatchString(s)
}

// ValidPhone checks a bare phone number ("628123456789", no + or spaces)
func ValidPhone(s string) bool {
	if s == "" || len(s) > MaxPhoneLength {
		return false
	}
	return phonePattern.MatchString(s)
}

// SanitizeString removes null bytes and control characters
func SanitizeString(s string) string {
	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	// Keep only valid UTF-8
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for _, r := range s {
			if r != utf8.RuneError {
				v = append(v, r)
			}
		}
		s = string(v)
	}
	return s
}

// TruncateString safely truncates a string to max length
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// ValidateLength checks if string is within bounds
func ValidateLength(s string, min, max int) bool {
	l := len(s)
	return l >= min && l <= max
}

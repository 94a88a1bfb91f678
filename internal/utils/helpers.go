package utils

import (
	"strings"
)

// MaskEmail masks the user part of an email address, showing only the first
// and last character. Used whenever an email appears in a log field.
//
// For example: "user@example.com" becomes "u**r@example.com"
func MaskEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return email
	}

	user := parts[0]
	domain := parts[1]

	if len(user) <= 2 {
		return email
	}

	return string(user[0]) + strings.Repeat("*", len(user)-2) + string(user[len(user)-1]) + "@" + domain
}

// MaskIdentifier masks an opaque identifier, keeping the first four
// characters. Short identifiers are fully redacted.
func MaskIdentifier(id string) string {
	if len(id) <= 4 {
		return strings.Repeat("*", len(id))
	}
	return id[:4] + strings.Repeat("*", len(id)-4)
}

// ContainsString checks if a slice contains a specific string
func ContainsString(slice []string, str string) bool {
	for _, s := range slice {
		if s == str {
			return true
		}
	}
	return false
}

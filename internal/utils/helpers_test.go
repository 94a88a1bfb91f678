package utils_test

import (
	"testing"

	"github.com/havenhomes/haven-backend/internal/utils"
)

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		want  string
	}{
		{"standard address", "user@example.com", "u**r@example.com"},
		{"long user part", "marta.jones@example.com", "m*********s@example.com"},
		{"short user part kept whole", "ab@example.com", "ab@example.com"},
		{"not an email", "not-an-email", "not-an-email"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := utils.MaskEmail(tt.email); got != tt.want {
				t.Errorf("MaskEmail(%q) = %q, want %q", tt.email, got, tt.want)
			}
		})
	}
}

func TestMaskIdentifier(t *testing.T) {
	if got := utils.MaskIdentifier("session-12345"); got != "sess*********" {
		t.Errorf("MaskIdentifier() = %q", got)
	}
	if got := utils.MaskIdentifier("abc"); got != "***" {
		t.Errorf("Short identifiers must be fully redacted, got %q", got)
	}
}

func TestContainsString(t *testing.T) {
	origins := []string{"http://localhost:3000", "https://app.example.com"}

	if !utils.ContainsString(origins, "https://app.example.com") {
		t.Error("Expected a present value to be found")
	}
	if utils.ContainsString(origins, "https://evil.example.com") {
		t.Error("Expected an absent value not to be found")
	}
}

package passwordcheck

import (
	"testing"
)

func containsRule(failed []string, rule string) bool {
	for _, f := range failed {
		if f == rule {
			return true
		}
	}
	return false
}

func TestValidateStrongPassword(t *testing.T) {
	result := Validate("Vt7#mQ2&pXz!", nil)

	if !result.Valid {
		t.Errorf("Expected a strong password to be valid, failed rules: %v", result.FailedRules)
	}
	if result.Score < 3 {
		t.Errorf("Expected score >= 3, got %d", result.Score)
	}
}

func TestValidateReportsAllFailuresIndependently(t *testing.T) {
	// Short, single-class and blocklisted at once. Every independent rule
	// must appear, not just the first.
	result := Validate("qwerty", nil)

	if result.Valid {
		t.Fatal("Expected an invalid result")
	}

	for _, rule := range []string{
		RuleMinLength,
		RuleUppercase,
		RuleDigit,
		RuleSymbol,
		RuleBlocklist,
		RuleKeyboardRun,
		RuleEntropy,
	} {
		if !containsRule(result.FailedRules, rule) {
			t.Errorf("Expected rule %q in failed rules %v", rule, result.FailedRules)
		}
	}
}

func TestValidateCharacterClassRules(t *testing.T) {
	tests := []struct {
		name     string
		password string
		rule     string
	}{
		{"missing lowercase", "VT7#MQ2&PXZ!", RuleLowercase},
		{"missing uppercase", "vt7#mq2&pxz!", RuleUppercase},
		{"missing digit", "Vtr#mQw&pXz!", RuleDigit},
		{"missing symbol", "Vt7RmQ2LpXz9", RuleSymbol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.password, nil)
			if !containsRule(result.FailedRules, tt.rule) {
				t.Errorf("Expected rule %q in failed rules %v", tt.rule, result.FailedRules)
			}
		})
	}
}

func TestValidateLengthBounds(t *testing.T) {
	if result := Validate("Vt7#mQ2", nil); !containsRule(result.FailedRules, RuleMinLength) {
		t.Error("Expected a 7-character password to fail min_length")
	}

	long := make([]byte, 0, 130)
	for i := 0; i < 43; i++ {
		long = append(long, 'V', 'x', '7')
	}
	long = append(long, '!')
	if result := Validate(string(long), nil); !containsRule(result.FailedRules, RuleMaxLength) {
		t.Error("Expected a 130-character password to fail max_length")
	}
}

func TestBlocklistStripsTrailingDigits(t *testing.T) {
	tests := []string{
		"password",
		"Password",
		"password123",
		"PASSWORD2024",
	}

	for _, candidate := range tests {
		result := Validate(candidate, nil)
		if !containsRule(result.FailedRules, RuleBlocklist) {
			t.Errorf("Expected %q to fail the blocklist rule", candidate)
		}
	}

	// Embedded digits are not trailing digits; this variant is not the
	// blocklist's business (other rules may still fail it).
	if result := Validate("pass1word", nil); containsRule(result.FailedRules, RuleBlocklist) {
		t.Error("Expected pass1word to pass the blocklist rule")
	}
}

func TestPersonalInfoRule(t *testing.T) {
	ctx := &AccountContext{
		Name:  "Marta Jones",
		Email: "marta.jones@example.com",
		Phone: "+1 (555) 867-5309",
	}

	tests := []struct {
		name      string
		candidate string
		fails     bool
	}{
		{"contains first name", "XqMarta!7Zw", true},
		{"contains last name", "ZjonesW#29x", true},
		{"contains email local part", "marta.jones!X7", true},
		{"contains phone digits", "Xw!5558675309z", true},
		{"contains phone last four", "Qz5309!wXt", true},
		{"unrelated password", "Vt7#mQ2&pXz!", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.candidate, ctx)
			got := containsRule(result.FailedRules, RulePersonalInfo)
			if got != tt.fails {
				t.Errorf("personal_info = %v, want %v (failed: %v)", got, tt.fails, result.FailedRules)
			}
		})
	}
}

func TestPersonalInfoIgnoresShortFragments(t *testing.T) {
	// Fragments under four characters are too common to match on.
	ctx := &AccountContext{Name: "Al Po"}

	result := Validate("XalW#29zQt!", ctx)
	if containsRule(result.FailedRules, RulePersonalInfo) {
		t.Error("Expected fragments shorter than four characters to be ignored")
	}
}

func TestSequentialRunRule(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		fails     bool
	}{
		{"ascending letters", "XwabcQ#7!t", true},
		{"descending letters", "XwcbaQ#7!t", true},
		{"ascending digits", "Xw123Q#z!t", true},
		{"descending digits", "Xw321Q#z!t", true},
		{"no run", "Vt7#mQ2&pXz!", false},
		{"two is not a run", "XwabQ#7!tz", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.candidate, nil)
			got := containsRule(result.FailedRules, RuleSequential)
			if got != tt.fails {
				t.Errorf("sequential_run = %v, want %v", got, tt.fails)
			}
		})
	}
}

func TestRepeatedRunRule(t *testing.T) {
	if result := Validate("Xw!!!Q7ztM", nil); !containsRule(result.FailedRules, RuleRepeated) {
		t.Error("Expected a triple repeat to fail repeated_run")
	}
	if result := Validate("Xw!!Q7ztM#", nil); containsRule(result.FailedRules, RuleRepeated) {
		t.Error("Expected a double repeat to pass repeated_run")
	}
}

func TestKeyboardRunRule(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		fails     bool
	}{
		{"qwerty row", "XZqweT#7!m", true},
		{"home row", "XZasdT#7!m", true},
		{"reversed row", "XZlkjT#7!m", true},
		{"no adjacency", "Vt7#mQ2&pXz!", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.candidate, nil)
			got := containsRule(result.FailedRules, RuleKeyboardRun)
			if got != tt.fails {
				t.Errorf("keyboard_run = %v, want %v", got, tt.fails)
			}
		})
	}
}

func TestEntropyScoreBuckets(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		want      int
	}{
		{"empty", "", 0},
		{"short lowercase", "abcd", 0},             // 4 * 4.7 = 18.8 bits
		{"seven lowercase", "mzqwvkr", 1},          // 7 * 4.7 = 32.9 bits
		{"eleven lowercase", "mzqwvkrtbpn", 2},     // 11 * 4.7 = 51.7 bits
		{"twelve mixed", "Vt7#mQ2&pXz!", 3},        // 12 * 6.57 = 78.8 bits
		{"sixteen mixed", "Vt7#mQ2&pXz!Kw9%", 4},   // 16 * 6.57 = 105 bits
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.candidate, nil)
			if result.Score != tt.want {
				t.Errorf("Score = %d, want %d", result.Score, tt.want)
			}
		})
	}
}

func TestScoreAloneDoesNotMakeValid(t *testing.T) {
	// High entropy but blocklisted after trailing-digit stripping must
	// still be invalid.
	result := Validate("Password123456789!", nil)
	if containsRule(result.FailedRules, RuleBlocklist) && result.Valid {
		t.Error("A blocklisted password must be invalid regardless of score")
	}

	// And a structurally complete password below the minimum score is
	// invalid too.
	short := Validate("Vt7#mQ2&", nil) // 8 * 6.57 = 52.6 bits, score 2
	if short.Valid {
		t.Error("Expected a low-entropy password to be invalid")
	}
	if !containsRule(short.FailedRules, RuleEntropy) {
		t.Errorf("Expected entropy rule failure, got %v", short.FailedRules)
	}
}

// Package passwordcheck scores candidate passwords against structural rules
// and an entropy estimate. All rules are evaluated independently so callers
// can return complete feedback instead of stopping at the first failure.
package passwordcheck

import (
	"math"
	"strings"
	"unicode"
)

// Rule names reported in Result.FailedRules.
const (
	RuleMinLength    = "min_length"
	RuleMaxLength    = "max_length"
	RuleLowercase    = "lowercase"
	RuleUppercase    = "uppercase"
	RuleDigit        = "digit"
	RuleSymbol       = "symbol"
	RuleBlocklist    = "common_password"
	RulePersonalInfo = "personal_info"
	RuleSequential   = "sequential_run"
	RuleRepeated     = "repeated_run"
	RuleKeyboardRun  = "keyboard_run"
	RuleEntropy      = "entropy"
)

const (
	minLength = 8
	maxLength = 128

	// runLength is the shortest sequential, repeated or keyboard run
	// that fails a candidate.
	runLength = 3

	// minScore is the entropy score a structurally valid password must
	// still reach.
	minScore = 3
)

// keyboardRows are the adjacency sources for keyboard-run detection.
var keyboardRows = []string{
	"qwertyuiop",
	"asdfghjkl",
	"zxcvbnm",
	"1234567890",
}

// AccountContext carries the account's own identifying strings. A candidate
// containing any of them (length >= 4) fails the personal-info rule.
type AccountContext struct {
	Name  string
	Email string
	Phone string
}

// Result is the outcome of validating a candidate password.
type Result struct {
	Valid       bool
	Score       int // 0 (very weak) .. 4 (very strong)
	FailedRules []string
}

// Validate checks a candidate password against every rule and the entropy
// estimate. accountCtx may be nil when no account context is available.
func Validate(candidate string, accountCtx *AccountContext) Result {
	var failed []string

	if len(candidate) < minLength {
		failed = append(failed, RuleMinLength)
	}
	if len(candidate) > maxLength {
		failed = append(failed, RuleMaxLength)
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range candidate {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	if !hasLower {
		failed = append(failed, RuleLowercase)
	}
	if !hasUpper {
		failed = append(failed, RuleUppercase)
	}
	if !hasDigit {
		failed = append(failed, RuleDigit)
	}
	if !hasSymbol {
		failed = append(failed, RuleSymbol)
	}

	if isBlocked(candidate) {
		failed = append(failed, RuleBlocklist)
	}

	if accountCtx != nil && containsPersonalInfo(candidate, accountCtx) {
		failed = append(failed, RulePersonalInfo)
	}

	if hasSequentialRun(candidate) {
		failed = append(failed, RuleSequential)
	}
	if hasRepeatedRun(candidate) {
		failed = append(failed, RuleRepeated)
	}
	if hasKeyboardRun(candidate) {
		failed = append(failed, RuleKeyboardRun)
	}

	score := entropyScore(candidate, hasLower, hasUpper, hasDigit, hasSymbol)
	if score < minScore {
		failed = append(failed, RuleEntropy)
	}

	return Result{
		Valid:       len(failed) == 0,
		Score:       score,
		FailedRules: failed,
	}
}

// isBlocked reports whether the candidate, lowercased and stripped of
// trailing digits, appears in the common-password blocklist.
func isBlocked(candidate string) bool {
	lowered := strings.ToLower(candidate)
	if commonPasswords[lowered] {
		return true
	}

	trimmed := strings.TrimRightFunc(lowered, unicode.IsDigit)
	return trimmed != lowered && commonPasswords[trimmed]
}

func containsPersonalInfo(candidate string, ctx *AccountContext) bool {
	lowered := strings.ToLower(candidate)

	for _, fragment := range personalFragments(ctx) {
		if len(fragment) >= 4 && strings.Contains(lowered, fragment) {
			return true
		}
	}

	return false
}

func personalFragments(ctx *AccountContext) []string {
	var fragments []string

	for _, part := range strings.Fields(strings.ToLower(ctx.Name)) {
		fragments = append(fragments, part)
	}

	if email := strings.ToLower(ctx.Email); email != "" {
		fragments = append(fragments, email)
		if at := strings.IndexByte(email, '@'); at > 0 {
			local := email[:at]
			fragments = append(fragments, local)
			// Split the local part on common separators too.
			for _, part := range strings.FieldsFunc(local, func(r rune) bool {
				return r == '.' || r == '_' || r == '-' || r == '+'
			}) {
				fragments = append(fragments, part)
			}
		}
	}

	if phone := strings.Map(keepDigits, ctx.Phone); phone != "" {
		fragments = append(fragments, phone)
		if len(phone) > 4 {
			fragments = append(fragments, phone[len(phone)-4:])
		}
	}

	return fragments
}

func keepDigits(r rune) rune {
	if unicode.IsDigit(r) {
		return r
	}
	return -1
}

// hasSequentialRun detects ascending or descending runs of letters or
// digits, e.g. "abc", "321".
func hasSequentialRun(candidate string) bool {
	runes := []rune(strings.ToLower(candidate))
	if len(runes) < runLength {
		return false
	}

	asc, desc := 1, 1
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		alnum := (unicode.IsLower(cur) && unicode.IsLower(prev)) ||
			(unicode.IsDigit(cur) && unicode.IsDigit(prev))

		if alnum && cur == prev+1 {
			asc++
		} else {
			asc = 1
		}
		if alnum && cur == prev-1 {
			desc++
		} else {
			desc = 1
		}

		if asc >= runLength || desc >= runLength {
			return true
		}
	}

	return false
}

func hasRepeatedRun(candidate string) bool {
	runes := []rune(candidate)
	count := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			count++
			if count >= runLength {
				return true
			}
		} else {
			count = 1
		}
	}
	return false
}

// hasKeyboardRun detects runs of physically adjacent keys in either
// direction along a keyboard row, e.g. "qwe", "lkj".
func hasKeyboardRun(candidate string) bool {
	lowered := strings.ToLower(candidate)
	if len(lowered) < runLength {
		return false
	}

	for i := 0; i+runLength <= len(lowered); i++ {
		fragment := lowered[i : i+runLength]
		for _, row := range keyboardRows {
			if strings.Contains(row, fragment) || strings.Contains(reverse(row), fragment) {
				return true
			}
		}
	}

	return false
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

// entropyScore estimates bits of entropy as length * log2(alphabet size)
// and buckets the result into a 0-4 score. Candidates that are pure
// dictionary entries have already failed the blocklist rule, so a naive
// alphabet estimate is acceptable here.
func entropyScore(candidate string, hasLower, hasUpper, hasDigit, hasSymbol bool) int {
	if candidate == "" {
		return 0
	}

	alphabet := 0
	if hasLower {
		alphabet += 26
	}
	if hasUpper {
		alphabet += 26
	}
	if hasDigit {
		alphabet += 10
	}
	if hasSymbol {
		alphabet += 33
	}
	if alphabet == 0 {
		return 0
	}

	bits := float64(len(candidate)) * math.Log2(float64(alphabet))

	switch {
	case bits < 28:
		return 0
	case bits < 36:
		return 1
	case bits < 60:
		return 2
	case bits < 80:
		return 3
	default:
		return 4
	}
}

package credential

import (
	"fmt"
	"strings"
	"unicode"
)

// Substrings that tank a password regardless of length.
var commonSubstrings = []string{
	"password", "passwort", "qwerty", "letmein", "welcome",
	"admin", "123456", "abc123", "iloveyou", "monkey",
}

// Score rates a candidate password 0-100 and returns every unmet hard
// requirement. A non-empty reasons slice means rejection; the score is
// advisory beyond that.
func Score(password string, minLength int) (int, []string) {
	var reasons []string

	if len(password) < minLength {
		reasons = append(reasons, fmt.Sprintf("must be at least %d characters", minLength))
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
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
		reasons = append(reasons, "must contain a lowercase letter")
	}
	if !hasUpper {
		reasons = append(reasons, "must contain an uppercase letter")
	}
	if !hasDigit {
		reasons = append(reasons, "must contain a digit")
	}

	score := 0

	// Length: full credit at 20 characters.
	n := len(password)
	if n > 20 {
		n = 20
	}
	score += n * 2

	if hasLower {
		score += 10
	}
	if hasUpper {
		score += 10
	}
	if hasDigit {
		score += 10
	}
	if hasSymbol {
		score += 15
	}

	lower := strings.ToLower(password)
	for _, sub := range commonSubstrings {
		if strings.Contains(lower, sub) {
			score -= 25
			break
		}
	}
	if hasRun(password, 3) {
		score -= 15
	}
	if hasSequence(lower, 4) {
		score -= 15
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, reasons
}

// hasRun reports a run of the same character longer than limit.
func hasRun(s string, limit int) bool {
	run := 1
	var prev rune
	for i, r := range s {
		if i > 0 && r == prev {
			run++
			if run > limit {
				return true
			}
		} else {
			run = 1
		}
		prev = r
	}
	return false
}

// hasSequence reports an ascending or descending character sequence of at
// least n, like "abcd" or "4321".
func hasSequence(s string, n int) bool {
	runes := []rune(s)
	asc, desc := 1, 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1]+1 {
			asc++
			desc = 1
		} else if runes[i] == runes[i-1]-1 {
			desc++
			asc = 1
		} else {
			asc, desc = 1, 1
		}
		if asc >= n || desc >= n {
			return true
		}
	}
	return false
}

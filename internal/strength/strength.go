// Package strength scores candidate passwords with a rule-based engine.
// Scoring is pure and deterministic; it is consulted at vault setup and by
// the password-change flow.
package strength

import (
	"strings"
	"unicode"
)

type Level int

const (
	VeryWeak Level = iota
	Weak
	Fair
	Good
	Strong
	VeryStrong
)

func (l Level) String() string {
	switch l {
	case VeryWeak:
		return "very weak"
	case Weak:
		return "weak"
	case Fair:
		return "fair"
	case Good:
		return "good"
	case Strong:
		return "strong"
	case VeryStrong:
		return "very strong"
	}
	return "unknown"
}

type Result struct {
	Level    Level
	Score    int
	Feedback string
}

// Acceptable reports whether the password clears the setup bar.
func (r Result) Acceptable() bool { return r.Level >= Good }

var commonPasswords = []string{
	"password", "123456", "12345678", "qwerty", "abc123", "letmein",
	"monkey", "dragon", "111111", "iloveyou", "admin", "welcome",
	"login", "master", "passw0rd", "football", "shadow", "sunshine",
}

var commonPatterns = []string{
	"123", "abc", "321", "000", "111", "aaa",
}

var keyboardRows = []string{
	"qwertyuiop", "asdfghjkl", "zxcvbnm", "1234567890",
}

var commonWords = []string{
	"love", "god", "sex", "money", "life", "work", "home", "family",
	"secret", "vault", "pass", "user", "name", "test",
}

// Score applies the additive rules and clamps the total at zero before
// mapping to a level.
func Score(password string) Result {
	var score int
	var notes []string

	n := len(password)
	switch {
	case n < 6:
		notes = append(notes, "too short")
	case n <= 7:
		score++
	case n <= 11:
		score += 2
	case n <= 15:
		score += 3
	default:
		score += 4
	}

	var hasLower, hasUpper, hasDigit, hasSymbol, hasSpace bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsSpace(r):
			hasSpace = true
		default:
			hasSymbol = true
		}
	}
	classes := 0
	for _, present := range []bool{hasLower, hasUpper, hasDigit} {
		if present {
			classes++
			score++
		}
	}
	if hasSymbol {
		classes++
		score += 2
	}
	if classes >= 3 {
		score++
	}
	if classes == 4 {
		score++
	}
	if hasSpace {
		score++
	}
	if classes < 3 {
		notes = append(notes, "add more character variety")
	}

	lower := strings.ToLower(password)
	for _, cp := range commonPasswords {
		if strings.Contains(lower, cp) {
			score -= 3
			notes = append(notes, "contains a common password")
			break
		}
	}
	for _, pat := range commonPatterns {
		if strings.Contains(lower, pat) {
			score--
			notes = append(notes, "contains a predictable pattern")
			break
		}
	}
	if hasRepeatRun(password, 3) {
		score--
		notes = append(notes, "repeated characters")
	}
	if hasKeyboardRun(lower) {
		score -= 2
		notes = append(notes, "keyboard sequence")
	}
	for _, w := range commonWords {
		if len(w) >= 3 && strings.Contains(lower, w) {
			score--
			notes = append(notes, "contains a common word")
			break
		}
	}

	if score < 0 {
		score = 0
	}

	feedback := "strong password"
	if len(notes) > 0 {
		feedback = strings.Join(notes, "; ")
	}
	return Result{Level: levelFor(score), Score: score, Feedback: feedback}
}

func levelFor(score int) Level {
	switch {
	case score <= 2:
		return VeryWeak
	case score <= 4:
		return Weak
	case score <= 6:
		return Fair
	case score <= 8:
		return Good
	case score <= 10:
		return Strong
	default:
		return VeryStrong
	}
}

func hasRepeatRun(s string, run int) bool {
	count := 0
	var prev rune
	for i, r := range s {
		if i > 0 && r == prev {
			count++
			if count+1 >= run {
				return true
			}
		} else {
			count = 0
		}
		prev = r
	}
	return false
}

// hasKeyboardRun reports a 3-character substring matching a forward or
// reversed run from one of the fixed keyboard rows.
func hasKeyboardRun(lower string) bool {
	for _, row := range keyboardRows {
		for i := 0; i+3 <= len(row); i++ {
			run := row[i : i+3]
			if strings.Contains(lower, run) || strings.Contains(lower, reverse(run)) {
				return true
			}
		}
	}
	return false
}

func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

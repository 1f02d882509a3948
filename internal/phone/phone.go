// Package phone normalizes customer phone numbers to the international
// form used as the conversation key throughout the service.
package phone

import (
	"regexp"
	"strings"
)

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{9,14}$`)

// Normalize strips separators and coerces the Russian local form
// (leading 8) to the +7 international form. A bare digit string gains a
// leading plus.
func Normalize(raw string) string {
	if raw == "" {
		return raw
	}
	number := strings.TrimSpace(raw)
	number = strings.ReplaceAll(number, " ", "")
	number = strings.ReplaceAll(number, "-", "")
	if strings.HasPrefix(number, "8") && len(number) > 1 {
		number = "+7" + number[1:]
	}
	if !strings.HasPrefix(number, "+") {
		number = "+" + number
	}
	return number
}

// Valid reports whether the number normalizes to a plausible
// international number (plus sign, 10 to 15 digits, no leading zero).
func Valid(raw string) bool {
	if raw == "" {
		return false
	}
	return e164Pattern.MatchString(Normalize(raw))
}

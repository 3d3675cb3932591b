// Package format normalizes free-text numeric input from the session UI
// into canonical display strings.
package format

import (
	"strconv"
	"strings"
)

// Duration normalizes raw digit input into a colon-separated duration.
// Digits are grouped in pairs from the left, mirroring the masked input
// field on the member portal: "1300" -> "13:00", "013000" -> "01:30:00".
// A trailing incomplete pair is dropped (the mask shows it only once the
// pair completes). At most three groups (hh:mm:ss) are kept. Formatting
// is idempotent: feeding the output back in returns it unchanged.
func Duration(raw string) string {
	digits := digitsOnly(raw)
	if digits == "" {
		return ""
	}
	if len(digits) == 1 {
		return "0" + digits
	}
	if len(digits) > 6 {
		digits = digits[:6]
	}
	// Drop a trailing incomplete pair.
	if len(digits)%2 == 1 {
		digits = digits[:len(digits)-1]
	}

	groups := make([]string, 0, 3)
	for i := 0; i < len(digits); i += 2 {
		groups = append(groups, digits[i:i+2])
	}
	return strings.Join(groups, ":")
}

// Weight parses free-text weight input, tolerating a comma decimal
// separator and surrounding whitespace. Returns 0 for unparseable input.
func Weight(raw string) float64 {
	s := strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// Reps parses free-text rep-count input. Returns 0 for unparseable or
// negative input.
func Reps(raw string) int {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	// Leading zeros are kept only when they carry positional meaning;
	// a bare run of zeros collapses to one pair.
	out := b.String()
	if strings.Trim(out, "0") == "" && len(out) > 2 {
		return "00"
	}
	return out
}

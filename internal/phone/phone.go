// Package phone canonicalizes caller-supplied phone numbers into the chat
// network's user id format. It is a pure function with a fixed contract:
//
//   - every non-digit character is stripped,
//   - a leading "0" (local Indonesian dialing) becomes the "62" country code,
//   - the "@c.us" user suffix is appended if missing.
//
// "0812-3456 7890" and "628123456790@c.us" both canonicalize cleanly; the
// function never fails, it only normalizes.
package phone

import "strings"

const userSuffix = "@c.us"

// Canonicalize converts a raw phone number into a canonical network user id.
func Canonicalize(raw string) string {
	number, suffix := raw, ""
	if i := strings.Index(raw, "@"); i >= 0 {
		number, suffix = raw[:i], raw[i:]
	}

	var b strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if strings.HasPrefix(digits, "0") {
		digits = "62" + digits[1:]
	}

	if suffix == "" {
		suffix = userSuffix
	}
	return digits + suffix
}

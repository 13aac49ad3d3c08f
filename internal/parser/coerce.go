package parser

import (
	"strings"
	"time"

	"github.com/fakturo/fakturo/internal/types"
)

// parseDate parses the fixed day-month-year pattern both source encodings
// use. Unparsable dates yield the zero value, not an error.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}

	t, err := time.Parse(types.DateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// parseCents converts a decimal amount string to integer minor currency
// units by digit scaling, never by floating-point arithmetic. Both comma and
// dot decimal separators are accepted; the comma form is what the upstream
// systems emit. Coercion failures yield (0, false).
func parseCents(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	negative := false
	if s[0] == '-' {
		negative = true
		s = s[1:]
	} else if s[0] == '+' {
		s = s[1:]
	}

	whole := s
	frac := ""
	if idx := strings.IndexAny(s, ",."); idx >= 0 {
		whole = s[:idx]
		frac = s[idx+1:]
		if strings.ContainsAny(frac, ",.") {
			return 0, false
		}
	}

	var cents int64
	if whole != "" {
		for i := 0; i < len(whole); i++ {
			c := whole[i]
			if c < '0' || c > '9' {
				return 0, false
			}
			cents = cents*10 + int64(c-'0')
		}
	} else if frac == "" {
		return 0, false
	}
	cents *= 100

	// Fraction digits beyond minor-unit precision are truncated.
	for i := 0; i < len(frac) && i < 2; i++ {
		c := frac[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		if i == 0 {
			cents += int64(c-'0') * 10
		} else {
			cents += int64(c - '0')
		}
	}

	if negative {
		cents = -cents
	}
	return cents, true
}

// column returns the trimmed field at the given zero-based position, or an
// empty string when the row is too short.
func column(row []string, index int) string {
	if index < 0 || index >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[index])
}

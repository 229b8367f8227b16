/**
 * @description
 * Money parsing and formatting for the ledger. All arithmetic happens on
 * int64 paisa (two fractional digits); decimal strings only appear at the
 * boundary and in persisted rows.
 */

package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidAmount is returned for amounts that are unparsable, carry more
// than two fractional digits, or are not strictly positive where a positive
// amount is required.
var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount converts a decimal string like "150", "150.5" or "150.50" into
// paisa. It rejects values with more than two fractional digits and anything
// that does not parse as a plain signed decimal.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "+") {
		return 0, ErrInvalidAmount
	}
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	// After sign handling both parts must be bare digit runs, so a stray
	// sign or letter inside the number cannot survive into ParseInt.
	if whole == "" || len(frac) > 2 || !isDigits(whole) || !isDigits(frac) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	for len(frac) < 2 {
		frac += "0"
	}

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		// Out of int64 range.
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	f, _ := strconv.ParseInt(frac, 10, 64)
	if w > (math.MaxInt64-f)/100 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	paisa := w*100 + f
	if neg {
		paisa = -paisa
	}
	return paisa, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ParsePositiveAmount is ParseAmount restricted to amounts > 0, the rule for
// every transfer.
func ParsePositiveAmount(s string) (int64, error) {
	paisa, err := ParseAmount(s)
	if err != nil {
		return 0, err
	}
	if paisa <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return paisa, nil
}

// FormatAmount renders paisa as a two-digit decimal string, the persisted
// and user-visible representation.
func FormatAmount(paisa int64) string {
	sign := ""
	if paisa < 0 {
		sign = "-"
		paisa = -paisa
	}
	return fmt.Sprintf("%s%d.%02d", sign, paisa/100, paisa%100)
}

// Package money converts between decimal amount strings used by vendor APIs
// and signed int64 minor currency units used everywhere internally.
package money

import (
	"fmt"
	"strconv"
	"strings"
)

// minorDigits is the number of decimal places for supported currencies.
// All three vendor platforms report two-decimal fiat currencies.
const minorDigits = 2

// ParseMinor converts a decimal amount string like "-1200.50" to signed minor
// units (-120050). String manipulation avoids floating point drift.
func ParseMinor(amount string) (int64, error) {
	s := strings.TrimSpace(amount)
	if s == "" {
		return 0, fmt.Errorf("amount is required")
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" {
		return 0, fmt.Errorf("invalid amount %q", amount)
	}

	intPart := s
	decPart := ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		intPart = s[:idx]
		decPart = s[idx+1:]
	}
	if intPart == "" {
		intPart = "0"
	}

	if len(decPart) < minorDigits {
		decPart += strings.Repeat("0", minorDigits-len(decPart))
	} else if len(decPart) > minorDigits {
		// Vendors never report sub-cent precision; reject rather than round
		return 0, fmt.Errorf("amount %q has more than %d decimal places", amount, minorDigits)
	}

	v, err := strconv.ParseInt(intPart+decPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if neg {
		v = -v
	}
	return v, nil
}

// FormatMinor converts signed minor units to a decimal string: -120050 →
// "-1200.50".
func FormatMinor(minor int64) string {
	neg := minor < 0
	if neg {
		minor = -minor
	}
	s := fmt.Sprintf("%d.%02d", minor/100, minor%100)
	if neg {
		return "-" + s
	}
	return s
}

// Abs returns the magnitude of a minor-unit amount
func Abs(minor int64) int64 {
	if minor < 0 {
		return -minor
	}
	return minor
}

// Package core provides money parsing and handling utilities.
//
// Amounts are carried as integer cents and quantities as integer thousandths.
// JSON encodes both as plain decimal numbers so clients never see the scaled form.
package core

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Amount ceilings. A single amount stays below 100 billion in currency units and any
// balance or aggregate below 10 trillion, so sums of stored values never leave int64
// and SQLite integer arithmetic never falls back to REAL.
const (
	MaxAmountCents  int64 = 10_000_000_000_000
	MaxBalanceCents int64 = 1_000_000_000_000_000
)

// AddCents returns a+b, or false when the sum leaves [-MaxBalanceCents, MaxBalanceCents].
func AddCents(a, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	sum := a + b
	if sum > MaxBalanceCents || sum < -MaxBalanceCents {
		return 0, false
	}
	return sum, true
}

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. The result is always positive cents.
// Returns an error for invalid formats, negative values, or zero amounts.
//
// Examples:
//
//	ParseDecimalToCents("12.34") -> 1234, nil
//	ParseDecimalToCents("12,34") -> 1234, nil
//	ParseDecimalToCents("12.345") -> 1235, nil (rounds up)
//	ParseDecimalToCents("12.344") -> 1234, nil (rounds down)
func ParseDecimalToCents(s string) (int64, error) {
	cents, err := parseScaled(s, 2)
	if err != nil {
		return 0, err
	}
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// ParseBalanceToCents is ParseDecimalToCents but accepts zero, as a reconciled bank balance may be empty.
func ParseBalanceToCents(s string) (int64, error) {
	return parseScaled(s, 2)
}

// parseScaled parses an unsigned decimal into an integer scaled by 10^digits,
// half-up rounding on the first dropped digit.
func parseScaled(s string, digits int) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	scale := int64(1)
	for i := 0; i < digits; i++ {
		scale *= 10
	}
	if iv > (1<<63-1)/scale-1 {
		return 0, ErrInvalidAmount
	}
	var frac int64
	for i := 0; i < digits; i++ {
		frac *= 10
		if i < len(fracPart) {
			frac += int64(fracPart[i] - '0')
		}
	}
	if len(fracPart) > digits && fracPart[digits] >= '5' {
		frac++
	}
	return iv*scale + frac, nil
}

// formatScaled renders v/10^digits with exactly digits decimals.
func formatScaled(v int64, digits int) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := strconv.FormatInt(v, 10)
	for len(s) <= digits {
		s = "0" + s
	}
	out := s[:len(s)-digits] + "." + s[len(s)-digits:]
	if neg {
		return "-" + out
	}
	return out
}

// Float returns the amount in currency units for spreadsheet cells.
// Use cents for calculations to avoid floating-point precision issues.
func (m Money) Float() float64 {
	return float64(m.Cents) / 100.0
}

func (m Money) String() string {
	return formatScaled(m.Cents, 2)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a decimal string. Sign checks belong to Validate.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw, neg, err := unquoteNumber(data)
	if err != nil {
		return err
	}
	cents, err := parseScaled(raw, 2)
	if err != nil {
		return err
	}
	if neg {
		cents = -cents
	}
	m.Cents = cents
	return nil
}

func (q Quantity) String() string {
	return formatScaled(q.Milli, 3)
}

func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(q.String()), nil
}

func (q *Quantity) UnmarshalJSON(data []byte) error {
	raw, neg, err := unquoteNumber(data)
	if err != nil {
		return err
	}
	milli, err := parseScaled(raw, 3)
	if err != nil {
		return err
	}
	if neg {
		milli = -milli
	}
	q.Milli = milli
	return nil
}

func unquoteNumber(data []byte) (string, bool, error) {
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		var s string
		if err2 := json.Unmarshal(data, &s); err2 != nil {
			return "", false, ErrInvalidAmount
		}
		n = json.Number(s)
	}
	raw := strings.TrimSpace(n.String())
	if strings.ContainsAny(raw, "eE") {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", false, ErrInvalidAmount
		}
		raw = strconv.FormatFloat(f, 'f', -1, 64)
	}
	neg := strings.HasPrefix(raw, "-")
	return strings.TrimPrefix(raw, "-"), neg, nil
}

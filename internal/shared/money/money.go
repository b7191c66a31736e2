// Package money converts between the integer-cents amounts stored locally and
// the major-unit decimal strings the payment provider expects.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrPrecision = errors.New("money: amount has more than two decimal places")

// ToDecimal formats cents as a provider value: 4990 -> "49.90".
func ToDecimal(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// FromDecimal parses a provider value back into cents: "49.90" -> 4990.
// Values that do not fit in whole cents are rejected instead of rounded.
func FromDecimal(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("money: parse %q: %w", s, err)
	}
	shifted := d.Shift(2)
	if !shifted.IsInteger() {
		return 0, ErrPrecision
	}
	return shifted.IntPart(), nil
}

// FormatBRL renders cents for display: 4990 -> "R$ 49,90".
func FormatBRL(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	whole := cents / 100
	frac := cents % 100

	raw := fmt.Sprintf("%d", whole)
	var sb strings.Builder
	for i, r := range raw {
		if i > 0 && (len(raw)-i)%3 == 0 {
			sb.WriteByte('.')
		}
		sb.WriteRune(r)
	}
	return fmt.Sprintf("%sR$ %s,%02d", sign, sb.String(), frac)
}

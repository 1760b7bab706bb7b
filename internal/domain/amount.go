package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Milliunits is a currency amount expressed in thousandths of the budget's
// currency unit, the way the ledger service stores amounts.
type Milliunits int64

// Decimal returns the amount in currency units.
func (m Milliunits) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -3)
}

// String formats the amount with three decimal places, e.g. "-12.340".
func (m Milliunits) String() string {
	return m.Decimal().StringFixed(3)
}

// ParseMilliunits parses a decimal currency amount such as "12.34" or "-0.5".
// Amounts finer than a milliunit are rejected rather than rounded.
func ParseMilliunits(s string) (Milliunits, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("ParseMilliunits: %q: %w", s, err)
	}
	scaled := d.Shift(3)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("ParseMilliunits: %q has more than 3 decimal places", s)
	}
	return Milliunits(scaled.IntPart()), nil
}

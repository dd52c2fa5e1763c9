// Package decimals holds the decimal construction helpers shared by the
// simulator. All monetary values are shopspring decimals; float64 enters
// only through FromFloat, which round-trips through a 12-significant-digit
// string so that binary-float noise never reaches a price comparison.
package decimals

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// Precision is the number of significant digits carried when converting
// from float64.
const Precision = 12

// FromFloat converts a float64 to a Decimal at Precision significant digits.
func FromFloat(value float64) decimal.Decimal {
	s := strconv.FormatFloat(value, 'g', Precision, 64)
	d, err := decimal.NewFromString(s)
	if err != nil {
		// FormatFloat output is always a valid decimal string
		panic("decimals: unparseable float format: " + s)
	}
	return d
}

// FromInt converts an int to a Decimal.
func FromInt(value int) decimal.Decimal {
	return decimal.NewFromInt(int64(value))
}

// Hundred is the percentage multiplier.
var Hundred = decimal.NewFromInt(100)

// MilestoneThresholds are the profit milestones, in descending order. The
// latching pass walks them high to low so that a single jump past several
// milestones records the same max-loss on each.
var MilestoneThresholds = []decimal.Decimal{
	decimal.RequireFromString("2"),
	decimal.RequireFromString("1.75"),
	decimal.RequireFromString("1.5"),
	decimal.RequireFromString("1.25"),
	decimal.RequireFromString("1"),
	decimal.RequireFromString("0.75"),
	decimal.RequireFromString("0.5"),
	decimal.RequireFromString("0.25"),
}

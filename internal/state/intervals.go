package state

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// IntervalType marks which side of the initial price an interval sits on
type IntervalType string

const (
	IntervalLong  IntervalType = "LONG"
	IntervalShort IntervalType = "SHORT"
)

// HalfOrder is one side of one interval. A side must be armed (crossed)
// before it can fire: the market has to trade through the trigger price at
// least once after activation, so a quote landing exactly on the level
// cannot round-trip.
type HalfOrder struct {
	Price         decimal.Decimal
	Active        bool
	Crossed       bool
	BoughtAtPrice *decimal.Decimal
	SoldAtPrice   *decimal.Decimal
}

// Interval pairs a buy and a sell half-order around a signed position
// limit. SELL.Price - BUY.Price equals the configured interval profit at
// all times, drift corrections included.
type Interval struct {
	Type          IntervalType
	PositionLimit int
	Buy           HalfOrder
	Sell          HalfOrder
}

// Activate flips the given side on and the opposite side off, resetting
// both crossed latches.
func (iv *Interval) Activate(buySide bool) {
	if buySide {
		iv.Buy.Active = true
		iv.Buy.Crossed = false
		iv.Sell.Active = false
		iv.Sell.Crossed = false
	} else {
		iv.Sell.Active = true
		iv.Sell.Crossed = false
		iv.Buy.Active = false
		iv.Buy.Crossed = false
	}
}

// ShiftPrices moves both trigger prices by delta, preserving the spread.
func (iv *Interval) ShiftPrices(delta decimal.Decimal) {
	iv.Buy.Price = iv.Buy.Price.Add(delta)
	iv.Sell.Price = iv.Sell.Price.Add(delta)
}

func (iv *Interval) check(index int, intervalProfit decimal.Decimal) error {
	if iv.Buy.Active == iv.Sell.Active {
		return fmt.Errorf("interval %d: exactly one of BUY/SELL must be active (buy=%v sell=%v)",
			index, iv.Buy.Active, iv.Sell.Active)
	}
	if iv.Buy.Crossed && !iv.Buy.Active {
		return fmt.Errorf("interval %d: BUY crossed while inactive", index)
	}
	if iv.Sell.Crossed && !iv.Sell.Active {
		return fmt.Errorf("interval %d: SELL crossed while inactive", index)
	}
	if spread := iv.Sell.Price.Sub(iv.Buy.Price); !spread.Equal(intervalProfit) {
		return fmt.Errorf("interval %d: SELL-BUY spread %s != interval profit %s",
			index, spread, intervalProfit)
	}
	return nil
}

package core

import (
	"github.com/shopspring/decimal"
)

// OrderSide identifies which half of an interval fired
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Snapshot is a single top-of-book quote
type Snapshot struct {
	Ask       decimal.Decimal
	Bid       decimal.Decimal
	Timestamp string
}

// HasPrices reports whether both sides of the quote are present
func (s Snapshot) HasPrices() bool {
	return !s.Ask.IsZero() && !s.Bid.IsZero()
}

// TradingLog is an append-only record of one execution
type TradingLog struct {
	Timestamp        string
	Action           OrderSide
	Price            decimal.Decimal
	PreviousPosition int
	NewPosition      int
	TradingCosts     decimal.Decimal
}

// StockResult is the per-security outcome of one simulation run
type StockResult struct {
	RunID          string
	Date           string
	Ticker         string
	RealizedPnLPct float64
	ExitPnLPct     float64
	MaxProfitPct   float64
	MaxLossPct     float64
	NumTrades      int
	Profitable     bool
}

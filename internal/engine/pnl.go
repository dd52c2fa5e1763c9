package engine

import (
	"fmt"

	"hedgeware/internal/core"
	"hedgeware/internal/state"
	"hedgeware/pkg/decimals"

	"github.com/shopspring/decimal"
)

// setNewPosition books an execution: updates the signed position, applies
// the cash-flow change to the net position value, and appends a trading
// log entry.
func setNewPosition(st *state.StockState, newPosition int, snapshot core.Snapshot) {
	previousPosition := st.Position

	maxPosition := st.TargetPosition + st.SharesPerInterval
	if newPosition > maxPosition || newPosition < -maxPosition {
		panic(fmt.Sprintf("execution for %s drives position %d past limit %d",
			st.BrokerageID, newPosition, maxPosition))
	}

	st.Position = newPosition

	orderSide := core.OrderSideSell
	if newPosition > previousPosition {
		orderSide = core.OrderSideBuy
	}

	quotedPrice := snapshot.Bid
	if orderSide == core.OrderSideBuy {
		quotedPrice = snapshot.Ask
	}

	st.NetPositionValue = newNetPositionValue(
		st.NetPositionValue,
		st.BrokerageTradingCostPerShare,
		orderSide,
		newPosition,
		previousPosition,
		quotedPrice,
	)

	quantity := newPosition - previousPosition
	if quantity < 0 {
		quantity = -quantity
	}
	if quantity > 0 {
		st.TradingLogs = append(st.TradingLogs, core.TradingLog{
			Timestamp:        snapshot.Timestamp,
			Action:           orderSide,
			Price:            quotedPrice,
			PreviousPosition: previousPosition,
			NewPosition:      newPosition,
			TradingCosts:     decimals.FromInt(quantity).Mul(st.BrokerageTradingCostPerShare),
		})
	}
}

// newNetPositionValue treats the running value as signed cash flow: buys
// subtract order value, sells add it, and commissions always subtract.
func newNetPositionValue(
	currentPositionValue decimal.Decimal,
	commissionPerShare decimal.Decimal,
	orderSide core.OrderSide,
	newPosition int,
	previousPosition int,
	priceSetAt decimal.Decimal,
) decimal.Decimal {
	quantity := newPosition - previousPosition
	if quantity < 0 {
		quantity = -quantity
	}

	commissionCosts := decimals.FromInt(quantity).Mul(commissionPerShare)
	change := commissionCosts.Neg()

	orderValue := decimals.FromInt(quantity).Mul(priceSetAt)
	switch orderSide {
	case core.OrderSideBuy:
		change = change.Sub(orderValue)
	case core.OrderSideSell:
		change = change.Add(orderValue)
	}

	return currentPositionValue.Add(change)
}

// UpdateExitPnL recomputes the mark-to-market exit PnL percentage and the
// moving watermarks. With a flat position the previous value is retained.
func UpdateExitPnL(st *state.StockState) {
	if st.Position == 0 {
		return
	}
	if st.LastAsk == nil || st.LastBid == nil {
		return
	}

	orderSide := core.OrderSideBuy
	if st.Position > 0 {
		orderSide = core.OrderSideSell
	}

	priceSetAt := *st.LastBid
	if orderSide == core.OrderSideBuy {
		priceSetAt = *st.LastAsk
	}

	ifClosingPositionValue := newNetPositionValue(
		st.NetPositionValue,
		st.BrokerageTradingCostPerShare,
		orderSide,
		0,
		st.Position,
		priceSetAt,
	)

	exitPnLAsPercentage := ifClosingPositionValue.
		Div(percentageDenominator(st)).
		Mul(decimals.Hundred)

	st.ExitPnLAsPercentage = exitPnLAsPercentage

	if exitPnLAsPercentage.GreaterThan(st.MaxMovingProfitAsPercentage) {
		st.MaxMovingProfitAsPercentage = exitPnLAsPercentage
	}
	if exitPnLAsPercentage.LessThan(st.MaxMovingLossAsPercentage) {
		st.MaxMovingLossAsPercentage = exitPnLAsPercentage
	}

	// Milestones are ordered high to low; one pass latches every
	// threshold the exit PnL has reached, each with the loss watermark
	// as of this snapshot.
	for i := range st.Milestones {
		m := &st.Milestones[i]
		if !m.Reached && exitPnLAsPercentage.GreaterThanOrEqual(m.Threshold) {
			m.Reached = true
			m.MaxLossWhenReached = st.MaxMovingLossAsPercentage
		}
	}
}

// SetRealizedPnL finalizes the realized PnL percentage. Calling it with an
// open position is a programming error.
func SetRealizedPnL(st *state.StockState) {
	if st.Position != 0 {
		panic(fmt.Sprintf("cannot set realized PnL for %s: position is %d, not zero",
			st.BrokerageID, st.Position))
	}

	st.RealizedPnLAsPercentage = st.NetPositionValue.
		Div(percentageDenominator(st)).
		Mul(decimals.Hundred)
}

// FinalizeOnExhausted closes the position at the last quote and realizes
// the PnL once the historical replay runs out.
func FinalizeOnExhausted(st *state.StockState) {
	UpdateExitPnL(st)

	if st.Position != 0 && st.LastAsk != nil && st.LastBid != nil {
		setNewPosition(st, 0, core.Snapshot{Ask: *st.LastAsk, Bid: *st.LastBid})
	}

	SetRealizedPnL(st)
}

func percentageDenominator(st *state.StockState) decimal.Decimal {
	return decimals.FromInt(st.TargetPosition + st.SharesPerInterval).Mul(st.InitialPrice)
}

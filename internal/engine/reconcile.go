// Package engine implements the per-security reconciliation step: crossing
// detection, execution selection, ladder maintenance, and PnL updates for
// one snapshot at a time.
package engine

import (
	"fmt"

	"hedgeware/internal/core"
	"hedgeware/internal/state"
)

// Reconcile feeds one snapshot through the state machine. It mutates the
// state in place and returns the snapshot it processed. Bad market data
// never produces an error; only invariant violations escape, as panics.
func Reconcile(st *state.StockState, snapshot core.Snapshot) core.Snapshot {
	if isSnapshotChange(st, snapshot) {
		ask, bid := snapshot.Ask, snapshot.Bid
		st.LastAsk = &ask
		st.LastBid = &bid
		UpdateExitPnL(st)
	}

	if isWideBidAskSpread(st, snapshot) || !snapshot.HasPrices() {
		return snapshot
	}

	checkCrossings(st, snapshot)

	indicesToExecute := buysToExecute(st, snapshot)
	numToBuy := len(indicesToExecute)

	numToSell := 0
	if numToBuy == 0 {
		indicesToExecute = sellsToExecute(st, snapshot)
		numToSell = len(indicesToExecute)
	}

	if numToBuy > 0 {
		setNewPosition(st, st.Position+st.SharesPerInterval*numToBuy, snapshot)
	} else if numToSell > 0 {
		setNewPosition(st, st.Position-st.SharesPerInterval*numToSell, snapshot)
	}

	if numToBuy > 0 || numToSell > 0 {
		// A flipped half-order may already be through its trigger on this
		// same snapshot; re-arm before the next quote arrives.
		checkCrossings(st, snapshot)
	}

	if err := st.CheckInvariants(); err != nil {
		panic(fmt.Sprintf("reconcile invariant violated for %s on %s: %v",
			st.BrokerageID, snapshot.Timestamp, err))
	}

	return snapshot
}

func isSnapshotChange(st *state.StockState, snapshot core.Snapshot) bool {
	if st.LastAsk == nil || st.LastBid == nil {
		return true
	}
	return !st.LastAsk.Equal(snapshot.Ask) || !st.LastBid.Equal(snapshot.Bid)
}

// isWideBidAskSpread guards against book dislocations: a spread at least
// one interval wide would let a single quote round-trip phantom fills.
func isWideBidAskSpread(st *state.StockState, snapshot core.Snapshot) bool {
	return snapshot.Ask.Sub(snapshot.Bid).GreaterThanOrEqual(st.SpaceBetweenIntervals)
}

func checkCrossings(st *state.StockState, snapshot core.Snapshot) {
	for i := range st.Intervals {
		interval := &st.Intervals[i]

		if interval.Buy.Active && !interval.Buy.Crossed &&
			snapshot.Ask.LessThan(interval.Buy.Price) {
			interval.Buy.Crossed = true
		}

		if interval.Sell.Active && !interval.Sell.Crossed &&
			snapshot.Bid.GreaterThan(interval.Sell.Price) {
			interval.Sell.Crossed = true
		}
	}
}

// buysToExecute scans the ladder from the lowest sell price upward and
// collects every armed buy the ask has reached, limited by each
// interval's position limit. Fired intervals flip to the sell side; a
// static ladder then back-fills skipped levels and a drifting ladder
// applies the trailing correction.
func buysToExecute(st *state.StockState, snapshot core.Snapshot) []int {
	newPosition := st.Position
	var indicesToExecute []int

	for i := len(st.Intervals) - 1; i >= 0; i-- {
		interval := &st.Intervals[i]

		if snapshot.Ask.GreaterThanOrEqual(interval.Buy.Price) &&
			interval.Buy.Active && interval.Buy.Crossed {
			if newPosition < interval.PositionLimit {
				indicesToExecute = append([]int{i}, indicesToExecute...)
				newPosition += st.SharesPerInterval
			}
		}
	}

	if st.IsStaticIntervals {
		indicesToExecute = addSkippedBuys(st, indicesToExecute)
	}

	for _, index := range indicesToExecute {
		interval := &st.Intervals[index]
		ask := snapshot.Ask
		interval.Sell.BoughtAtPrice = &ask
		interval.Activate(false)
	}

	if len(indicesToExecute) > 0 && !st.IsStaticIntervals {
		correctBadBuy(st, indicesToExecute)
	}

	return indicesToExecute
}

// sellsToExecute is the mirror scan, highest sell price downward.
func sellsToExecute(st *state.StockState, snapshot core.Snapshot) []int {
	newPosition := st.Position
	var indicesToExecute []int

	for i := 0; i < len(st.Intervals); i++ {
		interval := &st.Intervals[i]

		if snapshot.Bid.LessThanOrEqual(interval.Sell.Price) &&
			interval.Sell.Active && interval.Sell.Crossed {
			if newPosition > interval.PositionLimit {
				indicesToExecute = append(indicesToExecute, i)
				newPosition -= st.SharesPerInterval
			}
		}
	}

	if st.IsStaticIntervals {
		indicesToExecute = addSkippedSells(st, indicesToExecute)
	}

	for _, index := range indicesToExecute {
		interval := &st.Intervals[index]
		bid := snapshot.Bid
		interval.Buy.SoldAtPrice = &bid
		interval.Activate(true)
	}

	if len(indicesToExecute) > 0 && !st.IsStaticIntervals {
		correctBadSell(st, indicesToExecute)
	}

	return indicesToExecute
}

// addSkippedBuys back-fills a static ladder: every still-active buy below
// the deepest fired level joins the execution list, so the ladder never
// leaves an unfired active level behind on the buy side.
func addSkippedBuys(st *state.StockState, indicesToExecute []int) []int {
	if len(indicesToExecute) == 0 {
		return indicesToExecute
	}

	bottomOriginalIndex := indicesToExecute[len(indicesToExecute)-1]
	for i := len(st.Intervals) - 1; i > bottomOriginalIndex; i-- {
		if st.Intervals[i].Buy.Active {
			indicesToExecute = append(indicesToExecute, i)
		}
	}

	return indicesToExecute
}

func addSkippedSells(st *state.StockState, indicesToExecute []int) []int {
	if len(indicesToExecute) == 0 {
		return indicesToExecute
	}

	topOriginalIndex := indicesToExecute[0]
	for i := 0; i < topOriginalIndex; i++ {
		if st.Intervals[i].Sell.Active {
			indicesToExecute = append([]int{i}, indicesToExecute...)
		}
	}

	return indicesToExecute
}

// correctBadBuy re-centers a drifting ladder after buys. When the
// interval below the deepest fired level still has its buy active, the
// grid has trailed the market: flip that neighbor to the sell side, flip
// the shallowest fired interval back to the buy side, and shift every
// trigger up by one interval spacing. The shift moves both sides equally,
// so the per-interval profit spread is untouched.
func correctBadBuy(st *state.StockState, indicesToExecute []int) {
	lowestIndexExecuted := indicesToExecute[len(indicesToExecute)-1]
	if lowestIndexExecuted >= len(st.Intervals)-1 {
		return
	}

	below := &st.Intervals[lowestIndexExecuted+1]
	if !below.Buy.Active {
		return
	}

	below.Activate(false)
	st.Intervals[indicesToExecute[0]].Activate(true)

	for i := range st.Intervals {
		st.Intervals[i].ShiftPrices(st.SpaceBetweenIntervals)
	}
}

func correctBadSell(st *state.StockState, indicesToExecute []int) {
	highestIndexExecuted := indicesToExecute[0]
	if highestIndexExecuted == 0 {
		return
	}

	above := &st.Intervals[highestIndexExecuted-1]
	if !above.Sell.Active {
		return
	}

	above.Activate(true)
	st.Intervals[indicesToExecute[len(indicesToExecute)-1]].Activate(false)

	for i := range st.Intervals {
		st.Intervals[i].ShiftPrices(st.SpaceBetweenIntervals.Neg())
	}
}

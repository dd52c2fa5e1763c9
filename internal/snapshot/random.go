package snapshot

import (
	"context"
	"math/rand"
	"strconv"

	"hedgeware/internal/core"
	"hedgeware/internal/state"
	"hedgeware/pkg/decimals"

	"github.com/shopspring/decimal"
)

// RandomSource is the debugging quote source: a coin-flip random walk in
// one-cent ticks from a fixed initial price. Ask and bid coincide, so the
// wide-spread guard never triggers and every ladder transition is driven
// by the walk alone.
type RandomSource struct {
	initial decimal.Decimal
	tick    decimal.Decimal
	price   decimal.Decimal
	rng     *rand.Rand
	seq     int
	logger  core.ILogger
}

// NewRandomSource creates a seeded random walk starting at initial.
func NewRandomSource(initial decimal.Decimal, seed int64, logger core.ILogger) *RandomSource {
	return &RandomSource{
		initial: initial,
		tick:    decimal.RequireFromString("0.01"),
		price:   initial,
		rng:     rand.New(rand.NewSource(seed)),
		logger:  logger.WithField("component", "random_source"),
	}
}

// Next advances the walk one tick and quotes it on both sides.
func (s *RandomSource) Next(ctx context.Context) (core.Snapshot, error) {
	if s.rng.Float64() <= 0.5 {
		s.price = s.price.Sub(s.tick)
	} else {
		s.price = s.price.Add(s.tick)
	}
	s.seq++

	return core.Snapshot{
		Ask:       s.price,
		Bid:       s.price,
		Timestamp: strconv.Itoa(s.seq),
	}, nil
}

// Exhausted is always false: the walk never ends on its own.
func (s *RandomSource) Exhausted() bool { return false }

// Release resets the walk.
func (s *RandomSource) Release() { s.Restart() }

// Restart rewinds the walk to the initial price.
func (s *RandomSource) Restart() {
	s.price = s.initial
	s.seq = 0
}

// DebugBounds checks whether the walk escaped the ladder by a full
// interval on either side. When it has and trades were booked, the
// position must be at least targetPosition - sharesPerInterval on the
// upper side (at most its negative on the lower side); anything less is
// logged as missed executions. Returns true when the walk (and the
// caller's state) should be reset to their initial values.
func (s *RandomSource) DebugBounds(st *state.StockState, snap core.Snapshot) bool {
	aboveTopSell := st.Intervals[0].Sell.Price.Add(st.SpaceBetweenIntervals)
	if snap.Bid.GreaterThanOrEqual(aboveTopSell) {
		s.checkBound(st, true)
		return true
	}

	belowBottomBuy := st.Intervals[len(st.Intervals)-1].Buy.Price.Sub(st.SpaceBetweenIntervals)
	if snap.Ask.LessThanOrEqual(belowBottomBuy) {
		s.checkBound(st, false)
		return true
	}

	return false
}

func (s *RandomSource) checkBound(st *state.StockState, upper bool) {
	defer s.Restart()

	if len(st.TradingLogs) == 0 {
		return
	}

	edge := st.TargetPosition - st.SharesPerInterval
	if upper && st.Position < edge {
		s.logger.Error("Upper bound reached with missed executions",
			"ticker", st.BrokerageID, "position", st.Position, "expected_at_least", edge)
	} else if !upper && st.Position > -edge {
		s.logger.Error("Lower bound reached with missed executions",
			"ticker", st.BrokerageID, "position", st.Position, "expected_at_most", -edge)
	}
}

var _ core.SnapshotSource = (*RandomSource)(nil)

// DefaultRandomInitialPrice is the walk's starting quote.
var DefaultRandomInitialPrice = decimals.FromFloat(12.75)

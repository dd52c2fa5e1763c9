// Package state holds the per-security simulation state: the interval
// ladder straddling the initial price and the running position and PnL
// bookkeeping mutated by the reconcile engine.
package state

import (
	"fmt"

	"hedgeware/internal/core"
	"hedgeware/pkg/decimals"
	apperrors "hedgeware/pkg/errors"

	"github.com/shopspring/decimal"
)

// Milestone latches the max-moving-loss seen when exit PnL first reaches
// its threshold.
type Milestone struct {
	Threshold          decimal.Decimal
	Reached            bool
	MaxLossWhenReached decimal.Decimal
}

// StockState is the full simulation state of one security for one run.
// It is owned by a single task from construction to completion.
type StockState struct {
	// Configuration
	BrokerageID                  string
	Date                         string
	BrokerageTradingCostPerShare decimal.Decimal
	SharesPerInterval            int
	TargetPosition               int
	SpaceBetweenIntervals        decimal.Decimal
	IntervalProfit               decimal.Decimal
	InitialPrice                 decimal.Decimal
	NumContracts                 int
	IsStaticIntervals            bool
	ProfitThreshold              decimal.Decimal
	LossThreshold                decimal.Decimal

	// Running state
	Position                    int
	Intervals                   []Interval
	LastAsk                     *decimal.Decimal
	LastBid                     *decimal.Decimal
	NetPositionValue            decimal.Decimal
	RealizedPnLAsPercentage     decimal.Decimal
	ExitPnLAsPercentage         decimal.Decimal
	MaxMovingProfitAsPercentage decimal.Decimal
	MaxMovingLossAsPercentage   decimal.Decimal
	Milestones                  []Milestone
	TradingLogs                 []core.TradingLog
}

// New builds the initial stock state for a security: configuration from
// the partial mapping, the ladder from the initial ask price, and all
// running fields at their zero values.
func New(date, ticker string, initialAsk decimal.Decimal, partial core.PartialStockState) (*StockState, error) {
	s := &StockState{
		BrokerageID: ticker,
		Date:        date,
	}

	var err error
	if s.BrokerageTradingCostPerShare, err = getDecimal(partial, core.KeyBrokerageTradingCostPerShare); err != nil {
		return nil, err
	}
	if s.SharesPerInterval, err = getInt(partial, core.KeySharesPerInterval); err != nil {
		return nil, err
	}
	if s.TargetPosition, err = getInt(partial, core.KeyTargetPosition); err != nil {
		return nil, err
	}
	if s.SpaceBetweenIntervals, err = getDecimal(partial, core.KeySpaceBetweenIntervals); err != nil {
		return nil, err
	}
	if s.IntervalProfit, err = getDecimal(partial, core.KeyIntervalProfit); err != nil {
		return nil, err
	}

	if s.SharesPerInterval <= 0 || s.TargetPosition <= 0 || s.TargetPosition%s.SharesPerInterval != 0 {
		return nil, fmt.Errorf("%w: targetPosition %d must be a positive multiple of sharesPerInterval %d",
			apperrors.ErrInvalidConfigValue, s.TargetPosition, s.SharesPerInterval)
	}
	if s.IntervalProfit.GreaterThanOrEqual(s.SpaceBetweenIntervals) {
		return nil, fmt.Errorf("%w: intervalProfit %s must be smaller than spaceBetweenIntervals %s",
			apperrors.ErrInvalidConfigValue, s.IntervalProfit, s.SpaceBetweenIntervals)
	}

	s.NumContracts = getIntDefault(partial, core.KeyNumContracts, 1)
	s.IsStaticIntervals = getBoolDefault(partial, core.KeyIsStaticIntervals, false)
	s.ProfitThreshold = getDecimalDefault(partial, core.KeyProfitThreshold, decimal.Zero)
	s.LossThreshold = getDecimalDefault(partial, core.KeyLossThreshold, decimal.Zero)

	s.InitialPrice = getDecimalDefault(partial, core.KeyInitialPrice, initialAsk)
	if s.InitialPrice.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: initial price %s must be positive",
			apperrors.ErrInvalidConfigValue, s.InitialPrice)
	}

	longs := s.longIntervalsAboveInitialPrice()
	shorts := s.shortIntervalsBelowInitialPrice()
	s.Intervals = append(longs, shorts...)

	for _, t := range decimals.MilestoneThresholds {
		s.Milestones = append(s.Milestones, Milestone{Threshold: t})
	}

	return s, nil
}

// longIntervalsAboveInitialPrice builds the LONG side of the ladder, one
// interval per step plus the guard, ordered farthest-first.
func (s *StockState) longIntervalsAboveInitialPrice() []Interval {
	numIntervals := s.TargetPosition / s.SharesPerInterval

	intervals := make([]Interval, 0, numIntervals+1)
	for index := 1; index <= numIntervals+1; index++ {
		spaceFromBase := decimals.FromInt(index).Mul(s.SpaceBetweenIntervals)
		sellPrice := s.InitialPrice.Add(spaceFromBase)

		interval := Interval{
			Type:          IntervalLong,
			PositionLimit: s.SharesPerInterval * index,
			Sell: HalfOrder{
				Price:   sellPrice,
				Active:  false,
				Crossed: false,
			},
			Buy: HalfOrder{
				Price:   sellPrice.Sub(s.IntervalProfit),
				Active:  true,
				Crossed: true,
			},
		}

		// unshift: index 0 ends up the farthest LONG
		intervals = append([]Interval{interval}, intervals...)
	}

	return intervals
}

// shortIntervalsBelowInitialPrice builds the SHORT side, nearest-first.
func (s *StockState) shortIntervalsBelowInitialPrice() []Interval {
	numIntervals := s.TargetPosition / s.SharesPerInterval

	intervals := make([]Interval, 0, numIntervals+1)
	for index := 1; index <= numIntervals+1; index++ {
		spaceFromBase := decimals.FromInt(index).Mul(s.SpaceBetweenIntervals)
		buyPrice := s.InitialPrice.Sub(spaceFromBase)

		interval := Interval{
			Type:          IntervalShort,
			PositionLimit: -(s.SharesPerInterval * index),
			Sell: HalfOrder{
				Price:   buyPrice.Add(s.IntervalProfit),
				Active:  true,
				Crossed: true,
			},
			Buy: HalfOrder{
				Price:   buyPrice,
				Active:  false,
				Crossed: false,
			},
		}

		intervals = append(intervals, interval)
	}

	return intervals
}

// CheckInvariants verifies the ladder and position invariants that must
// hold after every reconcile step.
func (s *StockState) CheckInvariants() error {
	for i := range s.Intervals {
		if err := s.Intervals[i].check(i, s.IntervalProfit); err != nil {
			return err
		}
	}

	if s.Position%s.SharesPerInterval != 0 {
		return fmt.Errorf("position %d is not a multiple of sharesPerInterval %d",
			s.Position, s.SharesPerInterval)
	}

	maxPosition := s.TargetPosition + s.SharesPerInterval
	if s.Position > maxPosition || s.Position < -maxPosition {
		return fmt.Errorf("position %d outside [-%d, %d]", s.Position, maxPosition, maxPosition)
	}

	return nil
}

// Clone deep-copies the state. The random-walk debugger uses it to restore
// the initial state after a bound check.
func (s *StockState) Clone() *StockState {
	clone := *s

	clone.Intervals = make([]Interval, len(s.Intervals))
	copy(clone.Intervals, s.Intervals)
	for i := range clone.Intervals {
		clone.Intervals[i].Buy.BoughtAtPrice = copyDecimalPtr(s.Intervals[i].Buy.BoughtAtPrice)
		clone.Intervals[i].Buy.SoldAtPrice = copyDecimalPtr(s.Intervals[i].Buy.SoldAtPrice)
		clone.Intervals[i].Sell.BoughtAtPrice = copyDecimalPtr(s.Intervals[i].Sell.BoughtAtPrice)
		clone.Intervals[i].Sell.SoldAtPrice = copyDecimalPtr(s.Intervals[i].Sell.SoldAtPrice)
	}

	clone.Milestones = make([]Milestone, len(s.Milestones))
	copy(clone.Milestones, s.Milestones)

	clone.TradingLogs = make([]core.TradingLog, len(s.TradingLogs))
	copy(clone.TradingLogs, s.TradingLogs)

	clone.LastAsk = copyDecimalPtr(s.LastAsk)
	clone.LastBid = copyDecimalPtr(s.LastBid)

	return &clone
}

// Restore overwrites the receiver with a previously cloned state.
func (s *StockState) Restore(from *StockState) {
	*s = *from.Clone()
}

func copyDecimalPtr(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

// Partial mapping accessors. Unknown keys in the mapping are ignored by
// construction; these helpers only resolve the recognized ones.

func getDecimal(partial core.PartialStockState, key string) (decimal.Decimal, error) {
	raw, ok := partial[key]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", apperrors.ErrMissingConfigKey, key)
	}
	return coerceDecimal(raw, key)
}

func getDecimalDefault(partial core.PartialStockState, key string, def decimal.Decimal) decimal.Decimal {
	raw, ok := partial[key]
	if !ok {
		return def
	}
	d, err := coerceDecimal(raw, key)
	if err != nil {
		return def
	}
	return d
}

func coerceDecimal(raw interface{}, key string) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case decimal.Decimal:
		return v, nil
	case float64:
		return decimals.FromFloat(v), nil
	case int:
		return decimals.FromInt(v), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %s=%q", apperrors.ErrInvalidConfigValue, key, v)
		}
		return d, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %s has unsupported type %T", apperrors.ErrInvalidConfigValue, key, raw)
	}
}

func getInt(partial core.PartialStockState, key string) (int, error) {
	raw, ok := partial[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", apperrors.ErrMissingConfigKey, key)
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case decimal.Decimal:
		return int(v.IntPart()), nil
	default:
		return 0, fmt.Errorf("%w: %s has unsupported type %T", apperrors.ErrInvalidConfigValue, key, raw)
	}
}

func getIntDefault(partial core.PartialStockState, key string, def int) int {
	if _, ok := partial[key]; !ok {
		return def
	}
	v, err := getInt(partial, key)
	if err != nil {
		return def
	}
	return v
}

func getBoolDefault(partial core.PartialStockState, key string, def bool) bool {
	raw, ok := partial[key]
	if !ok {
		return def
	}
	b, ok := raw.(bool)
	if !ok {
		return def
	}
	return b
}

package driver

import (
	"context"
	"testing"

	"hedgeware/internal/core"
	"hedgeware/internal/state"
	apperrors "hedgeware/pkg/errors"

	"github.com/shopspring/decimal"
)

// scriptedSource replays a fixed quote list, like a miniature historical
// source without the file layer.
type scriptedSource struct {
	snaps    []core.Snapshot
	cursor   int
	released bool
}

func (s *scriptedSource) Next(ctx context.Context) (core.Snapshot, error) {
	if s.cursor >= len(s.snaps) {
		return core.Snapshot{}, apperrors.ErrSnapshotsExhausted
	}
	snap := s.snaps[s.cursor]
	s.cursor++
	return snap, nil
}

func (s *scriptedSource) Exhausted() bool { return s.cursor >= len(s.snaps) }
func (s *scriptedSource) Release()        { s.released = true }

func quotes(prices ...string) []core.Snapshot {
	var out []core.Snapshot
	for i, p := range prices {
		d := decimal.RequireFromString(p)
		out = append(out, core.Snapshot{Ask: d, Bid: d, Timestamp: string(rune('a' + i))})
	}
	return out
}

func testState(t *testing.T) *state.StockState {
	t.Helper()
	st, err := state.New("2024-01-02", "AAPL", decimal.RequireFromString("10"), core.PartialStockState{
		core.KeyBrokerageTradingCostPerShare: decimal.RequireFromString("0.005"),
		core.KeySharesPerInterval:            100,
		core.KeyTargetPosition:               500,
		core.KeySpaceBetweenIntervals:        decimal.RequireFromString("0.05"),
		core.KeyIntervalProfit:               decimal.RequireFromString("0.03"),
		core.KeyProfitThreshold:              decimal.RequireFromString("0.5"),
		core.KeyLossThreshold:                decimal.RequireFromString("-1"),
	})
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestHedger_RunsToExhaustionAndRealizes(t *testing.T) {
	st := testState(t)
	src := &scriptedSource{snaps: quotes("10.02", "10.05")}

	wroteBack := false
	h := NewHedger(HedgerConfig{
		Mode:                      ModeHistorical,
		HistoricalProfitThreshold: decimal.RequireFromString("99"), // never trips
		WriteResults: func(*state.StockState) error {
			wroteBack = true
			return nil
		},
	}, st, src, nopLogger{})

	if err := h.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if st.Position != 0 {
		t.Errorf("position not closed at exhaustion: %d", st.Position)
	}
	if st.RealizedPnLAsPercentage.IsZero() {
		t.Error("realized PnL not set")
	}
	if !src.released {
		t.Error("source not released")
	}
	if !wroteBack {
		t.Error("results not written back")
	}
}

func TestHedger_StopsOnProfitThreshold(t *testing.T) {
	st := testState(t)
	// Buy at 10.02, then the market jumps: exit PnL exceeds the tiny
	// threshold long before the replay ends.
	src := &scriptedSource{snaps: quotes("10.02", "11.50", "11.51", "11.52", "11.53")}

	h := NewHedger(HedgerConfig{
		Mode:                      ModeHistorical,
		HistoricalProfitThreshold: decimal.RequireFromString("0.01"),
	}, st, src, nopLogger{})

	if err := h.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if src.Exhausted() {
		t.Error("expected the threshold to stop the loop before exhaustion")
	}
	if !src.released {
		t.Error("source not released on threshold stop")
	}
	if !st.ExitPnLAsPercentage.GreaterThanOrEqual(decimal.RequireFromString("0.01")) {
		t.Errorf("stopped below threshold: %s", st.ExitPnLAsPercentage)
	}
}

func TestHedger_CancellationStopsLoop(t *testing.T) {
	st := testState(t)
	src := &scriptedSource{snaps: quotes("10.01", "10.01", "10.01", "10.01")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := NewHedger(HedgerConfig{Mode: ModeHistorical,
		HistoricalProfitThreshold: decimal.RequireFromString("99")}, st, src, nopLogger{})

	if err := h.Run(ctx); err == nil {
		t.Fatal("expected context error")
	}
	if src.cursor != 0 {
		t.Error("canceled loop must not consume snapshots")
	}
}

// nopLogger satisfies core.ILogger for tests
type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{})                     {}
func (nopLogger) Info(string, ...interface{})                      {}
func (nopLogger) Warn(string, ...interface{})                      {}
func (nopLogger) Error(string, ...interface{})                     {}
func (nopLogger) Fatal(string, ...interface{})                     {}
func (n nopLogger) WithField(string, interface{}) core.ILogger     { return n }
func (n nopLogger) WithFields(map[string]interface{}) core.ILogger { return n }

package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"hedgeware/internal/core"
	"hedgeware/internal/engine"
	apperrors "hedgeware/pkg/errors"

	"github.com/shopspring/decimal"
)

func writeSnapshotFile(t *testing.T, dir, ticker string, quotes [][2]float64) string {
	t.Helper()

	type snap struct {
		Ask       float64 `json:"ask"`
		Bid       float64 `json:"bid"`
		Timestamp string  `json:"timestamp"`
	}
	doc := map[string]interface{}{
		"ticker":         ticker,
		"raw_time_steps": []interface{}{},
	}
	var snaps []snap
	for i, q := range quotes {
		snaps = append(snaps, snap{Ask: q[0], Bid: q[1], Timestamp: string(rune('a' + i))})
	}
	doc["snapshots"] = snaps

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	path := filepath.Join(dir, ticker+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func testProviderPartial() core.PartialStockState {
	return core.PartialStockState{
		core.KeyBrokerageTradingCostPerShare: decimal.RequireFromString("0.005"),
		core.KeySharesPerInterval:            100,
		core.KeyTargetPosition:               500,
		core.KeySpaceBetweenIntervals:        decimal.RequireFromString("0.05"),
		core.KeyIntervalProfit:               decimal.RequireFromString("0.03"),
	}
}

func TestStockStatesForDate(t *testing.T) {
	dataDir := t.TempDir()
	dateDir := filepath.Join(dataDir, "2024-01-02")
	if err := os.MkdirAll(dateDir, 0o755); err != nil {
		t.Fatal(err)
	}

	writeSnapshotFile(t, dateDir, "AAPL", [][2]float64{{10.0, 9.99}, {10.02, 10.01}})
	writeSnapshotFile(t, dateDir, "MSFT", [][2]float64{{20.0, 19.99}})

	// A broken file must be skipped, not fail the date
	if err := os.WriteFile(filepath.Join(dateDir, "BAD.json"), []byte("{nope"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewHistoricalProvider(dataDir, nopLogger{})
	states, err := p.StockStatesForDate(context.Background(), "2024-01-02", testProviderPartial())
	if err != nil {
		t.Fatalf("StockStatesForDate: %v", err)
	}

	if len(states) != 2 {
		t.Fatalf("expected 2 states, got %d", len(states))
	}
	if !states["AAPL"].InitialPrice.Equal(decimal.RequireFromString("10")) {
		t.Errorf("initial price should come from the first snapshot ask, got %s", states["AAPL"].InitialPrice)
	}
	if !states["MSFT"].InitialPrice.Equal(decimal.RequireFromString("20")) {
		t.Errorf("unexpected MSFT initial price %s", states["MSFT"].InitialPrice)
	}
}

func TestHistoricalSource_CursorAndExhaustion(t *testing.T) {
	dataDir := t.TempDir()
	dateDir := filepath.Join(dataDir, "2024-01-02")
	if err := os.MkdirAll(dateDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeSnapshotFile(t, dateDir, "AAPL", [][2]float64{{10.0, 9.99}, {10.02, 10.01}})

	p := NewHistoricalProvider(dataDir, nopLogger{})
	src, err := p.ForStock(context.Background(), "2024-01-02", "AAPL")
	if err != nil {
		t.Fatalf("ForStock: %v", err)
	}

	first, err := src.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !first.Ask.Equal(decimal.RequireFromString("10")) {
		t.Errorf("expected first ask 10, got %s", first.Ask)
	}
	if src.Exhausted() {
		t.Error("not exhausted after one of two snapshots")
	}

	if _, err := src.Next(context.Background()); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !src.Exhausted() {
		t.Error("expected exhaustion after the last snapshot")
	}

	if _, err := src.Next(context.Background()); !errors.Is(err, apperrors.ErrSnapshotsExhausted) {
		t.Errorf("expected ErrSnapshotsExhausted, got %v", err)
	}
}

func TestHistoricalProvider_CacheAndRelease(t *testing.T) {
	dataDir := t.TempDir()
	dateDir := filepath.Join(dataDir, "2024-01-02")
	if err := os.MkdirAll(dateDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := writeSnapshotFile(t, dateDir, "AAPL", [][2]float64{{10.0, 9.99}})

	p := NewHistoricalProvider(dataDir, nopLogger{})
	if _, err := p.ForStock(context.Background(), "2024-01-02", "AAPL"); err != nil {
		t.Fatal(err)
	}

	// Rewriting the file must not be visible while the cache holds it
	writeSnapshotFile(t, dateDir, "AAPL", [][2]float64{{33.0, 32.99}})

	src, err := p.ForStock(context.Background(), "2024-01-02", "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	snap, _ := src.Next(context.Background())
	if !snap.Ask.Equal(decimal.RequireFromString("10")) {
		t.Errorf("cache miss: expected 10, got %s", snap.Ask)
	}

	// Release evicts; the next load sees the new contents
	src.Release()
	src2, err := p.ForStock(context.Background(), "2024-01-02", "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	snap2, _ := src2.Next(context.Background())
	if !snap2.Ask.Equal(decimal.RequireFromString("33")) {
		t.Errorf("expected reload after release, got %s", snap2.Ask)
	}
	_ = path
}

func TestHistoricalSource_WriteResults(t *testing.T) {
	dataDir := t.TempDir()
	dateDir := filepath.Join(dataDir, "2024-01-02")
	if err := os.MkdirAll(dateDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := writeSnapshotFile(t, dateDir, "AAPL", [][2]float64{{10.0, 9.99}, {10.02, 10.02}, {10.05, 10.05}})

	p := NewHistoricalProvider(dataDir, nopLogger{})
	states, err := p.StockStatesForDate(context.Background(), "2024-01-02", testProviderPartial())
	if err != nil {
		t.Fatal(err)
	}
	st := states["AAPL"]

	src, err := p.ForStock(context.Background(), "2024-01-02", "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	for !src.Exhausted() {
		snap, err := src.Next(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		engine.Reconcile(st, snap)
	}
	engine.FinalizeOnExhausted(st)

	if err := src.WriteResults(st); err != nil {
		t.Fatalf("WriteResults: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{
		"max_moving_profit_as_percentage",
		"max_moving_loss_as_percentage",
		"realized_pnl_as_percentage",
		"reached_0_25_percentage_profit",
		"max_loss_when_reached_0_25_percentage_profit",
		"reached_1_percentage_profit",
		"reached_2_percentage_profit",
	} {
		if _, ok := doc[key]; !ok {
			t.Errorf("missing write-back key %q", key)
		}
	}

	// Original keys survive the merge
	if doc["ticker"] != "AAPL" {
		t.Error("write-back clobbered the original document")
	}
}

// nopLogger satisfies core.ILogger for tests
type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{})                 {}
func (nopLogger) Info(string, ...interface{})                  {}
func (nopLogger) Warn(string, ...interface{})                  {}
func (nopLogger) Error(string, ...interface{})                 {}
func (nopLogger) Fatal(string, ...interface{})                 {}
func (n nopLogger) WithField(string, interface{}) core.ILogger { return n }
func (n nopLogger) WithFields(map[string]interface{}) core.ILogger {
	return n
}

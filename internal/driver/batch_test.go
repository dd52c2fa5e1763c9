package driver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"hedgeware/internal/config"
	"hedgeware/internal/snapshot"
	"hedgeware/pkg/concurrency"
)

func writeBatchFile(t *testing.T, dir, ticker string, prices []float64) {
	t.Helper()

	type snap struct {
		Ask       float64 `json:"ask"`
		Bid       float64 `json:"bid"`
		Timestamp string  `json:"timestamp"`
	}
	var snaps []snap
	for i, p := range prices {
		snaps = append(snaps, snap{Ask: p, Bid: p, Timestamp: string(rune('a' + i))})
	}
	doc := map[string]interface{}{"ticker": ticker, "snapshots": snaps}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ticker+".json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBatch_AggregatesAcrossDates(t *testing.T) {
	dataDir := t.TempDir()

	for _, date := range []string{"2024-01-02", "2024-01-03"} {
		dateDir := filepath.Join(dataDir, date)
		if err := os.MkdirAll(dateDir, 0o755); err != nil {
			t.Fatal(err)
		}
		// Profitable: buys at 10.02, then marks deep in profit so the
		// 0.5 milestone latches before the replay ends.
		writeBatchFile(t, dateDir, "AAPL", []float64{10.00, 10.02, 10.40, 10.41, 10.42})
		// Flat replay: no trades, no milestones.
		writeBatchFile(t, dateDir, "MSFT", []float64{20.00, 20.00, 20.00})
	}

	cfg := config.DefaultConfig()
	cfg.App.DataDir = dataDir

	provider := snapshot.NewHistoricalProvider(dataDir, nopLogger{})
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{Name: "test", MaxWorkers: 2, MaxCapacity: 8}, nopLogger{})
	defer pool.StopAndWait()

	batch := NewBatch(cfg, provider, pool, nil, nopLogger{})

	agg, err := batch.Run(context.Background(), [][]string{{"2024-01-02"}, {"2024-01-03"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if agg.NumStocks != 4 {
		t.Errorf("expected 4 simulated stocks, got %d", agg.NumStocks)
	}
	if agg.NumProfitable != 2 {
		t.Errorf("expected 2 profitable stocks, got %d", agg.NumProfitable)
	}
}

func TestBatch_SkipsBrokenFiles(t *testing.T) {
	dataDir := t.TempDir()
	dateDir := filepath.Join(dataDir, "2024-01-02")
	if err := os.MkdirAll(dateDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeBatchFile(t, dateDir, "AAPL", []float64{10.00, 10.01})
	if err := os.WriteFile(filepath.Join(dateDir, "BAD.json"), []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.App.DataDir = dataDir

	provider := snapshot.NewHistoricalProvider(dataDir, nopLogger{})
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{Name: "test", MaxWorkers: 1, MaxCapacity: 4}, nopLogger{})
	defer pool.StopAndWait()

	batch := NewBatch(cfg, provider, pool, nil, nopLogger{})

	agg, err := batch.Run(context.Background(), [][]string{{"2024-01-02"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if agg.NumStocks != 1 {
		t.Errorf("broken file should be skipped, got %d stocks", agg.NumStocks)
	}
}

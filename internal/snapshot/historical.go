// Package snapshot provides the quote sources the driver pulls from:
// historical JSON replay, a deterministic random walk, and a live
// websocket feed.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"hedgeware/internal/core"
	"hedgeware/internal/state"
	"hedgeware/pkg/decimals"
	apperrors "hedgeware/pkg/errors"
	"hedgeware/pkg/retry"

	"github.com/shopspring/decimal"
)

// Result keys written back into the snapshot file on completion
const (
	keyMaxMovingProfit = "max_moving_profit_as_percentage"
	keyMaxMovingLoss   = "max_moving_loss_as_percentage"
	keyRealizedPnL     = "realized_pnl_as_percentage"
)

type fileData struct {
	ticker    string
	snapshots []core.Snapshot
}

// HistoricalProvider loads per-security snapshot files and hands out
// replay cursors. Parsed files are cached process-wide behind an RWMutex;
// the cache is read-mostly, so lookups take the read lock and loading
// upgrades to the write lock with a re-check.
type HistoricalProvider struct {
	dataDir string
	logger  core.ILogger

	mu    sync.RWMutex
	files map[string]string    // date/ticker -> file path
	cache map[string]*fileData // file path -> parsed content
}

// NewHistoricalProvider creates a provider rooted at dataDir, which holds
// one directory of JSON files per date.
func NewHistoricalProvider(dataDir string, logger core.ILogger) *HistoricalProvider {
	return &HistoricalProvider{
		dataDir: dataDir,
		logger:  logger.WithField("component", "historical_provider"),
		files:   make(map[string]string),
		cache:   make(map[string]*fileData),
	}
}

// StockStatesForDate scans the date directory and builds one stock state
// per parseable JSON file, deriving the initial price from the first
// snapshot's ask. Unreadable files are logged and skipped.
func (p *HistoricalProvider) StockStatesForDate(
	ctx context.Context,
	date string,
	partial core.PartialStockState,
) (map[string]*state.StockState, error) {
	dir := filepath.Join(p.dataDir, date)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read date directory %s: %w", dir, err)
	}

	states := make(map[string]*state.StockState)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := p.fileData(ctx, path)
		if err != nil {
			p.logger.Error("Skipping unreadable snapshot file", "file", path, "error", err)
			continue
		}

		initialAsk := data.snapshots[0].Ask
		st, err := state.New(date, data.ticker, initialAsk, partial)
		if err != nil {
			p.logger.Error("Skipping security with invalid configuration",
				"ticker", data.ticker, "error", err)
			continue
		}

		p.mu.Lock()
		p.files[date+"/"+data.ticker] = path
		p.mu.Unlock()

		states[data.ticker] = st
	}

	return states, nil
}

// ForStock returns a replay cursor over the security's snapshots.
func (p *HistoricalProvider) ForStock(ctx context.Context, date, ticker string) (*HistoricalSource, error) {
	p.mu.RLock()
	path, ok := p.files[date+"/"+ticker]
	p.mu.RUnlock()
	if !ok {
		// Not registered by a prior scan; assume the conventional name.
		path = filepath.Join(p.dataDir, date, ticker+".json")
	}

	data, err := p.fileData(ctx, path)
	if err != nil {
		return nil, err
	}

	return &HistoricalSource{
		provider:  p,
		path:      path,
		ticker:    data.ticker,
		snapshots: data.snapshots,
	}, nil
}

// fileData returns the parsed file, loading through the cache. The
// upgrade from read to write lock re-checks the map: another goroutine
// may have loaded the same file in between.
func (p *HistoricalProvider) fileData(ctx context.Context, path string) (*fileData, error) {
	p.mu.RLock()
	data, ok := p.cache[path]
	p.mu.RUnlock()
	if ok {
		return data, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if data, ok = p.cache[path]; ok {
		return data, nil
	}

	data, err := loadSnapshotFile(ctx, path)
	if err != nil {
		return nil, err
	}

	p.cache[path] = data
	return data, nil
}

func (p *HistoricalProvider) evict(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cache, path)
}

func loadSnapshotFile(ctx context.Context, path string) (*fileData, error) {
	var raw []byte
	err := retry.Do(ctx, retry.DefaultPolicy, func(err error) bool {
		return !os.IsNotExist(err)
	}, func() error {
		var readErr error
		raw, readErr = os.ReadFile(path)
		return readErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrSnapshotFileUnreadable, path, err)
	}

	var parsed struct {
		Ticker    string `json:"ticker"`
		Snapshots []struct {
			Ask       float64 `json:"ask"`
			Bid       float64 `json:"bid"`
			Timestamp string  `json:"timestamp"`
		} `json:"snapshots"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrSnapshotFileUnreadable, path, err)
	}
	if len(parsed.Snapshots) == 0 {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrNoSnapshots, path)
	}

	data := &fileData{ticker: parsed.Ticker}
	for _, s := range parsed.Snapshots {
		data.snapshots = append(data.snapshots, core.Snapshot{
			Ask:       decimals.FromFloat(s.Ask),
			Bid:       decimals.FromFloat(s.Bid),
			Timestamp: s.Timestamp,
		})
	}

	return data, nil
}

// HistoricalSource replays one security's snapshots in order.
type HistoricalSource struct {
	provider  *HistoricalProvider
	path      string
	ticker    string
	snapshots []core.Snapshot
	cursor    int
}

// Next returns the next snapshot in the replay.
func (s *HistoricalSource) Next(ctx context.Context) (core.Snapshot, error) {
	if s.snapshots == nil {
		return core.Snapshot{}, apperrors.ErrSourceClosed
	}
	if s.cursor >= len(s.snapshots) {
		return core.Snapshot{}, apperrors.ErrSnapshotsExhausted
	}

	snap := s.snapshots[s.cursor]
	s.cursor++
	return snap, nil
}

// Exhausted reports whether the replay cursor reached the end.
func (s *HistoricalSource) Exhausted() bool {
	return s.snapshots == nil || s.cursor >= len(s.snapshots)
}

// Release drops the snapshot buffer for this security, both locally and
// from the provider cache.
func (s *HistoricalSource) Release() {
	if s.provider != nil {
		s.provider.evict(s.path)
	}
	s.snapshots = nil
}

// WriteResults merges the watermark and PnL outcomes back into the
// security's snapshot file under the well-known keys.
func (s *HistoricalSource) WriteResults(st *state.StockState) error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to re-read snapshot file %s: %w", s.path, err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to parse snapshot file %s: %w", s.path, err)
	}

	doc[keyMaxMovingProfit] = st.MaxMovingProfitAsPercentage.InexactFloat64()
	doc[keyMaxMovingLoss] = st.MaxMovingLossAsPercentage.InexactFloat64()
	doc[keyRealizedPnL] = st.RealizedPnLAsPercentage.InexactFloat64()

	for _, m := range st.Milestones {
		suffix := milestoneKeySuffix(m.Threshold)
		doc["reached_"+suffix+"_percentage_profit"] = m.Reached
		doc["max_loss_when_reached_"+suffix+"_percentage_profit"] = m.MaxLossWhenReached.InexactFloat64()
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results for %s: %w", s.path, err)
	}

	return os.WriteFile(s.path, out, 0o644)
}

func milestoneKeySuffix(threshold decimal.Decimal) string {
	return strings.ReplaceAll(threshold.String(), ".", "_")
}

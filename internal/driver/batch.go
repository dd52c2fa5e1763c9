package driver

import (
	"context"
	"sync"

	"hedgeware/internal/config"
	"hedgeware/internal/core"
	"hedgeware/internal/snapshot"
	"hedgeware/internal/state"
	"hedgeware/pkg/concurrency"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Aggregate is the batch-wide outcome
type Aggregate struct {
	NumStocks     int
	NumProfitable int
}

// Batch fans simulations out over date groups. Groups run in parallel on
// the worker pool, dates within a group run sequentially, and securities
// within a date run concurrently. No two tasks share mutable state.
type Batch struct {
	cfg      *config.Config
	provider *snapshot.HistoricalProvider
	pool     *concurrency.WorkerPool
	store    core.ResultStore // nil disables persistence
	logger   core.ILogger
	runID    string
}

// NewBatch creates a batch driver
func NewBatch(
	cfg *config.Config,
	provider *snapshot.HistoricalProvider,
	pool *concurrency.WorkerPool,
	store core.ResultStore,
	logger core.ILogger,
) *Batch {
	return &Batch{
		cfg:      cfg,
		provider: provider,
		pool:     pool,
		store:    store,
		logger:   logger.WithField("component", "batch"),
		runID:    uuid.NewString(),
	}
}

// RunID identifies this batch in the result store
func (b *Batch) RunID() string { return b.runID }

// Run executes every date group and returns the aggregate outcome
func (b *Batch) Run(ctx context.Context, dateGroups [][]string) (Aggregate, error) {
	var mu sync.Mutex
	var agg Aggregate
	var wg sync.WaitGroup

	for _, group := range dateGroups {
		group := group
		wg.Add(1)
		err := b.pool.Submit(func() {
			defer wg.Done()
			for _, date := range group {
				if ctx.Err() != nil {
					return
				}
				stocks, profitable := b.runDate(ctx, date)
				mu.Lock()
				agg.NumStocks += stocks
				agg.NumProfitable += profitable
				mu.Unlock()
			}
		})
		if err != nil {
			wg.Done()
			b.logger.Error("Failed to submit date group", "error", err)
		}
	}

	wg.Wait()
	return agg, ctx.Err()
}

// runDate simulates every security of one date concurrently. A failing
// security is logged and excluded from the aggregate; the rest of the
// date keeps running.
func (b *Batch) runDate(ctx context.Context, date string) (int, int) {
	logger := b.logger.WithField("date", date)

	states, err := b.provider.StockStatesForDate(ctx, date, b.cfg.Partial())
	if err != nil {
		logger.Error("Failed to build stock states for date", "error", err)
		return 0, 0
	}

	var mu sync.Mutex
	stocks := 0
	profitable := 0

	g, gctx := errgroup.WithContext(ctx)
	for ticker, st := range states {
		ticker, st := ticker, st
		g.Go(func() error {
			if !b.runStock(gctx, date, ticker, st, logger) {
				return nil
			}

			mu.Lock()
			stocks++
			if b.isProfitable(st) {
				profitable++
			}
			mu.Unlock()

			if b.cfg.App.PrintPnLValues {
				logger.Info("PnL values",
					"ticker", ticker,
					"realized_pnl_pct", st.RealizedPnLAsPercentage.InexactFloat64(),
					"exit_pnl_pct", st.ExitPnLAsPercentage.InexactFloat64(),
					"max_moving_profit_pct", st.MaxMovingProfitAsPercentage.InexactFloat64(),
					"max_moving_loss_pct", st.MaxMovingLossAsPercentage.InexactFloat64(),
					"trades", len(st.TradingLogs))
			}

			b.saveResult(gctx, date, ticker, st)
			return nil
		})
	}
	g.Wait()

	return stocks, profitable
}

// runStock runs one hedger with panic isolation: an invariant violation
// aborts this security only, not the batch.
func (b *Batch) runStock(ctx context.Context, date, ticker string, st *state.StockState, logger core.ILogger) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Simulation aborted", "ticker", ticker, "panic", r)
			ok = false
		}
	}()

	source, err := b.provider.ForStock(ctx, date, ticker)
	if err != nil {
		logger.Error("Failed to open snapshot source", "ticker", ticker, "error", err)
		return false
	}

	hedger := NewHedger(HedgerConfig{
		Mode:                      ModeHistorical,
		HistoricalProfitThreshold: config.HistoricalProfitThreshold(),
		WriteResults:              source.WriteResults,
	}, st, source, logger)

	if err := hedger.Run(ctx); err != nil {
		logger.Error("Simulation failed", "ticker", ticker, "error", err)
		return false
	}

	return true
}

// isProfitable applies the batch profitability rule: the milestone paired
// with the configured profit threshold must have latched, with its
// max-loss above the loss threshold. The smallest milestone at or above
// the threshold is the one consulted.
func (b *Batch) isProfitable(st *state.StockState) bool {
	for i := len(st.Milestones) - 1; i >= 0; i-- {
		m := st.Milestones[i]
		if m.Threshold.GreaterThanOrEqual(st.ProfitThreshold) {
			return m.Reached && m.MaxLossWhenReached.GreaterThan(st.LossThreshold)
		}
	}

	// Profit threshold above every milestone: fall back to the highest.
	m := st.Milestones[0]
	return m.Reached && m.MaxLossWhenReached.GreaterThan(st.LossThreshold)
}

func (b *Batch) saveResult(ctx context.Context, date, ticker string, st *state.StockState) {
	if b.store == nil {
		return
	}

	res := core.StockResult{
		RunID:          b.runID,
		Date:           date,
		Ticker:         ticker,
		RealizedPnLPct: st.RealizedPnLAsPercentage.InexactFloat64(),
		ExitPnLPct:     st.ExitPnLAsPercentage.InexactFloat64(),
		MaxProfitPct:   st.MaxMovingProfitAsPercentage.InexactFloat64(),
		MaxLossPct:     st.MaxMovingLossAsPercentage.InexactFloat64(),
		NumTrades:      len(st.TradingLogs),
		Profitable:     b.isProfitable(st),
	}

	if err := b.store.SaveResult(ctx, res); err != nil {
		b.logger.Error("Failed to persist result", "ticker", ticker, "error", err)
	}
}

// Package driver runs simulations: a per-security loop feeding snapshots
// into the reconcile engine until terminal, and a batch layer fanning out
// over dates and securities.
package driver

import (
	"context"
	"errors"
	"time"

	"hedgeware/internal/core"
	"hedgeware/internal/engine"
	"hedgeware/internal/snapshot"
	"hedgeware/internal/state"
	apperrors "hedgeware/pkg/errors"
	"hedgeware/pkg/telemetry"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Mode selects the quote source behavior the loop runs against
type Mode string

const (
	ModeHistorical Mode = "historical"
	ModeRandom     Mode = "random"
	ModeLive       Mode = "live"
)

// HedgerConfig wires one per-security loop
type HedgerConfig struct {
	Mode                      Mode
	HistoricalProfitThreshold decimal.Decimal
	LiveProfitThreshold       decimal.Decimal
	LiveLossThreshold         *decimal.Decimal // nil means unbounded
	WriteResults              func(*state.StockState) error
}

// Hedger drives one security's state to a terminal condition
type Hedger struct {
	cfg     HedgerConfig
	st      *state.StockState
	source  core.SnapshotSource
	logger  core.ILogger
	metrics *telemetry.MetricsHolder

	// Random-mode debugging
	debug    *snapshot.RandomSource
	original *state.StockState
}

// NewHedger creates the loop for one security
func NewHedger(cfg HedgerConfig, st *state.StockState, source core.SnapshotSource, logger core.ILogger) *Hedger {
	h := &Hedger{
		cfg:     cfg,
		st:      st,
		source:  source,
		logger:  logger.WithField("component", "hedger").WithField("ticker", st.BrokerageID),
		metrics: telemetry.GetGlobalMetrics(),
	}
	if rs, ok := source.(*snapshot.RandomSource); ok {
		h.debug = rs
	}
	return h
}

// Run pulls snapshots until a terminal condition. Cancellation is
// cooperative and only observed at the top of each iteration; a single
// reconcile step is atomic from the state's perspective.
func (h *Hedger) Run(ctx context.Context) error {
	if h.cfg.Mode == ModeRandom {
		h.original = h.st.Clone()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		snap, err := h.source.Next(ctx)
		if err != nil {
			if errors.Is(err, apperrors.ErrSnapshotsExhausted) {
				h.finalize()
				return nil
			}
			return err
		}

		start := time.Now()
		executionsBefore := len(h.st.TradingLogs)
		engine.Reconcile(h.st, snap)
		h.observeReconcile(start, executionsBefore)

		if h.source.Exhausted() {
			h.finalize()
			return nil
		}

		if (h.cfg.Mode == ModeHistorical || h.cfg.Mode == ModeLive) && h.exitPnLBeyondThresholds() {
			h.logger.Info("Exit PnL beyond thresholds, stopping",
				"exit_pnl_pct", h.st.ExitPnLAsPercentage.InexactFloat64())
			h.writeResults()
			h.source.Release()
			h.recordHedged()
			return nil
		}

		if h.cfg.Mode == ModeRandom && h.debug != nil {
			if h.debug.DebugBounds(h.st, snap) {
				h.st.Restore(h.original)
			}
		}
	}
}

// exitPnLBeyondThresholds mirrors the mode-specific stop rule: historical
// runs stop on the (env-overridable) profit threshold, live runs on the
// live profit threshold or the optional live loss floor.
func (h *Hedger) exitPnLBeyondThresholds() bool {
	exit := h.st.ExitPnLAsPercentage

	switch h.cfg.Mode {
	case ModeHistorical:
		return exit.GreaterThanOrEqual(h.cfg.HistoricalProfitThreshold)
	case ModeLive:
		if exit.GreaterThanOrEqual(h.cfg.LiveProfitThreshold) {
			return true
		}
		if h.cfg.LiveLossThreshold != nil && exit.LessThanOrEqual(*h.cfg.LiveLossThreshold) {
			return true
		}
	}

	return false
}

func (h *Hedger) finalize() {
	engine.FinalizeOnExhausted(h.st)
	h.writeResults()
	h.source.Release()
	h.recordHedged()

	if counter := h.metrics.RealizedPnLTotal; counter != nil {
		counter.Add(context.Background(), h.st.RealizedPnLAsPercentage.InexactFloat64(),
			metric.WithAttributes(attribute.String("ticker", h.st.BrokerageID)))
	}
}

func (h *Hedger) writeResults() {
	if h.cfg.WriteResults == nil {
		return
	}
	if err := h.cfg.WriteResults(h.st); err != nil {
		h.logger.Error("Failed to write results back to snapshot file", "error", err)
	}
}

func (h *Hedger) observeReconcile(start time.Time, executionsBefore int) {
	ctx := context.Background()

	if counter := h.metrics.SnapshotsTotal; counter != nil {
		counter.Add(ctx, 1)
	}
	if hist := h.metrics.ReconcileLatency; hist != nil {
		hist.Record(ctx, float64(time.Since(start).Microseconds())/1000.0)
	}
	if counter := h.metrics.ExecutionsTotal; counter != nil {
		if fired := len(h.st.TradingLogs) - executionsBefore; fired > 0 {
			side := h.st.TradingLogs[len(h.st.TradingLogs)-1].Action
			counter.Add(ctx, int64(fired), metric.WithAttributes(attribute.String("side", string(side))))
		}
	}
	h.metrics.SetPosition(h.st.BrokerageID, int64(h.st.Position))
	h.metrics.SetExitPnL(h.st.BrokerageID, h.st.ExitPnLAsPercentage.InexactFloat64())
}

func (h *Hedger) recordHedged() {
	if counter := h.metrics.SecuritiesHedgedTotal; counter != nil {
		counter.Add(context.Background(), 1)
	}
}

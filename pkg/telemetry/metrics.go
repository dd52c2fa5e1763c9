package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricSecuritiesHedgedTotal = "hedgeware_securities_hedged_total"
	MetricExecutionsTotal       = "hedgeware_executions_total"
	MetricRealizedPnLTotal      = "hedgeware_realized_pnl_percent_total"
	MetricSnapshotsTotal        = "hedgeware_snapshots_processed_total"
	MetricReconcileLatency      = "hedgeware_reconcile_latency_ms"
	MetricPositionSize          = "hedgeware_position_size"
	MetricExitPnL               = "hedgeware_exit_pnl_percent"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	SecuritiesHedgedTotal metric.Int64Counter
	ExecutionsTotal       metric.Int64Counter
	RealizedPnLTotal      metric.Float64Counter
	SnapshotsTotal        metric.Int64Counter
	ReconcileLatency      metric.Float64Histogram
	PositionSize          metric.Int64ObservableGauge
	ExitPnL               metric.Float64ObservableGauge

	// State for observable gauges
	mu          sync.RWMutex
	positionMap map[string]int64
	exitPnLMap  map[string]float64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			positionMap: make(map[string]int64),
			exitPnLMap:  make(map[string]float64),
		}
		// Initialization of instruments happens in InitMetrics
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.SecuritiesHedgedTotal, err = meter.Int64Counter(MetricSecuritiesHedgedTotal,
		metric.WithDescription("Securities whose simulation reached a terminal state"))
	if err != nil {
		return err
	}

	m.ExecutionsTotal, err = meter.Int64Counter(MetricExecutionsTotal,
		metric.WithDescription("Interval executions booked, by side"))
	if err != nil {
		return err
	}

	m.RealizedPnLTotal, err = meter.Float64Counter(MetricRealizedPnLTotal,
		metric.WithDescription("Cumulative realized PnL percentage across securities"))
	if err != nil {
		return err
	}

	m.SnapshotsTotal, err = meter.Int64Counter(MetricSnapshotsTotal,
		metric.WithDescription("Snapshots fed through the reconcile engine"))
	if err != nil {
		return err
	}

	m.ReconcileLatency, err = meter.Float64Histogram(MetricReconcileLatency,
		metric.WithDescription("Duration of a single reconcile step"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.PositionSize, err = meter.Int64ObservableGauge(MetricPositionSize,
		metric.WithDescription("Current signed share position"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for ticker, val := range m.positionMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("ticker", ticker)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.ExitPnL, err = meter.Float64ObservableGauge(MetricExitPnL,
		metric.WithDescription("Mark-to-market PnL percentage if closed at the current quote"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for ticker, val := range m.exitPnLMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("ticker", ticker)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// Helpers to update observable state

func (m *MetricsHolder) SetPosition(ticker string, position int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positionMap[ticker] = position
}

func (m *MetricsHolder) SetExitPnL(ticker string, pct float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exitPnLMap[ticker] = pct
}

func (m *MetricsHolder) GetPositions() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]int64)
	for k, v := range m.positionMap {
		res[k] = v
	}
	return res
}

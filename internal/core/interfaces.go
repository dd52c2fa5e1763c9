// Package core defines the shared types and interfaces of the simulator
package core

import (
	"context"
)

// ILogger defines the logging interface used across components
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}

// SnapshotSource produces the quote stream for a single security.
// Next blocks only in live mode; historical and random sources return
// immediately. Exhausted reports end-of-replay for historical sources and
// is always false otherwise. Release drops any buffered snapshots.
type SnapshotSource interface {
	Next(ctx context.Context) (Snapshot, error)
	Exhausted() bool
	Release()
}

// ResultStore persists per-security simulation outcomes
type ResultStore interface {
	SaveResult(ctx context.Context, res StockResult) error
	ResultsByRun(ctx context.Context, runID string) ([]StockResult, error)
	Close() error
}

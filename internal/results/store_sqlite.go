// Package results persists per-security simulation outcomes.
package results

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"hedgeware/internal/core"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore stores results in a local SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the results database
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Enable WAL mode for crash recovery
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		date TEXT NOT NULL,
		ticker TEXT NOT NULL,
		realized_pnl_pct REAL NOT NULL,
		exit_pnl_pct REAL NOT NULL,
		max_profit_pct REAL NOT NULL,
		max_loss_pct REAL NOT NULL,
		num_trades INTEGER NOT NULL,
		profitable INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id);`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveResult inserts one security outcome
func (s *SQLiteStore) SaveResult(ctx context.Context, res core.StockResult) error {
	query := `INSERT INTO results
		(run_id, date, ticker, realized_pnl_pct, exit_pnl_pct, max_profit_pct, max_loss_pct, num_trades, profitable, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	profitable := 0
	if res.Profitable {
		profitable = 1
	}

	_, err := s.db.ExecContext(ctx, query,
		res.RunID, res.Date, res.Ticker,
		res.RealizedPnLPct, res.ExitPnLPct, res.MaxProfitPct, res.MaxLossPct,
		res.NumTrades, profitable, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}
	return nil
}

// ResultsByRun returns every outcome of one batch run
func (s *SQLiteStore) ResultsByRun(ctx context.Context, runID string) ([]core.StockResult, error) {
	query := `SELECT run_id, date, ticker, realized_pnl_pct, exit_pnl_pct, max_profit_pct, max_loss_pct, num_trades, profitable
		FROM results WHERE run_id = ? ORDER BY date, ticker`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var out []core.StockResult
	for rows.Next() {
		var res core.StockResult
		var profitable int
		if err := rows.Scan(&res.RunID, &res.Date, &res.Ticker,
			&res.RealizedPnLPct, &res.ExitPnLPct, &res.MaxProfitPct, &res.MaxLossPct,
			&res.NumTrades, &profitable); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		res.Profitable = profitable != 0
		out = append(out, res)
	}

	return out, rows.Err()
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ core.ResultStore = (*SQLiteStore)(nil)

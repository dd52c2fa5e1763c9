package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"hedgeware/internal/bootstrap"
	"hedgeware/internal/config"
	"hedgeware/internal/core"
	"hedgeware/internal/driver"
	"hedgeware/internal/results"
	"hedgeware/internal/snapshot"
	"hedgeware/internal/state"
	"hedgeware/pkg/concurrency"
	"hedgeware/pkg/decimals"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/hedgeware.yaml", "Path to configuration file")
	dates := flag.String("dates", "", "Historical dates: groups separated by ';', dates by ',' (e.g. 2024-01-02,2024-01-03;2024-01-04)")
	ticker := flag.String("ticker", "", "Security to hedge in live or random mode")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("hedger version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	app, err := bootstrap.NewApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Shutdown(5 * time.Second)

	logger := app.Logger
	logger.Info("Starting hedger",
		"version", version,
		"mode", app.Cfg.App.SnapshotMode,
	)

	var runErr error
	switch app.Cfg.App.SnapshotMode {
	case config.ModeHistorical:
		runErr = runHistorical(app, *dates)
	case config.ModeRandom:
		runErr = runRandom(app, *ticker)
	case config.ModeLive:
		runErr = runLive(app, *ticker)
	default:
		runErr = fmt.Errorf("unknown snapshot mode: %s", app.Cfg.App.SnapshotMode)
	}

	if runErr != nil {
		logger.Error("Run failed", "error", runErr)
		os.Exit(1)
	}
}

// runnerFunc adapts a closure to the bootstrap.Runner interface
type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error { return f(ctx) }

func runHistorical(app *bootstrap.App, dates string) error {
	groups := parseDateGroups(dates)
	if len(groups) == 0 {
		return fmt.Errorf("historical mode requires -dates")
	}

	provider := snapshot.NewHistoricalProvider(app.Cfg.App.DataDir, app.Logger)

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "batch",
		MaxWorkers:  app.Cfg.Concurrency.BatchPoolSize,
		MaxCapacity: app.Cfg.Concurrency.BatchPoolBuffer,
	}, app.Logger)
	defer pool.StopAndWait()

	var store core.ResultStore
	if app.Cfg.App.ResultsDB != "" {
		sqliteStore, err := results.NewSQLiteStore(app.Cfg.App.ResultsDB)
		if err != nil {
			return fmt.Errorf("results store: %w", err)
		}
		defer sqliteStore.Close()
		store = sqliteStore
	}

	batch := driver.NewBatch(app.Cfg, provider, pool, store, app.Logger)

	return app.Run(runnerFunc(func(ctx context.Context) error {
		start := time.Now()
		agg, err := batch.Run(ctx, groups)
		if err != nil {
			return err
		}

		app.Logger.Info("Hedging completed",
			"run_id", batch.RunID(),
			"num_stocks", agg.NumStocks,
			"num_profitable", agg.NumProfitable,
			"elapsed_seconds", fmt.Sprintf("%.4f", time.Since(start).Seconds()))
		return nil
	}))
}

func runRandom(app *bootstrap.App, ticker string) error {
	if ticker == "" {
		ticker = "DEBUG"
	}

	source := snapshot.NewRandomSource(snapshot.DefaultRandomInitialPrice, time.Now().UnixNano(), app.Logger)

	st, err := state.New(time.Now().Format("2006-01-02"), ticker, snapshot.DefaultRandomInitialPrice, app.Cfg.Partial())
	if err != nil {
		return err
	}

	hedger := driver.NewHedger(driver.HedgerConfig{
		Mode: driver.ModeRandom,
	}, st, source, app.Logger)

	// The random walk never exhausts; the run ends on a signal.
	return app.Run(hedger)
}

func runLive(app *bootstrap.App, ticker string) error {
	if ticker == "" {
		return fmt.Errorf("live mode requires -ticker")
	}

	source := snapshot.NewLiveSource(app.Cfg.Live.QuoteURL, ticker, app.Logger)

	return app.Run(runnerFunc(func(ctx context.Context) error {
		// The ladder anchors on the first quote's ask.
		first, err := source.Next(ctx)
		if err != nil {
			return err
		}

		st, err := state.New(time.Now().Format("2006-01-02"), ticker, first.Ask, app.Cfg.Partial())
		if err != nil {
			return err
		}

		cfg := driver.HedgerConfig{
			Mode:                driver.ModeLive,
			LiveProfitThreshold: decimals.FromFloat(app.Cfg.Live.ProfitThreshold),
		}
		if loss := app.Cfg.Live.LossThreshold; loss != 0 {
			lossDec := decimals.FromFloat(loss)
			cfg.LiveLossThreshold = &lossDec
		}

		hedger := driver.NewHedger(cfg, st, source, app.Logger)
		return hedger.Run(ctx)
	}))
}

func parseDateGroups(raw string) [][]string {
	var groups [][]string
	for _, group := range strings.Split(raw, ";") {
		var dates []string
		for _, date := range strings.Split(group, ",") {
			if trimmed := strings.TrimSpace(date); trimmed != "" {
				dates = append(dates, trimmed)
			}
		}
		if len(dates) > 0 {
			groups = append(groups, dates)
		}
	}
	return groups
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"hedgeware/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hedgeware.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validYAML = `
app:
  snapshot_mode: historical
  data_dir: /data/historical
hedging:
  brokerage_trading_cost_per_share: 0.005
  shares_per_interval: 100
  target_position: 500
  space_between_intervals: 0.05
  interval_profit: 0.03
  profit_threshold: 0.5
  loss_threshold: -1.0
system:
  log_level: INFO
concurrency:
  batch_pool_size: 4
  batch_pool_buffer: 16
`

func TestLoadConfig_Valid(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, ModeHistorical, cfg.App.SnapshotMode)
	assert.Equal(t, 100, cfg.Hedging.SharesPerInterval)
	assert.Equal(t, 500, cfg.Hedging.TargetPosition)
	assert.Equal(t, "INFO", cfg.System.LogLevel)
}

func TestLoadConfig_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_DATA_DIR", "/expanded/dir")

	yaml := `
app:
  snapshot_mode: historical
  data_dir: ${TEST_DATA_DIR}
hedging:
  brokerage_trading_cost_per_share: 0.005
  shares_per_interval: 100
  target_position: 500
  space_between_intervals: 0.05
  interval_profit: 0.03
`
	cfg, err := LoadConfig(writeConfig(t, yaml))
	require.NoError(t, err)
	assert.Equal(t, "/expanded/dir", cfg.App.DataDir)
}

func TestLoadConfig_SnapshotModeEnvOverride(t *testing.T) {
	t.Setenv("RANDOM_SNAPSHOT", "1")

	cfg, err := LoadConfig(writeConfig(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, ModeRandom, cfg.App.SnapshotMode)
}

func TestLoadConfig_BothModeEnvVarsRejected(t *testing.T) {
	t.Setenv("RANDOM_SNAPSHOT", "true")
	t.Setenv("HISTORICAL_SNAPSHOT", "true")

	_, err := LoadConfig(writeConfig(t, validYAML))
	assert.Error(t, err)
}

func TestLoadConfig_IntervalProfitTooLarge(t *testing.T) {
	yaml := `
app:
  snapshot_mode: historical
  data_dir: /data
hedging:
  brokerage_trading_cost_per_share: 0.005
  shares_per_interval: 100
  target_position: 500
  space_between_intervals: 0.05
  interval_profit: 0.05
`
	_, err := LoadConfig(writeConfig(t, yaml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interval_profit")
}

func TestLoadConfig_TargetNotMultiple(t *testing.T) {
	yaml := `
app:
  snapshot_mode: historical
  data_dir: /data
hedging:
  brokerage_trading_cost_per_share: 0.005
  shares_per_interval: 150
  target_position: 500
  space_between_intervals: 0.05
  interval_profit: 0.03
`
	_, err := LoadConfig(writeConfig(t, yaml))
	assert.Error(t, err)
}

func TestLoadConfig_UnknownKeysIgnored(t *testing.T) {
	yaml := validYAML + `
extra_section:
  whatever: 1
`
	_, err := LoadConfig(writeConfig(t, yaml))
	assert.NoError(t, err)
}

func TestPartial_CarriesRecognizedKeys(t *testing.T) {
	cfg := DefaultConfig()
	partial := cfg.Partial()

	for _, key := range []string{
		core.KeyBrokerageTradingCostPerShare,
		core.KeySharesPerInterval,
		core.KeyTargetPosition,
		core.KeySpaceBetweenIntervals,
		core.KeyIntervalProfit,
		core.KeyNumContracts,
		core.KeyProfitThreshold,
		core.KeyLossThreshold,
		core.KeyIsStaticIntervals,
	} {
		assert.Contains(t, partial, key)
	}

	space, ok := partial[core.KeySpaceBetweenIntervals].(decimal.Decimal)
	require.True(t, ok)
	assert.True(t, space.Equal(decimal.RequireFromString("0.05")))
}

func TestHistoricalProfitThreshold(t *testing.T) {
	// Default
	os.Unsetenv("HISTORICAL_PROFIT_THRESHOLD")
	assert.True(t, HistoricalProfitThreshold().Equal(decimal.RequireFromString("0.01")))

	// Override
	t.Setenv("HISTORICAL_PROFIT_THRESHOLD", "0.25")
	assert.True(t, HistoricalProfitThreshold().Equal(decimal.RequireFromString("0.25")))

	// Unparseable falls back to the default
	t.Setenv("HISTORICAL_PROFIT_THRESHOLD", "lots")
	assert.True(t, HistoricalProfitThreshold().Equal(decimal.RequireFromString("0.01")))
}

func TestDefaultConfig_Valid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

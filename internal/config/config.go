// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"

	"hedgeware/internal/core"
	"hedgeware/pkg/decimals"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Snapshot modes
const (
	ModeHistorical = "historical"
	ModeRandom     = "random"
	ModeLive       = "live"
)

// Config represents the complete configuration structure
type Config struct {
	App         AppConfig         `yaml:"app"`
	Hedging     HedgingConfig     `yaml:"hedging"`
	System      SystemConfig      `yaml:"system"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Live        LiveConfig        `yaml:"live"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	SnapshotMode   string `yaml:"snapshot_mode" validate:"oneof=historical random live"`
	DataDir        string `yaml:"data_dir"`    // Root of per-date historical JSON directories
	ResultsDB      string `yaml:"results_db"`  // SQLite results file; empty disables persistence
	PrintPnLValues bool   `yaml:"print_pnl_values"`
}

// HedgingConfig carries the per-security simulation parameters. It is the
// typed rendition of the PartialStockState mapping; Partial() produces the
// mapping form consumed by the state factory.
type HedgingConfig struct {
	BrokerageTradingCostPerShare float64 `yaml:"brokerage_trading_cost_per_share" validate:"min=0"`
	SharesPerInterval            int     `yaml:"shares_per_interval" validate:"required,min=1"`
	TargetPosition               int     `yaml:"target_position" validate:"required,min=1"`
	SpaceBetweenIntervals        float64 `yaml:"space_between_intervals" validate:"required,min=0"`
	IntervalProfit               float64 `yaml:"interval_profit" validate:"required,min=0"`
	NumContracts                 int     `yaml:"num_contracts"`
	ProfitThreshold              float64 `yaml:"profit_threshold"`
	LossThreshold                float64 `yaml:"loss_threshold"`
	IsStaticIntervals            bool    `yaml:"is_static_intervals"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR FATAL"`
}

// ConcurrencyConfig contains worker pool settings
type ConcurrencyConfig struct {
	BatchPoolSize   int `yaml:"batch_pool_size" validate:"min=1,max=100"`
	BatchPoolBuffer int `yaml:"batch_pool_buffer" validate:"min=1,max=10000"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// LiveConfig contains live-mode settings
type LiveConfig struct {
	QuoteURL        string  `yaml:"quote_url"`
	ProfitThreshold float64 `yaml:"profit_threshold"`
	LossThreshold   float64 `yaml:"loss_threshold"` // 0 means unbounded
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyEnvOverrides applies the snapshot-mode environment variables.
// Exactly one of RANDOM_SNAPSHOT / HISTORICAL_SNAPSHOT selects its mode;
// neither set leaves the file value (defaulting to live).
func (c *Config) applyEnvOverrides() {
	random := isTruthy(os.Getenv("RANDOM_SNAPSHOT"))
	historical := isTruthy(os.Getenv("HISTORICAL_SNAPSHOT"))

	switch {
	case random:
		c.App.SnapshotMode = ModeRandom
	case historical:
		c.App.SnapshotMode = ModeHistorical
	}

	if v := os.Getenv("PRINT_PNL_VALUES"); v != "" {
		c.App.PrintPnLValues = isTruthy(v)
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errors []string

	if err := c.validateAppConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if err := c.validateHedgingConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if err := c.validateSystemConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if err := c.validateLiveConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}

func (c *Config) validateAppConfig() error {
	validModes := []string{ModeHistorical, ModeRandom, ModeLive}

	if c.App.SnapshotMode == "" {
		c.App.SnapshotMode = ModeLive
	}

	if !contains(validModes, c.App.SnapshotMode) {
		return ValidationError{
			Field:   "app.snapshot_mode",
			Value:   c.App.SnapshotMode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validModes, ", ")),
		}
	}

	if isTruthy(os.Getenv("RANDOM_SNAPSHOT")) && isTruthy(os.Getenv("HISTORICAL_SNAPSHOT")) {
		return ValidationError{
			Field:   "app.snapshot_mode",
			Message: "RANDOM_SNAPSHOT and HISTORICAL_SNAPSHOT must not both be set",
		}
	}

	if c.App.SnapshotMode == ModeHistorical && c.App.DataDir == "" {
		return ValidationError{
			Field:   "app.data_dir",
			Message: "data directory is required in historical mode",
		}
	}

	return nil
}

func (c *Config) validateHedgingConfig() error {
	h := c.Hedging

	if h.SharesPerInterval <= 0 {
		return ValidationError{
			Field:   "hedging.shares_per_interval",
			Value:   h.SharesPerInterval,
			Message: "shares per interval must be positive",
		}
	}

	if h.TargetPosition <= 0 {
		return ValidationError{
			Field:   "hedging.target_position",
			Value:   h.TargetPosition,
			Message: "target position must be positive",
		}
	}

	if h.TargetPosition%h.SharesPerInterval != 0 {
		return ValidationError{
			Field:   "hedging.target_position",
			Value:   h.TargetPosition,
			Message: "target position must be a multiple of shares_per_interval",
		}
	}

	if h.SpaceBetweenIntervals <= 0 {
		return ValidationError{
			Field:   "hedging.space_between_intervals",
			Value:   h.SpaceBetweenIntervals,
			Message: "interval spacing must be positive",
		}
	}

	if h.IntervalProfit <= 0 || h.IntervalProfit >= h.SpaceBetweenIntervals {
		return ValidationError{
			Field:   "hedging.interval_profit",
			Value:   h.IntervalProfit,
			Message: "interval profit must be positive and smaller than space_between_intervals",
		}
	}

	if h.BrokerageTradingCostPerShare < 0 {
		return ValidationError{
			Field:   "hedging.brokerage_trading_cost_per_share",
			Value:   h.BrokerageTradingCostPerShare,
			Message: "trading cost must not be negative",
		}
	}

	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if c.System.LogLevel == "" {
		c.System.LogLevel = "INFO"
	}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

func (c *Config) validateLiveConfig() error {
	if c.App.SnapshotMode != ModeLive {
		return nil
	}
	if c.Live.QuoteURL == "" {
		return ValidationError{
			Field:   "live.quote_url",
			Message: "quote URL is required in live mode",
		}
	}
	return nil
}

// Partial returns the PartialStockState mapping form of the hedging config
func (c *Config) Partial() core.PartialStockState {
	h := c.Hedging
	return core.PartialStockState{
		core.KeyBrokerageTradingCostPerShare: decimals.FromFloat(h.BrokerageTradingCostPerShare),
		core.KeySharesPerInterval:            h.SharesPerInterval,
		core.KeyTargetPosition:               h.TargetPosition,
		core.KeySpaceBetweenIntervals:        decimals.FromFloat(h.SpaceBetweenIntervals),
		core.KeyIntervalProfit:               decimals.FromFloat(h.IntervalProfit),
		core.KeyNumContracts:                 h.NumContracts,
		core.KeyProfitThreshold:              decimals.FromFloat(h.ProfitThreshold),
		core.KeyLossThreshold:                decimals.FromFloat(h.LossThreshold),
		core.KeyIsStaticIntervals:            h.IsStaticIntervals,
	}
}

// HistoricalProfitThreshold returns the historical exit threshold, taking
// the HISTORICAL_PROFIT_THRESHOLD environment override into account.
// Unparseable values fall back to the default of 0.01.
func HistoricalProfitThreshold() decimal.Decimal {
	defaultThreshold := decimal.RequireFromString("0.01")

	raw := os.Getenv("HISTORICAL_PROFIT_THRESHOLD")
	if raw == "" {
		return defaultThreshold
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return defaultThreshold
	}
	return d
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

// Helper functions

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a default configuration for testing
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			SnapshotMode:   ModeHistorical,
			DataDir:        "historical-data",
			ResultsDB:      "",
			PrintPnLValues: false,
		},
		Hedging: HedgingConfig{
			BrokerageTradingCostPerShare: 0.005,
			SharesPerInterval:            100,
			TargetPosition:               500,
			SpaceBetweenIntervals:        0.05,
			IntervalProfit:               0.03,
			NumContracts:                 1,
			ProfitThreshold:              0.5,
			LossThreshold:                -1.0,
			IsStaticIntervals:            false,
		},
		System: SystemConfig{
			LogLevel: "INFO",
		},
		Concurrency: ConcurrencyConfig{
			BatchPoolSize:   8,
			BatchPoolBuffer: 64,
		},
		Telemetry: TelemetryConfig{
			MetricsPort:   9464,
			EnableMetrics: false,
		},
		Live: LiveConfig{
			ProfitThreshold: 0.005,
			LossThreshold:   0,
		},
	}
}

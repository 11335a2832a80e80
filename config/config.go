package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/c360/tradeline/errors"
	"github.com/c360/tradeline/sources"
	"github.com/c360/tradeline/trading"
)

// EnvPrefix is the environment variable prefix for overrides, so the NATS
// URL for example is TRADELINE_NATS_URL.
const EnvPrefix = "tradeline"

// Config is the command's complete configuration. Values resolve in three
// layers: defaults, then the YAML file, then environment overrides.
type Config struct {
	// PoolSize is the endpoint pool capacity. A topology leases eight.
	PoolSize int `yaml:"pool_size" split_words:"true"`

	NATS       NATSConfig       `yaml:"nats"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Simulation SimulationConfig `yaml:"simulation"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Txn        TxnConfig        `yaml:"txn"`
	Results    ResultsConfig    `yaml:"results"`
}

// NATSConfig holds broker connection settings.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxReconnects int           `yaml:"max_reconnects" split_words:"true"`
	ReconnectWait time.Duration `yaml:"reconnect_wait" split_words:"true"`
}

// MetricsConfig holds the Prometheus exposition settings.
type MetricsConfig struct {
	// Port serves /metrics when positive; 0 disables the server.
	Port int `yaml:"port"`
}

// SimulationConfig describes the demo simulation: the trading environment
// and the random walk feeding it. Money values are decimal strings so the
// file never round-trips through binary floats.
type SimulationConfig struct {
	Instruments []string      `yaml:"instruments"`
	Capital     string        `yaml:"capital"`
	Start       time.Time     `yaml:"start"`
	Duration    time.Duration `yaml:"duration"`
	Interval    time.Duration `yaml:"interval"`
	StartPrice  string        `yaml:"start_price" split_words:"true"`
	Volatility  string        `yaml:"volatility"`
	Volume      int64         `yaml:"volume"`
	Seed        int64         `yaml:"seed"`

	// Window is the demo moving-average window in trades.
	Window int `yaml:"window"`
}

// PipelineConfig holds runtime and supervision timings.
type PipelineConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" split_words:"true"`
	MissLimit         int           `yaml:"miss_limit" split_words:"true"`
	ShutdownGrace     time.Duration `yaml:"shutdown_grace" split_words:"true"`
	InboxSize         int           `yaml:"inbox_size" split_words:"true"`
}

// TxnConfig holds the fill model as decimal strings.
type TxnConfig struct {
	VolumeShare        string `yaml:"volume_share" split_words:"true"`
	CommissionPerShare string `yaml:"commission_per_share" split_words:"true"`
}

// ResultsConfig controls run result persistence.
type ResultsConfig struct {
	// Enabled persists completed runs to the JetStream results bucket.
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration the command runs with when no file and
// no environment overrides are present: a two-instrument random walk over a
// two-hour session.
func Default() *Config {
	return &Config{
		PoolSize: 8,
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			Timeout:       5 * time.Second,
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Port: 0,
		},
		Simulation: SimulationConfig{
			Instruments: []string{"AAPL", "MSFT"},
			Capital:     "100000",
			Start:       time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
			Duration:    2 * time.Hour,
			Interval:    time.Minute,
			StartPrice:  "100",
			Volatility:  "0.5",
			Volume:      10000,
			Seed:        42,
			Window:      20,
		},
		Pipeline: PipelineConfig{
			HeartbeatInterval: time.Second,
			MissLimit:         5,
			ShutdownGrace:     10 * time.Second,
			InboxSize:         1024,
		},
		Txn: TxnConfig{
			VolumeShare:        "0.25",
			CommissionPerShare: "0.03",
		},
		Results: ResultsConfig{
			Enabled: false,
		},
	}
}

// Load resolves the configuration: defaults, then the YAML file at path if
// path is non-empty, then TRADELINE_* environment overrides. The caller
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load",
				fmt.Sprintf("parse %s", path))
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "apply environment overrides")
	}

	return cfg, nil
}

// Validate checks every section, including that the decimal strings parse.
func (c *Config) Validate() error {
	if c.PoolSize < 8 {
		return errors.WrapInvalid(
			fmt.Errorf("pool_size %d is below the eight endpoints a topology leases", c.PoolSize),
			"Config", "Validate", "pool check")
	}
	if c.NATS.URL == "" {
		return errors.WrapInvalid(
			fmt.Errorf("nats.url is required"), "Config", "Validate", "nats check")
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return errors.WrapInvalid(
			fmt.Errorf("metrics.port %d is out of range", c.Metrics.Port),
			"Config", "Validate", "metrics check")
	}
	if c.Pipeline.HeartbeatInterval <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("pipeline.heartbeat_interval must be positive"),
			"Config", "Validate", "pipeline check")
	}
	if c.Pipeline.MissLimit < 1 {
		return errors.WrapInvalid(
			fmt.Errorf("pipeline.miss_limit must be at least 1"),
			"Config", "Validate", "pipeline check")
	}
	if c.Pipeline.ShutdownGrace <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("pipeline.shutdown_grace must be positive"),
			"Config", "Validate", "pipeline check")
	}
	if c.Pipeline.InboxSize < 1 {
		return errors.WrapInvalid(
			fmt.Errorf("pipeline.inbox_size must be at least 1"),
			"Config", "Validate", "pipeline check")
	}
	if c.Simulation.Window < 1 {
		return errors.WrapInvalid(
			fmt.Errorf("simulation.window must be at least 1"),
			"Config", "Validate", "simulation check")
	}

	if _, err := c.Environment(); err != nil {
		return err
	}
	if _, err := c.RandomWalk(); err != nil {
		return err
	}
	fill, err := c.FillModel()
	if err != nil {
		return err
	}
	if err := fill.Validate(); err != nil {
		return errors.Wrap(err, "Config", "Validate", "txn check")
	}
	return nil
}

// Environment builds the trading environment from the simulation section.
func (c *Config) Environment() (trading.Environment, error) {
	capital, err := parseDecimal("simulation.capital", c.Simulation.Capital)
	if err != nil {
		return trading.Environment{}, err
	}
	env := trading.Environment{
		Start:       c.Simulation.Start,
		End:         c.Simulation.Start.Add(c.Simulation.Duration),
		CapitalBase: capital,
		Instruments: c.Simulation.Instruments,
	}
	if err := env.Validate(); err != nil {
		return trading.Environment{}, errors.Wrap(err, "Config", "Environment", "simulation check")
	}
	return env, nil
}

// RandomWalk builds the walk generator settings from the simulation section.
func (c *Config) RandomWalk() (sources.WalkConfig, error) {
	price, err := parseDecimal("simulation.start_price", c.Simulation.StartPrice)
	if err != nil {
		return sources.WalkConfig{}, err
	}
	volatility, err := parseDecimal("simulation.volatility", c.Simulation.Volatility)
	if err != nil {
		return sources.WalkConfig{}, err
	}
	walk := sources.WalkConfig{
		Instruments: c.Simulation.Instruments,
		Start:       c.Simulation.Start,
		End:         c.Simulation.Start.Add(c.Simulation.Duration),
		Interval:    c.Simulation.Interval,
		StartPrice:  price,
		Volatility:  volatility,
		Volume:      c.Simulation.Volume,
		Seed:        c.Simulation.Seed,
	}
	if err := walk.Validate(); err != nil {
		return sources.WalkConfig{}, errors.Wrap(err, "Config", "RandomWalk", "simulation check")
	}
	return walk, nil
}

// FillModel builds the transaction simulator settings from the txn section.
// Empty strings fall back to the simulator defaults.
func (c *Config) FillModel() (trading.TxnConfig, error) {
	fill := trading.DefaultTxnConfig()
	if c.Txn.VolumeShare != "" {
		share, err := parseDecimal("txn.volume_share", c.Txn.VolumeShare)
		if err != nil {
			return trading.TxnConfig{}, err
		}
		fill.VolumeShare = share
	}
	if c.Txn.CommissionPerShare != "" {
		commission, err := parseDecimal("txn.commission_per_share", c.Txn.CommissionPerShare)
		if err != nil {
			return trading.TxnConfig{}, err
		}
		fill.CommissionPerShare = commission
	}
	return fill, nil
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Decimal{}, errors.WrapInvalid(
			fmt.Errorf("%s is required", field), "Config", "parseDecimal", "decimal check")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, errors.WrapInvalid(
			fmt.Errorf("%s %q is not a decimal", field, raw),
			"Config", "parseDecimal", "decimal check")
	}
	return d, nil
}

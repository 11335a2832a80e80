package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath  string
	LogLevel    string
	LogFormat   string
	Debug       bool
	Local       bool
	Async       bool
	Validate    bool
	ShowVersion bool
	ShowHelp    bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	// Define flags with environment variable fallback
	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("TRADELINE_CONFIG", ""),
		"Path to YAML configuration file, empty for built-in defaults (env: TRADELINE_CONFIG)")

	flag.StringVar(&cfg.ConfigPath, "c",
		getEnv("TRADELINE_CONFIG", ""),
		"Path to YAML configuration file, empty for built-in defaults (env: TRADELINE_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("TRADELINE_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: TRADELINE_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("TRADELINE_LOG_FORMAT", "json"),
		"Log format: json, text (env: TRADELINE_LOG_FORMAT)")

	flag.BoolVar(&cfg.Debug, "debug",
		getEnvBool("TRADELINE_DEBUG", false),
		"Enable debug mode (env: TRADELINE_DEBUG)")

	flag.BoolVar(&cfg.Local, "local",
		getEnvBool("TRADELINE_LOCAL", false),
		"Run over the in-process bus instead of NATS (env: TRADELINE_LOCAL)")

	flag.BoolVar(&cfg.Async, "async",
		getEnvBool("TRADELINE_ASYNC", false),
		"Launch the run without joining it, then wait on topology termination (env: TRADELINE_ASYNC)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	// Custom usage
	flag.Usage = func() {
		printDetailedHelp()
	}

	flag.Parse()

	// Override log level if debug is set
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	// Skip validation for special flags
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	// The config file is optional; built-in defaults apply without one
	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	// Validate log level
	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	// Validate log format
	validFormats := []string{"json", "text"}
	if !contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - Simulated Trading Pipeline

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Configuration file (YAML, every key optional):
  pool_size: 8
  nats:       url, timeout, max_reconnects, reconnect_wait
  metrics:    port (0 disables)
  simulation: instruments, capital, start, duration, interval,
              start_price, volatility, volume, seed, window
  pipeline:   heartbeat_interval, miss_limit, shutdown_grace, inbox_size
  txn:        volume_share, commission_per_share
  results:    enabled

Every key is also settable through TRADELINE_* environment variables,
e.g. TRADELINE_NATS_URL or TRADELINE_SIMULATION_SEED; the environment
overrides the file.

Examples:
  # Run the built-in demo against a local NATS server
  %s

  # Run without NATS on the in-process bus
  %s --local --log-format=text

  # Run with custom config
  %s --config=/path/to/config.yaml

  # Validate configuration only
  %s --config=/path/to/config.yaml --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Utility function to check if slice contains string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

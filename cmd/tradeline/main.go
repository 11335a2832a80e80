// Package main implements the entry point for the tradeline simulator.
// Tradeline assembles a simulated trading pipeline over a message bus:
// trade sources and transforms feed a merged stream, a transaction
// simulator fills the algorithm's orders, and a client accounts the
// results against a decimal performance tracker.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/tradeline/bus"
	"github.com/c360/tradeline/config"
	"github.com/c360/tradeline/endpoint"
	"github.com/c360/tradeline/metric"
	"github.com/c360/tradeline/natsbus"
	"github.com/c360/tradeline/pipeline"
	"github.com/c360/tradeline/resultstore"
	"github.com/c360/tradeline/sources"
	"github.com/c360/tradeline/topology"
	"github.com/c360/tradeline/transforms"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "tradeline"
)

// walkSourceID names the demo market data source.
const walkSourceID = "random-walk"

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	// Run application with proper error handling
	if err := run(); err != nil {
		slog.Error("Simulation failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	// Parse and validate CLI flags
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	// Load and validate configuration
	cfg, err := initializeConfiguration(cliCfg)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	registry := metric.NewRegistry()

	// Connect the bus and, when available, the result store
	transport, store, err := setupTransport(cfg, cliCfg, registry.Metrics, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := transport.Close(); cerr != nil {
			slog.Warn("Transport close failed", "error", cerr)
		}
	}()

	stopMetrics := startMetricsServer(cfg, registry)
	defer stopMetrics()

	// Assemble the topology: pool, sources, transforms, algorithm
	coord, err := buildTopology(cfg, transport, registry.Metrics, logger)
	if err != nil {
		return err
	}

	// Run with signal handling
	runErr := runSimulation(coord, cliCfg.Async)
	status, fault := runOutcome(runErr)

	reportPerformance(os.Stdout, coord, status)

	if store != nil {
		persistResult(store, coord, status, fault)
	}

	// A stop command is an orderly cancel, not a failure.
	if runErr != nil && status == resultstore.StatusCanceled {
		slog.Info("Run canceled", "reason", fault)
		return nil
	}
	return runErr
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting tradeline (simulated trading pipeline)",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// initializeConfiguration loads and validates configuration
func initializeConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupTransport connects the message bus: in-process with -local,
// otherwise NATS per the configuration. With NATS and result persistence
// enabled it also opens the result store.
func setupTransport(
	cfg *config.Config,
	cliCfg *CLIConfig,
	metrics *metric.Metrics,
	logger *slog.Logger,
) (bus.Transport, *resultstore.Store, error) {
	if cliCfg.Local {
		slog.Info("Using in-process bus")
		if cfg.Results.Enabled {
			slog.Warn("Result persistence needs NATS JetStream, disabled in local mode")
		}
		return bus.NewInProc(bus.WithBufferSize(cfg.Pipeline.InboxSize)), nil, nil
	}

	slog.Info("Connecting to NATS", "url", cfg.NATS.URL)
	transport, err := natsbus.NewTransport(cfg.NATS.URL,
		natsbus.WithName(appName),
		natsbus.WithTimeout(cfg.NATS.Timeout),
		natsbus.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsbus.WithReconnectWait(cfg.NATS.ReconnectWait),
		natsbus.WithDrainTimeout(cfg.Pipeline.ShutdownGrace),
		natsbus.WithLogger(logger),
		natsbus.WithDropHandler(func(subject string) {
			metrics.RecordOverflow(subject)
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	if !cfg.Results.Enabled {
		return transport, nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := resultstore.NewStore(ctx, transport)
	if err != nil {
		_ = transport.Close()
		return nil, nil, fmt.Errorf("open result store: %w", err)
	}
	slog.Info("Result store ready", "bucket", resultstore.Bucket)

	return transport, store, nil
}

// startMetricsServer serves Prometheus metrics when a port is configured.
// The returned stop function is safe to call either way.
func startMetricsServer(cfg *config.Config, registry *metric.Registry) func() {
	if cfg.Metrics.Port <= 0 {
		return func() {}
	}

	server := metric.NewServer(cfg.Metrics.Port, "/metrics", registry)
	go func() {
		slog.Info("Metrics server listening", "address", server.Address())
		if err := server.Start(); err != nil {
			slog.Error("Metrics server failed", "error", err)
		}
	}()

	return func() {
		if err := server.Stop(); err != nil {
			slog.Warn("Metrics server stop failed", "error", err)
		}
	}
}

// buildTopology converts the configuration into a ready-to-run topology:
// endpoint pool, random-walk source, moving-average transform, and the
// demo crossover algorithm wired through the coordinator.
func buildTopology(
	cfg *config.Config,
	transport bus.Transport,
	metrics *metric.Metrics,
	logger *slog.Logger,
) (*topology.Coordinator, error) {
	env, err := cfg.Environment()
	if err != nil {
		return nil, fmt.Errorf("assemble environment: %w", err)
	}

	walkCfg, err := cfg.RandomWalk()
	if err != nil {
		return nil, fmt.Errorf("assemble market walk: %w", err)
	}

	fill, err := cfg.FillModel()
	if err != nil {
		return nil, fmt.Errorf("assemble fill model: %w", err)
	}

	pool, err := endpoint.NewPool(cfg.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("build endpoint pool: %w", err)
	}

	walk, err := sources.NewRandomWalk(walkSourceID, walkCfg)
	if err != nil {
		return nil, fmt.Errorf("build market source: %w", err)
	}

	averageID := fmt.Sprintf("mavg-%d", cfg.Simulation.Window)
	average, err := transforms.NewMovingAverage(averageID, cfg.Simulation.Window)
	if err != nil {
		return nil, fmt.Errorf("build moving average: %w", err)
	}

	engine := pipeline.NewEngine(transport,
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(metrics),
		pipeline.WithInboxSize(cfg.Pipeline.InboxSize))

	coord, err := topology.New(topology.Deps{
		Algorithm:         newCrossover("ma-crossover", averageID, orderClip),
		Environment:       env,
		Allocator:         pool,
		Transport:         transport,
		Runtime:           engine,
		Logger:            logger,
		Metrics:           metrics,
		Txn:               fill,
		HeartbeatInterval: cfg.Pipeline.HeartbeatInterval,
		MissLimit:         cfg.Pipeline.MissLimit,
		ShutdownGrace:     cfg.Pipeline.ShutdownGrace,
	})
	if err != nil {
		return nil, fmt.Errorf("build topology: %w", err)
	}

	if err := coord.AddSource(walk); err != nil {
		teardownTopology(coord)
		return nil, fmt.Errorf("register market source: %w", err)
	}
	if err := coord.AddTransform(average); err != nil {
		teardownTopology(coord)
		return nil, fmt.Errorf("register moving average: %w", err)
	}

	slog.Info("Topology assembled",
		"instruments", cfg.Simulation.Instruments,
		"window", cfg.Simulation.Window,
		"pool_size", cfg.PoolSize)

	return coord, nil
}

// teardownTopology reclaims a topology that never ran.
func teardownTopology(coord *topology.Coordinator) {
	if err := coord.Shutdown(); err != nil {
		slog.Warn("Topology teardown failed", "error", err)
	}
}

// runSimulation launches the run and waits for it to end. A shutdown
// signal becomes a controller stop command; the controller stays the sole
// cancellation authority.
func runSimulation(coord *topology.Coordinator, async bool) error {
	signalCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	go func() {
		select {
		case <-coord.Done():
			return
		case <-signalCtx.Done():
		}
		slog.Info("Received shutdown signal, stopping run")
		if err := coord.Controller().RequestStop("shutdown signal"); err != nil {
			slog.Warn("Stop command failed", "error", err)
		}
	}()

	if !async {
		return coord.Run(context.Background(), true)
	}

	if err := coord.Run(context.Background(), false); err != nil {
		return err
	}
	slog.Info("Run launched, waiting for completion", "run_id", coord.RunID())
	<-coord.Done()
	return coord.Err()
}

// runOutcome maps the run's terminal error onto a result status. The
// controller attributes operator stops to "control"; those count as
// cancels, every other error as a fault.
func runOutcome(runErr error) (status, fault string) {
	if runErr == nil {
		return resultstore.StatusCompleted, ""
	}

	var fErr *pipeline.FaultError
	if errors.As(runErr, &fErr) && fErr.Component == "control" {
		return resultstore.StatusCanceled, fErr.Reason
	}
	return resultstore.StatusFaulted, runErr.Error()
}

// reportPerformance prints the run's accounting to w.
func reportPerformance(w io.Writer, coord *topology.Coordinator, status string) {
	summary, err := coord.CumulativePerformance()
	if err != nil {
		slog.Warn("Performance summary unavailable", "error", err)
		return
	}
	positions, err := coord.Positions()
	if err != nil {
		slog.Warn("Positions unavailable", "error", err)
		return
	}

	_, _ = fmt.Fprintf(w, "\nRun %s (%s)\n", coord.RunID(), status)
	_, _ = fmt.Fprintf(w, "  starting cash: %s\n", summary.StartingCash)
	_, _ = fmt.Fprintf(w, "  ending cash:   %s\n", summary.EndingCash)
	_, _ = fmt.Fprintf(w, "  market value:  %s\n", summary.MarketValue)
	_, _ = fmt.Fprintf(w, "  PNL:           %s (returns %s)\n", summary.PNL, summary.Returns)
	_, _ = fmt.Fprintf(w, "  transactions:  %d (commission %s)\n", summary.Transactions, summary.Commission)

	if len(positions) == 0 {
		_, _ = fmt.Fprintf(w, "  positions:     none\n")
		return
	}
	_, _ = fmt.Fprintf(w, "  positions:\n")
	for _, p := range positions {
		_, _ = fmt.Fprintf(w, "    %-8s %7d @ cost %s, last %s\n",
			p.Instrument, p.Amount, p.CostBasis, p.LastPrice)
	}
}

// persistResult writes the finished run into the result store.
func persistResult(store *resultstore.Store, coord *topology.Coordinator, status, fault string) {
	summary, err := coord.CumulativePerformance()
	if err != nil {
		slog.Warn("Result not persisted, summary unavailable", "error", err)
		return
	}
	positions, err := coord.Positions()
	if err != nil {
		slog.Warn("Result not persisted, positions unavailable", "error", err)
		return
	}

	result := resultstore.Result{
		RunID:       coord.RunID(),
		Status:      status,
		CompletedAt: time.Now().UTC(),
		Performance: summary,
		Positions:   positions,
		Fault:       fault,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Put(ctx, result); err != nil {
		slog.Error("Result persistence failed", "run_id", result.RunID, "error", err)
		return
	}
	slog.Info("Result persisted", "run_id", result.RunID, "status", status)
}

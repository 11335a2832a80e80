package topology

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/tradeline/bus"
	"github.com/c360/tradeline/component"
	"github.com/c360/tradeline/endpoint"
	"github.com/c360/tradeline/errors"
	"github.com/c360/tradeline/event"
	"github.com/c360/tradeline/metric"
	"github.com/c360/tradeline/monitor"
	"github.com/c360/tradeline/perf"
	"github.com/c360/tradeline/pipeline"
	"github.com/c360/tradeline/trading"
)

// topologyEndpoints is the fixed lease size: six pipeline roles plus the
// controller's control and heartbeat pair.
const topologyEndpoints = 8

// DefaultShutdownGrace bounds how long Shutdown waits for run teardown
// before reclaiming endpoints anyway.
const DefaultShutdownGrace = 10 * time.Second

// Deps carries everything a Coordinator needs. Algorithm, Environment,
// Allocator, and Transport are required; the rest defaults.
type Deps struct {
	// Algorithm is the decision routine the topology runs.
	Algorithm trading.Algorithm

	// Environment frames the simulation. The topology only reads it.
	Environment trading.Environment

	// Allocator leases the topology's eight endpoints. Pools are shared
	// across topologies; the coordinator reclaims exactly what it leased.
	Allocator endpoint.Allocator

	// Transport carries all pipeline traffic.
	Transport bus.Transport

	// Runtime executes the run. Defaults to a pipeline.Engine over
	// Transport.
	Runtime pipeline.Runtime

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics is optional; nil disables instrumentation.
	Metrics *metric.Metrics

	// Txn tunes the transaction simulator. The zero value means
	// trading.DefaultTxnConfig().
	Txn trading.TxnConfig

	// OrderBuffer overrides the order source's inbox capacity.
	OrderBuffer int

	// HeartbeatInterval and MissLimit tune the supervisory watchdog;
	// zero keeps the monitor package defaults.
	HeartbeatInterval time.Duration
	MissLimit         int

	// ShutdownGrace bounds teardown waiting. Zero means
	// DefaultShutdownGrace.
	ShutdownGrace time.Duration
}

func (d Deps) validate() error {
	if d.Algorithm == nil || d.Algorithm.ID() == "" {
		return errors.WrapInvalid(
			fmt.Errorf("no algorithm: %w", errors.ErrInvalidComponent),
			"Coordinator", "New", "dependency check")
	}
	if d.Allocator == nil {
		return errors.WrapInvalid(
			fmt.Errorf("no allocator: %w", errors.ErrInvalidConfig),
			"Coordinator", "New", "dependency check")
	}
	if d.Transport == nil {
		return errors.WrapInvalid(
			fmt.Errorf("no transport: %w", errors.ErrInvalidConfig),
			"Coordinator", "New", "dependency check")
	}
	if err := d.Environment.Validate(); err != nil {
		return err
	}
	return nil
}

// Coordinator assembles and supervises one simulated trading topology: it
// leases the endpoint arena, builds the fixed trading components, accepts
// caller sources and transforms while Building, launches exactly one
// pipeline run, and tears the whole thing down exactly once.
//
// A Coordinator is single-use. After Terminated it never runs again;
// construct a new one for the next simulation.
type Coordinator struct {
	deps    Deps
	logger  *slog.Logger
	metrics *metric.Metrics
	runtime pipeline.Runtime
	grace   time.Duration

	endpoints []endpoint.Endpoint
	roles     endpoint.RoleMap
	ctrl      *monitor.Controller
	registry  *component.Registry
	client    *trading.SimulationClient

	state atomic.Int32
	done  chan struct{}

	mu          sync.Mutex
	run         *pipeline.Run
	runID       string
	runErr      error
	ctrlStarted bool
	reclaimed   bool
	shutdownErr error
	closeOnce   sync.Once
}

// New leases eight endpoints, constructs the fixed components, and wires
// the algorithm before anything can produce events. A failure after the
// lease reclaims the endpoints before returning.
func New(deps Deps) (*Coordinator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "coordinator")

	runtime := deps.Runtime
	if runtime == nil {
		runtime = pipeline.NewEngine(deps.Transport,
			pipeline.WithLogger(logger),
			pipeline.WithMetrics(deps.Metrics))
	}

	grace := deps.ShutdownGrace
	if grace <= 0 {
		grace = DefaultShutdownGrace
	}

	txnCfg := deps.Txn
	if txnCfg.VolumeShare.IsZero() && txnCfg.CommissionPerShare.IsZero() {
		txnCfg = trading.DefaultTxnConfig()
	}

	eps, err := deps.Allocator.Lease(topologyEndpoints)
	if err != nil {
		return nil, errors.WrapFatal(err, "Coordinator", "New", "endpoint lease")
	}
	fail := func(err error) (*Coordinator, error) {
		if rerr := deps.Allocator.Reclaim(eps...); rerr != nil {
			logger.Error("endpoint reclamation after failed construction", "error", rerr)
		}
		return nil, err
	}

	roles, err := endpoint.NewRoleMap(eps[:len(endpoint.Roles())])
	if err != nil {
		return fail(errors.Wrap(err, "Coordinator", "New", "role binding"))
	}

	ctrlOpts := []monitor.Option{monitor.WithLogger(logger)}
	if deps.HeartbeatInterval > 0 {
		ctrlOpts = append(ctrlOpts, monitor.WithInterval(deps.HeartbeatInterval))
	}
	if deps.MissLimit > 0 {
		ctrlOpts = append(ctrlOpts, monitor.WithMissLimit(deps.MissLimit))
	}
	if deps.Metrics != nil {
		ctrlOpts = append(ctrlOpts, monitor.WithMetrics(deps.Metrics))
	}
	ctrl, err := monitor.NewController(eps[6], eps[7], deps.Transport, ctrlOpts...)
	if err != nil {
		return fail(errors.Wrap(err, "Coordinator", "New", "controller construction"))
	}

	client := trading.NewSimulationClient(deps.Environment.CapitalBase,
		trading.WithClientLogger(logger),
		trading.WithClientMetrics(deps.Metrics))

	var orderOpts []trading.OrderSourceOption
	if deps.OrderBuffer > 0 {
		orderOpts = append(orderOpts, trading.WithOrderBuffer(deps.OrderBuffer))
	}
	orderSource := trading.NewOrderSource(orderOpts...)

	txnSim, err := trading.NewTransactionSimulator(txnCfg)
	if err != nil {
		return fail(errors.Wrap(err, "Coordinator", "New", "transaction simulator construction"))
	}

	registry := component.NewRegistry()
	if err := registry.AddClient(client); err != nil {
		return fail(err)
	}
	if err := registry.AddSource(orderSource); err != nil {
		return fail(err)
	}
	if err := registry.AddTransform(txnSim); err != nil {
		return fail(err)
	}

	// Wiring happens at construction, strictly before any event can be
	// produced: frames to the algorithm, algorithm orders to the client,
	// client batches onto the order subject.
	client.AddEventCallback(deps.Algorithm.HandleFrame)
	deps.Algorithm.SetOrderFunc(client.Order)
	orderSubject := roles.Subject(endpoint.RoleOrder)
	transport := deps.Transport
	client.SetBatchFunc(func(batch event.OrderBatch) error {
		data, err := event.Marshal(batch)
		if err != nil {
			return err
		}
		return transport.Publish(orderSubject, data)
	})

	c := &Coordinator{
		deps:      deps,
		logger:    logger,
		metrics:   deps.Metrics,
		runtime:   runtime,
		grace:     grace,
		endpoints: eps,
		roles:     roles,
		ctrl:      ctrl,
		registry:  registry,
		client:    client,
		done:      make(chan struct{}),
	}
	if c.metrics != nil {
		c.metrics.RecordEndpointsLeased(len(eps))
	}

	logger.Info("topology built",
		"algorithm", deps.Algorithm.ID(),
		"endpoints", len(eps),
		"instruments", len(deps.Environment.Instruments))
	return c, nil
}

// AddSource registers a caller source. Registration closes at Run.
func (c *Coordinator) AddSource(src component.Source) error {
	if State(c.state.Load()) != Building {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Coordinator", "AddSource", "registration window check")
	}
	return c.registry.AddSource(src)
}

// AddTransform registers a caller transform. Registration closes at Run.
func (c *Coordinator) AddTransform(tf component.Transform) error {
	if State(c.state.Load()) != Building {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Coordinator", "AddTransform", "registration window check")
	}
	return c.registry.AddTransform(tf)
}

// Run freezes the registry and launches the pipeline exactly once. With
// blocking true it joins the run, shuts the topology down, and returns the
// run's terminal error; otherwise it returns once the run is launched and
// shutdown follows the run's completion.
func (c *Coordinator) Run(ctx context.Context, blocking bool) error {
	c.mu.Lock()
	if !c.state.CompareAndSwap(int32(Building), int32(Running)) {
		c.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Coordinator", "Run", "state check")
	}

	runID := uuid.NewString()
	c.runID = runID
	c.recordState(Running)

	snapshot := c.registry.Freeze()

	if err := c.ctrl.Start(ctx); err != nil {
		err = errors.Wrap(err, "Coordinator", "Run", "controller start")
		c.abortLaunchLocked(err)
		c.mu.Unlock()
		return err
	}
	c.ctrlStarted = true
	c.ctrl.RegisterComponents(snapshot.Identities()...)

	plan := pipeline.Plan{
		RunID:         runID,
		Roles:         c.roles,
		Components:    snapshot,
		Controller:    c.ctrl,
		OrderSourceID: trading.OrderSourceID,
	}
	run, err := c.runtime.Run(ctx, plan)
	if err != nil {
		err = errors.Wrap(err, "Coordinator", "Run", "pipeline launch")
		c.abortLaunchLocked(err)
		c.mu.Unlock()
		return err
	}
	c.run = run
	c.mu.Unlock()

	c.logger.Info("run launched", "run_id", runID, "blocking", blocking)

	// Shutdown is deferred onto the run's completion signal, never
	// invoked eagerly at launch.
	go c.watchRun(run)

	if !blocking {
		return nil
	}
	err = run.Join()
	if serr := c.Shutdown(); serr != nil {
		c.logger.Error("shutdown after run failed", "error", serr)
	}
	return err
}

// abortLaunchLocked terminates a topology whose launch failed partway.
// Callers hold c.mu.
func (c *Coordinator) abortLaunchLocked(err error) {
	c.logger.Error("run launch failed", "error", err)
	if serr := c.shutdownLocked("launch failed"); serr != nil {
		c.logger.Error("shutdown after failed launch", "error", serr)
	}
}

// watchRun shuts the topology down once the run completes.
func (c *Coordinator) watchRun(run *pipeline.Run) {
	<-run.Done()
	if err := run.Err(); err != nil {
		c.logger.Error("run ended abnormally", "run_id", run.ID(), "error", err)
	}
	if err := c.Shutdown(); err != nil {
		c.logger.Error("post-run shutdown failed", "error", err)
	}
}

// Shutdown stops any active run, waits for teardown up to the grace
// period, reclaims all eight endpoints exactly once, and terminates the
// topology. It is idempotent and safe to call concurrently: the second
// call returns the first call's result, later calls are no-ops. A failed
// reclamation leaves the topology in ShuttingDown so a later call can
// retry without double-releasing.
func (c *Coordinator) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shutdownLocked("shutdown requested")
}

func (c *Coordinator) shutdownLocked(reason string) error {
	if State(c.state.Load()) == Terminated {
		return c.shutdownErr
	}

	c.state.Store(int32(ShuttingDown))
	c.recordState(ShuttingDown)

	if c.run != nil {
		select {
		case <-c.run.Done():
		default:
			c.logger.Info("stopping active run", "run_id", c.run.ID(), "reason", reason)
			c.run.Stop()
			select {
			case <-c.run.Done():
			case <-time.After(c.grace):
				c.logger.Warn("run teardown exceeded grace period, reclaiming anyway",
					"run_id", c.run.ID(), "grace", c.grace)
			}
		}
		c.runErr = c.run.Err()
	}

	if c.ctrlStarted {
		if err := c.ctrl.Stop(c.grace); err != nil {
			c.logger.Warn("controller stop failed", "error", err)
		}
		c.ctrlStarted = false
	}

	if !c.reclaimed {
		if err := c.deps.Allocator.Reclaim(c.endpoints...); err != nil {
			c.shutdownErr = errors.WrapFatal(err, "Coordinator", "Shutdown", "endpoint reclamation")
			c.logger.Error("endpoint reclamation failed", "error", err)
			return c.shutdownErr
		}
		c.reclaimed = true
		c.shutdownErr = nil
		if c.metrics != nil {
			c.metrics.RecordEndpointsLeased(0)
		}
	}

	c.state.Store(int32(Terminated))
	c.recordState(Terminated)
	c.closeOnce.Do(func() { close(c.done) })
	c.logger.Info("topology terminated")
	return c.shutdownErr
}

// CumulativePerformance returns the run's performance summary so far. It
// fails with errors.ErrNotStarted while the topology is still Building.
func (c *Coordinator) CumulativePerformance() (perf.Summary, error) {
	if State(c.state.Load()) == Building {
		return perf.Summary{}, errors.WrapInvalid(errors.ErrNotStarted,
			"Coordinator", "CumulativePerformance", "state check")
	}
	return c.client.Performance(), nil
}

// Positions returns the open positions so far. It fails with
// errors.ErrNotStarted while the topology is still Building.
func (c *Coordinator) Positions() ([]perf.Position, error) {
	if State(c.state.Load()) == Building {
		return nil, errors.WrapInvalid(errors.ErrNotStarted,
			"Coordinator", "Positions", "state check")
	}
	return c.client.Positions(), nil
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Done closes when the topology reaches Terminated.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Err returns the run's terminal error: nil for a clean run or before any
// run, a *pipeline.FaultError for a faulted or stopped one.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runErr
}

// RunID returns the launched run's identity, empty before Run.
func (c *Coordinator) RunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID
}

// Roles returns a copy of the role bindings.
func (c *Coordinator) Roles() endpoint.RoleMap {
	out := make(endpoint.RoleMap, len(c.roles))
	for role, ep := range c.roles {
		out[role] = ep
	}
	return out
}

// Controller exposes the supervisory controller, e.g. for an operator stop
// command.
func (c *Coordinator) Controller() *monitor.Controller {
	return c.ctrl
}

func (c *Coordinator) recordState(s State) {
	c.logger.Debug("state transition", "state", s.String())
	if c.metrics == nil {
		return
	}
	run := c.runID
	if run == "" {
		run = "none"
	}
	c.metrics.RecordTopologyState(run, int(s))
}

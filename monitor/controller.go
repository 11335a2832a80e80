package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/tradeline/bus"
	"github.com/c360/tradeline/endpoint"
	"github.com/c360/tradeline/errors"
	"github.com/c360/tradeline/metric"
)

const (
	// DefaultInterval is the watchdog tick and expected heartbeat cadence.
	DefaultInterval = 1 * time.Second

	// DefaultMissLimit is how many consecutive intervals a component may
	// go silent before the controller trips.
	DefaultMissLimit = 3
)

// componentState tracks one supervised component.
type componentState struct {
	lastBeat time.Time
	done     bool
}

// Controller supervises a pipeline run. It listens for heartbeats on its
// beat endpoint and stop commands on its control endpoint, and it trips a
// single Fault when a component goes silent, reports a failure, or an
// external stop arrives. The controller is the only authority that ends a
// run: everything else asks it to.
type Controller struct {
	control   endpoint.Endpoint
	beat      endpoint.Endpoint
	transport bus.Transport
	logger    *slog.Logger
	metrics   *metric.Metrics

	interval  time.Duration
	missLimit int

	mu         sync.Mutex
	components map[string]*componentState
	armed      bool
	tripped    bool
	fault      Fault
	started    bool

	faultCh chan Fault
	stopCh  chan struct{}
	doneCh  chan struct{}
	subs    []bus.Subscription
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithInterval sets the watchdog tick and expected heartbeat cadence.
func WithInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithMissLimit sets how many consecutive silent intervals trip the
// controller.
func WithMissLimit(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.missLimit = n
		}
	}
}

// WithMetrics attaches supervision metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// NewController creates a controller over its two dedicated endpoints. The
// control endpoint carries Commands, the beat endpoint carries Beats.
func NewController(control, beat endpoint.Endpoint, transport bus.Transport, opts ...Option) (*Controller, error) {
	if !control.Valid() || !beat.Valid() {
		return nil, errors.WrapInvalid(
			errors.ErrInvalidConfig, "controller", "new", "endpoint missing")
	}
	if transport == nil {
		return nil, errors.WrapInvalid(
			errors.ErrInvalidConfig, "controller", "new", "transport missing")
	}

	c := &Controller{
		control:    control,
		beat:       beat,
		transport:  transport,
		logger:     slog.Default(),
		interval:   DefaultInterval,
		missLimit:  DefaultMissLimit,
		components: make(map[string]*componentState),
		faultCh:    make(chan Fault, 1),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RegisterComponents declares the components the watchdog supervises. Must
// be called before Arm; beats from unregistered components are recorded but
// never expected.
func (c *Controller) RegisterComponents(ids ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if _, ok := c.components[id]; !ok {
			c.components[id] = &componentState{}
		}
	}
}

// Start subscribes to the control and beat endpoints and launches the
// watchdog. The watchdog stays dormant until Arm.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "controller", "start", "already running")
	}
	c.started = true
	c.mu.Unlock()

	beatSub, err := c.transport.Subscribe(c.beat.Subject(), c.handleBeat)
	if err != nil {
		return errors.Wrap(err, "controller", "start", "beat subscription failed")
	}
	controlSub, err := c.transport.Subscribe(c.control.Subject(), c.handleCommand)
	if err != nil {
		_ = beatSub.Unsubscribe()
		return errors.Wrap(err, "controller", "start", "control subscription failed")
	}
	c.subs = []bus.Subscription{beatSub, controlSub}

	go c.watch(ctx)

	c.logger.Debug("controller started",
		"control", c.control.Subject(),
		"beat", c.beat.Subject(),
		"interval", c.interval,
		"miss_limit", c.missLimit)
	return nil
}

// Arm turns heartbeat enforcement on. Every registered component is granted
// a fresh deadline, so Arm is called once the run is announced and the
// components are beating.
func (c *Controller) Arm() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armed = true
	for _, st := range c.components {
		if st.lastBeat.IsZero() {
			st.lastBeat = now
		}
	}
}

// Trip records a fault and delivers it on the Fault channel. Only the first
// trip wins; later calls are logged and dropped.
func (c *Controller) Trip(component, reason string) {
	c.mu.Lock()
	if c.tripped {
		c.mu.Unlock()
		c.logger.Debug("fault after trip ignored", "component", component, "reason", reason)
		return
	}
	c.tripped = true
	c.fault = Fault{Component: component, Reason: reason}
	c.mu.Unlock()

	c.logger.Error("controller tripped", "component", component, "reason", reason)
	if c.metrics != nil {
		c.metrics.RecordFault(component)
	}
	c.faultCh <- Fault{Component: component, Reason: reason}
}

// Fault exposes the single-fire fault channel. At most one Fault is ever
// delivered.
func (c *Controller) Fault() <-chan Fault {
	return c.faultCh
}

// Tripped reports whether a fault has fired, and which.
func (c *Controller) Tripped() (Fault, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fault, c.tripped
}

// RequestStop publishes a stop command on the control endpoint. Any actor
// holding the controller may call it; the controller itself receives the
// command and trips.
func (c *Controller) RequestStop(reason string) error {
	data, err := json.Marshal(Command{Op: OpStop, Reason: reason})
	if err != nil {
		return errors.WrapInvalid(err, "controller", "requeststop", "command encoding failed")
	}
	if err := c.transport.Publish(c.control.Subject(), data); err != nil {
		return errors.Wrap(err, "controller", "requeststop", "publish failed")
	}
	return nil
}

// Stop halts the watchdog and unsubscribes. It does not close the
// transport, which the controller never owned.
func (c *Controller) Stop(timeout time.Duration) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	c.mu.Unlock()

	close(c.stopCh)
	select {
	case <-c.doneCh:
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("watchdog did not exit within %s", timeout),
			"controller", "stop", "shutdown timed out")
	}

	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			c.logger.Warn("unsubscribe failed", "error", err)
		}
	}
	c.subs = nil
	return nil
}

// handleBeat records a component heartbeat.
func (c *Controller) handleBeat(_ string, data []byte) {
	var beat Beat
	if err := json.Unmarshal(data, &beat); err != nil {
		c.logger.Warn("malformed heartbeat dropped", "error", err)
		return
	}
	if beat.Component == "" {
		return
	}

	c.mu.Lock()
	st, ok := c.components[beat.Component]
	if !ok {
		st = &componentState{}
		c.components[beat.Component] = st
	}
	st.lastBeat = time.Now()
	if beat.Done {
		st.done = true
	}
	c.mu.Unlock()

	if beat.Done {
		c.logger.Debug("component finished", "component", beat.Component, "run_id", beat.RunID)
	}
}

// handleCommand reacts to control-plane instructions.
func (c *Controller) handleCommand(_ string, data []byte) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.logger.Warn("malformed command dropped", "error", err)
		return
	}
	switch cmd.Op {
	case OpStop:
		reason := cmd.Reason
		if reason == "" {
			reason = "stop requested"
		}
		c.Trip("control", reason)
	default:
		c.logger.Warn("unknown command ignored", "op", cmd.Op)
	}
}

// watch is the watchdog loop. Each tick it checks every armed, unfinished
// component against its heartbeat deadline.
func (c *Controller) watch(ctx context.Context) {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.checkDeadlines()
		}
	}
}

func (c *Controller) checkDeadlines() {
	type overdue struct {
		id     string
		silent time.Duration
	}

	now := time.Now()
	deadline := time.Duration(c.missLimit) * c.interval

	c.mu.Lock()
	if !c.armed || c.tripped {
		c.mu.Unlock()
		return
	}
	var late []overdue
	for id, st := range c.components {
		if st.done {
			continue
		}
		silent := now.Sub(st.lastBeat)
		if silent >= c.interval && c.metrics != nil {
			c.metrics.RecordHeartbeatMissed(id)
		}
		if silent >= deadline {
			late = append(late, overdue{id: id, silent: silent})
		}
	}
	c.mu.Unlock()

	for _, o := range late {
		c.Trip(o.id, fmt.Sprintf("no heartbeat for %s (limit %s)", o.silent.Round(time.Millisecond), deadline))
		return
	}
}

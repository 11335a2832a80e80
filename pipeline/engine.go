package pipeline

import (
	"context"
	"log/slog"

	"github.com/c360/tradeline/bus"
	"github.com/c360/tradeline/errors"
	"github.com/c360/tradeline/metric"
)

// DefaultInboxSize bounds each stage inbox. Overflowing an inbox is a
// fault, so the bound is generous relative to one frame's worth of traffic.
const DefaultInboxSize = 1024

// Engine is the production Runtime. One engine serves any number of
// sequential or concurrent runs over its transport; all per-run state lives
// in the session.
type Engine struct {
	transport bus.Transport
	logger    *slog.Logger
	metrics   *metric.Metrics
	inboxSize int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics attaches pipeline metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithInboxSize sets the per-stage inbox bound.
func WithInboxSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.inboxSize = n
		}
	}
}

// NewEngine creates an engine over the given transport.
func NewEngine(transport bus.Transport, opts ...Option) *Engine {
	e := &Engine{
		transport: transport,
		logger:    slog.Default(),
		inboxSize: DefaultInboxSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one plan. It subscribes every stage, flushes the transport,
// announces the run, arms the controller, and starts the stage goroutines;
// the returned handle completes after full teardown. ctx ending cancels the
// run.
func (e *Engine) Run(ctx context.Context, plan Plan) (*Run, error) {
	if e.transport == nil {
		return nil, errors.WrapInvalid(
			errors.ErrInvalidConfig, "engine", "run", "transport missing")
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	s := newSession(e, ctx, plan)
	if err := s.subscribeAll(); err != nil {
		s.unsubscribeAll()
		s.cancel()
		return nil, errors.Wrap(err, "engine", "run", "stage subscription failed")
	}
	if err := e.transport.Flush(); err != nil {
		s.unsubscribeAll()
		s.cancel()
		return nil, errors.WrapTransient(err, "engine", "run", "transport flush failed")
	}

	s.announce(OpRunStart, "", "")
	if err := e.transport.Flush(); err != nil {
		s.logger.Debug("announcement flush failed", "error", err)
	}
	plan.Controller.Arm()

	s.start()
	go s.conduct()

	e.logger.Info("run started",
		"run_id", plan.RunID,
		"sources", len(plan.Components.Sources()),
		"transforms", len(plan.Components.Transforms()),
		"order_source", plan.OrderSourceID)
	return s.handle, nil
}

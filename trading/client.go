package trading

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/c360/tradeline/component"
	"github.com/c360/tradeline/errors"
	"github.com/c360/tradeline/event"
	"github.com/c360/tradeline/metric"
	"github.com/c360/tradeline/perf"
)

// ClientID is the identity the simulation client registers under.
const ClientID = "trading-client"

// SimulationClient consumes assembled frames and closes the trading loop.
// For every frame it applies simulated fills to the performance tracker,
// marks open positions to the trade price, invokes the registered frame
// callbacks, and ships any orders placed during those callbacks as one
// batch stamped with the frame's timestamp.
//
// The runtime drives HandleFrame and Finish from a single goroutine.
// Performance and Positions are safe to call from other goroutines at any
// point during or after a run.
type SimulationClient struct {
	tracker *perf.Tracker
	logger  *slog.Logger
	metrics *metric.Metrics

	mu        sync.Mutex
	callbacks []component.FrameCallback
	batchFn   func(event.OrderBatch) error
	pending   []event.Order
	current   time.Time
	finished  bool
	done      chan struct{}
}

// ClientOption configures a SimulationClient.
type ClientOption func(*SimulationClient)

// WithClientLogger sets the client's logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *SimulationClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClientMetrics attaches pipeline metrics to the client.
func WithClientMetrics(m *metric.Metrics) ClientOption {
	return func(c *SimulationClient) {
		c.metrics = m
	}
}

// NewSimulationClient creates a client tracking performance against the
// given capital base.
func NewSimulationClient(capitalBase decimal.Decimal, opts ...ClientOption) *SimulationClient {
	c := &SimulationClient{
		tracker: perf.NewTracker(capitalBase),
		logger:  slog.Default(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", ClientID)
	return c
}

// ID returns the client's identity.
func (c *SimulationClient) ID() string { return ClientID }

// AddEventCallback registers a callback invoked for every frame, in
// registration order. Register callbacks before the run starts.
func (c *SimulationClient) AddEventCallback(fn component.FrameCallback) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, fn)
}

// SetBatchFunc wires the order sink. The topology points it at the order
// source before the run starts.
func (c *SimulationClient) SetBatchFunc(fn func(event.OrderBatch) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batchFn = fn
}

// Order queues one order for the frame currently being handled. Orders
// without an ID get one; orders without a timestamp take the frame's.
func (c *SimulationClient) Order(o event.Order) error {
	if o.Instrument == "" {
		return errors.WrapInvalid(
			fmt.Errorf("order has no instrument"),
			"SimulationClient", "Order", "order validation")
	}
	if o.Amount == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("order for %s has zero amount", o.Instrument),
			"SimulationClient", "Order", "order validation")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return errors.WrapInvalid(
			fmt.Errorf("order placed after finish"),
			"SimulationClient", "Order", "lifecycle check")
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = c.current
	}
	c.pending = append(c.pending, o)
	if c.metrics != nil {
		c.metrics.RecordOrderPlaced(o.Instrument)
	}
	return nil
}

// HandleFrame processes one assembled frame: fills first, then the price
// mark, then the frame callbacks, then the order flush.
func (c *SimulationClient) HandleFrame(frame event.Frame) error {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return errors.WrapInvalid(
			fmt.Errorf("frame after finish"),
			"SimulationClient", "HandleFrame", "lifecycle check")
	}
	c.current = frame.Event.Timestamp
	cbs := c.callbacks
	c.mu.Unlock()

	c.applyFills(frame)
	if frame.Event.Type == event.TypeTrade && frame.Event.Instrument != "" {
		c.tracker.ObservePrice(frame.Event.Instrument, frame.Event.Price)
	}

	for i := range cbs {
		if err := cbs[i](frame); err != nil {
			return errors.Wrap(err, "SimulationClient", "HandleFrame", "frame callback")
		}
	}

	return c.flushOrders(frame.Event.Timestamp)
}

// applyFills books every simulated transaction attached to the frame.
// Derived events are visited in transform-ID order so runs replay the
// same way every time.
func (c *SimulationClient) applyFills(frame event.Frame) {
	if len(frame.Derived) == 0 {
		return
	}
	ids := make([]string, 0, len(frame.Derived))
	for id := range frame.Derived {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		ev := frame.Derived[id]
		if ev.Type != event.TypeTransaction {
			continue
		}
		for _, txn := range ev.Transactions {
			c.tracker.ProcessTransaction(txn)
			if c.metrics != nil {
				c.metrics.RecordTransactionFilled(txn.Instrument)
			}
		}
	}
}

// flushOrders ships the pending orders as one batch stamped with the
// frame's timestamp. Frames that placed no orders publish nothing.
func (c *SimulationClient) flushOrders(ts time.Time) error {
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return nil
	}
	batch := event.OrderBatch{Timestamp: ts, Orders: c.pending}
	c.pending = nil
	fn := c.batchFn
	c.mu.Unlock()

	if fn == nil {
		return errors.WrapInvalid(
			fmt.Errorf("%d orders placed but no order sink is wired", len(batch.Orders)),
			"SimulationClient", "HandleFrame", "order flush")
	}
	c.logger.Debug("flushing order batch",
		"orders", len(batch.Orders),
		"timestamp", ts)
	if err := fn(batch); err != nil {
		return errors.Wrap(err, "SimulationClient", "HandleFrame", "order flush")
	}
	return nil
}

// Finish ends the client's order stream with a close batch. Any orders
// still pending ship first. Finish is idempotent.
func (c *SimulationClient) Finish() error {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return nil
	}
	c.finished = true
	pending := c.pending
	c.pending = nil
	ts := c.current
	fn := c.batchFn
	close(c.done)
	c.mu.Unlock()

	if fn == nil {
		return nil
	}
	if len(pending) > 0 {
		if err := fn(event.OrderBatch{Timestamp: ts, Orders: pending}); err != nil {
			return errors.Wrap(err, "SimulationClient", "Finish", "final order flush")
		}
	}
	if err := fn(event.OrderBatch{Close: true}); err != nil {
		return errors.Wrap(err, "SimulationClient", "Finish", "order stream close")
	}
	c.logger.Debug("order stream closed")
	return nil
}

// Done returns a channel closed once Finish has run.
func (c *SimulationClient) Done() <-chan struct{} { return c.done }

// Performance returns the cumulative performance summary so far.
func (c *SimulationClient) Performance() perf.Summary {
	return c.tracker.Cumulative()
}

// Positions returns the open positions so far.
func (c *SimulationClient) Positions() []perf.Position {
	return c.tracker.Positions()
}

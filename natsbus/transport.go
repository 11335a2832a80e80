package natsbus

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/tradeline/bus"
	"github.com/c360/tradeline/errors"
)

const defaultPendingMsgs = 8192

// Transport is the NATS-backed bus.Transport. One Transport owns one NATS
// connection; subscriptions created through it are drained together on
// Close.
type Transport struct {
	url    string
	conn   *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger

	onDrop      bus.DropHandler
	pendingMsgs int

	name          string
	timeout       time.Duration
	drainTimeout  time.Duration
	maxReconnects int
	reconnectWait time.Duration

	mu     sync.Mutex
	subs   []*nats.Subscription
	closed bool
}

// Option configures a Transport.
type Option func(*Transport)

// WithName sets the NATS client name.
func WithName(name string) Option {
	return func(t *Transport) {
		t.name = name
	}
}

// WithTimeout sets the connect timeout.
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.timeout = d
	}
}

// WithDrainTimeout bounds how long Close waits for in-flight deliveries.
func WithDrainTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.drainTimeout = d
	}
}

// WithMaxReconnects sets the reconnect budget. Negative means unlimited.
func WithMaxReconnects(n int) Option {
	return func(t *Transport) {
		t.maxReconnects = n
	}
}

// WithReconnectWait sets the delay between reconnect attempts.
func WithReconnectWait(d time.Duration) Option {
	return func(t *Transport) {
		t.reconnectWait = d
	}
}

// WithDropHandler installs the callback fired when a subscription falls
// behind and the server drops deliveries for it.
func WithDropHandler(fn bus.DropHandler) Option {
	return func(t *Transport) {
		t.onDrop = fn
	}
}

// WithPendingLimit sets the per-subscription pending message limit before
// the slow consumer policy kicks in.
func WithPendingLimit(n int) Option {
	return func(t *Transport) {
		if n > 0 {
			t.pendingMsgs = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// NewTransport connects to NATS and returns the transport.
func NewTransport(url string, opts ...Option) (*Transport, error) {
	t := &Transport{
		url:           url,
		pendingMsgs:   defaultPendingMsgs,
		timeout:       5 * time.Second,
		drainTimeout:  30 * time.Second,
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}

	natsOpts := []nats.Option{
		nats.Timeout(t.timeout),
		nats.MaxReconnects(t.maxReconnects),
		nats.ReconnectWait(t.reconnectWait),
		nats.DrainTimeout(t.drainTimeout),
		nats.ErrorHandler(t.handleAsyncError),
	}
	if t.name != "" {
		natsOpts = append(natsOpts, nats.Name(t.name))
	}

	conn, err := nats.Connect(url, natsOpts...)
	if err != nil {
		return nil, errors.WrapTransient(err, "Transport", "NewTransport", "connect")
	}
	t.conn = conn

	return t, nil
}

// handleAsyncError maps NATS async errors onto the transport's drop policy.
// Slow consumer means the server discarded deliveries for a subscription.
func (t *Transport) handleAsyncError(_ *nats.Conn, sub *nats.Subscription, err error) {
	if stderrors.Is(err, nats.ErrSlowConsumer) && sub != nil {
		t.logger.Warn("slow consumer, deliveries dropped", "subject", sub.Subject)
		if t.onDrop != nil {
			t.onDrop(sub.Subject)
		}
		return
	}
	t.logger.Error("nats async error", "error", err)
}

// Publish sends data to subject.
func (t *Transport) Publish(subject string, data []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return errors.WrapFatal(errors.ErrTransportClosed, "Transport", "Publish", "transport state check")
	}

	if err := t.conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "Transport", "Publish", fmt.Sprintf("publish to %s", subject))
	}
	return nil
}

// Subscribe binds handler to subject. The subscription's pending buffer is
// bounded; overflow invokes the drop handler via the slow consumer path.
func (t *Transport) Subscribe(subject string, handler bus.Handler) (bus.Subscription, error) {
	if handler == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("handler cannot be nil"),
			"Transport", "Subscribe", "handler validation")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, errors.WrapFatal(errors.ErrTransportClosed, "Transport", "Subscribe", "transport state check")
	}

	sub, err := t.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "Transport", "Subscribe", fmt.Sprintf("subscribe to %s", subject))
	}
	if err := sub.SetPendingLimits(t.pendingMsgs, -1); err != nil {
		_ = sub.Unsubscribe()
		return nil, errors.Wrap(err, "Transport", "Subscribe", "set pending limits")
	}

	t.subs = append(t.subs, sub)
	return &natsSubscription{sub: sub}, nil
}

// Flush performs a server round trip, guaranteeing everything published
// before the call has been accepted and all subscriptions are live.
func (t *Transport) Flush() error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return errors.WrapFatal(errors.ErrTransportClosed, "Transport", "Flush", "transport state check")
	}

	if err := t.conn.Flush(); err != nil {
		return errors.WrapTransient(err, "Transport", "Flush", "server round trip")
	}
	return nil
}

// Close drains the connection, giving in-flight deliveries up to the drain
// timeout to complete, then closes it.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.subs = nil
	t.mu.Unlock()

	drainDone := make(chan error, 1)
	go func() {
		drainDone <- t.conn.Drain()
	}()

	var drainErr error
	select {
	case err := <-drainDone:
		if err != nil {
			drainErr = errors.Wrap(err, "Transport", "Close", "drain connection")
		}
	case <-time.After(t.drainTimeout):
		drainErr = errors.WrapTransient(
			fmt.Errorf("drain timeout after %v", t.drainTimeout),
			"Transport", "Close", "drain timeout")
	}
	if drainErr != nil {
		t.logger.Error("drain failed, force closing", "error", drainErr)
	}

	t.conn.Close()
	return drainErr
}

// Conn exposes the underlying connection for integration points that need
// the raw NATS API.
func (t *Transport) Conn() *nats.Conn {
	return t.conn
}

// JetStream returns the JetStream context, creating it on first use.
func (t *Transport) JetStream() (jetstream.JetStream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, errors.WrapFatal(errors.ErrTransportClosed, "Transport", "JetStream", "transport state check")
	}
	if t.js != nil {
		return t.js, nil
	}

	js, err := jetstream.New(t.conn)
	if err != nil {
		return nil, errors.WrapTransient(err, "Transport", "JetStream", "create context")
	}
	t.js = js
	return js, nil
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) Unsubscribe() error {
	if err := s.sub.Unsubscribe(); err != nil && !stderrors.Is(err, nats.ErrBadSubscription) {
		return errors.Wrap(err, "Transport", "Unsubscribe", "remove subscription")
	}
	return nil
}

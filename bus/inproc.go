package bus

import (
	"fmt"
	"sync"

	"github.com/c360/tradeline/errors"
)

const defaultBufferSize = 256

// InProc is an in-process Transport. Every subscription owns a bounded
// delivery channel drained by its own pump goroutine, so publishing never
// blocks: when a subscription's buffer is full the delivery is dropped and
// the drop handler fires, mirroring a slow consumer on a real broker.
type InProc struct {
	mu      sync.RWMutex
	subs    map[string][]*inprocSub
	closed  bool
	bufSize int
	onDrop  DropHandler
	wg      sync.WaitGroup
}

// InProcOption configures an InProc transport.
type InProcOption func(*InProc)

// WithBufferSize sets the per-subscription delivery buffer.
func WithBufferSize(n int) InProcOption {
	return func(b *InProc) {
		if n > 0 {
			b.bufSize = n
		}
	}
}

// WithDropHandler installs the callback fired when a subscription's buffer
// overflows and a delivery is discarded.
func WithDropHandler(fn DropHandler) InProcOption {
	return func(b *InProc) {
		b.onDrop = fn
	}
}

// NewInProc creates an in-process transport.
func NewInProc(opts ...InProcOption) *InProc {
	b := &InProc{
		subs:    make(map[string][]*inprocSub),
		bufSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type delivery struct {
	subject string
	data    []byte

	// flush, when non-nil, marks a barrier. The pump closes it instead
	// of invoking the handler.
	flush chan struct{}
}

type inprocSub struct {
	bus     *InProc
	subject string
	handler Handler
	ch      chan delivery
	done    chan struct{}
	once    sync.Once
}

func (s *inprocSub) pump() {
	defer s.bus.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case d := <-s.ch:
			if d.flush != nil {
				close(d.flush)
				continue
			}
			s.handler(d.subject, d.data)
		}
	}
}

// Unsubscribe removes the subscription and stops its pump. Buffered
// deliveries are discarded.
func (s *inprocSub) Unsubscribe() error {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.done)
	})
	return nil
}

// Subscribe binds handler to subject. Deliveries begin immediately.
func (b *InProc) Subscribe(subject string, handler Handler) (Subscription, error) {
	if subject == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("subject cannot be empty"),
			"InProc", "Subscribe", "subject validation")
	}
	if handler == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("handler cannot be nil"),
			"InProc", "Subscribe", "handler validation")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.WrapFatal(errors.ErrTransportClosed, "InProc", "Subscribe", "transport state check")
	}

	sub := &inprocSub{
		bus:     b,
		subject: subject,
		handler: handler,
		ch:      make(chan delivery, b.bufSize),
		done:    make(chan struct{}),
	}
	b.subs[subject] = append(b.subs[subject], sub)

	b.wg.Add(1)
	go sub.pump()

	return sub, nil
}

// Publish delivers data to every subscription on subject. A full
// subscription buffer drops the delivery for that subscription only.
func (b *InProc) Publish(subject string, data []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return errors.WrapFatal(errors.ErrTransportClosed, "InProc", "Publish", "transport state check")
	}
	subs := b.subs[subject]
	onDrop := b.onDrop
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- delivery{subject: subject, data: data}:
		default:
			if onDrop != nil {
				onDrop(subject)
			}
		}
	}
	return nil
}

// Flush blocks until every subscription has drained the deliveries queued
// before the call.
func (b *InProc) Flush() error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return errors.WrapFatal(errors.ErrTransportClosed, "InProc", "Flush", "transport state check")
	}
	var all []*inprocSub
	for _, subs := range b.subs {
		all = append(all, subs...)
	}
	b.mu.RUnlock()

	type barrier struct {
		sub    *inprocSub
		marker chan struct{}
	}
	barriers := make([]barrier, 0, len(all))
	for _, sub := range all {
		marker := make(chan struct{})
		select {
		case sub.ch <- delivery{flush: marker}:
			barriers = append(barriers, barrier{sub: sub, marker: marker})
		case <-sub.done:
		}
	}

	for _, bar := range barriers {
		select {
		case <-bar.marker:
		case <-bar.sub.done:
		}
	}
	return nil
}

// Close unsubscribes everything and rejects further use. Buffered
// deliveries are discarded.
func (b *InProc) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*inprocSub
	for _, subs := range b.subs {
		all = append(all, subs...)
	}
	b.subs = make(map[string][]*inprocSub)
	b.mu.Unlock()

	for _, sub := range all {
		sub.once.Do(func() {
			close(sub.done)
		})
	}
	b.wg.Wait()
	return nil
}

// remove detaches a subscription from the subject index.
func (b *InProc) remove(target *inprocSub) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[target.subject]
	for i, sub := range subs {
		if sub == target {
			b.subs[target.subject] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[target.subject]) == 0 {
		delete(b.subs, target.subject)
	}
}

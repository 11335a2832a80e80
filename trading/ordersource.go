package trading

import (
	"context"
	"fmt"

	"github.com/c360/tradeline/component"
	"github.com/c360/tradeline/errors"
	"github.com/c360/tradeline/event"
)

// OrderSourceID is the identity the order source registers under.
const OrderSourceID = "order-source"

// DefaultOrderBuffer is the order source's inbox capacity.
const DefaultOrderBuffer = 256

// OrderSource closes the feedback loop: it receives the client's order
// batches and re-emits them into the feed as ORDERS events. It never gates
// the feed merge, so a topology whose algorithm places no orders still
// drains cleanly.
//
// The runtime subscribes the order endpoint on the source's behalf and
// forwards each batch through ReceiveBatch, so the subscription exists
// before the client can publish.
type OrderSource struct {
	id     string
	buffer int
	inbox  chan event.OrderBatch
}

// OrderSourceOption configures an OrderSource.
type OrderSourceOption func(*OrderSource)

// WithOrderBuffer sets the inbox capacity.
func WithOrderBuffer(n int) OrderSourceOption {
	return func(s *OrderSource) {
		if n > 0 {
			s.buffer = n
		}
	}
}

// NewOrderSource creates the feedback order source.
func NewOrderSource(opts ...OrderSourceOption) *OrderSource {
	s := &OrderSource{
		id:     OrderSourceID,
		buffer: DefaultOrderBuffer,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.inbox = make(chan event.OrderBatch, s.buffer)
	return s
}

// ID returns the source's identity.
func (s *OrderSource) ID() string { return s.id }

// ReceiveBatch queues one order batch for re-emission. It never blocks; a
// full inbox is an error the runtime treats as a fault.
func (s *OrderSource) ReceiveBatch(batch event.OrderBatch) error {
	if err := batch.Validate(); err != nil {
		return errors.Wrap(err, "OrderSource", "ReceiveBatch", "batch validation")
	}
	select {
	case s.inbox <- batch:
		return nil
	default:
		return errors.WrapTransient(
			fmt.Errorf("order inbox full (capacity %d)", cap(s.inbox)),
			"OrderSource", "ReceiveBatch", "enqueue")
	}
}

// Stream re-emits queued batches as ORDERS events until the close batch
// arrives or ctx ends.
func (s *OrderSource) Stream(ctx context.Context, emit component.EmitFunc) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch := <-s.inbox:
			if batch.Close {
				return nil
			}
			if err := emit(event.NewOrders(s.id, batch.Timestamp, batch.Orders)); err != nil {
				return err
			}
		}
	}
}

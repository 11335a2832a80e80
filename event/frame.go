package event

import (
	"fmt"
	"time"

	"github.com/c360/tradeline/errors"
)

// Frame is one fully-assembled tick of the pipeline: the feed event plus the
// output of every transform that processed it, keyed by transform identity.
// The join stage emits exactly one frame per feed event, in feed order.
type Frame struct {
	// Event is the feed event this frame was assembled around.
	Event Event `json:"event"`

	// Derived holds transform output keyed by transform ID. A transform
	// that declined the event has no entry.
	Derived map[string]Event `json:"derived,omitempty"`
}

// Derive returns the derived event produced by the named transform and
// whether one exists for this frame.
func (f Frame) Derive(transformID string) (Event, bool) {
	ev, ok := f.Derived[transformID]
	return ev, ok
}

// OrderBatch is the client's per-frame order submission. The close batch
// (Close true, no orders) tells the order source that no further orders will
// arrive.
type OrderBatch struct {
	// Timestamp is the simulation time of the frame the orders were
	// placed against.
	Timestamp time.Time `json:"timestamp"`

	// Orders are the orders placed during one frame callback.
	Orders []Order `json:"orders,omitempty"`

	// Close marks the end of the order stream.
	Close bool `json:"close,omitempty"`
}

// Validate checks the structural invariants of an order batch.
func (b OrderBatch) Validate() error {
	if b.Close {
		if len(b.Orders) > 0 {
			return errors.WrapInvalid(
				fmt.Errorf("close batch carries %d orders", len(b.Orders)),
				"OrderBatch", "Validate", "close batch check")
		}
		return nil
	}
	if len(b.Orders) == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("order batch is empty"),
			"OrderBatch", "Validate", "order count check")
	}
	if b.Timestamp.IsZero() {
		return errors.WrapInvalid(
			fmt.Errorf("order batch has zero timestamp"),
			"OrderBatch", "Validate", "timestamp check")
	}
	return nil
}

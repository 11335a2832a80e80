package component

import (
	"context"

	"github.com/c360/tradeline/event"
)

// Component is the base contract for everything the pipeline runs. Identity
// must be unique across a topology regardless of kind; the registry enforces
// this.
type Component interface {
	// ID returns the component's identity.
	ID() string
}

// EmitFunc accepts one event from a source. It blocks while downstream
// applies backpressure and fails once the run is over.
type EmitFunc func(event.Event) error

// Source produces the pipeline's input events.
type Source interface {
	Component

	// Stream emits the source's events in non-decreasing timestamp
	// order, returning nil at end of data. Stream must return promptly
	// when ctx is cancelled or emit fails.
	Stream(ctx context.Context, emit EmitFunc) error
}

// Transform derives a new event from each feed event.
type Transform interface {
	Component

	// Apply processes one feed event. It returns the derived event and
	// true, or false to decline the event. Derived events keep the input
	// event's ID so the join stage can attach them to the right frame.
	Apply(ev event.Event) (event.Event, bool, error)
}

// BatchReceiver is an optional Source capability. A source implementing it
// consumes the client's order batches: the runtime subscribes the order
// endpoint on the source's behalf and forwards each decoded batch, so the
// subscription exists before any order can be published. ReceiveBatch must
// not block; a full source is an error, not backpressure.
type BatchReceiver interface {
	ReceiveBatch(batch event.OrderBatch) error
}

// FrameCallback receives each assembled frame in feed order.
type FrameCallback func(event.Frame) error

// OrderFunc submits one order during a frame callback.
type OrderFunc func(event.Order) error

// Client is the consumer end of the pipeline. The runtime drives it with
// HandleFrame per assembled frame and Finish when the feed is exhausted;
// the topology wires the algorithm in through AddEventCallback and the
// order path through Order.
type Client interface {
	Component

	// AddEventCallback registers a callback invoked for every frame.
	AddEventCallback(fn FrameCallback)

	// Order submits an order for the frame currently being handled.
	Order(o event.Order) error

	// HandleFrame processes one assembled frame.
	HandleFrame(frame event.Frame) error

	// Finish flushes any pending work and ends the client's order
	// stream. Called exactly once, after the last frame.
	Finish() error
}

package bus

// Handler processes one delivery. Handlers run on the subscription's pump
// goroutine: deliveries to a single subscription are serialized and in
// publish order, and a slow handler backs up only its own subscription.
type Handler func(subject string, data []byte)

// Subscription is a live binding of a handler to a subject.
type Subscription interface {
	// Unsubscribe stops delivery. Pending deliveries are discarded.
	Unsubscribe() error
}

// Transport moves opaque payloads between pipeline stages. Implementations
// must deliver each publisher's messages to each subscription in publish
// order; delivery across subscriptions carries no ordering guarantee.
//
// Transports are best-effort: a subscription that cannot keep up has
// deliveries dropped, reported through the transport's drop handler. Stages
// that cannot tolerate loss must treat a drop as a fault.
type Transport interface {
	// Publish sends data to all current subscriptions on subject.
	Publish(subject string, data []byte) error

	// Subscribe binds handler to subject.
	Subscribe(subject string, handler Handler) (Subscription, error)

	// Flush blocks until the transport has accepted everything published
	// before the call: the in-process transport hands deliveries to their
	// handlers, a brokered transport waits for the server round trip.
	Flush() error

	// Close tears down all subscriptions and rejects further use.
	Close() error
}

// DropHandler is invoked when a delivery is discarded because a
// subscription's buffer is full.
type DropHandler func(subject string)

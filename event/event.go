package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/c360/tradeline/errors"
)

// Type identifies the kind of payload an event carries.
type Type string

// Event types flowing through the pipeline.
const (
	// TypeTrade is a market trade produced by a data source.
	TypeTrade Type = "TRADE"

	// TypeOrders carries algorithm orders re-emitted into the feed.
	TypeOrders Type = "ORDERS"

	// TypeTransaction carries simulated fills produced by the
	// transaction simulator.
	TypeTransaction Type = "TRANSACTION"

	// TypeDerived marks transform output attached to a frame.
	TypeDerived Type = "DERIVED"
)

// IsValid reports whether t is a known event type.
func (t Type) IsValid() bool {
	switch t {
	case TypeTrade, TypeOrders, TypeTransaction, TypeDerived:
		return true
	}
	return false
}

// Event is the unit of data flow through the pipeline. Sources emit events,
// the feed orders them, transforms derive from them, and the client consumes
// them assembled into frames.
//
// Events are plain values. They carry no routing or transport state, so the
// same event can cross the in-process bus or NATS unchanged.
type Event struct {
	// ID uniquely identifies this event. Transforms echo the ID of the
	// event they derived from so the join stage can assemble frames.
	ID string `json:"id"`

	// Source is the identity of the component that emitted the event.
	Source string `json:"source"`

	// Type tags the payload carried by this event.
	Type Type `json:"type"`

	// Timestamp is simulation time. Sources must emit events with
	// non-decreasing timestamps.
	Timestamp time.Time `json:"timestamp"`

	// Instrument names the traded instrument, when applicable.
	Instrument string `json:"instrument,omitempty"`

	// Price is the trade or mark price. Zero for non-priced events.
	Price decimal.Decimal `json:"price"`

	// Volume is the traded quantity for TRADE events.
	Volume int64 `json:"volume,omitempty"`

	// Orders carries the order payload of ORDERS events.
	Orders []Order `json:"orders,omitempty"`

	// Transactions carries the fills of TRANSACTION events.
	Transactions []Transaction `json:"transactions,omitempty"`
}

// NewTrade creates a TRADE event with a fresh ID.
func NewTrade(source, instrument string, price decimal.Decimal, volume int64, ts time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Source:     source,
		Type:       TypeTrade,
		Timestamp:  ts,
		Instrument: instrument,
		Price:      price,
		Volume:     volume,
	}
}

// NewOrders creates an ORDERS event carrying a batch of algorithm orders.
func NewOrders(source string, ts time.Time, orders []Order) Event {
	return Event{
		ID:        uuid.NewString(),
		Source:    source,
		Type:      TypeOrders,
		Timestamp: ts,
		Orders:    orders,
	}
}

// Validate checks the structural invariants of an event.
func (e Event) Validate() error {
	if e.ID == "" {
		return errors.WrapInvalid(
			fmt.Errorf("event has no ID"),
			"Event", "Validate", "identity check")
	}
	if e.Source == "" {
		return errors.WrapInvalid(
			fmt.Errorf("event %s has no source", e.ID),
			"Event", "Validate", "source check")
	}
	if !e.Type.IsValid() {
		return errors.WrapInvalid(
			fmt.Errorf("event %s has unknown type %q", e.ID, e.Type),
			"Event", "Validate", "type check")
	}
	if e.Timestamp.IsZero() {
		return errors.WrapInvalid(
			fmt.Errorf("event %s has zero timestamp", e.ID),
			"Event", "Validate", "timestamp check")
	}
	return nil
}

// Order is a directed instruction from the algorithm. Amount is signed:
// positive buys, negative sells.
type Order struct {
	ID         string    `json:"id"`
	Instrument string    `json:"instrument"`
	Amount     int64     `json:"amount"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewOrder creates an order with a fresh ID.
func NewOrder(instrument string, amount int64, ts time.Time) Order {
	return Order{
		ID:         uuid.NewString(),
		Instrument: instrument,
		Amount:     amount,
		Timestamp:  ts,
	}
}

// Transaction is a simulated fill against an open order.
type Transaction struct {
	OrderID    string          `json:"order_id"`
	Instrument string          `json:"instrument"`
	Amount     int64           `json:"amount"`
	Price      decimal.Decimal `json:"price"`
	Commission decimal.Decimal `json:"commission"`
	Timestamp  time.Time       `json:"timestamp"`
}

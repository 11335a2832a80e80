package trading

import (
	"context"
	"testing"
	"time"

	"github.com/c360/tradeline/errors"
	"github.com/c360/tradeline/event"
)

func orderBatch(offset int, orders ...event.Order) event.OrderBatch {
	return event.OrderBatch{
		Timestamp: clientBase.Add(time.Duration(offset) * time.Minute),
		Orders:    orders,
	}
}

func TestOrderSourceRoundTrip(t *testing.T) {
	s := NewOrderSource()

	first := orderBatch(0, event.NewOrder("AAPL", 100, clientBase))
	second := orderBatch(1, event.NewOrder("MSFT", -50, clientBase.Add(time.Minute)))
	if err := s.ReceiveBatch(first); err != nil {
		t.Fatalf("ReceiveBatch failed: %v", err)
	}
	if err := s.ReceiveBatch(second); err != nil {
		t.Fatalf("ReceiveBatch failed: %v", err)
	}
	if err := s.ReceiveBatch(event.OrderBatch{Close: true}); err != nil {
		t.Fatalf("close batch failed: %v", err)
	}

	var emitted []event.Event
	err := s.Stream(context.Background(), func(ev event.Event) error {
		emitted = append(emitted, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	if len(emitted) != 2 {
		t.Fatalf("got %d events, want 2", len(emitted))
	}
	for i := 0; i < len(emitted); i++ {
		ev := emitted[i]
		if ev.Type != event.TypeOrders {
			t.Errorf("event %d type = %s, want ORDERS", i, ev.Type)
		}
		if ev.Source != OrderSourceID {
			t.Errorf("event %d source = %s, want %s", i, ev.Source, OrderSourceID)
		}
		if ev.ID == "" {
			t.Errorf("event %d has no ID", i)
		}
	}
	if !emitted[0].Timestamp.Equal(first.Timestamp) {
		t.Errorf("first event timestamp = %s, want batch timestamp", emitted[0].Timestamp)
	}
	if len(emitted[0].Orders) != 1 || emitted[0].Orders[0].Instrument != "AAPL" {
		t.Errorf("first event orders = %+v, want the AAPL order", emitted[0].Orders)
	}
}

func TestOrderSourceRejectsInvalidBatch(t *testing.T) {
	s := NewOrderSource()

	if err := s.ReceiveBatch(event.OrderBatch{Timestamp: clientBase}); !errors.IsInvalid(err) {
		t.Errorf("empty batch: got %v, want invalid error", err)
	}
	bad := event.OrderBatch{Close: true, Orders: []event.Order{event.NewOrder("AAPL", 1, clientBase)}}
	if err := s.ReceiveBatch(bad); !errors.IsInvalid(err) {
		t.Errorf("close batch with orders: got %v, want invalid error", err)
	}
}

func TestOrderSourceFullInboxErrors(t *testing.T) {
	s := NewOrderSource(WithOrderBuffer(1))

	if err := s.ReceiveBatch(orderBatch(0, event.NewOrder("AAPL", 1, clientBase))); err != nil {
		t.Fatalf("first batch failed: %v", err)
	}
	err := s.ReceiveBatch(orderBatch(1, event.NewOrder("AAPL", 2, clientBase)))
	if !errors.IsTransient(err) {
		t.Fatalf("second batch: got %v, want transient inbox-full error", err)
	}
}

func TestOrderSourceContextCancel(t *testing.T) {
	s := NewOrderSource()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- s.Stream(ctx, func(event.Event) error { return nil })
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Stream returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stream did not return after cancel")
	}
}

func TestOrderSourceEmitErrorStops(t *testing.T) {
	s := NewOrderSource()
	if err := s.ReceiveBatch(orderBatch(0, event.NewOrder("AAPL", 1, clientBase))); err != nil {
		t.Fatalf("ReceiveBatch failed: %v", err)
	}

	want := errors.New("run is over")
	err := s.Stream(context.Background(), func(event.Event) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("Stream returned %v, want emit error", err)
	}
}

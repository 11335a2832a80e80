package sources

import (
	"context"
	"fmt"

	"github.com/c360/tradeline/component"
	"github.com/c360/tradeline/errors"
	"github.com/c360/tradeline/event"
)

// TradeSource replays a fixed slice of events. Construct one directly from
// recorded events or generate one with NewRandomWalk. The source is
// deterministic: the same events in the same order, every run.
type TradeSource struct {
	id     string
	events []event.Event
}

// NewTradeSource creates a source that emits the given events in slice
// order. Events must already be sorted by non-decreasing timestamp; the
// pipeline trips on regressions, so the constructor rejects them early.
func NewTradeSource(id string, events []event.Event) (*TradeSource, error) {
	if id == "" {
		return nil, errors.WrapInvalid(
			errors.ErrInvalidComponent,
			"TradeSource", "NewTradeSource", "identity check")
	}
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Before(events[i-1].Timestamp) {
			return nil, errors.WrapInvalid(
				fmt.Errorf("event %d timestamp %s regresses before %s",
					i, events[i].Timestamp, events[i-1].Timestamp),
				"TradeSource", "NewTradeSource", "order check")
		}
	}
	return &TradeSource{id: id, events: events}, nil
}

// ID returns the source's identity.
func (s *TradeSource) ID() string { return s.id }

// Len returns how many events the source will emit.
func (s *TradeSource) Len() int { return len(s.events) }

// Stream emits every event in order, stopping early if ctx ends or emit
// fails.
func (s *TradeSource) Stream(ctx context.Context, emit component.EmitFunc) error {
	for i := range s.events {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		ev := s.events[i]
		ev.Source = s.id
		if err := emit(ev); err != nil {
			return err
		}
	}
	return nil
}

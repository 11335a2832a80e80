package main

import (
	"log/slog"

	"github.com/c360/tradeline/component"
	"github.com/c360/tradeline/event"
)

// orderClip is the demo strategy's per-signal order size.
const orderClip = 100

// crossover is the demo decision routine: per instrument it watches the
// trade price against the moving average, buys one clip when the price
// crosses above, and flattens when it crosses below. The first observation
// of an instrument only records the side, so the run never opens a
// position on the opening print.
type crossover struct {
	id        string
	transform string
	clip      int64
	order     component.OrderFunc

	above map[string]bool
	held  map[string]int64
}

func newCrossover(id, transform string, clip int64) *crossover {
	return &crossover{
		id:        id,
		transform: transform,
		clip:      clip,
		above:     make(map[string]bool),
		held:      make(map[string]int64),
	}
}

// ID returns the algorithm's identity.
func (a *crossover) ID() string { return a.id }

// SetOrderFunc wires the order path. The topology calls it once, before
// the run starts.
func (a *crossover) SetOrderFunc(fn component.OrderFunc) { a.order = fn }

// HandleFrame reacts to one frame. The client drives it from a single
// goroutine, so the per-instrument state needs no locking.
func (a *crossover) HandleFrame(frame event.Frame) error {
	if frame.Event.Type != event.TypeTrade {
		return nil
	}
	average, ok := frame.Derive(a.transform)
	if !ok {
		return nil
	}

	instrument := frame.Event.Instrument
	above := frame.Event.Price.GreaterThan(average.Price)
	prev, seen := a.above[instrument]
	a.above[instrument] = above
	if !seen || prev == above {
		return nil
	}

	if above {
		if err := a.order(event.Order{Instrument: instrument, Amount: a.clip}); err != nil {
			return err
		}
		a.held[instrument] += a.clip
		slog.Debug("Crossed above average, buying",
			"instrument", instrument, "amount", a.clip, "price", frame.Event.Price)
		return nil
	}

	held := a.held[instrument]
	if held == 0 {
		return nil
	}
	if err := a.order(event.Order{Instrument: instrument, Amount: -held}); err != nil {
		return err
	}
	a.held[instrument] = 0
	slog.Debug("Crossed below average, flattening",
		"instrument", instrument, "amount", held, "price", frame.Event.Price)
	return nil
}

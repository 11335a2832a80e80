package transforms

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/c360/tradeline/errors"
	"github.com/c360/tradeline/event"
)

// MovingAverage derives the windowed mean of trade prices per instrument.
// It warms up immediately: before the window fills, the mean covers
// whatever prices have arrived. Non-trade events are declined.
//
// The runtime drives Apply from a single goroutine; the window state needs
// no locking.
type MovingAverage struct {
	id     string
	window int
	prices map[string][]decimal.Decimal
}

// NewMovingAverage creates a moving average over the given window size.
func NewMovingAverage(id string, window int) (*MovingAverage, error) {
	if id == "" {
		return nil, errors.WrapInvalid(
			errors.ErrInvalidComponent,
			"MovingAverage", "NewMovingAverage", "identity check")
	}
	if window <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("window %d is not positive", window),
			"MovingAverage", "NewMovingAverage", "window check")
	}
	return &MovingAverage{
		id:     id,
		window: window,
		prices: make(map[string][]decimal.Decimal),
	}, nil
}

// ID returns the transform's identity.
func (m *MovingAverage) ID() string { return m.id }

// Apply folds a trade price into the instrument's window and derives the
// current mean.
func (m *MovingAverage) Apply(ev event.Event) (event.Event, bool, error) {
	if ev.Type != event.TypeTrade || ev.Instrument == "" {
		return event.Event{}, false, nil
	}

	window := append(m.prices[ev.Instrument], ev.Price)
	if len(window) > m.window {
		window = window[1:]
	}
	m.prices[ev.Instrument] = window

	sum := decimal.Zero
	for i := range window {
		sum = sum.Add(window[i])
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(window))))

	derived := event.Event{
		ID:         ev.ID,
		Source:     m.id,
		Type:       event.TypeDerived,
		Timestamp:  ev.Timestamp,
		Instrument: ev.Instrument,
		Price:      mean,
	}
	return derived, true, nil
}

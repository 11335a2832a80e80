package sources

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/c360/tradeline/errors"
	"github.com/c360/tradeline/event"
)

// minPrice is the walk's price floor. A random walk never quotes at or
// below zero.
var minPrice = decimal.RequireFromString("0.01")

// WalkConfig describes a seeded random-walk trade series.
type WalkConfig struct {
	// Instruments to generate. Every step emits one trade per
	// instrument, all stamped with the step's timestamp.
	Instruments []string

	// Start and End bound the series: the first step is at Start, and
	// steps continue while strictly before End.
	Start time.Time
	End   time.Time

	// Interval is the simulated time between steps.
	Interval time.Duration

	// StartPrice is every instrument's opening price.
	StartPrice decimal.Decimal

	// Volatility caps the absolute per-step price move.
	Volatility decimal.Decimal

	// Volume is stamped on every trade.
	Volume int64

	// Seed makes the walk reproducible.
	Seed int64
}

// Validate checks the walk is generable.
func (c WalkConfig) Validate() error {
	if len(c.Instruments) == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("no instruments"),
			"WalkConfig", "Validate", "universe check")
	}
	if c.Start.IsZero() || c.End.IsZero() || !c.End.After(c.Start) {
		return errors.WrapInvalid(
			fmt.Errorf("window [%s, %s) is empty", c.Start, c.End),
			"WalkConfig", "Validate", "window check")
	}
	if c.Interval <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("interval %s is not positive", c.Interval),
			"WalkConfig", "Validate", "interval check")
	}
	if c.StartPrice.Sign() <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("start price %s is not positive", c.StartPrice),
			"WalkConfig", "Validate", "price check")
	}
	if c.Volatility.Sign() < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("volatility %s is negative", c.Volatility),
			"WalkConfig", "Validate", "volatility check")
	}
	if c.Volume <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("volume %d is not positive", c.Volume),
			"WalkConfig", "Validate", "volume check")
	}
	return nil
}

// NewRandomWalk generates the full trade series up front and wraps it in a
// TradeSource, so the walk costs nothing on the hot path and two sources
// with the same config emit identical events.
func NewRandomWalk(id string, cfg WalkConfig) (*TradeSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	prices := make(map[string]decimal.Decimal, len(cfg.Instruments))
	for _, instrument := range cfg.Instruments {
		prices[instrument] = cfg.StartPrice
	}

	var events []event.Event
	for ts := cfg.Start; ts.Before(cfg.End); ts = ts.Add(cfg.Interval) {
		for _, instrument := range cfg.Instruments {
			move := decimal.NewFromFloat(rng.Float64()*2 - 1).
				Mul(cfg.Volatility).
				Round(4)
			price := prices[instrument].Add(move)
			if price.LessThan(minPrice) {
				price = minPrice
			}
			prices[instrument] = price
			events = append(events, event.NewTrade(id, instrument, price, cfg.Volume, ts))
		}
	}

	return NewTradeSource(id, events)
}

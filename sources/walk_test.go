package sources

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/c360/tradeline/event"
)

func walkConfig() WalkConfig {
	return WalkConfig{
		Instruments: []string{"AAPL", "MSFT"},
		Start:       sourceBase,
		End:         sourceBase.Add(10 * time.Minute),
		Interval:    time.Minute,
		StartPrice:  decimal.NewFromInt(100),
		Volatility:  decimal.RequireFromString("0.5"),
		Volume:      1000,
		Seed:        42,
	}
}

func TestRandomWalkShape(t *testing.T) {
	s, err := NewRandomWalk("walk", walkConfig())
	if err != nil {
		t.Fatalf("NewRandomWalk failed: %v", err)
	}

	events := collect(t, s)
	// 10 steps, 2 instruments each.
	if len(events) != 20 {
		t.Fatalf("got %d events, want 20", len(events))
	}

	last := time.Time{}
	for i := 0; i < len(events); i++ {
		ev := events[i]
		if ev.Type != event.TypeTrade {
			t.Errorf("event %d type = %s, want TRADE", i, ev.Type)
		}
		if ev.Source != "walk" {
			t.Errorf("event %d source = %s, want walk", i, ev.Source)
		}
		if ev.Instrument != "AAPL" && ev.Instrument != "MSFT" {
			t.Errorf("event %d instrument = %s", i, ev.Instrument)
		}
		if ev.Volume != 1000 {
			t.Errorf("event %d volume = %d, want 1000", i, ev.Volume)
		}
		if ev.Price.Sign() <= 0 {
			t.Errorf("event %d price = %s, want positive", i, ev.Price)
		}
		if ev.Timestamp.Before(last) {
			t.Errorf("event %d timestamp %s regresses before %s", i, ev.Timestamp, last)
		}
		if ev.Timestamp.Before(sourceBase) || !ev.Timestamp.Before(sourceBase.Add(10*time.Minute)) {
			t.Errorf("event %d timestamp %s outside window", i, ev.Timestamp)
		}
		last = ev.Timestamp
	}
}

func TestRandomWalkDeterministic(t *testing.T) {
	a, err := NewRandomWalk("walk", walkConfig())
	if err != nil {
		t.Fatalf("NewRandomWalk failed: %v", err)
	}
	b, err := NewRandomWalk("walk", walkConfig())
	if err != nil {
		t.Fatalf("NewRandomWalk failed: %v", err)
	}

	ae, be := collect(t, a), collect(t, b)
	if len(ae) != len(be) {
		t.Fatalf("lengths differ: %d vs %d", len(ae), len(be))
	}
	for i := 0; i < len(ae); i++ {
		if !ae[i].Price.Equal(be[i].Price) {
			t.Errorf("event %d prices differ: %s vs %s", i, ae[i].Price, be[i].Price)
		}
		if !ae[i].Timestamp.Equal(be[i].Timestamp) {
			t.Errorf("event %d timestamps differ", i)
		}
	}

	other := walkConfig()
	other.Seed = 7
	c, err := NewRandomWalk("walk", other)
	if err != nil {
		t.Fatalf("NewRandomWalk failed: %v", err)
	}
	ce := collect(t, c)
	same := true
	for i := 0; i < len(ae) && i < len(ce); i++ {
		if !ae[i].Price.Equal(ce[i].Price) {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical walks")
	}
}

func TestRandomWalkPriceFloor(t *testing.T) {
	cfg := walkConfig()
	cfg.Instruments = []string{"PENNY"}
	cfg.StartPrice = decimal.RequireFromString("0.02")
	cfg.Volatility = decimal.NewFromInt(5)
	cfg.End = cfg.Start.Add(100 * time.Minute)

	s, err := NewRandomWalk("walk", cfg)
	if err != nil {
		t.Fatalf("NewRandomWalk failed: %v", err)
	}
	events := collect(t, s)
	for i := 0; i < len(events); i++ {
		if events[i].Price.LessThan(minPrice) {
			t.Fatalf("event %d price %s below floor", i, events[i].Price)
		}
	}
}

func TestWalkConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*WalkConfig)
		wantErr bool
	}{
		{"valid", func(*WalkConfig) {}, false},
		{"no instruments", func(c *WalkConfig) { c.Instruments = nil }, true},
		{"zero start", func(c *WalkConfig) { c.Start = time.Time{} }, true},
		{"end before start", func(c *WalkConfig) { c.End = c.Start.Add(-time.Minute) }, true},
		{"zero interval", func(c *WalkConfig) { c.Interval = 0 }, true},
		{"zero start price", func(c *WalkConfig) { c.StartPrice = decimal.Zero }, true},
		{"negative volatility", func(c *WalkConfig) { c.Volatility = decimal.NewFromInt(-1) }, true},
		{"zero volume", func(c *WalkConfig) { c.Volume = 0 }, true},
		{"zero volatility ok", func(c *WalkConfig) { c.Volatility = decimal.Zero }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := walkConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

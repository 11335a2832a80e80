package trading

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/c360/tradeline/errors"
	"github.com/c360/tradeline/event"
)

// TransactionSimID is the identity the transaction simulator registers
// under.
const TransactionSimID = "transaction-sim"

// TxnConfig tunes the fill model.
type TxnConfig struct {
	// VolumeShare caps how much of a trade's volume fills open orders,
	// in (0, 1]. One trade of volume V fills at most VolumeShare*V
	// shares across all open orders for that instrument.
	VolumeShare decimal.Decimal `json:"volume_share" yaml:"volume_share"`

	// CommissionPerShare is charged on every filled share.
	CommissionPerShare decimal.Decimal `json:"commission_per_share" yaml:"commission_per_share"`
}

// DefaultTxnConfig returns the standard fill model: a quarter of each
// trade's volume, three cents a share.
func DefaultTxnConfig() TxnConfig {
	return TxnConfig{
		VolumeShare:        decimal.RequireFromString("0.25"),
		CommissionPerShare: decimal.RequireFromString("0.03"),
	}
}

// Validate checks the fill model is usable.
func (c TxnConfig) Validate() error {
	if c.VolumeShare.Sign() <= 0 || c.VolumeShare.GreaterThan(decimal.NewFromInt(1)) {
		return errors.WrapInvalid(
			fmt.Errorf("volume share %s outside (0, 1]", c.VolumeShare),
			"TxnConfig", "Validate", "volume share check")
	}
	if c.CommissionPerShare.Sign() < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("commission per share %s is negative", c.CommissionPerShare),
			"TxnConfig", "Validate", "commission check")
	}
	return nil
}

// openOrder is the unfilled remainder of one algorithm order. Remaining
// keeps the order's sign.
type openOrder struct {
	id        string
	remaining int64
}

// TransactionSimulator fills open orders against the trades that follow
// them. ORDERS events open orders; each TRADE event fills the instrument's
// open orders FIFO at the trade price, capped by the configured volume
// share. Partially filled orders stay open for later trades.
//
// The derived TRANSACTION event keeps the feed event's ID so the join
// stage attaches the fills to the trade's own frame.
//
// The runtime drives Apply from a single goroutine; the simulator keeps
// its order book without locking.
type TransactionSimulator struct {
	id   string
	cfg  TxnConfig
	open map[string][]*openOrder
}

// NewTransactionSimulator creates a fill simulator with the given model.
func NewTransactionSimulator(cfg TxnConfig) (*TransactionSimulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &TransactionSimulator{
		id:   TransactionSimID,
		cfg:  cfg,
		open: make(map[string][]*openOrder),
	}, nil
}

// ID returns the simulator's identity.
func (s *TransactionSimulator) ID() string { return s.id }

// Apply opens orders from ORDERS events and fills them on TRADE events.
// Events that open or fill nothing are declined.
func (s *TransactionSimulator) Apply(ev event.Event) (event.Event, bool, error) {
	switch ev.Type {
	case event.TypeOrders:
		for _, o := range ev.Orders {
			if o.Amount == 0 {
				continue
			}
			s.open[o.Instrument] = append(s.open[o.Instrument], &openOrder{
				id:        o.ID,
				remaining: o.Amount,
			})
		}
		return event.Event{}, false, nil
	case event.TypeTrade:
		return s.fill(ev)
	default:
		return event.Event{}, false, nil
	}
}

// fill consumes the trade's fillable volume across the instrument's open
// orders, oldest first.
func (s *TransactionSimulator) fill(ev event.Event) (event.Event, bool, error) {
	queue := s.open[ev.Instrument]
	if len(queue) == 0 {
		return event.Event{}, false, nil
	}
	capacity := s.cfg.VolumeShare.Mul(decimal.NewFromInt(ev.Volume)).IntPart()
	if capacity <= 0 {
		return event.Event{}, false, nil
	}

	var fills []event.Transaction
	for len(queue) > 0 && capacity > 0 {
		o := queue[0]
		take := minInt64(absInt64(o.remaining), capacity)
		amount := take
		if o.remaining < 0 {
			amount = -take
		}
		fills = append(fills, event.Transaction{
			OrderID:    o.id,
			Instrument: ev.Instrument,
			Amount:     amount,
			Price:      ev.Price,
			Commission: s.cfg.CommissionPerShare.Mul(decimal.NewFromInt(take)),
			Timestamp:  ev.Timestamp,
		})
		o.remaining -= amount
		capacity -= take
		if o.remaining == 0 {
			queue = queue[1:]
		}
	}
	if len(queue) == 0 {
		delete(s.open, ev.Instrument)
	} else {
		s.open[ev.Instrument] = queue
	}

	derived := event.Event{
		ID:           ev.ID,
		Source:       s.id,
		Type:         event.TypeTransaction,
		Timestamp:    ev.Timestamp,
		Instrument:   ev.Instrument,
		Price:        ev.Price,
		Transactions: fills,
	}
	return derived, true, nil
}

// OpenOrders returns how many orders remain open for the instrument.
func (s *TransactionSimulator) OpenOrders(instrument string) int {
	return len(s.open[instrument])
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

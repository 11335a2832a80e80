package perf

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/c360/tradeline/event"
)

// Position is one open holding. Amount is signed: positive long, negative
// short. CostBasis is the volume-weighted entry price per share of the open
// amount; LastPrice is the most recent mark.
type Position struct {
	Instrument string          `json:"instrument"`
	Amount     int64           `json:"amount"`
	CostBasis  decimal.Decimal `json:"cost_basis"`
	LastPrice  decimal.Decimal `json:"last_price"`
}

// MarketValue returns the position's value at its last mark.
func (p Position) MarketValue() decimal.Decimal {
	return p.LastPrice.Mul(decimal.NewFromInt(p.Amount))
}

// Summary is the cumulative performance of a run.
type Summary struct {
	StartingCash decimal.Decimal `json:"starting_cash"`
	EndingCash   decimal.Decimal `json:"ending_cash"`
	MarketValue  decimal.Decimal `json:"market_value"`
	PNL          decimal.Decimal `json:"pnl"`
	Realized     decimal.Decimal `json:"realized"`
	Returns      decimal.Decimal `json:"returns"`
	Transactions int             `json:"transactions"`
	Commission   decimal.Decimal `json:"commission"`
}

// Tracker accounts cash, positions, and PNL over a stream of fills and
// price marks. All money math is decimal; nothing here touches floats. It
// serializes internally, so the topology's performance accessors are safe
// while the pipeline is writing.
type Tracker struct {
	mu           sync.RWMutex
	startingCash decimal.Decimal
	cash         decimal.Decimal
	realized     decimal.Decimal
	commission   decimal.Decimal
	transactions int
	positions    map[string]*Position
}

// NewTracker creates a tracker with the given starting cash.
func NewTracker(startingCash decimal.Decimal) *Tracker {
	return &Tracker{
		startingCash: startingCash,
		cash:         startingCash,
		positions:    make(map[string]*Position),
	}
}

// ProcessTransaction applies one fill: cash moves by amount times price
// plus commission, and the position's amount, cost basis, and realized PNL
// update. Fills against an open position realize PNL against its cost
// basis; fills extending a position re-weight the basis.
func (t *Tracker) ProcessTransaction(txn event.Transaction) {
	if txn.Amount == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	amount := decimal.NewFromInt(txn.Amount)
	t.cash = t.cash.Sub(txn.Price.Mul(amount)).Sub(txn.Commission)
	t.commission = t.commission.Add(txn.Commission)
	t.transactions++

	pos, ok := t.positions[txn.Instrument]
	if !ok {
		pos = &Position{Instrument: txn.Instrument}
		t.positions[txn.Instrument] = pos
	}
	t.applyFill(pos, txn.Amount, txn.Price)
	pos.LastPrice = txn.Price

	if pos.Amount == 0 {
		delete(t.positions, txn.Instrument)
	}
}

// applyFill folds one signed fill into a position.
func (t *Tracker) applyFill(pos *Position, amount int64, price decimal.Decimal) {
	if pos.Amount == 0 || sameSign(pos.Amount, amount) {
		// Extending: volume-weight the cost basis.
		oldAmt := decimal.NewFromInt(pos.Amount)
		newAmt := decimal.NewFromInt(pos.Amount + amount)
		fillAmt := decimal.NewFromInt(amount)
		pos.CostBasis = pos.CostBasis.Mul(oldAmt).Add(price.Mul(fillAmt)).Div(newAmt)
		pos.Amount += amount
		return
	}

	// Reducing or flipping: realize PNL on the closed shares.
	closed := min64(abs64(amount), abs64(pos.Amount))
	direction := decimal.NewFromInt(sign64(pos.Amount))
	gain := price.Sub(pos.CostBasis).Mul(direction).Mul(decimal.NewFromInt(closed))
	t.realized = t.realized.Add(gain)

	remainder := pos.Amount + amount
	if remainder == 0 || sameSign(pos.Amount, remainder) {
		// Partial close: the rest keeps its basis.
		pos.Amount = remainder
		if remainder == 0 {
			pos.CostBasis = decimal.Zero
		}
		return
	}

	// Flipped through zero: the surplus opens at the fill price.
	pos.Amount = remainder
	pos.CostBasis = price
}

// ObservePrice marks an open position to market. Instruments without an
// open position are ignored.
func (t *Tracker) ObservePrice(instrument string, price decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pos, ok := t.positions[instrument]; ok {
		pos.LastPrice = price
	}
}

// Cumulative returns the run's performance so far.
func (t *Tracker) Cumulative() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	marketValue := decimal.Zero
	for _, pos := range t.positions {
		marketValue = marketValue.Add(pos.MarketValue())
	}

	pnl := t.cash.Add(marketValue).Sub(t.startingCash)
	returns := decimal.Zero
	if !t.startingCash.IsZero() {
		returns = pnl.Div(t.startingCash)
	}

	return Summary{
		StartingCash: t.startingCash,
		EndingCash:   t.cash,
		MarketValue:  marketValue,
		PNL:          pnl,
		Realized:     t.realized,
		Returns:      returns,
		Transactions: t.transactions,
		Commission:   t.commission,
	}
}

// Positions returns the open positions sorted by instrument.
func (t *Tracker) Positions() []Position {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Position, 0, len(t.positions))
	for _, pos := range t.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instrument < out[j].Instrument })
	return out
}

func sameSign(a, b int64) bool {
	return (a > 0) == (b > 0)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func sign64(v int64) int64 {
	if v < 0 {
		return -1
	}
	return 1
}

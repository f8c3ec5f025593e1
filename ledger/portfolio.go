package ledger

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/papertrade/internal/id"
)

// DefaultMaxOrderQuantity caps the shares of a single buy.
const DefaultMaxOrderQuantity = 100

// Portfolio is a cash balance, its holdings and the trade log.
//
// All mutation is serialized by the portfolio's own lock. A rejected buy or
// sell leaves every field unchanged.
type Portfolio struct {
	mu       sync.Mutex
	id       string
	currency string
	maxQty   int64
	now      func() time.Time

	cash     decimal.Decimal
	initial  decimal.Decimal
	holdings map[string]*Holding
	txs      []Transaction
}

// Option configures a Portfolio.
type Option func(*Portfolio)

func WithCurrency(code string) Option {
	return func(p *Portfolio) { p.currency = code }
}

// WithMaxOrderQuantity sets the per-order share cap for buys.
func WithMaxOrderQuantity(n int64) Option {
	return func(p *Portfolio) {
		if n > 0 {
			p.maxQty = n
		}
	}
}

// WithClock sets the time source used to stamp transactions.
func WithClock(now func() time.Time) Option {
	return func(p *Portfolio) { p.now = now }
}

// New creates a portfolio holding initial in cash.
func New(portfolioID string, initial decimal.Decimal, opts ...Option) *Portfolio {
	p := &Portfolio{
		id:       portfolioID,
		currency: DefaultCurrency,
		maxQty:   DefaultMaxOrderQuantity,
		now:      time.Now,
		cash:     initial,
		initial:  initial,
		holdings: make(map[string]*Holding),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Portfolio) ID() string       { return p.id }
func (p *Portfolio) Currency() string { return p.currency }

// MaxOrderQuantity is the most shares one buy may take.
func (p *Portfolio) MaxOrderQuantity() int64 { return p.maxQty }

func (p *Portfolio) Cash() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash
}

func (p *Portfolio) InitialBalance() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initial
}

// Holding returns the position in symbol, if any.
func (p *Portfolio) Holding(symbol string) (Holding, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.holdings[symbol]
	if !ok {
		return Holding{}, false
	}
	return *h, true
}

// Holdings returns all positions sorted by symbol.
func (p *Portfolio) Holdings() []Holding {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.holdingsLocked()
}

func (p *Portfolio) holdingsLocked() []Holding {
	out := make([]Holding, 0, len(p.holdings))
	for _, h := range p.holdings {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (p *Portfolio) money(d decimal.Decimal) string {
	return FormatMoney(d, p.currency)
}

// quote resolves the execution price of symbol.
func quote(symbol string, prices PriceLookup) (decimal.Decimal, error) {
	px, err := prices(symbol)
	if err != nil {
		if errors.Is(err, ErrUnknownSymbol) {
			return decimal.Zero, err
		}
		return decimal.Zero, fmt.Errorf("no price for %s: %w", symbol, err)
	}
	if math.IsNaN(px) || math.IsInf(px, 0) || px <= 0 {
		return decimal.Zero, fmt.Errorf("no price for %s: got %v", symbol, px)
	}
	return Cents(px), nil
}

// Buy purchases quantity shares of symbol at the current price.
func (p *Portfolio) Buy(symbol string, quantity int64, prices PriceLookup) Result {
	switch {
	case symbol == "":
		return failed(invalid("symbol", "required"))
	case quantity <= 0:
		return failed(invalid("quantity", "must be a positive whole number, got %d", quantity))
	case quantity > p.maxQty:
		return failed(invalid("quantity", "%d exceeds the per-order limit of %d", quantity, p.maxQty))
	}

	price, err := quote(symbol, prices)
	if err != nil {
		return failed(err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cost := price.Mul(decimal.NewFromInt(quantity))
	if cost.GreaterThan(p.cash) {
		return failed(fmt.Errorf("%w: %d %s at %s costs %s, cash is %s",
			ErrInsufficientFunds, quantity, symbol, p.money(price), p.money(cost), p.money(p.cash)))
	}

	p.cash = p.cash.Sub(cost)

	h, ok := p.holdings[symbol]
	if !ok {
		h = &Holding{Symbol: symbol}
		p.holdings[symbol] = h
	}
	oldQty := decimal.NewFromInt(h.Quantity)
	newQty := h.Quantity + quantity
	h.AvgCost = h.AvgCost.Mul(oldQty).Add(cost).Div(decimal.NewFromInt(newQty))
	h.Quantity = newQty

	tx := p.appendLocked(Buy, symbol, quantity, price, decimal.Zero)
	return Result{
		Success:     true,
		Message:     fmt.Sprintf("Bought %d %s at %s for %s", quantity, symbol, p.money(price), p.money(tx.Total)),
		Transaction: &tx,
	}
}

// Sell disposes of quantity shares of symbol at the current price. The
// average cost of the remaining shares is unchanged.
func (p *Portfolio) Sell(symbol string, quantity int64, prices PriceLookup) Result {
	switch {
	case symbol == "":
		return failed(invalid("symbol", "required"))
	case quantity <= 0:
		return failed(invalid("quantity", "must be a positive whole number, got %d", quantity))
	}

	price, err := quote(symbol, prices)
	if err != nil {
		return failed(err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	h, ok := p.holdings[symbol]
	if !ok {
		return failed(fmt.Errorf("%w: no %s position", ErrInsufficientShares, symbol))
	}
	if h.Quantity < quantity {
		return failed(fmt.Errorf("%w: selling %d %s, holding %d", ErrInsufficientShares, quantity, symbol, h.Quantity))
	}

	qty := decimal.NewFromInt(quantity)
	proceeds := price.Mul(qty)
	realized := price.Sub(h.AvgCost).Mul(qty)

	p.cash = p.cash.Add(proceeds)
	h.Quantity -= quantity
	if h.Quantity == 0 {
		delete(p.holdings, symbol)
	}

	tx := p.appendLocked(Sell, symbol, quantity, price, realized)
	return Result{
		Success: true,
		Message: fmt.Sprintf("Sold %d %s at %s for %s (realized %s)",
			quantity, symbol, p.money(price), p.money(proceeds), signed(p.money(realized), realized)),
		Transaction: &tx,
	}
}

func signed(s string, d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + s
	}
	return s
}

func (p *Portfolio) appendLocked(side Side, symbol string, quantity int64, price, realized decimal.Decimal) Transaction {
	now := p.now()
	tx := Transaction{
		ID:         id.At(now),
		Side:       side,
		Symbol:     symbol,
		Quantity:   quantity,
		Price:      price,
		Total:      price.Mul(decimal.NewFromInt(quantity)),
		RealizedPL: realized,
		Time:       now,
	}
	p.txs = append(p.txs, tx)
	return tx
}

// Valuate marks every holding at the current price. Holdings whose price
// cannot be looked up are marked at their average cost and reported in the
// returned error; the valuation is still complete.
func (p *Portfolio) Valuate(prices PriceLookup) (Valuation, error) {
	p.mu.Lock()
	cash, initial := p.cash, p.initial
	holdings := p.holdingsLocked()
	p.mu.Unlock()

	v := Valuation{
		Currency:       p.currency,
		Cash:           cash,
		InitialBalance: initial,
		Holdings:       make([]HoldingValue, 0, len(holdings)),
	}

	var errs []error
	for _, h := range holdings {
		price, err := quote(h.Symbol, prices)
		if err != nil {
			errs = append(errs, err)
			price = h.AvgCost
		}
		mv := price.Mul(decimal.NewFromInt(h.Quantity))
		v.Holdings = append(v.Holdings, HoldingValue{
			Holding:      h,
			Price:        price,
			MarketValue:  mv,
			UnrealizedPL: mv.Sub(h.CostBasis()),
		})
		v.PortfolioValue = v.PortfolioValue.Add(mv)
	}
	v.TotalAssets = cash.Add(v.PortfolioValue)
	v.Earnings = v.TotalAssets.Sub(initial)
	return v, errors.Join(errs...)
}

// Reset clears holdings and history and restarts with balance in cash.
func (p *Portfolio) Reset(balance decimal.Decimal) error {
	if balance.IsNegative() {
		return invalid("balance", "must not be negative, got %s", balance)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cash = balance
	p.initial = balance
	p.holdings = make(map[string]*Holding)
	p.txs = nil
	return nil
}

// Filter selects transactions. Zero fields match everything.
type Filter struct {
	Symbol string
	Side   Side
	Since  time.Time
	Until  time.Time
}

// Match reports whether tx passes the filter. Until is exclusive.
func (f Filter) Match(tx Transaction) bool {
	switch {
	case f.Symbol != "" && tx.Symbol != f.Symbol:
		return false
	case f.Side != "" && tx.Side != f.Side:
		return false
	case !f.Since.IsZero() && tx.Time.Before(f.Since):
		return false
	case !f.Until.IsZero() && !tx.Time.Before(f.Until):
		return false
	}
	return true
}

// Transactions returns the trade log filtered by f, oldest first. The
// sequence reads the current log each time it is ranged over.
func (p *Portfolio) Transactions(f Filter) iter.Seq[Transaction] {
	return func(yield func(Transaction) bool) {
		p.mu.Lock()
		// entries are never modified in place, so the prefix is stable
		txs := p.txs[:len(p.txs):len(p.txs)]
		p.mu.Unlock()

		for _, tx := range txs {
			if f.Match(tx) && !yield(tx) {
				return
			}
		}
	}
}

// Snapshot copies the portfolio state for persistence.
func (p *Portfolio) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Currency:       p.currency,
		Cash:           p.cash,
		InitialBalance: p.initial,
		Holdings:       p.holdingsLocked(),
		Transactions:   append([]Transaction(nil), p.txs...),
	}
}

// Restore replaces the portfolio state with s after validating it. The
// portfolio keeps the currency it was created with.
func (p *Portfolio) Restore(s Snapshot) error {
	if s.Cash.IsNegative() {
		return invalid("cash", "must not be negative, got %s", s.Cash)
	}
	holdings := make(map[string]*Holding, len(s.Holdings))
	for _, h := range s.Holdings {
		if h.Quantity <= 0 {
			return invalid("holding", "%s has quantity %d", h.Symbol, h.Quantity)
		}
		if _, dup := holdings[h.Symbol]; dup {
			return invalid("holding", "duplicate symbol %s", h.Symbol)
		}
		holdings[h.Symbol] = &h
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.cash = s.Cash
	p.initial = s.InitialBalance
	p.holdings = holdings
	p.txs = append([]Transaction(nil), s.Transactions...)
	return nil
}

package orders

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/papertrade/internal/id"
	"github.com/rustyeddy/papertrade/ledger"
)

var (
	ErrNotFound  = errors.New("order not found")
	ErrNotActive = errors.New("order not active")
)

// Portfolios resolves the portfolio an order executes against.
type Portfolios interface {
	Portfolio(id string) (*ledger.Portfolio, bool)
}

// Manager holds limit orders and executes them when their price condition is
// met. Orders are processed in submission order.
type Manager struct {
	mu     sync.Mutex
	orders map[string]*Order
	seq    []string
	now    func() time.Time
}

// NewManager returns an empty manager. now stamps submissions and
// cancellations; nil means time.Now.
func NewManager(now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{orders: make(map[string]*Order), now: now}
}

func invalid(field, format string, args ...any) error {
	return &ledger.ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// validate checks req against the order limits. Buys are also held to the
// portfolio's own per-order cap, since execution goes through it.
func validate(req Request, portfolioCap int64) error {
	maxQty := int64(MaxQuantity)
	if req.Side == ledger.Buy && portfolioCap > 0 {
		maxQty = min(maxQty, portfolioCap)
	}
	switch {
	case req.Side != ledger.Buy && req.Side != ledger.Sell:
		return invalid("side", "%q must be BUY or SELL", req.Side)
	case req.Symbol == "":
		return invalid("symbol", "required")
	case req.Quantity < MinQuantity || req.Quantity > maxQty:
		return invalid("quantity", "must be between %d and %d, got %d", MinQuantity, maxQty, req.Quantity)
	case math.IsNaN(req.TargetPrice) || math.IsInf(req.TargetPrice, 0) || !ledger.Cents(req.TargetPrice).IsPositive():
		return invalid("target price", "must be at least 0.01, got %v", req.TargetPrice)
	}
	return nil
}

// Submit validates req and registers it as an active order of pf. Sell
// orders require pf to hold the shares now; buy orders are only checked for
// funds when they trigger. The target is kept in cents. An expiry already
// in the past is accepted and expires on the next tick.
func (m *Manager) Submit(pf *ledger.Portfolio, req Request, prices ledger.PriceLookup) Result {
	now := m.now()
	if err := validate(req, pf.MaxOrderQuantity()); err != nil {
		return rejected(err)
	}
	req.TargetPrice = ledger.Cents(req.TargetPrice).InexactFloat64()
	if _, err := prices(req.Symbol); err != nil {
		return rejected(err)
	}
	if req.Side == ledger.Sell {
		h, ok := pf.Holding(req.Symbol)
		if !ok || h.Quantity < req.Quantity {
			return rejected(fmt.Errorf("%w: limit sell of %d %s, holding %d",
				ledger.ErrInsufficientShares, req.Quantity, req.Symbol, h.Quantity))
		}
	}

	o := &Order{
		ID:          id.At(now),
		PortfolioID: pf.ID(),
		Side:        req.Side,
		Symbol:      req.Symbol,
		Quantity:    req.Quantity,
		TargetPrice: req.TargetPrice,
		Status:      Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.ExpiresAt != nil {
		exp := *req.ExpiresAt
		o.ExpiresAt = &exp
	}

	m.mu.Lock()
	m.orders[o.ID] = o
	m.seq = append(m.seq, o.ID)
	cp := o.clone()
	m.mu.Unlock()

	return Result{
		Success: true,
		Message: describe(cp, pf.Currency()) + " placed",
		Order:   &cp,
	}
}

// Cancel moves an active order to cancelled.
func (m *Manager) Cancel(orderID string) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return rejected(fmt.Errorf("%w: %s", ErrNotFound, orderID))
	}
	if o.Status != Active {
		return rejected(fmt.Errorf("%w: %s is %s", ErrNotActive, orderID, o.Status))
	}
	o.Status = Cancelled
	o.UpdatedAt = m.now()
	o.Reason = "cancelled by user"
	cp := o.clone()
	return Result{Success: true, Message: describe(cp, "") + " cancelled", Order: &cp}
}

// CancelAll cancels every active order of portfolioID and returns them.
func (m *Manager) CancelAll(portfolioID, reason string) []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var out []Order
	for _, oid := range m.seq {
		o := m.orders[oid]
		if o.PortfolioID != portfolioID || o.Status != Active {
			continue
		}
		o.Status = Cancelled
		o.UpdatedAt = now
		o.Reason = reason
		out = append(out, o.clone())
	}
	return out
}

// Drop forgets every order of portfolioID, whatever its state.
func (m *Manager) Drop(portfolioID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.seq[:0]
	for _, oid := range m.seq {
		if m.orders[oid].PortfolioID == portfolioID {
			delete(m.orders, oid)
			continue
		}
		kept = append(kept, oid)
	}
	m.seq = kept
}

// Get returns a copy of the order.
func (m *Manager) Get(orderID string) (Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return Order{}, false
	}
	return o.clone(), true
}

// List returns the orders of portfolioID in submission order; an empty id
// lists every order.
func (m *Manager) List(portfolioID string) []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, oid := range m.seq {
		o := m.orders[oid]
		if portfolioID == "" || o.PortfolioID == portfolioID {
			out = append(out, o.clone())
		}
	}
	return out
}

// Restore adds previously persisted orders, keeping their ids and states.
func (m *Manager) Restore(orders []Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range orders {
		if o.ID == "" {
			return invalid("order", "missing id")
		}
		if _, dup := m.orders[o.ID]; dup {
			return fmt.Errorf("restore order %s: duplicate id", o.ID)
		}
		cp := o.clone()
		m.orders[o.ID] = &cp
		m.seq = append(m.seq, o.ID)
	}
	return nil
}

// Tick checks every active order against the current prices. Expired orders
// move to expired; triggered orders execute through the portfolio ledger and
// become completed, or failed when the ledger rejects them. A failure only
// affects its own order.
func (m *Manager) Tick(now time.Time, prices ledger.PriceLookup, book Portfolios) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	var events []Event
	for _, oid := range m.seq {
		o := m.orders[oid]
		if o.Status != Active {
			continue
		}

		if o.expired(now) {
			o.Status = Expired
			o.UpdatedAt = now
			o.Reason = "expired"
			events = append(events, Event{Order: o.clone(), Message: describe(*o, "") + " expired"})
			continue
		}

		price, err := prices(o.Symbol)
		if err != nil {
			// no price this tick; try again on the next one
			continue
		}
		if !o.triggered(price) {
			continue
		}

		pf, ok := book.Portfolio(o.PortfolioID)
		if !ok {
			m.fail(o, now, fmt.Sprintf("portfolio %s not found", o.PortfolioID))
			events = append(events, Event{Order: o.clone(), Message: describe(*o, "") + " failed: " + o.Reason})
			continue
		}

		res := execute(pf, o, prices)
		if res.Success {
			o.Status = Completed
			o.UpdatedAt = now
			o.ExecutionPrice = res.Transaction.Price
			o.TotalValue = res.Transaction.Total
			o.TransactionID = res.Transaction.ID
			events = append(events, Event{Order: o.clone(), Message: "Limit order filled: " + res.Message})
			continue
		}
		m.fail(o, now, res.Message)
		events = append(events, Event{Order: o.clone(), Message: describe(*o, pf.Currency()) + " failed: " + o.Reason})
	}
	return events
}

func (m *Manager) fail(o *Order, now time.Time, reason string) {
	o.Status = Failed
	o.UpdatedAt = now
	o.Reason = reason
}

// execute runs the ledger side of a triggered order. A panic is contained to
// the order so the remaining orders are still processed.
func execute(pf *ledger.Portfolio, o *Order, prices ledger.PriceLookup) (res ledger.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = ledger.Result{Message: fmt.Sprintf("execution error: %v", r), Err: fmt.Errorf("execution error: %v", r)}
		}
	}()
	if o.Side == ledger.Buy {
		return pf.Buy(o.Symbol, o.Quantity, prices)
	}
	return pf.Sell(o.Symbol, o.Quantity, prices)
}

func describe(o Order, currency string) string {
	return fmt.Sprintf("Limit %s %d %s @ %s", o.Side, o.Quantity, o.Symbol,
		ledger.FormatMoney(decimal.NewFromFloat(o.TargetPrice), currency))
}

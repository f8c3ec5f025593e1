// Package sim ties the market, news, ledger and order book together into a
// session that advances one tick at a time.
package sim

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/papertrade/journal"
	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/news"
	"github.com/rustyeddy/papertrade/notify"
	"github.com/rustyeddy/papertrade/orders"
)

var ErrUnknownPortfolio = errors.New("unknown portfolio")

// TickReport describes what one tick did.
type TickReport struct {
	Time   time.Time
	News   *news.Item
	Halted error // instruments halted during this tick
	Events []orders.Event
}

// Session owns the simulation state shared by every portfolio.
type Session struct {
	universe *market.Universe
	model    *market.PriceModel
	news     *news.Engine
	orders   *orders.Manager
	clock    Clock
	sink     notify.Sink
	newsLog  journal.NewsLog
	log      *slog.Logger
	portOpts []ledger.Option

	// tickMu is held exclusively for a whole tick and shared by trades, so a
	// trade never observes a half-applied tick.
	tickMu sync.RWMutex

	mu         sync.RWMutex
	portfolios map[string]*ledger.Portfolio
}

type Option func(*Session)

func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithSink sets where outcome messages go. The sink must not block.
func WithSink(sink notify.Sink) Option {
	return func(s *Session) { s.sink = sink }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithNewsLog records every emitted news item.
func WithNewsLog(nl journal.NewsLog) Option {
	return func(s *Session) { s.newsLog = nl }
}

// WithPortfolioOptions applies opts to every portfolio the session opens.
func WithPortfolioOptions(opts ...ledger.Option) Option {
	return func(s *Session) { s.portOpts = append(s.portOpts, opts...) }
}

// NewSession builds a session over u. Prices move with model and sentiment
// with ne.
func NewSession(u *market.Universe, model *market.PriceModel, ne *news.Engine, opts ...Option) *Session {
	s := &Session{
		universe:   u,
		model:      model,
		news:       ne,
		clock:      SystemClock{},
		sink:       notify.Discard,
		log:        slog.Default(),
		portfolios: make(map[string]*ledger.Portfolio),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.orders = orders.NewManager(s.clock.Now)
	return s
}

func (s *Session) Universe() *market.Universe { return s.universe }

func (s *Session) Now() time.Time { return s.clock.Now() }

// Tick runs one step: news, then prices, then limit orders, so orders see
// prices moved by this tick's news. An external headline is fetched before
// the tick takes its lock, so trades are not held up by the generator.
func (s *Session) Tick(ctx context.Context) TickReport {
	now := s.clock.Now()
	s.news.Prefetch(ctx, now)

	s.tickMu.Lock()
	r := TickReport{Time: now}

	r.News = s.news.Tick(ctx, now)
	r.Halted = s.universe.AdvanceAll(s.model)
	r.Events = s.orders.Tick(now, s.universe.Price, s)
	s.tickMu.Unlock()

	if r.News != nil && s.newsLog != nil {
		if err := s.newsLog.RecordNews(ctx, *r.News); err != nil {
			s.log.Error("record news", "err", err)
		}
	}
	if r.Halted != nil {
		s.log.Error("instrument halted", "err", r.Halted)
	}
	for _, ev := range r.Events {
		s.log.Info("limit order",
			slog.String("order", ev.Order.ID),
			slog.String("portfolio", ev.Order.PortfolioID),
			slog.String("status", string(ev.Order.Status)),
			slog.String("message", ev.Message))
		s.sink.Notify(ev.Message)
	}
	return r
}

// OpenPortfolio returns the portfolio with portfolioID, creating it with
// initial cash if it does not exist yet.
func (s *Session) OpenPortfolio(portfolioID string, initial decimal.Decimal) *ledger.Portfolio {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pf, ok := s.portfolios[portfolioID]; ok {
		return pf
	}
	pf := s.newPortfolioLocked(portfolioID, initial)
	s.portfolios[portfolioID] = pf
	return pf
}

func (s *Session) newPortfolioLocked(portfolioID string, initial decimal.Decimal) *ledger.Portfolio {
	opts := append([]ledger.Option{ledger.WithClock(s.clock.Now)}, s.portOpts...)
	return ledger.New(portfolioID, initial, opts...)
}

// Portfolio looks up an open portfolio.
func (s *Session) Portfolio(portfolioID string) (*ledger.Portfolio, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pf, ok := s.portfolios[portfolioID]
	return pf, ok
}

func (s *Session) portfolio(portfolioID string) (*ledger.Portfolio, error) {
	pf, ok := s.Portfolio(portfolioID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPortfolio, portfolioID)
	}
	return pf, nil
}

// Buy purchases quantity shares at the current price.
func (s *Session) Buy(portfolioID, symbol string, quantity int64) ledger.Result {
	return s.trade(portfolioID, func(pf *ledger.Portfolio) ledger.Result {
		return pf.Buy(symbol, quantity, s.universe.Price)
	})
}

// Sell disposes of quantity shares at the current price.
func (s *Session) Sell(portfolioID, symbol string, quantity int64) ledger.Result {
	return s.trade(portfolioID, func(pf *ledger.Portfolio) ledger.Result {
		return pf.Sell(symbol, quantity, s.universe.Price)
	})
}

// trade runs fn on the portfolio. The lookup happens under tickMu so a
// concurrent Load cannot leave fn holding a replaced portfolio.
func (s *Session) trade(portfolioID string, fn func(*ledger.Portfolio) ledger.Result) ledger.Result {
	s.tickMu.RLock()
	pf, err := s.portfolio(portfolioID)
	if err != nil {
		s.tickMu.RUnlock()
		return ledger.Result{Message: err.Error(), Err: err}
	}
	res := fn(pf)
	s.tickMu.RUnlock()

	if res.Success {
		s.sink.Notify(res.Message)
	}
	return res
}

// SubmitLimitOrder places a standing order for portfolioID.
func (s *Session) SubmitLimitOrder(portfolioID string, req orders.Request) orders.Result {
	s.tickMu.RLock()
	defer s.tickMu.RUnlock()
	pf, err := s.portfolio(portfolioID)
	if err != nil {
		return orders.Result{Message: err.Error(), Err: err}
	}
	return s.orders.Submit(pf, req, s.universe.Price)
}

// CancelLimitOrder cancels an active order.
func (s *Session) CancelLimitOrder(orderID string) orders.Result {
	s.tickMu.RLock()
	defer s.tickMu.RUnlock()
	return s.orders.Cancel(orderID)
}

// Orders lists the orders of portfolioID, or every order for "".
func (s *Session) Orders(portfolioID string) []orders.Order {
	return s.orders.List(portfolioID)
}

// Order looks up one order.
func (s *Session) Order(orderID string) (orders.Order, bool) {
	return s.orders.Get(orderID)
}

// Valuate marks portfolioID at current prices.
func (s *Session) Valuate(portfolioID string) (ledger.Valuation, error) {
	s.tickMu.RLock()
	defer s.tickMu.RUnlock()
	pf, err := s.portfolio(portfolioID)
	if err != nil {
		return ledger.Valuation{}, err
	}
	return pf.Valuate(s.universe.Price)
}

// TransactionHistory returns the trade log of portfolioID filtered by f.
// The sequence can be ranged over again and sees trades made since, and
// after a Load it reads the loaded portfolio.
func (s *Session) TransactionHistory(portfolioID string, f ledger.Filter) (iter.Seq[ledger.Transaction], error) {
	if _, err := s.portfolio(portfolioID); err != nil {
		return func(func(ledger.Transaction) bool) {}, err
	}
	return func(yield func(ledger.Transaction) bool) {
		pf, ok := s.Portfolio(portfolioID)
		if !ok {
			return
		}
		for tx := range pf.Transactions(f) {
			if !yield(tx) {
				return
			}
		}
	}, nil
}

// Reset empties portfolioID back to balance in cash and cancels its active
// limit orders.
func (s *Session) Reset(portfolioID string, balance decimal.Decimal) error {
	s.tickMu.RLock()
	defer s.tickMu.RUnlock()
	pf, err := s.portfolio(portfolioID)
	if err != nil {
		return err
	}
	if err := pf.Reset(balance); err != nil {
		return err
	}
	s.orders.CancelAll(portfolioID, "portfolio reset")
	return nil
}

// Load replaces portfolio key and its orders with what store holds. On
// error the session is unchanged.
func (s *Session) Load(ctx context.Context, store journal.Store, key string) error {
	rec, err := store.Load(ctx, key)
	if err != nil {
		return err
	}

	pf := func() *ledger.Portfolio {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.newPortfolioLocked(key, rec.Ledger.InitialBalance)
	}()
	if err := pf.Restore(rec.Ledger); err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	for i := range rec.Orders {
		rec.Orders[i].PortfolioID = key
	}

	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	prev := s.orders.List(key)
	s.orders.Drop(key)
	if err := s.orders.Restore(rec.Orders); err != nil {
		s.orders.Drop(key)
		_ = s.orders.Restore(prev)
		return fmt.Errorf("load %s: %w", key, err)
	}
	s.mu.Lock()
	s.portfolios[key] = pf
	s.mu.Unlock()
	return nil
}

// Save writes portfolio key and its orders to store. A failed save leaves
// the in-memory state as it was.
func (s *Session) Save(ctx context.Context, store journal.Store, key string) error {
	s.tickMu.RLock()
	pf, err := s.portfolio(key)
	if err != nil {
		s.tickMu.RUnlock()
		return err
	}
	rec := journal.Record{Ledger: pf.Snapshot(), Orders: s.orders.List(key)}
	s.tickMu.RUnlock()

	if err := store.Save(ctx, key, rec); err != nil {
		s.log.Error("save portfolio", "key", key, "err", err)
		return err
	}
	return nil
}

// SaveMarket writes the instrument state to ms.
func (s *Session) SaveMarket(ctx context.Context, ms journal.MarketStore) error {
	s.tickMu.RLock()
	snap := s.universe.Snapshot()
	s.tickMu.RUnlock()

	if err := ms.SaveMarket(ctx, snap); err != nil {
		s.log.Error("save market", "err", err)
		return err
	}
	return nil
}

// LoadMarket restores instrument state from ms. It reports false when ms
// holds no market yet.
func (s *Session) LoadMarket(ctx context.Context, ms journal.MarketStore) (bool, error) {
	instruments, err := ms.LoadMarket(ctx)
	if err != nil {
		return false, err
	}
	if len(instruments) == 0 {
		return false, nil
	}

	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	if err := s.universe.Restore(instruments); err != nil {
		return false, err
	}
	return true, nil
}

package orders

import (
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/market"
)

type quotes map[string]float64

func (q quotes) lookup(symbol string) (float64, error) {
	p, ok := q[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %q", market.ErrUnknownSymbol, symbol)
	}
	return p, nil
}

type book map[string]*ledger.Portfolio

func (b book) Portfolio(id string) (*ledger.Portfolio, bool) {
	p, ok := b[id]
	return p, ok
}

var t0 = time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)

func setup(t *testing.T, cash int64) (*Manager, *ledger.Portfolio, book, quotes) {
	t.Helper()
	pf := ledger.New("pf-1", decimal.NewFromInt(cash))
	return NewManager(func() time.Time { return t0 }), pf, book{"pf-1": pf}, quotes{"AAPL": 160, "MSFT": 400}
}

func TestBuyLimitFillsAtCurrentPrice(t *testing.T) {
	m, pf, b, q := setup(t, 10000)

	r := m.Submit(pf, Request{Side: ledger.Buy, Symbol: "AAPL", Quantity: 3, TargetPrice: 150}, q.lookup)
	require.True(t, r.Success, r.Message)
	assert.Equal(t, Active, r.Order.Status)
	assert.Equal(t, "Limit BUY 3 AAPL @ $150.00 placed", r.Message)

	// not yet triggered
	assert.Empty(t, m.Tick(t0.Add(time.Second), q.lookup, b))

	q["AAPL"] = 149
	events := m.Tick(t0.Add(2*time.Second), q.lookup, b)
	require.Len(t, events, 1)

	o, ok := m.Get(r.Order.ID)
	require.True(t, ok)
	assert.Equal(t, Completed, o.Status)
	assert.True(t, decimal.NewFromInt(149).Equal(o.ExecutionPrice))
	assert.True(t, decimal.NewFromInt(447).Equal(o.TotalValue))
	assert.True(t, decimal.NewFromInt(10000-447).Equal(pf.Cash()))

	txs := slices.Collect(pf.Transactions(ledger.Filter{}))
	require.Len(t, txs, 1)
	assert.Equal(t, ledger.Buy, txs[0].Side)
	assert.Equal(t, int64(3), txs[0].Quantity)
	assert.True(t, decimal.NewFromInt(149).Equal(txs[0].Price))
	assert.Equal(t, txs[0].ID, o.TransactionID)

	// terminal: later ticks never execute it again
	q["AAPL"] = 100
	assert.Empty(t, m.Tick(t0.Add(3*time.Second), q.lookup, b))
	assert.Len(t, slices.Collect(pf.Transactions(ledger.Filter{})), 1)
}

func TestSellLimitTriggersAtOrAboveTarget(t *testing.T) {
	m, pf, b, q := setup(t, 10000)
	require.True(t, pf.Buy("MSFT", 5, q.lookup).Success)

	r := m.Submit(pf, Request{Side: ledger.Sell, Symbol: "MSFT", Quantity: 5, TargetPrice: 420}, q.lookup)
	require.True(t, r.Success, r.Message)

	q["MSFT"] = 419.99
	assert.Empty(t, m.Tick(t0, q.lookup, b))

	q["MSFT"] = 420
	events := m.Tick(t0, q.lookup, b)
	require.Len(t, events, 1)
	assert.Equal(t, Completed, events[0].Order.Status)
	_, held := pf.Holding("MSFT")
	assert.False(t, held)
}

func TestExpiredOrderNeverExecutes(t *testing.T) {
	m, pf, b, q := setup(t, 10000)
	exp := t0.Add(time.Minute)
	r := m.Submit(pf, Request{Side: ledger.Buy, Symbol: "AAPL", Quantity: 1, TargetPrice: 1000, ExpiresAt: &exp}, q.lookup)
	require.True(t, r.Success, r.Message)

	events := m.Tick(exp.Add(time.Second), q.lookup, b)
	require.Len(t, events, 1)
	assert.Equal(t, Expired, events[0].Order.Status)
	assert.Contains(t, events[0].Message, "expired")
	assert.True(t, decimal.NewFromInt(10000).Equal(pf.Cash()))
	assert.Empty(t, slices.Collect(pf.Transactions(ledger.Filter{})))
}

func TestPastExpiryExpiresOnNextTick(t *testing.T) {
	m, pf, b, q := setup(t, 10000)
	past := t0.Add(-time.Second)
	r := m.Submit(pf, Request{Side: ledger.Buy, Symbol: "AAPL", Quantity: 3, TargetPrice: 1000, ExpiresAt: &past}, q.lookup)
	require.True(t, r.Success, r.Message)
	assert.Equal(t, Active, r.Order.Status)

	events := m.Tick(t0, q.lookup, b)
	require.Len(t, events, 1)
	assert.Equal(t, Expired, events[0].Order.Status)
	assert.True(t, decimal.NewFromInt(10000).Equal(pf.Cash()))
	assert.Empty(t, slices.Collect(pf.Transactions(ledger.Filter{})))
}

func TestFillsStayWithinTarget(t *testing.T) {
	tests := []struct {
		name   string
		side   ledger.Side
		target float64
		price  float64
		fills  bool
		exec   string
	}{
		{"buy target rounds to the fill price", ledger.Buy, 149.995, 149.995, true, "150"},
		{"buy below target by a sub-cent", ledger.Buy, 150, 150.004, true, "150"},
		{"buy a half cent above target", ledger.Buy, 149.99, 149.995, false, ""},
		{"sell above target by a sub-cent", ledger.Sell, 150, 149.996, true, "150"},
		{"sell a half cent below target", ledger.Sell, 150.01, 150.004, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, pf, b, q := setup(t, 100000)
			q["AAPL"] = 150
			require.True(t, pf.Buy("AAPL", 10, q.lookup).Success)

			r := m.Submit(pf, Request{Side: tt.side, Symbol: "AAPL", Quantity: 1, TargetPrice: tt.target}, q.lookup)
			require.True(t, r.Success, r.Message)

			q["AAPL"] = tt.price
			events := m.Tick(t0, q.lookup, b)
			o, _ := m.Get(r.Order.ID)
			if !tt.fills {
				assert.Empty(t, events)
				assert.Equal(t, Active, o.Status)
				return
			}
			require.Len(t, events, 1)
			assert.Equal(t, Completed, o.Status)
			assert.True(t, decimal.RequireFromString(tt.exec).Equal(o.ExecutionPrice), o.ExecutionPrice.String())
		})
	}
}

func TestFillPriceNeverCrossesTargetProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		side := rapid.SampledFrom([]ledger.Side{ledger.Buy, ledger.Sell}).Draw(t, "side")
		target := float64(rapid.IntRange(1, 100000).Draw(t, "target")) / 1000
		price := float64(rapid.IntRange(1, 100000).Draw(t, "price")) / 1000

		q := quotes{"AAPL": 50}
		pf := ledger.New("pf-1", decimal.NewFromInt(1_000_000))
		require.True(t, pf.Buy("AAPL", 1, q.lookup).Success)
		m := NewManager(func() time.Time { return t0 })

		r := m.Submit(pf, Request{Side: side, Symbol: "AAPL", Quantity: 1, TargetPrice: target}, q.lookup)
		if !r.Success {
			// targets under half a cent round to zero
			assert.True(t, ledger.IsValidation(r.Err))
			return
		}
		q["AAPL"] = price
		m.Tick(t0, q.lookup, book{"pf-1": pf})

		o, _ := m.Get(r.Order.ID)
		if o.Status != Completed {
			return
		}
		limit := decimal.NewFromFloat(target).Round(2)
		if side == ledger.Buy && o.ExecutionPrice.GreaterThan(limit) {
			t.Fatalf("buy filled at %s above target %s", o.ExecutionPrice, limit)
		}
		if side == ledger.Sell && o.ExecutionPrice.LessThan(limit) {
			t.Fatalf("sell filled at %s below target %s", o.ExecutionPrice, limit)
		}
	})
}

func TestBuyLimitHonorsPortfolioCap(t *testing.T) {
	q := quotes{"AAPL": 160}
	pf := ledger.New("pf-1", decimal.NewFromInt(100000), ledger.WithMaxOrderQuantity(10))
	m := NewManager(func() time.Time { return t0 })

	r := m.Submit(pf, Request{Side: ledger.Buy, Symbol: "AAPL", Quantity: 11, TargetPrice: 170}, q.lookup)
	assert.False(t, r.Success)
	assert.True(t, ledger.IsValidation(r.Err))
	assert.Contains(t, r.Message, "between 1 and 10")

	r = m.Submit(pf, Request{Side: ledger.Buy, Symbol: "AAPL", Quantity: 10, TargetPrice: 170}, q.lookup)
	require.True(t, r.Success, r.Message)
	events := m.Tick(t0, q.lookup, book{"pf-1": pf})
	require.Len(t, events, 1)
	assert.Equal(t, Completed, events[0].Order.Status)
}

func TestFailedOrderDoesNotStopOthers(t *testing.T) {
	m, pf, b, q := setup(t, 1000)

	big := m.Submit(pf, Request{Side: ledger.Buy, Symbol: "MSFT", Quantity: 10, TargetPrice: 500}, q.lookup)
	small := m.Submit(pf, Request{Side: ledger.Buy, Symbol: "AAPL", Quantity: 2, TargetPrice: 200}, q.lookup)
	require.True(t, big.Success)
	require.True(t, small.Success)

	events := m.Tick(t0, q.lookup, b)
	require.Len(t, events, 2)

	o, _ := m.Get(big.Order.ID)
	assert.Equal(t, Failed, o.Status)
	assert.Contains(t, o.Reason, "insufficient funds")

	o, _ = m.Get(small.Order.ID)
	assert.Equal(t, Completed, o.Status)
	assert.True(t, decimal.NewFromInt(680).Equal(pf.Cash()))
}

func TestMissingPortfolioFailsOrder(t *testing.T) {
	m, pf, _, q := setup(t, 1000)
	r := m.Submit(pf, Request{Side: ledger.Buy, Symbol: "AAPL", Quantity: 1, TargetPrice: 200}, q.lookup)
	require.True(t, r.Success)

	events := m.Tick(t0, q.lookup, book{})
	require.Len(t, events, 1)
	assert.Equal(t, Failed, events[0].Order.Status)
}

func TestOrderWaitsWhileNoPrice(t *testing.T) {
	m, pf, b, q := setup(t, 1000)
	r := m.Submit(pf, Request{Side: ledger.Buy, Symbol: "AAPL", Quantity: 1, TargetPrice: 200}, q.lookup)
	require.True(t, r.Success)

	assert.Empty(t, m.Tick(t0, quotes{}.lookup, b))
	o, _ := m.Get(r.Order.ID)
	assert.Equal(t, Active, o.Status)
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		msg  string
	}{
		{"bad side", Request{Side: "HOLD", Symbol: "AAPL", Quantity: 1, TargetPrice: 1}, "side"},
		{"no symbol", Request{Side: ledger.Buy, Quantity: 1, TargetPrice: 1}, "symbol"},
		{"zero quantity", Request{Side: ledger.Buy, Symbol: "AAPL", Quantity: 0, TargetPrice: 1}, "between 1 and 100"},
		{"too many", Request{Side: ledger.Buy, Symbol: "AAPL", Quantity: 101, TargetPrice: 1}, "between 1 and 100"},
		{"zero target", Request{Side: ledger.Buy, Symbol: "AAPL", Quantity: 1, TargetPrice: 0}, "target price"},
		{"target below a cent", Request{Side: ledger.Buy, Symbol: "AAPL", Quantity: 1, TargetPrice: 0.004}, "target price"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, pf, _, q := setup(t, 1000)
			r := m.Submit(pf, tt.req, q.lookup)
			assert.False(t, r.Success)
			assert.True(t, ledger.IsValidation(r.Err))
			assert.Contains(t, r.Message, tt.msg)
			assert.Empty(t, m.List(""))
		})
	}
}

func TestSubmitUnknownSymbol(t *testing.T) {
	m, pf, _, q := setup(t, 1000)
	r := m.Submit(pf, Request{Side: ledger.Buy, Symbol: "ZZZ", Quantity: 1, TargetPrice: 1}, q.lookup)
	assert.False(t, r.Success)
	assert.ErrorIs(t, r.Err, ledger.ErrUnknownSymbol)
}

func TestSellSubmitRequiresShares(t *testing.T) {
	m, pf, _, q := setup(t, 10000)
	r := m.Submit(pf, Request{Side: ledger.Sell, Symbol: "AAPL", Quantity: 1, TargetPrice: 170}, q.lookup)
	assert.False(t, r.Success)
	assert.ErrorIs(t, r.Err, ledger.ErrInsufficientShares)

	require.True(t, pf.Buy("AAPL", 2, q.lookup).Success)
	r = m.Submit(pf, Request{Side: ledger.Sell, Symbol: "AAPL", Quantity: 3, TargetPrice: 170}, q.lookup)
	assert.False(t, r.Success)

	// buy side is not funds-checked at submission
	r = m.Submit(pf, Request{Side: ledger.Buy, Symbol: "MSFT", Quantity: 100, TargetPrice: 1}, q.lookup)
	assert.True(t, r.Success)
}

func TestCancel(t *testing.T) {
	m, pf, b, q := setup(t, 10000)
	r := m.Submit(pf, Request{Side: ledger.Buy, Symbol: "AAPL", Quantity: 1, TargetPrice: 100}, q.lookup)
	require.True(t, r.Success)

	c := m.Cancel(r.Order.ID)
	require.True(t, c.Success, c.Message)
	assert.Equal(t, Cancelled, c.Order.Status)

	again := m.Cancel(r.Order.ID)
	assert.False(t, again.Success)
	assert.ErrorIs(t, again.Err, ErrNotActive)

	missing := m.Cancel("nope")
	assert.ErrorIs(t, missing.Err, ErrNotFound)

	q["AAPL"] = 50
	assert.Empty(t, m.Tick(t0, q.lookup, b))
}

func TestListAndRestore(t *testing.T) {
	m, pf, _, q := setup(t, 10000)
	other := ledger.New("pf-2", decimal.NewFromInt(10))
	m.Submit(pf, Request{Side: ledger.Buy, Symbol: "AAPL", Quantity: 1, TargetPrice: 100}, q.lookup)
	m.Submit(other, Request{Side: ledger.Buy, Symbol: "MSFT", Quantity: 1, TargetPrice: 100}, q.lookup)
	m.Submit(pf, Request{Side: ledger.Buy, Symbol: "MSFT", Quantity: 2, TargetPrice: 100}, q.lookup)

	mine := m.List("pf-1")
	require.Len(t, mine, 2)
	assert.Equal(t, "AAPL", mine[0].Symbol)
	assert.Len(t, m.List(""), 3)

	restored := NewManager(nil)
	require.NoError(t, restored.Restore(m.List("")))
	assert.Equal(t, m.List(""), restored.List(""))
	assert.Error(t, restored.Restore(mine[:1]))
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, Active.Terminal())
	for _, s := range []Status{Completed, Cancelled, Expired, Failed} {
		assert.True(t, s.Terminal(), s)
	}
}

func TestCancelAllAndDrop(t *testing.T) {
	m, pf, b, q := setup(t, 10000)
	other := ledger.New("pf-2", decimal.NewFromInt(10000))
	b["pf-2"] = other

	m.Submit(pf, Request{Side: ledger.Buy, Symbol: "AAPL", Quantity: 1, TargetPrice: 100}, q.lookup)
	m.Submit(pf, Request{Side: ledger.Buy, Symbol: "MSFT", Quantity: 1, TargetPrice: 500}, q.lookup)
	m.Submit(other, Request{Side: ledger.Buy, Symbol: "AAPL", Quantity: 1, TargetPrice: 100}, q.lookup)

	// the MSFT order fills before the reset
	require.Len(t, m.Tick(t0, q.lookup, b), 1)

	cancelled := m.CancelAll("pf-1", "portfolio reset")
	require.Len(t, cancelled, 1)
	assert.Equal(t, "AAPL", cancelled[0].Symbol)
	assert.Equal(t, "portfolio reset", cancelled[0].Reason)

	statuses := map[Status]int{}
	for _, o := range m.List("pf-1") {
		statuses[o.Status]++
	}
	assert.Equal(t, map[Status]int{Completed: 1, Cancelled: 1}, statuses)

	m.Drop("pf-1")
	assert.Empty(t, m.List("pf-1"))
	assert.Len(t, m.List(""), 1)
}

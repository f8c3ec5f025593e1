package journal

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/news"
	"github.com/rustyeddy/papertrade/orders"
)

var t0 = time.Date(2024, 5, 6, 15, 0, 0, 0, time.UTC)

func prices(q map[string]float64) ledger.PriceLookup {
	return func(symbol string) (float64, error) {
		p, ok := q[symbol]
		if !ok {
			return 0, fmt.Errorf("%w: %q", market.ErrUnknownSymbol, symbol)
		}
		return p, nil
	}
}

// sampleRecord builds a portfolio with two buys and a sell, plus one
// active limit order with an expiry.
func sampleRecord(t *testing.T) Record {
	t.Helper()
	clock := t0
	pf := ledger.New("key-1", decimal.NewFromInt(10000), ledger.WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}))
	q := map[string]float64{"AAPL": 150, "MSFT": 400.25}
	require.True(t, pf.Buy("AAPL", 10, prices(q)).Success)
	require.True(t, pf.Buy("MSFT", 2, prices(q)).Success)
	q["AAPL"] = 160
	require.True(t, pf.Sell("AAPL", 4, prices(q)).Success)

	m := orders.NewManager(func() time.Time { return t0 })
	exp := t0.Add(time.Hour)
	r := m.Submit(pf, orders.Request{Side: ledger.Sell, Symbol: "MSFT", Quantity: 1, TargetPrice: 450, ExpiresAt: &exp}, prices(q))
	require.True(t, r.Success, r.Message)

	return Record{Ledger: pf.Snapshot(), Orders: m.List("")}
}

func newSQLite(t *testing.T) *SQLite {
	t.Helper()
	j, err := NewSQLite(filepath.Join(t.TempDir(), "papertrade.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func assertRecordEqual(t *testing.T, want, got Record) {
	t.Helper()
	assert.Equal(t, want.Ledger.Currency, got.Ledger.Currency)
	assert.True(t, want.Ledger.Cash.Equal(got.Ledger.Cash), "cash %s != %s", want.Ledger.Cash, got.Ledger.Cash)
	assert.True(t, want.Ledger.InitialBalance.Equal(got.Ledger.InitialBalance))

	require.Len(t, got.Ledger.Holdings, len(want.Ledger.Holdings))
	for i, h := range want.Ledger.Holdings {
		g := got.Ledger.Holdings[i]
		assert.Equal(t, h.Symbol, g.Symbol)
		assert.Equal(t, h.Quantity, g.Quantity)
		assert.True(t, h.AvgCost.Equal(g.AvgCost), "%s avg cost %s != %s", h.Symbol, h.AvgCost, g.AvgCost)
	}

	require.Len(t, got.Ledger.Transactions, len(want.Ledger.Transactions))
	for i, tx := range want.Ledger.Transactions {
		g := got.Ledger.Transactions[i]
		assert.Equal(t, tx.ID, g.ID)
		assert.Equal(t, tx.Side, g.Side)
		assert.Equal(t, tx.Symbol, g.Symbol)
		assert.Equal(t, tx.Quantity, g.Quantity)
		assert.True(t, tx.Price.Equal(g.Price))
		assert.True(t, tx.Total.Equal(g.Total))
		assert.True(t, tx.RealizedPL.Equal(g.RealizedPL))
		assert.True(t, tx.Time.Equal(g.Time), "time %v != %v", tx.Time, g.Time)
	}

	require.Len(t, got.Orders, len(want.Orders))
	for i, o := range want.Orders {
		g := got.Orders[i]
		assert.Equal(t, o.ID, g.ID)
		assert.Equal(t, o.PortfolioID, g.PortfolioID)
		assert.Equal(t, o.Side, g.Side)
		assert.Equal(t, o.Status, g.Status)
		assert.Equal(t, o.Quantity, g.Quantity)
		assert.Equal(t, o.TargetPrice, g.TargetPrice)
		if o.ExpiresAt == nil {
			assert.Nil(t, g.ExpiresAt)
		} else {
			require.NotNil(t, g.ExpiresAt)
			assert.True(t, o.ExpiresAt.Equal(*g.ExpiresAt))
		}
	}
}

func TestStoresRoundTripRecord(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"sqlite": func(t *testing.T) Store { return newSQLite(t) },
		"memory": func(t *testing.T) Store { return NewMemory(0) },
	}
	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()
			want := sampleRecord(t)

			require.NoError(t, s.Save(ctx, "key-1", want))
			got, err := s.Load(ctx, "key-1")
			require.NoError(t, err)
			assertRecordEqual(t, want, got)

			// saving again replaces rather than appends
			want.Ledger.Transactions = want.Ledger.Transactions[:1]
			want.Orders = nil
			require.NoError(t, s.Save(ctx, "key-1", want))
			got, err = s.Load(ctx, "key-1")
			require.NoError(t, err)
			assertRecordEqual(t, want, got)
		})
	}
}

func TestLoadMissingKey(t *testing.T) {
	for name, s := range map[string]Store{"sqlite": newSQLite(t), "memory": NewMemory(0)} {
		t.Run(name, func(t *testing.T) {
			_, err := s.Load(context.Background(), "nobody")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNotFound)

			var perr *PersistenceError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, "load", perr.Op)
			assert.Equal(t, "nobody", perr.Key)
		})
	}
}

func TestRecordRestoresIntoPortfolio(t *testing.T) {
	j := newSQLite(t)
	ctx := context.Background()
	rec := sampleRecord(t)
	require.NoError(t, j.Save(ctx, "key-1", rec))

	got, err := j.Load(ctx, "key-1")
	require.NoError(t, err)

	pf := ledger.New("key-1", decimal.Zero)
	require.NoError(t, pf.Restore(got.Ledger))
	h, ok := pf.Holding("AAPL")
	require.True(t, ok)
	assert.Equal(t, int64(6), h.Quantity)

	m := orders.NewManager(time.Now)
	require.NoError(t, m.Restore(got.Orders))
	assert.Len(t, m.List("key-1"), 1)
}

func TestMemoryCopiesOnSave(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()
	rec := sampleRecord(t)
	require.NoError(t, m.Save(ctx, "k", rec))

	rec.Ledger.Holdings[0].Quantity = 999
	*rec.Orders[0].ExpiresAt = time.Time{}

	got, err := m.Load(ctx, "k")
	require.NoError(t, err)
	assert.NotEqual(t, int64(999), got.Ledger.Holdings[0].Quantity)
	assert.False(t, got.Orders[0].ExpiresAt.IsZero())
}

func TestMarketRoundTrip(t *testing.T) {
	u, err := market.NewUniverse(market.DefaultInstruments...)
	require.NoError(t, err)
	u.Nudge([]string{"AAPL"}, 0.2)
	want := u.Snapshot()

	for name, s := range map[string]MarketStore{"sqlite": newSQLite(t), "memory": NewMemory(0)} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			empty, err := s.LoadMarket(ctx)
			require.NoError(t, err)
			assert.Empty(t, empty)

			require.NoError(t, s.SaveMarket(ctx, want))
			got, err := s.LoadMarket(ctx)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestListTransactionsFilters(t *testing.T) {
	j := newSQLite(t)
	ctx := context.Background()
	rec := sampleRecord(t)
	require.NoError(t, j.Save(ctx, "key-1", rec))

	tests := []struct {
		name   string
		filter ledger.Filter
		want   int
	}{
		{"all", ledger.Filter{}, 3},
		{"symbol", ledger.Filter{Symbol: "AAPL"}, 2},
		{"side", ledger.Filter{Side: ledger.Sell}, 1},
		{"symbol and side", ledger.Filter{Symbol: "MSFT", Side: ledger.Sell}, 0},
		{"since", ledger.Filter{Since: t0.Add(2 * time.Minute)}, 2},
		{"until exclusive", ledger.Filter{Until: t0.Add(2 * time.Minute)}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txs, err := j.ListTransactions(ctx, "key-1", tt.filter)
			require.NoError(t, err)
			assert.Len(t, txs, tt.want)
		})
	}

	other, err := j.ListTransactions(ctx, "someone-else", ledger.Filter{})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestRecordNews(t *testing.T) {
	j := newSQLite(t)
	ctx := context.Background()
	for i := range 3 {
		require.NoError(t, j.RecordNews(ctx, news.Item{
			Headline: fmt.Sprintf("headline %d", i),
			Scope:    news.Company,
			Symbol:   "AAPL",
			Impact:   0.1,
			Affected: []string{"AAPL"},
			Source:   news.SourceTemplate,
			Time:     t0.Add(time.Duration(i) * time.Second),
		}))
	}

	got, err := j.RecentNews(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "headline 2", got[0].Headline)
	assert.Equal(t, news.Company, got[0].Scope)
	assert.True(t, t0.Add(2*time.Second).Equal(got[0].Time))

	m := NewMemory(2)
	for i := range 3 {
		require.NoError(t, m.RecordNews(ctx, news.Item{Headline: fmt.Sprintf("h%d", i)}))
	}
	kept := m.News()
	require.Len(t, kept, 2)
	assert.Equal(t, "h1", kept[0].Headline)
}

func TestWriteTransactionsCSV(t *testing.T) {
	rec := sampleRecord(t)
	var buf bytes.Buffer
	require.NoError(t, WriteTransactionsCSV(&buf, rec.Ledger.Transactions))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"BUY", "AAPL", "10", "150.00", "1500.00", "0.00"}, rows[1][2:])
	assert.Equal(t, []string{"SELL", "AAPL", "4", "160.00", "640.00", "40.00"}, rows[3][2:])
	assert.Equal(t, t0.Add(time.Minute).Format(time.RFC3339), rows[1][1])
}

func TestFormatTransactionOrg(t *testing.T) {
	rec := sampleRecord(t)
	sell := rec.Ledger.Transactions[2]

	out := FormatTransactionOrg(sell)
	assert.True(t, strings.HasPrefix(out, "** SELL 4 AAPL ("))
	assert.Contains(t, out, ":ID: "+sell.ID+"\n")
	assert.Contains(t, out, ":PRICE: 160.00\n")
	assert.Contains(t, out, ":REALIZED_PL: 40.00\n")
	assert.Contains(t, out, ":END:\n")

	buy := FormatTransactionOrg(rec.Ledger.Transactions[0])
	assert.NotContains(t, buy, "REALIZED_PL")

	all := FormatTransactionsOrg(rec.Ledger.Transactions)
	assert.Equal(t, 3, strings.Count(all, ":PROPERTIES:"))
	assert.Empty(t, FormatTransactionsOrg(nil))
}

func TestPersistenceErrorMessage(t *testing.T) {
	err := wrap("save", "k", errors.New("disk full"))
	assert.EqualError(t, err, "persistence save k: disk full")
	assert.EqualError(t, wrap("record news", "", errors.New("x")), "persistence record news: x")
	assert.NoError(t, wrap("save", "k", nil))
}

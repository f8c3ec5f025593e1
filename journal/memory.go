package journal

import (
	"context"
	"slices"
	"sync"

	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/news"
	"github.com/rustyeddy/papertrade/orders"
)

// Memory is a Store, MarketStore and NewsLog kept in process memory.
// Saved values are copied so callers cannot alias them.
type Memory struct {
	mu          sync.RWMutex
	records     map[string]Record
	instruments []market.Instrument
	news        []news.Item
	maxNews     int
}

// NewMemory returns an empty store keeping at most maxNews items (0 keeps all).
func NewMemory(maxNews int) *Memory {
	return &Memory{
		records: make(map[string]Record),
		maxNews: maxNews,
	}
}

func (m *Memory) Load(_ context.Context, key string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[key]
	if !ok {
		return Record{}, wrap("load", key, ErrNotFound)
	}
	return copyRecord(rec), nil
}

func (m *Memory) Save(_ context.Context, key string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = copyRecord(rec)
	return nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) LoadMarket(context.Context) ([]market.Instrument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyInstruments(m.instruments), nil
}

func (m *Memory) SaveMarket(_ context.Context, instruments []market.Instrument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instruments = copyInstruments(instruments)
	return nil
}

func (m *Memory) RecordNews(_ context.Context, item news.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item.Affected = slices.Clone(item.Affected)
	m.news = append(m.news, item)
	if m.maxNews > 0 && len(m.news) > m.maxNews {
		m.news = m.news[len(m.news)-m.maxNews:]
	}
	return nil
}

// News returns the kept items, oldest first.
func (m *Memory) News() []news.Item {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.news)
}

func copyRecord(rec Record) Record {
	return Record{
		Ledger: ledger.Snapshot{
			Currency:       rec.Ledger.Currency,
			Cash:           rec.Ledger.Cash,
			InitialBalance: rec.Ledger.InitialBalance,
			Holdings:       slices.Clone(rec.Ledger.Holdings),
			Transactions:   slices.Clone(rec.Ledger.Transactions),
		},
		Orders: copyOrders(rec.Orders),
	}
}

func copyOrders(in []orders.Order) []orders.Order {
	out := slices.Clone(in)
	for i := range out {
		if out[i].ExpiresAt != nil {
			t := *out[i].ExpiresAt
			out[i].ExpiresAt = &t
		}
	}
	return out
}

func copyInstruments(in []market.Instrument) []market.Instrument {
	out := slices.Clone(in)
	for i := range out {
		out[i].History = slices.Clone(out[i].History)
	}
	return out
}

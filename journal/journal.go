package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/news"
	"github.com/rustyeddy/papertrade/orders"
)

var ErrNotFound = errors.New("no saved portfolio")

// Record is everything saved for one user: the ledger and its limit orders.
type Record struct {
	Ledger ledger.Snapshot
	Orders []orders.Order
}

// Store loads and saves user records.
type Store interface {
	Load(ctx context.Context, key string) (Record, error)
	Save(ctx context.Context, key string, rec Record) error
	Close() error
}

// MarketStore persists instrument state between runs.
type MarketStore interface {
	LoadMarket(ctx context.Context) ([]market.Instrument, error)
	SaveMarket(ctx context.Context, instruments []market.Instrument) error
}

// NewsLog keeps emitted news items.
type NewsLog interface {
	RecordNews(ctx context.Context, item news.Item) error
}

// PersistenceError wraps any store failure. The in-memory state of the
// caller is unaffected by it.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("persistence %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Key: key, Err: err}
}

var (
	_ Store       = (*SQLite)(nil)
	_ MarketStore = (*SQLite)(nil)
	_ NewsLog     = (*SQLite)(nil)
	_ Store       = (*Memory)(nil)
	_ MarketStore = (*Memory)(nil)
	_ NewsLog     = (*Memory)(nil)
)

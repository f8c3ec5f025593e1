package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/news"
	"github.com/rustyeddy/papertrade/orders"
)

// SQLite stores records, market state and news in one SQLite database.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, wrap("open", path, err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, wrap("schema", path, err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

// Save replaces everything stored under key with rec in one transaction.
func (j *SQLite) Save(ctx context.Context, key string, rec Record) error {
	return wrap("save", key, j.inTx(ctx, func(tx *sql.Tx) error {
		s := rec.Ledger
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO portfolios (key, currency, cash, initial_balance, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				currency = excluded.currency,
				cash = excluded.cash,
				initial_balance = excluded.initial_balance,
				updated_at = excluded.updated_at`,
			key, s.Currency, s.Cash, s.InitialBalance, time.Now().UTC(),
		); err != nil {
			return err
		}

		for _, table := range []string{"holdings", "transactions", "limit_orders"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE portfolio_key = ?`, key); err != nil {
				return err
			}
		}

		for _, h := range s.Holdings {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO holdings (portfolio_key, symbol, quantity, avg_cost)
				VALUES (?, ?, ?, ?)`,
				key, h.Symbol, h.Quantity, h.AvgCost,
			); err != nil {
				return err
			}
		}

		for _, t := range s.Transactions {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO transactions
				(id, portfolio_key, side, symbol, quantity, price, total, realized_pl, time)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				t.ID, key, string(t.Side), t.Symbol, t.Quantity, t.Price, t.Total, t.RealizedPL, t.Time.UTC(),
			); err != nil {
				return err
			}
		}

		for _, o := range rec.Orders {
			var expires any
			if o.ExpiresAt != nil {
				expires = o.ExpiresAt.UTC()
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO limit_orders
				(id, portfolio_key, side, symbol, quantity, target_price, expires_at, status,
				 created_at, updated_at, execution_price, total_value, transaction_id, reason)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				o.ID, key, string(o.Side), o.Symbol, o.Quantity, o.TargetPrice, expires, string(o.Status),
				o.CreatedAt.UTC(), o.UpdatedAt.UTC(), o.ExecutionPrice, o.TotalValue, o.TransactionID, o.Reason,
			); err != nil {
				return err
			}
		}
		return nil
	}))
}

// Load reads the record saved under key. A missing key yields ErrNotFound.
func (j *SQLite) Load(ctx context.Context, key string) (Record, error) {
	var rec Record
	s := &rec.Ledger

	err := j.db.QueryRowContext(ctx, `
		SELECT currency, cash, initial_balance FROM portfolios WHERE key = ?`, key,
	).Scan(&s.Currency, &s.Cash, &s.InitialBalance)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, wrap("load", key, ErrNotFound)
	}
	if err != nil {
		return Record{}, wrap("load", key, err)
	}

	if s.Holdings, err = j.holdings(ctx, key); err != nil {
		return Record{}, wrap("load holdings", key, err)
	}
	if s.Transactions, err = j.ListTransactions(ctx, key, ledger.Filter{}); err != nil {
		return Record{}, wrap("load transactions", key, err)
	}
	if rec.Orders, err = j.orders(ctx, key); err != nil {
		return Record{}, wrap("load orders", key, err)
	}
	return rec, nil
}

func (j *SQLite) holdings(ctx context.Context, key string) ([]ledger.Holding, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT symbol, quantity, avg_cost FROM holdings
		WHERE portfolio_key = ? ORDER BY symbol`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Holding
	for rows.Next() {
		var h ledger.Holding
		if err := rows.Scan(&h.Symbol, &h.Quantity, &h.AvgCost); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (j *SQLite) orders(ctx context.Context, key string) ([]orders.Order, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, side, symbol, quantity, target_price, expires_at, status,
		       created_at, updated_at, execution_price, total_value, transaction_id, reason
		FROM limit_orders WHERE portfolio_key = ? ORDER BY id`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.Order
	for rows.Next() {
		var (
			o       orders.Order
			side    string
			status  string
			expires sql.NullTime
		)
		if err := rows.Scan(&o.ID, &side, &o.Symbol, &o.Quantity, &o.TargetPrice, &expires, &status,
			&o.CreatedAt, &o.UpdatedAt, &o.ExecutionPrice, &o.TotalValue, &o.TransactionID, &o.Reason,
		); err != nil {
			return nil, err
		}
		o.PortfolioID = key
		o.Side = ledger.Side(side)
		o.Status = orders.Status(status)
		if expires.Valid {
			t := expires.Time
			o.ExpiresAt = &t
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SaveMarket replaces the stored instrument set.
func (j *SQLite) SaveMarket(ctx context.Context, instruments []market.Instrument) error {
	return wrap("save market", "", j.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM instruments`); err != nil {
			return err
		}
		for i, inst := range instruments {
			hist, err := json.Marshal(inst.History)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO instruments
				(symbol, position, company, sector, price, previous_close, open, volatility, sentiment, history)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				inst.Symbol, i, inst.Company, inst.Sector, inst.Price, inst.PreviousClose,
				inst.Open, inst.Volatility, inst.Sentiment, string(hist),
			); err != nil {
				return err
			}
		}
		return nil
	}))
}

// LoadMarket returns the stored instruments in their saved order, or none.
func (j *SQLite) LoadMarket(ctx context.Context) ([]market.Instrument, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT symbol, company, sector, price, previous_close, open, volatility, sentiment, history
		FROM instruments ORDER BY position`)
	if err != nil {
		return nil, wrap("load market", "", err)
	}
	defer rows.Close()

	var out []market.Instrument
	for rows.Next() {
		var (
			inst market.Instrument
			hist string
		)
		if err := rows.Scan(&inst.Symbol, &inst.Company, &inst.Sector, &inst.Price, &inst.PreviousClose,
			&inst.Open, &inst.Volatility, &inst.Sentiment, &hist); err != nil {
			return nil, wrap("load market", "", err)
		}
		if err := json.Unmarshal([]byte(hist), &inst.History); err != nil {
			return nil, wrap("load market", inst.Symbol, err)
		}
		out = append(out, inst)
	}
	return out, wrap("load market", "", rows.Err())
}

func (j *SQLite) RecordNews(ctx context.Context, item news.Item) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO news (time, headline, scope, symbol, sector, impact, source)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.Time.UTC(), item.Headline, string(item.Scope), item.Symbol, item.Sector, item.Impact, item.Source,
	)
	return wrap("record news", "", err)
}

func (j *SQLite) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

package journal

import (
	"context"
	"strings"

	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/news"
)

// ListTransactions returns the stored trade log of key filtered by f,
// oldest first.
func (j *SQLite) ListTransactions(ctx context.Context, key string, f ledger.Filter) ([]ledger.Transaction, error) {
	var (
		where = []string{"portfolio_key = ?"}
		args  = []any{key}
	)
	if f.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, f.Symbol)
	}
	if f.Side != "" {
		where = append(where, "side = ?")
		args = append(args, string(f.Side))
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, side, symbol, quantity, price, total, realized_pl, time
		FROM transactions
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY id ASC`, args...)
	if err != nil {
		return nil, wrap("list transactions", key, err)
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		var (
			tx   ledger.Transaction
			side string
		)
		if err := rows.Scan(
			&tx.ID,
			&side,
			&tx.Symbol,
			&tx.Quantity,
			&tx.Price,
			&tx.Total,
			&tx.RealizedPL,
			&tx.Time,
		); err != nil {
			return nil, wrap("list transactions", key, err)
		}
		tx.Side = ledger.Side(side)
		// the time window is checked here; stored timestamps are text
		if f.Match(tx) {
			out = append(out, tx)
		}
	}
	return out, wrap("list transactions", key, rows.Err())
}

// RecentNews returns up to limit news items, newest first. Affected symbols
// are not stored.
func (j *SQLite) RecentNews(ctx context.Context, limit int) ([]news.Item, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT time, headline, scope, symbol, sector, impact, source
		FROM news
		ORDER BY rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, wrap("recent news", "", err)
	}
	defer rows.Close()

	var out []news.Item
	for rows.Next() {
		var (
			n     news.Item
			scope string
		)
		if err := rows.Scan(&n.Time, &n.Headline, &scope, &n.Symbol, &n.Sector, &n.Impact, &n.Source); err != nil {
			return nil, wrap("recent news", "", err)
		}
		n.Scope = news.Scope(scope)
		out = append(out, n)
	}
	return out, wrap("recent news", "", rows.Err())
}

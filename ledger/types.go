package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// PriceLookup returns the current price of a symbol.
type PriceLookup func(symbol string) (float64, error)

// Holding is a position in one symbol. Quantity is always positive; a
// holding that reaches zero is removed.
type Holding struct {
	Symbol   string          `json:"symbol"`
	Quantity int64           `json:"quantity"`
	AvgCost  decimal.Decimal `json:"avg_cost"`
}

// CostBasis is the total paid for the shares still held.
func (h Holding) CostBasis() decimal.Decimal {
	return h.AvgCost.Mul(decimal.NewFromInt(h.Quantity))
}

// Transaction is an immutable entry of the trade log.
type Transaction struct {
	ID         string          `json:"id"`
	Side       Side            `json:"side"`
	Symbol     string          `json:"symbol"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Total      decimal.Decimal `json:"total"`
	RealizedPL decimal.Decimal `json:"realized_pl"` // sells only
	Time       time.Time       `json:"time"`
}

// Result is the outcome of a buy or sell. A failed Result carries the reason
// in Message and the typed error in Err; state is left untouched.
type Result struct {
	Success     bool
	Message     string
	Transaction *Transaction
	Err         error
}

func failed(err error) Result {
	return Result{Message: err.Error(), Err: err}
}

// HoldingValue is a holding marked at the current price.
type HoldingValue struct {
	Holding
	Price        decimal.Decimal
	MarketValue  decimal.Decimal
	UnrealizedPL decimal.Decimal
}

// Valuation is a point-in-time view of a portfolio.
type Valuation struct {
	Currency       string
	Cash           decimal.Decimal
	InitialBalance decimal.Decimal
	PortfolioValue decimal.Decimal
	TotalAssets    decimal.Decimal
	Earnings       decimal.Decimal
	Holdings       []HoldingValue
}

// Snapshot is the persisted form of a portfolio.
type Snapshot struct {
	Currency       string          `json:"currency"`
	Cash           decimal.Decimal `json:"cash"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	Holdings       []Holding       `json:"holdings"`
	Transactions   []Transaction   `json:"transactions"`
}

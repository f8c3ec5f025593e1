package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/papertrade/ledger"
)

// Status is the lifecycle state of a limit order.
type Status string

const (
	Active    Status = "active"
	Completed Status = "completed"
	Cancelled Status = "cancelled"
	Expired   Status = "expired"
	Failed    Status = "failed"
)

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s != Active
}

const (
	MinQuantity = 1
	MaxQuantity = 100
)

// Request is a user's limit order before it is accepted.
type Request struct {
	Side        ledger.Side
	Symbol      string
	Quantity    int64
	TargetPrice float64
	ExpiresAt   *time.Time
}

// Order is a standing conditional buy or sell.
type Order struct {
	ID          string      `json:"id"`
	PortfolioID string      `json:"portfolio_id"`
	Side        ledger.Side `json:"side"`
	Symbol      string      `json:"symbol"`
	Quantity    int64       `json:"quantity"`
	TargetPrice float64     `json:"target_price"`
	ExpiresAt   *time.Time  `json:"expires_at,omitempty"`
	Status      Status      `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`

	// Set once the order leaves the active state.
	ExecutionPrice decimal.Decimal `json:"execution_price"`
	TotalValue     decimal.Decimal `json:"total_value"`
	TransactionID  string          `json:"transaction_id,omitempty"`
	Reason         string          `json:"reason,omitempty"`
}

// triggered reports whether price satisfies the order's limit. Both sides
// compare in cents, the precision the ledger fills at, so a buy never fills
// above its target and a sell never below.
func (o *Order) triggered(price float64) bool {
	fill, target := ledger.Cents(price), ledger.Cents(o.TargetPrice)
	switch o.Side {
	case ledger.Buy:
		return target.GreaterThanOrEqual(fill)
	case ledger.Sell:
		return target.LessThanOrEqual(fill)
	}
	return false
}

// clone copies o without sharing the expiry.
func (o *Order) clone() Order {
	cp := *o
	if o.ExpiresAt != nil {
		exp := *o.ExpiresAt
		cp.ExpiresAt = &exp
	}
	return cp
}

func (o *Order) expired(now time.Time) bool {
	return o.ExpiresAt != nil && !now.Before(*o.ExpiresAt)
}

// Result is the outcome of Submit or Cancel.
type Result struct {
	Success bool
	Message string
	Order   *Order
	Err     error
}

func rejected(err error) Result {
	return Result{Message: err.Error(), Err: err}
}

// Event reports an order leaving the active state during a tick.
type Event struct {
	Order   Order
	Message string
}

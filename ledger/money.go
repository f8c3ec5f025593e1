package ledger

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a portfolio is created without one.
const DefaultCurrency = money.USD

// FormatMoney renders amount in currency, e.g. "$1,234.50".
func FormatMoney(amount decimal.Decimal, currency string) string {
	if currency == "" {
		currency = DefaultCurrency
	}
	// money.New never returns a nil currency, even for unknown codes.
	frac := money.New(0, currency).Currency().Fraction
	minor := amount.Shift(int32(frac)).Round(0).IntPart()
	return money.New(minor, currency).Display()
}

// Cents rounds a float market price to cents, half away from zero. Trades
// execute at this price.
func Cents(p float64) decimal.Decimal {
	return decimal.NewFromFloat(p).Round(2)
}

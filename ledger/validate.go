package ledger

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseQuantity converts raw user input into a positive share count.
func ParseQuantity(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, invalid("quantity", "required")
	}
	q, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, invalid("quantity", "%q is not a whole number", raw)
	}
	if q <= 0 {
		return 0, invalid("quantity", "must be positive, got %d", q)
	}
	return q, nil
}

// ParsePrice converts raw user input into a positive price.
func ParsePrice(raw string) (float64, error) {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "$"))
	if s == "" {
		return 0, invalid("price", "required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, invalid("price", "%q is not a number", raw)
	}
	if !d.IsPositive() {
		return 0, invalid("price", "must be positive, got %s", d)
	}
	return d.InexactFloat64(), nil
}

// ParseSymbol normalizes a ticker symbol.
func ParseSymbol(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return "", invalid("symbol", "required")
	}
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '.' || r == '-') {
			return "", invalid("symbol", "%q contains %q", raw, r)
		}
	}
	return s, nil
}

// ParseSide converts "buy"/"sell" in any case into a Side.
func ParseSide(raw string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(raw))) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	}
	return "", invalid("side", "%q must be BUY or SELL", raw)
}

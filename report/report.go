// Package report renders portfolio, market and order state as markdown.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/papertrade/indicators"
	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/news"
	"github.com/rustyeddy/papertrade/orders"
)

// Periods of the moving averages shown in the market table.
const (
	SMAPeriod = 5
	EMAPeriod = 10
)

// Portfolio renders the account summary and holdings of v.
func Portfolio(v ledger.Valuation) string {
	m := func(d decimal.Decimal) string { return ledger.FormatMoney(d, v.Currency) }

	var b strings.Builder
	fmt.Fprintf(&b, "# Portfolio\n\n")
	fmt.Fprintln(&b, "| | |")
	fmt.Fprintln(&b, "|:---|---:|")
	fmt.Fprintf(&b, "| Cash | %s |\n", m(v.Cash))
	fmt.Fprintf(&b, "| Holdings | %s |\n", m(v.PortfolioValue))
	fmt.Fprintf(&b, "| **Total assets** | **%s** |\n", m(v.TotalAssets))
	fmt.Fprintf(&b, "| Initial balance | %s |\n", m(v.InitialBalance))
	fmt.Fprintf(&b, "| Earnings | %s |\n", signed(m(v.Earnings), v.Earnings))

	if len(v.Holdings) == 0 {
		fmt.Fprintf(&b, "\nNo holdings.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "\n## Holdings\n\n")
	fmt.Fprintln(&b, "| Symbol | Quantity | Avg cost | Price | Market value | Unrealized |")
	fmt.Fprintln(&b, "|:---|---:|---:|---:|---:|---:|")
	for _, h := range v.Holdings {
		fmt.Fprintf(&b, "| %s | %d | %s | %s | %s | %s |\n",
			h.Symbol,
			h.Quantity,
			m(h.AvgCost),
			m(h.Price),
			m(h.MarketValue),
			signed(m(h.UnrealizedPL), h.UnrealizedPL),
		)
	}
	return b.String()
}

// Market renders instruments with their day move, sentiment and moving
// averages. Averages without enough history are shown as "-". When halted is
// non-nil, instruments it reports as halted are listed with the reason.
func Market(instruments []market.Instrument, halted func(symbol string) error) string {
	sma, ema := indicators.NewMA(SMAPeriod), indicators.NewEMA(EMAPeriod)

	var b strings.Builder
	fmt.Fprintf(&b, "# Market\n\n")
	fmt.Fprintf(&b, "| Symbol | Company | Sector | Price | Change | Sentiment | %s | %s |\n", sma.Name(), ema.Name())
	fmt.Fprintln(&b, "|:---|:---|:---|---:|---:|---:|---:|---:|")
	for _, inst := range instruments {
		fmt.Fprintf(&b, "| %s | %s | %s | %.2f | %+.2f%% | %+.2f | %s | %s |\n",
			inst.Symbol,
			inst.Company,
			inst.Sector,
			inst.Price,
			inst.ChangePercent(),
			inst.Sentiment,
			average(sma, inst.History),
			average(ema, inst.History),
		)
	}

	if halted == nil {
		return b.String()
	}
	var stopped []string
	for _, inst := range instruments {
		if err := halted(inst.Symbol); err != nil {
			stopped = append(stopped, fmt.Sprintf("- **%s** halted: %v", inst.Symbol, err))
		}
	}
	if len(stopped) > 0 {
		fmt.Fprintf(&b, "\n## Halted\n\n%s\n", strings.Join(stopped, "\n"))
	}
	return b.String()
}

func average(ind indicators.Indicator, history []float64) string {
	if len(history) < ind.Warmup() {
		return "-"
	}
	v, ready := indicators.Run(ind, history)
	if !ready {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}

// Transactions renders the trade log, oldest first.
func Transactions(txs []ledger.Transaction, currency string) string {
	m := func(d decimal.Decimal) string { return ledger.FormatMoney(d, currency) }

	var b strings.Builder
	fmt.Fprintf(&b, "# Transactions\n\n")
	if len(txs) == 0 {
		fmt.Fprintf(&b, "No transactions.\n")
		return b.String()
	}
	fmt.Fprintln(&b, "| Time | Side | Symbol | Quantity | Price | Total | Realized |")
	fmt.Fprintln(&b, "|:---|:---|:---|---:|---:|---:|---:|")
	for _, t := range txs {
		realized := ""
		if t.Side == ledger.Sell {
			realized = signed(m(t.RealizedPL), t.RealizedPL)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %d | %s | %s | %s |\n",
			t.Time.Format(time.DateTime),
			t.Side,
			t.Symbol,
			t.Quantity,
			m(t.Price),
			m(t.Total),
			realized,
		)
	}
	return b.String()
}

// Orders renders limit orders in submission order.
func Orders(list []orders.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Limit orders\n\n")
	if len(list) == 0 {
		fmt.Fprintf(&b, "No limit orders.\n")
		return b.String()
	}
	fmt.Fprintln(&b, "| ID | Side | Symbol | Quantity | Target | Expires | Status | Detail |")
	fmt.Fprintln(&b, "|:---|:---|:---|---:|---:|:---|:---|:---|")
	for _, o := range list {
		expires := "-"
		if o.ExpiresAt != nil {
			expires = o.ExpiresAt.Format(time.DateTime)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %d | %.2f | %s | %s | %s |\n",
			o.ID,
			o.Side,
			o.Symbol,
			o.Quantity,
			o.TargetPrice,
			expires,
			o.Status,
			o.Reason,
		)
	}
	return b.String()
}

// News renders news items, most recent first as given.
func News(items []news.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# News\n\n")
	if len(items) == 0 {
		fmt.Fprintf(&b, "No news.\n")
		return b.String()
	}
	for _, n := range items {
		target := string(n.Scope)
		switch {
		case n.Symbol != "":
			target = n.Symbol
		case n.Sector != "":
			target = n.Sector
		}
		fmt.Fprintf(&b, "- %s **%s** (%s, %+.2f)\n", n.Time.Format(time.TimeOnly), n.Headline, target, n.Impact)
	}
	return b.String()
}

// Status combines the portfolio, its active orders and its latest
// transactions into one document.
func Status(v ledger.Valuation, list []orders.Order, recent []ledger.Transaction) string {
	var active []orders.Order
	for _, o := range list {
		if o.Status == orders.Active {
			active = append(active, o)
		}
	}

	var b strings.Builder
	b.WriteString(Portfolio(v))
	b.WriteString("\n")
	b.WriteString(demote(Orders(active)))
	b.WriteString("\n")
	b.WriteString(demote(Transactions(recent, v.Currency)))
	return b.String()
}

// demote turns the leading H1 of a section into an H2.
func demote(s string) string {
	if strings.HasPrefix(s, "# ") {
		return "#" + s
	}
	return s
}

func signed(s string, d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + s
	}
	return s
}

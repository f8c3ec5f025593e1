package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/papertrade/ledger"
)

// FormatTransactionOrg renders a transaction as an Org-mode entry with its
// facts in a PROPERTIES drawer.
func FormatTransactionOrg(t ledger.Transaction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "** %s %d %s (%s)\n", t.Side, t.Quantity, t.Symbol, shortID(t.ID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":ID: %s\n", t.ID)
	fmt.Fprintf(&b, ":SIDE: %s\n", t.Side)
	fmt.Fprintf(&b, ":SYMBOL: %s\n", t.Symbol)
	fmt.Fprintf(&b, ":QUANTITY: %d\n", t.Quantity)
	fmt.Fprintf(&b, ":PRICE: %s\n", t.Price.StringFixed(2))
	fmt.Fprintf(&b, ":TOTAL: %s\n", t.Total.StringFixed(2))
	if t.Side == ledger.Sell {
		fmt.Fprintf(&b, ":REALIZED_PL: %s\n", t.RealizedPL.StringFixed(2))
	}
	fmt.Fprintf(&b, ":TIME: %s\n", t.Time.UTC().Format(time.RFC3339))
	b.WriteString(":END:\n")
	b.WriteString("\n*** Notes\n- \n")
	return b.String()
}

// FormatTransactionsOrg renders several transactions separated by blank lines.
func FormatTransactionsOrg(txs []ledger.Transaction) string {
	var b strings.Builder
	for i, t := range txs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatTransactionOrg(t))
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[len(full)-8:]
}

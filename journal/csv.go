package journal

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/rustyeddy/papertrade/ledger"
)

var csvHeader = []string{"id", "time", "side", "symbol", "quantity", "price", "total", "realized_pl"}

// WriteTransactionsCSV writes txs with a header row.
func WriteTransactionsCSV(w io.Writer, txs []ledger.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, t := range txs {
		err := cw.Write([]string{
			t.ID,
			t.Time.UTC().Format(time.RFC3339),
			string(t.Side),
			t.Symbol,
			strconv.FormatInt(t.Quantity, 10),
			t.Price.StringFixed(2),
			t.Total.StringFixed(2),
			t.RealizedPL.StringFixed(2),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/papertrade/journal"
	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/report"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the transaction history",
	Long: `Show executed trades, oldest first.

Formats:
  table  markdown table (default)
  org    Org-mode headings with a properties drawer per trade
  csv    comma separated values for spreadsheets

Examples:
  papertrader history --symbol AAPL
  papertrader history --side sell --since 2026-01-01 --format csv > sells.csv`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var (
	historySymbol string
	historySide   string
	historySince  string
	historyUntil  string
	historyFormat string
)

func init() {
	rootCmd.AddCommand(historyCmd)
	f := historyCmd.Flags()
	f.StringVar(&historySymbol, "symbol", "", "only this symbol")
	f.StringVar(&historySide, "side", "", "only buy or sell")
	f.StringVar(&historySince, "since", "", "only trades at or after this date or RFC 3339 time")
	f.StringVar(&historyUntil, "until", "", "only trades before this date or RFC 3339 time")
	f.StringVarP(&historyFormat, "format", "f", "table", "output format: table, org, csv")
}

// txQuerier is implemented by stores that can filter transactions themselves.
type txQuerier interface {
	ListTransactions(ctx context.Context, key string, f ledger.Filter) ([]ledger.Transaction, error)
}

func historyFilter() (ledger.Filter, error) {
	var (
		f   ledger.Filter
		err error
	)
	if historySymbol != "" {
		if f.Symbol, err = ledger.ParseSymbol(historySymbol); err != nil {
			return f, err
		}
	}
	if historySide != "" {
		if f.Side, err = ledger.ParseSide(historySide); err != nil {
			return f, err
		}
	}
	if f.Since, err = parseWhen("since", historySince); err != nil {
		return f, err
	}
	if f.Until, err = parseWhen("until", historyUntil); err != nil {
		return f, err
	}
	return f, nil
}

func parseWhen(flag, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateTime, time.DateOnly} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("--%s: cannot parse %q as a date or time", flag, s)
}

func runHistory(cmd *cobra.Command, args []string) error {
	f, err := historyFilter()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	var txs []ledger.Transaction
	if q, ok := a.store.(txQuerier); ok {
		if txs, err = q.ListTransactions(ctx, a.key, f); err != nil {
			return err
		}
	} else {
		seq, err := a.session.TransactionHistory(a.key, f)
		if err != nil {
			return err
		}
		txs = slices.Collect(seq)
	}

	return writeHistory(cmd.OutOrStdout(), txs, cfg.Account.Currency, historyFormat)
}

func writeHistory(w io.Writer, txs []ledger.Transaction, currency, format string) error {
	switch strings.ToLower(format) {
	case "table", "":
		_, err := fmt.Fprint(w, report.Render(report.Transactions(txs, currency), 0))
		return err
	case "org":
		_, err := fmt.Fprint(w, journal.FormatTransactionsOrg(txs))
		return err
	case "csv":
		return journal.WriteTransactionsCSV(w, txs)
	}
	return fmt.Errorf("unknown format %q (want table, org or csv)", format)
}

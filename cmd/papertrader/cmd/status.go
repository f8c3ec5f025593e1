package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/report"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show portfolio value, holdings and open orders",
	Long: `Show the portfolio marked at current prices: cash, holdings with cost
basis and unrealized P&L, active limit orders and the latest transactions.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var (
	statusRaw    bool
	statusRecent int
)

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusRaw, "raw", false, "print markdown without terminal styling")
	statusCmd.Flags().IntVar(&statusRecent, "recent", 5, "number of recent transactions to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	doc, err := statusReport(a, statusRecent)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), render(doc, statusRaw))
	return nil
}

func statusReport(a *app, recent int) (string, error) {
	v, err := a.session.Valuate(a.key)
	if err != nil {
		// holdings without a price are valued at cost; show them anyway
		logger.Warn("valuation incomplete", "err", err)
	}
	seq, err := a.session.TransactionHistory(a.key, ledger.Filter{})
	if err != nil {
		return "", err
	}
	txs := slices.Collect(seq)
	if recent >= 0 && len(txs) > recent {
		txs = txs[len(txs)-recent:]
	}
	return report.Status(v, a.session.Orders(a.key), txs), nil
}

func render(doc string, raw bool) string {
	if raw {
		return doc
	}
	return report.Render(doc, 0)
}

package cmd

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/papertrade/ledger"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the portfolio to a fresh cash balance",
	Long: `Discard all holdings and transactions and start over with a cash balance.
Active limit orders of the portfolio are cancelled.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

var resetBalance string

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().StringVar(&resetBalance, "balance", "", "new starting balance (defaults to account.balance)")
}

func runReset(cmd *cobra.Command, args []string) error {
	balance := decimal.NewFromFloat(cfg.Account.Balance)
	if resetBalance != "" {
		b, err := ledger.ParsePrice(resetBalance)
		if err != nil {
			return fmt.Errorf("balance: %w", err)
		}
		balance = decimal.NewFromFloat(b)
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.session.Reset(a.key, balance); err != nil {
		return err
	}
	if err := a.save(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Portfolio %s reset to %s\n", a.key, ledger.FormatMoney(balance, cfg.Account.Currency))
	return nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/papertrade/ledger"
)

var buyCmd = &cobra.Command{
	Use:   "buy <symbol> <quantity>",
	Short: "Buy shares at the current price",
	Long: `Buy shares of a stock at its current simulated price.

Example:
  papertrader buy AAPL 10`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrade(cmd, ledger.Buy, args)
	},
}

var sellCmd = &cobra.Command{
	Use:   "sell <symbol> <quantity>",
	Short: "Sell shares at the current price",
	Long: `Sell shares of a stock you hold at its current simulated price.

Example:
  papertrader sell AAPL 5`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrade(cmd, ledger.Sell, args)
	},
}

func init() {
	rootCmd.AddCommand(buyCmd)
	rootCmd.AddCommand(sellCmd)
}

func runTrade(cmd *cobra.Command, side ledger.Side, args []string) error {
	symbol, err := ledger.ParseSymbol(args[0])
	if err != nil {
		return err
	}
	qty, err := ledger.ParseQuantity(args[1])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	res := trade(a, side, symbol, qty)
	if !res.Success {
		return res.Err
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Message)
	return a.save(ctx)
}

func trade(a *app, side ledger.Side, symbol string, qty int64) ledger.Result {
	if side == ledger.Buy {
		return a.session.Buy(a.key, symbol, qty)
	}
	return a.session.Sell(a.key, symbol, qty)
}

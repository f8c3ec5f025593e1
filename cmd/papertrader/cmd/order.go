package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/orders"
	"github.com/rustyeddy/papertrade/report"
)

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Manage limit orders",
	Long: `Place, cancel and list standing limit orders.

A buy order fills once the price drops to or below its target, a sell order
once the price rises to or above it. Orders are checked on every tick of
"papertrader run".

Examples:
  papertrader order submit --side buy --symbol AAPL --qty 3 --price 150
  papertrader order submit --side sell --symbol AAPL --qty 3 --price 190 --expires 2h
  papertrader order cancel <order-id>
  papertrader order list`,
}

var orderSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Place a limit order",
	Args:  cobra.NoArgs,
	RunE:  runOrderSubmit,
}

var orderCancelCmd = &cobra.Command{
	Use:   "cancel <order-id>",
	Short: "Cancel an active limit order",
	Args:  cobra.ExactArgs(1),
	RunE:  runOrderCancel,
}

var orderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List limit orders",
	Args:  cobra.NoArgs,
	RunE:  runOrderList,
}

var (
	orderSide    string
	orderSymbol  string
	orderQty     string
	orderPrice   string
	orderExpires time.Duration
	orderActive  bool
)

func init() {
	rootCmd.AddCommand(orderCmd)
	orderCmd.AddCommand(orderSubmitCmd)
	orderCmd.AddCommand(orderCancelCmd)
	orderCmd.AddCommand(orderListCmd)

	f := orderSubmitCmd.Flags()
	f.StringVar(&orderSide, "side", "", "buy or sell (required)")
	f.StringVar(&orderSymbol, "symbol", "", "stock symbol (required)")
	f.StringVar(&orderQty, "qty", "", "number of shares, 1 to 100 (required)")
	f.StringVar(&orderPrice, "price", "", "target price (required)")
	f.DurationVar(&orderExpires, "expires", 0, "expire the order after this long (0 never expires)")
	orderSubmitCmd.MarkFlagRequired("side")
	orderSubmitCmd.MarkFlagRequired("symbol")
	orderSubmitCmd.MarkFlagRequired("qty")
	orderSubmitCmd.MarkFlagRequired("price")

	orderListCmd.Flags().BoolVar(&orderActive, "active", false, "only show active orders")
}

func parseOrderRequest(now time.Time) (orders.Request, error) {
	var (
		req orders.Request
		err error
	)
	if req.Side, err = ledger.ParseSide(orderSide); err != nil {
		return req, err
	}
	if req.Symbol, err = ledger.ParseSymbol(orderSymbol); err != nil {
		return req, err
	}
	if req.Quantity, err = ledger.ParseQuantity(orderQty); err != nil {
		return req, err
	}
	if req.TargetPrice, err = ledger.ParsePrice(orderPrice); err != nil {
		return req, err
	}
	if orderExpires > 0 {
		exp := now.Add(orderExpires)
		req.ExpiresAt = &exp
	}
	return req, nil
}

func runOrderSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	req, err := parseOrderRequest(a.session.Now())
	if err != nil {
		return err
	}
	res := a.session.SubmitLimitOrder(a.key, req)
	if !res.Success {
		return res.Err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (id %s)\n", res.Message, res.Order.ID)
	return a.save(ctx)
}

func runOrderCancel(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	o, ok := a.session.Order(args[0])
	if !ok || o.PortfolioID != a.key {
		return fmt.Errorf("%w: %s", orders.ErrNotFound, args[0])
	}
	res := a.session.CancelLimitOrder(args[0])
	if !res.Success {
		return res.Err
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Message)
	return a.save(ctx)
}

func runOrderList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	list := a.session.Orders(a.key)
	if orderActive {
		var active []orders.Order
		for _, o := range list {
			if o.Status == orders.Active {
				active = append(active, o)
			}
		}
		list = active
	}
	fmt.Fprint(cmd.OutOrStdout(), report.Render(report.Orders(list), 0))
	return nil
}

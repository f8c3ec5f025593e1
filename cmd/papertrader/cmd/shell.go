package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/notify"
	"github.com/rustyeddy/papertrade/orders"
	"github.com/rustyeddy/papertrade/report"
	"github.com/rustyeddy/papertrade/sim"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Trade interactively",
	Long: `Open an interactive prompt on one simulator session. With --live the
market ticks in the background while you trade; otherwise use "tick".

Type "help" at the prompt for the list of commands.`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

var shellLive bool

func init() {
	rootCmd.AddCommand(shellCmd)
	shellCmd.Flags().BoolVar(&shellLive, "live", false, "tick the market in the background")
}

const shellHelp = `Commands:
  buy SYMBOL QTY                         buy at the current price
  sell SYMBOL QTY                        sell at the current price
  limit buy|sell SYMBOL QTY PRICE [TTL]  place a limit order, TTL like 30m
  cancel ORDER-ID                        cancel a limit order
  orders                                 list limit orders
  status                                 portfolio, open orders, recent trades
  market                                 prices and sentiment
  history [SYMBOL]                       transaction history
  tick [N]                               advance the market N ticks (default 1)
  save                                   write the session to the store
  help                                   this text
  quit                                   save and leave
`

// shell runs prompt commands against one app.
type shell struct {
	a   *app
	out io.Writer
}

var errQuit = errors.New("quit")

func runShell(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := &syncWriter{w: cmd.OutOrStdout()}
	sink := notify.NewAsync(notify.Func(func(msg string) { fmt.Fprintf(out, "* %s\n", msg) }), 64)
	defer sink.Close()

	a, err := openApp(ctx, appOptions{sink: sink, generator: true})
	if err != nil {
		return err
	}
	defer a.close()
	sh := &shell{a: a, out: out}

	if shellLive {
		interval, err := cfg.Simulation.Interval()
		if err != nil {
			return err
		}
		sched := sim.NewScheduler(a.session, interval, sim.WithSchedulerLogger(logger))
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyFile := filepath.Join(os.TempDir(), "papertrader-history")
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyFile); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Fprintf(out, "papertrader shell, portfolio %s. Type help for commands.\n", a.key)
	for {
		input, err := line.Prompt("> ")
		if err != nil {
			if err == liner.ErrPromptAborted {
				continue
			}
			if err == io.EOF {
				break
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		err = sh.exec(ctx, input)
		if errors.Is(err, errQuit) {
			break
		}
		if err != nil {
			fmt.Fprintln(out, errorLine(err))
		}
	}
	return a.save(ctx)
}

func (sh *shell) exec(ctx context.Context, input string) error {
	fields := strings.Fields(input)
	name, args := strings.ToLower(fields[0]), fields[1:]
	s := sh.a.session

	switch name {
	case "help", "?":
		fmt.Fprint(sh.out, shellHelp)
	case "quit", "exit":
		return errQuit
	case "buy", "sell":
		if len(args) != 2 {
			return fmt.Errorf("usage: %s SYMBOL QTY", name)
		}
		side, _ := ledger.ParseSide(name)
		symbol, err := ledger.ParseSymbol(args[0])
		if err != nil {
			return err
		}
		qty, err := ledger.ParseQuantity(args[1])
		if err != nil {
			return err
		}
		res := trade(sh.a, side, symbol, qty)
		if !res.Success {
			return res.Err
		}
		fmt.Fprintln(sh.out, res.Message)
	case "limit":
		req, err := limitRequest(args, s.Now())
		if err != nil {
			return err
		}
		res := s.SubmitLimitOrder(sh.a.key, req)
		if !res.Success {
			return res.Err
		}
		fmt.Fprintf(sh.out, "%s (id %s)\n", res.Message, res.Order.ID)
	case "cancel":
		if len(args) != 1 {
			return errors.New("usage: cancel ORDER-ID")
		}
		if o, ok := s.Order(args[0]); !ok || o.PortfolioID != sh.a.key {
			return fmt.Errorf("%w: %s", orders.ErrNotFound, args[0])
		}
		res := s.CancelLimitOrder(args[0])
		if !res.Success {
			return res.Err
		}
		fmt.Fprintln(sh.out, res.Message)
	case "orders":
		fmt.Fprint(sh.out, report.Orders(s.Orders(sh.a.key)))
	case "status":
		doc, err := statusReport(sh.a, 5)
		if err != nil {
			return err
		}
		fmt.Fprint(sh.out, doc)
	case "market":
		fmt.Fprint(sh.out, report.Market(sh.a.universe.Snapshot(), sh.a.universe.Halted))
	case "history":
		var f ledger.Filter
		if len(args) > 0 {
			symbol, err := ledger.ParseSymbol(args[0])
			if err != nil {
				return err
			}
			f.Symbol = symbol
		}
		seq, err := s.TransactionHistory(sh.a.key, f)
		if err != nil {
			return err
		}
		fmt.Fprint(sh.out, report.Transactions(slices.Collect(seq), cfg.Account.Currency))
	case "tick":
		n := 1
		if len(args) > 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v <= 0 {
				return fmt.Errorf("tick count must be a positive number, got %q", args[0])
			}
			n = v
		}
		for range n {
			printTick(sh.out, s.Tick(ctx))
		}
	case "save":
		if err := sh.a.save(ctx); err != nil {
			return err
		}
		fmt.Fprintln(sh.out, "saved")
	default:
		return fmt.Errorf("unknown command %q, type help", name)
	}
	return nil
}

// errorLine formats a failed command. Input mistakes point at help, anything
// else is reported as an error.
func errorLine(err error) string {
	if ledger.IsValidation(err) {
		return fmt.Sprintf("%v (type help for usage)", err)
	}
	return fmt.Sprintf("error: %v", err)
}

// limitRequest parses "buy|sell SYMBOL QTY PRICE [TTL]".
func limitRequest(args []string, now time.Time) (orders.Request, error) {
	var req orders.Request
	if len(args) < 4 || len(args) > 5 {
		return req, errors.New("usage: limit buy|sell SYMBOL QTY PRICE [TTL]")
	}
	var err error
	if req.Side, err = ledger.ParseSide(args[0]); err != nil {
		return req, err
	}
	if req.Symbol, err = ledger.ParseSymbol(args[1]); err != nil {
		return req, err
	}
	if req.Quantity, err = ledger.ParseQuantity(args[2]); err != nil {
		return req, err
	}
	if req.TargetPrice, err = ledger.ParsePrice(args[3]); err != nil {
		return req, err
	}
	if len(args) == 5 {
		ttl, err := time.ParseDuration(args[4])
		if err != nil || ttl <= 0 {
			return req, fmt.Errorf("TTL %q must be a positive duration like 30m", args[4])
		}
		exp := now.Add(ttl)
		req.ExpiresAt = &exp
	}
	return req, nil
}

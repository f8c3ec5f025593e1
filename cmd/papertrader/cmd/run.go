package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/papertrade/notify"
	"github.com/rustyeddy/papertrade/report"
	"github.com/rustyeddy/papertrade/sim"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the market simulation",
	Long: `Run the market: each tick may publish a news item, moves every price and
checks standing limit orders.

By default the market ticks in real time on the configured interval until
interrupted. With --ticks the simulation is fast-forwarded: the given number
of ticks run back to back on a simulated clock.

Examples:
  papertrader run
  papertrader run --interval 1s --serve :8080
  papertrader run --ticks 500`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runTicks    int
	runInterval time.Duration
	runDuration time.Duration
	runServe    string
	runQuiet    bool
	runLogNote  bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	f := runCmd.Flags()
	f.IntVarP(&runTicks, "ticks", "n", 0, "fast-forward this many ticks and exit")
	f.DurationVar(&runInterval, "interval", 0, "tick interval (overrides simulation.tick_interval)")
	f.DurationVar(&runDuration, "duration", 0, "stop a live run after this long")
	f.StringVar(&runServe, "serve", "", "broadcast notifications over websocket on this address")
	f.BoolVarP(&runQuiet, "quiet", "q", false, "only print order and trade notifications")
	f.BoolVar(&runLogNote, "log-notifications", false, "also write notifications to the log")
}

// syncWriter serializes writes from the tick loop and the notifier.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func runRun(cmd *cobra.Command, args []string) error {
	interval := runInterval
	if interval == 0 {
		var err error
		if interval, err = cfg.Simulation.Interval(); err != nil {
			return err
		}
	}
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", interval)
	}
	if runTicks < 0 {
		return fmt.Errorf("ticks must not be negative, got %d", runTicks)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runDuration)
		defer cancel()
	}

	out := &syncWriter{w: cmd.OutOrStdout()}
	sinks := printSinks(out)
	if runServe != "" {
		hub := notify.NewHub(logger)
		sinks = append(sinks, hub)
		go func() {
			if err := notify.Serve(ctx, hub, runServe); err != nil {
				logger.Error("notification server", "addr", runServe, "err", err)
			}
		}()
	}
	sink := notify.NewAsync(sinks, 256)

	var clock sim.Clock = sim.SystemClock{}
	var manual *sim.ManualClock
	if runTicks > 0 {
		manual = sim.NewManualClock(time.Now())
		clock = manual
	}

	a, err := openApp(ctx, appOptions{clock: clock, sink: sink, generator: true})
	if err != nil {
		sink.Close()
		return err
	}
	defer a.close()

	sched := sim.NewScheduler(a.session, interval,
		sim.WithSchedulerLogger(logger),
		sim.OnTick(func(r sim.TickReport) { printTick(out, r) }),
	)

	if manual != nil {
		err = fastForward(ctx, sched, manual, interval, runTicks)
	} else {
		err = live(ctx, sched)
	}
	// deliver queued notifications before the summary
	sink.Close()
	if err != nil {
		return err
	}

	if err := a.save(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	v, err := a.session.Valuate(a.key)
	if err != nil {
		logger.Warn("valuation incomplete", "err", err)
	}
	fmt.Fprint(out, report.Render(report.Portfolio(v), 0))
	return nil
}

// printSinks returns the sinks every run writes notifications to.
func printSinks(out io.Writer) notify.Multi {
	sinks := notify.Multi{notify.Func(func(msg string) { fmt.Fprintf(out, "* %s\n", msg) })}
	if runLogNote {
		sinks = append(sinks, notify.Logger{Log: logger})
	}
	return sinks
}

func fastForward(ctx context.Context, sched *sim.Scheduler, clock *sim.ManualClock, interval time.Duration, ticks int) error {
	for i := 0; i < ticks; i++ {
		if err := ctx.Err(); err != nil {
			logger.Info("fast-forward interrupted", "ticks", i)
			return nil
		}
		clock.Advance(interval)
		sched.Step(ctx)
	}
	logger.Info("fast-forward complete", "ticks", ticks, "until", clock.Now())
	return nil
}

func live(ctx context.Context, sched *sim.Scheduler) error {
	if err := sched.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	sched.Stop()
	return nil
}

func printTick(w io.Writer, r sim.TickReport) {
	if r.Halted != nil {
		fmt.Fprintf(w, "%s halted: %v\n", r.Time.Format(time.TimeOnly), r.Halted)
	}
	if runQuiet || r.News == nil {
		return
	}
	fmt.Fprintf(w, "%s [%s %+.2f] %s\n", r.Time.Format(time.TimeOnly), r.News.Scope, r.News.Impact, r.News.Headline)
}

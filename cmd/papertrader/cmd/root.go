package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/papertrade/config"
)

var rootCmd = &cobra.Command{
	Use:   "papertrader",
	Short: "A paper-trading stock market simulator",
	Long: `Papertrader simulates a stock market driven by random price moves and
synthetic news, and lets you trade against a cash balance.

It provides tools for:
  - Running the market tick by tick, live or fast-forwarded
  - Buying and selling at the current price
  - Standing limit orders with optional expiry
  - Portfolio valuation, cost basis and realized P&L
  - Transaction history as tables, Org-mode or CSV

State is kept in a SQLite database between commands.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

var (
	cfgPath   string
	dbPath    string
	portfolio string
	logLevel  string
	logFormat string

	cfg    *config.Config
	logger *slog.Logger
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgPath, "config", "c", "", "config file (YAML or JSON); defaults are used when empty")
	pf.StringVar(&dbPath, "db", "", "SQLite database path (overrides store.path)")
	pf.StringVarP(&portfolio, "portfolio", "p", "", "portfolio key (overrides account.key)")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&logFormat, "log-format", "", "log format: text or json")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if cfgPath == "" {
		cfg = config.Default()
	} else {
		var err error
		if cfg, err = config.LoadFromFile(cfgPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}

	if dbPath != "" {
		cfg.Store.Type = "sqlite"
		cfg.Store.Path = dbPath
	}
	if portfolio != "" {
		cfg.Account.Key = portfolio
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var err error
	logger, err = newLogger(os.Stderr, cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

func newLogger(w io.Writer, lc config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if lc.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(lc.Level))); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

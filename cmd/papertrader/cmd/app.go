package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/papertrade/journal"
	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/news"
	"github.com/rustyeddy/papertrade/notify"
	"github.com/rustyeddy/papertrade/sim"
)

// storage is what the CLI needs from a backing store.
type storage interface {
	journal.Store
	journal.MarketStore
	journal.NewsLog
}

// app is one opened simulator: the session plus the store it was loaded from.
type app struct {
	key      string
	store    storage
	universe *market.Universe
	session  *sim.Session
}

type appOptions struct {
	clock     sim.Clock
	sink      notify.Sink
	generator bool // use the configured external headline generator
}

func openStore() (storage, error) {
	if cfg.Store.Type == "memory" {
		return journal.NewMemory(100), nil
	}
	return journal.NewSQLite(cfg.Store.Path)
}

// openApp builds a session from the config and restores the market and the
// configured portfolio from the store. A portfolio that was never saved is
// opened with the configured balance.
func openApp(ctx context.Context, opts appOptions) (*app, error) {
	store, err := openStore()
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a, err := buildApp(ctx, store, opts)
	if err != nil {
		store.Close()
		return nil, err
	}
	return a, nil
}

func buildApp(ctx context.Context, store storage, opts appOptions) (*app, error) {
	u, err := market.NewUniverse(cfg.MarketInstruments()...)
	if err != nil {
		return nil, fmt.Errorf("instruments: %w", err)
	}

	seed := cfg.Simulation.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rnd := rand.New(rand.NewPCG(seed, seed>>1|1))

	engineCfg, err := cfg.News.EngineConfig()
	if err != nil {
		return nil, err
	}
	newsOpts := []news.Option{news.WithConfig(engineCfg), news.WithLogger(logger)}
	if opts.generator && cfg.News.Generator == "gemini" {
		gen, err := newGenerator(ctx, u)
		if err != nil {
			logger.Warn("headline generator unavailable, using templates", "err", err)
		} else {
			newsOpts = append(newsOpts, news.WithGenerator(gen))
		}
	}

	if opts.clock == nil {
		opts.clock = sim.SystemClock{}
	}
	if opts.sink == nil {
		opts.sink = notify.Discard
	}

	s := sim.NewSession(u, market.NewPriceModel(rnd, cfg.Simulation.HistoryCap), news.NewEngine(u, rnd, newsOpts...),
		sim.WithClock(opts.clock),
		sim.WithSink(opts.sink),
		sim.WithLogger(logger),
		sim.WithNewsLog(store),
		sim.WithPortfolioOptions(
			ledger.WithCurrency(cfg.Account.Currency),
			ledger.WithMaxOrderQuantity(cfg.Simulation.MaxOrderQuantity),
		),
	)

	if _, err := s.LoadMarket(ctx, store); err != nil {
		return nil, fmt.Errorf("load market: %w", err)
	}

	key := cfg.Account.Key
	err = s.Load(ctx, store, key)
	switch {
	case errors.Is(err, journal.ErrNotFound):
		s.OpenPortfolio(key, decimal.NewFromFloat(cfg.Account.Balance))
		logger.Info("opened new portfolio", "key", key, "balance", cfg.Account.Balance)
	case err != nil:
		return nil, fmt.Errorf("load portfolio: %w", err)
	}

	return &app{key: key, store: store, universe: u, session: s}, nil
}

func newGenerator(ctx context.Context, u *market.Universe) (news.Generator, error) {
	apiKey := os.Getenv(cfg.News.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%s is not set", cfg.News.APIKeyEnv)
	}
	gen, err := news.NewGeminiGenerator(ctx, apiKey, cfg.News.Model, u)
	if err != nil {
		return nil, err
	}
	return gen, nil
}

// save writes the market and the portfolio back to the store.
func (a *app) save(ctx context.Context) error {
	if err := a.session.SaveMarket(ctx, a.store); err != nil {
		return err
	}
	return a.session.Save(ctx, a.store, a.key)
}

func (a *app) close() error {
	return a.store.Close()
}

package news

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rustyeddy/papertrade/market"
)

const (
	SourceTemplate  = "template"
	SourceGenerator = "generator"

	// MaxImpact bounds the impact accepted from an external generator.
	MaxImpact = 0.5
)

// Item is one news story and the sentiment change it caused.
type Item struct {
	Headline string    `json:"headline"`
	Scope    Scope     `json:"scope"`
	Symbol   string    `json:"symbol,omitempty"`
	Sector   string    `json:"sector,omitempty"`
	Impact   float64   `json:"impact"`
	Affected []string  `json:"affected"`
	Source   string    `json:"source"`
	Time     time.Time `json:"time"`
}

// Config tunes the engine.
type Config struct {
	// Interval is the minimum time between two stories.
	Interval time.Duration

	// CompanyWeight and SectorWeight are the probabilities of company and
	// sector stories; market stories take the remainder.
	CompanyWeight float64
	SectorWeight  float64

	// MarketDamping scales the impact of market-wide stories.
	MarketDamping float64

	// Decay pulls every sentiment toward zero on each tick.
	Decay float64

	// Timeout bounds one call to the external generator.
	Timeout time.Duration

	// CacheTTL is the minimum time between two external generator calls;
	// stories in between are templated.
	CacheTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:      10 * time.Second,
		CompanyWeight: 0.5,
		SectorWeight:  0.25,
		MarketDamping: 0.7,
		Decay:         0.02,
		Timeout:       3 * time.Second,
		CacheTTL:      time.Minute,
	}
}

// Engine emits news and pushes its impact into instrument sentiment.
type Engine struct {
	cfg      Config
	universe *market.Universe
	rnd      market.RandSource
	gen      Generator
	log      *slog.Logger

	mu       sync.Mutex
	last     time.Time
	lastCall time.Time
	pending  *generated // fetched by Prefetch for the next Tick
}

type Option func(*Engine)

func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithGenerator enables an external headline generator.
func WithGenerator(g Generator) Option {
	return func(e *Engine) { e.gen = g }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEngine returns an engine over u drawing randomness from rnd.
func NewEngine(u *market.Universe, rnd market.RandSource, opts ...Option) *Engine {
	e := &Engine{
		cfg:      DefaultConfig(),
		universe: u,
		rnd:      rnd,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tick decays sentiment and, once per interval, emits a story and applies it.
// It returns nil when no story is due. A headline fetched by Prefetch is
// used instead of calling the generator.
func (e *Engine) Tick(ctx context.Context, now time.Time) *Item {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.universe.Decay(e.cfg.Decay)

	if !e.storyDueLocked(now) {
		return nil
	}
	e.last = now

	item, ok := e.fromGenerator(ctx, now)
	if !ok {
		item, ok = e.fromTemplate(now)
		if !ok {
			return nil
		}
	}

	item.Affected = e.universe.Nudge(e.targets(item), item.Impact)
	e.log.Debug("news",
		slog.String("headline", item.Headline),
		slog.String("scope", string(item.Scope)),
		slog.Float64("impact", item.Impact),
		slog.Int("affected", len(item.Affected)),
		slog.String("source", item.Source))
	return item
}

// Prefetch calls the external generator when a Tick at now would, and keeps
// the headline for that Tick. It lets callers do the slow call without
// holding their own locks.
func (e *Engine) Prefetch(ctx context.Context, now time.Time) {
	e.mu.Lock()
	due := e.gen != nil && e.pending == nil && e.storyDueLocked(now) && e.callDueLocked(now)
	if due {
		e.lastCall = now
	}
	e.mu.Unlock()
	if !due {
		return
	}

	h, err := e.call(ctx)

	e.mu.Lock()
	e.pending = &generated{h, err}
	e.mu.Unlock()
}

func (e *Engine) storyDueLocked(now time.Time) bool {
	return e.last.IsZero() || now.Sub(e.last) >= e.cfg.Interval
}

func (e *Engine) callDueLocked(now time.Time) bool {
	return e.lastCall.IsZero() || now.Sub(e.lastCall) >= e.cfg.CacheTTL
}

func (e *Engine) targets(item *Item) []string {
	switch item.Scope {
	case Company:
		return []string{item.Symbol}
	case Sector:
		return e.universe.InSector(item.Sector)
	}
	return e.universe.Symbols()
}

// fromGenerator takes the prefetched headline, or asks the external
// generator unless it was asked within CacheTTL. Any failure is logged and
// reported as !ok.
func (e *Engine) fromGenerator(ctx context.Context, now time.Time) (*Item, bool) {
	var (
		h   Headline
		err error
	)
	switch {
	case e.pending != nil:
		h, err = e.pending.h, e.pending.err
		e.pending = nil
	case e.gen == nil || !e.callDueLocked(now):
		return nil, false
	default:
		e.lastCall = now
		h, err = e.call(ctx)
	}

	if err == nil {
		var item *Item
		item, err = e.itemFromHeadline(h, now)
		if err == nil {
			return item, true
		}
	}
	e.log.Warn("headline generator failed, using template",
		slog.Any("error", &ExternalServiceError{Err: err}))
	return nil, false
}

type generated struct {
	h   Headline
	err error
}

// call runs the generator under the configured timeout. The tick does not
// wait past the deadline even if the generator ignores its context.
func (e *Engine) call(ctx context.Context) (Headline, error) {
	timeout := e.cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan generated, 1)
	go func() {
		h, err := e.gen.Generate(cctx)
		ch <- generated{h, err}
	}()

	select {
	case r := <-ch:
		return r.h, r.err
	case <-cctx.Done():
		return Headline{}, cctx.Err()
	}
}

func (e *Engine) itemFromHeadline(h Headline, now time.Time) (*Item, error) {
	text := strings.TrimSpace(h.Text)
	if text == "" {
		return nil, errors.New("empty headline")
	}
	if math.IsNaN(h.Impact) || math.IsInf(h.Impact, 0) {
		return nil, fmt.Errorf("impact %v", h.Impact)
	}
	impact := math.Max(-MaxImpact, math.Min(MaxImpact, h.Impact))

	item := &Item{Headline: text, Source: SourceGenerator, Time: now}
	if h.Symbol == "" {
		item.Scope = Market
		item.Impact = impact * e.cfg.MarketDamping
		return item, nil
	}
	inst, ok := e.universe.Get(strings.ToUpper(h.Symbol))
	if !ok {
		return nil, fmt.Errorf("%w: %q", market.ErrUnknownSymbol, h.Symbol)
	}
	item.Scope = Company
	item.Symbol = inst.Symbol
	item.Sector = inst.Sector
	item.Impact = impact
	return item, nil
}

// fromTemplate draws scope, polarity, target and headline locally.
func (e *Engine) fromTemplate(now time.Time) (*Item, bool) {
	item := &Item{Source: SourceTemplate, Time: now}

	switch r := e.rnd.Float64(); {
	case r < e.cfg.CompanyWeight:
		item.Scope = Company
	case r < e.cfg.CompanyWeight+e.cfg.SectorWeight:
		item.Scope = Sector
	default:
		item.Scope = Market
	}
	positive := e.rnd.Float64() < 0.5

	var company string
	switch item.Scope {
	case Company:
		symbols := e.universe.Symbols()
		if len(symbols) == 0 {
			return nil, false
		}
		inst, _ := e.universe.Get(pick(e.rnd, symbols))
		item.Symbol, item.Sector, company = inst.Symbol, inst.Sector, inst.Company
		if company == "" {
			company = inst.Symbol
		}
	case Sector:
		sectors := e.universe.Sectors()
		if len(sectors) == 0 {
			return nil, false
		}
		item.Sector = pick(e.rnd, sectors)
	}

	tpl := pick(e.rnd, Templates(item.Scope, positive))
	item.Headline = strings.NewReplacer(
		"{company}", company,
		"{symbol}", item.Symbol,
		"{sector}", item.Sector,
	).Replace(tpl.Text)

	item.Impact = tpl.Impact
	if item.Scope == Market {
		item.Impact *= e.cfg.MarketDamping
	}
	return item, true
}

func pick[T any](rnd market.RandSource, xs []T) T {
	i := int(rnd.Float64() * float64(len(xs)))
	if i >= len(xs) {
		i = len(xs) - 1
	}
	return xs[i]
}

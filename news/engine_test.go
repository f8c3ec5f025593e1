package news

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/papertrade/market"
)

// script replays draws in order and then repeats the last one.
type script struct {
	draws []float64
	i     int
}

func (s *script) Float64() float64 {
	v := s.draws[s.i]
	if s.i < len(s.draws)-1 {
		s.i++
	}
	return v
}

var t0 = time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Interval = 0
	cfg.Decay = 0
	cfg.Timeout = 50 * time.Millisecond
	cfg.CacheTTL = time.Minute
	return cfg
}

func newUniverse(t *testing.T) *market.Universe {
	t.Helper()
	u, err := market.NewUniverse(
		market.Instrument{Symbol: "AAPL", Company: "Apple Inc.", Sector: "Technology", Price: 160, Volatility: 0.01},
		market.Instrument{Symbol: "MSFT", Company: "Microsoft", Sector: "Technology", Price: 400, Volatility: 0.01},
		market.Instrument{Symbol: "XOM", Company: "Exxon", Sector: "Energy", Price: 110, Volatility: 0.01},
	)
	require.NoError(t, err)
	return u
}

func sentiment(u *market.Universe, symbol string) float64 {
	inst, _ := u.Get(symbol)
	return inst.Sentiment
}

func quietLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func TestTemplatedScopes(t *testing.T) {
	tests := []struct {
		name     string
		draws    []float64
		scope    Scope
		headline string
		impact   float64
		affected []string
	}{
		{"company", []float64{0.1, 0.1, 0.0, 0.0}, Company, "Apple Inc. beats quarterly earnings expectations", 0.25, []string{"AAPL"}},
		{"sector", []float64{0.6, 0.9, 0.9, 0.0}, Sector, "Technology stocks slide on tightening regulation", -0.12, []string{"AAPL", "MSFT"}},
		{"market", []float64{0.9, 0.1, 0.0}, Market, "Central bank signals interest rate cuts", 0.07, []string{"AAPL", "MSFT", "XOM"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := newUniverse(t)
			e := NewEngine(u, &script{draws: tt.draws}, WithConfig(testConfig()))

			item := e.Tick(context.Background(), t0)
			require.NotNil(t, item)
			assert.Equal(t, tt.scope, item.Scope)
			assert.Equal(t, tt.headline, item.Headline)
			assert.InDelta(t, tt.impact, item.Impact, 1e-9)
			assert.Equal(t, tt.affected, item.Affected)
			assert.Equal(t, SourceTemplate, item.Source)

			for _, s := range u.Symbols() {
				want := 0.0
				for _, a := range tt.affected {
					if a == s {
						want = tt.impact
					}
				}
				assert.InDelta(t, want, sentiment(u, s), 1e-9, s)
			}
		})
	}
}

func TestIntervalGatesStories(t *testing.T) {
	u := newUniverse(t)
	cfg := testConfig()
	cfg.Interval = 10 * time.Second
	e := NewEngine(u, rand.New(rand.NewPCG(1, 2)), WithConfig(cfg))

	require.NotNil(t, e.Tick(context.Background(), t0))
	assert.Nil(t, e.Tick(context.Background(), t0.Add(5*time.Second)))
	assert.NotNil(t, e.Tick(context.Background(), t0.Add(10*time.Second)))
}

func TestCategorySplit(t *testing.T) {
	u := newUniverse(t)
	e := NewEngine(u, rand.New(rand.NewPCG(3, 4)), WithConfig(testConfig()))

	counts := map[Scope]int{}
	const n = 4000
	for i := 0; i < n; i++ {
		item := e.Tick(context.Background(), t0.Add(time.Duration(i)*time.Second))
		require.NotNil(t, item)
		counts[item.Scope]++
	}
	assert.InDelta(t, 0.50, float64(counts[Company])/n, 0.05)
	assert.InDelta(t, 0.25, float64(counts[Sector])/n, 0.05)
	assert.InDelta(t, 0.25, float64(counts[Market])/n, 0.05)
}

func TestSentimentStaysClamped(t *testing.T) {
	u := newUniverse(t)
	e := NewEngine(u, rand.New(rand.NewPCG(5, 6)), WithConfig(testConfig()))
	for i := 0; i < 2000; i++ {
		e.Tick(context.Background(), t0.Add(time.Duration(i)*time.Second))
		for _, s := range u.Symbols() {
			v := sentiment(u, s)
			require.True(t, v >= -1 && v <= 1, "%s sentiment %v", s, v)
		}
	}
}

func TestDecayAppliesEveryTick(t *testing.T) {
	u := newUniverse(t)
	cfg := testConfig()
	cfg.Interval = time.Hour
	cfg.Decay = 0.5
	e := NewEngine(u, &script{draws: []float64{0.1, 0.1, 0.0, 0.0}}, WithConfig(cfg))

	e.Tick(context.Background(), t0)
	assert.InDelta(t, 0.25, sentiment(u, "AAPL"), 1e-9)

	assert.Nil(t, e.Tick(context.Background(), t0.Add(time.Second)))
	assert.InDelta(t, 0.125, sentiment(u, "AAPL"), 1e-9)
}

func TestGeneratorHeadlineApplied(t *testing.T) {
	u := newUniverse(t)
	gen := GeneratorFunc(func(ctx context.Context) (Headline, error) {
		return Headline{Text: "Exxon strikes oil", Symbol: "xom", Impact: 0.9}, nil
	})
	e := NewEngine(u, &script{draws: []float64{0.5}}, WithConfig(testConfig()), WithGenerator(gen))

	item := e.Tick(context.Background(), t0)
	require.NotNil(t, item)
	assert.Equal(t, SourceGenerator, item.Source)
	assert.Equal(t, Company, item.Scope)
	assert.Equal(t, "XOM", item.Symbol)
	assert.Equal(t, MaxImpact, item.Impact)
	assert.Equal(t, []string{"XOM"}, item.Affected)
	assert.InDelta(t, MaxImpact, sentiment(u, "XOM"), 1e-9)
}

func TestGeneratorMarketWideIsDamped(t *testing.T) {
	u := newUniverse(t)
	gen := GeneratorFunc(func(ctx context.Context) (Headline, error) {
		return Headline{Text: "Markets rally", Impact: 0.2}, nil
	})
	e := NewEngine(u, &script{draws: []float64{0.5}}, WithConfig(testConfig()), WithGenerator(gen))

	item := e.Tick(context.Background(), t0)
	require.NotNil(t, item)
	assert.Equal(t, Market, item.Scope)
	assert.InDelta(t, 0.14, item.Impact, 1e-9)
	assert.Len(t, item.Affected, 3)
}

func TestGeneratorFailuresFallBackToTemplates(t *testing.T) {
	tests := []struct {
		name string
		gen  GeneratorFunc
	}{
		{"error", func(ctx context.Context) (Headline, error) { return Headline{}, errors.New("503") }},
		{"unknown symbol", func(ctx context.Context) (Headline, error) { return Headline{Text: "x", Symbol: "NOPE"}, nil }},
		{"empty headline", func(ctx context.Context) (Headline, error) { return Headline{Text: "  "}, nil }},
		{"ignores deadline", func(ctx context.Context) (Headline, error) {
			time.Sleep(2 * time.Second)
			return Headline{Text: "late"}, nil
		}},
		{"honours deadline", func(ctx context.Context) (Headline, error) {
			<-ctx.Done()
			return Headline{}, ctx.Err()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := newUniverse(t)
			log, buf := quietLogger()
			e := NewEngine(u, &script{draws: []float64{0.1, 0.1, 0.0, 0.0}},
				WithConfig(testConfig()), WithGenerator(tt.gen), WithLogger(log))

			start := time.Now()
			item := e.Tick(context.Background(), t0)
			assert.Less(t, time.Since(start), time.Second)

			require.NotNil(t, item)
			assert.Equal(t, SourceTemplate, item.Source)
			assert.Equal(t, "AAPL", item.Symbol)
			assert.Contains(t, buf.String(), "headline generator")
		})
	}
}

func TestGeneratorCallRateBoundedByCache(t *testing.T) {
	u := newUniverse(t)
	var calls atomic.Int32
	gen := GeneratorFunc(func(ctx context.Context) (Headline, error) {
		calls.Add(1)
		return Headline{Text: "Apple news", Symbol: "AAPL", Impact: 0.1}, nil
	})
	e := NewEngine(u, rand.New(rand.NewPCG(7, 8)), WithConfig(testConfig()), WithGenerator(gen))

	first := e.Tick(context.Background(), t0)
	require.NotNil(t, first)
	assert.Equal(t, SourceGenerator, first.Source)

	for i := 1; i < 30; i++ {
		item := e.Tick(context.Background(), t0.Add(time.Duration(i)*time.Second))
		require.NotNil(t, item)
		assert.Equal(t, SourceTemplate, item.Source)
	}
	assert.Equal(t, int32(1), calls.Load())

	again := e.Tick(context.Background(), t0.Add(time.Minute))
	assert.Equal(t, SourceGenerator, again.Source)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPrefetchedHeadlineUsedByTick(t *testing.T) {
	u := newUniverse(t)
	var calls atomic.Int32
	gen := GeneratorFunc(func(ctx context.Context) (Headline, error) {
		calls.Add(1)
		return Headline{Text: "Microsoft wins a cloud deal", Symbol: "MSFT", Impact: 0.2}, nil
	})
	e := NewEngine(u, &script{draws: []float64{0.5}}, WithConfig(testConfig()), WithGenerator(gen))

	e.Prefetch(context.Background(), t0)
	e.Prefetch(context.Background(), t0)
	assert.Equal(t, int32(1), calls.Load())
	assert.Zero(t, sentiment(u, "MSFT"), "prefetch must not apply the story")

	item := e.Tick(context.Background(), t0)
	require.NotNil(t, item)
	assert.Equal(t, SourceGenerator, item.Source)
	assert.Equal(t, "MSFT", item.Symbol)
	assert.Equal(t, int32(1), calls.Load())

	// within the cache window nothing is fetched
	e.Prefetch(context.Background(), t0.Add(time.Second))
	assert.Equal(t, int32(1), calls.Load())
	next := e.Tick(context.Background(), t0.Add(time.Second))
	require.NotNil(t, next)
	assert.Equal(t, SourceTemplate, next.Source)
}

func TestPrefetchedFailureFallsBack(t *testing.T) {
	u := newUniverse(t)
	log, buf := quietLogger()
	gen := GeneratorFunc(func(ctx context.Context) (Headline, error) { return Headline{}, errors.New("quota") })
	e := NewEngine(u, &script{draws: []float64{0.1, 0.1, 0.0, 0.0}},
		WithConfig(testConfig()), WithGenerator(gen), WithLogger(log))

	e.Prefetch(context.Background(), t0)
	item := e.Tick(context.Background(), t0)
	require.NotNil(t, item)
	assert.Equal(t, SourceTemplate, item.Source)
	assert.Contains(t, buf.String(), "quota")
}

func TestParseHeadline(t *testing.T) {
	h, err := parseHeadline("```json\n{\"headline\":\"Apple soars\",\"symbol\":\"AAPL\",\"impact\":0.2}\n```")
	require.NoError(t, err)
	assert.Equal(t, Headline{Text: "Apple soars", Symbol: "AAPL", Impact: 0.2}, h)

	_, err = parseHeadline("")
	assert.Error(t, err)
	_, err = parseHeadline("not json")
	assert.Error(t, err)
}

func TestPromptListsInstruments(t *testing.T) {
	u := newUniverse(t)
	p := prompt(u.Snapshot())
	assert.Contains(t, p, "AAPL (Apple Inc., Technology)")
	assert.Contains(t, p, "XOM (Exxon, Energy)")
}

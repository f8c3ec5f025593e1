package market

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// fixedRand replays draws in order, repeating the last one.
type fixedRand struct {
	draws []float64
	i     int
}

func (r *fixedRand) Float64() float64 {
	v := r.draws[r.i]
	if r.i < len(r.draws)-1 {
		r.i++
	}
	return v
}

func TestAdvanceFormula(t *testing.T) {
	tests := []struct {
		name      string
		draw      float64
		price     float64
		vol       float64
		sentiment float64
		want      float64
	}{
		{"neutral midpoint", 0.5, 100, 0.02, 0, 100},
		{"max up draw", 1.0, 100, 0.02, 0, 102},
		{"min draw", 0.0, 100, 0.02, 0, 98},
		{"sentiment drift", 0.5, 100, 0.02, 0.5, 101},
		{"zero volatility", 0.9, 50, 0, 1, 50},
		{"floored", 0.0, 0.02, 1, -1, PriceFloor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewPriceModel(&fixedRand{draws: []float64{tt.draw}}, 0)
			inst := Instrument{Symbol: "X", Price: tt.price, Volatility: tt.vol, Sentiment: tt.sentiment}
			got := m.Advance(&inst)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.InDelta(t, tt.want, inst.Price, 1e-9)
			require.Len(t, inst.History, 1)
			assert.InDelta(t, tt.want, inst.History[0], 1e-9)
		})
	}
}

func TestAdvanceDeterministicForSeed(t *testing.T) {
	run := func() []float64 {
		m := NewPriceModel(rand.New(rand.NewPCG(7, 7)), 0)
		inst := Instrument{Symbol: "X", Price: 100, Volatility: 0.05}
		for i := 0; i < 50; i++ {
			m.Advance(&inst)
		}
		return inst.History
	}
	assert.Equal(t, run(), run())
}

func TestHistoryEvictsOldest(t *testing.T) {
	m := NewPriceModel(&fixedRand{draws: []float64{1.0}}, 3)
	inst := Instrument{Symbol: "X", Price: 100, Volatility: 0.1}
	for i := 0; i < 5; i++ {
		m.Advance(&inst)
	}
	require.Len(t, inst.History, 3)
	assert.InDelta(t, 100*1.1*1.1*1.1, inst.History[0], 1e-6)
	assert.InDelta(t, inst.Price, inst.History[2], 1e-9)
}

func TestPriceFloorAndHistoryCapProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Uint64().Draw(t, "seed")
		inst := Instrument{
			Symbol:     "X",
			Price:      rapid.Float64Range(0.01, 10000).Draw(t, "price"),
			Volatility: rapid.Float64Range(0, 0.5).Draw(t, "vol"),
			Sentiment:  rapid.Float64Range(-1, 1).Draw(t, "sentiment"),
		}
		ticks := rapid.IntRange(1, 250).Draw(t, "ticks")

		m := NewPriceModel(rand.New(rand.NewPCG(seed, 1)), 0)
		for i := 0; i < ticks; i++ {
			m.Advance(&inst)
			if inst.Price < PriceFloor {
				t.Fatalf("price %v below floor after %d ticks", inst.Price, i+1)
			}
			if len(inst.History) > HistoryCap {
				t.Fatalf("history length %d exceeds cap", len(inst.History))
			}
		}
	})
}

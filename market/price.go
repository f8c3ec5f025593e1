package market

import (
	"math"
	"sync"
)

// RandSource yields uniform floats in [0, 1). *math/rand/v2.Rand satisfies it.
type RandSource interface {
	Float64() float64
}

// PriceModel advances instrument prices one tick at a time.
//
// The next price is price + price*volatility*(u + sentiment) with u drawn
// uniformly from [-1, 1), floored at PriceFloor.
type PriceModel struct {
	mu  sync.Mutex // guards rnd
	rnd RandSource
	cap int
}

// NewPriceModel returns a model drawing from rnd and keeping at most
// historyCap prices per instrument (HistoryCap when <= 0).
func NewPriceModel(rnd RandSource, historyCap int) *PriceModel {
	if historyCap <= 0 {
		historyCap = HistoryCap
	}
	return &PriceModel{rnd: rnd, cap: historyCap}
}

// Advance moves inst to its next price, records it in the history and
// returns it.
func (m *PriceModel) Advance(inst *Instrument) float64 {
	u := m.uniform()
	change := inst.Price * inst.Volatility * (u + inst.Sentiment)

	next := math.Max(inst.Price+change, PriceFloor)
	inst.Price = next
	inst.History = pushHistory(inst.History, next, m.cap)
	return next
}

func (m *PriceModel) uniform() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return 2*m.rnd.Float64() - 1
}

// pushHistory appends p, evicting the oldest entries beyond limit.
func pushHistory(h []float64, p float64, limit int) []float64 {
	h = append(h, p)
	if over := len(h) - limit; over > 0 {
		copy(h, h[over:])
		h = h[:limit]
	}
	return h
}

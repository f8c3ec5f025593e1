package market

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Universe is the set of instruments owned by one simulation session.
//
// Each instrument has its own lock so a single instrument is only ever
// mutated by one writer while different instruments stay independent.
type Universe struct {
	mu      sync.RWMutex // guards entries and order
	entries map[string]*entry
	order   []string
}

type entry struct {
	mu     sync.Mutex
	inst   Instrument
	halted error
}

// NewUniverse builds a universe from instruments, in the given order.
func NewUniverse(instruments ...Instrument) (*Universe, error) {
	u := &Universe{entries: make(map[string]*entry)}
	for _, inst := range instruments {
		if err := u.Add(inst); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// Add registers a new instrument. PreviousClose and Open default to Price and
// an empty history is seeded with the current price.
func (u *Universe) Add(inst Instrument) error {
	if err := inst.Validate(); err != nil {
		return err
	}
	if inst.PreviousClose == 0 {
		inst.PreviousClose = inst.Price
	}
	if inst.Open == 0 {
		inst.Open = inst.Price
	}
	inst = inst.clone()
	if len(inst.History) == 0 {
		inst.History = []float64{inst.Price}
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.entries[inst.Symbol]; ok {
		return fmt.Errorf("add instrument: duplicate symbol %q", inst.Symbol)
	}
	u.entries[inst.Symbol] = &entry{inst: inst}
	u.order = append(u.order, inst.Symbol)
	return nil
}

func (u *Universe) lookup(symbol string) (*entry, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	e, ok := u.entries[symbol]
	return e, ok
}

func (u *Universe) each() []*entry {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]*entry, 0, len(u.order))
	for _, s := range u.order {
		out = append(out, u.entries[s])
	}
	return out
}

// Get returns a copy of the instrument.
func (u *Universe) Get(symbol string) (Instrument, bool) {
	e, ok := u.lookup(symbol)
	if !ok {
		return Instrument{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inst.clone(), true
}

// Price returns the current price of symbol. It satisfies the price lookup
// used by the ledger and the order manager.
func (u *Universe) Price(symbol string) (float64, error) {
	e, ok := u.lookup(symbol)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSymbol, symbol)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.halted != nil {
		return 0, e.halted
	}
	return e.inst.Price, nil
}

// Symbols returns all symbols in insertion order.
func (u *Universe) Symbols() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return append([]string(nil), u.order...)
}

// Sectors returns the distinct sectors, sorted.
func (u *Universe) Sectors() []string {
	seen := map[string]bool{}
	for _, e := range u.each() {
		e.mu.Lock()
		seen[e.inst.Sector] = true
		e.mu.Unlock()
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// InSector returns the symbols whose sector is sector.
func (u *Universe) InSector(sector string) []string {
	var out []string
	for _, e := range u.each() {
		e.mu.Lock()
		if e.inst.Sector == sector {
			out = append(out, e.inst.Symbol)
		}
		e.mu.Unlock()
	}
	return out
}

// AdvanceAll moves every live instrument one tick with model. An instrument
// that fails validation is halted and skipped from then on; the returned
// error joins the newly halted instruments.
func (u *Universe) AdvanceAll(model *PriceModel) error {
	var errs []error
	for _, e := range u.each() {
		if err := e.advance(model); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *entry) advance(model *PriceModel) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.halted != nil {
		return nil
	}
	if err := e.inst.Validate(); err != nil {
		e.halted = err
		return err
	}
	model.Advance(&e.inst)
	return nil
}

// Nudge adds impact to the sentiment of each named instrument, clamping the
// result to [SentimentMin, SentimentMax]. Unknown and halted symbols are
// skipped. It returns the symbols actually changed.
func (u *Universe) Nudge(symbols []string, impact float64) []string {
	var touched []string
	for _, s := range symbols {
		e, ok := u.lookup(s)
		if !ok {
			continue
		}
		e.mu.Lock()
		if e.halted == nil {
			e.inst.Sentiment = ClampSentiment(e.inst.Sentiment + impact)
			touched = append(touched, s)
		}
		e.mu.Unlock()
	}
	return touched
}

// Halted returns the reason symbol stopped updating, or nil.
func (u *Universe) Halted(symbol string) error {
	e, ok := u.lookup(symbol)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSymbol, symbol)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.halted
}

// Snapshot copies every instrument in insertion order.
func (u *Universe) Snapshot() []Instrument {
	entries := u.each()
	out := make([]Instrument, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.inst.clone())
		e.mu.Unlock()
	}
	return out
}

// Restore overwrites the state of known instruments and adds unknown ones.
func (u *Universe) Restore(instruments []Instrument) error {
	for _, inst := range instruments {
		e, ok := u.lookup(inst.Symbol)
		if !ok {
			if err := u.Add(inst); err != nil {
				return fmt.Errorf("restore: %w", err)
			}
			continue
		}
		if err := inst.Validate(); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		e.mu.Lock()
		e.inst = inst.clone()
		e.halted = nil
		e.mu.Unlock()
	}
	return nil
}

// Decay pulls every live sentiment toward zero by factor in [0, 1].
func (u *Universe) Decay(factor float64) {
	if factor <= 0 {
		return
	}
	keep := 1 - math.Min(factor, 1)
	for _, e := range u.each() {
		e.mu.Lock()
		if e.halted == nil {
			e.inst.Sentiment = ClampSentiment(e.inst.Sentiment * keep)
		}
		e.mu.Unlock()
	}
}

// Package indicators computes moving averages over an instrument's price
// history.
package indicators

// Indicator computes a single streaming value from prices.
type Indicator interface {
	// Name returns a stable identifier like "EMA(20)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next price.
	Update(price float64)

	// Ready reports whether Value() is meaningful.
	Ready() bool

	// Value returns the current value, or 0 before Ready().
	Value() float64
}

// Run feeds prices through ind and returns its final value and readiness.
func Run(ind Indicator, prices []float64) (float64, bool) {
	ind.Reset()
	for _, p := range prices {
		ind.Update(p)
	}
	return ind.Value(), ind.Ready()
}

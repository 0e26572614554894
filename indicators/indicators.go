// Package indicators provides streaming signals computed from price samples.
package indicators

import "github.com/rustyeddy/gridbot/market"

// Indicator computes a single streaming value from samples.
// It is deterministic and safe to use in live, replay, and backtests.
type Indicator interface {
	// Name returns a stable identifier like "RSI(14,1d)".
	Name() string

	// Warmup returns how many periods are needed before Ready() can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next sample. Samples must arrive in time order.
	Update(s market.Sample)

	// Ready reports whether Value() is meaningful (warmup completed).
	Ready() bool

	// Value returns the current value, or 0 before Ready.
	Value() float64
}

// Current returns a pointer to the indicator's value when it is ready and
// nil otherwise, the shape strategy signals expect.
func Current(ind Indicator) *float64 {
	if !ind.Ready() {
		return nil
	}
	v := ind.Value()
	return &v
}

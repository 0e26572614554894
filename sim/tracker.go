package sim

import (
	"math"

	"github.com/rustyeddy/gridbot/journal"
	"github.com/rustyeddy/gridbot/market"
	"github.com/rustyeddy/gridbot/strategy"
)

// Tracker derives equity, peak and drawdown from the strategy state at each
// sample. It never holds state of its own beyond running extremes.
type Tracker struct {
	StartEquity float64

	Peak        float64
	Drawdown    float64
	MaxDrawdown float64

	DeepestLevel    int
	LargestNotional float64

	Bars int
	Last journal.EquitySample
}

func NewTracker(startEquity float64) *Tracker {
	return &Tracker{StartEquity: startEquity, Peak: startEquity}
}

// Observe records one sample: equity is start equity plus realized cash plus
// unrealized pnl at the sample price.
func (t *Tracker) Observe(sample market.Sample, s strategy.State) journal.EquitySample {
	eq := t.StartEquity + s.Equity(sample.Price)

	t.Bars++
	t.Peak = math.Max(t.Peak, eq)
	t.Drawdown = eq - t.Peak
	t.MaxDrawdown = math.Min(t.MaxDrawdown, t.Drawdown)
	t.Exposure(s, sample.Price)

	t.Last = journal.EquitySample{Time: sample.Time, Equity: eq}
	return t.Last
}

// Exposure folds the position's level and notional into the running maxima
// without counting a sample. Call it after acting on a sample.
func (t *Tracker) Exposure(s strategy.State, price float64) {
	if !s.Position.IsOpen() {
		return
	}
	if s.Position.Level > t.DeepestLevel {
		t.DeepestLevel = s.Position.Level
	}
	t.LargestNotional = math.Max(t.LargestNotional, s.Position.Notional(price))
}

// MaxDrawdownPct is the maximum drawdown relative to start equity, in percent.
func (t *Tracker) MaxDrawdownPct() float64 {
	if t.StartEquity == 0 {
		return 0
	}
	return t.MaxDrawdown / t.StartEquity * 100
}

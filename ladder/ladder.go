// Package ladder describes the geometric safety-order ladder for one side of
// the position: how much notional each level commits and where the next level
// triggers.
package ladder

import (
	"fmt"
	"math"

	"github.com/rustyeddy/gridbot/market"
)

// DefaultEpsilon absorbs floating rounding when comparing notionals to the cap.
const DefaultEpsilon = 1e-9

// Config is immutable per side.
type Config struct {
	BaseNotional        float64 `json:"base_order_notional" yaml:"base_order_notional"`
	StepPct             float64 `json:"step_pct" yaml:"step_pct"`
	VolumeScale         float64 `json:"volume_scale" yaml:"volume_scale"`
	MaxLevels           int     `json:"safety_orders" yaml:"safety_orders"`
	MaxPositionNotional float64 `json:"max_position_notional" yaml:"max_position_notional"`

	// TakeProfitPct is the fixed take-profit distance from the average entry,
	// and the minimum raw distance for the fee-aware policy.
	TakeProfitPct float64 `json:"tp_pct" yaml:"tp_pct"`

	// Once the position reaches WidenStepLevel, WidenStepAdd is added to
	// StepPct for every following trigger. Zero WidenStepAdd disables it.
	WidenStepLevel int     `json:"widen_step_level" yaml:"widen_step_level"`
	WidenStepAdd   float64 `json:"widen_step_add" yaml:"widen_step_add"`
}

// Size returns the notional committed by level k: size[0]=base,
// size[k]=size[k-1]*scale.
func (c Config) Size(k int) float64 {
	if k <= 0 {
		return c.BaseNotional
	}
	size := c.BaseNotional
	for i := 0; i < k; i++ {
		size *= c.VolumeScale
	}
	return size
}

// TotalNotional is the sum of sizes for levels 0..levels-1.
func (c Config) TotalNotional(levels int) float64 {
	var sum float64
	for k := 0; k < levels; k++ {
		sum += c.Size(k)
	}
	return sum
}

// StepFor returns the step used to place the trigger after a fill at level.
func (c Config) StepFor(level int) float64 {
	if c.WidenStepAdd > 0 && level >= c.WidenStepLevel {
		return c.StepPct + c.WidenStepAdd
	}
	return c.StepPct
}

// NextTrigger is measured from the last fill price, never from the average.
func (c Config) NextTrigger(side market.Side, lastFill float64, level int) float64 {
	step := c.StepFor(level)
	if side == market.Short {
		return lastFill * (1 + step)
	}
	return lastFill * (1 - step)
}

// Crossed reports whether price moved through trigger in the adverse direction.
func Crossed(side market.Side, price, trigger float64) bool {
	if trigger <= 0 {
		return false
	}
	if side == market.Short {
		return price >= trigger
	}
	return price <= trigger
}

func (c Config) CanAdd(level int) bool {
	return level+1 < c.MaxLevels
}

func (c Config) FitsCap(committed, add, eps float64) bool {
	return committed+add <= c.MaxPositionNotional+eps
}

// DeepestAffordable returns the highest level reachable when every level is
// filled at the same price, which bounds the ladder a config can ever run.
func (c Config) DeepestAffordable(eps float64) int {
	level := -1
	for k := 0; k < c.MaxLevels; k++ {
		if c.TotalNotional(k+1) > c.MaxPositionNotional+eps {
			break
		}
		level = k
	}
	return level
}

func (c Config) Validate() error {
	switch {
	case c.BaseNotional <= 0 || math.IsNaN(c.BaseNotional):
		return fmt.Errorf("base_order_notional must be positive")
	case c.StepPct <= 0 || c.StepPct >= 1:
		return fmt.Errorf("step_pct must be in (0, 1)")
	case c.VolumeScale <= 1:
		return fmt.Errorf("volume_scale must be greater than 1")
	case c.MaxLevels <= 0:
		return fmt.Errorf("safety_orders must be positive")
	case c.MaxPositionNotional <= 0:
		return fmt.Errorf("max_position_notional must be positive")
	case c.TakeProfitPct < 0 || c.TakeProfitPct >= 1:
		return fmt.Errorf("tp_pct must be in [0, 1)")
	case c.WidenStepAdd < 0:
		return fmt.Errorf("widen_step_add must not be negative")
	case c.WidenStepLevel < 0:
		return fmt.Errorf("widen_step_level must not be negative")
	case c.StepPct+c.WidenStepAdd >= 1:
		return fmt.Errorf("step_pct + widen_step_add must be below 1")
	}
	return nil
}

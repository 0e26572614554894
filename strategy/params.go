package strategy

import (
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/gridbot/ladder"
	"github.com/rustyeddy/gridbot/market"
	"github.com/rustyeddy/gridbot/risk"
)

type TakeProfitPolicy string

const (
	// PolicyFixed closes at a fixed distance from the average entry.
	PolicyFixed TakeProfitPolicy = "fixed"

	// PolicyNet closes at the lowest price that clears fees plus a minimum
	// profit, floored by the fixed distance. It never closes at a loss.
	PolicyNet TakeProfitPolicy = "net"
)

type TakeProfit struct {
	Policy                 TakeProfitPolicy
	MinProfitUSD           float64
	CloseRequiresNetProfit bool

	// ExitMaker prices the exit with the maker fee, for venues where the
	// take-profit rests as a limit order.
	ExitMaker bool
}

type Fees struct {
	Taker float64
	Maker float64
}

// Flip enables the aggressive variant: after every close the engine waits
// Cooldown and then opens on the side the daily RSI prefers.
type Flip struct {
	Enabled      bool
	Cooldown     time.Duration
	RSIThreshold float64
}

type Params struct {
	Symbol string

	Long  ladder.Config
	Short ladder.Config

	TakeProfit TakeProfit
	Fees       Fees
	Flip       Flip

	FundingPauseThreshold float64
	Epsilon               float64
}

// Ladder returns the ladder for side.
func (p Params) Ladder(side market.Side) ladder.Config {
	if side == market.Short {
		return p.Short
	}
	return p.Long
}

func (p Params) eps() float64 {
	if p.Epsilon > 0 {
		return p.Epsilon
	}
	return ladder.DefaultEpsilon
}

func (p Params) policy(side market.Side) risk.Policy {
	return risk.Policy{
		MaxPositionNotional:    p.Ladder(side).MaxPositionNotional,
		FundingPauseThreshold:  p.FundingPauseThreshold,
		CloseRequiresNetProfit: p.TakeProfit.CloseRequiresNetProfit,
		MinProfitUSD:           p.TakeProfit.MinProfitUSD,
		Epsilon:                p.eps(),
	}
}

// ExitFeeRate is the fee applied to the exit notional when pricing the
// take-profit.
func (p Params) ExitFeeRate() float64 {
	if p.TakeProfit.ExitMaker {
		return p.Fees.Maker
	}
	return p.Fees.Taker
}

func (p Params) Validate() error {
	var errs []error
	if err := p.Long.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("long: %w", err))
	}
	if p.Flip.Enabled {
		if err := p.Short.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("short: %w", err))
		}
		if p.Flip.Cooldown < 0 {
			errs = append(errs, errors.New("flip cooldown must not be negative"))
		}
	}
	switch p.TakeProfit.Policy {
	case PolicyFixed, PolicyNet:
	default:
		errs = append(errs, fmt.Errorf("unknown take-profit policy %q", p.TakeProfit.Policy))
	}
	if p.TakeProfit.MinProfitUSD < 0 {
		errs = append(errs, errors.New("min_profit_usd must not be negative"))
	}
	if p.Fees.Taker < 0 || p.Fees.Taker >= 1 || p.Fees.Maker < 0 || p.Fees.Maker >= 1 {
		errs = append(errs, errors.New("fees must be in [0, 1)"))
	}
	if p.FundingPauseThreshold > 0 {
		errs = append(errs, errors.New("funding_pause_threshold must be zero (off) or negative"))
	}
	return errors.Join(errs...)
}

// sideFromRSI prefers Short when the daily RSI is above threshold and Long
// otherwise, including when no RSI is available.
func sideFromRSI(rsi *float64, threshold float64) market.Side {
	if rsi != nil && *rsi > threshold {
		return market.Short
	}
	return market.Long
}

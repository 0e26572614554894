package risk

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/gridbot/market"
)

type Side = market.Side

const (
	CodePositionCap = "POSITION_CAP"
	CodeFunding     = "FUNDING_PAUSE"
	CodeProfit      = "PROFIT_GATE"
	CodeCooldown    = "COOLDOWN"
)

type Violation struct {
	Code string
	Msg  string
}

// Decision is the gate's verdict. A rejected decision is not an error: the
// engine skips the action and waits for the next sample.
type Decision struct {
	Allowed    bool
	Violations []Violation
}

func (d *Decision) add(v *Violation) {
	if v == nil {
		return
	}
	d.Violations = append(d.Violations, *v)
	d.Allowed = false
}

// Codes returns the violation codes joined with commas, for logging.
func (d Decision) Codes() string {
	codes := make([]string, 0, len(d.Violations))
	for _, v := range d.Violations {
		codes = append(codes, v.Code)
	}
	return strings.Join(codes, ",")
}

func (d Decision) Has(code string) bool {
	for _, v := range d.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

func CheckPositionCap(p Policy, committed, notional float64) *Violation {
	if committed+notional <= p.MaxPositionNotional+p.Epsilon {
		return nil
	}
	return &Violation{
		Code: CodePositionCap,
		Msg: fmt.Sprintf("notional %.4f + %.4f exceeds cap %.4f",
			committed, notional, p.MaxPositionNotional),
	}
}

// CheckFunding only guards shorts, and missing funding data never blocks.
func CheckFunding(p Policy, side Side, rate *float64) *Violation {
	if side != market.Short || rate == nil || p.FundingPauseThreshold >= 0 {
		return nil
	}
	if *rate >= p.FundingPauseThreshold {
		return nil
	}
	return &Violation{
		Code: CodeFunding,
		Msg:  fmt.Sprintf("funding %.6f below pause threshold %.6f", *rate, p.FundingPauseThreshold),
	}
}

func CheckProfit(p Policy, netPnL float64) *Violation {
	if !p.CloseRequiresNetProfit || netPnL >= p.MinProfitUSD-p.Epsilon {
		return nil
	}
	return &Violation{
		Code: CodeProfit,
		Msg:  fmt.Sprintf("net pnl %.4f below required %.4f", netPnL, p.MinProfitUSD),
	}
}

func CheckCooldown(in EntryIntent) *Violation {
	if in.CooldownUntil.IsZero() || !in.Now.Before(in.CooldownUntil) {
		return nil
	}
	return &Violation{
		Code: CodeCooldown,
		Msg:  fmt.Sprintf("cooldown active until %s", in.CooldownUntil.UTC().Format("2006-01-02T15:04:05Z")),
	}
}

// EvaluateEntry runs every predicate that applies to an open or add.
func EvaluateEntry(p Policy, in EntryIntent) Decision {
	d := Decision{Allowed: true}
	d.add(CheckCooldown(in))
	d.add(CheckPositionCap(p, in.Committed, in.Notional))
	d.add(CheckFunding(p, in.Side, in.FundingRate))
	return d
}

func EvaluateExit(p Policy, in ExitIntent) Decision {
	d := Decision{Allowed: true}
	d.add(CheckProfit(p, in.NetPnL))
	return d
}

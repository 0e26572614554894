package strategy

import (
	"github.com/rustyeddy/gridbot/ladder"
	"github.com/rustyeddy/gridbot/market"
	"github.com/rustyeddy/gridbot/risk"
)

type Action int

const (
	ActionNone Action = iota
	ActionOpen
	ActionAdd
	ActionClose
)

func (a Action) String() string {
	switch a {
	case ActionOpen:
		return "open"
	case ActionAdd:
		return "add"
	case ActionClose:
		return "close"
	default:
		return "none"
	}
}

// Decision reasons.
const (
	ReasonBadPrice   = "bad_price"
	ReasonCooldown   = "cooldown"
	ReasonTakeProfit = "take_profit"
	ReasonProfitGate = "profit_gate"
	ReasonOpen       = "open"
	ReasonAdd        = "add"
	ReasonBlocked    = "risk_blocked"
	ReasonMaxLevels  = "max_levels"
	ReasonHold       = "hold"
)

// Decision is at most one action for one sample. Violations are carried for
// logging only; a blocked action is ActionNone.
type Decision struct {
	Action     Action
	Side       market.Side
	Notional   float64
	Price      float64
	Level      int
	Target     float64
	Reason     string
	Violations []risk.Violation
}

// Decide evaluates one sample. Rules run in a fixed order and the first that
// applies wins: bad price, cooldown, take-profit, open, add.
func Decide(s State, p Params, sample market.Sample, sig Signals) Decision {
	price := sample.Price
	if !sample.Valid() {
		return Decision{Reason: ReasonBadPrice, Price: price}
	}

	pos := s.Position
	if p.Flip.Enabled {
		in := risk.EntryIntent{Now: sample.Time, CooldownUntil: s.Risk.CooldownUntil}
		if v := risk.CheckCooldown(in); v != nil {
			return Decision{Reason: ReasonCooldown, Price: price, Violations: []risk.Violation{*v}}
		}
	}

	if pos.IsOpen() {
		target := TargetPrice(pos, s.Risk, p)
		if TargetReached(pos, price, target) {
			net := NetPnL(pos, s.Risk, price, p.ExitFeeRate())
			gate := risk.EvaluateExit(p.policy(pos.Side), risk.ExitIntent{Now: sample.Time, NetPnL: net, ExitPrice: price})
			d := Decision{Side: pos.Side, Price: price, Level: pos.Level, Target: target}
			if !gate.Allowed {
				d.Reason, d.Violations = ReasonProfitGate, gate.Violations
				return d
			}
			d.Action, d.Reason = ActionClose, ReasonTakeProfit
			d.Notional = pos.Notional(price)
			return d
		}
		return decideAdd(s, p, sample, sig, target)
	}

	side := s.NextSide
	if !p.Flip.Enabled || !side.Valid() {
		side = market.Long
	}
	cfg := p.Ladder(side)
	d := Decision{Side: side, Price: price, Notional: cfg.BaseNotional, Level: 0}
	gate := risk.EvaluateEntry(p.policy(side), risk.EntryIntent{
		Now:           sample.Time,
		Side:          side,
		Notional:      cfg.BaseNotional,
		FundingRate:   sig.FundingRate,
		CooldownUntil: s.Risk.CooldownUntil,
	})
	if !gate.Allowed {
		d.Reason, d.Violations = ReasonBlocked, gate.Violations
		return d
	}
	d.Action, d.Reason = ActionOpen, ReasonOpen
	return d
}

func decideAdd(s State, p Params, sample market.Sample, sig Signals, target float64) Decision {
	pos := s.Position
	price := sample.Price
	cfg := p.Ladder(pos.Side)
	d := Decision{Side: pos.Side, Price: price, Level: pos.Level, Target: target, Reason: ReasonHold}

	if !ladder.Crossed(pos.Side, price, pos.NextTrigger) {
		return d
	}
	if !cfg.CanAdd(pos.Level) {
		d.Reason = ReasonMaxLevels
		return d
	}

	notional := cfg.Size(pos.Level + 1)
	d.Notional, d.Level = notional, pos.Level+1
	gate := risk.EvaluateEntry(p.policy(pos.Side), risk.EntryIntent{
		Now:           sample.Time,
		Side:          pos.Side,
		Committed:     pos.Notional(price),
		Notional:      notional,
		FundingRate:   sig.FundingRate,
		CooldownUntil: s.Risk.CooldownUntil,
	})
	if !gate.Allowed {
		d.Reason, d.Violations = ReasonBlocked, gate.Violations
		return d
	}
	d.Action, d.Reason = ActionAdd, ReasonAdd
	return d
}

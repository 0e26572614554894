package strategy

import (
	"math"

	"github.com/rustyeddy/gridbot/risk"
)

// TargetPrice returns the take-profit price for the open position, or 0
// when flat.
//
// The net policy solves net_pnl(P) = min_profit for P:
//
//	long:  P = (avg + (fees+min)/qty) / (1-fee), floored at avg*(1+tp)
//	short: P = (avg - (fees+min)/qty) / (1+fee), capped at avg*(1-tp)
func TargetPrice(pos Position, rs RiskState, p Params) float64 {
	if !pos.IsOpen() {
		return 0
	}
	sign := pos.Side.Sign()
	tp := p.Ladder(pos.Side).TakeProfitPct
	fixed := pos.AvgEntry * (1 + sign*tp)
	if p.TakeProfit.Policy != PolicyNet {
		return fixed
	}

	fee := p.ExitFeeRate()
	need := (rs.EntryFees + p.TakeProfit.MinProfitUSD) / pos.Qty
	solved := (pos.AvgEntry + sign*need) / (1 - sign*fee)
	if sign > 0 {
		return math.Max(solved, fixed)
	}
	return math.Min(solved, fixed)
}

// TargetReached reports whether price is at or through target in the
// favourable direction.
func TargetReached(pos Position, price, target float64) bool {
	if !pos.IsOpen() || target <= 0 {
		return false
	}
	if pos.Side.Sign() > 0 {
		return price >= target
	}
	return price <= target
}

// NetPnL is the pnl of closing the whole position at exit, net of the entry
// fees already paid and the exit fee at feeRate.
func NetPnL(pos Position, rs RiskState, exit, feeRate float64) float64 {
	if !pos.IsOpen() {
		return 0
	}
	return risk.NetPnL(pos.Side, pos.AvgEntry, exit, pos.Qty, rs.EntryFees, feeRate)
}

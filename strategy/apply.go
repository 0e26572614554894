package strategy

import (
	"math"
	"time"

	"github.com/rustyeddy/gridbot/broker"
	"github.com/rustyeddy/gridbot/internal/id"
	"github.com/rustyeddy/gridbot/journal"
	"github.com/rustyeddy/gridbot/market"
	"github.com/rustyeddy/gridbot/risk"
)

// Apply folds the fill the gateway reported for d into s. Only the filled
// quantity counts: an empty fill returns s unchanged. A full close returns the
// trade record; everything else returns nil.
func Apply(s State, p Params, d Decision, f broker.Fill, now time.Time, sig Signals) (State, *journal.TradeRecord) {
	if f.Empty() {
		return s, nil
	}
	price := f.Price
	if price <= 0 || math.IsNaN(price) {
		price = d.Price
	}

	switch d.Action {
	case ActionOpen:
		if s.Position.IsOpen() {
			return s, nil
		}
		return applyOpen(s, p, d, f, price, now), nil
	case ActionAdd:
		if !s.Position.IsOpen() {
			return s, nil
		}
		return applyAdd(s, p, f, price), nil
	case ActionClose:
		if !s.Position.IsOpen() {
			return s, nil
		}
		return applyClose(s, p, d.Reason, f, price, now, sig)
	}
	return s, nil
}

func applyOpen(s State, p Params, d Decision, f broker.Fill, price float64, now time.Time) State {
	cfg := p.Ladder(d.Side)
	s.Position = Position{
		Side:        d.Side,
		Qty:         f.Qty,
		AvgEntry:    price,
		Level:       0,
		LastFill:    price,
		NextTrigger: cfg.NextTrigger(d.Side, price, 0),
		OpenTime:    now,
	}
	s.Risk.EntryFees = f.Fee
	s.Risk.FeesPaid = f.Fee
	s.Risk.PartialRealized = 0
	s.Risk.ClosedQty = 0
	return s
}

func applyAdd(s State, p Params, f broker.Fill, price float64) State {
	pos := s.Position
	cfg := p.Ladder(pos.Side)

	pos.AvgEntry = risk.WeightedAverage(pos.AvgEntry, pos.Qty, price, f.Qty)
	pos.Qty += f.Qty
	pos.Level++
	pos.LastFill = price
	pos.NextTrigger = cfg.NextTrigger(pos.Side, price, pos.Level)

	s.Position = pos
	s.Risk.EntryFees += f.Fee
	s.Risk.FeesPaid += f.Fee
	return s
}

func applyClose(s State, p Params, reason string, f broker.Fill, price float64, now time.Time, sig Signals) (State, *journal.TradeRecord) {
	pos := s.Position
	filled := math.Min(f.Qty, pos.Qty)
	share := filled / pos.Qty
	entryFees := s.Risk.EntryFees * share

	realized := risk.GrossPnL(pos.Side, pos.AvgEntry, price, filled) - entryFees - f.Fee
	s.RealizedCash += realized
	s.Risk.FeesPaid += f.Fee

	if pos.Qty-filled > pos.Qty*p.eps() {
		pos.Qty -= filled
		s.Position = pos
		s.Risk.EntryFees -= entryFees
		s.Risk.PartialRealized += realized
		s.Risk.ClosedQty += filled
		return s, nil
	}

	if reason == "" {
		reason = ReasonTakeProfit
	}
	rec := &journal.TradeRecord{
		TradeID:       id.At(now),
		Symbol:        p.Symbol,
		Side:          pos.Side,
		OpenTime:      pos.OpenTime,
		CloseTime:     now,
		LevelsUsed:    pos.Level + 1,
		AvgEntryPrice: pos.AvgEntry,
		ExitPrice:     price,
		Quantity:      s.Risk.ClosedQty + filled,
		Fees:          s.Risk.FeesPaid,
		RealizedPnL:   s.Risk.PartialRealized + realized,
		Reason:        reason,
	}

	s.Position = Flat()
	s.Risk = RiskState{}
	s.NextSide = market.Long
	if p.Flip.Enabled {
		s.Risk.CooldownUntil = now.Add(p.Flip.Cooldown)
		s.NextSide = sideFromRSI(sig.RSI, p.Flip.RSIThreshold)
	}
	return s, rec
}

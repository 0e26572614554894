package strategy

import (
	"math"

	"github.com/rustyeddy/gridbot/broker"
	"github.com/rustyeddy/gridbot/journal"
	"github.com/rustyeddy/gridbot/market"
)

// Change says what Reconcile did to local state.
type Change int

const (
	ChangeNone Change = iota
	ChangeExternalClose
	ChangeQtyOverride
	ChangeAdopted
	ChangeReversed
)

func (c Change) String() string {
	switch c {
	case ChangeExternalClose:
		return "external_close"
	case ChangeQtyOverride:
		return "qty_override"
	case ChangeAdopted:
		return "adopted"
	case ChangeReversed:
		return "reversed"
	default:
		return "none"
	}
}

// Reconcile makes local state agree with the venue's position, which always
// wins. Quantity the venue closed on its own (a resting take-profit that
// filled, a manual close) goes through the same close transition as an engine
// close, priced at price with the maker fee. A venue position on the other
// side closes the local one first and is then adopted.
func Reconcile(s State, p Params, snap broker.PositionSnapshot, price market.Sample, sig Signals) (State, *journal.TradeRecord, Change) {
	pos := s.Position

	switch {
	case snap.Flat() && !pos.IsOpen():
		return s, nil, ChangeNone

	case snap.Flat():
		if !price.Valid() {
			return s, nil, ChangeNone
		}
		next, rec := externalClose(s, p, pos.Qty, price, sig)
		return next, rec, ChangeExternalClose

	case !pos.IsOpen():
		return adopt(s, p, snap, price), nil, ChangeAdopted

	case snap.Side() != pos.Side:
		if !price.Valid() {
			return s, nil, ChangeNone
		}
		next, rec := externalClose(s, p, pos.Qty, price, sig)
		return adopt(next, p, snap, price), rec, ChangeReversed

	case !sameQty(pos.Qty, snap.Size()):
		if snap.Size() < pos.Qty {
			if !price.Valid() {
				return s, nil, ChangeNone
			}
			var rec *journal.TradeRecord
			s, rec = externalClose(s, p, pos.Qty-snap.Size(), price, sig)
			if rec != nil {
				// the venue remainder is dust below the close tolerance
				return s, rec, ChangeExternalClose
			}
			pos = s.Position
		}
		pos.Qty = snap.Size()
		if snap.AvgPrice > 0 {
			pos.AvgEntry = snap.AvgPrice
		}
		s.Position = pos
		return s, nil, ChangeQtyOverride
	}
	return s, nil, ChangeNone
}

// externalClose realizes qty of the local position at price as if the engine
// had closed it with a maker fill. Closing less than the whole position
// leaves the remainder open and returns no record.
func externalClose(s State, p Params, qty float64, price market.Sample, sig Signals) (State, *journal.TradeRecord) {
	fill := broker.Fill{Qty: qty, Price: price.Price, Fee: qty * price.Price * p.Fees.Maker}
	d := Decision{Action: ActionClose, Side: s.Position.Side, Price: price.Price, Reason: journal.ReasonExternalClose}
	return Apply(s, p, d, fill, price.Time, sig)
}

func adopt(s State, p Params, snap broker.PositionSnapshot, price market.Sample) State {
	side := snap.Side()
	avg := snap.AvgPrice
	if avg <= 0 {
		avg = price.Price
	}
	s.Position = Position{
		Side:        side,
		Qty:         snap.Size(),
		AvgEntry:    avg,
		Level:       0,
		LastFill:    avg,
		NextTrigger: p.Ladder(side).NextTrigger(side, avg, 0),
		OpenTime:    price.Time,
	}
	s.Risk = RiskState{CooldownUntil: s.Risk.CooldownUntil}
	return s
}

func sameQty(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(b))
}

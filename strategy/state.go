// Package strategy is the DCA grid state machine. Decide, Apply and
// Reconcile are pure functions over State values; Engine drives them
// against a broker.Gateway.
package strategy

import (
	"time"

	"github.com/rustyeddy/gridbot/market"
)

// Position is the single logical position. A flat position has Qty 0,
// AvgEntry 0 and Level -1, and no other combination is valid.
type Position struct {
	Side        market.Side
	Qty         float64
	AvgEntry    float64
	Level       int
	LastFill    float64
	NextTrigger float64
	OpenTime    time.Time
}

func Flat() Position {
	return Position{Level: -1}
}

func (p Position) IsOpen() bool { return p.Qty > 0 }

// Notional values the position at price.
func (p Position) Notional(price float64) float64 {
	return p.Qty * price
}

// Unrealized is the gross mark-to-market pnl at price, zero when flat.
func (p Position) Unrealized(price float64) float64 {
	if !p.IsOpen() {
		return 0
	}
	return p.Side.Sign() * (price - p.AvgEntry) * p.Qty
}

// RiskState is the bookkeeping that lives exactly as long as one position,
// except CooldownUntil which the close transition sets for the next one.
type RiskState struct {
	CooldownUntil time.Time

	// EntryFees is what the still-open quantity paid to get in.
	EntryFees float64

	// Partial closes realize immediately; these carry the totals into the
	// trade record written at the final close.
	PartialRealized float64
	ClosedQty       float64
	FeesPaid        float64
}

type State struct {
	Position Position
	Risk     RiskState

	// NextSide is the side the next open takes.
	NextSide market.Side

	// RealizedCash is the sum of net pnl of every close so far.
	RealizedCash float64
}

func NewState() State {
	return State{Position: Flat(), NextSide: market.Long}
}

// Equity is realized cash plus unrealized pnl at price.
func (s State) Equity(price float64) float64 {
	return s.RealizedCash + s.Position.Unrealized(price)
}

// Signals are optional gating inputs. Nil means the source was unavailable.
type Signals struct {
	FundingRate *float64
	RSI         *float64
}

func Float(v float64) *float64 { return &v }

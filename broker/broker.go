package broker

import (
	"context"
	"errors"

	"github.com/rustyeddy/gridbot/market"
)

var (
	// ErrGuardRejected is returned when the venue refuses an order for a
	// reason outside the engine's own risk gate, e.g. a reduce-only rejection.
	ErrGuardRejected = errors.New("order rejected by venue guard")

	// ErrUnavailable marks an optional signal the venue cannot supply.
	ErrUnavailable = errors.New("signal unavailable")
)

// Gateway executes the engine's actions against a venue and reports the
// venue's view of the position. Implementations hold a single instrument.
type Gateway interface {
	Open(ctx context.Context, side market.Side, notional float64) (Fill, error)
	Add(ctx context.Context, side market.Side, notional float64) (Fill, error)
	Close(ctx context.Context, side market.Side) (Fill, error)

	GetPosition(ctx context.Context) (PositionSnapshot, error)
	Price(ctx context.Context) (market.Sample, error)

	FundingRate(ctx context.Context) (float64, error)
	DailyRSI(ctx context.Context) (float64, error)
}

// Fill is what actually executed. Qty may be below the requested size or
// zero; the engine applies only what is reported here.
type Fill struct {
	Qty     float64
	Price   float64
	Fee     float64
	OrderID string
}

func (f Fill) Empty() bool { return f.Qty <= 0 }

func (f Fill) Notional() float64 { return f.Qty * f.Price }

// PositionSnapshot is the venue's truth. Qty is signed: positive long,
// negative short, zero flat.
type PositionSnapshot struct {
	Qty      float64
	AvgPrice float64
}

func (p PositionSnapshot) Flat() bool { return p.Qty == 0 }

func (p PositionSnapshot) Side() market.Side {
	if p.Qty < 0 {
		return market.Short
	}
	return market.Long
}

func (p PositionSnapshot) Size() float64 {
	if p.Qty < 0 {
		return -p.Qty
	}
	return p.Qty
}

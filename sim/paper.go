// Package sim holds the in-memory venue used for historical replay and
// dry runs, and the equity/drawdown tracker that scores a replay.
package sim

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/rustyeddy/gridbot/broker"
	"github.com/rustyeddy/gridbot/internal/id"
	"github.com/rustyeddy/gridbot/market"
)

// PaperGateway fills every market order at the last marked price and
// charges the taker fee on the filled notional. It keeps a one-way position
// like the live venue does.
type PaperGateway struct {
	mu        sync.Mutex
	prices    *market.PriceStore
	taker     float64
	fillRatio float64
	pos       broker.PositionSnapshot
	funding   *float64
	rsi       *float64
}

func NewPaperGateway(takerFee float64) *PaperGateway {
	return &PaperGateway{
		prices:    market.NewPriceStore(),
		taker:     takerFee,
		fillRatio: 1,
	}
}

// Mark sets the price the next orders fill at.
func (g *PaperGateway) Mark(s market.Sample) {
	g.prices.Set(s)
}

// SetFillRatio scales every following fill; 0 simulates orders that never
// fill. It is clamped to [0, 1].
func (g *PaperGateway) SetFillRatio(r float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fillRatio = math.Max(0, math.Min(1, r))
}

// SetSignals makes FundingRate and DailyRSI return fixed values. Nil keeps
// the signal unavailable.
func (g *PaperGateway) SetSignals(funding, rsi *float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.funding, g.rsi = funding, rsi
}

func (g *PaperGateway) Open(ctx context.Context, side market.Side, notional float64) (broker.Fill, error) {
	return g.fill(side, notional)
}

func (g *PaperGateway) Add(ctx context.Context, side market.Side, notional float64) (broker.Fill, error) {
	return g.fill(side, notional)
}

func (g *PaperGateway) fill(side market.Side, notional float64) (broker.Fill, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, err := g.prices.Get()
	if err != nil {
		return broker.Fill{}, fmt.Errorf("paper fill: %w", err)
	}
	if !g.pos.Flat() && g.pos.Side() != side {
		return broker.Fill{}, fmt.Errorf("paper fill: %s order while holding %s: %w", side, g.pos.Side(), broker.ErrGuardRejected)
	}

	qty := notional / p.Price * g.fillRatio
	if qty <= 0 {
		return broker.Fill{Price: p.Price}, nil
	}

	size := g.pos.Size()
	g.pos.AvgPrice = (g.pos.AvgPrice*size + p.Price*qty) / (size + qty)
	g.pos.Qty += side.Sign() * qty

	return broker.Fill{
		Qty:     qty,
		Price:   p.Price,
		Fee:     qty * p.Price * g.taker,
		OrderID: id.New(),
	}, nil
}

// Close is reduce-only: closing a flat or opposite position is a guard
// rejection, as on the venue.
func (g *PaperGateway) Close(ctx context.Context, side market.Side) (broker.Fill, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pos.Flat() || g.pos.Side() != side {
		return broker.Fill{}, fmt.Errorf("paper close %s: %w", side, broker.ErrGuardRejected)
	}
	p, err := g.prices.Get()
	if err != nil {
		return broker.Fill{}, fmt.Errorf("paper close: %w", err)
	}

	qty := g.pos.Size() * g.fillRatio
	if qty <= 0 {
		return broker.Fill{Price: p.Price}, nil
	}
	if g.fillRatio >= 1 {
		g.pos = broker.PositionSnapshot{}
	} else {
		g.pos.Qty -= side.Sign() * qty
	}

	return broker.Fill{
		Qty:     qty,
		Price:   p.Price,
		Fee:     qty * p.Price * g.taker,
		OrderID: id.New(),
	}, nil
}

func (g *PaperGateway) GetPosition(ctx context.Context) (broker.PositionSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pos, nil
}

func (g *PaperGateway) Price(ctx context.Context) (market.Sample, error) {
	return g.prices.Get()
}

func (g *PaperGateway) FundingRate(ctx context.Context) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.funding == nil {
		return 0, broker.ErrUnavailable
	}
	return *g.funding, nil
}

func (g *PaperGateway) DailyRSI(ctx context.Context) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rsi == nil {
		return 0, broker.ErrUnavailable
	}
	return *g.rsi, nil
}

// DryRun reads prices and signals from a real venue and sends orders to a
// PaperGateway marked with those prices.
type DryRun struct {
	Market broker.Gateway
	Paper  *PaperGateway
}

func (d DryRun) Open(ctx context.Context, side market.Side, notional float64) (broker.Fill, error) {
	return d.Paper.Open(ctx, side, notional)
}

func (d DryRun) Add(ctx context.Context, side market.Side, notional float64) (broker.Fill, error) {
	return d.Paper.Add(ctx, side, notional)
}

func (d DryRun) Close(ctx context.Context, side market.Side) (broker.Fill, error) {
	return d.Paper.Close(ctx, side)
}

func (d DryRun) GetPosition(ctx context.Context) (broker.PositionSnapshot, error) {
	return d.Paper.GetPosition(ctx)
}

func (d DryRun) Price(ctx context.Context) (market.Sample, error) {
	s, err := d.Market.Price(ctx)
	if err != nil {
		return s, err
	}
	d.Paper.Mark(s)
	return s, nil
}

func (d DryRun) FundingRate(ctx context.Context) (float64, error) {
	return d.Market.FundingRate(ctx)
}

func (d DryRun) DailyRSI(ctx context.Context) (float64, error) {
	return d.Market.DailyRSI(ctx)
}

package strategy

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/gridbot/broker"
	"github.com/rustyeddy/gridbot/ladder"
	"github.com/rustyeddy/gridbot/market"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func bar(i int, price float64) market.Sample {
	return market.Sample{Time: t0.Add(time.Duration(i) * time.Hour), Price: price}
}

func testLadder() ladder.Config {
	return ladder.Config{
		BaseNotional:        10,
		StepPct:             0.015,
		VolumeScale:         1.4,
		MaxLevels:           12,
		MaxPositionNotional: 500,
		TakeProfitPct:       0.008,
	}
}

func testParams() Params {
	return Params{
		Symbol:     "DOGEUSDT",
		Long:       testLadder(),
		Short:      testLadder(),
		TakeProfit: TakeProfit{Policy: PolicyFixed},
		Epsilon:    1e-9,
	}
}

func flipParams() Params {
	p := testParams()
	p.Flip = Flip{Enabled: true, Cooldown: 2 * time.Hour, RSIThreshold: 70}
	p.FundingPauseThreshold = -0.0005
	return p
}

// fill is what a venue with no fees and full fills would report.
func fill(d Decision) broker.Fill {
	return broker.Fill{Qty: d.Notional / d.Price, Price: d.Price}
}

// fakeGateway fills at the price set by the test. ratio scales every fill.
type fakeGateway struct {
	price    float64
	ratio    float64
	feeRate  float64
	err      error
	closeErr error
	pos      broker.PositionSnapshot
	orders   []string
}

func newFakeGateway(price float64) *fakeGateway {
	return &fakeGateway{price: price, ratio: 1}
}

func (g *fakeGateway) buy(side market.Side, notional float64) (broker.Fill, error) {
	if g.err != nil {
		return broker.Fill{}, g.err
	}
	qty := notional / g.price * g.ratio
	if qty > 0 {
		total := g.pos.Qty + side.Sign()*qty
		if g.pos.Flat() {
			g.pos.AvgPrice = g.price
		} else {
			g.pos.AvgPrice = (g.pos.AvgPrice*g.pos.Size() + g.price*qty) / (g.pos.Size() + qty)
		}
		g.pos.Qty = total
	}
	return broker.Fill{Qty: qty, Price: g.price, Fee: qty * g.price * g.feeRate, OrderID: "fake"}, nil
}

func (g *fakeGateway) Open(ctx context.Context, side market.Side, notional float64) (broker.Fill, error) {
	g.orders = append(g.orders, "open")
	return g.buy(side, notional)
}

func (g *fakeGateway) Add(ctx context.Context, side market.Side, notional float64) (broker.Fill, error) {
	g.orders = append(g.orders, "add")
	return g.buy(side, notional)
}

func (g *fakeGateway) Close(ctx context.Context, side market.Side) (broker.Fill, error) {
	g.orders = append(g.orders, "close")
	if g.closeErr != nil {
		return broker.Fill{}, g.closeErr
	}
	if g.err != nil {
		return broker.Fill{}, g.err
	}
	qty := g.pos.Size() * g.ratio
	g.pos.Qty -= side.Sign() * qty
	if g.ratio >= 1 {
		g.pos = broker.PositionSnapshot{}
	}
	return broker.Fill{Qty: qty, Price: g.price, Fee: qty * g.price * g.feeRate}, nil
}

func (g *fakeGateway) GetPosition(ctx context.Context) (broker.PositionSnapshot, error) {
	return g.pos, g.err
}

func (g *fakeGateway) Price(ctx context.Context) (market.Sample, error) {
	return market.Sample{Time: t0, Price: g.price}, g.err
}

func (g *fakeGateway) FundingRate(ctx context.Context) (float64, error) {
	return 0, broker.ErrUnavailable
}

func (g *fakeGateway) DailyRSI(ctx context.Context) (float64, error) {
	return 0, broker.ErrUnavailable
}

var errVenueDown = errors.New("venue down")

// broker0Fill fills d completely and charges fee on the notional.
func broker0Fill(d Decision, fee float64) broker.Fill {
	f := fill(d)
	f.Fee = d.Notional * fee
	return f
}

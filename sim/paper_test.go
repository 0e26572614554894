package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/gridbot/broker"
	"github.com/rustyeddy/gridbot/market"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestPaperGatewayNeedsPrice(t *testing.T) {
	t.Parallel()

	g := NewPaperGateway(0.0006)
	_, err := g.Open(context.Background(), market.Long, 10)
	assert.ErrorIs(t, err, market.ErrNoPrice)

	_, err = g.Price(context.Background())
	assert.ErrorIs(t, err, market.ErrNoPrice)
}

func TestPaperGatewayFillsAtMark(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := NewPaperGateway(0.0006)
	g.Mark(market.Sample{Time: t0, Price: 0.10})

	f, err := g.Open(ctx, market.Long, 10)
	require.NoError(t, err)
	assert.InDelta(t, 100, f.Qty, 1e-9)
	assert.InDelta(t, 0.10, f.Price, 1e-12)
	assert.InDelta(t, 10*0.0006, f.Fee, 1e-12)
	assert.Len(t, f.OrderID, 26)

	g.Mark(market.Sample{Time: t0.Add(time.Hour), Price: 0.08})
	f, err = g.Add(ctx, market.Long, 14)
	require.NoError(t, err)
	assert.InDelta(t, 175, f.Qty, 1e-9)

	pos, err := g.GetPosition(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 275, pos.Qty, 1e-9)
	assert.InDelta(t, 24.0/275, pos.AvgPrice, 1e-12)

	_, err = g.Open(ctx, market.Short, 10)
	assert.ErrorIs(t, err, broker.ErrGuardRejected, "one-way position")

	f, err = g.Close(ctx, market.Long)
	require.NoError(t, err)
	assert.InDelta(t, 275, f.Qty, 1e-9)
	pos, _ = g.GetPosition(ctx)
	assert.True(t, pos.Flat())

	_, err = g.Close(ctx, market.Long)
	assert.ErrorIs(t, err, broker.ErrGuardRejected)
}

func TestPaperGatewayShort(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := NewPaperGateway(0)
	g.Mark(market.Sample{Time: t0, Price: 2})

	_, err := g.Open(ctx, market.Short, 10)
	require.NoError(t, err)
	pos, _ := g.GetPosition(ctx)
	assert.InDelta(t, -5, pos.Qty, 1e-12)
	assert.Equal(t, market.Short, pos.Side())

	_, err = g.Close(ctx, market.Long)
	assert.ErrorIs(t, err, broker.ErrGuardRejected)
}

func TestPaperGatewayFillRatio(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := NewPaperGateway(0)
	g.Mark(market.Sample{Time: t0, Price: 0.10})

	g.SetFillRatio(0)
	f, err := g.Open(ctx, market.Long, 10)
	require.NoError(t, err)
	assert.True(t, f.Empty())
	pos, _ := g.GetPosition(ctx)
	assert.True(t, pos.Flat())

	g.SetFillRatio(0.25)
	f, err = g.Open(ctx, market.Long, 10)
	require.NoError(t, err)
	assert.InDelta(t, 25, f.Qty, 1e-9)

	g.SetFillRatio(0.5)
	f, err = g.Close(ctx, market.Long)
	require.NoError(t, err)
	assert.InDelta(t, 12.5, f.Qty, 1e-9)
	pos, _ = g.GetPosition(ctx)
	assert.InDelta(t, 12.5, pos.Qty, 1e-9)

	g.SetFillRatio(7)
	f, err = g.Close(ctx, market.Long)
	require.NoError(t, err)
	assert.InDelta(t, 12.5, f.Qty, 1e-9, "ratio is clamped to 1")
}

func TestPaperGatewaySignals(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := NewPaperGateway(0)
	_, err := g.FundingRate(ctx)
	assert.ErrorIs(t, err, broker.ErrUnavailable)
	_, err = g.DailyRSI(ctx)
	assert.ErrorIs(t, err, broker.ErrUnavailable)

	funding, rsi := -0.001, 72.5
	g.SetSignals(&funding, &rsi)
	v, err := g.FundingRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, funding, v)
	v, err = g.DailyRSI(ctx)
	require.NoError(t, err)
	assert.Equal(t, rsi, v)
}

func TestDryRunMarksPaperWithMarketPrice(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	venue := NewPaperGateway(0)
	venue.Mark(market.Sample{Time: t0, Price: 0.125})
	funding := 0.0001
	venue.SetSignals(&funding, nil)

	paper := NewPaperGateway(0.0006)
	dr := DryRun{Market: venue, Paper: paper}

	s, err := dr.Price(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.125, s.Price)

	f, err := dr.Open(ctx, market.Long, 10)
	require.NoError(t, err)
	assert.InDelta(t, 80, f.Qty, 1e-9)

	pos, err := dr.GetPosition(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 80, pos.Qty, 1e-9)
	venuePos, _ := venue.GetPosition(ctx)
	assert.True(t, venuePos.Flat(), "orders never reach the market gateway")

	v, err := dr.FundingRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, funding, v)
	_, err = dr.DailyRSI(ctx)
	assert.ErrorIs(t, err, broker.ErrUnavailable)
}

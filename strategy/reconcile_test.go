package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/gridbot/broker"
	"github.com/rustyeddy/gridbot/journal"
	"github.com/rustyeddy/gridbot/market"
)

func TestReconcile(t *testing.T) {
	t.Parallel()

	p := testParams()
	open := openAt(t, p, NewState(), bar(0, 0.10))

	t.Run("both flat", func(t *testing.T) {
		s, rec, change := Reconcile(NewState(), p, broker.PositionSnapshot{}, bar(1, 0.1), Signals{})
		assert.Equal(t, ChangeNone, change)
		assert.Nil(t, rec)
		assert.Equal(t, NewState(), s)
	})

	t.Run("in sync", func(t *testing.T) {
		s, _, change := Reconcile(open, p, broker.PositionSnapshot{Qty: 100, AvgPrice: 0.10}, bar(1, 0.1), Signals{})
		assert.Equal(t, ChangeNone, change)
		assert.Equal(t, open, s)
	})

	t.Run("venue closed", func(t *testing.T) {
		s, rec, change := Reconcile(open, p, broker.PositionSnapshot{}, bar(2, 0.101), Signals{})
		assert.Equal(t, ChangeExternalClose, change)
		require.NotNil(t, rec)
		assert.InDelta(t, 0.101, rec.ExitPrice, 1e-12)
		assert.InDelta(t, (0.101-0.10)*100, rec.RealizedPnL, 1e-12)
		assert.False(t, s.Position.IsOpen())
	})

	t.Run("venue closed without a price", func(t *testing.T) {
		s, rec, change := Reconcile(open, p, broker.PositionSnapshot{}, bar(2, 0), Signals{})
		assert.Equal(t, ChangeNone, change)
		assert.Nil(t, rec)
		assert.Equal(t, open, s)
	})

	t.Run("quantity override", func(t *testing.T) {
		s, rec, change := Reconcile(open, p, broker.PositionSnapshot{Qty: 60, AvgPrice: 0.0999}, bar(3, 0.1), Signals{})
		assert.Equal(t, ChangeQtyOverride, change)
		assert.Nil(t, rec)
		assert.InDelta(t, 60, s.Position.Qty, 1e-12)
		assert.InDelta(t, 0.0999, s.Position.AvgEntry, 1e-12)
		assert.Equal(t, open.Position.Level, s.Position.Level)
		assert.Equal(t, open.Position.NextTrigger, s.Position.NextTrigger)
	})

	t.Run("venue grew the position", func(t *testing.T) {
		s, rec, change := Reconcile(open, p, broker.PositionSnapshot{Qty: 150, AvgPrice: 0.098}, bar(3, 0.096), Signals{})
		assert.Equal(t, ChangeQtyOverride, change)
		assert.Nil(t, rec)
		assert.InDelta(t, 150, s.Position.Qty, 1e-12)
		assert.InDelta(t, 0.098, s.Position.AvgEntry, 1e-12)
		assert.Zero(t, s.RealizedCash)
	})

	t.Run("adopt venue position", func(t *testing.T) {
		s, _, change := Reconcile(NewState(), p, broker.PositionSnapshot{Qty: -50, AvgPrice: 0.2}, bar(4, 0.21), Signals{})
		assert.Equal(t, ChangeAdopted, change)
		assert.Equal(t, market.Short, s.Position.Side)
		assert.InDelta(t, 50, s.Position.Qty, 1e-12)
		assert.Equal(t, 0, s.Position.Level)
		assert.InDelta(t, 0.2*1.015, s.Position.NextTrigger, 1e-12)
	})
}

func TestReconcileVenueReducedPosition(t *testing.T) {
	t.Parallel()

	p := testParams()
	p.Fees = Fees{Taker: 0.001, Maker: 0.001}
	s := NewState()
	d := Decide(s, p, bar(0, 0.10), Signals{})
	s, _ = Apply(s, p, d, broker.Fill{Qty: 100, Price: 0.10, Fee: 0.01}, t0, Signals{})
	before := s.Equity(0.12)

	next, rec, change := Reconcile(s, p, broker.PositionSnapshot{Qty: 60, AvgPrice: 0.10}, bar(1, 0.12), Signals{})
	assert.Equal(t, ChangeQtyOverride, change)
	assert.Nil(t, rec)
	assert.InDelta(t, 60, next.Position.Qty, 1e-12)

	// 40 units closed at 0.12: gross 0.8, 40% of the entry fee, maker exit fee.
	exitFee := 40 * 0.12 * 0.001
	assert.InDelta(t, 0.8-0.004-exitFee, next.RealizedCash, 1e-12)
	assert.InDelta(t, 0.006, next.Risk.EntryFees, 1e-12)
	assert.InDelta(t, 40, next.Risk.ClosedQty, 1e-12)
	assert.InDelta(t, before-0.004-exitFee, next.Equity(0.12), 1e-12)
}

func TestReconcileVenueOnOtherSide(t *testing.T) {
	t.Parallel()

	p := flipParams()
	open := openAt(t, p, NewState(), bar(0, 0.10))
	assert.InDelta(t, 2.0, open.Equity(0.12), 1e-12)

	at := bar(5, 0.12)
	s, rec, change := Reconcile(open, p, broker.PositionSnapshot{Qty: -10}, at, Signals{})
	assert.Equal(t, ChangeReversed, change)

	require.NotNil(t, rec)
	assert.Equal(t, journal.ReasonExternalClose, rec.Reason)
	assert.Equal(t, market.Long, rec.Side)
	assert.InDelta(t, 0.12, rec.ExitPrice, 1e-12)
	assert.InDelta(t, 2.0, rec.RealizedPnL, 1e-12)
	assert.InDelta(t, 100, rec.Quantity, 1e-12)

	assert.InDelta(t, 2.0, s.RealizedCash, 1e-12)
	assert.Equal(t, at.Time.Add(p.Flip.Cooldown), s.Risk.CooldownUntil)
	assert.InDelta(t, 2.0, s.Equity(0.12), 1e-12)

	assert.Equal(t, market.Short, s.Position.Side)
	assert.InDelta(t, 10, s.Position.Qty, 1e-12)
	assert.InDelta(t, 0.12, s.Position.AvgEntry, 1e-12)
	assert.Equal(t, 0, s.Position.Level)
}

func TestReconcileOtherSideWithoutPrice(t *testing.T) {
	t.Parallel()

	p := testParams()
	open := openAt(t, p, NewState(), bar(0, 0.10))
	s, rec, change := Reconcile(open, p, broker.PositionSnapshot{Qty: -10}, bar(1, 0), Signals{})
	assert.Equal(t, ChangeNone, change)
	assert.Nil(t, rec)
	assert.Equal(t, open, s)
}

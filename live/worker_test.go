package live

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/gridbot/broker"
	"github.com/rustyeddy/gridbot/ladder"
	"github.com/rustyeddy/gridbot/market"
	"github.com/rustyeddy/gridbot/sim"
	"github.com/rustyeddy/gridbot/strategy"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testParams() strategy.Params {
	l := ladder.Config{
		BaseNotional:        10,
		StepPct:             0.015,
		VolumeScale:         1.4,
		MaxLevels:           12,
		MaxPositionNotional: 500,
		TakeProfitPct:       0.008,
	}
	return strategy.Params{
		Symbol:     "DOGEUSDT",
		Long:       l,
		Short:      l,
		TakeProfit: strategy.TakeProfit{Policy: strategy.PolicyFixed},
		Epsilon:    1e-9,
	}
}

func flipParams() strategy.Params {
	p := testParams()
	p.Flip = strategy.Flip{Enabled: true, Cooldown: 2 * time.Hour, RSIThreshold: 70}
	p.FundingPauseThreshold = -0.0005
	return p
}

// countingGateway counts signal calls on top of a paper venue.
type countingGateway struct {
	*sim.PaperGateway
	funding atomic.Int32
	rsi     atomic.Int32
}

func (g *countingGateway) FundingRate(ctx context.Context) (float64, error) {
	g.funding.Add(1)
	return g.PaperGateway.FundingRate(ctx)
}

func (g *countingGateway) DailyRSI(ctx context.Context) (float64, error) {
	g.rsi.Add(1)
	return g.PaperGateway.DailyRSI(ctx)
}

type harness struct {
	paper   *sim.PaperGateway
	gw      *countingGateway
	engine  *strategy.Engine
	metrics *Metrics
	reg     *prometheus.Registry
	worker  *Worker
}

func newHarness(t *testing.T, p strategy.Params, cfg Config) *harness {
	t.Helper()

	paper := sim.NewPaperGateway(0)
	gw := &countingGateway{PaperGateway: paper}
	engine, err := strategy.NewEngine(p, gw, nil, nil)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	return &harness{
		paper:   paper,
		gw:      gw,
		engine:  engine,
		metrics: m,
		reg:     reg,
		worker:  NewWorker(engine, gw, cfg, m, nil),
	}
}

func TestTickOpensAndReportsState(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testParams(), Config{})
	h.paper.Mark(market.Sample{Time: t0, Price: 0.1})

	require.NoError(t, h.worker.Tick(context.Background()))

	s := h.engine.State()
	require.True(t, s.Position.IsOpen())
	assert.Equal(t, market.Long, s.Position.Side)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Ticks))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Actions.WithLabelValues("open")))
	assert.InDelta(t, 100, testutil.ToFloat64(h.metrics.PositionQty), 1e-9)
	assert.InDelta(t, 10, testutil.ToFloat64(h.metrics.PositionNotional), 1e-9)
	assert.Equal(t, 0.1, testutil.ToFloat64(h.metrics.Price))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.Level))
	assert.Equal(t, float64(t0.Unix()), testutil.ToFloat64(h.metrics.LastTick))

	// no flip: neither signal is polled
	assert.Equal(t, int32(0), h.gw.funding.Load())
	assert.Equal(t, int32(0), h.gw.rsi.Load())

	// second tick at the same price holds
	require.NoError(t, h.worker.Tick(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Skips.WithLabelValues(strategy.ReasonHold)))
}

func TestTickPriceFailureLeavesState(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testParams(), Config{})

	err := h.worker.Tick(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, market.ErrNoPrice)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Errors.WithLabelValues("price")))
	assert.False(t, h.engine.State().Position.IsOpen())
}

func TestTickReconcilesExternalClose(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testParams(), Config{})
	h.paper.Mark(market.Sample{Time: t0, Price: 0.1})
	require.NoError(t, h.worker.Tick(context.Background()))

	// the venue closes the position on its own
	h.paper.Mark(market.Sample{Time: t0.Add(time.Minute), Price: 0.101})
	_, err := h.paper.Close(context.Background(), market.Long)
	require.NoError(t, err)

	require.NoError(t, h.worker.Tick(context.Background()))

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Reconciled.WithLabelValues("external_close")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.TradesClosed.WithLabelValues("external_close")))
	assert.Greater(t, h.engine.State().RealizedCash, 0.0)
}

func TestTickTakeProfitCountsTrade(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testParams(), Config{})
	h.paper.Mark(market.Sample{Time: t0, Price: 0.1})
	require.NoError(t, h.worker.Tick(context.Background()))

	h.paper.Mark(market.Sample{Time: t0.Add(time.Minute), Price: 0.1009})
	require.NoError(t, h.worker.Tick(context.Background()))

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.TradesClosed.WithLabelValues(strategy.ReasonTakeProfit)))
	assert.Equal(t, -1.0, testutil.ToFloat64(h.metrics.Level))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.PositionQty))
}

func TestSignalsCacheRSI(t *testing.T) {
	t.Parallel()

	h := newHarness(t, flipParams(), Config{RSIRefresh: time.Hour})
	h.paper.SetSignals(strategy.Float(0.0001), strategy.Float(75))
	h.paper.Mark(market.Sample{Time: t0, Price: 0.1})

	now := t0
	h.worker.SetClock(func() time.Time { return now })

	ctx := context.Background()
	require.NoError(t, h.worker.Tick(ctx))
	require.NoError(t, h.worker.Tick(ctx))
	assert.Equal(t, int32(1), h.gw.rsi.Load())
	assert.Equal(t, int32(2), h.gw.funding.Load())
	assert.Equal(t, 75.0, testutil.ToFloat64(h.metrics.RSI))
	assert.Equal(t, 0.0001, testutil.ToFloat64(h.metrics.FundingRate))

	now = now.Add(time.Hour)
	require.NoError(t, h.worker.Tick(ctx))
	assert.Equal(t, int32(2), h.gw.rsi.Load())
}

func TestSignalsUnavailable(t *testing.T) {
	t.Parallel()

	h := newHarness(t, flipParams(), Config{})
	h.paper.Mark(market.Sample{Time: t0, Price: 0.1})

	sig := h.worker.signals(context.Background())
	assert.Nil(t, sig.FundingRate)
	assert.Nil(t, sig.RSI)
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.Errors.WithLabelValues("funding")))

	// an unavailable RSI is not asked for again until the refresh passes
	h.worker.signals(context.Background())
	assert.Equal(t, int32(1), h.gw.rsi.Load())
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testParams(), Config{PollInterval: time.Millisecond})
	h.paper.Mark(market.Sample{Time: t0, Price: 0.1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.worker.Run(ctx) }()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.Ticks) >= 3
	}, 5*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRunKeepsGoingAfterFailedTick(t *testing.T) {
	t.Parallel()

	// no price marked: every tick fails
	h := newHarness(t, testParams(), Config{PollInterval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.worker.Run(ctx) }()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.Errors.WithLabelValues("price")) >= 2
	}, 5*time.Second, time.Millisecond)
}

func TestMetricsHandler(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testParams(), Config{})
	h.paper.Mark(market.Sample{Time: t0, Price: 0.1})
	require.NoError(t, h.worker.Tick(context.Background()))

	srv := httptest.NewServer(Handler(h.reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "gridbot_ticks_total 1")
	assert.Contains(t, string(body), `gridbot_actions_total{action="open"} 1`)
}

type prepFunc func(context.Context) error

func (f prepFunc) Prepare(ctx context.Context) error { return f(ctx) }

func TestServe(t *testing.T) {
	t.Parallel()

	t.Run("prepare failure", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, testParams(), Config{})
		boom := errors.New("leverage refused")
		err := Serve(context.Background(), h.worker, prepFunc(func(context.Context) error { return boom }), "", h.reg)
		require.ErrorIs(t, err, boom)
	})

	t.Run("stops with context", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, testParams(), Config{PollInterval: time.Millisecond})
		h.paper.Mark(market.Sample{Time: t0, Price: 0.1})

		prepared := false
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := Serve(ctx, h.worker, prepFunc(func(context.Context) error { prepared = true; return nil }), "127.0.0.1:0", h.reg)
		require.NoError(t, err)
		assert.True(t, prepared)
		assert.GreaterOrEqual(t, testutil.ToFloat64(h.metrics.Ticks), 1.0)
	})
}

func TestNilMetricsAreIgnored(t *testing.T) {
	t.Parallel()

	paper := sim.NewPaperGateway(0)
	engine, err := strategy.NewEngine(testParams(), paper, nil, nil)
	require.NoError(t, err)
	w := NewWorker(engine, paper, Config{}, nil, nil)

	paper.Mark(market.Sample{Time: t0, Price: 0.1})
	require.NoError(t, w.Tick(context.Background()))
	require.Error(t, NewWorker(engine, failingPrice{paper}, Config{}, nil, nil).Tick(context.Background()))
}

type failingPrice struct{ broker.Gateway }

func (failingPrice) Price(context.Context) (market.Sample, error) {
	return market.Sample{}, errors.New("venue down")
}

func TestReconciledCountsClosedTrades(t *testing.T) {
	t.Parallel()

	m := NewMetrics(prometheus.NewRegistry())
	m.reconciled(strategy.ChangeNone)
	m.reconciled(strategy.ChangeQtyOverride)
	m.reconciled(strategy.ChangeReversed)
	m.reconciled(strategy.ChangeExternalClose)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconciled.WithLabelValues("reversed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconciled.WithLabelValues("qty_override")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TradesClosed.WithLabelValues("external_close")))
}

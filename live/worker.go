// Package live runs the strategy engine against a real venue on a polling
// loop and exposes its state as Prometheus metrics.
package live

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/gridbot/broker"
	"github.com/rustyeddy/gridbot/market"
	"github.com/rustyeddy/gridbot/strategy"
)

const (
	DefaultPollInterval = 3 * time.Second
	DefaultRSIRefresh   = time.Hour

	shutdownTimeout = 5 * time.Second
)

type Config struct {
	PollInterval time.Duration
	RSIRefresh   time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.RSIRefresh <= 0 {
		c.RSIRefresh = DefaultRSIRefresh
	}
	return c
}

// Preparer is implemented by venues that need account setup (position mode,
// leverage, lot-size rules) before the first order.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// Worker polls the venue and feeds the engine one sample per tick. gw should
// be the same gateway the engine trades through, normally wrapped in a
// broker.RetryGateway.
type Worker struct {
	engine  *strategy.Engine
	gw      broker.Gateway
	cfg     Config
	metrics *Metrics
	log     *zap.Logger
	now     func() time.Time

	rsi   *float64
	rsiAt time.Time
}

// NewWorker builds a worker. metrics and log may be nil.
func NewWorker(engine *strategy.Engine, gw broker.Gateway, cfg Config, metrics *Metrics, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		engine:  engine,
		gw:      gw,
		cfg:     cfg.withDefaults(),
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
}

// SetClock replaces time.Now for stamping samples and aging the RSI cache.
func (w *Worker) SetClock(now func() time.Time) { w.now = now }

// Tick runs one iteration: price, position sync, signals, one evaluation.
// State is left as it was when any step fails.
func (w *Worker) Tick(ctx context.Context) error {
	if w.metrics != nil {
		w.metrics.Ticks.Inc()
	}

	sample, err := w.gw.Price(ctx)
	if err != nil {
		w.metrics.failed("price")
		return fmt.Errorf("price: %w", err)
	}
	if sample.Time.IsZero() {
		sample.Time = w.now()
	}

	sig := w.signals(ctx)

	change, err := w.engine.Sync(ctx, sample, sig)
	if err != nil {
		w.metrics.failed("sync")
		return fmt.Errorf("sync: %w", err)
	}
	w.metrics.reconciled(change)

	d, err := w.engine.Evaluate(ctx, sample, sig)
	if err != nil {
		w.metrics.failed("evaluate")
		return fmt.Errorf("evaluate: %w", err)
	}

	s := w.engine.State()
	w.metrics.decision(d, s)
	w.metrics.observe(s, sample, sig)
	return nil
}

// signals fetches funding whenever a short can be opened or held, and the
// daily RSI at most once per RSIRefresh. Failures leave the signal nil, or
// the cached RSI in place.
func (w *Worker) signals(ctx context.Context) strategy.Signals {
	p := w.engine.Params()
	var sig strategy.Signals

	if p.Flip.Enabled || w.engine.State().Position.Side == market.Short {
		f, err := w.gw.FundingRate(ctx)
		switch {
		case err == nil:
			sig.FundingRate = &f
		case errors.Is(err, broker.ErrUnavailable):
		default:
			w.metrics.failed("funding")
			w.log.Warn("funding rate unavailable", zap.Error(err))
		}
	}

	if p.Flip.Enabled {
		now := w.now()
		if w.rsiAt.IsZero() || now.Sub(w.rsiAt) >= w.cfg.RSIRefresh {
			v, err := w.gw.DailyRSI(ctx)
			switch {
			case err == nil:
				w.rsi, w.rsiAt = &v, now
			case errors.Is(err, broker.ErrUnavailable):
				w.rsiAt = now
			default:
				w.metrics.failed("rsi")
				w.log.Warn("daily rsi unavailable", zap.Error(err))
			}
		}
		sig.RSI = w.rsi
	}
	return sig
}

// Run ticks every PollInterval until ctx is cancelled. A failed tick is
// logged and the next one starts fresh.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("live worker started", zap.Duration("poll_interval", w.cfg.PollInterval))
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("live worker stopped")
			return nil
		case <-timer.C:
		}

		if err := w.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.log.Error("tick failed", zap.Error(err))
		}
		timer.Reset(w.cfg.PollInterval)
	}
}

// Serve prepares the venue when it needs it, then runs the worker alongside
// a metrics server on addr. An empty addr skips the server.
func Serve(ctx context.Context, w *Worker, prep Preparer, addr string, g prometheus.Gatherer) error {
	if prep != nil {
		if err := prep.Prepare(ctx); err != nil {
			return fmt.Errorf("prepare venue: %w", err)
		}
	}

	group, ctx := errgroup.WithContext(ctx)

	if addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", Handler(g))
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		group.Go(func() error {
			w.log.Info("metrics listening", zap.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		group.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	group.Go(func() error {
		return w.Run(ctx)
	})

	return group.Wait()
}

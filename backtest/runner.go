// Package backtest replays historical bars through the strategy engine
// against the paper venue and scores the run.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/gridbot/indicators"
	"github.com/rustyeddy/gridbot/journal"
	"github.com/rustyeddy/gridbot/sim"
	"github.com/rustyeddy/gridbot/strategy"
)

type Summary = journal.Summary

// Result is everything a replay produced.
type Result struct {
	Summary Summary
	Start   time.Time
	End     time.Time
	Trades  []journal.TradeRecord
	Equity  []journal.EquitySample
	Final   strategy.State
}

// Runner drives the engine forward over a feed. Only Params, StartEquity
// and Feed are required.
type Runner struct {
	Params      strategy.Params
	StartEquity float64
	Feed        Feed

	// Journal receives every trade and equity sample in addition to the
	// in-memory copy the summary is computed from.
	Journal journal.Journal

	// Paper is created from the taker fee when nil.
	Paper *sim.PaperGateway

	RSIPeriod int
	Log       *zap.Logger
}

// Run executes the replay loop. For each bar:
//  1. record equity as it stood before the bar is acted on
//  2. mark the paper venue and update the daily RSI
//  3. let the engine evaluate once
//
// Open positions are left open at the end and stay marked to market.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.Feed == nil {
		return Result{}, errors.New("backtest: Feed is required")
	}
	defer r.Feed.Close()

	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	paper := r.Paper
	if paper == nil {
		paper = sim.NewPaperGateway(r.Params.Fees.Taker)
	}

	mem := journal.NewMemory()
	var sink journal.Journal = mem
	if r.Journal != nil {
		sink = journal.Multi{mem, r.Journal}
	}

	engine, err := strategy.NewEngine(r.Params, paper, sink, log)
	if err != nil {
		return Result{}, fmt.Errorf("backtest: %w", err)
	}
	tracker := sim.NewTracker(r.StartEquity)
	rsi := indicators.NewDailyRSI(r.RSIPeriod)

	var start, end time.Time
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		s, ok, err := r.Feed.Next()
		if err != nil {
			return Result{}, fmt.Errorf("backtest: feed: %w", err)
		}
		if !ok {
			break
		}
		if start.IsZero() {
			start = s.Time
		}
		end = s.Time

		eq := tracker.Observe(s, engine.State())
		if err := sink.RecordEquity(eq); err != nil {
			return Result{}, fmt.Errorf("backtest: record equity: %w", err)
		}

		paper.Mark(s)
		rsi.Update(s)

		sig := strategy.Signals{RSI: indicators.Current(rsi)}
		if _, err := engine.Evaluate(ctx, s, sig); err != nil {
			return Result{}, fmt.Errorf("backtest: bar %s: %w", s.Time.Format(time.RFC3339), err)
		}
		tracker.Exposure(engine.State(), s.Price)
	}

	res := Result{
		Start:  start,
		End:    end,
		Trades: mem.Trades(),
		Equity: mem.Equity(),
		Final:  engine.State(),
	}
	res.Summary = Summarize(tracker, res.Trades)

	log.Info("backtest done",
		zap.Int("bars", res.Summary.Bars),
		zap.Int("trades", res.Summary.TradesClosed),
		zap.Float64("total_pnl", res.Summary.TotalPnL),
		zap.Float64("max_dd_pct", res.Summary.MaxDrawdownPct),
	)
	return res, nil
}

// Summarize scores a replay from its tracker and closed trades.
func Summarize(t *sim.Tracker, trades []journal.TradeRecord) Summary {
	s := Summary{
		Bars:                    t.Bars,
		TradesClosed:            len(trades),
		MaxDrawdownAbs:          t.MaxDrawdown,
		MaxDrawdownPct:          t.MaxDrawdownPct(),
		DeepestLevelHit:         t.DeepestLevel,
		LargestPositionNotional: t.LargestNotional,
		EndingEquity:            t.StartEquity,
	}
	if t.Bars > 0 {
		s.EndingEquity = t.Last.Equity
	}

	wins := 0
	for _, tr := range trades {
		s.TotalPnL += tr.RealizedPnL
		if tr.Win() {
			wins++
		}
	}
	if len(trades) > 0 {
		rate := float64(wins) / float64(len(trades))
		s.WinRate = &rate
	}
	return s
}

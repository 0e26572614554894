package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/rustyeddy/gridbot/broker"
	"github.com/rustyeddy/gridbot/journal"
	"github.com/rustyeddy/gridbot/market"
	"github.com/rustyeddy/gridbot/risk"
)

// Engine owns the State and is the only thing that mutates it. Each
// Evaluate issues at most one order and applies its fill before returning,
// so a second order can never be in flight.
type Engine struct {
	mu      sync.Mutex
	params  Params
	state   State
	gw      broker.Gateway
	journal journal.Journal
	log     *zap.Logger
}

func NewEngine(p Params, gw broker.Gateway, j journal.Journal, log *zap.Logger) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("strategy params: %w", err)
	}
	if gw == nil {
		return nil, errors.New("strategy: nil gateway")
	}
	if j == nil {
		j = journal.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		params:  p,
		state:   NewState(),
		gw:      gw,
		journal: j,
		log:     log.With(zap.String("symbol", p.Symbol)),
	}, nil
}

func (e *Engine) Params() Params { return e.params }

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Evaluate runs one decision for sample and executes it. Gateway errors are
// returned with the state untouched; risk skips and venue guard rejections
// of a close are logged and are not errors.
func (e *Engine) Evaluate(ctx context.Context, sample market.Sample, sig Signals) (Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d := Decide(e.state, e.params, sample, sig)
	if d.Action == ActionNone {
		e.logSkip(d)
		return d, nil
	}

	var (
		fill broker.Fill
		err  error
	)
	switch d.Action {
	case ActionOpen:
		fill, err = e.gw.Open(ctx, d.Side, d.Notional)
	case ActionAdd:
		fill, err = e.gw.Add(ctx, d.Side, d.Notional)
	case ActionClose:
		fill, err = e.gw.Close(ctx, d.Side)
	}
	if err != nil {
		if d.Action == ActionClose && errors.Is(err, broker.ErrGuardRejected) {
			e.log.Info("close rejected by venue guard", zap.Float64("price", d.Price), zap.Error(err))
			return Decision{Side: d.Side, Price: d.Price, Level: d.Level, Target: d.Target, Reason: ReasonBlocked}, nil
		}
		return d, fmt.Errorf("%s %s: %w", d.Action, d.Side, err)
	}

	if fill.Empty() {
		e.log.Warn("order returned no fill",
			zap.Stringer("action", d.Action),
			zap.Stringer("side", d.Side),
			zap.Float64("notional", d.Notional))
		return d, nil
	}
	if fill.Qty*fill.Price < d.Notional*(1-0.01) && d.Action != ActionClose {
		e.log.Info("partial fill",
			zap.Stringer("action", d.Action),
			zap.Float64("requested", d.Notional),
			zap.Float64("filled", fill.Notional()))
	}

	next, rec := Apply(e.state, e.params, d, fill, sample.Time, sig)
	e.state = next

	pos := next.Position
	e.log.Info(d.Action.String(),
		zap.Stringer("side", d.Side),
		zap.Int("level", pos.Level),
		zap.Float64("fill_price", fill.Price),
		zap.Float64("fill_qty", fill.Qty),
		zap.Float64("fee", fill.Fee),
		zap.Float64("avg_entry", pos.AvgEntry),
		zap.Float64("next_trigger", pos.NextTrigger),
		zap.String("order_id", fill.OrderID))

	return d, e.record(rec)
}

// Sync pulls the venue's position and reconciles local state with it.
func (e *Engine) Sync(ctx context.Context, price market.Sample, sig Signals) (Change, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.gw.GetPosition(ctx)
	if err != nil {
		return ChangeNone, fmt.Errorf("get position: %w", err)
	}

	next, rec, change := Reconcile(e.state, e.params, snap, price, sig)
	if change != ChangeNone {
		e.log.Info("position reconciled",
			zap.Stringer("change", change),
			zap.Float64("venue_qty", snap.Qty),
			zap.Float64("venue_avg", snap.AvgPrice),
			zap.Float64("local_qty", e.state.Position.Qty))
	}
	e.state = next
	return change, e.record(rec)
}

func (e *Engine) record(rec *journal.TradeRecord) error {
	if rec == nil {
		return nil
	}
	e.log.Info("trade closed",
		zap.String("trade_id", rec.TradeID),
		zap.Stringer("side", rec.Side),
		zap.Int("levels", rec.LevelsUsed),
		zap.Float64("avg_entry", rec.AvgEntryPrice),
		zap.Float64("exit", rec.ExitPrice),
		zap.Float64("pnl", rec.RealizedPnL),
		zap.String("reason", rec.Reason))
	if err := e.journal.RecordTrade(*rec); err != nil {
		return fmt.Errorf("record trade %s: %w", rec.TradeID, err)
	}
	return nil
}

func (e *Engine) logSkip(d Decision) {
	if len(d.Violations) == 0 {
		if d.Reason == ReasonBadPrice {
			e.log.Warn("skipping sample with bad price", zap.Float64("price", d.Price))
		}
		return
	}
	gate := risk.Decision{Violations: d.Violations}
	log := e.log.Info
	if gate.Has(risk.CodeCooldown) {
		log = e.log.Debug
	}
	log("risk skip",
		zap.String("reason", d.Reason),
		zap.String("codes", gate.Codes()),
		zap.String("detail", d.Violations[0].Msg),
		zap.Float64("price", d.Price))
}

package live

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rustyeddy/gridbot/market"
	"github.com/rustyeddy/gridbot/strategy"
)

const namespace = "gridbot"

// Metrics are the worker's Prometheus series.
type Metrics struct {
	Ticks        prometheus.Counter
	Errors       *prometheus.CounterVec
	Actions      *prometheus.CounterVec
	Skips        *prometheus.CounterVec
	TradesClosed *prometheus.CounterVec
	Reconciled   *prometheus.CounterVec

	Price            prometheus.Gauge
	PositionQty      prometheus.Gauge
	PositionNotional prometheus.Gauge
	Level            prometheus.Gauge
	NextTrigger      prometheus.Gauge
	RealizedCash     prometheus.Gauge
	Unrealized       prometheus.Gauge
	FundingRate      prometheus.Gauge
	RSI              prometheus.Gauge
	LastTick         prometheus.Gauge
}

// NewMetrics registers every series with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	gauge := func(name, help string) prometheus.Gauge {
		return f.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}

	return &Metrics{
		Ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Polling iterations started",
		}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Failed iterations by stage",
		}, []string{"stage"}),
		Actions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Orders filled by action",
		}, []string{"action"}),
		Skips: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skips_total",
			Help:      "Evaluations without an order by reason",
		}, []string{"reason"}),
		TradesClosed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_closed_total",
			Help:      "Positions fully closed by reason",
		}, []string{"reason"}),
		Reconciled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciled_total",
			Help:      "Local state corrections from the venue position",
		}, []string{"change"}),

		Price:            gauge("price", "Last sampled price"),
		PositionQty:      gauge("position_qty", "Signed position quantity, negative when short"),
		PositionNotional: gauge("position_notional", "Position quantity times last price"),
		Level:            gauge("ladder_level", "Highest ladder level filled, -1 when flat"),
		NextTrigger:      gauge("next_trigger_price", "Price that fills the next safety order"),
		RealizedCash:     gauge("realized_cash", "Net pnl of every close so far"),
		Unrealized:       gauge("unrealized_pnl", "Gross mark-to-market pnl of the open position"),
		FundingRate:      gauge("funding_rate", "Last funding rate seen"),
		RSI:              gauge("daily_rsi", "Last daily RSI seen"),
		LastTick:         gauge("last_tick_timestamp_seconds", "Unix time of the last completed iteration"),
	}
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) observe(s strategy.State, sample market.Sample, sig strategy.Signals) {
	if m == nil {
		return
	}
	pos := s.Position
	m.Price.Set(sample.Price)
	m.PositionQty.Set(pos.Side.Sign() * pos.Qty)
	m.PositionNotional.Set(pos.Notional(sample.Price))
	m.Level.Set(float64(pos.Level))
	m.NextTrigger.Set(pos.NextTrigger)
	m.RealizedCash.Set(s.RealizedCash)
	m.Unrealized.Set(pos.Unrealized(sample.Price))
	if sig.FundingRate != nil {
		m.FundingRate.Set(*sig.FundingRate)
	}
	if sig.RSI != nil {
		m.RSI.Set(*sig.RSI)
	}
	m.LastTick.Set(float64(sample.Time.Unix()))
}

func (m *Metrics) decision(d strategy.Decision, after strategy.State) {
	if m == nil {
		return
	}
	if d.Action == strategy.ActionNone {
		m.Skips.WithLabelValues(d.Reason).Inc()
		return
	}
	m.Actions.WithLabelValues(d.Action.String()).Inc()
	if d.Action == strategy.ActionClose && !after.Position.IsOpen() {
		m.TradesClosed.WithLabelValues(d.Reason).Inc()
	}
}

func (m *Metrics) reconciled(c strategy.Change) {
	if m == nil || c == strategy.ChangeNone {
		return
	}
	m.Reconciled.WithLabelValues(c.String()).Inc()
	if c == strategy.ChangeExternalClose || c == strategy.ChangeReversed {
		m.TradesClosed.WithLabelValues(strategy.ChangeExternalClose.String()).Inc()
	}
}

func (m *Metrics) failed(stage string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(stage).Inc()
}

package indicators

import (
	"fmt"
	"time"

	"github.com/markcheno/go-talib"

	"github.com/rustyeddy/gridbot/market"
)

const (
	DefaultRSIPeriod = 14

	day = 24 * time.Hour

	// maxDays bounds the close history. Wilder smoothing forgets old days
	// quickly, so a few hundred days give the same value as the full series.
	maxDays = 400
)

// DailyRSI buckets samples into UTC days and computes RSI over the daily
// closes. The day in progress counts with its latest price as its close,
// the same way the venue's daily klines report it.
type DailyRSI struct {
	period int
	closes []float64
	day    time.Time
	last   float64
	seen   bool
}

func NewDailyRSI(period int) *DailyRSI {
	if period < 2 {
		period = DefaultRSIPeriod
	}
	return &DailyRSI{period: period}
}

func (r *DailyRSI) Name() string { return fmt.Sprintf("RSI(%d,1d)", r.period) }

func (r *DailyRSI) Warmup() int { return r.period + 1 }

func (r *DailyRSI) Reset() {
	r.closes = r.closes[:0]
	r.day = time.Time{}
	r.last = 0
	r.seen = false
}

func (r *DailyRSI) Update(s market.Sample) {
	if !s.Valid() {
		return
	}
	d := s.Time.UTC().Truncate(day)
	switch {
	case !r.seen:
		r.day, r.seen = d, true
	case d.After(r.day):
		r.closes = append(r.closes, r.last)
		if len(r.closes) > maxDays {
			r.closes = r.closes[len(r.closes)-maxDays:]
		}
		r.day = d
	}
	r.last = s.Price
}

// Days is the number of daily closes seen, including the day in progress.
func (r *DailyRSI) Days() int {
	if !r.seen {
		return 0
	}
	return len(r.closes) + 1
}

func (r *DailyRSI) Ready() bool {
	return r.Days() > r.period
}

func (r *DailyRSI) Value() float64 {
	if !r.Ready() {
		return 0
	}
	closes := append(append(make([]float64, 0, len(r.closes)+1), r.closes...), r.last)
	return RSI(closes, r.period)
}

// RSI returns the latest RSI of closes, or 0 when there are not more than
// period values.
func RSI(closes []float64, period int) float64 {
	if len(closes) <= period {
		return 0
	}
	out := talib.Rsi(closes, period)
	return out[len(out)-1]
}

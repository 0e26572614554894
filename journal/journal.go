// Package journal stores the artifacts a run produces: closed trades, the
// equity curve and run summaries.
package journal

import (
	"time"

	"github.com/rustyeddy/gridbot/market"
)

// Close reasons.
const (
	ReasonTakeProfit    = "take_profit"
	ReasonExternalClose = "external_close"
)

// TradeRecord is one round trip from the first fill to the full close.
// It is never modified after it is recorded.
type TradeRecord struct {
	TradeID       string      `json:"trade_id"`
	Symbol        string      `json:"symbol"`
	Side          market.Side `json:"side"`
	OpenTime      time.Time   `json:"open_time"`
	CloseTime     time.Time   `json:"close_time"`
	LevelsUsed    int         `json:"levels_used"`
	AvgEntryPrice float64     `json:"avg_entry_price"`
	ExitPrice     float64     `json:"exit_price"`
	Quantity      float64     `json:"quantity"`
	Fees          float64     `json:"fees"`
	RealizedPnL   float64     `json:"realized_pnl"`
	Reason        string      `json:"reason"`
}

func (t TradeRecord) Win() bool { return t.RealizedPnL > 0 }

// EquitySample is realized cash plus unrealized pnl at one price sample.
type EquitySample struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySample) error
	Close() error
}

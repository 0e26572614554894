package risk

import "time"

// Policy holds the limits the gate enforces. It never changes during a run.
type Policy struct {
	MaxPositionNotional float64

	// FundingPauseThreshold pauses short entries and adds while the funding
	// rate is below it. Only negative thresholds are active.
	FundingPauseThreshold float64

	// Exit constraints
	CloseRequiresNetProfit bool
	MinProfitUSD           float64

	// Epsilon is the floating tolerance applied to notional and pnl comparisons.
	Epsilon float64
}

// EntryIntent describes an open or add the engine wants to commit.
type EntryIntent struct {
	Now  time.Time
	Side Side

	// Committed is the notional already held, valued at the current price.
	Committed float64
	Notional  float64

	// FundingRate is nil when the venue could not supply one.
	FundingRate *float64

	CooldownUntil time.Time
}

// ExitIntent describes a full close at ExitPrice.
type ExitIntent struct {
	Now       time.Time
	NetPnL    float64
	ExitPrice float64
}

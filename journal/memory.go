package journal

import (
	"errors"
	"sync"
)

// Memory keeps everything in slices. It backs tests and the in-process
// summary of a backtest.
type Memory struct {
	mu     sync.Mutex
	trades []TradeRecord
	equity []EquitySample
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) RecordTrade(t TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, t)
	return nil
}

func (m *Memory) RecordEquity(e EquitySample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equity = append(m.equity, e)
	return nil
}

func (m *Memory) Close() error { return nil }

// Trades returns a copy of the trade log in record order.
func (m *Memory) Trades() []TradeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TradeRecord(nil), m.trades...)
}

// Equity returns a copy of the equity curve in record order.
func (m *Memory) Equity() []EquitySample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EquitySample(nil), m.equity...)
}

// Multi fans every record out to each journal in order. The first error
// stops the fan-out for that record.
type Multi []Journal

func (m Multi) RecordTrade(t TradeRecord) error {
	for _, j := range m {
		if err := j.RecordTrade(t); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) RecordEquity(e EquitySample) error {
	for _, j := range m {
		if err := j.RecordEquity(e); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every journal and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.Close())
	}
	return errors.Join(errs...)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordTrade(TradeRecord) error   { return nil }
func (Nop) RecordEquity(EquitySample) error { return nil }
func (Nop) Close() error                    { return nil }

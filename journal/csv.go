package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"
)

var (
	tradesHeader = []string{"trade_id", "symbol", "side", "open_time", "close_time", "levels_used", "avg_entry_price", "exit_price", "quantity", "fees", "realized_pnl", "reason"}
	equityHeader = []string{"time", "equity"}
)

// CSVJournal writes the trade log and the equity curve to two files.
// Either path may be empty to skip that file.
type CSVJournal struct {
	trades *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
}

func NewCSV(tradesPath, equityPath string) (*CSVJournal, error) {
	j := &CSVJournal{}

	if tradesPath != "" {
		tf, w, err := create(tradesPath, tradesHeader)
		if err != nil {
			return nil, err
		}
		j.tf, j.trades = tf, w
	}
	if equityPath != "" {
		ef, w, err := create(equityPath, equityHeader)
		if err != nil {
			if j.tf != nil {
				_ = j.tf.Close()
			}
			return nil, err
		}
		j.ef, j.equity = ef, w
	}
	return j, nil
}

func create(path string, header []string) (*os.File, *csv.Writer, error) {
	fh, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", path, err)
	}
	w := csv.NewWriter(fh)
	if err := w.Write(header); err != nil {
		_ = fh.Close()
		return nil, nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = fh.Close()
		return nil, nil, err
	}
	return fh, w, nil
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	if j.trades == nil {
		return nil
	}
	err := j.trades.Write([]string{
		t.TradeID,
		t.Symbol,
		t.Side.String(),
		t.OpenTime.UTC().Format(time.RFC3339),
		t.CloseTime.UTC().Format(time.RFC3339),
		strconv.Itoa(t.LevelsUsed),
		f(t.AvgEntryPrice),
		f(t.ExitPrice),
		f(t.Quantity),
		f(t.Fees),
		f(t.RealizedPnL),
		t.Reason,
	})
	if err != nil {
		return err
	}
	j.trades.Flush()
	return j.trades.Error()
}

func (j *CSVJournal) RecordEquity(e EquitySample) error {
	if j.equity == nil {
		return nil
	}
	err := j.equity.Write([]string{
		e.Time.UTC().Format(time.RFC3339),
		f(e.Equity),
	})
	if err != nil {
		return err
	}
	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSVJournal) Close() error {
	for _, w := range []*csv.Writer{j.trades, j.equity} {
		if w == nil {
			continue
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return err
		}
	}
	for _, fh := range []*os.File{j.tf, j.ef} {
		if fh == nil {
			continue
		}
		if err := fh.Close(); err != nil {
			return err
		}
	}
	return nil
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 8, 64)
}

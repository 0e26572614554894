package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(trade_id, symbol, side, open_time, close_time, levels_used, avg_entry_price, exit_price, quantity, fees, realized_pnl, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.Symbol, t.Side.String(), t.OpenTime.UTC(), t.CloseTime.UTC(), t.LevelsUsed,
		t.AvgEntryPrice, t.ExitPrice, t.Quantity, t.Fees, t.RealizedPnL, t.Reason,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySample) error {
	_, err := j.db.Exec(`INSERT INTO equity (time, equity) VALUES (?, ?)`, e.Time.UTC(), e.Equity)
	return err
}

// RecordRun stores the run header and its summary. Recording the same run id
// twice replaces the earlier row.
func (j *SQLite) RecordRun(r Run) error {
	params := r.Params
	if len(params) == 0 {
		params = []byte("{}")
	}
	summary, err := json.Marshal(r.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	_, err = j.db.Exec(`
		INSERT OR REPLACE INTO runs
		(run_id, created, symbol, dataset, params, start_time, end_time, start_equity, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created.UTC(), r.Symbol, r.Dataset, string(params),
		r.Start.UTC(), r.End.UTC(), r.StartEquity, string(summary),
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

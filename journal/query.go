package journal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/gridbot/market"
)

const tradeColumns = `trade_id, symbol, side, open_time, close_time, levels_used, avg_entry_price, exit_price, quantity, fees, realized_pnl, reason`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRecord, error) {
	var (
		rec  TradeRecord
		side string
	)
	err := s.Scan(
		&rec.TradeID,
		&rec.Symbol,
		&side,
		&rec.OpenTime,
		&rec.CloseTime,
		&rec.LevelsUsed,
		&rec.AvgEntryPrice,
		&rec.ExitPrice,
		&rec.Quantity,
		&rec.Fees,
		&rec.RealizedPnL,
		&rec.Reason,
	)
	if err != nil {
		return TradeRecord{}, err
	}
	if rec.Side, err = market.ParseSide(side); err != nil {
		return TradeRecord{}, fmt.Errorf("trade %s: %w", rec.TradeID, err)
	}
	return rec, nil
}

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(tradeID string) (TradeRecord, error) {
	row := j.db.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE trade_id = ?`, tradeID)
	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("trade %q not found", tradeID)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTrades returns every trade ordered by close time.
func (j *SQLite) ListTrades() ([]TradeRecord, error) {
	return j.queryTrades(`SELECT ` + tradeColumns + ` FROM trades ORDER BY close_time ASC, trade_id ASC`)
}

// ListTradesClosedBetween returns trades whose close_time is within [start, end).
func (j *SQLite) ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error) {
	return j.queryTrades(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE close_time >= ? AND close_time < ?
		ORDER BY close_time ASC, trade_id ASC`, start.UTC(), end.UTC())
}

func (j *SQLite) queryTrades(q string, args ...any) ([]TradeRecord, error) {
	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEquityBetween returns equity samples within [start, end) in time order.
func (j *SQLite) ListEquityBetween(start, end time.Time) ([]EquitySample, error) {
	rows, err := j.db.Query(`
		SELECT time, equity
		FROM equity
		WHERE time >= ? AND time < ?
		ORDER BY time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySample
	for rows.Next() {
		var rec EquitySample
		if err := rows.Scan(&rec.Time, &rec.Equity); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (j *SQLite) GetRun(runID string) (Run, error) {
	var (
		r       Run
		params  string
		summary string
	)
	err := j.db.QueryRow(`
		SELECT run_id, created, symbol, dataset, params, start_time, end_time, start_equity, summary
		FROM runs WHERE run_id = ?`, runID).Scan(
		&r.RunID, &r.Created, &r.Symbol, &r.Dataset, &params, &r.Start, &r.End, &r.StartEquity, &summary,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("run %q not found", runID)
		}
		return Run{}, err
	}
	r.Params = json.RawMessage(params)
	if err := json.Unmarshal([]byte(summary), &r.Summary); err != nil {
		return Run{}, fmt.Errorf("run %s summary: %w", runID, err)
	}
	return r, nil
}

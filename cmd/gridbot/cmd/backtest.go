package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/gridbot/backtest"
	"github.com/rustyeddy/gridbot/config"
	"github.com/rustyeddy/gridbot/internal/id"
	"github.com/rustyeddy/gridbot/journal"
	"github.com/rustyeddy/gridbot/report"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay historical bars through the ladder",
	Long: `Backtest replays a CSV of bars through the ladder against a paper venue.

The file needs a close column (close, closing price, close_price or c) and
may have a time column (timestamp, time, open time, open_time or date).

Outputs, each skipped when its path is empty:
  - trade log CSV and equity curve CSV
  - summary JSON with the parameters used
  - HTML equity chart
  - org-mode report
  - SQLite journal with the run recorded

Example:
  gridbot backtest -c gridbot.yaml --csv DOGEUSDT_1h.csv --from 2024-01-01`,
	RunE: runBacktest,
}

var (
	btCSV    string
	btDB     string
	btOrg    string
	btFrom   string
	btTo     string
	btEquity float64
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVar(&btCSV, "csv", "", "bar CSV (overrides backtest.csv)")
	backtestCmd.Flags().StringVarP(&btDB, "db", "d", "", "SQLite journal (overrides backtest.db_path)")
	backtestCmd.Flags().StringVar(&btOrg, "org", "", "org-mode report (overrides backtest.org_path)")
	backtestCmd.Flags().StringVar(&btFrom, "from", "", "first bar time to include (YYYY-MM-DD or RFC3339)")
	backtestCmd.Flags().StringVar(&btTo, "to", "", "bars at or after this time are dropped")
	backtestCmd.Flags().Float64Var(&btEquity, "equity", 0, "starting equity (overrides backtest.start_equity)")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyBacktestFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Backtest.CSV == "" {
		return fmt.Errorf("no bar file: set backtest.csv or pass --csv")
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	opts := backtest.FeedOptions{Log: log}
	if opts.From, err = parseBound(btFrom); err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	if opts.To, err = parseBound(btTo); err != nil {
		return fmt.Errorf("--to: %w", err)
	}

	feed, err := backtest.NewCSVBarsFeed(cfg.Backtest.CSV, opts)
	if err != nil {
		return fmt.Errorf("load bars: %w", err)
	}

	csvJournal, err := journal.NewCSV(cfg.Backtest.TradesCSV, cfg.Backtest.EquityCSV)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	defer csvJournal.Close()

	sinks := journal.Multi{csvJournal}
	var db *journal.SQLite
	if cfg.Backtest.DBPath != "" {
		db, err = journal.NewSQLite(cfg.Backtest.DBPath)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()
		sinks = append(sinks, db)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runner := &backtest.Runner{
		Params:      cfg.Params(),
		StartEquity: cfg.Backtest.StartEquity,
		Feed:        feed,
		Journal:     sinks,
		RSIPeriod:   cfg.Flip.RSIPeriod,
		Log:         log,
	}
	res, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	params, err := json.Marshal(cfg.RunParams())
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	run := journal.Run{
		RunID:       id.New(),
		Created:     time.Now(),
		Symbol:      cfg.Symbol,
		Dataset:     filepath.Base(cfg.Backtest.CSV),
		Params:      params,
		Start:       res.Start,
		End:         res.End,
		StartEquity: cfg.Backtest.StartEquity,
		Summary:     res.Summary,
		ChartHTML:   cfg.Backtest.ChartHTML,
		Notes:       backtestNotes(cfg, feed, res),
	}

	if cfg.Backtest.SummaryJSON != "" {
		if err := journal.WriteSummaryJSON(cfg.Backtest.SummaryJSON, cfg.RunParams(), res.Summary); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	if cfg.Backtest.ChartHTML != "" {
		if len(res.Equity) == 0 {
			run.ChartHTML = ""
		} else if err := report.WriteEquityChartFile(cfg.Backtest.ChartHTML, cfg.Symbol+" DCA grid equity", res.Equity); err != nil {
			return fmt.Errorf("write chart: %w", err)
		}
	}
	if cfg.Backtest.OrgPath != "" {
		if err := run.WriteOrg(cfg.Backtest.OrgPath, res.Trades); err != nil {
			return fmt.Errorf("write org report: %w", err)
		}
	}
	if db != nil {
		if err := db.RecordRun(run); err != nil {
			return fmt.Errorf("record run: %w", err)
		}
	}

	report.PrintSummary(cmd.OutOrStdout(), run)
	return nil
}

func applyBacktestFlags(cfg *config.Config) {
	if btCSV != "" {
		cfg.Backtest.CSV = btCSV
	}
	if btDB != "" {
		cfg.Backtest.DBPath = btDB
	}
	if btOrg != "" {
		cfg.Backtest.OrgPath = btOrg
	}
	if btEquity > 0 {
		cfg.Backtest.StartEquity = btEquity
	}
}

func parseBound(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return backtest.ParseBarTime(s)
}

func backtestNotes(cfg *config.Config, feed *backtest.CSVBarsFeed, res backtest.Result) []string {
	var notes []string
	if feed.Skipped > 0 {
		notes = append(notes, fmt.Sprintf("%d bars without a usable close were skipped", feed.Skipped))
	}
	if feed.TimeColumn == "" {
		notes = append(notes, "no time column: bars were stamped one hour apart from the epoch")
	}
	if pos := res.Final.Position; pos.IsOpen() {
		notes = append(notes, fmt.Sprintf("run ended holding a %s position at level %d, marked to market in ending equity",
			pos.Side, pos.Level))
	}
	if res.Summary.DeepestLevelHit >= cfg.Long.MaxLevels-1 {
		notes = append(notes, "the ladder was exhausted at least once")
	}
	return notes
}

// Package report renders finished runs for people: a console block and an
// HTML equity chart.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/rustyeddy/gridbot/journal"
)

const (
	banner = "=================================================="
	rule   = "--------------------------------------------------"
)

// PrintSummary writes the console block for a finished backtest.
func PrintSummary(w io.Writer, r journal.Run) {
	s := r.Summary

	fmt.Fprintln(w, banner)
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, banner)

	if r.RunID != "" {
		fmt.Fprintf(w, "Run ID:        %s\n", r.RunID)
	}
	fmt.Fprintf(w, "Symbol:        %s\n", r.Symbol)
	if r.Dataset != "" {
		fmt.Fprintf(w, "Dataset:       %s\n", r.Dataset)
	}

	if !r.Start.IsZero() {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Period")
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "Start:         %s\n", r.Start.UTC().Format(time.RFC3339))
		fmt.Fprintf(w, "End:           %s\n", r.End.UTC().Format(time.RFC3339))
		fmt.Fprintf(w, "Bars:          %d\n", s.Bars)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Trades:        %d\n", s.TradesClosed)
	fmt.Fprintf(w, "Win Rate:      %s\n", WinRate(s.WinRate))
	fmt.Fprintf(w, "Deepest Level: %d\n", s.DeepestLevelHit)
	fmt.Fprintf(w, "Largest Pos:   %.2f\n", s.LargestPositionNotional)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account Performance")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Start Equity:  %.2f\n", r.StartEquity)
	fmt.Fprintf(w, "End Equity:    %.2f\n", s.EndingEquity)
	fmt.Fprintf(w, "Net P/L:       %.4f\n", s.TotalPnL)
	fmt.Fprintf(w, "Return:        %.2f%%\n", r.ReturnPct())
	fmt.Fprintf(w, "Max Drawdown:  %.4f (%.2f%%)\n", s.MaxDrawdownAbs, s.MaxDrawdownPct)

	if r.ChartHTML != "" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Equity Chart:  %s\n", r.ChartHTML)
	}

	if len(r.Notes) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Observations")
		fmt.Fprintln(w, rule)
		for _, note := range r.Notes {
			fmt.Fprintf(w, "- %s\n", note)
		}
	}

	fmt.Fprintln(w)
}

// WinRate formats a win fraction as a percentage, or n/a when no trade
// closed.
func WinRate(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", *p*100)
}

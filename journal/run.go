package journal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"text/template"
	"time"
)

// Summary is the headline result of one replay. WinRate is nil when no
// trade closed.
type Summary struct {
	Bars                    int      `json:"bars"`
	TradesClosed            int      `json:"trades_closed"`
	TotalPnL                float64  `json:"total_pnl"`
	WinRate                 *float64 `json:"win_rate"`
	MaxDrawdownAbs          float64  `json:"max_drawdown_abs"`
	MaxDrawdownPct          float64  `json:"max_drawdown_pct"`
	DeepestLevelHit         int      `json:"deepest_level_hit"`
	LargestPositionNotional float64  `json:"largest_position_notional"`
	EndingEquity            float64  `json:"ending_equity"`
}

// Run describes one backtest for the runs table and the org report.
type Run struct {
	RunID       string
	Created     time.Time
	Symbol      string
	Dataset     string
	Params      json.RawMessage
	Start       time.Time
	End         time.Time
	StartEquity float64
	Summary     Summary

	ChartHTML string
	Notes     []string
}

func (r Run) ReturnPct() float64 {
	if r.StartEquity == 0 {
		return 0
	}
	return (r.Summary.EndingEquity - r.StartEquity) / r.StartEquity * 100
}

// WriteSummaryJSON writes {"params": ..., "summary": ...} indented, the
// shape the summary file has always had.
func WriteSummaryJSON(path string, params any, s Summary) error {
	data, err := json.MarshalIndent(struct {
		Params  any     `json:"params"`
		Summary Summary `json:"summary"`
	}{params, s}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

var runOrgFuncs = template.FuncMap{
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
	"winRate": func(p *float64) string {
		if p == nil {
			return "n/a"
		}
		return fmt.Sprintf("%.2f%%", *p*100)
	},
}

var runOrgTemplate = template.Must(template.New("run").Funcs(runOrgFuncs).Parse(RunOrgTemplate))

// FormatRunOrg renders the run as an org-mode block.
func FormatRunOrg(r Run) (string, error) {
	buf := new(bytes.Buffer)
	if err := runOrgTemplate.Execute(buf, r); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (r Run) WriteOrg(path string, trades []TradeRecord) error {
	s, err := FormatRunOrg(r)
	if err != nil {
		return err
	}
	if len(trades) > 0 {
		s += "\n** Trades\n" + FormatTradesOrg(trades) + "\n"
	}
	return os.WriteFile(path, []byte(s), 0o644)
}

const RunOrgTemplate = `* BACKTEST: DCA grid {{.Symbol}}
:PROPERTIES:
:RUN_ID:       {{if .RunID}}{{.RunID}}{{else}}(run-id?){{end}}
:SYMBOL:       {{.Symbol}}
:DATASET:      {{if .Dataset}}{{.Dataset}}{{else}}(dataset?){{end}}
:START_DATE:   {{.Start.Format "2006-01-02"}}
:END_DATE:     {{.End.Format "2006-01-02"}}
:START_EQUITY: {{printf "%.2f" .StartEquity}}
:END_EQUITY:   {{printf "%.2f" .Summary.EndingEquity}}
:RETURN_PCT:   {{printf "%.2f" .ReturnPct}}
:CREATED:      [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Parameters
#+begin_src json
{{printf "%s" .Params}}
#+end_src

** Performance Summary
| Metric                    | Value |
|---------------------------+-------|
| Bars                      | {{.Summary.Bars}} |
| Trades closed             | {{.Summary.TradesClosed}} |
| Total PnL                 | {{printf "%.4f" .Summary.TotalPnL}} |
| Win rate                  | {{winRate .Summary.WinRate}} |
| Max drawdown              | {{printf "%.4f" .Summary.MaxDrawdownAbs}} ({{printf "%.2f" .Summary.MaxDrawdownPct}}%) |
| Deepest level hit         | {{.Summary.DeepestLevelHit}} |
| Largest position notional | {{printf "%.2f" .Summary.LargestPositionNotional}} |

** Equity Curve
{{- if .ChartHTML }}
[[file:{{.ChartHTML}}]]
{{- else }}
# no chart rendered for this run
{{- end }}
{{- if .Notes }}

** Observations
{{- range .Notes }}
- {{.}}
{{- end }}
{{- end }}
`

package report

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/rustyeddy/gridbot/journal"
)

const timeLabel = "2006-01-02 15:04"

// WriteEquityChart renders the equity curve and its running peak as a
// standalone HTML page.
func WriteEquityChart(w io.Writer, title string, equity []journal.EquitySample) error {
	if len(equity) == 0 {
		return errors.New("equity chart: no samples")
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: title,
			Width:     "1200px",
			Height:    "600px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("%d samples", len(equity)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category"}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)

	xAxis := make([]string, len(equity))
	eq := make([]opts.LineData, len(equity))
	peak := make([]opts.LineData, len(equity))
	hi := math.Inf(-1)
	for i, s := range equity {
		xAxis[i] = s.Time.UTC().Format(timeLabel)
		hi = math.Max(hi, s.Equity)
		eq[i] = opts.LineData{Value: round(s.Equity, 4)}
		peak[i] = opts.LineData{Value: round(hi, 4)}
	}

	line.SetXAxis(xAxis).
		AddSeries("Equity", eq, charts.WithLineStyleOpts(opts.LineStyle{Width: 2})).
		AddSeries("Peak", peak, charts.WithLineStyleOpts(opts.LineStyle{Width: 1, Type: "dashed"}))
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	return line.Render(w)
}

// WriteEquityChartFile renders the chart to path.
func WriteEquityChartFile(path, title string, equity []journal.EquitySample) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteEquityChart(f, title, equity); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

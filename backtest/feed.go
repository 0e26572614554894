package backtest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/gridbot/market"
)

var (
	ErrNoCloseColumn = errors.New("no close column")
	ErrOutOfOrder    = errors.New("bars out of order")
)

var (
	closeColumns = []string{"close", "closing price", "close_price", "c"}
	timeColumns  = []string{"timestamp", "time", "open time", "open_time", "date"}
)

// Feed yields price samples one at a time.
// Implementations should be deterministic and return (ok=false, err=nil) at EOF.
type Feed interface {
	Next() (s market.Sample, ok bool, err error)
	Close() error
}

// SliceFeed replays an in-memory series.
type SliceFeed struct {
	samples []market.Sample
	i       int
}

func NewSliceFeed(samples []market.Sample) *SliceFeed {
	return &SliceFeed{samples: samples}
}

func (f *SliceFeed) Next() (market.Sample, bool, error) {
	if f.i >= len(f.samples) {
		return market.Sample{}, false, nil
	}
	s := f.samples[f.i]
	f.i++
	return s, true, nil
}

func (f *SliceFeed) Close() error { return nil }

// Len is the number of samples in the series, consumed or not.
func (f *SliceFeed) Len() int { return len(f.samples) }

// Samples returns a copy of the whole series.
func (f *SliceFeed) Samples() []market.Sample {
	return append([]market.Sample(nil), f.samples...)
}

// FeedOptions filters bars to [From, To) when either bound is set.
type FeedOptions struct {
	From time.Time
	To   time.Time
	Log  *zap.Logger
}

// CSVBarsFeed reads a headered bar file and keeps only the close column and,
// when present, a time column:
//
//	timestamp,open,high,low,close,volume
//
// The whole file is parsed when the feed is created, so a bad row fails the
// run before the first bar is simulated. Rows with a non-positive or empty
// close are skipped.
type CSVBarsFeed struct {
	SliceFeed

	Path        string
	CloseColumn string
	TimeColumn  string // empty when times are synthesized
	Skipped     int
}

func NewCSVBarsFeed(path string, opts FeedOptions) (*CSVBarsFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	feed, err := ReadCSVBars(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	feed.Path = path
	return feed, nil
}

// ReadCSVBars parses bars from r. Without a time column, bar i is stamped
// i hours after the Unix epoch.
func ReadCSVBars(r io.Reader, opts FeedOptions) (*CSVBarsFeed, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("empty csv: header row required")
	}
	if err != nil {
		return nil, err
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff")))
	}

	closeIdx := findColumn(header, closeColumns)
	if closeIdx < 0 {
		return nil, fmt.Errorf("%w: expected one of %s, have %s",
			ErrNoCloseColumn, strings.Join(closeColumns, ", "), strings.Join(header, ", "))
	}
	timeIdx := findColumn(header, timeColumns)

	feed := &CSVBarsFeed{CloseColumn: header[closeIdx]}
	if timeIdx >= 0 {
		feed.TimeColumn = header[timeIdx]
	}

	var (
		prev    time.Time
		havePrv bool
		line    = 1
		bar     = -1
	)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		bar++

		if closeIdx >= len(row) {
			return nil, fmt.Errorf("line %d: missing %s column", line, feed.CloseColumn)
		}
		cell := strings.TrimSpace(row[closeIdx])
		if cell == "" || strings.EqualFold(cell, "nan") {
			feed.Skipped++
			log.Debug("skip bar without close", zap.Int("line", line))
			continue
		}
		price, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad %s %q: %w", line, feed.CloseColumn, cell, err)
		}

		var t time.Time
		if timeIdx >= 0 {
			if timeIdx >= len(row) {
				return nil, fmt.Errorf("line %d: missing %s column", line, feed.TimeColumn)
			}
			t, err = ParseBarTime(row[timeIdx])
			if err != nil {
				return nil, fmt.Errorf("line %d: bad %s: %w", line, feed.TimeColumn, err)
			}
		} else {
			t = time.Unix(0, 0).UTC().Add(time.Duration(bar) * time.Hour)
		}

		if havePrv && t.Before(prev) {
			return nil, fmt.Errorf("%w: line %d at %s is before %s",
				ErrOutOfOrder, line, t.Format(time.RFC3339), prev.Format(time.RFC3339))
		}
		prev, havePrv = t, true

		if !(price > 0) || math.IsInf(price, 0) {
			feed.Skipped++
			log.Debug("skip bar with non-positive close", zap.Int("line", line), zap.Float64("close", price))
			continue
		}
		if !inRange(t, opts.From, opts.To) {
			continue
		}
		feed.samples = append(feed.samples, market.Sample{Time: t, Price: price})
	}

	if feed.Skipped > 0 {
		log.Info("skipped bars", zap.Int("count", feed.Skipped))
	}
	return feed, nil
}

var barTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseBarTime accepts RFC3339, the common date-time layouts without a zone
// (read as UTC), and epoch milliseconds or seconds. Numbers of 1e11 and
// above are milliseconds.
func ParseBarTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty time")
	}

	if v, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return time.Time{}, fmt.Errorf("bad epoch %q", s)
		}
		if math.Abs(v) >= 1e11 {
			return time.UnixMilli(int64(v)).UTC(), nil
		}
		sec, frac := math.Modf(v)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
	}

	for _, layout := range barTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func findColumn(header, names []string) int {
	for _, name := range names {
		for i, h := range header {
			if h == name {
				return i
			}
		}
	}
	return -1
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

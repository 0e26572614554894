package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/gridbot/market"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	rows, err := csv.NewReader(fh).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVJournalHeaders(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	equityPath := filepath.Join(dir, "equity.csv")

	j, err := NewCSV(tradesPath, equityPath)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	assert.Equal(t, [][]string{tradesHeader}, readCSV(t, tradesPath))
	assert.Equal(t, [][]string{{"time", "equity"}}, readCSV(t, equityPath))
}

func TestCSVJournalRecords(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	equityPath := filepath.Join(dir, "equity.csv")

	j, err := NewCSV(tradesPath, equityPath)
	require.NoError(t, err)

	closeAt := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	tr := sampleTrade("T1", closeAt, 0.0795)
	tr.Side = market.Short
	require.NoError(t, j.RecordTrade(tr))
	require.NoError(t, j.RecordEquity(EquitySample{Time: closeAt, Equity: 1000.0795}))
	require.NoError(t, j.Close())

	trades := readCSV(t, tradesPath)
	require.Len(t, trades, 2)
	assert.Equal(t, []string{
		"T1", "DOGEUSDT", "short",
		"2024-01-02T03:00:00Z", "2024-01-02T09:00:00Z",
		"2", "0.09911760", "0.09991050", "242.13190000", "0.01440000", "0.07950000",
		"take_profit",
	}, trades[1])

	equity := readCSV(t, equityPath)
	require.Len(t, equity, 2)
	assert.Equal(t, []string{"2024-01-02T09:00:00Z", "1000.07950000"}, equity[1])
}

func TestCSVJournalSkipsEmptyPaths(t *testing.T) {
	t.Parallel()

	equityPath := filepath.Join(t.TempDir(), "equity.csv")
	j, err := NewCSV("", equityPath)
	require.NoError(t, err)

	assert.NoError(t, j.RecordTrade(sampleTrade("T1", time.Now(), 1)))
	assert.NoError(t, j.RecordEquity(EquitySample{Time: time.Now(), Equity: 1}))
	assert.NoError(t, j.Close())
	assert.Len(t, readCSV(t, equityPath), 2)
}

func TestNewCSVBadPath(t *testing.T) {
	t.Parallel()

	_, err := NewCSV(filepath.Join(t.TempDir(), "missing", "trades.csv"), "")
	assert.Error(t, err)
}

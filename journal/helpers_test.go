package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/gridbot/market"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)

	return j, path
}

func sampleTrade(id string, closeAt time.Time, pnl float64) TradeRecord {
	return TradeRecord{
		TradeID:       id,
		Symbol:        "DOGEUSDT",
		Side:          market.Long,
		OpenTime:      closeAt.Add(-6 * time.Hour),
		CloseTime:     closeAt,
		LevelsUsed:    2,
		AvgEntryPrice: 0.0991176,
		ExitPrice:     0.0999105,
		Quantity:      242.1319,
		Fees:          0.0144,
		RealizedPnL:   pnl,
		Reason:        ReasonTakeProfit,
	}
}

package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgriffes/redscan/pkg/logger"
)

func newLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trades.csv")
	return New(path, logger.NewNop()), path
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	l, _ := newLedger(t)
	l.Load()
	assert.Equal(t, 0, l.Len())
}

func TestLoadCorruptFileIsEmpty(t *testing.T) {
	l, path := newLedger(t)
	require.NoError(t, os.WriteFile(path, []byte("time,symbol\n\"unterminated"), 0o644))

	l.Load()
	assert.Equal(t, 0, l.Len())
}

func TestFlushLoadRoundTripPreservesPurchaseTimestamp(t *testing.T) {
	l, path := newLedger(t)

	purchased := time.Date(2024, 3, 1, 9, 31, 0, 0, time.UTC)
	l.Append(Record{
		Time:        purchased,
		Symbol:      "AAPL",
		Action:      ActionBuy,
		Quantity:    1,
		Price:       182.34,
		PriceKnown:  true,
		PurchasedAt: purchased,
	})
	require.NoError(t, l.Flush())

	reloaded := New(path, logger.NewNop())
	reloaded.Load()
	require.Equal(t, 1, reloaded.Len())

	rec := reloaded.Records()[0]
	assert.Equal(t, "AAPL", rec.Symbol)
	assert.Equal(t, ActionBuy, rec.Action)
	assert.Equal(t, 1, rec.Quantity)
	assert.True(t, rec.PriceKnown)
	assert.InDelta(t, 182.34, rec.Price, 1e-9)
	assert.True(t, rec.PurchasedAt.Equal(purchased), "purchase timestamp must survive the round trip to the second")
}

func TestFlushWritesNAForUnknownPrice(t *testing.T) {
	l, path := newLedger(t)

	now := time.Date(2024, 3, 1, 9, 31, 0, 0, time.UTC)
	l.Append(Record{Time: now, Symbol: "MSFT", Action: ActionBuy, Quantity: 2, PurchasedAt: now})
	require.NoError(t, l.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "N/A")

	reloaded := New(path, logger.NewNop())
	reloaded.Load()
	require.Equal(t, 1, reloaded.Len())
	assert.False(t, reloaded.Records()[0].PriceKnown)
}

func TestLatestBuyScansNewestFirst(t *testing.T) {
	l, _ := newLedger(t)

	older := time.Date(2024, 3, 1, 9, 31, 0, 0, time.UTC)
	newer := older.Add(26 * time.Hour)

	l.Append(Record{Time: older, Symbol: "AAPL", Action: ActionBuy, Quantity: 1, PurchasedAt: older})
	l.Append(Record{Time: newer, Symbol: "AAPL", Action: ActionBuy, Quantity: 1, PurchasedAt: newer})
	l.Append(Record{Time: newer, Symbol: "AAPL", Action: ActionSell, Quantity: 1, PurchasedAt: newer})

	rec, found := l.LatestBuy("AAPL")
	require.True(t, found)
	assert.True(t, rec.PurchasedAt.Equal(newer), "most recent BUY wins")

	_, found = l.LatestBuy("MSFT")
	assert.False(t, found)
}

func TestLoadSkipsMalformedRows(t *testing.T) {
	l, path := newLedger(t)

	csv := "time,symbol,action,quantity,price,purchase_timestamp\n" +
		"2024-03-01 09:31:00,AAPL,BUY,1,182.34,2024-03-01 09:31:00\n" +
		"2024-03-01 09:32:00,MSFT,BUY,not-a-number,100,2024-03-01 09:32:00\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	l.Load()
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, "AAPL", l.Records()[0].Symbol)
}

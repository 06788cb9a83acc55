package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgriffes/redscan/internal/broker"
	"github.com/mgriffes/redscan/internal/ledger"
	"github.com/mgriffes/redscan/internal/marketdata"
	"github.com/mgriffes/redscan/internal/runstate"
	"github.com/mgriffes/redscan/pkg/logger"
)

var testNow = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

// fakeQuotes serves canned daily changes; symbols without an entry
// have no market data.
type fakeQuotes struct {
	changes map[string]float64
}

func (f *fakeQuotes) Quote(ctx context.Context, symbol string) (marketdata.Quote, error) {
	change, exists := f.changes[symbol]
	if !exists {
		return marketdata.Quote{}, fmt.Errorf("%w: %s", marketdata.ErrNoData, symbol)
	}
	return marketdata.Quote{Symbol: symbol, Price: 100, DailyChangePct: change}, nil
}

type fixture struct {
	controller *Controller
	gateway    *broker.MockGateway
	ledger     *ledger.Ledger
	state      *runstate.Store
	ledgerPath string
}

func newFixture(t *testing.T, quotes *fakeQuotes, cfg Config) *fixture {
	t.Helper()
	dir := t.TempDir()

	if cfg.Quantity == 0 {
		cfg.Quantity = 1
	}
	if cfg.HoldingPeriod == 0 {
		cfg.HoldingPeriod = 48 * time.Hour
	}

	gw := broker.NewMockGateway()
	ledgerPath := filepath.Join(dir, "trades.csv")
	l := ledger.New(ledgerPath, logger.NewNop())
	store := runstate.NewStore(filepath.Join(dir, "run_state.json"))

	controller := NewController(gw, quotes, l, store, cfg, logger.NewNop())
	controller.now = func() time.Time { return testNow }

	return &fixture{
		controller: controller,
		gateway:    gw,
		ledger:     l,
		state:      store,
		ledgerPath: ledgerPath,
	}
}

func TestCompletedDayIsNoOp(t *testing.T) {
	f := newFixture(t, &fakeQuotes{}, Config{})
	require.NoError(t, f.state.Write(runstate.Finalized(testNow)))

	require.NoError(t, f.controller.Run(context.Background(), []string{"AAPL", "MSFT"}))

	assert.Equal(t, 0, f.gateway.Calls(), "a finalized day must make zero gateway calls")
}

func TestBuySignal(t *testing.T) {
	quotes := &fakeQuotes{changes: map[string]float64{"AAPL": -1.5, "MSFT": 0.1}}
	f := newFixture(t, quotes, Config{Quantity: 3})

	require.NoError(t, f.controller.Run(context.Background(), []string{"AAPL", "MSFT"}))

	require.Len(t, f.gateway.Placed, 1, "only the red symbol is bought")
	assert.Equal(t, "AAPL", f.gateway.Placed[0].Contract.Symbol)
	assert.Equal(t, broker.SideBuy, f.gateway.Placed[0].Side)
	assert.Equal(t, 3, f.gateway.Placed[0].Quantity)

	rec, found := f.ledger.LatestBuy("AAPL")
	require.True(t, found)
	assert.Equal(t, 3, rec.Quantity)
	assert.True(t, rec.PurchasedAt.Equal(testNow))

	_, found = f.ledger.LatestBuy("MSFT")
	assert.False(t, found)
}

func TestHoldingGateBlocksRecentRebuy(t *testing.T) {
	quotes := &fakeQuotes{changes: map[string]float64{"AAPL": -2.0, "MSFT": -2.0}}
	f := newFixture(t, quotes, Config{})

	// AAPL bought 10h ago blocks rebuy; MSFT bought 50h ago is eligible again.
	f.ledger.Append(buyRecord("AAPL", testNow.Add(-10*time.Hour)))
	f.ledger.Append(buyRecord("MSFT", testNow.Add(-50*time.Hour)))

	require.NoError(t, f.controller.Run(context.Background(), []string{"AAPL", "MSFT"}))

	require.Len(t, f.gateway.Placed, 1)
	assert.Equal(t, "MSFT", f.gateway.Placed[0].Contract.Symbol)
}

func TestResumesFromSameDayCheckpoint(t *testing.T) {
	quotes := &fakeQuotes{changes: map[string]float64{"A": -1, "B": -1, "C": -1, "D": -1}}
	f := newFixture(t, quotes, Config{})
	require.NoError(t, f.state.Write(runstate.Checkpoint(testNow, 2)))

	require.NoError(t, f.controller.Run(context.Background(), []string{"A", "B", "C", "D"}))

	assert.Equal(t, 2, f.gateway.QualifyCalls, "symbols 0..1 must not be reprocessed")
	require.Len(t, f.gateway.Placed, 2)
	assert.Equal(t, "C", f.gateway.Placed[0].Contract.Symbol)
	assert.Equal(t, "D", f.gateway.Placed[1].Contract.Symbol)
}

func TestNewDayRestartsAtZero(t *testing.T) {
	quotes := &fakeQuotes{changes: map[string]float64{"A": 1, "B": 1, "C": 1}}
	f := newFixture(t, quotes, Config{})

	yesterday := testNow.Add(-24 * time.Hour)
	require.NoError(t, f.state.Write(runstate.Checkpoint(yesterday, 137)))

	require.NoError(t, f.controller.Run(context.Background(), []string{"A", "B", "C"}))

	assert.Equal(t, 3, f.gateway.QualifyCalls, "a stale partial-day index is discarded")
}

func TestQualifyFailureSkipsSymbol(t *testing.T) {
	quotes := &fakeQuotes{changes: map[string]float64{"BAD": -5, "GOOD": -1}}
	f := newFixture(t, quotes, Config{})
	f.gateway.QualifyErrs["BAD"] = fmt.Errorf("no security definition")

	require.NoError(t, f.controller.Run(context.Background(), []string{"BAD", "GOOD"}))

	require.Len(t, f.gateway.Placed, 1)
	assert.Equal(t, "GOOD", f.gateway.Placed[0].Contract.Symbol)

	// The failed symbol still advanced the scan to completion.
	assert.True(t, f.state.Read().CompletedOn(testNow))
}

func TestMissingQuoteSkipsSymbol(t *testing.T) {
	quotes := &fakeQuotes{changes: map[string]float64{"GOOD": -1}}
	f := newFixture(t, quotes, Config{})

	require.NoError(t, f.controller.Run(context.Background(), []string{"NODATA", "GOOD"}))

	require.Len(t, f.gateway.Placed, 1)
	assert.Equal(t, "GOOD", f.gateway.Placed[0].Contract.Symbol)
}

func TestFinalizationResetsState(t *testing.T) {
	quotes := &fakeQuotes{changes: map[string]float64{"A": -1, "B": 2}}
	f := newFixture(t, quotes, Config{})

	require.NoError(t, f.controller.Run(context.Background(), []string{"A", "B"}))

	st := f.state.Read()
	assert.Equal(t, testNow.Format(runstate.DateLayout), st.LastRunDate)
	assert.Equal(t, 0, st.NextStartIndex)
	assert.True(t, st.CompletedOn(testNow))

	// The ledger was flushed to disk during finalization.
	_, err := os.Stat(f.ledgerPath)
	assert.NoError(t, err)

	assert.Equal(t, 1, f.gateway.DisconnectCalls)
}

func TestConnectFailureAbortsBeforeStateMutation(t *testing.T) {
	f := newFixture(t, &fakeQuotes{}, Config{})
	f.gateway.ConnectErr = fmt.Errorf("%w: gateway down", broker.ErrUnavailable)

	err := f.controller.Run(context.Background(), []string{"AAPL"})
	require.Error(t, err)
	assert.ErrorIs(t, err, broker.ErrUnavailable)

	assert.Equal(t, 0, f.gateway.QualifyCalls)
	assert.Equal(t, runstate.State{}, f.state.Read(), "run state must be untouched on connection failure")
}

func TestEnforcerAdvisoryDoesNotSell(t *testing.T) {
	f := newFixture(t, &fakeQuotes{}, Config{})
	f.gateway.Holdings = []broker.Position{
		{ConID: 1, Symbol: "AAPL", Quantity: 5, AvgCost: 150},
	}
	f.ledger.Append(buyRecord("AAPL", testNow.Add(-50*time.Hour)))

	f.controller.EnforceHoldingPeriods(context.Background())

	assert.Empty(t, f.gateway.Placed, "advisory mode must not place orders")
}

func TestEnforcerAutoSellClosesEligiblePosition(t *testing.T) {
	f := newFixture(t, &fakeQuotes{}, Config{AutoSell: true})
	f.gateway.Holdings = []broker.Position{
		{ConID: 1, Symbol: "AAPL", Quantity: 5, AvgCost: 150},  // 50h ago: eligible
		{ConID: 2, Symbol: "MSFT", Quantity: 3, AvgCost: 300},  // 10h ago: still held
		{ConID: 3, Symbol: "GOOG", Quantity: 2, AvgCost: 2500}, // no ledger record
	}
	f.ledger.Append(buyRecord("AAPL", testNow.Add(-50*time.Hour)))
	f.ledger.Append(buyRecord("MSFT", testNow.Add(-10*time.Hour)))

	f.controller.EnforceHoldingPeriods(context.Background())

	require.Len(t, f.gateway.Placed, 1)
	assert.Equal(t, "AAPL", f.gateway.Placed[0].Contract.Symbol)
	assert.Equal(t, broker.SideSell, f.gateway.Placed[0].Side)
	assert.Equal(t, 5, f.gateway.Placed[0].Quantity)

	// The sale is recorded so the ledger stays the system of record.
	records := f.ledger.Records()
	last := records[len(records)-1]
	assert.Equal(t, ledger.ActionSell, last.Action)
	assert.Equal(t, "AAPL", last.Symbol)
}

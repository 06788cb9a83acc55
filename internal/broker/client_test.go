package broker

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgriffes/redscan/pkg/config"
	"github.com/mgriffes/redscan/pkg/httputil"
	"github.com/mgriffes/redscan/pkg/logger"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.IBConfig{BaseURL: server.URL}
	client := NewClient(cfg, httputil.New(logger.NewNop()).DisableRetry(), logger.NewNop())
	return client, server
}

func TestConnectResolvesAccount(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/iserver/auth/status", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		fmt.Fprint(w, `{"authenticated": true, "connected": true}`)
	})
	mux.HandleFunc("/portfolio/accounts", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": "U1234567", "accountId": "U1234567"}]`)
	})

	client, _ := newTestClient(t, mux)
	require.NoError(t, client.Connect(context.Background()))
	assert.Equal(t, "U1234567", client.accountID)
}

func TestConnectUnauthenticatedIsUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/iserver/auth/status", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"authenticated": false}`)
	})

	client, _ := newTestClient(t, mux)
	err := client.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestConnectUnreachableIsUnavailable(t *testing.T) {
	cfg := config.IBConfig{BaseURL: "http://127.0.0.1:1"} // nothing listens here
	client := NewClient(cfg, httputil.New(logger.NewNop()).DisableRetry(), logger.NewNop())

	err := client.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestQualify(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/iserver/secdef/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		fmt.Fprint(w, `[{"conid": "265598", "symbol": "AAPL", "sections": [{"secType": "STK"}, {"secType": "OPT"}]}]`)
	})

	client, _ := newTestClient(t, mux)
	contract, err := client.Qualify(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, int64(265598), contract.ConID)
	assert.Equal(t, "AAPL", contract.Symbol)
	assert.Equal(t, "SMART", contract.Exchange)
	assert.Equal(t, "USD", contract.Currency)
}

func TestQualifyNoStockContract(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/iserver/secdef/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"conid": "11111", "symbol": "XYZ", "sections": [{"secType": "FUT"}]}]`)
	})

	client, _ := newTestClient(t, mux)
	_, err := client.Qualify(context.Background(), "XYZ")
	assert.Error(t, err)
}

func TestPositions(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/portfolio/U1/positions/0", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"conid": 265598, "ticker": "AAPL", "position": 10, "avgCost": 150.5, "mktValue": 1600, "unrealizedPnl": 95},
			{"conid": 272093, "ticker": "", "contractDesc": "MSFT NASDAQ.NMS", "position": -5, "avgCost": 300, "mktValue": -1400, "unrealizedPnl": 100}
		]`)
	})

	client, _ := newTestClient(t, mux)
	client.accountID = "U1"

	positions, err := client.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)

	assert.Equal(t, "AAPL", positions[0].Symbol)
	assert.Equal(t, 10.0, positions[0].Quantity)
	assert.Equal(t, "MSFT", positions[1].Symbol)
	assert.Equal(t, -5.0, positions[1].Quantity)
}

func TestPlaceMarketOrderWithConfirmation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/iserver/account/U1/orders", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": "reply-1", "message": ["confirm price cap"]}]`)
	})
	mux.HandleFunc("/iserver/reply/reply-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		fmt.Fprint(w, `[{"order_id": "98765", "order_status": "Submitted"}]`)
	})
	mux.HandleFunc("/iserver/account/order/status/98765", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"average_price": ""}`)
	})

	client, _ := newTestClient(t, mux)
	client.accountID = "U1"

	fill, err := client.PlaceMarketOrder(context.Background(), Contract{ConID: 265598, Symbol: "AAPL"}, SideBuy, 1)
	require.NoError(t, err)

	assert.Equal(t, "98765", fill.OrderID)
	assert.Equal(t, "Submitted", fill.Status)
	assert.False(t, fill.PriceKnown, "no fill price expected at submission")
}

func TestPlaceMarketOrderWithFillPrice(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/iserver/account/U1/orders", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"order_id": "555", "order_status": "Filled"}]`)
	})
	mux.HandleFunc("/iserver/account/order/status/555", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"average_price": "182.34"}`)
	})

	client, _ := newTestClient(t, mux)
	client.accountID = "U1"

	fill, err := client.PlaceMarketOrder(context.Background(), Contract{ConID: 265598, Symbol: "AAPL"}, SideBuy, 2)
	require.NoError(t, err)

	assert.True(t, fill.PriceKnown)
	assert.InDelta(t, 182.34, fill.AvgPrice, 1e-9)
}

func TestAccountSummary(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/portfolio/U1/summary", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"equitywithloanvalue": {"amount": 25000.5}, "buyingpower": {"amount": 100000}}`)
	})

	client, _ := newTestClient(t, mux)
	client.accountID = "U1"

	summary, err := client.AccountSummary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "U1", summary.AccountID)
	assert.InDelta(t, 25000.5, summary.EquityWithLoan, 1e-9)
	assert.InDelta(t, 100000.0, summary.BuyingPower, 1e-9)
}

func TestHistoricalBars(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	mux := http.NewServeMux()
	mux.HandleFunc("/iserver/marketdata/history", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1d", r.URL.Query().Get("bar"))
		fmt.Fprintf(w, `{"data": [
			{"o": 100, "h": 105, "l": 99, "c": 104, "v": 1000, "t": %d},
			{"o": 104, "h": 106, "l": 101, "c": 102, "v": 1200, "t": %d}
		]}`, start.UnixMilli(), start.Add(24*time.Hour).UnixMilli())
	})

	client, _ := newTestClient(t, mux)
	bars, err := client.HistoricalBars(context.Background(), Contract{ConID: 1, Symbol: "AAPL"}, start, end)
	require.NoError(t, err)

	require.Len(t, bars, 2)
	assert.Equal(t, 104.0, bars[0].Close)
	assert.Equal(t, 102.0, bars[1].Close)
}

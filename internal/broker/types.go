package broker

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable indicates the gateway could not be reached. The CLI
// maps it to a distinct exit code so schedulers can tell a connectivity
// failure apart from other errors.
var ErrUnavailable = errors.New("broker gateway unavailable")

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// Contract identifies a qualified, tradeable instrument.
type Contract struct {
	ConID    int64
	Symbol   string
	Exchange string
	Currency string
}

// Position is a holding reported by the gateway. Quantity is signed:
// positive for long, negative for short. Positions are never persisted
// by this system; they are fetched fresh on every use.
type Position struct {
	ConID         int64
	Symbol        string
	Quantity      float64
	AvgCost       float64
	MarketValue   float64
	UnrealizedPnL float64
}

// Fill is the immediate result of an order submission. The gateway
// often has no average price yet at submission time, in which case
// PriceKnown is false and the ledger records the price as unavailable.
type Fill struct {
	OrderID    string
	Status     string
	AvgPrice   float64
	PriceKnown bool
}

// AccountSummary holds the account values shown on the dashboard.
type AccountSummary struct {
	AccountID      string
	EquityWithLoan float64
	BuyingPower    float64
}

// Bar is one daily OHLCV bar used by the backtester.
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Gateway defines the broker operations the bot depends on. The real
// implementation talks to the IB Client Portal gateway; tests use
// MockGateway.
type Gateway interface {
	// Connect verifies the gateway session and resolves the account.
	Connect(ctx context.Context) error

	// Disconnect ends the gateway session.
	Disconnect(ctx context.Context) error

	// Qualify resolves a ticker symbol to a tradeable contract.
	Qualify(ctx context.Context, symbol string) (Contract, error)

	// Positions returns all current positions for the account.
	Positions(ctx context.Context) ([]Position, error)

	// PlaceMarketOrder submits a market order and returns fill info.
	PlaceMarketOrder(ctx context.Context, contract Contract, side OrderSide, quantity int) (Fill, error)

	// AccountSummary returns equity and buying power for the account.
	AccountSummary(ctx context.Context) (AccountSummary, error)

	// HistoricalBars returns daily bars for the contract within the range.
	HistoricalBars(ctx context.Context, contract Contract, start, end time.Time) ([]Bar, error)
}

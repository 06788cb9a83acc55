package broker

import (
	"context"
	"fmt"
	"time"
)

// PlacedOrder records one order submitted to the MockGateway.
type PlacedOrder struct {
	Contract Contract
	Side     OrderSide
	Quantity int
}

// MockGateway implements Gateway for tests. Production uses Client.
type MockGateway struct {
	ConnectErr  error
	QualifyErrs map[string]error // per-symbol qualification failures
	FillPrices  map[string]float64
	Holdings    []Position
	Account     AccountSummary
	Bars        []Bar

	Placed []PlacedOrder

	ConnectCalls    int
	DisconnectCalls int
	QualifyCalls    int
	PositionCalls   int
	OrderCalls      int
}

// NewMockGateway creates an empty mock gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		QualifyErrs: make(map[string]error),
		FillPrices:  make(map[string]float64),
	}
}

// Calls returns the total number of gateway calls made.
func (m *MockGateway) Calls() int {
	return m.ConnectCalls + m.DisconnectCalls + m.QualifyCalls + m.PositionCalls + m.OrderCalls
}

func (m *MockGateway) Connect(ctx context.Context) error {
	m.ConnectCalls++
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	return nil
}

func (m *MockGateway) Disconnect(ctx context.Context) error {
	m.DisconnectCalls++
	return nil
}

func (m *MockGateway) Qualify(ctx context.Context, symbol string) (Contract, error) {
	m.QualifyCalls++
	if err, exists := m.QualifyErrs[symbol]; exists {
		return Contract{}, err
	}
	return Contract{
		ConID:    int64(1000 + m.QualifyCalls),
		Symbol:   symbol,
		Exchange: "SMART",
		Currency: "USD",
	}, nil
}

func (m *MockGateway) Positions(ctx context.Context) ([]Position, error) {
	m.PositionCalls++
	return m.Holdings, nil
}

func (m *MockGateway) PlaceMarketOrder(ctx context.Context, contract Contract, side OrderSide, quantity int) (Fill, error) {
	m.OrderCalls++
	m.Placed = append(m.Placed, PlacedOrder{Contract: contract, Side: side, Quantity: quantity})

	fill := Fill{
		OrderID: fmt.Sprintf("MOCK-%d", m.OrderCalls),
		Status:  "Submitted",
	}
	if price, exists := m.FillPrices[contract.Symbol]; exists {
		fill.AvgPrice = price
		fill.PriceKnown = true
	}
	return fill, nil
}

func (m *MockGateway) AccountSummary(ctx context.Context) (AccountSummary, error) {
	return m.Account, nil
}

func (m *MockGateway) HistoricalBars(ctx context.Context, contract Contract, start, end time.Time) ([]Bar, error) {
	return m.Bars, nil
}

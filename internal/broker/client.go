package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mgriffes/redscan/pkg/config"
	"github.com/mgriffes/redscan/pkg/httputil"
	"github.com/mgriffes/redscan/pkg/logger"
)

// Client talks to the IB Client Portal gateway REST API.
// Single source of truth: gateway calls are made from this client only.
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	cfg        config.IBConfig

	accountID string
}

// NewClient creates a new Client Portal gateway client.
func NewClient(cfg config.IBConfig, httpClient *httputil.Client, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log,
		cfg:        cfg,
	}
}

// Connect verifies the gateway session is authenticated and resolves
// the account ID. Any failure here wraps ErrUnavailable: the run must
// abort before touching state.
func (c *Client) Connect(ctx context.Context) error {
	resp, err := c.httpClient.Post(ctx, c.cfg.BaseURL+"/iserver/auth/status", "application/json", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: auth status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	var status struct {
		Authenticated bool `json:"authenticated"`
		Connected     bool `json:"connected"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("%w: decode auth status: %v", ErrUnavailable, err)
	}

	if !status.Authenticated {
		return fmt.Errorf("%w: gateway session not authenticated", ErrUnavailable)
	}

	if c.cfg.AccountID != "" {
		c.accountID = c.cfg.AccountID
	} else {
		accountID, err := c.resolveAccount(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		c.accountID = accountID
	}

	c.logger.WithField("account", c.accountID).Info("Connected to IB gateway")
	return nil
}

// Disconnect ends the gateway session.
func (c *Client) Disconnect(ctx context.Context) error {
	resp, err := c.httpClient.Post(ctx, c.cfg.BaseURL+"/logout", "application/json", nil)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	resp.Body.Close()

	c.logger.Info("Disconnected from IB gateway")
	return nil
}

// resolveAccount picks the first account returned by the gateway.
func (c *Client) resolveAccount(ctx context.Context) (string, error) {
	resp, err := c.httpClient.Get(ctx, c.cfg.BaseURL+"/portfolio/accounts")
	if err != nil {
		return "", fmt.Errorf("list accounts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("list accounts: status %d", resp.StatusCode)
	}

	var accounts []struct {
		ID        string `json:"id"`
		AccountID string `json:"accountId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&accounts); err != nil {
		return "", fmt.Errorf("decode accounts: %w", err)
	}

	if len(accounts) == 0 {
		return "", fmt.Errorf("no accounts available")
	}

	if accounts[0].AccountID != "" {
		return accounts[0].AccountID, nil
	}
	return accounts[0].ID, nil
}

// Qualify resolves a ticker symbol to a stock contract via secdef search.
func (c *Client) Qualify(ctx context.Context, symbol string) (Contract, error) {
	searchURL := fmt.Sprintf("%s/iserver/secdef/search?symbol=%s", c.cfg.BaseURL, url.QueryEscape(symbol))

	resp, err := c.httpClient.Get(ctx, searchURL)
	if err != nil {
		return Contract{}, fmt.Errorf("secdef search %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Contract{}, fmt.Errorf("secdef search %s: status %d", symbol, resp.StatusCode)
	}

	var results []struct {
		ConID    string `json:"conid"`
		Symbol   string `json:"symbol"`
		Sections []struct {
			SecType string `json:"secType"`
		} `json:"sections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Contract{}, fmt.Errorf("decode secdef search %s: %w", symbol, err)
	}

	for _, r := range results {
		if r.ConID == "" {
			continue
		}
		for _, s := range r.Sections {
			if s.SecType != "STK" {
				continue
			}
			conID, err := strconv.ParseInt(r.ConID, 10, 64)
			if err != nil {
				return Contract{}, fmt.Errorf("parse conid %q for %s: %w", r.ConID, symbol, err)
			}
			return Contract{
				ConID:    conID,
				Symbol:   symbol,
				Exchange: "SMART",
				Currency: "USD",
			}, nil
		}
	}

	return Contract{}, fmt.Errorf("no stock contract found for %s", symbol)
}

// Positions returns all positions for the connected account.
func (c *Client) Positions(ctx context.Context) ([]Position, error) {
	posURL := fmt.Sprintf("%s/portfolio/%s/positions/0", c.cfg.BaseURL, c.accountID)

	resp, err := c.httpClient.Get(ctx, posURL)
	if err != nil {
		return nil, fmt.Errorf("positions request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("positions request: status %d", resp.StatusCode)
	}

	var raw []struct {
		ConID         int64   `json:"conid"`
		Ticker        string  `json:"ticker"`
		ContractDesc  string  `json:"contractDesc"`
		Position      float64 `json:"position"`
		AvgCost       float64 `json:"avgCost"`
		MktValue      float64 `json:"mktValue"`
		UnrealizedPnL float64 `json:"unrealizedPnl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}

	positions := make([]Position, 0, len(raw))
	for _, p := range raw {
		symbol := p.Ticker
		if symbol == "" {
			if fields := strings.Fields(p.ContractDesc); len(fields) > 0 {
				symbol = fields[0]
			}
		}
		positions = append(positions, Position{
			ConID:         p.ConID,
			Symbol:        symbol,
			Quantity:      p.Position,
			AvgCost:       p.AvgCost,
			MarketValue:   p.MktValue,
			UnrealizedPnL: p.UnrealizedPnL,
		})
	}

	return positions, nil
}

// PlaceMarketOrder submits a DAY market order, answering the gateway's
// confirmation prompt when one comes back, and returns whatever fill
// information is available at submission time.
func (c *Client) PlaceMarketOrder(ctx context.Context, contract Contract, side OrderSide, quantity int) (Fill, error) {
	orderURL := fmt.Sprintf("%s/iserver/account/%s/orders", c.cfg.BaseURL, c.accountID)

	payload := map[string]interface{}{
		"orders": []map[string]interface{}{
			{
				"conid":     contract.ConID,
				"orderType": "MKT",
				"side":      string(side),
				"quantity":  quantity,
				"tif":       "DAY",
			},
		},
	}

	resp, err := c.httpClient.PostJSON(ctx, orderURL, payload)
	if err != nil {
		return Fill{}, fmt.Errorf("place order %s: %w", contract.Symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Fill{}, fmt.Errorf("place order %s: status %d: %s", contract.Symbol, resp.StatusCode, string(body))
	}

	var results []struct {
		ID          string   `json:"id"`
		OrderID     string   `json:"order_id"`
		OrderStatus string   `json:"order_status"`
		Message     []string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Fill{}, fmt.Errorf("decode order response %s: %w", contract.Symbol, err)
	}

	if len(results) == 0 {
		return Fill{}, fmt.Errorf("empty order response for %s", contract.Symbol)
	}

	// The gateway may ask for confirmation before accepting the order.
	if results[0].OrderID == "" && results[0].ID != "" {
		confirmed, err := c.confirmOrder(ctx, results[0].ID)
		if err != nil {
			return Fill{}, fmt.Errorf("confirm order %s: %w", contract.Symbol, err)
		}
		results[0].OrderID = confirmed.OrderID
		results[0].OrderStatus = confirmed.OrderStatus
	}

	fill := Fill{
		OrderID: results[0].OrderID,
		Status:  results[0].OrderStatus,
	}

	if price, ok := c.averagePrice(ctx, fill.OrderID); ok {
		fill.AvgPrice = price
		fill.PriceKnown = true
	}

	c.logger.WithFields(map[string]interface{}{
		"symbol":   contract.Symbol,
		"side":     side,
		"quantity": quantity,
		"order_id": fill.OrderID,
		"status":   fill.Status,
	}).Info("Market order placed")

	return fill, nil
}

type orderReply struct {
	OrderID     string `json:"order_id"`
	OrderStatus string `json:"order_status"`
}

// confirmOrder answers a confirmation prompt with confirmed=true.
func (c *Client) confirmOrder(ctx context.Context, replyID string) (orderReply, error) {
	replyURL := fmt.Sprintf("%s/iserver/reply/%s", c.cfg.BaseURL, replyID)

	resp, err := c.httpClient.PostJSON(ctx, replyURL, map[string]bool{"confirmed": true})
	if err != nil {
		return orderReply{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return orderReply{}, fmt.Errorf("reply status %d", resp.StatusCode)
	}

	var replies []orderReply
	if err := json.NewDecoder(resp.Body).Decode(&replies); err != nil {
		return orderReply{}, fmt.Errorf("decode reply: %w", err)
	}
	if len(replies) == 0 {
		return orderReply{}, fmt.Errorf("empty reply")
	}
	return replies[0], nil
}

// averagePrice fetches the order's average fill price if the gateway
// already has one. Market orders are usually unfilled at this point.
func (c *Client) averagePrice(ctx context.Context, orderID string) (float64, bool) {
	if orderID == "" {
		return 0, false
	}

	statusURL := fmt.Sprintf("%s/iserver/account/order/status/%s", c.cfg.BaseURL, orderID)

	resp, err := c.httpClient.Get(ctx, statusURL)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, false
	}

	var status struct {
		AveragePrice string `json:"average_price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return 0, false
	}

	price, err := strconv.ParseFloat(status.AveragePrice, 64)
	if err != nil || price <= 0 {
		return 0, false
	}
	return price, true
}

// AccountSummary returns the account values used by the dashboard.
func (c *Client) AccountSummary(ctx context.Context) (AccountSummary, error) {
	summaryURL := fmt.Sprintf("%s/portfolio/%s/summary", c.cfg.BaseURL, c.accountID)

	resp, err := c.httpClient.Get(ctx, summaryURL)
	if err != nil {
		return AccountSummary{}, fmt.Errorf("account summary: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return AccountSummary{}, fmt.Errorf("account summary: status %d", resp.StatusCode)
	}

	var raw map[string]struct {
		Amount float64 `json:"amount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return AccountSummary{}, fmt.Errorf("decode account summary: %w", err)
	}

	return AccountSummary{
		AccountID:      c.accountID,
		EquityWithLoan: raw["equitywithloanvalue"].Amount,
		BuyingPower:    raw["buyingpower"].Amount,
	}, nil
}

// HistoricalBars returns daily bars for the contract within [start, end].
func (c *Client) HistoricalBars(ctx context.Context, contract Contract, start, end time.Time) ([]Bar, error) {
	days := int(end.Sub(start).Hours()/24) + 1
	if days < 1 {
		days = 1
	}

	historyURL := fmt.Sprintf("%s/iserver/marketdata/history?conid=%d&period=%dd&bar=1d&outsideRth=false",
		c.cfg.BaseURL, contract.ConID, days)

	resp, err := c.httpClient.Get(ctx, historyURL)
	if err != nil {
		return nil, fmt.Errorf("history request %s: %w", contract.Symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history request %s: status %d", contract.Symbol, resp.StatusCode)
	}

	var result struct {
		Data []struct {
			O float64 `json:"o"`
			H float64 `json:"h"`
			L float64 `json:"l"`
			C float64 `json:"c"`
			V int64   `json:"v"`
			T int64   `json:"t"` // epoch millis
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode history %s: %w", contract.Symbol, err)
	}

	bars := make([]Bar, 0, len(result.Data))
	for _, d := range result.Data {
		date := time.UnixMilli(d.T).UTC()
		if date.Before(start) || date.After(end.Add(24*time.Hour)) {
			continue
		}
		bars = append(bars, Bar{
			Date:   date,
			Open:   d.O,
			High:   d.H,
			Low:    d.L,
			Close:  d.C,
			Volume: d.V,
		})
	}

	return bars, nil
}

package dashboard

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mgriffes/redscan/internal/broker"
	"github.com/mgriffes/redscan/internal/ledger"
	"github.com/mgriffes/redscan/pkg/config"
	"github.com/mgriffes/redscan/pkg/logger"
)

// maxTradeHistory caps how many trades any endpoint serves.
const maxTradeHistory = 1000

// TradeSource serves trade history, newest first.
type TradeSource interface {
	RecentTrades(ctx context.Context, limit int) ([]ledger.Record, error)
}

// LedgerTrades adapts the CSV ledger to TradeSource. Used when no
// database archive is configured.
type LedgerTrades struct {
	Ledger *ledger.Ledger
}

// RecentTrades returns the most recent ledger records, newest first.
func (s LedgerTrades) RecentTrades(ctx context.Context, limit int) ([]ledger.Record, error) {
	all := s.Ledger.Records()

	var records []ledger.Record
	for i := len(all) - 1; i >= 0 && len(records) < limit; i-- {
		records = append(records, all[i])
	}
	return records, nil
}

// AccountView is the account summary served to the UI.
type AccountView struct {
	AccountID      string  `json:"account_id"`
	EquityWithLoan float64 `json:"equity_with_loan"`
	BuyingPower    float64 `json:"buying_power"`
}

// PositionView is one open position served to the UI.
type PositionView struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	AvgCost       float64 `json:"avg_cost"`
	MarketValue   float64 `json:"market_value"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// TradeView is one trade record served to the UI. Price is nil when
// the fill price was not known at order time.
type TradeView struct {
	PlacedAt    string   `json:"placed_at"`
	Symbol      string   `json:"symbol"`
	Action      string   `json:"action"`
	Quantity    int      `json:"quantity"`
	Price       *float64 `json:"price"`
	PurchasedAt string   `json:"purchased_at"`
}

// Snapshot bundles the live account state pushed over the websocket.
type Snapshot struct {
	Account   AccountView    `json:"account"`
	Positions []PositionView `json:"positions"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Handler serves the dashboard endpoints. Gateway reads are cached for
// one refresh interval so a busy page does not hammer the gateway.
type Handler struct {
	gateway  broker.Gateway
	trades   TradeSource
	config   *config.Config
	logger   *logger.Logger
	upgrader websocket.Upgrader

	mu        sync.Mutex
	cached    *Snapshot
	fetchedAt time.Time
}

// NewHandler creates a new dashboard handler.
func NewHandler(gateway broker.Gateway, trades TradeSource, cfg *config.Config, log *logger.Logger) *Handler {
	return &Handler{
		gateway: gateway,
		trades:  trades,
		config:  cfg,
		logger:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// snapshot returns the cached gateway state, refreshing it when older
// than the configured refresh interval.
func (h *Handler) snapshot(ctx context.Context) (*Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cached != nil && time.Since(h.fetchedAt) < h.config.Dashboard.RefreshInterval {
		return h.cached, nil
	}

	account, err := h.gateway.AccountSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("account summary: %w", err)
	}

	positions, err := h.gateway.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}

	snap := &Snapshot{
		Account: AccountView{
			AccountID:      account.AccountID,
			EquityWithLoan: account.EquityWithLoan,
			BuyingPower:    account.BuyingPower,
		},
		Positions: make([]PositionView, 0, len(positions)),
		UpdatedAt: time.Now(),
	}
	for _, pos := range positions {
		snap.Positions = append(snap.Positions, PositionView{
			Symbol:        pos.Symbol,
			Quantity:      pos.Quantity,
			AvgCost:       pos.AvgCost,
			MarketValue:   pos.MarketValue,
			UnrealizedPnL: pos.UnrealizedPnL,
		})
	}

	h.cached = snap
	h.fetchedAt = time.Now()
	return snap, nil
}

// GetAccount serves the account summary.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshot(r.Context())
	if err != nil {
		h.serveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap.Account)
}

// GetPositions serves the open positions.
func (h *Handler) GetPositions(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshot(r.Context())
	if err != nil {
		h.serveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap.Positions)
}

// GetTrades serves one page of trade history, newest first.
func (h *Handler) GetTrades(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid page"})
			return
		}
		page = parsed
	}

	records, err := h.trades.RecentTrades(r.Context(), maxTradeHistory)
	if err != nil {
		h.serveError(w, err)
		return
	}

	pageSize := h.config.Dashboard.PageSize
	totalPages := (len(records) + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}

	start := (page - 1) * pageSize
	if start > len(records) {
		start = len(records)
	}
	end := start + pageSize
	if end > len(records) {
		end = len(records)
	}

	views := make([]TradeView, 0, end-start)
	for _, rec := range records[start:end] {
		views = append(views, tradeView(rec))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"trades":      views,
		"page":        page,
		"total_pages": totalPages,
		"total":       len(records),
	})
}

// Download serves the full trade history as a CSV attachment.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	records, err := h.trades.RecentTrades(r.Context(), maxTradeHistory)
	if err != nil {
		h.serveError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="trades.csv"`)

	cw := csv.NewWriter(w)
	cw.Write([]string{"time", "symbol", "action", "quantity", "price", "purchase_timestamp"})
	for _, rec := range records {
		price := "N/A"
		if rec.PriceKnown {
			price = strconv.FormatFloat(rec.Price, 'f', -1, 64)
		}
		cw.Write([]string{
			rec.Time.Format(ledger.TimeLayout),
			rec.Symbol,
			rec.Action,
			strconv.Itoa(rec.Quantity),
			price,
			rec.PurchasedAt.Format(ledger.TimeLayout),
		})
	}
	cw.Flush()
}

// Stream upgrades to a websocket and pushes a fresh snapshot every
// refresh interval until the client disconnects.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	h.logger.WithField("remote", r.RemoteAddr).Debug("Websocket client connected")

	ticker := time.NewTicker(h.config.Dashboard.RefreshInterval)
	defer ticker.Stop()

	for {
		snap, err := h.snapshot(r.Context())
		if err != nil {
			h.logger.WithError(err).Warn("Snapshot refresh failed, closing websocket")
			return
		}
		if err := conn.WriteJSON(snap); err != nil {
			h.logger.WithField("remote", r.RemoteAddr).Debug("Websocket client disconnected")
			return
		}

		select {
		case <-ticker.C:
		case <-r.Context().Done():
			return
		}
	}
}

func (h *Handler) serveError(w http.ResponseWriter, err error) {
	h.logger.WithError(err).Error("Dashboard request failed")
	writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
}

func tradeView(rec ledger.Record) TradeView {
	view := TradeView{
		PlacedAt:    rec.Time.Format(ledger.TimeLayout),
		Symbol:      rec.Symbol,
		Action:      rec.Action,
		Quantity:    rec.Quantity,
		PurchasedAt: rec.PurchasedAt.Format(ledger.TimeLayout),
	}
	if rec.PriceKnown {
		price := rec.Price
		view.Price = &price
	}
	return view
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

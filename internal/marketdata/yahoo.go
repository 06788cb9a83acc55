package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mgriffes/redscan/pkg/httputil"
	"github.com/mgriffes/redscan/pkg/logger"
)

// YahooSource fetches quotes from the Yahoo Finance chart API.
// Single source of truth: quote lookups are made from this client only.
type YahooSource struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

// NewYahooSource creates a new Yahoo Finance quote source.
func NewYahooSource(baseURL string, httpClient *httputil.Client, log *logger.Logger) *YahooSource {
	return &YahooSource{
		httpClient: httpClient,
		logger:     log,
		baseURL:    baseURL,
	}
}

// chartResponse mirrors the subset of the chart API payload we read.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Quote returns the latest close and the percent change from the prior
// close, computed from the last two daily bars.
func (s *YahooSource) Quote(ctx context.Context, symbol string) (Quote, error) {
	chartURL := fmt.Sprintf("%s/v8/finance/chart/%s?range=5d&interval=1d",
		s.baseURL, url.PathEscape(symbol))

	resp, err := s.httpClient.Get(ctx, chartURL)
	if err != nil {
		return Quote{}, fmt.Errorf("chart request %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Quote{}, fmt.Errorf("%w: %s", ErrNoData, symbol)
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("chart request %s: status %d", symbol, resp.StatusCode)
	}

	var chart chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return Quote{}, fmt.Errorf("decode chart %s: %w", symbol, err)
	}

	if chart.Chart.Error != nil {
		return Quote{}, fmt.Errorf("%w: %s: %s", ErrNoData, symbol, chart.Chart.Error.Description)
	}

	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return Quote{}, fmt.Errorf("%w: %s", ErrNoData, symbol)
	}

	// Trailing bars can hold nulls for holidays or the pre-open window.
	closes := make([]float64, 0)
	for _, c := range chart.Chart.Result[0].Indicators.Quote[0].Close {
		if c != nil {
			closes = append(closes, *c)
		}
	}

	if len(closes) < 2 {
		return Quote{}, fmt.Errorf("%w: %s: need two closes, got %d", ErrNoData, symbol, len(closes))
	}

	current := closes[len(closes)-1]
	previous := closes[len(closes)-2]
	if previous == 0 {
		return Quote{}, fmt.Errorf("%w: %s: zero prior close", ErrNoData, symbol)
	}

	quote := Quote{
		Symbol:         symbol,
		Price:          current,
		DailyChangePct: (current - previous) / previous * 100,
	}

	s.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"price":  quote.Price,
		"change": quote.DailyChangePct,
	}).Debug("Fetched quote")

	return quote, nil
}

package universe

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mgriffes/redscan/pkg/httputil"
	"github.com/mgriffes/redscan/pkg/logger"
)

// Fetcher scrapes the S&P 500 constituents table from Wikipedia.
type Fetcher struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	sourceURL  string
}

// NewFetcher creates a new constituents fetcher.
func NewFetcher(sourceURL string, httpClient *httputil.Client, log *logger.Logger) *Fetcher {
	return &Fetcher{
		httpClient: httpClient,
		logger:     log,
		sourceURL:  sourceURL,
	}
}

// Fetch scrapes the constituents table and returns tickers in page
// order, normalized for IB (share-class dash becomes a dot: BRK-B ->
// BRK.B).
func (f *Fetcher) Fetch(ctx context.Context) ([]string, error) {
	resp, err := f.httpClient.Get(ctx, f.sourceURL)
	if err != nil {
		return nil, fmt.Errorf("fetch constituents page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch constituents page: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse constituents page: %w", err)
	}

	var symbols []string
	doc.Find("table#constituents tbody tr").Each(func(i int, row *goquery.Selection) {
		symbol := strings.TrimSpace(row.Find("td").First().Text())
		if symbol == "" {
			return // header row
		}
		symbols = append(symbols, NormalizeSymbol(symbol))
	})

	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols found in constituents table")
	}

	f.logger.WithField("count", len(symbols)).Info("Fetched S&P 500 constituents")
	return symbols, nil
}

// NormalizeSymbol converts an index-style ticker to IB's notation.
func NormalizeSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "-", ".")
}

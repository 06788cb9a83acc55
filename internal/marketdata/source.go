package marketdata

import (
	"context"
	"errors"
)

// ErrNoData indicates the source had no usable price history for the
// symbol. The scanner treats it as a non-fatal skip.
var ErrNoData = errors.New("no market data available")

// Quote is the latest price and its percent change from the prior close.
type Quote struct {
	Symbol         string
	Price          float64
	DailyChangePct float64
}

// Source provides quotes for the scanner and the dashboard.
type Source interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
}

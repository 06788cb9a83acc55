// Package scanner implements the daily scan-and-buy pass: one bounded
// iteration over the symbol universe that buys stocks trading below
// their prior close, checkpointing progress after every symbol so an
// interrupted pass resumes without repeating work.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/mgriffes/redscan/internal/broker"
	"github.com/mgriffes/redscan/internal/ledger"
	"github.com/mgriffes/redscan/internal/marketdata"
	"github.com/mgriffes/redscan/internal/runstate"
	"github.com/mgriffes/redscan/pkg/logger"
)

// Config holds the scan-and-buy parameters.
type Config struct {
	Quantity      int           // fixed share count per buy
	HoldingPeriod time.Duration // rebuy/exit threshold
	ScanDelay     time.Duration // courtesy delay between symbols
	AutoSell      bool          // sell exit-eligible positions at market
}

// TradeArchiver mirrors flushed trades into external storage. Nil when
// the archive is disabled.
type TradeArchiver interface {
	SaveTrades(ctx context.Context, records []ledger.Record) error
}

// Controller orchestrates one daily pass over the symbol universe. It
// holds no state beyond its collaborators: run progress lives in the
// run-state store and trades in the ledger.
type Controller struct {
	gateway broker.Gateway
	quotes  marketdata.Source
	ledger  *ledger.Ledger
	state   *runstate.Store
	archive TradeArchiver
	cfg     Config
	logger  *logger.Logger
	limiter *rate.Limiter
	now     func() time.Time
}

// NewController creates a controller from its collaborators.
func NewController(
	gateway broker.Gateway,
	quotes marketdata.Source,
	l *ledger.Ledger,
	state *runstate.Store,
	cfg Config,
	log *logger.Logger,
) *Controller {
	delay := cfg.ScanDelay
	if delay <= 0 {
		delay = time.Millisecond
	}
	return &Controller{
		gateway: gateway,
		quotes:  quotes,
		ledger:  l,
		state:   state,
		cfg:     cfg,
		logger:  log,
		limiter: rate.NewLimiter(rate.Every(delay), 1),
		now:     time.Now,
	}
}

// WithArchive enables mirroring flushed trades to external storage.
func (c *Controller) WithArchive(a TradeArchiver) *Controller {
	c.archive = a
	return c
}

// Run executes one daily pass: resume or restart the scan, process
// every remaining symbol, then finalize. Re-invoking after a finalized
// day is a no-op and performs zero gateway calls.
func (c *Controller) Run(ctx context.Context, symbols []string) error {
	today := c.now()

	st := c.state.Read()
	if st.CompletedOn(today) {
		c.logger.WithField("date", today.Format(runstate.DateLayout)).
			Info("Full scan already completed today, nothing to do")
		return nil
	}

	start := st.StartIndexFor(today)
	if start > len(symbols) {
		start = len(symbols)
	}
	if start > 0 {
		c.logger.WithField("index", start).Info("Resuming interrupted scan")
	} else {
		c.logger.WithField("date", today.Format(runstate.DateLayout)).Info("Starting fresh scan")
	}

	if err := c.gateway.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer c.gateway.Disconnect(ctx)

	for i := start; i < len(symbols); i++ {
		c.processSymbol(ctx, symbols[i])

		// An unpersisted index would silently re-process or skip
		// symbols on the next run; abort instead.
		if err := c.state.Write(runstate.Checkpoint(today, i+1)); err != nil {
			return fmt.Errorf("checkpoint after %s: %w", symbols[i], err)
		}

		if i+1 < len(symbols) {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("scan interrupted: %w", err)
			}
		}
	}

	c.EnforceHoldingPeriods(ctx)

	if err := c.ledger.Flush(); err != nil {
		return fmt.Errorf("flush ledger: %w", err)
	}

	if c.archive != nil {
		if err := c.archive.SaveTrades(ctx, c.ledger.Records()); err != nil {
			// The CSV is the system of record; a failed mirror is not
			// worth failing the pass over.
			c.logger.WithError(err).Error("Failed to mirror trades to archive")
		}
	}

	if err := c.state.Write(runstate.Finalized(today)); err != nil {
		return fmt.Errorf("finalize run state: %w", err)
	}

	c.logger.WithField("date", today.Format(runstate.DateLayout)).
		Info("Full scan complete, state reset for the next day")
	return nil
}

// processSymbol runs the per-symbol pipeline: qualify, quote, holding
// gate, buy decision. Every failure is non-fatal; the index advances
// regardless of outcome.
func (c *Controller) processSymbol(ctx context.Context, symbol string) {
	log := c.logger.WithField("symbol", symbol)
	log.Debug("Processing symbol")

	contract, err := c.gateway.Qualify(ctx, symbol)
	if err != nil {
		log.WithError(err).Warn("Could not qualify contract, skipping")
		return
	}

	quote, err := c.quotes.Quote(ctx, symbol)
	if err != nil {
		if errors.Is(err, marketdata.ErrNoData) {
			log.Warn("No valid price or daily change, skipping")
		} else {
			log.WithError(err).Warn("Quote lookup failed, skipping")
		}
		return
	}

	info := EvaluateHolding(c.ledger, symbol, c.now(), c.cfg.HoldingPeriod)
	if info.State == HoldingHeld {
		log.WithField("held", info.Held.Round(time.Minute).String()).
			Info("Already holding from a recent trade, skipping new buy")
		return
	}

	if quote.DailyChangePct >= 0 {
		log.Debugf("Not red (%.2f%%), skipping buy", quote.DailyChangePct)
		return
	}

	log.Infof("Red (%.2f%%), placing buy order", quote.DailyChangePct)

	fill, err := c.gateway.PlaceMarketOrder(ctx, contract, broker.SideBuy, c.cfg.Quantity)
	if err != nil {
		log.WithError(err).Warn("Buy order failed, skipping")
		return
	}

	now := c.now()
	c.ledger.Append(ledger.Record{
		Time:        now,
		Symbol:      symbol,
		Action:      ledger.ActionBuy,
		Quantity:    c.cfg.Quantity,
		Price:       fill.AvgPrice,
		PriceKnown:  fill.PriceKnown,
		PurchasedAt: now,
	})

	log.WithFields(map[string]interface{}{
		"quantity": c.cfg.Quantity,
		"order_id": fill.OrderID,
	}).Info("Placed BUY order")
}

package scanner

import (
	"context"
	"time"

	"github.com/mgriffes/redscan/internal/broker"
	"github.com/mgriffes/redscan/internal/ledger"
)

// EnforceHoldingPeriods walks current positions and evaluates each one
// against the holding-period threshold. Advisory by default: it logs
// eligibility and remaining hold time. With AutoSell enabled it places
// a market sell for the full position once the holding period has
// elapsed and records the sale in the ledger.
func (c *Controller) EnforceHoldingPeriods(ctx context.Context) {
	c.logger.Info("Checking current positions for holding period enforcement")

	positions, err := c.gateway.Positions(ctx)
	if err != nil {
		c.logger.WithError(err).Error("Could not fetch positions, skipping enforcement")
		return
	}

	if len(positions) == 0 {
		c.logger.Info("No open positions to manage")
		return
	}

	for _, pos := range positions {
		log := c.logger.WithField("symbol", pos.Symbol)

		info := EvaluateHolding(c.ledger, pos.Symbol, c.now(), c.cfg.HoldingPeriod)
		switch info.State {
		case HoldingNone:
			log.Warn("No purchase record found, cannot enforce holding period")

		case HoldingHeld:
			log.WithFields(map[string]interface{}{
				"held":      info.Held.Round(time.Minute).String(),
				"remaining": info.Remaining.Round(time.Minute).String(),
			}).Info("Position still inside holding period")

		case HoldingExitEligible:
			log.WithField("held", info.Held.Round(time.Minute).String()).
				Info("Position held past threshold, eligible for sale")

			if c.cfg.AutoSell && pos.Quantity > 0 {
				c.sellPosition(ctx, pos)
			}
		}
	}
}

// sellPosition closes a long position at market and records the sale.
func (c *Controller) sellPosition(ctx context.Context, pos broker.Position) {
	log := c.logger.WithField("symbol", pos.Symbol)

	contract := broker.Contract{
		ConID:    pos.ConID,
		Symbol:   pos.Symbol,
		Exchange: "SMART",
		Currency: "USD",
	}

	quantity := int(pos.Quantity)
	fill, err := c.gateway.PlaceMarketOrder(ctx, contract, broker.SideSell, quantity)
	if err != nil {
		log.WithError(err).Warn("Auto-sell order failed")
		return
	}

	now := c.now()
	c.ledger.Append(ledger.Record{
		Time:        now,
		Symbol:      pos.Symbol,
		Action:      ledger.ActionSell,
		Quantity:    quantity,
		Price:       fill.AvgPrice,
		PriceKnown:  fill.PriceKnown,
		PurchasedAt: now,
	})

	log.WithFields(map[string]interface{}{
		"quantity": quantity,
		"order_id": fill.OrderID,
	}).Info("Placed SELL order for exit-eligible position")
}

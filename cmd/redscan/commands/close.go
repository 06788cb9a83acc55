package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mgriffes/redscan/internal/broker"
	"github.com/mgriffes/redscan/pkg/httputil"
	"github.com/mgriffes/redscan/pkg/logger"
)

// closeCmd represents the close command
var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Close every open position at market",
	Long: `Lists all open positions and flattens each one with a
reversing market order: longs are sold, shorts are bought back.

Example:
  redscan close --dry-run
  redscan close`,
	RunE: runClose,
}

var closeDryRun bool

func init() {
	rootCmd.AddCommand(closeCmd)

	closeCmd.Flags().BoolVar(&closeDryRun, "dry-run", false, "list positions without placing orders")
}

func runClose(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	ctx := context.Background()
	gateway := broker.NewClient(cfg.IB, httputil.New(log).WithInsecureTLS(), log)

	if err := gateway.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer gateway.Disconnect(ctx)

	positions, err := gateway.Positions(ctx)
	if err != nil {
		return fmt.Errorf("fetch positions: %w", err)
	}

	if len(positions) == 0 {
		fmt.Println("No open positions to close.")
		return nil
	}

	fmt.Printf("Found %d open position(s):\n", len(positions))
	for _, pos := range positions {
		fmt.Printf("  %-6s qty %8.0f  avg cost %10.2f  unrealized P&L %10.2f\n",
			pos.Symbol, pos.Quantity, pos.AvgCost, pos.UnrealizedPnL)
	}

	if closeDryRun {
		fmt.Println("Dry run, no orders placed.")
		return nil
	}

	closed := 0
	for _, pos := range positions {
		if pos.Quantity == 0 {
			continue
		}

		side := broker.SideSell
		quantity := int(pos.Quantity)
		if pos.Quantity < 0 {
			side = broker.SideBuy
			quantity = -quantity
		}

		contract := broker.Contract{
			ConID:    pos.ConID,
			Symbol:   pos.Symbol,
			Exchange: "SMART",
			Currency: "USD",
		}

		fill, err := gateway.PlaceMarketOrder(ctx, contract, side, quantity)
		if err != nil {
			log.WithError(err).WithField("symbol", pos.Symbol).Error("Failed to close position")
			continue
		}

		closed++
		fmt.Printf("  %s %d %s (order %s)\n", side, quantity, pos.Symbol, fill.OrderID)
	}

	fmt.Printf("Closed %d of %d position(s).\n", closed, len(positions))
	return nil
}

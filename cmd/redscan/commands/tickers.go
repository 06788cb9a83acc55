package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mgriffes/redscan/internal/universe"
	"github.com/mgriffes/redscan/pkg/httputil"
	"github.com/mgriffes/redscan/pkg/logger"
)

// tickersCmd represents the tickers command
var tickersCmd = &cobra.Command{
	Use:   "tickers",
	Short: "Refresh the S&P 500 symbol list",
	Long: `Scrapes the current S&P 500 constituents from Wikipedia,
normalizes the symbols to the gateway's dot notation (BRK-B becomes
BRK.B) and writes them to the symbols file, one per line.

Example:
  redscan tickers`,
	RunE: runTickers,
}

func init() {
	rootCmd.AddCommand(tickersCmd)
}

func runTickers(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	fetcher := universe.NewFetcher(cfg.Universe.SourceURL, httputil.New(log), log)

	symbols, err := fetcher.Fetch(context.Background())
	if err != nil {
		return fmt.Errorf("fetch constituents: %w", err)
	}

	if err := universe.Save(cfg.Universe.SymbolsFile, symbols); err != nil {
		return fmt.Errorf("save symbols: %w", err)
	}

	fmt.Printf("Saved %d symbols to %s\n", len(symbols), cfg.Universe.SymbolsFile)
	return nil
}

package commands

import (
	"github.com/spf13/cobra"

	"github.com/mgriffes/redscan/pkg/config"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "redscan",
	Short: "S&P 500 dip buyer for the IB Client Portal Gateway",
	Long: `redscan scans the S&P 500 once per day and buys every stock
trading below its previous close, holding each purchase for a minimum
period before it may be sold or rebought.

A scan pass checkpoints its position after every symbol, so an
interrupted run resumes where it left off instead of starting over.

Examples:
  redscan tickers                 refresh the S&P 500 symbol list
  redscan scan                    run one scan pass now
  redscan scan --schedule "30 9 * * 1-5"
  redscan close                   close all open positions at market
  redscan status                  show run state and holdings
  redscan dashboard               serve the web dashboard
  redscan backtest --symbol AAPL --start 2024-01-01 --end 2024-06-30`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig loads the environment configuration, honoring --verbose.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/mgriffes/redscan/internal/ledger"
	"github.com/mgriffes/redscan/internal/runstate"
	"github.com/mgriffes/redscan/internal/scanner"
	"github.com/mgriffes/redscan/pkg/logger"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show run state and recorded holdings",
	Long: `Prints today's scan progress and the holding state of every
symbol with a recorded buy, without contacting the gateway.

Example:
  redscan status`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.NewNop()

	now := time.Now()
	state := runstate.NewStore(cfg.StateFile()).Read()

	fmt.Println("=== Scan state ===")
	switch {
	case state.CompletedOn(now):
		fmt.Printf("Completed today (%s).\n", now.Format(runstate.DateLayout))
	case state.StartIndexFor(now) > 0:
		fmt.Printf("Interrupted today at index %d; the next scan resumes there.\n", state.NextStartIndex)
	case state.LastRunDate != "":
		fmt.Printf("Last activity on %s; the next scan starts fresh.\n", state.LastRunDate)
	default:
		fmt.Println("No scan recorded yet.")
	}

	tradeLedger := ledger.New(cfg.LedgerFile(), log)
	tradeLedger.Load()

	fmt.Printf("\n=== Trade ledger ===\n")
	fmt.Printf("%d record(s) in %s\n", tradeLedger.Len(), cfg.LedgerFile())

	symbols := make(map[string]struct{})
	for _, rec := range tradeLedger.Records() {
		if rec.Action == ledger.ActionBuy {
			symbols[rec.Symbol] = struct{}{}
		}
	}
	if len(symbols) == 0 {
		return nil
	}

	names := make([]string, 0, len(symbols))
	for symbol := range symbols {
		names = append(names, symbol)
	}
	sort.Strings(names)

	fmt.Printf("\n=== Holdings (by ledger) ===\n")
	for _, symbol := range names {
		info := scanner.EvaluateHolding(tradeLedger, symbol, now, cfg.Trading.HoldingPeriod)
		switch info.State {
		case scanner.HoldingHeld:
			fmt.Printf("  %-6s held %s, %s remaining\n",
				symbol,
				info.Held.Round(time.Minute),
				info.Remaining.Round(time.Minute))
		case scanner.HoldingExitEligible:
			fmt.Printf("  %-6s held %s, eligible for exit\n",
				symbol,
				info.Held.Round(time.Minute))
		}
	}

	return nil
}

package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mgriffes/redscan/internal/backtest"
	"github.com/mgriffes/redscan/internal/broker"
	"github.com/mgriffes/redscan/pkg/httputil"
	"github.com/mgriffes/redscan/pkg/logger"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Simulate the dip-buy rule over historical daily bars",
	Long: `Downloads daily bars for one symbol through the gateway and
replays the dip-buy rule against them: enter on a daily drop at or
beyond the threshold, exit on stop loss, take profit or the holding
limit.

Example:
  redscan backtest --symbol AAPL --start 2024-01-01 --end 2024-06-30
  redscan backtest --symbol MSFT --start 2023-01-01 --end 2023-12-31 --threshold 2 --stop-loss 5 --take-profit 3`,
	RunE: runBacktest,
}

var (
	btSymbol     string
	btStart      string
	btEnd        string
	btCapital    float64
	btThreshold  float64
	btStopLoss   float64
	btTakeProfit float64
	btMaxDays    int
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVar(&btSymbol, "symbol", "", "symbol to backtest (required)")
	backtestCmd.Flags().StringVar(&btStart, "start", "", "start date, YYYY-MM-DD (required)")
	backtestCmd.Flags().StringVar(&btEnd, "end", "", "end date, YYYY-MM-DD (required)")
	backtestCmd.Flags().Float64Var(&btCapital, "capital", 10000, "starting capital")
	backtestCmd.Flags().Float64Var(&btThreshold, "threshold", 1.0, "entry threshold, daily drop percent")
	backtestCmd.Flags().Float64Var(&btStopLoss, "stop-loss", 5.0, "stop loss percent below entry")
	backtestCmd.Flags().Float64Var(&btTakeProfit, "take-profit", 3.0, "take profit percent above entry")
	backtestCmd.Flags().IntVar(&btMaxDays, "max-days", 10, "maximum holding days per trade")

	backtestCmd.MarkFlagRequired("symbol")
	backtestCmd.MarkFlagRequired("start")
	backtestCmd.MarkFlagRequired("end")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	start, err := time.Parse("2006-01-02", btStart)
	if err != nil {
		return fmt.Errorf("invalid --start: %w", err)
	}
	end, err := time.Parse("2006-01-02", btEnd)
	if err != nil {
		return fmt.Errorf("invalid --end: %w", err)
	}
	if !end.After(start) {
		return fmt.Errorf("--end must be after --start")
	}

	ctx := context.Background()
	gateway := broker.NewClient(cfg.IB, httputil.New(log).WithInsecureTLS(), log)

	if err := gateway.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer gateway.Disconnect(ctx)

	engine := backtest.NewEngine(gateway, log)
	result, err := engine.Run(ctx, backtest.Config{
		Symbol:          btSymbol,
		Start:           start,
		End:             end,
		InitialCapital:  btCapital,
		BuyThresholdPct: btThreshold,
		StopLossPct:     btStopLoss,
		TakeProfitPct:   btTakeProfit,
		MaxHoldingDays:  btMaxDays,
	})
	if err != nil {
		return err
	}

	printBacktestResult(result)
	return nil
}

func printBacktestResult(result *backtest.Result) {
	fmt.Printf("\n=== Backtest: %s (%s to %s) ===\n",
		result.Config.Symbol,
		result.Config.Start.Format("2006-01-02"),
		result.Config.End.Format("2006-01-02"))
	fmt.Printf("Bars:            %d\n", result.Bars)
	fmt.Printf("Trades:          %d (%d won, %d lost)\n",
		len(result.Trades), result.WinningTrades, result.LosingTrades)
	fmt.Printf("Win rate:        %.1f%%\n", result.WinRate)
	fmt.Printf("Final capital:   %.2f\n", result.FinalCapital)
	fmt.Printf("Total return:    %+.2f%%\n", result.TotalReturnPct)
	fmt.Printf("Max drawdown:    %.2f%%\n", result.MaxDrawdownPct)

	if len(result.Trades) == 0 {
		return
	}

	fmt.Println("\nTrades:")
	for _, trade := range result.Trades {
		fmt.Printf("  %s -> %s  qty %4d  %8.2f -> %8.2f  P&L %+10.2f  (%s)\n",
			trade.EntryDate.Format("2006-01-02"),
			trade.ExitDate.Format("2006-01-02"),
			trade.Quantity,
			trade.EntryPrice,
			trade.ExitPrice,
			trade.PnL,
			trade.ExitReason)
	}
}

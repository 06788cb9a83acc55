// Package backtest simulates the dip-buy rule over historical daily
// bars fetched through the broker gateway.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/mgriffes/redscan/internal/broker"
	"github.com/mgriffes/redscan/pkg/logger"
)

// Config holds backtest parameters.
type Config struct {
	Symbol         string
	Start          time.Time
	End            time.Time
	InitialCapital float64

	BuyThresholdPct float64 // enter when the daily change is at or below -threshold
	StopLossPct     float64 // exit when the close falls this far below entry
	TakeProfitPct   float64 // exit when the close rises this far above entry
	MaxHoldingDays  int     // exit after this many calendar days regardless
}

// Exit reasons recorded on simulated trades.
const (
	ExitStopLoss      = "stop_loss"
	ExitTakeProfit    = "take_profit"
	ExitHoldingPeriod = "holding_period"
	ExitEndOfData     = "end_of_data"
)

// Trade is one simulated round trip.
type Trade struct {
	EntryDate  time.Time
	ExitDate   time.Time
	EntryPrice float64
	ExitPrice  float64
	Quantity   int
	PnL        float64
	ExitReason string
}

// EquityPoint is one point in the equity curve.
type EquityPoint struct {
	Date   time.Time
	Equity float64
}

// Result holds backtest results.
type Result struct {
	Config         Config
	Bars           int
	Trades         []Trade
	WinningTrades  int
	LosingTrades   int
	FinalCapital   float64
	TotalReturnPct float64
	WinRate        float64
	MaxDrawdownPct float64
	EquityCurve    []EquityPoint
}

// Engine fetches bars through the gateway and runs the simulation.
type Engine struct {
	gateway broker.Gateway
	logger  *logger.Logger
}

// NewEngine creates a new backtest engine.
func NewEngine(gateway broker.Gateway, log *logger.Logger) *Engine {
	return &Engine{gateway: gateway, logger: log}
}

// Run qualifies the symbol, downloads daily bars for the range and
// simulates the strategy over them.
func (e *Engine) Run(ctx context.Context, cfg Config) (*Result, error) {
	e.logger.WithFields(map[string]interface{}{
		"symbol": cfg.Symbol,
		"start":  cfg.Start.Format("2006-01-02"),
		"end":    cfg.End.Format("2006-01-02"),
	}).Info("Starting backtest")

	contract, err := e.gateway.Qualify(ctx, cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("qualify %s: %w", cfg.Symbol, err)
	}

	bars, err := e.gateway.HistoricalBars(ctx, contract, cfg.Start, cfg.End)
	if err != nil {
		return nil, fmt.Errorf("historical data for %s: %w", cfg.Symbol, err)
	}

	if len(bars) < 2 {
		return nil, fmt.Errorf("no historical data for %s in the given range", cfg.Symbol)
	}

	result := Simulate(cfg, bars)

	e.logger.WithFields(map[string]interface{}{
		"trades":       len(result.Trades),
		"total_return": result.TotalReturnPct,
		"max_drawdown": result.MaxDrawdownPct,
	}).Info("Backtest complete")

	return result, nil
}

// Simulate runs the dip-buy strategy over the bars. At most one open
// position at a time; all capital goes into each entry.
func Simulate(cfg Config, bars []broker.Bar) *Result {
	result := &Result{
		Config:       cfg,
		Bars:         len(bars),
		FinalCapital: cfg.InitialCapital,
	}

	capital := cfg.InitialCapital
	peak := capital

	var open *Trade

	for i := 1; i < len(bars); i++ {
		bar := bars[i]
		prevClose := bars[i-1].Close
		if prevClose == 0 {
			continue
		}
		change := (bar.Close - prevClose) / prevClose * 100

		if open != nil {
			exitReason := ""
			switch {
			case cfg.StopLossPct > 0 && bar.Close <= open.EntryPrice*(1-cfg.StopLossPct/100):
				exitReason = ExitStopLoss
			case cfg.TakeProfitPct > 0 && bar.Close >= open.EntryPrice*(1+cfg.TakeProfitPct/100):
				exitReason = ExitTakeProfit
			case cfg.MaxHoldingDays > 0 && bar.Date.Sub(open.EntryDate) >= time.Duration(cfg.MaxHoldingDays)*24*time.Hour:
				exitReason = ExitHoldingPeriod
			case i == len(bars)-1:
				exitReason = ExitEndOfData
			}

			if exitReason != "" {
				capital += closeTrade(open, bar, exitReason)
				recordTrade(result, *open)
				open = nil
			}
		} else if change <= -cfg.BuyThresholdPct && i < len(bars)-1 {
			quantity := int(capital / bar.Close)
			if quantity > 0 {
				open = &Trade{
					EntryDate:  bar.Date,
					EntryPrice: bar.Close,
					Quantity:   quantity,
				}
				capital -= float64(quantity) * bar.Close
			}
		}

		equity := capital
		if open != nil {
			equity += float64(open.Quantity) * bar.Close
		}
		result.EquityCurve = append(result.EquityCurve, EquityPoint{Date: bar.Date, Equity: equity})

		if equity > peak {
			peak = equity
		} else if peak > 0 {
			drawdown := (peak - equity) / peak * 100
			if drawdown > result.MaxDrawdownPct {
				result.MaxDrawdownPct = drawdown
			}
		}
	}

	result.FinalCapital = capital
	if cfg.InitialCapital > 0 {
		result.TotalReturnPct = (capital - cfg.InitialCapital) / cfg.InitialCapital * 100
	}
	if total := len(result.Trades); total > 0 {
		result.WinRate = float64(result.WinningTrades) / float64(total) * 100
	}

	return result
}

// closeTrade fills in the exit side and returns the sale proceeds.
func closeTrade(t *Trade, bar broker.Bar, reason string) float64 {
	t.ExitDate = bar.Date
	t.ExitPrice = bar.Close
	t.ExitReason = reason
	t.PnL = float64(t.Quantity) * (t.ExitPrice - t.EntryPrice)
	return float64(t.Quantity) * t.ExitPrice
}

func recordTrade(result *Result, t Trade) {
	result.Trades = append(result.Trades, t)
	if t.PnL > 0 {
		result.WinningTrades++
	} else {
		result.LosingTrades++
	}
}

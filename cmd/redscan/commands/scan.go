package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mgriffes/redscan/internal/archive"
	"github.com/mgriffes/redscan/internal/broker"
	"github.com/mgriffes/redscan/internal/ledger"
	"github.com/mgriffes/redscan/internal/marketdata"
	"github.com/mgriffes/redscan/internal/runstate"
	"github.com/mgriffes/redscan/internal/scanner"
	"github.com/mgriffes/redscan/internal/scheduler"
	"github.com/mgriffes/redscan/internal/universe"
	"github.com/mgriffes/redscan/pkg/config"
	"github.com/mgriffes/redscan/pkg/database"
	"github.com/mgriffes/redscan/pkg/httputil"
	"github.com/mgriffes/redscan/pkg/logger"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan-and-buy pass over the S&P 500",
	Long: `Scans every symbol in the universe file and places a market
buy for each stock trading below its previous close, unless a recent
purchase is still inside its holding period.

Progress is checkpointed after every symbol; rerunning after an
interruption resumes from the last processed symbol. Once a day's pass
has finalized, rerunning on the same day is a no-op.

Example:
  redscan scan
  redscan scan --force
  redscan scan --schedule "30 9 * * 1-5"`,
	RunE: runScan,
}

var (
	scanForce    bool
	scanSchedule string
)

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().BoolVar(&scanForce, "force", false, "scan outside regular trading hours")
	scanCmd.Flags().StringVar(&scanSchedule, "schedule", "", "run on a cron schedule instead of once")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	if scanSchedule != "" {
		return runScheduledScans(cfg, log)
	}

	if !scanForce && !scanner.MarketOpen(time.Now()) {
		log.Warn("Market is closed; rerun with --force to scan anyway")
		return nil
	}

	return runScanPass(context.Background(), cfg, log)
}

// runScanPass wires up the collaborators and executes one full pass.
func runScanPass(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	symbols, err := universe.Load(cfg.Universe.SymbolsFile)
	if err != nil {
		return fmt.Errorf("load symbol universe (run \"redscan tickers\" first): %w", err)
	}
	log.WithField("count", len(symbols)).Info("Loaded symbol universe")

	// The Client Portal Gateway serves a self-signed certificate.
	gateway := broker.NewClient(cfg.IB, httputil.New(log).WithInsecureTLS(), log)
	quotes := marketdata.NewYahooSource(cfg.MarketData.BaseURL, httputil.New(log), log)

	tradeLedger := ledger.New(cfg.LedgerFile(), log)
	tradeLedger.Load()
	store := runstate.NewStore(cfg.StateFile())

	controller := scanner.NewController(gateway, quotes, tradeLedger, store, scanner.Config{
		Quantity:      cfg.Trading.OrderQuantity,
		HoldingPeriod: cfg.Trading.HoldingPeriod,
		ScanDelay:     cfg.Trading.ScanDelay,
		AutoSell:      cfg.Trading.AutoSell,
	}, log)

	if cfg.ArchiveEnabled() {
		db, err := database.New(cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		repo := archive.NewRepository(db.Pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("prepare trade archive: %w", err)
		}
		controller.WithArchive(repo)
		log.Info("Trade archive enabled")
	}

	return controller.Run(ctx, symbols)
}

// scanJob adapts a scan pass to the scheduler.
type scanJob struct {
	cfg      *config.Config
	log      *logger.Logger
	schedule string
}

func (j *scanJob) Name() string     { return "daily-scan" }
func (j *scanJob) Schedule() string { return j.schedule }

func (j *scanJob) Run(ctx context.Context) error {
	if !scanForce && !scanner.MarketOpen(time.Now()) {
		j.log.Info("Market is closed, skipping scheduled scan")
		return nil
	}
	return runScanPass(ctx, j.cfg, j.log)
}

// runScheduledScans runs scan passes on a cron schedule until
// interrupted.
func runScheduledScans(cfg *config.Config, log *logger.Logger) error {
	sched := scheduler.New(log)
	if err := sched.AddJob(&scanJob{cfg: cfg, log: log, schedule: scanSchedule}); err != nil {
		return fmt.Errorf("schedule scan: %w", err)
	}

	sched.Start()
	fmt.Printf("Scanning on schedule %q. Press Ctrl+C to stop.\n", scanSchedule)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	sched.Stop()
	return nil
}

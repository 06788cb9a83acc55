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
	"github.com/mgriffes/redscan/internal/dashboard"
	"github.com/mgriffes/redscan/internal/ledger"
	"github.com/mgriffes/redscan/pkg/database"
	"github.com/mgriffes/redscan/pkg/httputil"
	"github.com/mgriffes/redscan/pkg/logger"
)

// dashboardCmd represents the dashboard command
var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Serve the web dashboard",
	Long: `Starts an HTTP server with a live view of the account, open
positions and trade history.

Endpoints:
  GET  /               - dashboard page
  GET  /health         - health check
  GET  /download       - trade history as CSV
  GET  /api/account    - account summary
  GET  /api/positions  - open positions
  GET  /api/trades     - paginated trade history
  GET  /ws             - live snapshot stream

Example:
  redscan dashboard
  redscan dashboard --port 9090`,
	RunE: runDashboard,
}

var dashboardPort string

func init() {
	rootCmd.AddCommand(dashboardCmd)

	dashboardCmd.Flags().StringVar(&dashboardPort, "port", "", "listen port (default from DASHBOARD_PORT)")
}

func runDashboard(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dashboardPort != "" {
		cfg.Dashboard.Port = dashboardPort
	}
	log := logger.New(cfg)

	ctx := context.Background()
	gateway := broker.NewClient(cfg.IB, httputil.New(log).WithInsecureTLS(), log)

	if err := gateway.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer gateway.Disconnect(ctx)

	// Trades come from the database archive when configured, otherwise
	// straight from the CSV ledger.
	var trades dashboard.TradeSource
	if cfg.ArchiveEnabled() {
		db, err := database.New(cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()
		trades = archive.NewRepository(db.Pool)
		log.Info("Serving trade history from the database archive")
	} else {
		tradeLedger := ledger.New(cfg.LedgerFile(), log)
		tradeLedger.Load()
		trades = dashboard.LedgerTrades{Ledger: tradeLedger}
	}

	handler := dashboard.NewHandler(gateway, trades, cfg, log)
	router := dashboard.NewRouter(handler, log)
	server := dashboard.NewServer(cfg, log, router)

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start dashboard server")
		}
	}()

	fmt.Printf("Dashboard running on http://localhost:%s\nPress Ctrl+C to stop\n", cfg.Dashboard.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
// Single source of truth: every environment variable is read here.
type Config struct {
	Env string // development, staging, production

	// DataDir holds the run-state file, the trade ledger and the
	// symbols file unless overridden individually.
	DataDir string

	IB         IBConfig
	MarketData MarketDataConfig
	Universe   UniverseConfig
	Trading    TradingConfig
	Database   DatabaseConfig
	Dashboard  DashboardConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// IBConfig holds Interactive Brokers Client Portal Gateway configuration.
type IBConfig struct {
	BaseURL   string // gateway base URL, e.g. https://localhost:5000/v1/api
	AccountID string // optional; resolved from /portfolio/accounts when empty
}

// MarketDataConfig holds the quote source configuration.
type MarketDataConfig struct {
	BaseURL string
}

// UniverseConfig holds symbol-universe configuration.
type UniverseConfig struct {
	SymbolsFile string
	SourceURL   string // Wikipedia constituents page for the tickers command
}

// TradingConfig holds the scan-and-buy parameters.
type TradingConfig struct {
	OrderQuantity int           // fixed share count per buy
	HoldingPeriod time.Duration // minimum hold before rebuy/exit
	ScanDelay     time.Duration // courtesy delay between symbols
	AutoSell      bool          // sell at market once the holding period elapses
}

// DatabaseConfig holds the optional PostgreSQL trade archive configuration.
// The archive is disabled when URL is empty.
type DatabaseConfig struct {
	URL string

	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DashboardConfig holds the web dashboard configuration.
type DashboardConfig struct {
	Port            string
	RefreshInterval time.Duration // snapshot cache TTL and websocket push cadence
	PageSize        int
}

// Load reads configuration from environment variables.
// This is the only function that calls os.Getenv().
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Env:     getEnv("ENV", "development"),
		DataDir: getEnv("DATA_DIR", "."),

		IB: IBConfig{
			BaseURL:   getEnv("IB_GATEWAY_URL", "https://localhost:5000/v1/api"),
			AccountID: getEnv("IB_ACCOUNT_ID", ""),
		},

		MarketData: MarketDataConfig{
			BaseURL: getEnv("MARKET_DATA_URL", "https://query1.finance.yahoo.com"),
		},

		Universe: UniverseConfig{
			SymbolsFile: getEnv("SYMBOLS_FILE", ""),
			SourceURL:   getEnv("SP500_SOURCE_URL", "https://en.wikipedia.org/wiki/List_of_S%26P_500_companies"),
		},

		Trading: TradingConfig{
			OrderQuantity: getEnvAsInt("ORDER_QUANTITY", 1),
			HoldingPeriod: getEnvAsDuration("HOLDING_PERIOD", "48h"),
			ScanDelay:     getEnvAsDuration("SCAN_DELAY", "1s"),
			AutoSell:      getEnvAsBool("AUTO_SELL", false),
		},

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 5),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Dashboard: DashboardConfig{
			Port:            getEnv("DASHBOARD_PORT", "8080"),
			RefreshInterval: getEnvAsDuration("DASHBOARD_REFRESH", "30s"),
			PageSize:        getEnvAsInt("DASHBOARD_PAGE_SIZE", 20),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	if cfg.Universe.SymbolsFile == "" {
		cfg.Universe.SymbolsFile = filepath.Join(cfg.DataDir, "sp500_symbols.txt")
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// StateFile returns the path of the persisted run-state record.
func (c *Config) StateFile() string {
	return filepath.Join(c.DataDir, "run_state.json")
}

// LedgerFile returns the path of the trade ledger CSV.
func (c *Config) LedgerFile() string {
	return filepath.Join(c.DataDir, "trades.csv")
}

// ArchiveEnabled reports whether the Postgres trade archive is configured.
func (c *Config) ArchiveEnabled() bool {
	return c.Database.URL != ""
}

// validate checks if required configuration values are set.
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.IB.BaseURL == "" {
		return fmt.Errorf("IB_GATEWAY_URL is required")
	}

	if c.Trading.OrderQuantity <= 0 {
		return fmt.Errorf("ORDER_QUANTITY must be positive")
	}

	if c.Trading.HoldingPeriod <= 0 {
		return fmt.Errorf("HOLDING_PERIOD must be positive")
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations.
func loadEnvFile() {
	paths := []string{
		".env",
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

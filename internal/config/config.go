// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir            string // Base directory for the ledger database (always absolute)
	RecommendationsDir string // Directory watched for per-user recommendation files
	RedisAddr          string
	RedisPassword      string
	Users              []string // Users to rebalance on each scheduled run
	CronSchedule       string   // cron expression for scheduled runs
	LockTTL            time.Duration
	RegimeServiceURL   string // External market-regime snapshot endpoint
	ExchangeAPIKey     string
	ExchangeAPISecret  string
	LogLevel           string
	DevMode            bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("COINPILOT_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path and ensure the directory exists
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	recsDir := getEnv("COINPILOT_RECOMMENDATIONS_DIR", filepath.Join(absDataDir, "recommendations"))
	if err := os.MkdirAll(recsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create recommendations directory: %w", err)
	}

	cfg := &Config{
		DataDir:            absDataDir,
		RecommendationsDir: recsDir,
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		Users:              getEnvAsList("COINPILOT_USERS", nil),
		CronSchedule:       getEnv("COINPILOT_CRON", "0 */4 * * *"), // every 4 hours
		LockTTL:            time.Duration(getEnvAsInt("COINPILOT_LOCK_TTL_SECONDS", 300)) * time.Second,
		RegimeServiceURL:   getEnv("REGIME_SERVICE_URL", ""),
		ExchangeAPIKey:     getEnv("EXCHANGE_API_KEY", ""),
		ExchangeAPISecret:  getEnv("EXCHANGE_API_SECRET", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DevMode:            getEnvAsBool("DEV_MODE", false),
	}

	if len(cfg.Users) == 0 {
		return nil, fmt.Errorf("COINPILOT_USERS must name at least one user")
	}

	return cfg, nil
}

// LedgerDBPath returns the path of the ledger database file
func (c *Config) LedgerDBPath() string {
	return filepath.Join(c.DataDir, "ledger.db")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsList parses a comma-separated environment variable
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

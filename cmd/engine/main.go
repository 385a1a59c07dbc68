// Package main is the entry point for the coinpilot rebalancing engine.
// On every scheduled tick it loads each user's latest recommendation file,
// acquires the per-user run lease, and drives one two-phase rebalance run.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/coinpilot/internal/config"
	"github.com/aristath/coinpilot/internal/database"
	"github.com/aristath/coinpilot/internal/domain"
	"github.com/aristath/coinpilot/internal/exchange"
	"github.com/aristath/coinpilot/internal/ledger"
	"github.com/aristath/coinpilot/internal/lock"
	"github.com/aristath/coinpilot/internal/notify"
	"github.com/aristath/coinpilot/internal/rebalance"
	"github.com/aristath/coinpilot/internal/regime"
	"github.com/aristath/coinpilot/internal/scoring"
	"github.com/aristath/coinpilot/internal/trading"
	"github.com/aristath/coinpilot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Strs("users", cfg.Users).Str("schedule", cfg.CronSchedule).Msg("Starting coinpilot engine")

	ledgerDB, err := database.New(database.Config{
		Path:    cfg.LedgerDBPath(),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger database")
	}
	defer ledgerDB.Close()

	if err := ledgerDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate ledger database")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()

	adapter, err := loadPaperExchange(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to seed paper exchange")
	}

	orchestrator := rebalance.NewOrchestrator(rebalance.OrchestratorConfig{
		Exchange: adapter,
		Resolver: regime.NewResolver(regime.NewHTTPReader(cfg.RegimeServiceURL, log), log),
		Scorer:   scoring.NewScorer(log),
		Executor: trading.NewExecutor(adapter, trading.NewTradeRepository(ledgerDB.Conn(), log), log),
		Holdings: ledger.NewRepository(ledgerDB.Conn(), log),
		Notifier: notify.NewLogNotifier(log),
		Policy:   domain.DefaultTradePolicy(),
		Logger:   log,
	})

	runAll := func() {
		ctx := context.Background()
		for _, user := range cfg.Users {
			runUser(ctx, cfg, redisClient, orchestrator, user, log)
		}
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.CronSchedule, runAll); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.CronSchedule).Msg("Invalid cron schedule")
	}
	scheduler.Start()
	defer scheduler.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down coinpilot engine")
}

// runUser executes one rebalance run for a user under the Redis run lease.
// A held lease or a missing recommendation file skips the run quietly.
func runUser(
	ctx context.Context,
	cfg *config.Config,
	redisClient *redis.Client,
	orchestrator *rebalance.Orchestrator,
	user string,
	log zerolog.Logger,
) {
	recs, err := loadRecommendations(cfg.RecommendationsDir, user)
	if err != nil {
		log.Warn().Err(err).Str("user", user).Msg("No usable recommendations, skipping run")
		return
	}

	lease, err := lock.AcquireRedisLease(ctx, redisClient, user, cfg.LockTTL, log)
	if err != nil {
		log.Error().Err(err).Str("user", user).Msg("Run lease acquisition failed")
		return
	}
	if lease == nil {
		return
	}
	defer lease.Release(ctx)

	result, err := orchestrator.Run(ctx, user, recs, lease.Guard())
	if err != nil {
		if errors.Is(err, lock.ErrLockLost) {
			log.Error().Str("user", user).Msg("Run aborted, lock lost mid-run")
			return
		}
		log.Error().Err(err).Str("user", user).Msg("Rebalance run failed")
		return
	}

	log.Info().
		Str("user", user).
		Int("executed", result.ExecutedCount()).
		Int("sell_requests", len(result.SellResults)).
		Int("buy_requests", len(result.BuyResults)).
		Msg("Rebalance run complete")
}

// loadRecommendations reads the user's latest recommendation file. The file
// is produced by the external inference pipeline as <dir>/<user>.json.
func loadRecommendations(dir, user string) ([]domain.Recommendation, error) {
	path := filepath.Join(dir, user+".json")
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recommendations file %s: %w", path, err)
	}

	recs, err := domain.ParseRecommendations(payload)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("recommendations file %s holds no valid entries", path)
	}
	return recs, nil
}

// paperSeed is the optional on-disk seed for the paper exchange
type paperSeed struct {
	Prices   map[string]float64          `json:"prices"`
	Balances map[string][]domain.Balance `json:"balances"`
}

// loadPaperExchange seeds the paper adapter from <data>/paper_exchange.json
// when present, otherwise gives every configured user a cash-only account.
func loadPaperExchange(cfg *config.Config, log zerolog.Logger) (*exchange.PaperAdapter, error) {
	seed := paperSeed{
		Prices:   map[string]float64{},
		Balances: map[string][]domain.Balance{},
	}

	path := filepath.Join(cfg.DataDir, "paper_exchange.json")
	if payload, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(payload, &seed); err != nil {
			return nil, fmt.Errorf("failed to parse paper exchange seed %s: %w", path, err)
		}
		log.Info().Str("path", path).Msg("Loaded paper exchange seed")
	}

	for _, user := range cfg.Users {
		if _, ok := seed.Balances[user]; !ok {
			seed.Balances[user] = []domain.Balance{{Symbol: domain.CashSymbol, Amount: 1_000_000}}
		}
	}

	return exchange.NewPaperAdapter(seed.Prices, seed.Balances, log), nil
}

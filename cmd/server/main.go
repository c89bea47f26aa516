// Package main is the entry point for the aifolio portfolio engine.
// The service validates AI-proposed trades, executes or queues them
// depending on the market session, keeps holdings on weighted-average-cost
// accounting and valuates every portfolio into a daily snapshot.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkarag/aifolio/internal/clients/advisor"
	"github.com/mkarag/aifolio/internal/clients/marketdata"
	"github.com/mkarag/aifolio/internal/config"
	"github.com/mkarag/aifolio/internal/database"
	"github.com/mkarag/aifolio/internal/modules/holdings"
	"github.com/mkarag/aifolio/internal/modules/orders"
	"github.com/mkarag/aifolio/internal/modules/portfolio"
	portfoliohandlers "github.com/mkarag/aifolio/internal/modules/portfolio/handlers"
	"github.com/mkarag/aifolio/internal/modules/snapshots"
	snapshothandlers "github.com/mkarag/aifolio/internal/modules/snapshots/handlers"
	"github.com/mkarag/aifolio/internal/modules/trading"
	tradinghandlers "github.com/mkarag/aifolio/internal/modules/trading/handlers"
	"github.com/mkarag/aifolio/internal/reliability"
	"github.com/mkarag/aifolio/internal/scheduler"
	"github.com/mkarag/aifolio/internal/server"
	"github.com/mkarag/aifolio/pkg/logger"
)

// maintenanceCron runs the nightly integrity check at 02:00
const maintenanceCron = "0 0 2 * * *"

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

	log.Info().Msg("Starting aifolio")

	// Database
	db, err := database.New(database.Config{
		Path:    cfg.DatabasePath,
		Profile: database.ProfileLedger,
		Name:    "aifolio",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply schema")
	}
	log.Info().Str("path", db.Path()).Msg("Database ready")

	// Repositories
	portfolioRepo := portfolio.NewRepository(db.Conn(), log)
	holdingsRepo := holdings.NewRepository(db.Conn(), log)
	ordersRepo := orders.NewRepository(db.Conn(), log)
	snapshotRepo := snapshots.NewRepository(db.Conn(), log)

	// Market data client, with optional websocket session push
	var sessionWS *marketdata.SessionWebSocket
	if cfg.MarketDataWSURL != "" {
		sessionWS = marketdata.NewSessionWebSocket(cfg.MarketDataWSURL, log)
		if err := sessionWS.Start(); err != nil {
			log.Warn().Err(err).Msg("Session websocket unavailable, falling back to polling")
		}
		defer sessionWS.Stop()
	}
	market := marketdata.NewClient(cfg.MarketDataURL, sessionWS, log)

	// Advisor client (trade proposer)
	proposer := advisor.NewClient(cfg.AdvisorURL, time.Duration(cfg.AdvisorTimeoutSec)*time.Second, log)

	// Snapshot service
	location, err := time.LoadLocation(cfg.SnapshotTimezone)
	if err != nil {
		log.Warn().Err(err).Str("timezone", cfg.SnapshotTimezone).Msg("Invalid snapshot timezone, using local")
		location = time.Local
	}
	snapshotSvc := snapshots.NewService(
		snapshotRepo,
		portfolioRepo,
		holdingsRepo,
		market,
		location,
		cfg.SnapshotParallelism,
		log,
	)

	// Trading pipeline
	validator := trading.NewValidator(decimal.NewFromFloat(cfg.MinTradeValue), log)
	executor := trading.NewExecutor(market, market, validator, portfolioRepo, holdingsRepo, ordersRepo, log)
	tradingSvc := trading.NewService(executor, proposer, portfolioRepo, holdingsRepo, ordersRepo, market, snapshotSvc, log)

	// HTTP server
	srv := server.New(server.Config{
		Log:       log,
		Cfg:       cfg,
		DB:        db,
		Oracle:    market,
		Portfolio: portfoliohandlers.NewHandler(portfolioRepo, holdingsRepo, ordersRepo, log),
		Trading:   tradinghandlers.NewTradingHandlers(tradingSvc, log),
		Snapshots: snapshothandlers.NewHandler(snapshotSvc, log),
	})

	// Background jobs
	sched := scheduler.New(log)

	if err := sched.AddJob(cfg.SnapshotCron, scheduler.NewSnapshotSweepJob(snapshotSvc, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register snapshot sweep job")
	}
	// Pending orders are retried every 5 minutes; closed sessions make it a no-op
	if err := sched.AddJob("0 */5 * * * *", scheduler.NewPendingFlushJob(tradingSvc, portfolioRepo, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register pending flush job")
	}
	if err := sched.AddJob(maintenanceCron, scheduler.NewMaintenanceJob(db, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register maintenance job")
	}

	if cfg.BackupBucket != "" {
		store, err := reliability.NewS3Client(cfg.BackupEndpoint, cfg.BackupAccessKey, cfg.BackupSecretKey, cfg.BackupBucket, log)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize backup storage, backups disabled")
		} else {
			backupSvc := reliability.NewBackupService(store, db, filepath.Dir(db.Path()), log)
			if err := sched.AddJob(cfg.BackupCron, scheduler.NewBackupJob(backupSvc, log)); err != nil {
				log.Fatal().Err(err).Msg("Failed to register backup job")
			}
		}
	} else {
		log.Info().Msg("BACKUP_BUCKET not set, cloud backups disabled")
	}

	sched.Start()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server failed")
	}

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Shutdown complete")
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fttrader/contest-sync/internal/clients/broker"
	"github.com/fttrader/contest-sync/internal/config"
	"github.com/fttrader/contest-sync/internal/database"
	"github.com/fttrader/contest-sync/internal/events"
	"github.com/fttrader/contest-sync/internal/locking"
	"github.com/fttrader/contest-sync/internal/modules/accounts"
	"github.com/fttrader/contest-sync/internal/modules/contests"
	"github.com/fttrader/contest-sync/internal/modules/updatequeue"
	"github.com/fttrader/contest-sync/internal/scheduler"
	"github.com/fttrader/contest-sync/internal/server"
	"github.com/fttrader/contest-sync/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting Contest Sync")

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(contests.InitSchema, accounts.InitSchema, updatequeue.InitSchema); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Shared infrastructure
	eventManager := events.NewManager(log)
	lockManager := locking.NewManager(log)
	brokerClient := broker.NewClient(cfg.BrokerAPIURL, log)

	// Repositories
	contestRepo := contests.NewRepository(db.Conn(), log)
	accountRepo := accounts.NewRepository(db.Conn(), log)

	// Update queue engine
	store := updatequeue.NewStore(db.Conn(), log)
	limiter := updatequeue.NewLimiter(cfg.MaxActiveRequests)
	manager := updatequeue.NewManager(store, limiter, eventManager, cfg.StaleTimeout, log)
	worker := updatequeue.NewWorker(store, limiter,
		accountSource{repo: accountRepo}, contestRepo, brokerClient, accountRepo,
		eventManager, log)
	reclaimer := updatequeue.NewReclaimer(store, cfg.StaleTimeout, eventManager, log)
	driver := updatequeue.NewDriver(store, worker, reclaimer, eventManager, cfg.QueueRetention, log)

	// Scheduler and background jobs
	sched := scheduler.New(log)

	updateTickJob := scheduler.NewUpdateTickJob(scheduler.UpdateTickConfig{
		Log:         log,
		LockManager: lockManager,
		Driver:      driver,
	})
	if err := sched.AddJob(cfg.TickSchedule, updateTickJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register update tick job")
	}

	autoUpdateJob := scheduler.NewAutoUpdateJob(scheduler.AutoUpdateConfig{
		Log:         log,
		LockManager: lockManager,
		Contests:    contestRepo,
		Accounts:    accountRepo,
		Manager:     manager,
		Events:      eventManager,
		Interval:    cfg.AutoUpdateInterval,
	})
	if cfg.AutoUpdateEnabled {
		if err := sched.AddJob("@every 5m", autoUpdateJob); err != nil {
			log.Fatal().Err(err).Msg("Failed to register auto update job")
		}
	}

	sched.Start()
	defer sched.Stop()

	// HTTP handlers
	systemHandlers := server.NewSystemHandlers(log, db, brokerClient, manager, sched)
	systemHandlers.SetJobs(updateTickJob, autoUpdateJob)

	srv := server.New(server.Config{
		Port:            cfg.Port,
		Log:             log,
		DevMode:         cfg.DevMode,
		SystemHandlers:  systemHandlers,
		UpdateHandlers:  updatequeue.NewHandler(manager, log),
		AccountHandlers: accounts.NewHandler(accountRepo, log),
		ContestHandlers: contests.NewHandler(contestRepo, log),
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// accountSource adapts the accounts repository to the worker's view of an
// account.
type accountSource struct {
	repo *accounts.Repository
}

func (s accountSource) BrokerAccount(accountID int64) (*updatequeue.BrokerAccount, error) {
	account, err := s.repo.GetByID(accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, nil
	}
	return &updatequeue.BrokerAccount{
		ID:          account.ID,
		ContestID:   account.ContestID,
		Credentials: account.Credentials(),
	}, nil
}

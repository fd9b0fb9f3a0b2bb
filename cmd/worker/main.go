// Package main is the entry point for the PoraKhela sync engine worker.
//
// The worker owns everything that happens off the submission path:
// draining the outbox queue to the remote progress service, recovering
// persisted timer sessions after a restart, probing connectivity, and
// serving the local diagnostics API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sadmanHT/PoraKhela-sub000/config"
	"github.com/sadmanHT/PoraKhela-sub000/internal/application/command"
	"github.com/sadmanHT/PoraKhela-sub000/internal/application/guard"
	"github.com/sadmanHT/PoraKhela-sub000/internal/application/query"
	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/scoring"
	"github.com/sadmanHT/PoraKhela-sub000/internal/infrastructure/connectivity"
	"github.com/sadmanHT/PoraKhela-sub000/internal/infrastructure/external/remote"
	"github.com/sadmanHT/PoraKhela-sub000/internal/infrastructure/messaging"
	"github.com/sadmanHT/PoraKhela-sub000/internal/infrastructure/persistence/postgres"
	"github.com/sadmanHT/PoraKhela-sub000/internal/infrastructure/persistence/redis"
	"github.com/sadmanHT/PoraKhela-sub000/internal/infrastructure/scheduler"
	"github.com/sadmanHT/PoraKhela-sub000/internal/infrastructure/scheduler/jobs"
	syncinfra "github.com/sadmanHT/PoraKhela-sub000/internal/infrastructure/sync"
	httpapi "github.com/sadmanHT/PoraKhela-sub000/internal/interface/http"
	"github.com/sadmanHT/PoraKhela-sub000/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting PoraKhela sync engine",
		"env", cfg.App.Environment,
		"debug", cfg.App.Debug,
		"timezone", cfg.App.Timezone,
		"version", cfg.App.Version,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE CONNECTION
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL, postgres.PoolSettings{
		MaxConns:        int32(cfg.Database.MaxOpenConns),
		MinConns:        int32(cfg.Database.MaxIdleConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. MIGRATIONS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("checking database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS (optional read-path cache)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache
	var aggregateCache *redis.AggregateCache

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			// Reads fall back to Postgres when the cache is down.
			log.Warn("failed to connect to Redis, caching disabled", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			aggregateCache = redis.NewAggregateCache(redisCache)
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. REPOSITORIES
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	uow := postgres.NewUnitOfWork(dbConn)
	questionRepo := postgres.NewQuestionRepository(dbConn)
	submissionRepo := postgres.NewSubmissionRepository(dbConn)
	ledgerRepo := postgres.NewLedgerRepository(dbConn)
	progressRepo := postgres.NewProgressRepository(dbConn)
	queueRepo := postgres.NewQueueRepository(dbConn)
	timerRepo := postgres.NewTimerRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	eventBusConfig := messaging.DefaultInMemoryEventBusConfig()
	eventBusConfig.Logger = log
	eventBus := messaging.NewInMemoryEventBus(eventBusConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. APPLICATION HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	engine := scoring.NewEngine(scoring.DefaultConfig())
	submissionGuard := guard.New()

	submitHandler := command.NewSubmitAnswerHandler(
		uow, questionRepo, submissionRepo, progressRepo, engine, submissionGuard, eventBus,
	)
	expireHandler := command.NewExpireTimerHandler(submitHandler, timerRepo)

	// A typed nil pointer would defeat the handler's nil check.
	var summaryCache query.Cache
	if aggregateCache != nil {
		summaryCache = aggregateCache
	}
	pointsHandler := query.NewGetPointsSummaryHandler(ledgerRepo, summaryCache)
	lessonProgressHandler := query.NewGetLessonProgressHandler(progressRepo)
	parkedHandler := query.NewGetParkedItemsHandler(queueRepo)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. REMOTE CLIENT AND SYNC COORDINATOR
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing remote client...")
	remoteConfig := remote.DefaultClientConfig(cfg.Remote.BaseURL)
	remoteConfig.APIKey = cfg.Remote.APIKey
	remoteConfig.Timeout = cfg.Remote.RequestTimeout
	remoteConfig.Logger = log
	remoteClient := remote.NewClient(remoteConfig)

	coordinator := syncinfra.NewCoordinator(queueRepo, remoteClient, eventBus, log, syncinfra.Config{
		BatchSize:      cfg.Sync.BatchSize,
		BaseBackoff:    cfg.Sync.BaseBackoff,
		MaxBackoff:     cfg.Sync.MaxBackoff,
		JitterFactor:   cfg.Sync.JitterFactor,
		Interval:       cfg.Sync.DrainInterval,
		MaxRunDuration: cfg.Sync.MaxRunDuration,
		ClaimLease:     cfg.Sync.ClaimLease,
	})
	go coordinator.Start(ctx)

	// ─────────────────────────────────────────────────────────────────────────
	// 10. CONNECTIVITY MONITOR
	// ─────────────────────────────────────────────────────────────────────────
	monitor := connectivity.NewMonitor(remoteClient, eventBus, log, connectivity.Config{
		ProbeInterval:       cfg.Sync.ProbeInterval,
		OnlineProbeInterval: cfg.Sync.OnlineProbeInterval,
		ProbeTimeout:        cfg.Sync.ProbeTimeout,
	})
	// Drain immediately when connectivity comes back instead of waiting
	// out the remainder of the drain interval.
	monitor.OnOnline(coordinator.Kick)
	go monitor.Start(ctx)

	// ─────────────────────────────────────────────────────────────────────────
	// 11. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	// A typed nil pointer would defeat the handlers' nil checks.
	var jobRunner httpapi.JobRunner
	if cfg.Scheduler.Enabled {
		log.Info("initializing scheduler...")
		schedConfig := scheduler.DefaultSchedulerConfig()
		schedConfig.Logger = log
		schedConfig.Timezone = cfg.App.Location
		sched := scheduler.NewScheduler(schedConfig)

		drainJob := jobs.NewDrainSyncQueueJob(coordinator, log)
		if err := sched.Register(drainJob, scheduler.NewIntervalSchedule(cfg.Sync.DrainInterval)); err != nil {
			return fmt.Errorf("failed to register drain job: %w", err)
		}

		recoverJob := jobs.NewRecoverTimersJob(timerRepo, expireHandler, log)
		if err := sched.Register(recoverJob, scheduler.NewIntervalSchedule(cfg.Scheduler.RecoverTimersInterval)); err != nil {
			return fmt.Errorf("failed to register timer recovery job: %w", err)
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() {
			log.Info("stopping scheduler...")
			_ = sched.Stop()
		}()
		jobRunner = sched
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 12. DIAGNOSTICS HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	var server *httpapi.Server
	if cfg.Server.Enabled {
		serverConfig := httpapi.DefaultConfig()
		serverConfig.Host = cfg.Server.Host
		serverConfig.Port = cfg.Server.Port

		checkers := []httpapi.HealthChecker{
			httpapi.CheckerFunc{CheckerName: "postgres", Fn: dbConn.Ping},
		}
		if redisCache != nil {
			checkers = append(checkers, httpapi.CheckerFunc{CheckerName: "redis", Fn: redisCache.Ping})
		}

		server = httpapi.NewServer(serverConfig, httpapi.Dependencies{
			GetPointsSummaryHandler:  pointsHandler,
			GetLessonProgressHandler: lessonProgressHandler,
			GetParkedItemsHandler:    parkedHandler,
			Queue:                    queueRepo,
			Coordinator:              coordinator,
			Jobs:                     jobRunner,
			HealthCheckers:           checkers,
			Logger:                   logger.Default(),
		})

		go func() {
			if err := server.Start(); err != nil {
				log.Error("http server failed", "error", err)
			}
		}()
		log.Info("diagnostics API listening", "address", serverConfig.Address())
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 13. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("PoraKhela sync engine is running", "timezone", cfg.App.Timezone)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())
	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("http server shutdown failed", "error", err)
		}
	}

	log.Info("shutdown completed successfully")
	return nil
}

// setupLogger configures structured logging for the worker.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "json" && cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/flow-helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/flow-helpdesk/internal/app"
	"github.com/spec-kit/flow-helpdesk/internal/config"
	"github.com/spec-kit/flow-helpdesk/internal/integrations/mail"
	"github.com/spec-kit/flow-helpdesk/internal/integrations/n8n"
	"github.com/spec-kit/flow-helpdesk/internal/observability"
	"github.com/spec-kit/flow-helpdesk/internal/persistence"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
	"github.com/spec-kit/flow-helpdesk/internal/repository/memory"
)

const shutdownTimeout = 20 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pingers := map[string]handlers.Pinger{}
	var (
		store   *repository.Store
		storage string
	)
	if cfg.Postgres.DSN != "" {
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()

		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		store = repository.NewPostgresStore(pg.PoolHandle())
		storage = "postgres"
		pingers["postgres"] = pg
	} else {
		logger.Warn("POSTGRES_DSN not set; using in-memory storage")
		store = memory.NewStore()
		storage = "memory"
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()
	if cfg.Redis.Enabled {
		pingers["redis"] = redis
	}

	deps := app.Dependencies{
		Config:  cfg,
		Store:   store,
		Cache:   persistence.NewCache(redis),
		Logger:  logger,
		Metrics: observability.NewMetrics(),
		Storage: storage,
		Pingers: pingers,
		Mailer:  mail.NewMailer(cfg.SMTP, logger),
		Source:  app.BigQuerySource(cfg.BigQuery),
	}
	if client := n8n.NewClient(cfg.N8N, logger); client.Enabled() {
		deps.Lookup = client
		deps.Relay = client
	} else {
		logger.Info("n8n base url not set; vendor lookup and slack relay off")
	}

	helpdesk, err := app.New(deps)
	if err != nil {
		logger.Fatal("failed to build app", zap.Error(err))
	}
	if err := helpdesk.Bootstrap(ctx); err != nil {
		logger.Fatal("failed to bootstrap owner", zap.Error(err))
	}

	if cfg.Scheduler.Enabled {
		scheduler, err := helpdesk.Scheduler()
		if err != nil {
			logger.Fatal("failed to build scheduler", zap.Error(err))
		}
		scheduler.Start()
		defer func() {
			stopCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stop()
			if err := scheduler.Stop(stopCtx); err != nil {
				logger.Warn("scheduler stop", zap.Error(err))
			}
		}()
	}

	server := helpdesk.HTTP()
	go func() {
		if err := server.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := server.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	drainCtx, drain := context.WithTimeout(context.Background(), shutdownTimeout)
	defer drain()
	if err := helpdesk.Drain(drainCtx); err != nil {
		logger.Warn("side effects still running at exit", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}

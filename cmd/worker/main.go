package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/meridian-cargo/meridian-cargo/internal/app"
	"github.com/meridian-cargo/meridian-cargo/internal/observability"
	"github.com/meridian-cargo/meridian-cargo/internal/platform/cache"
	"github.com/meridian-cargo/meridian-cargo/internal/platform/db"
	"github.com/meridian-cargo/meridian-cargo/internal/rates"
	"github.com/meridian-cargo/meridian-cargo/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	ratesService := rates.NewService(
		rates.NewRepository(pool),
		rates.NewQuoteCache(redisClient, cfg.RateCacheTTL),
		cfg.RateStaleAfter,
	)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRatesPTAXRefresh, Handler: jobs.NewPTAXRefreshHandler(logger, ratesService, metrics)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.PTAXRefreshCron, Task: jobs.NewPTAXRefreshTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

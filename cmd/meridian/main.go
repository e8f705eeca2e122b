package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-cargo/meridian-cargo/internal/app"
	"github.com/meridian-cargo/meridian-cargo/internal/ledger"
	"github.com/meridian-cargo/meridian-cargo/internal/observability"
	"github.com/meridian-cargo/meridian-cargo/internal/partners"
	"github.com/meridian-cargo/meridian-cargo/internal/platform/cache"
	"github.com/meridian-cargo/meridian-cargo/internal/platform/db"
	"github.com/meridian-cargo/meridian-cargo/internal/rates"
	"github.com/meridian-cargo/meridian-cargo/internal/simulation"
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

	// The quote cache degrades to direct table reads when redis is down.
	var quoteCache *rates.QuoteCache
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, serving quotes without cache", slog.Any("error", err))
	} else {
		quoteCache = rates.NewQuoteCache(redisClient, cfg.RateCacheTTL)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()

	ratesService := rates.NewService(rates.NewRepository(pool), quoteCache, cfg.RateStaleAfter)
	partnersService := partners.NewService(partners.NewRepository(pool))
	ledgerService := ledger.NewService(ledger.NewRepository(pool), partnersService, ratesService)
	simulationService := simulation.NewService(simulation.NewStore(pool), ratesService, partnersService, ledgerService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		PartnersHandler:   partners.NewHandler(logger, partnersService),
		RatesHandler:      rates.NewHandler(logger, ratesService),
		SimulationHandler: simulation.NewHandler(logger, simulationService, metrics),
		LedgerHandler:     ledger.NewHandler(logger, ledgerService, metrics),
		JobsHandler:       jobs.NewHandler(inspector, jobsClient, logger),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

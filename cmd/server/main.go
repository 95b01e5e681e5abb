// Package main is the entrypoint for the FinSight API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/finsighthq/finsight/internal/ai"
	"github.com/finsighthq/finsight/internal/analysis"
	"github.com/finsighthq/finsight/internal/api"
	"github.com/finsighthq/finsight/internal/api/handler"
	mw "github.com/finsighthq/finsight/internal/api/middleware"
	"github.com/finsighthq/finsight/internal/cache"
	"github.com/finsighthq/finsight/internal/config"
	"github.com/finsighthq/finsight/internal/document"
	"github.com/finsighthq/finsight/internal/pipeline"
	"github.com/finsighthq/finsight/internal/queue"
	"github.com/finsighthq/finsight/internal/store"
	"github.com/finsighthq/finsight/internal/worker"
)

const version = "1.0.0"

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "ai_provider", cfg.AI.Provider, "workers", cfg.Worker.Count)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache and dispatch queue
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	jobQueue, err := queue.NewRedisQueue(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create job queue: %w", err)
	}
	defer jobQueue.Close()

	// 5. Create AI provider
	aiProvider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", aiProvider.Name(), "model", aiProvider.Model())

	// 6. Create store and services
	pgStore := store.NewPostgresStore(pool)

	validator := document.NewValidator(cfg.Upload.MaxBytes, document.NewPDFExtractor())
	svc := analysis.NewService(pgStore, redisCache, jobQueue, validator, logger)

	runner := pipeline.NewRunner(pgStore, pipeline.DefaultStages(aiProvider),
		aiProvider.Name(), aiProvider.Model(), cfg.AI.InferenceTimeout)

	// 7. Start the worker pool
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	dispatcher := worker.NewDispatcher(pgStore, redisCache, jobQueue, runner, logger,
		cfg.Worker.Count, cfg.Worker.MaxRetries, cfg.Upload.RetainDocuments)
	dispatcher.Start(workerCtx)

	// 8. Build router with dependencies
	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(redisCache, 60),

		HealthHandler:  handler.NewHealthHandler(pgStore, redisCache, version),
		AnalyzeHandler: handler.NewAnalyzeHandler(svc, cfg.Upload.MaxBytes),
		PollHandler:    handler.NewPollHandler(svc),
	}
	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Drain HTTP first so no new jobs are accepted, then stop the workers.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	stopWorkers()
	dispatcher.Wait()

	slog.Info("server stopped gracefully")
	return nil
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/sanderdlm/betascrubber/internal/bootstrap"
	"github.com/sanderdlm/betascrubber/internal/config"
	handler "github.com/sanderdlm/betascrubber/internal/delivery/http"
	"github.com/sanderdlm/betascrubber/internal/janitor"
	"github.com/sanderdlm/betascrubber/internal/pool"
	"github.com/sanderdlm/betascrubber/internal/publisher"
	"github.com/sanderdlm/betascrubber/internal/queue"
	"github.com/sanderdlm/betascrubber/internal/usecase"
)

func main() {
	_ = godotenv.Load()

	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Starting betascrubber API server")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Set Gin mode
	gin.SetMode(cfg.Server.GinMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backends, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open backends", zap.Error(err))
	}
	defer backends.Close()

	// Without a broker, jobs run on an in-process pool fed by a channel.
	var (
		pub        publisher.Publisher
		workerPool *pool.WorkerPool
	)
	if cfg.RabbitMQ.URL != "" {
		pub, err = publisher.NewRabbitMQPublisher(cfg.RabbitMQ.URL, logger)
		if err != nil {
			logger.Fatal("Failed to initialize RabbitMQ publisher", zap.Error(err))
		}
		logger.Info("Connected to RabbitMQ")
	} else {
		local := queue.NewLocal(queue.DefaultCapacity, logger)
		processUC := usecase.NewProcessJobUsecase(
			backends.Store, backends.Pipeline, backends.Tracker, backends.Locks, backends.Index, logger,
		)
		workerPool = pool.NewWorkerPool(cfg.Worker.PoolSize, local.Tasks(), processUC, logger)
		workerPool.Start(ctx)
		pub = local
		logger.Info("Using in-process worker pool", zap.Int("pool_size", cfg.Worker.PoolSize))
	}
	defer pub.Close()

	sweeper, err := janitor.New(cfg.Storage.TmpDir, cfg.Janitor.Schedule, cfg.Janitor.MaxAge, logger)
	if err != nil {
		logger.Fatal("Failed to initialize janitor", zap.Error(err))
	}
	sweeper.Start()

	// Initialize use cases
	submitUC := usecase.NewSubmitJobUsecase(
		backends.Store, backends.Pipeline, backends.Locks, backends.Tracker, backends.Index, pub, logger,
	)
	pollUC := usecase.NewPollStatusUsecase(backends.Tracker, cfg.Poll.Interval, cfg.Poll.MaxAttempts, logger)

	checks := map[string]handler.HealthCheck{}
	if backends.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return backends.Redis.Ping(ctx).Err() }
	}
	if backends.DB != nil {
		checks["postgres"] = func(ctx context.Context) error { return backends.DB.Ping(ctx) }
	}

	// Initialize router
	router := handler.NewRouter(handler.RouterDeps{
		SubmitUC:        submitUC,
		GetJobUC:        usecase.NewGetJobUsecase(backends.Store, backends.Index, logger),
		ListFramesUC:    usecase.NewListFramesUsecase(backends.Store),
		SelectUC:        usecase.NewSelectFramesUsecase(backends.Store, logger),
		RecentUC:        usecase.NewRecentJobsUsecase(backends.Store),
		PollUC:          pollUC,
		HealthChecks:    checks,
		Logger:          logger,
		MediaRoot:       backends.MediaRoot,
		MediaPath:       cfg.Storage.PublicMediaPath,
		RateLimitPerMin: cfg.Server.RateLimit,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
	})

	// Create HTTP server. An SSE status stream holds one response open for
	// the whole poll budget.
	streamBudget := cfg.Poll.Interval * time.Duration(cfg.Poll.MaxAttempts)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      streamBudget + cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("API server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	sweeper.Stop()
	cancel()
	if workerPool != nil {
		// In-flight jobs are interrupted and keep their processing status.
		workerPool.Stop()
	}

	logger.Info("API server stopped")
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/therealutkarshpriyadarshi/render/internal/cache"
	"github.com/therealutkarshpriyadarshi/render/internal/config"
	"github.com/therealutkarshpriyadarshi/render/internal/database"
	"github.com/therealutkarshpriyadarshi/render/internal/logging"
	"github.com/therealutkarshpriyadarshi/render/internal/metrics"
	"github.com/therealutkarshpriyadarshi/render/internal/proxy"
	"github.com/therealutkarshpriyadarshi/render/internal/queue"
	"github.com/therealutkarshpriyadarshi/render/internal/render"
	"github.com/therealutkarshpriyadarshi/render/internal/scheduler"
	"github.com/therealutkarshpriyadarshi/render/internal/storage"
	"github.com/therealutkarshpriyadarshi/render/internal/tracing"
	"github.com/therealutkarshpriyadarshi/render/internal/webhook"
)

const pollPrefetch = 10

func main() {
	_ = godotenv.Load()

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(logging.Config(cfg.Logging))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger = logger.WithField("service", "worker")

	closer, err := tracing.Init(cfg.Tracing)
	if err != nil {
		logger.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer closer.Close()

	// Initialize database
	db, err := database.New(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	repo := database.NewRepository(db, logger.WithField("component", "repository"))

	// Initialize cache
	c, err := cache.NewCache(cfg.Redis)
	if err != nil {
		logger.Fatalf("Failed to connect to cache: %v", err)
	}
	defer c.Close()

	// Initialize queue
	q, err := queue.New(cfg.Queue)
	if err != nil {
		logger.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()

	hooks := webhook.NewService(cfg.Webhook, logger.WithField("component", "webhook"))

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutting down worker gracefully...")
		cancel()
	}()

	metricsServer := metrics.NewServer(cfg.Metrics.Port, logger)
	go func() {
		if err := metricsServer.Start(); err != nil {
			logger.ErrorWithErr("metrics server stopped", err)
		}
	}()

	var refresher scheduler.ProxyRefresher
	if client, err := proxy.NewClient(cfg.Transcode, logger.WithField("component", "transcode")); err == nil {
		refresher = proxy.NewService(client, repo, c, logger.WithField("component", "proxy"))
	} else {
		logger.WithError(err).Warn("proxy refresh disabled")
	}

	if farm, err := render.NewHTTPFarm(cfg.Farm, logger.WithField("component", "farm")); err == nil {
		opts := []render.TrackerOption{
			render.WithTerminalCache(c),
			render.WithNotifier(hooks),
		}
		if stor, err := storage.New(cfg.Storage); err == nil {
			opts = append(opts, render.WithOutputLocator(stor))
		}
		tracker := render.NewTracker(farm, repo, logger.WithField("component", "tracker"), opts...)

		handler := newPollHandler(tracker, q, cfg.Worker.PollInterval, cfg.Worker.RenderTimeout, logger)
		if err := q.ConsumePolls(ctx, pollPrefetch, handler.Handle); err != nil {
			logger.Fatalf("Failed to consume polls: %v", err)
		}
		logger.Info("Worker started, polling renders...")
	} else {
		logger.WithError(err).Warn("render polling disabled")
	}

	sweeper := scheduler.NewSweeper(repo, q, refresher, c, cfg.Worker.SweepInterval, logger)
	if err := sweeper.Start(ctx); err != nil {
		logger.ErrorWithErr("Failed to start sweeper", err)
	}

	go reportQueueDepth(ctx, q, logger)

	// Wait for shutdown
	<-ctx.Done()

	sweeper.Stop()
	hooks.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithErr("Failed to stop metrics server", err)
	}

	logger.Info("Worker stopped")
}

func reportQueueDepth(ctx context.Context, q *queue.Queue, logger *logging.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depth, err := q.GetQueueDepth()
			if err != nil {
				logger.WithError(err).Debug("failed to inspect poll queue")
				continue
			}
			metrics.UpdatePollQueueDepth(depth)

			if dlq, err := q.GetDLQDepth(); err == nil && dlq > 0 {
				logger.Warnf("%d render polls parked in the dead letter queue", dlq)
			}
		}
	}
}

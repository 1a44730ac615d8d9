package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/therealutkarshpriyadarshi/render/internal/cache"
	"github.com/therealutkarshpriyadarshi/render/internal/config"
	"github.com/therealutkarshpriyadarshi/render/internal/database"
	"github.com/therealutkarshpriyadarshi/render/internal/logging"
	"github.com/therealutkarshpriyadarshi/render/internal/middleware"
	"github.com/therealutkarshpriyadarshi/render/internal/proxy"
	"github.com/therealutkarshpriyadarshi/render/internal/queue"
	"github.com/therealutkarshpriyadarshi/render/internal/render"
	"github.com/therealutkarshpriyadarshi/render/internal/storage"
	"github.com/therealutkarshpriyadarshi/render/internal/tracing"
	"github.com/therealutkarshpriyadarshi/render/internal/webhook"
)

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
	logger = logger.WithField("service", "api")

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

	if err := db.Migrate(context.Background()); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

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
	defer hooks.Wait()

	api := &API{
		timelines:          repo,
		polls:              q,
		notifier:           hooks,
		health:             healthChecks{db, c},
		logger:             logger,
		accountConcurrency: cfg.Farm.AccountConcurrency,
		hardCap:            cfg.Farm.HardCap,
	}

	var proxies *proxy.Service
	if client, err := proxy.NewClient(cfg.Transcode, logger.WithField("component", "transcode")); err == nil {
		proxies = proxy.NewService(client, repo, c, logger.WithField("component", "proxy"))
		api.proxies = proxies
	} else {
		logger.WithError(err).Warn("proxy acceleration disabled")
	}

	trackerOpts := []render.TrackerOption{
		render.WithTerminalCache(c),
		render.WithNotifier(hooks),
	}
	if stor, err := storage.New(cfg.Storage); err == nil {
		trackerOpts = append(trackerOpts, render.WithOutputLocator(stor))
		if cfg.Storage.PresignOutputs {
			api.outputs = stor
		}
	} else {
		logger.WithError(err).Warn("render output lookup disabled")
	}

	if farm, err := render.NewHTTPFarm(cfg.Farm, logger.WithField("component", "farm")); err == nil {
		var lookup render.ProxyLookup
		if proxies != nil {
			lookup = proxies
		}
		api.launcher = render.NewLauncher(cfg.Farm, farm, repo, lookup, logger.WithField("component", "launcher"))
		api.tracker = render.NewTracker(farm, repo, logger.WithField("component", "tracker"), trackerOpts...)
	} else {
		logger.WithError(err).Warn("rendering disabled")
	}

	if cfg.Auth.JWTSecret == "" && cfg.Auth.SharedSecret == "" {
		logger.Warn("no auth secrets configured, API routes will answer 503")
	}

	// Setup router
	router := setupRouter(api, cfg, c)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Starting API server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server stopped")
}

func setupRouter(api *API, cfg *config.Config, launches middleware.WindowCounter) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(api.logger), middleware.Metrics())

	router.GET("/health", api.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	go limiter.Cleanup(context.Background())

	authed := router.Group("/", middleware.Auth(cfg.Auth), middleware.RateLimit(limiter))
	registerRoutes(authed, api, middleware.LaunchLimit(launches, cfg.RateLimit.LaunchesPerMinute, api.logger))

	return router
}

func registerRoutes(r gin.IRoutes, api *API, launchLimit gin.HandlerFunc) {
	r.POST("/render", launchLimit, api.launchRender)
	r.GET("/render", api.getRenderProgress)

	r.POST("/proxy", api.ensureProxies)
	r.GET("/proxy", api.getProxyStatus)
	r.DELETE("/proxy", api.deleteProxies)

	r.PUT("/timelines/:id", api.saveTimeline)
	r.GET("/timelines/:id/preview", api.previewTimeline)
}

type healthChecks struct {
	db    *database.DB
	cache *cache.Cache
}

func (h healthChecks) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := h.db.Health(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := h.cache.Ping(ctx); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return nil
}

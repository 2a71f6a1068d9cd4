package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/aeo-tracker/backend/internal/api/handlers"
	"github.com/aeo-tracker/backend/internal/events"
	"github.com/aeo-tracker/backend/internal/llm"
	"github.com/aeo-tracker/backend/internal/metrics"
	"github.com/aeo-tracker/backend/internal/middleware/ratelimit"
	"github.com/aeo-tracker/backend/internal/middleware/security"
	"github.com/aeo-tracker/backend/internal/middleware/validation"
	"github.com/aeo-tracker/backend/internal/monitoring"
	"github.com/aeo-tracker/backend/internal/storage"
	"github.com/aeo-tracker/backend/internal/temporal"
	"github.com/aeo-tracker/backend/internal/tracking"
	"github.com/aeo-tracker/backend/pkg/config"
	appLogger "github.com/aeo-tracker/backend/pkg/logger"
)

const apiPrefix = "/api/v1"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting AEO Tracker API Server", zap.String("storage", cfg.Storage.Driver))

	backend, err := storage.Open(cfg)
	if err != nil {
		appLogger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer backend.Close()

	metrics.Init()

	hub := events.NewHub(64)
	store := temporal.NewStore(backend,
		temporal.WithRoster(cfg.Store.Roster),
		temporal.WithPositionCap(cfg.Store.PositionCap),
		temporal.WithVariabilityCap(cfg.Store.VariabilityCap),
		temporal.WithNotifier(hub),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := handlers.Deps{Store: store, Hub: hub}
	if cfg.LLM.APIKey != "" {
		llmClient := llm.NewClient(
			cfg.LLM.APIKey,
			cfg.LLM.BaseURL,
			cfg.LLM.Temperature,
			cfg.LLM.MaxTokens,
			time.Duration(cfg.LLM.TimeoutSec)*time.Second,
		)
		tracker := tracking.NewTracker(llmClient, store, store.Roster(), cfg.LLM.Providers)
		deps.Tracker = tracker

		if cfg.Monitoring.Enabled {
			scheduler := monitoring.NewScheduler(store, tracker,
				time.Duration(cfg.Monitoring.TickSeconds)*time.Second,
				monitoring.WithNotifier(hub),
			)
			go scheduler.Run(ctx)
		}
	} else {
		appLogger.Warn("No LLM API key configured, tracking and monitoring are disabled")
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Logger:               appLogger.Log,
		Skip: func(c *fiber.Ctx) bool {
			switch strings.TrimPrefix(c.Path(), apiPrefix) {
			case "/health", "/ready", "/metrics", "/ws/feed":
				return true
			}
			return false
		},
	})
	defer limiter.Stop()

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment:   cfg.Server.Development,
		NoStorePrefixes: []string{apiPrefix},
	}))
	app.Use(limiter.Middleware())
	app.Use(validation.Middleware(validation.Config{
		SkipPaths: []string{apiPrefix + "/data/import"},
		Logger:    appLogger.Log,
	}))

	handlers.RegisterRoutes(app.Group(apiPrefix), deps)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Warn("Shutdown did not complete cleanly", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

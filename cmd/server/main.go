package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/arturoeanton/milestoner/internal/adapter/platform"
	"github.com/arturoeanton/milestoner/internal/adapter/settings"
	"github.com/arturoeanton/milestoner/internal/adapter/store"
	"github.com/arturoeanton/milestoner/internal/adapter/vcs"
	"github.com/arturoeanton/milestoner/internal/handler"
	"github.com/arturoeanton/milestoner/internal/mcp"
	"github.com/arturoeanton/milestoner/internal/metrics"
	"github.com/arturoeanton/milestoner/internal/middleware"
	"github.com/arturoeanton/milestoner/internal/port"
	"github.com/arturoeanton/milestoner/internal/service"
	"github.com/arturoeanton/milestoner/pkg/config"
)

func main() {
	// ── Load .env file ───────────────────────────────────────────────────
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	// ── Configuration ────────────────────────────────────────────────────
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, cfg)
	stop()
	if err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

// run serves until ctx is done. Every resource it opens is released before
// it returns, including on startup errors.
func run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}

	slog.Info("🚀 Starting Milestoner",
		"port", cfg.Port,
		"store", cfg.StoreBackend,
		"timezone", loc.String(),
		"mcp_enabled", cfg.MCPEnabled,
		"dispatch_interval", cfg.DispatchInterval,
	)

	// ── Storage ──────────────────────────────────────────────────────────
	backend, err := store.ParseBackend(cfg.StoreBackend)
	if err != nil {
		return err
	}
	if backend == store.BackendPostgres {
		slog.Info("using postgres", "dsn", cfg.DSN())
	}
	posts, err := store.Open(store.Options{
		Backend:     backend,
		BoltPath:    cfg.StorePath,
		DatabaseURL: cfg.DatabaseURL,
		Redis: store.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Database: cfg.RedisDB,
		},
	})
	if err != nil {
		return fmt.Errorf("open %s store: %w", backend, err)
	}
	defer func() {
		if err := posts.Close(); err != nil {
			slog.Error("failed to close schedule store", "error", err)
		}
	}()

	settingsStore, err := settings.Open(cfg.SettingsPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	// ── Metrics ──────────────────────────────────────────────────────────
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// ── Adapters ─────────────────────────────────────────────────────────
	platforms := port.PlatformRegistry{
		platform.BlueskyName: platform.NewBlueskyClient(platform.BlueskyConfig{
			PDSURL: cfg.BlueskyPDSURL,
			WebURL: cfg.BlueskyWebURL,
		}, settingsStore),
	}
	gitVCS := vcs.NewGitProvider()

	// ── Services ─────────────────────────────────────────────────────────
	activityService := service.NewActivityService(gitVCS, cfg.RepoPath)
	draftService := service.NewDraftService(activityService, platforms, settingsStore)
	schedulingService, err := service.NewSchedulingService(posts, platforms, settingsStore, service.SchedulingOptions{
		PublishTimeout: cfg.PublishTimeout,
		ClaimLease:     cfg.ClaimLease,
		Location:       loc,
		Metrics:        m,
	})
	if err != nil {
		return err
	}
	settingsService := service.NewSettingsService(settingsStore, platforms)

	// ── Fiber App ────────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
	}))
	app.Use(middleware.AuditMiddleware(m))

	// ── Public Routes ────────────────────────────────────────────────────
	app.Get("/api/v1/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"app":     cfg.AppName,
			"version": mcp.Version,
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// ── Protected Routes ─────────────────────────────────────────────────
	jwtCfg := middleware.JWTConfig{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		ExpiresIn: time.Duration(cfg.JWTExpiration) * time.Hour,
	}
	if !jwtCfg.Enabled() {
		slog.Warn("JWT_SECRET is not set; REST API and MCP over HTTP are unauthenticated")
	}
	api := app.Group("/api/v1", middleware.JWTMiddleware(jwtCfg))

	handler.NewActivityHandler(activityService, draftService).Register(api)
	handler.NewPostHandler(schedulingService).Register(api)
	handler.NewOptimalHandler(schedulingService.Now).Register(api)
	handler.NewSettingsHandler(settingsService).Register(api)

	g, gctx := errgroup.WithContext(ctx)

	// ── MCP Server (separate port, same bearer check) ────────────────────
	if cfg.MCPEnabled {
		mcpServer := mcp.NewServer(mcp.Services{
			Activity:   activityService,
			Drafts:     draftService,
			Scheduling: schedulingService,
			Settings:   settingsService,
		}, cfg.MCPPort, jwtCfg)
		g.Go(func() error { return mcpServer.Start(gctx) })
	}

	// ── Dispatcher ───────────────────────────────────────────────────────
	if cfg.DispatchInterval > 0 {
		g.Go(func() error {
			runDispatcher(gctx, schedulingService, cfg.DispatchInterval)
			return nil
		})
	}

	// ── Start ────────────────────────────────────────────────────────────
	g.Go(func() error {
		slog.Info("🌐 Fiber listening", "port", cfg.Port)
		return app.Listen(":"+cfg.Port, fiber.ListenConfig{DisableStartupMessage: true})
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runDispatcher publishes due posts every interval until ctx is done.
func runDispatcher(ctx context.Context, svc *service.SchedulingService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("dispatcher started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := svc.DispatchDue(ctx)
			if err != nil {
				slog.Error("dispatch failed", "error", err)
			}
			if report != nil && report.Claimed > 0 {
				slog.Info("dispatch finished",
					"claimed", report.Claimed,
					"posted", len(report.Posted),
					"failed", len(report.Failed),
					"skipped", report.Skipped,
				)
			}
		}
	}
}

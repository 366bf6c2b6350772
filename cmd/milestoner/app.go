package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/arturoeanton/milestoner/internal/adapter/platform"
	"github.com/arturoeanton/milestoner/internal/adapter/settings"
	"github.com/arturoeanton/milestoner/internal/adapter/store"
	"github.com/arturoeanton/milestoner/internal/adapter/vcs"
	"github.com/arturoeanton/milestoner/internal/mcp"
	"github.com/arturoeanton/milestoner/internal/middleware"
	"github.com/arturoeanton/milestoner/internal/port"
	"github.com/arturoeanton/milestoner/internal/service"
	"github.com/arturoeanton/milestoner/pkg/config"
)

// app is the wiring shared by every subcommand.
type app struct {
	cfg      *config.Config
	posts    port.ScheduleStore
	services mcp.Services
}

func newApp(cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	backend, err := store.ParseBackend(cfg.StoreBackend)
	if err != nil {
		return nil, err
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
		return nil, fmt.Errorf("open %s store: %w", backend, err)
	}
	conf, err := settings.Open(cfg.SettingsPath)
	if err != nil {
		posts.Close()
		return nil, err
	}

	platforms := port.PlatformRegistry{
		platform.BlueskyName: platform.NewBlueskyClient(platform.BlueskyConfig{
			PDSURL: cfg.BlueskyPDSURL,
			WebURL: cfg.BlueskyWebURL,
		}, conf),
	}
	activity := service.NewActivityService(vcs.NewGitProvider(), cfg.RepoPath)
	scheduling, err := service.NewSchedulingService(posts, platforms, conf, service.SchedulingOptions{
		PublishTimeout: cfg.PublishTimeout,
		ClaimLease:     cfg.ClaimLease,
		Location:       loc,
	})
	if err != nil {
		posts.Close()
		return nil, err
	}

	slog.Debug("store opened", "backend", backend, "settings", conf.Path())
	return &app{
		cfg:   cfg,
		posts: posts,
		services: mcp.Services{
			Activity:   activity,
			Drafts:     service.NewDraftService(activity, platforms, conf),
			Scheduling: scheduling,
			Settings:   service.NewSettingsService(conf, platforms),
		},
	}, nil
}

// mcpServer builds the stdio server; the bearer check only guards HTTP.
func mcpServer(a *app) *mcp.Server {
	return mcp.NewServer(a.services, a.cfg.MCPPort, middleware.JWTConfig{})
}

func (a *app) Close() error { return a.posts.Close() }

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

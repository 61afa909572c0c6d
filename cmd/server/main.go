package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JonMunkholm/memberimport/internal/config"
	"github.com/JonMunkholm/memberimport/internal/core"
	"github.com/JonMunkholm/memberimport/internal/logging"
	"github.com/JonMunkholm/memberimport/internal/remote"
	"github.com/JonMunkholm/memberimport/internal/store"
	"github.com/JonMunkholm/memberimport/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"history_enabled", cfg.Database.Enabled(),
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()

	// History and presets need a database; without one they are disabled.
	var st core.Store
	if cfg.Database.Enabled() {
		pool, err := store.Open(ctx, store.PoolConfig{
			URL:             cfg.Database.URL,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		// Log which database we connected to
		if u, err := url.Parse(cfg.Database.URL); err == nil {
			slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
		} else {
			slog.Info("connected to database")
		}

		if cfg.Database.AutoMigrate {
			if err := store.Migrate(ctx, pool); err != nil {
				slog.Error("failed to apply migrations", "error", err)
				os.Exit(1)
			}
		}
		st = store.New(pool)
	} else {
		slog.Warn("DATABASE_URL not set: import history and presets are disabled")
	}

	client, err := remote.NewClient(remote.Config{
		BaseURL:    cfg.Remote.BaseURL,
		APIKey:     cfg.Remote.APIKey,
		Timeout:    cfg.Remote.Timeout,
		CreatePath: cfg.Remote.CreatePath,
		HealthPath: cfg.Remote.HealthPath,
	})
	if err != nil {
		slog.Error("failed to create member service client", "error", err)
		os.Exit(1)
	}

	service := core.NewService(client, st, core.ServiceConfig{
		SubmitDelay:   cfg.Import.SubmitDelay,
		MaxConcurrent: cfg.Import.MaxConcurrent,
		MaxWait:       cfg.Import.MaxWaitTime,
		MaxFileSize:   cfg.Import.MaxFileSize,
		PreviewRows:   cfg.Import.PreviewRows,
		ResultTTL:     cfg.Import.ResultTTL,
	})

	retention, err := core.NewRetentionScheduler(service, core.RetentionConfig{
		RetentionDays: cfg.Retention.Days,
		Schedule:      cfg.Retention.Schedule,
		RunOnStart:    cfg.Retention.RunOnStart,
	})
	if err != nil {
		slog.Error("failed to create retention scheduler", "error", err)
		os.Exit(1)
	}

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(ctx)
	retention.Start(jobCtx)

	server := web.NewServer(service, cfg)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		// Stop background jobs
		cancelJobs()
		retention.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for running imports to complete (with timeout)
		status := service.LimiterStatus()
		if status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := service.WaitForImports(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	// Start server (uses addr from config internally)
	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}

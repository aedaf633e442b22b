package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/dynforms/internal/config"
	"github.com/JonMunkholm/dynforms/internal/core"
	"github.com/JonMunkholm/dynforms/internal/executor"
	"github.com/JonMunkholm/dynforms/internal/logging"
	"github.com/JonMunkholm/dynforms/internal/metadata"
	"github.com/JonMunkholm/dynforms/internal/web"
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
		"driver", cfg.Executor.Driver,
		"metadata_path", cfg.Metadata.Path,
		"save_max_concurrent", cfg.Save.MaxConcurrent,
	)

	ctx := context.Background()

	var files *metadata.FileLoader
	if cfg.Metadata.Path != "" {
		files, err = metadata.NewFileLoader(cfg.Metadata.Path)
		if err != nil {
			slog.Error("failed to load form metadata", "path", cfg.Metadata.Path, "error", err)
			os.Exit(1)
		}
		slog.Info("form metadata loaded", "forms", len(files.FormIDs()))
	}

	exec, closeExec, err := openExecutor(ctx, cfg, files)
	if err != nil {
		slog.Error("failed to open executor", "driver", cfg.Executor.Driver, "error", err)
		os.Exit(1)
	}
	defer closeExec()

	var meta core.MetadataSource = metadata.NewQueryLoader(exec, cfg.Metadata.Domain)
	if files != nil {
		meta = files
	}

	service := core.NewService(exec, meta, core.Options{
		SchemaVersion:      cfg.Save.SchemaVersion,
		SaveTimeout:        cfg.Save.Timeout,
		MaxSessions:        cfg.Save.MaxSessions,
		EventBuffer:        cfg.Save.EventBuffer,
		MaxConcurrentSaves: cfg.Save.MaxConcurrent,
		MaxSaveWait:        cfg.Save.MaxWait,
	})

	server := web.NewServer(service, cfg.Server, cfg.Security)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Let running saves finish before the executor closes
		status := service.SaveStatus()
		if status.Active > 0 {
			slog.Info("waiting for saves to complete", "active", status.Active)
		}
		if err := service.Shutdown(shutdownCtx); err != nil {
			slog.Warn("saves did not complete in time", "error", err)
		}
	}()

	// Start server (uses addr from config internally)
	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}

// openExecutor connects the configured statement executor. The returned
// func releases it.
func openExecutor(ctx context.Context, c *config.Config, files *metadata.FileLoader) (core.Executor, func(), error) {
	cfg := c.Executor
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := executor.NewPool(ctx, executor.PoolConfig{
			URL:             cfg.URL,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
			MaxConnIdleTime: cfg.MaxConnIdleTime,
		})
		if err != nil {
			return nil, nil, err
		}

		// Log which database we connected to
		if u, err := url.Parse(cfg.URL); err == nil {
			slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
		} else {
			slog.Info("connected to database")
		}
		return executor.NewPostgres(pool, executor.WithEditableFunc(cfg.EditableFunc)), pool.Close, nil

	case config.DriverSQLite:
		domains := append([]string{}, cfg.SQLiteDomains...)
		if files != nil {
			domains = append(domains, files.Domains()...)
		} else {
			domains = append(domains, c.Metadata.Domain)
		}
		db, err := executor.OpenSQLite(ctx, cfg.SQLitePath, domains)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("opened sqlite executor", "path", cfg.SQLitePath, "domains", db.Domains())
		return db, func() { _ = db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown executor driver %q", cfg.Driver)
	}
}

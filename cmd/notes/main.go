package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/tjfontaine/hipnotes/internal/config"
	"github.com/tjfontaine/hipnotes/internal/notes"
	"github.com/tjfontaine/hipnotes/internal/pipeline"
	"github.com/tjfontaine/hipnotes/internal/server"
	"github.com/tjfontaine/hipnotes/internal/storage"
	"github.com/tjfontaine/hipnotes/internal/storage/memory"
	"github.com/tjfontaine/hipnotes/internal/storage/sqldb"
	"github.com/tjfontaine/hipnotes/internal/telemetry"
	"github.com/tjfontaine/hipnotes/internal/validation"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "notes: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists
	_ = godotenv.Load()

	configPath := pflag.StringP("config", "c", "config.yaml", "path to the YAML config file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.InitTracer(telemetry.Options{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	store, err := openStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close store", slog.String("error", err.Error()))
		}
	}()

	metrics := server.NewMetrics()
	handlers, err := notes.NewHandlers(newAdapter(cfg.Validation.Adapter), store,
		pipeline.WithLogger(logger),
		pipeline.WithObserver(metrics.ObservePhase),
	)
	if err != nil {
		return fmt.Errorf("build handlers: %w", err)
	}

	srv := server.New(server.Options{
		Port:           cfg.Server.Port,
		RequestTimeout: cfg.Server.RequestTimeout,
		UserHeader:     cfg.Auth.UserHeader,
		DefaultUserID:  cfg.Auth.DefaultUserID,
		RateLimiter:    server.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		Metrics:        metrics,
	}, logger)
	srv.MountNotes(handlers)

	logger.Info("notes service configured",
		slog.String("validation_adapter", handlers.Adapter()),
		slog.String("storage", cfg.Storage.Type),
		slog.Any("endpoints", srv.Routes()),
	)
	for _, h := range handlers.All() {
		logger.Debug("handler phases", slog.String("handler", h.Name()), slog.Any("phases", h.Phases()))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutdown signal received, stopping server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("Server shutdown complete")
	return nil
}

func openStore(cfg config.StorageConfig) (storage.NoteStore, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		if !strings.HasPrefix(cfg.DSN, "file:") && cfg.DSN != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
		return sqldb.NewSQLite(cfg.DSN)
	case "postgres":
		return sqldb.New(sqldb.Config{Driver: "postgres", DSN: cfg.DSN})
	}
	return nil, errors.New("unknown storage type " + cfg.Type)
}

func newAdapter(name string) validation.Adapter {
	if name == "entity" {
		return validation.NewEntityAdapter()
	}
	return validation.NewSchemaAdapter()
}

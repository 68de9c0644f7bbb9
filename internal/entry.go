// Package internal provides the main application initialization and runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/seedround/noteledger/internal/api"
	"github.com/seedround/noteledger/internal/configwatch"
	"github.com/seedround/noteledger/internal/mcpserver"
	"github.com/seedround/noteledger/internal/models"
	"github.com/seedround/noteledger/internal/noteservice"
	"github.com/seedround/noteledger/internal/scheduler"
	"github.com/seedround/noteledger/internal/sse"
	"github.com/seedround/noteledger/internal/store"
	pkgconfig "github.com/seedround/noteledger/pkg/config"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger. The level lives in a LevelVar so the
	// config watcher can adjust it at runtime.
	logLevel := new(slog.LevelVar)
	logLevel.Set(cfg.App.Level())
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel),
		slog.String("accrual_interval", cfg.Accrual.Interval))

	// Initialize the note store.
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	// SSE broker.
	broker := sse.NewBroker()
	defer broker.Close()

	// Build ledger service with lifecycle events wired to the broker.
	svc := noteservice.NewService(db, noteservice.WithNotifier(func(event string, note *models.ConvertibleNote) {
		broker.PublishNoteEvent(event, note.ID)
	}))

	// Background accrual scheduler.
	sched := scheduler.New(svc, broker, logger,
		cfg.Accrual.TickInterval(), cfg.Accrual.MaturityWindowDays)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes (including the SSE endpoint) under /api.
	r.Mount("/api", api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker))

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start the accrual scheduler.
	g.Go(func() error {
		return sched.Run(gCtx)
	})

	// Watch the config file for log level changes.
	if app.configPath != "" {
		g.Go(func() error {
			return configwatch.Watch(gCtx, app.configPath, logger, func(path string) error {
				fresh := NewDefaultConfig()
				if err := pkgconfig.Load(path, fresh); err != nil {
					return err
				}
				logLevel.Set(fresh.App.Level())
				return nil
			})
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the read-only ledger tools over MCP stdio. Logs go to stderr
// so stdout stays clean for the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: app.config.App.Level(),
	}))
	slog.SetDefault(logger)

	db, err := store.Open(app.config.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	svc := noteservice.NewService(db)

	logger.Info("MCP server starting on stdio", slog.String("sqlite_path", app.config.SQLite.Path))
	return mcpserver.New(svc).ServeStdio()
}

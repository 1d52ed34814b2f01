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
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/retronotes/internal/api"
	"github.com/starford/retronotes/internal/export"
	"github.com/starford/retronotes/internal/index"
	"github.com/starford/retronotes/internal/mcpserver"
	"github.com/starford/retronotes/internal/models"
	"github.com/starford/retronotes/internal/noteservice"
	"github.com/starford/retronotes/internal/sse"
	"github.com/starford/retronotes/internal/storage"
)

// runtime holds the components every command shares.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	store  *storage.Workbook
	db     *index.DB
}

func (rt *runtime) close() {
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			rt.logger.Warn("index close failed", slog.String("error", err.Error()))
		}
	}
}

// service builds a note service; events may be nil.
func (rt *runtime) service(events noteservice.EventPublisher) *noteservice.Service {
	return noteservice.NewService(rt.store, rt.db, events, rt.logger)
}

func setup(opts []Option, withIndex bool) (*runtime, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_path", cfg.Store.Path),
		slog.String("index_path", cfg.Index.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, err := storage.NewWorkbook(cfg.Store.Path, storage.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	rt := &runtime{cfg: cfg, logger: logger, store: store}
	if !withIndex {
		return rt, nil
	}

	if dir := filepath.Dir(cfg.Index.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
	}
	db, err := index.Open(cfg.Index.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	rt.db = db
	return rt, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	rt, err := setup(opts, true)
	if err != nil {
		return err
	}
	defer rt.close()

	cfg := rt.cfg
	logger := rt.logger

	if err := rt.store.EnsureInitialized(ctx); err != nil {
		return fmt.Errorf("init workbook: %w", err)
	}

	// SSE broker.
	broker := sse.NewBroker(sse.WithListThrottle(cfg.Index.ListThrottle))
	defer broker.Close()

	svc := rt.service(broker)

	// Run initial sync.
	if err := svc.Reindex(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := svc.List(r.Context()); err != nil {
			logger.Warn("readiness check failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Reindex and notify clients when the workbook is edited outside the app.
	g.Go(func() error {
		if err := index.Watch(gCtx, rt.db, rt.store, logger, broker.PublishReload); err != nil {
			logger.Warn("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

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
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		timeout := cfg.App.HTTP.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Unblock the watcher after a signal.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown requested")

// RunMCP serves the note tools over stdio until stdin closes.
func RunMCP(ctx context.Context, opts ...Option) error {
	rt, err := setup(opts, true)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.store.EnsureInitialized(ctx); err != nil {
		return fmt.Errorf("init workbook: %w", err)
	}
	svc := rt.service(nil)
	if err := svc.Reindex(ctx); err != nil {
		rt.logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	rt.logger.Info("MCP server starting on stdio")
	return mcpserver.New(svc).ServeStdio()
}

// InitStore creates the workbook with only the header row if it is missing.
func InitStore(ctx context.Context, opts ...Option) error {
	rt, err := setup(opts, false)
	if err != nil {
		return err
	}
	if err := rt.store.EnsureInitialized(ctx); err != nil {
		return fmt.Errorf("init workbook: %w", err)
	}
	rt.logger.Info("workbook ready", slog.String("path", rt.store.Path()))
	return nil
}

// Export encrypts note id with password and writes it to out. An empty out
// uses the suggested file name in the working directory. It returns the path
// written.
func Export(ctx context.Context, id models.NoteID, password, out string, opts ...Option) (string, error) {
	rt, err := setup(opts, true)
	if err != nil {
		return "", err
	}
	defer rt.close()

	file, err := rt.service(nil).Export(ctx, id, password)
	if err != nil {
		return "", err
	}
	if out == "" {
		out = file.Filename
	} else if filepath.Ext(out) == "" {
		out += export.Extension
	}
	if err := os.WriteFile(out, file.Payload, 0o600); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	rt.logger.Info("export written", slog.String("id", id.String()), slog.String("path", out))
	return out, nil
}

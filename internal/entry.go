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

	"github.com/starford/demanda/internal/api"
	"github.com/starford/demanda/internal/index"
	"github.com/starford/demanda/internal/metrics"
	"github.com/starford/demanda/internal/sse"
	"github.com/starford/demanda/internal/storage"
)

const sseThrottle = 2 * time.Second

// setup checks the configuration and installs the JSON logger as default.
func (a *application) setup() (*Config, *slog.Logger, error) {
	if a.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	cfg := a.config

	logger := slog.New(slog.NewJSONHandler(a.logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("input_path", cfg.Input.Path),
		slog.String("input_extension", cfg.Input.Extension),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	return cfg, logger, nil
}

// openIndex opens the input directory and the SQLite index.
func openIndex(cfg *Config) (*storage.FS, *index.DB, error) {
	store, err := storage.NewFS(cfg.Input.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init index: %w", err)
	}
	return store, db, nil
}

// observe returns the callback that fans index events out to SSE clients
// and the metrics collectors.
func observe(db index.Store, broker *sse.Broker, m *metrics.Metrics, logger *slog.Logger) index.EventCallback {
	return func(ev index.Event) {
		switch ev.Kind {
		case index.EventIndexed:
			m.Parsed(ev.Rows)
		case index.EventFailed:
			m.Failed()
		case index.EventRemoved:
			m.Removed()
		default:
			return
		}
		broker.PublishChange(sse.SourceChange{
			Kind: ev.Kind,
			Name: ev.Name,
			Rows: ev.Rows,
			Line: ev.Line,
			Err:  ev.Err,
		})
		refreshDatasetSize(db, m, logger)
	}
}

func refreshDatasetSize(db index.Store, m *metrics.Metrics, logger *slog.Logger) {
	n, err := db.CountRecords()
	if err != nil {
		logger.Warn("count records failed", slog.String("error", err.Error()))
		return
	}
	m.SetDatasetSize(n)
}

// newHandler builds the root router: health checks, /metrics and the API under /api.
func newHandler(cfg *Config, db *index.DB, sync api.SyncFunc, broker *sse.Broker, m *metrics.Metrics) http.Handler {
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
		n, err := db.CountRecords()
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","records":%d}`, n)
	})

	r.Handle("/metrics", m.Handler())

	// Mount API routes under /api; SSE lives at /api/events behind the same auth.
	r.Mount("/api", api.NewRouter(db, sync, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker))

	return r
}

// Run syncs the input directory, then serves the HTTP API while watching
// the directory for changes until ctx is cancelled or a signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	cfg, logger, err := app.setup()
	if err != nil {
		return err
	}

	store, db, err := openIndex(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	broker := sse.NewBroker(sseThrottle)
	defer broker.Close()

	m := metrics.New(broker.ClientCount)
	onEvent := observe(db, broker, m, logger)

	syncFn := func(ctx context.Context) (index.SyncStats, error) {
		stats, err := index.Sync(ctx, db, store, cfg.Input.Extension, logger, onEvent)
		if err == nil {
			refreshDatasetSize(db, m, logger)
		}
		return stats, err
	}

	// Run initial sync.
	if _, err := syncFn(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newHandler(cfg, db, syncFn, broker, m),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Closing the broker ends open SSE streams so Shutdown does not wait on them.
	httpServer.RegisterOnShutdown(broker.Close)

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher with SSE and metrics callback.
	g.Go(func() error {
		if err := index.Watch(gCtx, db, store, cfg.Input.Extension, logger, onEvent); err != nil {
			logger.Error("watcher failed", slog.String("error", err.Error()))
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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the errgroup context so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

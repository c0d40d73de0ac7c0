// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/folio/internal/api"
	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/library"
	"github.com/starford/folio/internal/mcpserver"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/sse"
	"github.com/starford/folio/internal/storage"
	"github.com/starford/folio/internal/users"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if app.logger == nil {
		// Initialize structured JSON logger.
		app.logger = slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
			Level: app.config.App.LogLevel,
		}))
	}
	return app, nil
}

// openLibrary prepares the library tree and the index, then brings the
// index up to date. The caller closes the returned DB.
func (a *application) openLibrary(ctx context.Context, events library.EventSink) (*library.Service, *index.DB, error) {
	cfg := a.config

	// Ensure the library and data directories exist.
	if err := os.MkdirAll(cfg.Library.Root, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create library dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}

	// Initialize storage.
	store, err := storage.NewFS(cfg.Library.Root)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}

	// Initialize SQLite index.
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init index: %w", err)
	}

	opts := []library.Option{
		library.WithCatalogPath(cfg.Library.CatalogPath),
		library.WithMaxUploadBytes(cfg.Uploads.MaxBytes),
		library.WithLogger(a.logger),
	}
	if events != nil {
		opts = append(opts, library.WithEvents(events))
	}
	svc := library.NewService(store, db, opts...)

	// Run initial sync.
	if err := svc.Open(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("initial sync: %w", err)
	}
	return svc, db, nil
}

// watch keeps the index in sync with the library tree until ctx is done.
// A watcher that cannot start is logged and leaves the server running.
func (a *application) watch(ctx context.Context, svc *library.Service) error {
	if !a.config.Library.Watch {
		return nil
	}
	if err := index.Watch(ctx, a.config.Library.Root, a.logger, svc.Reconcile); err != nil {
		a.logger.Warn("file watcher stopped", slog.String("error", err.Error()))
	}
	return nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("library_root", cfg.Library.Root),
		slog.String("catalog_path", cfg.Library.CatalogPath),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.Bool("trust_proxy", cfg.App.HTTP.TrustProxy),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(cfg.Events.CatalogThrottle, sse.WithKeepAlive(cfg.Events.KeepAlive))
	defer broker.Close()

	svc, db, err := app.openLibrary(ctx, broker)
	if err != nil {
		return err
	}
	defer db.Close()

	routerOpts := api.Options{
		Mode:           api.AuthMode(cfg.Auth.Mode),
		Token:          cfg.Auth.Token,
		Events:         broker,
		MaxUploadBytes: cfg.Uploads.MaxBytes,
	}
	if routerOpts.Mode == api.AuthSession {
		us, err := users.New(db.Conn(), []byte(cfg.Auth.JWTSecret),
			users.WithSessionTTL(cfg.Auth.SessionTTL),
			users.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("init users: %w", err)
		}
		if admin := cfg.Auth.Admin; admin.Email != "" {
			created, err := us.EnsureAdmin(ctx, admin.Name, admin.Email, admin.Password)
			if err != nil {
				return fmt.Errorf("seed admin: %w", err)
			}
			if created {
				logger.Info("Administrator account created", slog.String("email", admin.Email))
			}
		}
		routerOpts.Users = us
		if cfg.Auth.LoginPerMinute > 0 {
			routerOpts.LoginLimiter = api.NewIPLimiter(cfg.Auth.LoginPerMinute, max(cfg.Auth.LoginBurst, 1))
		}
	}
	apiRouter := api.NewRouter(svc, routerOpts)

	compressed, err := compressJSON(apiRouter)
	if err != nil {
		return fmt.Errorf("init compression: %w", err)
	}

	r := rootRouter(compressed, db.Conn().PingContext, cfg.App.HTTP.TrustProxy)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher; changes reach SSE clients through the service.
	g.Go(func() error {
		return app.watch(gCtx, svc)
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

		// Streaming clients never finish on their own.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.HTTP.ShutdownTimeout)
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

// rootRouter mounts the unauthenticated health probes and the API. Proxy
// headers rewrite the client address only when trustProxy is set; the login
// limiter keys on that address.
func rootRouter(apiHandler http.Handler, ping func(context.Context) error, trustProxy bool) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiHandler)
	return r
}

// errShutdown cancels the group's context so that the watcher exits too.
var errShutdown = errors.New("shutdown")

// compressJSON gzips JSON responses. Event streams and book files pass
// through untouched.
func compressJSON(next http.Handler) (http.Handler, error) {
	wrap, err := gzhttp.NewWrapper(
		gzhttp.MinSize(1024),
		gzhttp.ContentTypes([]string{"application/json"}),
	)
	if err != nil {
		return nil, err
	}
	gz := wrap(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/events") || strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
			next.ServeHTTP(w, r)
			return
		}
		gz.ServeHTTP(w, r)
	}), nil
}

// RunMCP serves the MCP tools over stdin/stdout.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	slog.SetDefault(app.logger)

	svc, db, err := app.openLibrary(ctx, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	srv := mcpserver.New(svc, app.version)
	app.logger.Info("MCP server starting", slog.String("library_root", app.config.Library.Root))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.watch(gCtx, svc)
	})
	g.Go(func() error {
		err := srv.Listen(gCtx, os.Stdin, os.Stdout)
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
			return errShutdown
		}
		return err
	})
	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		return err
	}
	return nil
}

// Reindex syncs the index with the library tree once, rewrites the catalog
// document, and returns it.
func Reindex(ctx context.Context, opts ...Option) (*models.Catalog, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	svc, db, err := app.openLibrary(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return svc.Catalog(), nil
}

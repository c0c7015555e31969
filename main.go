package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/carelink/portal/internal/accounts"
	"github.com/carelink/portal/internal/config"
	"github.com/carelink/portal/internal/csrf"
	"github.com/carelink/portal/internal/db"
	"github.com/carelink/portal/internal/logging"
	"github.com/carelink/portal/internal/middleware"
	"github.com/carelink/portal/internal/web"
)

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok\n"))
}

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logging.New(os.Stderr, "info", false).Error(ctx, "failed to load config", "error", err)
		return err
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.Debug)
	if err := cfg.Validate(); err != nil {
		logger.Error(ctx, "invalid config", "error", err)
		return err
	}

	gdb, err := db.Connect(cfg.DatabaseURL, logger, cfg.Debug)
	if err != nil {
		logger.Error(ctx, "failed to connect to database", "error", err)
		return err
	}
	defer db.Close(gdb)

	if err := db.Migrate(ctx, gdb); err != nil {
		logger.Error(ctx, "failed to migrate", "error", err)
		return err
	}

	svc, cleanup, err := accounts.Init(ctx, cfg, gdb, logger)
	if err != nil {
		logger.Error(ctx, "failed to initialize accounts", "error", err)
		return err
	}
	defer cleanup()

	renderer, err := web.New()
	if err != nil {
		logger.Error(ctx, "failed to parse templates", "error", err)
		return err
	}

	h := accounts.NewHandler(svc, renderer, logger, cfg.SecureCookies())
	fetcher := accounts.SessionInfo{Store: svc.Sessions()}
	limiter := middleware.NewRateLimiter(cfg.LoginRatePerMinute)
	protector := csrf.New(cfg.SecretKey, cfg.SessionTTL, cfg.SecureCookies())

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)
	// multipart overhead on top of the picture itself
	r.Use(middleware.BodyLimit(cfg.MaxUploadBytes + 1<<20))
	r.Use(protector.Middleware)

	r.With(middleware.OptionalSession(fetcher)).Get("/", h.Home)
	r.Get("/healthz", HealthHandler)

	r.Mount("/accounts", accounts.SetupRoutes(h, fetcher, limiter))
	r.Mount("/admin", accounts.SetupAdminRoutes(h, fetcher, svc))

	if cfg.MediaBackend == config.MediaBackendLocal {
		prefix := "/" + strings.Trim(cfg.MediaURL, "/")
		if prefix != "/" {
			fs := http.StripPrefix(prefix+"/", http.FileServer(http.Dir(cfg.MediaRoot)))
			r.Handle(prefix+"/*", fs)
		}
	}

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "server failed", "error", err)
			return err
		}
	case <-ctx.Done():
		logger.Info(context.Background(), "shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

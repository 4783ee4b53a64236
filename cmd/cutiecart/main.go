// CutieCart - cart and checkout service for the CutieCart storefront.
// Serves the REST API and MCP tools from one process.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"cutiecart/internal/cart"
	"cutiecart/internal/catalogue"
	"cutiecart/internal/checkout"
	"cutiecart/internal/config"
	"cutiecart/internal/coupon"
	"cutiecart/internal/handler"
	"cutiecart/internal/middleware"
	"cutiecart/internal/negotiation"
	"cutiecart/internal/notify"
	"cutiecart/internal/storage"
)

// purgeInterval is how often expired SQLite rows are deleted.
const purgeInterval = 10 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Initialize structured logger
	logger := initLogger()

	// Load configuration
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("store_id", cfg.StoreID),
		slog.String("environment", cfg.Environment),
		slog.String("storage", cfg.Storage.Backend),
		slog.Bool("notify_configured", len(cfg.Notify.Missing()) == 0),
	)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	cat, err := loadCatalogue(cfg)
	if err != nil {
		return err
	}

	store, closeStore, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer closeStore.Close()

	gateway := notify.NewEmailJS(cfg.Notify.Config, notify.EmailJSOptions{
		BrowserTLS:  cfg.Notify.BrowserTLS,
		Origin:      cfg.Notify.Origin,
		DryRunDelay: time.Duration(cfg.Notify.DryRunDelay),
		RateLimit:   rate.Limit(cfg.Notify.RateLimit),
	}, logger)

	orch, err := checkout.New(checkout.Options{
		Gateway:    gateway,
		Logger:     logger,
		HandoffTTL: cfg.HandoffTTL,
		Location:   loc,
		Observer: func(session string, from, to checkout.State) {
			logger.Debug("checkout state",
				slog.String("session", session),
				slog.String("from", string(from)),
				slog.String("to", string(to)),
			)
		},
	})
	if err != nil {
		return fmt.Errorf("creating checkout: %w", err)
	}

	h := handler.New(handler.Options{
		Catalogue:      cat,
		Storage:        store,
		Carts:          cart.NewRegistry(store, logger, 0),
		Coupons:        coupon.NewRegistry(cfg.CouponVocabulary(), 0),
		Checkout:       orch,
		Logger:         logger,
		DryRun:         cfg.Notify.DryRun,
		LoopbackDryRun: cfg.Notify.LoopbackAutoDetect(),
		Location:       loc,
	})

	// Setup routes
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Apply middleware chain: recovery → logging → rate limit → session → options → handler
	// Recovery must be outermost to catch panics from logging middleware
	// Rate limiting keys on the remote IP, so it also covers requests Session rejects
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.Logging(logger),
		middleware.RateLimit(middleware.RateLimitConfig{
			RPS:   cfg.RateLimit.RPS,
			Burst: cfg.RateLimit.Burst,
		}),
		middleware.Session(cfg.IsProduction()),
		negotiation.Middleware(logger),
	)(mux)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel for server errors
	serverErr := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		logger.Info("shutdown signal received")

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// loadCatalogue reads the configured product file, or falls back to the built-in list.
func loadCatalogue(cfg *config.Config) (*catalogue.Catalogue, error) {
	if cfg.CatalogueFile == "" {
		return catalogue.Default(), nil
	}
	cat, err := catalogue.Load(cfg.CatalogueFile)
	if err != nil {
		return nil, fmt.Errorf("loading catalogue: %w", err)
	}
	return cat, nil
}

// openStorage creates the configured backend. The returned closer releases it.
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, io.Closer, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return storage.NewMemory(), io.NopCloser(nil), nil

	case config.BackendRedis:
		rdb := storage.NewRedis(storage.RedisConfig{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.Storage.RedisAddr, err)
		}
		return rdb, rdb, nil

	case config.BackendSQLite:
		db, err := storage.OpenSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		go purgeExpired(ctx, db, logger)
		return db, db, nil

	default:
		return nil, nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}

// purgeExpired periodically drops expired SQLite rows until ctx is done.
func purgeExpired(ctx context.Context, db *storage.SQLite, logger *slog.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := db.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("purging expired rows failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				logger.Debug("purged expired rows", slog.Int64("rows", n))
			}
		}
	}
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	// JSON for production (Cloud Logging compatible), text for development
	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

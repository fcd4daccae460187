// Storefront gateway - serves region-aware storefront pages, the cart API
// and an MCP endpoint in front of a Medusa store API.
package main

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

	"storefront-gateway/internal/cache"
	"storefront-gateway/internal/cart"
	"storefront-gateway/internal/catalog"
	"storefront-gateway/internal/config"
	"storefront-gateway/internal/handler"
	"storefront-gateway/internal/medusa"
	"storefront-gateway/internal/middleware"
	"storefront-gateway/internal/region"
	"storefront-gateway/internal/session"
	"storefront-gateway/internal/transport"
)

// limiterIdle is how long a client's rate limiter survives without requests.
const limiterIdle = 10 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := initLogger()
	slog.SetDefault(logger)

	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("backend_url", cfg.Backend.URL),
		slog.String("backend_transport", cfg.Backend.Transport),
		slog.String("default_country", cfg.Storefront.DefaultCountry),
		slog.Bool("redis", cfg.Cache.RedisURL != ""),
	)

	rt, err := transport.New(transport.Kind(cfg.Backend.Transport), cfg.Backend.Timeout)
	if err != nil {
		return fmt.Errorf("creating transport: %w", err)
	}
	backend, err := medusa.New(medusa.Config{
		BaseURL:        cfg.Backend.URL,
		PublishableKey: cfg.Backend.PublishableKey,
		Transport:      rt,
		Timeout:        cfg.Backend.Timeout,
	})
	if err != nil {
		return fmt.Errorf("creating backend client: %w", err)
	}

	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating cache store: %w", err)
	}
	defer closeStore()

	c := cache.New(store, cache.Options{
		TTL:       cfg.Cache.TTL,
		Freshness: cfg.Cache.Freshness,
		Logger:    logger,
	})
	catalogSvc := catalog.NewService(backend, c, catalog.Config{
		ProductsPerPage:     cfg.Storefront.ProductsPerPage,
		HomepageCollections: cfg.Storefront.HomepageCollections,
	}, logger)

	stop := make(chan struct{})
	defer close(stop)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, logger)
	limiter.StartCleanup(limiterIdle, stop)

	h := handler.New(handler.Deps{
		Catalog:  catalogSvc,
		Carts:    cart.NewManager(backend, c, logger),
		Resolver: region.NewResolver(catalogSvc, cfg.Storefront.DefaultCountry, logger),
		Relay:    backend,
		Limiter:  limiter,
	}, handler.Options{
		StoreTitle: cfg.Storefront.Title,
		Session: session.Options{
			CartMaxAge: cfg.Storefront.CartCookieMaxAge,
			Secure:     cfg.Storefront.CookieSecure || cfg.IsProduction(),
		},
	}, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", server.Addr))
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// newStore picks Redis when REDIS_URL is set, else an in-process LRU.
func newStore(ctx context.Context, cfg *config.Config) (cache.Store, func(), error) {
	if cfg.Cache.RedisURL == "" {
		return cache.NewMemoryStore(cfg.Cache.MaxEntries), func() {}, nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rs, err := cache.NewRedisStore(pingCtx, cfg.Cache.RedisURL, "storefront:")
	if err != nil {
		return nil, nil, err
	}
	return rs, func() { rs.Close() }, nil
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for Cloud Logging, development uses text.
func initLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(os.Getenv("LOG_LEVEL"))); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

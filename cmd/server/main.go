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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/hlscope/metrics-engine/internal/api"
	"github.com/hlscope/metrics-engine/internal/config"
	"github.com/hlscope/metrics-engine/internal/engine"
	"github.com/hlscope/metrics-engine/internal/hyperliquid"
	"github.com/hlscope/metrics-engine/internal/metrics"
	"github.com/hlscope/metrics-engine/internal/poller"
	"github.com/hlscope/metrics-engine/internal/source"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize source ---
	var src source.Source
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		src = source.NewPostgresSource(pool)
		slog.Info("reading wallets from PostgreSQL archive")
	} else {
		src = hyperliquid.NewClient(cfg.Hyperliquid())
		slog.Info("reading wallets from Hyperliquid", "url", cfg.HyperliquidURL, "rps", cfg.HyperliquidRPS)
	}

	// Wrap with Redis read-through cache if configured, else cache in-process.
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		src = source.NewCachedSource(src, rdb, cfg.CacheTTL)
		slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL)
	} else {
		local, err := source.NewLocalCachedSource(src, cfg.LocalCacheMaxItems, cfg.CacheTTL)
		if err != nil {
			slog.Error("local cache init failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, local.Close)
		src = local
		slog.Warn("REDIS_URL not set, caching in-process only", "ttl", cfg.CacheTTL)
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Engine ---
	eng := engine.New(
		engine.WithSideFallback(cfg.Fallback()),
		engine.WithSessionGap(cfg.SessionGap),
		engine.WithDropHook(func(n int) { metrics.FillsDropped.Add(float64(n)) }),
	)

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run(ctx)

	// --- Poller ---
	if len(cfg.WatchAddresses) > 0 {
		p, err := poller.New(eng, src, wsHub, poller.Config{
			Addresses:   cfg.WatchAddresses,
			Interval:    cfg.PollInterval,
			Concurrency: cfg.PollConcurrency,
		})
		if err != nil {
			slog.Error("poller init failed", "err", err)
			os.Exit(1)
		}
		go p.Run(ctx)
	}

	svc := api.NewService(eng, src)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS middleware for dashboard cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"metrics-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket stream of refreshed wallet metrics. Long-lived, so it
		// sits outside the request timeout.
		r.Get("/ws", wsHub.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			svc.Routes(r)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("metrics-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down metrics-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("metrics-engine stopped")
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/quotedrill/sim-engine/internal/catalog"
	"github.com/quotedrill/sim-engine/internal/metrics"
	"github.com/quotedrill/sim-engine/internal/odds"
	"github.com/quotedrill/sim-engine/internal/session"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	maxSessions := 100
	if v := os.Getenv("MAX_SESSIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			slog.Warn("invalid MAX_SESSIONS, using default", "value", v, "default", maxSessions)
		} else {
			maxSessions = n
		}
	}

	houseEdge := odds.DefaultHouseEdge
	if v := os.Getenv("HOUSE_EDGE"); v != "" {
		e, err := decimal.NewFromString(v)
		if err != nil || e.IsNegative() || e.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			slog.Warn("invalid HOUSE_EDGE, using default", "value", v, "default", houseEdge.String())
		} else {
			houseEdge = e
		}
	}

	// --- Initialize scenario catalog ---
	var cat catalog.Catalog
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := catalog.NewPostgresCatalog(pool)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			slog.Error("schema setup failed", "err", err)
			os.Exit(1)
		}
		cat = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			cat = catalog.NewCachedCatalog(cat, rdb, 5*time.Minute)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory catalog (scenarios will not persist)")
		cat = catalog.NewMemoryCatalog()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	if err := seedCatalog(context.Background(), cat); err != nil {
		slog.Error("catalog seeding failed", "err", err)
		os.Exit(1)
	}

	// --- Session registry ---
	registry := session.NewRegistry(maxSessions)
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go registry.RunSweeper(sweepCtx, time.Minute, 10*time.Minute)

	// --- WebSocket hub ---
	hub := session.NewFeedHub()
	go hub.Run()

	// --- Session service ---
	svc := session.NewService(cat, registry, hub, houseEdge)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
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
		w.Write([]byte(`{"status":"ok","service":"sim-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Session lifecycle.
		r.Post("/sessions", svc.StartSession)
		r.Get("/sessions/{sessionID}", svc.GetSession)
		r.Post("/sessions/{sessionID}/quotes", svc.SubmitQuote)
		r.Get("/sessions/{sessionID}/suggest", svc.Suggest)
		r.Get("/sessions/{sessionID}/pnl", svc.GetPnL)
		r.Post("/sessions/{sessionID}/end", svc.EndSession)
		r.Post("/sessions/{sessionID}/reset", svc.ResetSession)

		// WebSocket endpoint for real-time fill feeds.
		r.Get("/sessions/{sessionID}/ws", svc.SessionFeed)

		// Scenario catalog.
		r.Get("/scenarios", svc.ListScenarios)
		r.Post("/scenarios", svc.CreateScenario)

		// Warm-up odds rounds.
		r.Post("/odds/rounds", svc.PlayOddsRound)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("sim-engine listening", "port", port, "max_sessions", maxSessions)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down sim-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("sim-engine stopped")
}

// seedCatalog loads scenarios from SCENARIOS_FILE when set, otherwise
// seeds the built-in drills into an empty catalog. A non-empty catalog
// is left alone so operator edits survive restarts.
func seedCatalog(ctx context.Context, cat catalog.Catalog) error {
	if path := os.Getenv("SCENARIOS_FILE"); path != "" {
		scns, err := catalog.LoadFile(path)
		if err != nil {
			return err
		}
		for i := range scns {
			if err := cat.PutScenario(ctx, &scns[i]); err != nil {
				return err
			}
		}
		slog.Info("loaded scenario file", "path", path, "count", len(scns))
		return nil
	}

	existing, err := cat.ListScenarios(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	scns, err := catalog.DefaultScenarios()
	if err != nil {
		return err
	}
	for i := range scns {
		if err := cat.PutScenario(ctx, &scns[i]); err != nil {
			return err
		}
	}
	slog.Info("seeded built-in scenarios", "count", len(scns))
	return nil
}

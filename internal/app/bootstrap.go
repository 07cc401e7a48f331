package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"favourites-api/internal/auth"
	"favourites-api/internal/config"
	"favourites-api/internal/db"
	"favourites-api/internal/observability"
	"favourites-api/internal/user"
)

const connectTimeout = 30 * time.Second

type Options struct {
	LoadDotEnv bool
	// RunMigrations applies when RUN_MIGRATIONS_ON_STARTUP is unset.
	RunMigrations bool
	// EagerConnect opens the pool before Build returns; otherwise the first
	// request that needs the store does.
	EagerConnect bool
}

type Runtime struct {
	Handler http.Handler
	Config  config.Config
	Logger  *observability.Logger
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	cfg, err := config.Load(options.RunMigrations)
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	handle := db.NewHandle(db.Opener(cfg.DatabaseURL, db.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	}, cfg.RunMigrations)).WithOpenTimeout(connectTimeout)

	if options.EagerConnect {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		if _, err := handle.Get(ctx); err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
	}

	handler, err := NewHandler(cfg, logger, handle)
	if err != nil {
		_ = handle.Close()
		return nil, err
	}

	return &Runtime{
		Handler: handler,
		Config:  cfg,
		Logger:  logger,
		Close: func() error {
			observability.FlushSentry()
			return handle.Close()
		},
	}, nil
}

// NewHandler wires the routes and the middleware chain over handle.
func NewHandler(cfg config.Config, logger *observability.Logger, handle *db.Handle) (http.Handler, error) {
	tokens, err := auth.NewTokenService([]byte(cfg.JWTSecret), cfg.TokenExpiry)
	if err != nil {
		return nil, fmt.Errorf("init token service: %w", err)
	}

	repo := user.NewRepository(handle)
	service := user.NewService(repo, tokens).WithMaxFavourites(cfg.MaxFavourites)
	userHandler := user.NewHandler(service, logger.With(map[string]any{"component": "user"}))

	var checker auth.IdentityChecker
	if cfg.VerifyTokenAgainstStore {
		checker = repo
	}
	protected := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(tokens, checker, h)
	}

	limiter := auth.NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)

	logger.Info("routes_ready", map[string]any{
		"token_expiry":          tokens.Expiry().String(),
		"verify_against_store":  checker != nil,
		"max_favourites":        cfg.MaxFavourites,
		"rate_limit_max":        cfg.RateLimitMax,
		"rate_limit_window_sec": int(cfg.RateLimitWindow.Seconds()),
	})

	mux := http.NewServeMux()
	mux.Handle("POST /api/user/register", limiter.Middleware(http.HandlerFunc(userHandler.Register)))
	mux.Handle("POST /api/user/login", limiter.Middleware(http.HandlerFunc(userHandler.Login)))
	mux.Handle("GET /api/user/favourites", protected(userHandler.ListFavourites))
	mux.Handle("PUT /api/user/favourites/{id}", protected(userHandler.AddFavourite))
	mux.Handle("DELETE /api/user/favourites/{id}", protected(userHandler.RemoveFavourite))
	mux.HandleFunc("GET /health", healthHandler(handle))

	handler := observability.RequestLoggingMiddleware(logger, mux)
	handler = observability.CORSMiddleware(cfg.CORSAllowedOrigin, handler)
	handler = observability.RecoverMiddleware(logger, handler)
	handler = observability.CorrelationIDMiddleware(handler)

	return handler, nil
}

func healthHandler(handle *db.Handle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := handle.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nvasquez/portfolio-chat/backend/internal/catalog"
	"github.com/nvasquez/portfolio-chat/backend/internal/chat"
	"github.com/nvasquez/portfolio-chat/backend/internal/config"
	"github.com/nvasquez/portfolio-chat/backend/internal/executor"
	"github.com/nvasquez/portfolio-chat/backend/internal/limits"
	"github.com/nvasquez/portfolio-chat/backend/internal/observability"
	"github.com/nvasquez/portfolio-chat/backend/internal/providers"
	"github.com/nvasquez/portfolio-chat/backend/internal/router"
	"github.com/nvasquez/portfolio-chat/backend/internal/services/errorlog"
	"github.com/nvasquez/portfolio-chat/backend/internal/services/quota"
	"github.com/nvasquez/portfolio-chat/backend/internal/services/routing"
)

// defaultRouting seeds the settings singleton on first access.
var defaultRouting = routing.Settings{
	Preferred:     "gemini",
	FallbackOrder: []string{"mistral", "groq-70b", "groq-8b"},
}

// Container aggregates runtime dependencies for handlers and services.
type Container struct {
	Config            *config.Config
	DBPool            *pgxpool.Pool
	Redis             *redis.Client
	Logger            *slog.Logger
	Catalog           *catalog.Catalog
	Throttle          *limits.VisitorThrottle
	Windows           *limits.MinuteWindowTracker
	Quotas            *quota.Service
	Routing           *routing.Service
	ErrorLog          *errorlog.Service
	Sessions          *chat.SessionStore
	Engine            *router.Engine
	Executor          *executor.Executor
	Observability     *observability.Provider
	ReportingLocation *time.Location
}

// NewContainer wires the full dependency graph.
func NewContainer(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, redisClient *redis.Client) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}

	logger := slog.Default()
	loc := cfg.ReportingLocation()

	obs, err := observability.Setup(ctx, cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("setup observability: %w", err)
	}

	cat := catalog.New(catalog.EnvCredentials{})
	windows := limits.NewMinuteWindowTracker()
	throttle := limits.NewVisitorThrottle(cfg.Throttle.RequestsPerMinute, cfg.Throttle.RequestsPerDay, loc)
	quotas := quota.NewService(pool, cat, loc)
	routingSvc := routing.NewService(pool, cat, defaultRouting)
	errLog := errorlog.NewService(pool)
	sessions := chat.NewSessionStore(redisClient, cfg.Sessions.TTL, cfg.Chat.MaxHistory)
	engine := router.NewEngine(cat, windows, quotas, logger)
	completer := providers.NewOpenAICompat(catalog.EnvCredentials{})

	exec := executor.New(executor.Options{
		Catalog:           cat,
		Throttle:          throttle,
		Settings:          routingSvc,
		Selector:          engine,
		Windows:           windows,
		Ledger:            quotas,
		Errors:            errLog,
		Sessions:          sessions,
		Completer:         completer,
		CompletionTimeout: cfg.Chat.CompletionTimeout,
		Logger:            logger,
		Metrics:           obs,
	})

	return &Container{
		Config:            cfg,
		DBPool:            pool,
		Redis:             redisClient,
		Logger:            logger,
		Catalog:           cat,
		Throttle:          throttle,
		Windows:           windows,
		Quotas:            quotas,
		Routing:           routingSvc,
		ErrorLog:          errLog,
		Sessions:          sessions,
		Engine:            engine,
		Executor:          exec,
		Observability:     obs,
		ReportingLocation: loc,
	}, nil
}

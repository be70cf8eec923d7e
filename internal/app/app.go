// Package app wires configuration, storage and the orchestrator together for
// the server and the CLI.
package app

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/steelburn/candidacy-sub001/internal/orchestrator"
	"github.com/steelburn/candidacy-sub001/internal/orchestrator/chain"
	"github.com/steelburn/candidacy-sub001/internal/orchestrator/failover"
	"github.com/steelburn/candidacy-sub001/internal/orchestrator/providers"
	"github.com/steelburn/candidacy-sub001/internal/orchestrator/registry"
	"github.com/steelburn/candidacy-sub001/internal/orchestrator/reload"
	"github.com/steelburn/candidacy-sub001/internal/orchestrator/requestlog"
	"github.com/steelburn/candidacy-sub001/internal/shared/config"
	"github.com/steelburn/candidacy-sub001/internal/shared/database"
	"github.com/steelburn/candidacy-sub001/internal/shared/redis"
	"github.com/steelburn/candidacy-sub001/internal/shared/tokens"
)

// App holds the long-lived components
type App struct {
	Config   *config.Config
	DB       *database.DB
	Redis    *redis.Client // nil when REDIS_URL is unset or unreachable
	Registry *registry.Registry
	Resolver *chain.Resolver
	Logs     *requestlog.Sink
	Service  *orchestrator.Service
}

// New connects to storage, builds the registry and loads it once
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	log.WithFields(log.Fields{"event": "database_connected", "dialect": db.Dialect()}).Info("Connected to database")

	a := &App{Config: cfg, DB: db}

	if cfg.RedisURL != "" {
		client, err := redis.New(ctx, cfg.RedisURL)
		if err != nil {
			// Redis only backs the chain cache and reload broadcasts
			log.WithField("event", "redis_unavailable").WithError(err).Warn("Continuing without Redis")
		} else {
			a.Redis = client
			log.WithField("event", "redis_connected").Info("Connected to Redis")
		}
	}

	var cache *chain.Cache
	if a.Redis != nil && cfg.ChainCacheEnabled {
		cache = chain.NewCache(a.Redis, cfg.ChainCacheTTL)
	}

	a.Registry = registry.New(db, providers.NewFactory(cfg), registry.Options{
		ProbeTimeout:    cfg.ProbeTimeout,
		LLMTimeout:      cfg.LLMTimeout,
		DocumentTimeout: cfg.DocumentTimeout,
	})
	a.Resolver = chain.NewResolver(db, cache)
	a.Logs = requestlog.NewSink(db, 0)
	a.Service = orchestrator.New(a.Registry, a.Resolver, failover.NewExecutor(a.Registry, a.Logs))

	if cfg.ParseRoot != "" {
		if err := os.MkdirAll(cfg.ParseRoot, 0o755); err != nil {
			a.Close()
			return nil, fmt.Errorf("creating parse root: %w", err)
		}
	}
	if err := a.Service.SetParseRoot(cfg.ParseRoot); err != nil {
		a.Close()
		return nil, err
	}

	tokens.Warm()

	if _, err := a.Service.Reload(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("loading provider registry: %w", err)
	}
	return a, nil
}

// Broadcast publishes a reload on the configured channel. It returns nil
// when Redis is not configured so callers can fall back to a local reload.
func (a *App) Broadcast() func(ctx context.Context, reason string) error {
	if a.Redis == nil {
		return nil
	}
	return func(ctx context.Context, reason string) error {
		return reload.Publish(ctx, a.Redis, a.Config.ReloadChannel, reason)
	}
}

// Close releases the database and Redis connections
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

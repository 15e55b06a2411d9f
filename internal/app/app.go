// Package app wires the moderation components together from configuration.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	_ "github.com/lib/pq"

	"github.com/francisco-leal/ModBot/actions"
	"github.com/francisco-leal/ModBot/channels"
	"github.com/francisco-leal/ModBot/delivery"
	"github.com/francisco-leal/ModBot/farcaster"
	"github.com/francisco-leal/ModBot/internal/config"
	"github.com/francisco-leal/ModBot/internal/logger"
	"github.com/francisco-leal/ModBot/moderation"
	"github.com/francisco-leal/ModBot/rules"
	"github.com/francisco-leal/ModBot/rules/predicates"
)

// App holds every long-lived component of the service
type App struct {
	Config *config.AppConfig
	// DB is nil when running in memory
	DB *sql.DB

	Channels  *channels.Manager
	Usage     channels.UsageStore
	Logs      moderation.LogStore
	Cooldowns actions.CooldownStore
	Downvotes actions.DownvoteStore

	Farcaster  *farcaster.Client
	Predicates *rules.Registry
	Actions    *actions.Registry

	Orchestrator *moderation.Orchestrator
	Processor    *delivery.Processor

	closers []func() error
}

// New builds the application. PostgreSQL backs every store when
// DatabaseURL is set, otherwise everything lives in memory.
func New(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	a := &App{Config: cfg}
	if err := a.openStores(ctx); err != nil {
		a.Close()
		return nil, err
	}

	lookupCache, err := a.lookupCache(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Farcaster = farcaster.NewClient(farcaster.ClientConfig{
		BaseURL:  cfg.FarcasterAPIURL,
		APIKey:   cfg.FarcasterAPIKey,
		RetryMax: cfg.FarcasterRetries,
		Cache:    lookupCache,
		Logger:   logger.Logger,
	})

	a.Predicates = predicates.NewRegistry(predicates.Dependencies{
		Graph:  a.Farcaster,
		Tokens: a.Farcaster,
	})

	a.Actions = actions.NewRegistry(actions.Dependencies{
		Protocol:  a.Farcaster,
		Cooldowns: a.Cooldowns,
		Bypass:    a.Channels,
		Downvotes: a.Downvotes,
	})
	a.Channels.SetValidator(channels.NewValidator(a.Predicates, a.Actions))

	sink, err := a.sink()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Orchestrator = moderation.NewOrchestrator(
		rules.NewEngine(a.Predicates),
		actions.NewExecutor(a.Actions),
		moderation.NewLogWriter(a.Logs),
		sink,
	)

	processorConfig := delivery.DefaultConfig()
	processorConfig.ExecuteOnProtocol = cfg.ExecuteOnProtocol
	processorConfig.Timeout = cfg.EvaluationTimeout
	processorConfig.UsageBuffer = cfg.UsageBuffer
	a.Processor = delivery.NewProcessor(a.Channels, a.Usage, a.Orchestrator, a.Logs, processorConfig)

	return a, nil
}

func (a *App) openStores(ctx context.Context) error {
	cache := channels.NewLRUCache(channels.CacheConfig{
		Size: a.Config.ChannelCacheSize,
		TTL:  a.Config.ChannelCacheTTL,
	})

	if a.Config.DatabaseURL == "" {
		logger.Info("No database configured, using in-memory stores")
		a.Channels = channels.NewManager(channels.NewInMemoryStore(), cache, nil)
		a.Usage = channels.NewInMemoryUsageStore()
		a.Logs = moderation.NewInMemoryLogStore()
		a.Cooldowns = actions.NewInMemoryCooldownStore()
		a.Downvotes = actions.NewInMemoryDownvoteStore()
		return nil
	}

	db, err := sql.Open("postgres", a.Config.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.closers = append(a.closers, db.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	a.DB = db
	a.Channels = channels.NewManager(channels.NewPostgresStore(db), cache, nil)
	a.Usage = channels.NewPostgresUsageStore(db)
	a.Logs = moderation.NewPostgresLogStore(db)
	a.Cooldowns = actions.NewPostgresCooldownStore(db)
	a.Downvotes = actions.NewPostgresDownvoteStore(db)
	return nil
}

func (a *App) lookupCache(ctx context.Context) (farcaster.CacheStore, error) {
	if a.Config.RedisURL == "" {
		return farcaster.NewMemCacheStore(a.Config.LookupCacheSize, a.Config.LookupCacheTTL), nil
	}
	store, err := farcaster.NewRedisCacheStore(ctx, a.Config.RedisURL, a.Config.LookupCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	return store, nil
}

func (a *App) sink() (moderation.Sink, error) {
	if a.Config.SentryDSN == "" {
		return moderation.NopSink{}, nil
	}
	sink, err := moderation.NewSentrySink(sentry.ClientOptions{
		Dsn:         a.Config.SentryDSN,
		Environment: a.Config.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sentry client: %w", err)
	}
	a.closers = append(a.closers, func() error {
		sink.Flush(2 * time.Second)
		return nil
	})
	return sink, nil
}

// Ping checks the database when there is one
func (a *App) Ping(ctx context.Context) error {
	if a.DB == nil {
		return nil
	}
	return a.DB.PingContext(ctx)
}

// Close releases connections in reverse order of creation
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

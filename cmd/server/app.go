package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/phrazzld/stockroom/internal/auth"
	"github.com/phrazzld/stockroom/internal/capability"
	"github.com/phrazzld/stockroom/internal/config"
	"github.com/phrazzld/stockroom/internal/events"
	"github.com/phrazzld/stockroom/internal/part"
	"github.com/phrazzld/stockroom/internal/platform/gemini"
	"github.com/phrazzld/stockroom/internal/platform/postgres"
	"github.com/phrazzld/stockroom/internal/platform/redis"
	"github.com/phrazzld/stockroom/internal/platform/ristretto"
	"github.com/phrazzld/stockroom/internal/platform/ws"
	"github.com/phrazzld/stockroom/internal/provider"
	"github.com/phrazzld/stockroom/internal/provider/distributor"
	"github.com/phrazzld/stockroom/internal/ratelimit"
	"github.com/phrazzld/stockroom/internal/task"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// Optional backing services
	db    *sql.DB
	redis *goredis.Client
	cache *ristretto.ArtifactCache

	// Capability and provider wiring
	registry  *capability.Registry
	providers *provider.Set
	parts     part.Store

	// Task engine
	emitter *events.InMemoryEventEmitter
	runner  *task.Runner
	hub     *ws.Hub

	// Auth and rate limiting
	tokens      *auth.TokenService
	keys        *auth.KeyRing
	accounts    *auth.Accounts
	limiter     *ratelimit.Limiter
	resolver    *ratelimit.Resolver
	stopCleanup func()
}

// newApplication creates a new application instance with all dependencies initialized.
// Partially initialized resources are released when an error is returned.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *application, err error) {
	app := &application{config: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.cleanup()
		}
	}()

	if err := app.setupAuth(); err != nil {
		return nil, err
	}
	if err := app.setupPartStore(ctx); err != nil {
		return nil, err
	}
	if err := app.setupProviders(ctx); err != nil {
		return nil, err
	}
	if err := app.setupRateLimiter(ctx); err != nil {
		return nil, err
	}

	app.emitter = events.NewInMemoryEventEmitter(logger)
	app.runner = task.NewRunner(runnerConfig(cfg.Task), app.registry, app.providers, app.parts, app.emitter, logger)
	app.hub = ws.NewHub(app.runner.Query(), app.emitter, logger)

	logger.Info("application initialized",
		"providers", app.providers.Names(),
		"workers", cfg.Task.WorkerCount,
		"queue_size", cfg.Task.QueueSize)
	return app, nil
}

func (app *application) setupAuth() error {
	var err error
	app.tokens, err = auth.NewTokenService(app.config.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}
	app.keys, err = auth.NewKeyRing(app.config.Auth.APIKeyDigests)
	if err != nil {
		return fmt.Errorf("failed to load API keys: %w", err)
	}
	app.accounts = auth.NewAccounts(app.config.Auth.Users, auth.BcryptVerifier{})

	app.logger.Info("authentication initialized",
		"token_lifetime_minutes", app.config.Auth.TokenLifetimeMinutes,
		"api_keys", app.keys.Len(),
		"operator_accounts", len(app.config.Auth.Users))
	return nil
}

// setupPartStore uses Postgres when a database URL is configured and an
// in-memory store otherwise.
func (app *application) setupPartStore(ctx context.Context) error {
	if app.config.Database.URL == "" {
		app.parts = part.NewMemoryStore()
		app.logger.Warn("no database configured, part records are kept in memory")
		return nil
	}

	db, err := postgres.Open(ctx, app.config.Database.URL)
	if err != nil {
		return err
	}
	app.db = db
	if err := postgres.Migrate(ctx, db, app.logger); err != nil {
		return err
	}
	app.parts = postgres.NewPartStore(db)
	app.logger.Info("database connection established")
	return nil
}

// setupProviders builds the adapters, publishes what they can serve to the
// capability registry and wraps them with the artifact cache.
func (app *application) setupProviders(ctx context.Context) error {
	app.registry = capability.NewRegistry()
	if path := app.config.Providers.RegistryFile; path != "" {
		if err := app.registry.LoadFile(path); err != nil {
			return fmt.Errorf("failed to load capability registry: %w", err)
		}
	}

	var adapters []*provider.Provider
	for _, d := range app.config.Providers.Distributors {
		adapters = append(adapters, distributor.NewClient(d.Name, d.BaseURL, d.APIKey).Provider())
	}

	if app.config.LLM.GeminiAPIKey != "" {
		specs, err := gemini.NewSpecsClient(ctx, app.logger, app.config.LLM)
		if err != nil {
			return fmt.Errorf("failed to initialize gemini provider: %w", err)
		}
		adapters = append(adapters, specs.Provider())
	}

	// Declared providers without an adapter end up with no capabilities, so
	// admission rejects them instead of failing the task later.
	provider.NewSet(adapters...).Probe(app.registry)

	if app.config.Cache.MaxCostBytes > 0 && app.config.Cache.TTL > 0 {
		cache, err := ristretto.New(app.config.Cache.MaxCostBytes)
		if err != nil {
			return fmt.Errorf("failed to create artifact cache: %w", err)
		}
		app.cache = cache
		for i, p := range adapters {
			adapters[i] = provider.Cached(p, cache, app.config.Cache.TTL)
		}
	}
	app.providers = provider.NewSet(adapters...)

	for name, caps := range app.registry.Snapshot() {
		app.logger.Info("provider capabilities probed", "provider", name, "capabilities", caps)
	}
	return nil
}

func (app *application) setupRateLimiter(ctx context.Context) error {
	app.resolver = ratelimit.NewResolver(app.keys, app.tokens)
	if !app.config.RateLimit.Enabled {
		app.logger.Warn("rate limiting disabled")
		return nil
	}

	tiers := make([]ratelimit.Tier, len(app.config.RateLimit.Tiers))
	var longest time.Duration
	for i, t := range app.config.RateLimit.Tiers {
		tiers[i] = ratelimit.Tier{Name: t.Name, Limit: t.Limit, Window: t.Window}
		longest = max(longest, t.Window)
	}

	var store ratelimit.CounterStore
	switch app.config.RateLimit.Store {
	case "redis":
		client, err := redis.Connect(ctx, app.config.Redis.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.redis = client
		store = redis.NewCounterStore(client)
	default:
		mem := ratelimit.NewMemoryStore()
		if interval := app.config.RateLimit.CleanupInterval; interval > 0 {
			app.stopCleanup = mem.StartCleanup(interval, longest)
		}
		store = mem
	}

	limiter, err := ratelimit.New(store, tiers, ratelimit.WithLogger(app.logger.With("component", "rate_limiter")))
	if err != nil {
		return fmt.Errorf("invalid rate limit configuration: %w", err)
	}
	app.limiter = limiter
	app.logger.Info("rate limiting enabled", "store", app.config.RateLimit.Store, "tiers", len(tiers))
	return nil
}

func runnerConfig(cfg config.TaskConfig) task.RunnerConfig {
	exclusive := make([]task.Type, len(cfg.ExclusiveTypes))
	for i, t := range cfg.ExclusiveTypes {
		exclusive[i] = task.Type(t)
	}
	return task.RunnerConfig{
		QueueSize:     cfg.QueueSize,
		Retention:     cfg.Retention,
		SweepInterval: cfg.SweepInterval,
		Scheduler:     task.SchedulerConfig{ExclusiveTypes: exclusive},
		Pool: task.WorkerPoolConfig{
			WorkerCount:    cfg.WorkerCount,
			TaskBudget:     cfg.TaskBudget,
			AttemptTimeout: cfg.AttemptTimeout,
			MaxAttempts:    cfg.MaxAttempts,
			BackoffBase:    cfg.BackoffBase,
		},
	}
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.hub != nil {
		app.hub.Close()
	}
	if app.stopCleanup != nil {
		app.stopCleanup()
	}
	if app.cache != nil {
		app.cache.Close()
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis connection", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}
	app.logger.Info("application shutdown completed")
}

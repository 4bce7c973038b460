package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/upb/action-gate/auth"
	"github.com/upb/action-gate/config"
	"github.com/upb/action-gate/middleware"
	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories"
	"github.com/upb/action-gate/repositories/memory"
	"github.com/upb/action-gate/repositories/postgres"
	"github.com/upb/action-gate/services/adapters"
	"github.com/upb/action-gate/services/adapters/sink"
	"github.com/upb/action-gate/services/adapters/webhook"
	"github.com/upb/action-gate/services/audit"
	"github.com/upb/action-gate/services/dispatch"
	"github.com/upb/action-gate/services/invocation"
	"github.com/upb/action-gate/services/lifecycle"
	"github.com/upb/action-gate/services/mode"
	"github.com/upb/action-gate/services/ratelimit"
	"github.com/upb/action-gate/services/registry"
	"go.uber.org/zap"
)

// redisKeyPrefix namespaces the mode keys in a shared Redis
const redisKeyPrefix = "action-gate"

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger
	DB     *postgres.DB // nil with in-memory storage
	Redis  redis.UniversalClient

	// Storage
	RepoFactory *postgres.RepositoryFactory
	Repos       *repositories.Repositories
	TxManager   repositories.TransactionManager

	// Engine
	Catalog     *registry.Registry
	Audit       *audit.Log
	Modes       *mode.Controller
	Adapters    *adapters.Registry
	Dispatcher  *dispatch.Dispatcher
	Pool        *dispatch.Pool // nil unless dispatch is async
	Invocations *invocation.Service

	// Auth
	Tokens         *auth.TokenManager // nil when auth is disabled
	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initStorage(ctx); err != nil {
		deps.closeQuietly()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := deps.initRedis(ctx); err != nil {
		deps.closeQuietly()
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}
	if err := deps.initEngine(); err != nil {
		deps.closeQuietly()
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}
	if err := deps.initAuth(); err != nil {
		deps.closeQuietly()
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("mode_store", cfg.Modes.Store),
		zap.Int("actions", deps.Catalog.Len()),
		zap.Bool("async_dispatch", deps.Pool != nil),
		zap.Bool("auth", deps.Tokens != nil))
	return deps, nil
}

// initStorage opens postgres or builds the in-memory repositories
func (d *Dependencies) initStorage(ctx context.Context) error {
	if d.Config.Storage.Driver != "postgres" {
		d.Repos = memory.New()
		d.Logger.Warn("using in-memory storage; state is lost on restart")
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(d.Config, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}
	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := factory.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.Repos = factory.NewRepositories()
	// status change and audit record commit together only when they share a database
	if factory.SharesAuditDatabase() {
		d.TxManager = factory.GetTransactionManager()
	}

	d.Logger.Info("postgres repositories initialized",
		zap.Bool("separate_audit_db", !factory.SharesAuditDatabase()))
	return nil
}

// initRedis connects to Redis when an address is configured
func (d *Dependencies) initRedis(ctx context.Context) error {
	if d.Config.Redis.Addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     d.Config.Redis.Addr,
		Password: d.Config.Redis.Password,
		DB:       d.Config.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	d.Redis = client
	d.Logger.Info("redis connection established", zap.String("addr", d.Config.Redis.Addr))
	return nil
}

func (d *Dependencies) initEngine() error {
	cfg := d.Config

	catalog, err := registry.Load(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	d.Catalog = catalog

	d.Audit = audit.NewLog(d.Repos.Audit, d.Logger)

	modeStore, err := d.modeStore()
	if err != nil {
		return err
	}
	defaultMode, err := models.ParseMode(cfg.Modes.DefaultMode)
	if err != nil {
		return err
	}
	d.Modes = mode.NewController(modeStore, d.Logger, mode.WithDefaultMode(defaultMode))

	if d.Adapters, err = d.buildAdapters(); err != nil {
		return err
	}

	operators := map[models.Channel]string{
		models.ChannelEmail: cfg.Modes.OperatorEmail,
		models.ChannelSMS:   cfg.Modes.OperatorSMS,
		models.ChannelAPI:   cfg.Modes.OperatorAPI,
	}
	transitions := lifecycle.New(d.Repos.Invocations, d.Audit, d.TxManager, d.Logger)
	d.Dispatcher = dispatch.New(d.Modes, d.Adapters, operators, transitions, dispatch.Config{
		MaxRetries:     cfg.Dispatch.MaxRetries,
		InitialBackoff: cfg.Dispatch.InitialBackoff,
		MaxBackoff:     cfg.Dispatch.MaxBackoff,
		Timeout:        cfg.Dispatch.Timeout,
		RatePerSecond:  cfg.Dispatch.RatePerSecond,
		RateBurst:      cfg.Dispatch.RateBurst,
	}, d.Logger)

	opts := []invocation.Option{invocation.WithRejectionAudit(cfg.Audit.RecordValidationRejections)}
	if limits := d.submitLimits(); limits.Enabled() {
		var counter ratelimit.Counter = ratelimit.NewMemoryCounter()
		if d.Redis != nil {
			counter = ratelimit.NewRedisCounter(d.Redis, redisKeyPrefix)
		}
		opts = append(opts, invocation.WithSubmitLimiter(ratelimit.New(counter, limits, d.Logger)))
	}
	d.Invocations = invocation.NewService(d.Catalog, d.Repos.Invocations, transitions, d.Dispatcher, d.Logger, opts...)

	if cfg.Dispatch.Async {
		d.Pool = dispatch.NewPool(func(ctx context.Context, invocationID string) error {
			_, err := d.Invocations.Dispatch(ctx, invocationID)
			return err
		}, d.Logger, dispatch.PoolConfig{
			QueueSize:   cfg.Dispatch.QueueSize,
			WorkerCount: cfg.Dispatch.Workers,
		})
		d.Invocations.SetQueue(d.Pool)
	}
	return nil
}

func (d *Dependencies) submitLimits() ratelimit.Limits {
	return ratelimit.Limits{
		PerMinute: d.Config.Quotas.SubmitPerMinute,
		PerHour:   d.Config.Quotas.SubmitPerHour,
		PerDay:    d.Config.Quotas.SubmitPerDay,
	}
}

func (d *Dependencies) modeStore() (repositories.ModeRepository, error) {
	switch d.Config.Modes.Store {
	case "redis":
		if d.Redis == nil {
			return nil, fmt.Errorf("redis mode store requires REDIS_ADDR")
		}
		return mode.NewRedisStore(d.Redis, redisKeyPrefix), nil
	case "postgres":
		if d.RepoFactory == nil {
			return nil, fmt.Errorf("postgres mode store requires postgres storage")
		}
		return d.Repos.Modes, nil
	default:
		if d.RepoFactory != nil {
			// postgres storage still keeps modes in process when asked to
			return memory.NewModeRepository(), nil
		}
		return d.Repos.Modes, nil
	}
}

// buildAdapters registers one adapter per channel. Channels with a relay URL
// post to it; the rest record deliveries in process.
func (d *Dependencies) buildAdapters() (*adapters.Registry, error) {
	cfg := d.Config
	reg := adapters.NewRegistry()

	relay := func(ch models.Channel, endpoint string) adapters.ChannelAdapter {
		if endpoint == "" {
			d.Logger.Warn("no relay configured, deliveries are recorded only", zap.String("channel", string(ch)))
			return sink.New(ch, d.Logger)
		}
		return webhook.New(webhook.Config{
			Channel:   ch,
			Endpoint:  endpoint,
			AuthToken: cfg.Adapters.AuthToken,
			Timeout:   cfg.Dispatch.WebhookTimeout,
		})
	}

	list := []adapters.ChannelAdapter{
		relay(models.ChannelEmail, cfg.Adapters.EmailRelayURL),
		relay(models.ChannelSMS, cfg.Adapters.SMSRelayURL),
		// api actions carry their own URL as destination
		webhook.New(webhook.Config{
			Channel:   models.ChannelAPI,
			AuthToken: cfg.Adapters.AuthToken,
			Timeout:   cfg.Dispatch.WebhookTimeout,
		}),
		relay(models.ChannelNone, cfg.Adapters.OpsHookURL),
	}
	for _, a := range list {
		if err := reg.RegisterAdapter(a); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (d *Dependencies) initAuth() error {
	if !d.Config.Auth.Enabled {
		d.Logger.Warn("operator authentication disabled")
		d.AuthMiddleware = middleware.NewAuthMiddleware(nil, d.Logger)
		return nil
	}

	tokens, err := auth.NewTokenManager(d.Config.Auth.JWTSecret, d.Config.Auth.Issuer, d.Config.Auth.TokenTTL)
	if err != nil {
		return err
	}
	d.Tokens = tokens
	d.AuthMiddleware = middleware.NewAuthMiddleware(tokens, d.Logger)
	return nil
}

// Start launches background workers and re-drives invocations stranded by a
// previous run
func (d *Dependencies) Start(ctx context.Context) error {
	if d.Pool != nil {
		if err := d.Pool.Start(); err != nil {
			return fmt.Errorf("failed to start dispatch pool: %w", err)
		}
	}

	report, err := d.Invocations.Recover(ctx, d.Config.Dispatch.RecoverLimit, d.Config.Dispatch.RecoverWorkers)
	if err != nil {
		return fmt.Errorf("recovery failed: %w", err)
	}
	if report.Failed > 0 {
		d.Logger.Warn("some stranded invocations could not be recovered", zap.Int("failed", report.Failed))
	}
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Pool != nil {
		timeout := 30 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.Pool.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop dispatch pool: %w", err))
		}
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	return nil
}

func (d *Dependencies) closeQuietly() {
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.RepoFactory != nil {
		_ = d.RepoFactory.Close()
	}
}

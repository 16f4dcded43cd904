package httpapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fahdr/ecomm-sub005/internal/billing"
	"github.com/fahdr/ecomm-sub005/internal/cache"
	"github.com/fahdr/ecomm-sub005/internal/config"
	"github.com/fahdr/ecomm-sub005/internal/dispatch"
	"github.com/fahdr/ecomm-sub005/internal/logging"
	"github.com/fahdr/ecomm-sub005/internal/providers"
	"github.com/fahdr/ecomm-sub005/internal/queue"
	"github.com/fahdr/ecomm-sub005/internal/ratelimit"
	"github.com/fahdr/ecomm-sub005/internal/storage"
	"github.com/fahdr/ecomm-sub005/internal/usage"
	"github.com/fahdr/ecomm-sub005/internal/utils"
)

// LedgerRecorder appends ledger entries and exposes the ones that failed
type LedgerRecorder interface {
	dispatch.UsageRecorder
	DeadLetterSource
}

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	Config *config.Config

	DB    *storage.DB
	Redis *storage.RedisClient // nil when Redis is disabled

	Providers *storage.ProviderRepository
	Overrides *storage.OverrideRepository
	Usage     *storage.UsageRepository

	Encryption *storage.Encryption // nil stores credentials in plaintext
	Registry   *providers.ProviderRegistry
	Dispatcher *dispatch.Dispatcher
	Reporter   *usage.Reporter
	Spend      billing.Service

	Ledger      LedgerRecorder
	UsageWorker *storage.UsageQueueWorker // nil when the ledger is written synchronously
	Sinks       []logging.Sink
}

// Option customizes NewDependencies
type Option func(*options)

type options struct {
	factory     *providers.ProviderFactory
	redisClient *redis.Client
}

// WithProviderFactory replaces the built-in adapter table
func WithProviderFactory(f *providers.ProviderFactory) Option {
	return func(o *options) { o.factory = f }
}

// WithRedisClient uses an existing client instead of dialing cfg.Redis
func WithRedisClient(client *redis.Client) Option {
	return func(o *options) { o.redisClient = client }
}

// NewDependencies connects every backing service and starts the background
// workers. On error everything opened so far is closed again.
func NewDependencies(ctx context.Context, cfg *config.Config, opts ...Option) (deps *Dependencies, err error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.factory == nil {
		o.factory = providers.NewProviderFactory()
	}

	logger := utils.NewLogger("dependencies")
	deps = &Dependencies{Config: cfg}
	defer func() {
		if err != nil {
			_ = deps.Close(context.Background())
			deps = nil
		}
	}()

	// Database
	dbConfig := storage.DefaultDBConfig()
	dbConfig.Driver = cfg.Database.Driver
	dbConfig.URL = cfg.Database.URL
	dbConfig.MaxOpenConns = cfg.Database.MaxOpenConns
	dbConfig.MaxIdleConns = cfg.Database.MaxIdleConns
	dbConfig.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	dbConfig.ConnMaxIdleTime = cfg.Database.ConnMaxIdleTime
	dbConfig.OverrideCacheSize = cfg.Cache.OverrideCacheSize
	dbConfig.OverrideCacheTTL = cfg.Cache.OverrideCacheTTL

	if deps.DB, err = storage.NewDB(dbConfig); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err = deps.DB.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	deps.Providers = deps.DB.NewProviderRepository()
	deps.Overrides = deps.DB.NewOverrideRepository()
	deps.Usage = deps.DB.NewUsageRepository()

	// Redis
	switch {
	case o.redisClient != nil:
		deps.Redis = storage.NewRedisClientFrom(o.redisClient)
	case cfg.Redis.Enabled:
		redisConfig := storage.DefaultRedisConfig()
		redisConfig.Address = cfg.Redis.Address
		redisConfig.Password = cfg.Redis.Password
		redisConfig.DB = cfg.Redis.DB
		redisConfig.PoolSize = cfg.Redis.PoolSize
		redisConfig.MinIdleConns = cfg.Redis.MinIdleConns
		redisConfig.DialTimeout = cfg.Redis.DialTimeout
		redisConfig.ReadTimeout = cfg.Redis.ReadTimeout
		redisConfig.WriteTimeout = cfg.Redis.WriteTimeout

		if deps.Redis, err = storage.NewRedisClient(redisConfig); err != nil {
			return nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
	default:
		logger.Warn("Redis disabled, rate limits, cache and spend counters are local to this instance")
	}

	// Credentials
	if cfg.Gateway.EncryptionKey != "" {
		if deps.Encryption, err = storage.NewEncryptionFromHex(cfg.Gateway.EncryptionKey); err != nil {
			return nil, fmt.Errorf("failed to initialize encryption: %w", err)
		}
	} else {
		logger.Warn("GATEWAY_ENCRYPTION_KEY not set, provider credentials are stored in plaintext")
	}

	if cfg.Gateway.ProvidersFile != "" {
		if err = seedProviders(ctx, cfg.Gateway.ProvidersFile, deps.Providers, deps.Encryption); err != nil {
			return nil, err
		}
	}

	// Provider registry
	registryConfig := providers.RegistryConfig{
		Source:         deps.Providers,
		Factory:        o.factory,
		ReloadInterval: cfg.Provider.ReloadInterval,
	}
	if deps.Encryption != nil {
		registryConfig.Decrypter = deps.Encryption
	}
	if deps.Registry, err = providers.NewProviderRegistry(ctx, registryConfig); err != nil {
		return nil, fmt.Errorf("failed to initialize provider registry: %w", err)
	}
	deps.Registry.Start()

	// Shared state: rate limits, response cache, spend counters
	var (
		limiter       dispatch.RateLimiter
		responseCache cache.Cache
	)
	if deps.Redis != nil {
		client := deps.Redis.Client()
		limiter = ratelimit.NewRedisLimiter(client)
		responseCache = cache.NewRedisCache(client)
		deps.Spend = billing.NewRedisBillingService(client)
	} else {
		limiter = ratelimit.NewMemoryLimiter()
		responseCache = cache.NewMemoryCache(cfg.ResponseCache.Size)
		deps.Spend = billing.NewMemoryBillingService()
	}

	// Ledger consumers
	consumers := []storage.UsageConsumer{billing.NewTracker(deps.Spend)}
	if cfg.RequestLogger.Enabled {
		archive, archiveErr := logging.NewFileArchive(logging.FileArchiveConfig{
			FilePathTemplate: cfg.RequestLogger.FilePathTemplate,
			MaxSize:          cfg.RequestLogger.MaxSize,
			MaxFiles:         cfg.RequestLogger.MaxFiles,
			BufferSize:       cfg.RequestLogger.BufferSize,
			FlushInterval:    cfg.RequestLogger.FlushInterval,
		})
		if archiveErr != nil {
			return nil, fmt.Errorf("failed to initialize ledger file archive: %w", archiveErr)
		}
		deps.Sinks = append(deps.Sinks, archive)
		consumers = append(consumers, archive)
	}
	if cfg.LoggingSink.Enabled {
		sink, sinkErr := logging.NewS3Sink(ctx, logging.S3SinkConfig{
			BufferSize:    cfg.LoggingSink.BufferSize,
			FlushSize:     cfg.LoggingSink.FlushSize,
			FlushInterval: cfg.LoggingSink.FlushInterval,
			S3Bucket:      cfg.LoggingSink.S3Bucket,
			S3Region:      cfg.LoggingSink.S3Region,
			S3Prefix:      cfg.LoggingSink.S3Prefix,
			PodName:       cfg.LoggingSink.PodName,
		})
		if sinkErr != nil {
			return nil, fmt.Errorf("failed to initialize S3 ledger sink: %w", sinkErr)
		}
		deps.Sinks = append(deps.Sinks, sink)
		consumers = append(consumers, sink)
	}

	// Ledger writer
	if cfg.Ledger.Async {
		queueConfig := queue.DefaultConfig(cfg.Ledger.QueueName)
		queueConfig.BatchSize = cfg.Ledger.BatchSize
		queueConfig.BatchTimeout = cfg.Ledger.BatchTimeout
		queueConfig.MaxRetries = cfg.Ledger.MaxRetries
		queueConfig.RetryBackoff = cfg.Ledger.RetryBackoff

		var (
			q   queue.Queue
			dlq queue.DeadLetterQueue
		)
		if deps.Redis != nil {
			if q, err = queue.NewRedisQueue(deps.Redis.Client(), queueConfig); err != nil {
				return nil, fmt.Errorf("failed to create usage queue: %w", err)
			}
			if dlq, err = queue.NewRedisDeadLetterQueue(deps.Redis.Client(), queueConfig); err != nil {
				return nil, fmt.Errorf("failed to create usage DLQ: %w", err)
			}
		} else {
			q = queue.NewMemoryQueue(queueConfig)
			dlq = queue.NewMemoryDeadLetterQueue()
		}

		deps.UsageWorker = storage.NewUsageQueueWorker(q, dlq, deps.Usage, queueConfig, consumers...)
		deps.UsageWorker.Start(context.Background())
		deps.Ledger = deps.UsageWorker
	} else {
		deps.Ledger = storage.NewSyncUsageRecorder(deps.Usage, consumers...)
	}

	deps.Dispatcher = dispatch.NewDispatcher(deps.Registry, deps.Overrides, limiter, responseCache, deps.Ledger, dispatch.Config{
		RequestTimeout:   cfg.Provider.RequestTimeout,
		CacheTTL:         cfg.ResponseCache.TTL,
		DefaultMaxTokens: cfg.Gateway.DefaultMaxTokens,
	})
	deps.Reporter = usage.NewReporter(deps.Usage)

	return deps, nil
}

// seedProviders upserts the providers listed in the seed file. A seed without
// a credential in the environment keeps the stored one.
func seedProviders(ctx context.Context, path string, repo *storage.ProviderRepository, encryption *storage.Encryption) error {
	seeds, err := config.LoadProviderSeeds(path)
	if err != nil {
		return err
	}

	logger := utils.NewLogger("provider-seed")
	for _, seed := range seeds {
		provider := seed.ToProvider()

		if credential := seed.Credential(); credential != "" {
			if encryption != nil {
				if credential, err = encryption.EncryptCredential(credential); err != nil {
					return fmt.Errorf("failed to encrypt credential of %s: %w", seed.Name, err)
				}
			}
			provider.EncryptedCredential = credential
		} else {
			existing, getErr := repo.GetByName(ctx, seed.Name)
			switch {
			case getErr == nil:
				provider.EncryptedCredential = existing.EncryptedCredential
			case !errors.Is(getErr, storage.ErrProviderNotFound):
				return getErr
			}
			if seed.CredentialEnv != "" && provider.EncryptedCredential == "" {
				logger.Warn("Credential variable is empty", "provider", seed.Name, "env", seed.CredentialEnv)
			}
		}

		if err := repo.Upsert(ctx, provider); err != nil {
			return err
		}
		logger.Info("Provider seeded", "provider", seed.Name, "enabled", provider.Enabled)
	}
	return nil
}

// HealthChecks returns the checks served by /health
func (d *Dependencies) HealthChecks() map[string]HealthCheck {
	checks := map[string]HealthCheck{
		"database": d.DB.Health,
	}
	if d.Redis != nil {
		checks["redis"] = d.Redis.Health
	}
	return checks
}

// Close drains the ledger and releases every resource, in dependency order
func (d *Dependencies) Close(ctx context.Context) error {
	var errs []error

	if d.UsageWorker != nil {
		if err := d.UsageWorker.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("usage worker: %w", err))
		}
	}
	for _, sink := range d.Sinks {
		if err := sink.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("ledger sink: %w", err))
		}
	}
	if d.Registry != nil {
		if err := d.Registry.Close(); err != nil {
			errs = append(errs, fmt.Errorf("provider registry: %w", err))
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	return errors.Join(errs...)
}

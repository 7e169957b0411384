package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/infrastructure/config"
)

// StoreFactory builds the run and idempotency stores. Both share one Redis
// client when Redis is enabled and reachable.
type StoreFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
	pingTimeout           time.Duration

	once      sync.Once
	client    *redis.Client
	clientErr error
	closers   []func() error
}

// StoreFactoryOption is a functional option for configuring the factory
type StoreFactoryOption func(*StoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) StoreFactoryOption {
	return func(f *StoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to in-memory stores when Redis is unavailable.
// Default is true.
func WithInMemoryFallback(allow bool) StoreFactoryOption {
	return func(f *StoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewStoreFactory creates a new factory
func NewStoreFactory(cfg config.RedisConfig, opts ...StoreFactoryOption) *StoreFactory {
	f := &StoreFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
		pingTimeout:           5 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *StoreFactory) redisClient() (*redis.Client, error) {
	f.once.Do(func() {
		if !f.redisConfig.Enabled {
			f.clientErr = fmt.Errorf("redis disabled in configuration")
			return
		}
		client := redis.NewClient(&redis.Options{
			Addr:     f.redisConfig.Addr(),
			Password: f.redisConfig.Password,
			DB:       f.redisConfig.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), f.pingTimeout)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			f.clientErr = fmt.Errorf("failed to connect to Redis: %w", err)
			return
		}
		f.client = client
		f.closers = append(f.closers, client.Close)
	})
	return f.client, f.clientErr
}

// CreateRunStore returns a Redis run store, or an in-memory one when Redis
// is disabled or unreachable and fallback is allowed
func (f *StoreFactory) CreateRunStore(retention time.Duration) (catalogsync.RunStore, error) {
	client, err := f.redisClient()
	if err == nil {
		f.logger.Info("using Redis sync run store")
		return NewRedisRunStore(client, "", retention), nil
	}
	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for sync run store but unavailable: %w", err)
	}
	if f.redisConfig.Enabled {
		f.logger.Warn("Redis unavailable, falling back to in-memory sync run store. "+
			"Run progress is only visible on the instance that executes the run.",
			zap.Error(err),
		)
	}
	store := NewInMemoryRunStore(retention)
	f.closers = append(f.closers, store.Close)
	return store, nil
}

// CreateIdempotencyStore returns the store used to drop repeated webhook deliveries
func (f *StoreFactory) CreateIdempotencyStore() (catalogsync.IdempotencyStore, error) {
	client, err := f.redisClient()
	if err == nil {
		return NewRedisIdempotencyStore(client, ""), nil
	}
	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for idempotency but unavailable: %w", err)
	}
	store := NewInMemoryIdempotencyStore()
	f.closers = append(f.closers, store.Close)
	return store, nil
}

// Close releases the Redis client and stops in-memory cleanup loops
func (f *StoreFactory) Close() error {
	var firstErr error
	for _, closeFn := range f.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.closers = nil
	return firstErr
}

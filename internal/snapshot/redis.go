package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/cenkalti/backoff/v4"
	"github.com/iwvelando/mortgage-calculator/pkg/constants"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig holds the Redis connection settings, read from the environment.
type RedisConfig struct {
	Addr           string        `env:"MORTGAGE_REDIS_ADDR" envDefault:"localhost:6379"`
	Password       string        `env:"MORTGAGE_REDIS_PASSWORD"`
	DB             int           `env:"MORTGAGE_REDIS_DB" envDefault:"0"`
	Key            string        `env:"MORTGAGE_REDIS_KEY"`
	TTL            time.Duration `env:"MORTGAGE_REDIS_TTL" envDefault:"0s"`
	ConnectTimeout time.Duration `env:"MORTGAGE_REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
}

// LoadRedisConfig parses the MORTGAGE_REDIS_* environment variables.
func LoadRedisConfig() (RedisConfig, error) {
	var cfg RedisConfig
	if err := env.Parse(&cfg); err != nil {
		return RedisConfig{}, fmt.Errorf("failed to parse redis config: %w", err)
	}
	if cfg.Key == "" {
		cfg.Key = constants.SnapshotKey
	}
	return cfg, nil
}

// RedisStore keeps the snapshot as a JSON string under a single Redis key.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisStore connects to Redis, retrying with exponential backoff until
// the server answers PING or cfg.ConnectTimeout elapses.
func NewRedisStore(ctx context.Context, logger *zap.Logger, cfg RedisConfig) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	retryPolicy := backoff.NewExponentialBackOff()
	retryPolicy.MaxElapsedTime = cfg.ConnectTimeout
	retryPolicy.MaxInterval = 5 * time.Second

	logger.Info("connecting to redis",
		zap.String("op", "snapshot.NewRedisStore"),
		zap.String("addr", cfg.Addr),
	)

	err := backoff.RetryNotify(
		func() error {
			return client.Ping(ctx).Err()
		},
		backoff.WithContext(retryPolicy, ctx),
		func(err error, next time.Duration) {
			logger.Warn("redis not ready, retrying",
				zap.String("op", "snapshot.NewRedisStore"),
				zap.Duration("retryIn", next),
				zap.Error(err),
			)
		},
	)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return NewRedisStoreFromClient(client, cfg.Key, cfg.TTL), nil
}

// NewRedisStoreFromClient wraps an existing client. A zero ttl keeps the
// snapshot until it is cleared.
func NewRedisStoreFromClient(client *redis.Client, key string, ttl time.Duration) *RedisStore {
	if key == "" {
		key = constants.SnapshotKey
	}
	return &RedisStore{client: client, key: key, ttl: ttl}
}

func (r *RedisStore) Load(ctx context.Context) (Snapshot, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return decode(data)
}

func (r *RedisStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := r.client.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set snapshot: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}

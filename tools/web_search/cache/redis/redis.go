package redis_cache

import (
	"context"
	"errors"
	"time"

	"github.com/mohammad-safakhou/deepsearch/config"
	"github.com/mohammad-safakhou/deepsearch/tools/web_search/cache"
	"github.com/redis/go-redis/v9"
)

type Store struct {
	client *redis.Client
}

func NewRedisCache(cfg config.RedisConfig) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
	return &Store{client: rdb}
}

var _ cache.Cache = (*Store)(nil)

// Ping checks connectivity; used at startup.
func (store *Store) Ping(ctx context.Context) error {
	return store.client.Ping(ctx).Err()
}

func (store *Store) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := store.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (store *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return store.client.Set(ctx, key, value, ttl).Err()
}

func (store *Store) Close() error {
	return store.client.Close()
}

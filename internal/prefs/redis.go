package prefs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/aacharya/internal/config"
	"github.com/redis/go-redis/v9"
)

// redisStore keeps all slots as fields of a single hash.
type redisStore struct {
	client *redis.Client
	key    string
}

// OpenRedis connects to the configured redis and verifies it with a PING.
func OpenRedis(ctx context.Context, cfg config.PreferencesConfig, log *slog.Logger) (Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	log.Debug("preferences store opened", slog.String("backend", "redis"), slog.String("addr", cfg.RedisAddr))
	return newRedisStore(client, cfg.RedisKey), nil
}

func newRedisStore(client *redis.Client, key string) *redisStore {
	if key == "" {
		key = "aacharya:prefs"
	}
	return &redisStore{client: client, key: key}
}

func (r *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.HGet(ctx, r.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read preference %s: %w", key, err)
	}
	return value, true, nil
}

func (r *redisStore) Set(ctx context.Context, key, value string) error {
	if err := r.client.HSet(ctx, r.key, key, value).Err(); err != nil {
		return fmt.Errorf("write preference %s: %w", key, err)
	}
	return nil
}

func (r *redisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.HDel(ctx, r.key, key).Err(); err != nil {
		return fmt.Errorf("delete preference %s: %w", key, err)
	}
	return nil
}

func (r *redisStore) Close() error {
	return r.client.Close()
}

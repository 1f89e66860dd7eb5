package optionstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/edgecomet/cfpurge/internal/common/configtypes"
	"github.com/edgecomet/cfpurge/internal/common/redis"
)

// RedisStore keeps each option as a plain Redis string under a key prefix.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(cfg configtypes.OptionRedisConfig, logger *zap.Logger) (*RedisStore, error) {
	client, err := redis.NewClient(&cfg.RedisConfig, logger)
	if err != nil {
		return nil, err
	}
	return NewRedisStoreWithClient(client, cfg.KeyPrefix), nil
}

// NewRedisStoreWithClient wraps an already connected client.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) Get(ctx context.Context, name string) (string, bool, error) {
	value, found, err := r.client.Get(ctx, redis.OptionKey(r.prefix, name))
	if err != nil {
		return "", false, fmt.Errorf("failed to read option %s: %w", name, err)
	}
	return value, found, nil
}

func (r *RedisStore) Add(ctx context.Context, name, value string) (bool, error) {
	written, err := r.client.SetNX(ctx, redis.OptionKey(r.prefix, name), value, 0)
	if err != nil {
		return false, fmt.Errorf("failed to add option %s: %w", name, err)
	}
	return written, nil
}

func (r *RedisStore) Delete(ctx context.Context, name string) error {
	if err := r.client.Del(ctx, redis.OptionKey(r.prefix, name)); err != nil {
		return fmt.Errorf("failed to delete option %s: %w", name, err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jgoulah/meterfetch/pkg/models"
)

// DefaultRedisPrefix namespaces cache keys in a shared Redis
const DefaultRedisPrefix = "meterfetch:raw:"

// Redis stores payloads as plain string values without expiry
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an existing client
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Lookup(ctx context.Context, key Key) (models.RawPayload, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return data, true, nil
}

// Store uses SETNX, so the first writer wins
func (r *Redis) Store(ctx context.Context, key Key, payload models.RawPayload) error {
	if _, err := r.client.SetNX(ctx, r.prefix+key.String(), []byte(payload), 0).Result(); err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	return nil
}

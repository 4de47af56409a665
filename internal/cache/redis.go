package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"solana-activity-engine/internal/domain"
)

const defaultKeyPrefix = "tokeninfo:"

// RedisCache implements TokenInfoCache on top of Redis.
// Entries are stored as JSON with a per-key expiry.
type RedisCache struct {
	client    redis.UniversalClient
	ttl       time.Duration
	keyPrefix string
}

// NewRedisCache wraps an existing client. ttl <= 0 stores entries without expiry.
func NewRedisCache(client redis.UniversalClient, ttl time.Duration, keyPrefix string) *RedisCache {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisCache{
		client:    client,
		ttl:       ttl,
		keyPrefix: keyPrefix,
	}
}

// NewRedisClient creates a client for a single Redis node.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

var _ TokenInfoCache = (*RedisCache)(nil)

func (r *RedisCache) key(mint string) string {
	return r.keyPrefix + mint
}

// Get reads and decodes the entry for mint.
func (r *RedisCache) Get(ctx context.Context, mint string) (*domain.TokenInfo, error) {
	data, err := r.client.Get(ctx, r.key(mint)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", mint, err)
	}

	var info domain.TokenInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decode token info %s: %w", mint, err)
	}
	return &info, nil
}

// Put encodes and stores info with the configured TTL.
func (r *RedisCache) Put(ctx context.Context, info domain.TokenInfo) error {
	if info.Mint == "" {
		return errors.New("token info: empty mint")
	}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode token info: %w", err)
	}
	if err := r.client.Set(ctx, r.key(info.Mint), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", info.Mint, err)
	}
	return nil
}

// Delete removes the entry for mint.
func (r *RedisCache) Delete(ctx context.Context, mint string) error {
	if err := r.client.Del(ctx, r.key(mint)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", mint, err)
	}
	return nil
}

// Ping checks connectivity.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (r *RedisCache) Close() error {
	return r.client.Close()
}

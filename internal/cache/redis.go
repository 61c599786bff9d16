package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fortuna/volleysync/internal/store"
	"github.com/redis/go-redis/v9"
)

// DefaultStatePrefix namespaces scrape-state keys
const DefaultStatePrefix = "volleysync:state:"

// RedisCache handles fast state storage
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache creates a new Redis cache connection
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return NewRedisCacheFrom(client), nil
}

// NewRedisCacheFrom wraps an existing client
func NewRedisCacheFrom(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, prefix: DefaultStatePrefix}
}

// Close closes the Redis connection
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// Client returns the underlying Redis client
func (rc *RedisCache) Client() *redis.Client {
	return rc.client
}

// HealthCheck pings Redis to verify connection
func (rc *RedisCache) HealthCheck(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// StateKey is the Redis key holding the state of a source key
func (rc *RedisCache) StateKey(key string) string {
	return rc.prefix + key
}

// LoadState reads the scrape state stored for key
func (rc *RedisCache) LoadState(ctx context.Context, key string) (store.ScrapeState, bool, error) {
	raw, err := rc.client.Get(ctx, rc.StateKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return store.ScrapeState{}, false, nil
	}
	if err != nil {
		return store.ScrapeState{}, false, fmt.Errorf("loading state %s: %w", key, err)
	}

	var st store.ScrapeState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return store.ScrapeState{}, false, fmt.Errorf("decoding state %s: %w", key, err)
	}
	return st, true, nil
}

// SaveState writes the scrape state for key without expiry
func (rc *RedisCache) SaveState(ctx context.Context, key string, st store.ScrapeState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding state %s: %w", key, err)
	}
	if err := rc.client.Set(ctx, rc.StateKey(key), raw, 0).Err(); err != nil {
		return fmt.Errorf("saving state %s: %w", key, err)
	}
	return nil
}

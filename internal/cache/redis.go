package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	processedPrefix  = "processed:"
	processingPrefix = "processing:"
	floorSuffix      = ":floor"

	// DefaultClaimTTL bounds how long a crashed worker blocks a message id.
	DefaultClaimTTL = 30 * time.Second
)

// KEYS[1] processed marker, KEYS[2] processing claim.
var claimScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
if redis.call("SET", KEYS[2], ARGV[1], "NX", "PX", ARGV[2]) then
	return 1
end
return 0
`)

// KEYS[1] cache entry, KEYS[2] version floor. ARGV: value, version, ttl ms.
var fillScript = redis.NewScript(`
local floor = redis.call("GET", KEYS[2])
if floor and tonumber(floor) > tonumber(ARGV[2]) then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
return 1
`)

// KEYS[1] cache entry, KEYS[2] version floor. ARGV: version, ttl ms.
var invalidateScript = redis.NewScript(`
local floor = redis.call("GET", KEYS[2])
if not floor or tonumber(floor) < tonumber(ARGV[1]) then
	redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[2])
end
redis.call("DEL", KEYS[1])
return 1
`)

type RedisCache struct {
	client   *redis.Client
	ttl      time.Duration
	dedupTTL time.Duration
	claimTTL time.Duration
	logger   *zap.Logger
}

func NewRedisCache(host string, port int, ttl, dedupTTL time.Duration, logger *zap.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%d", host, port),
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("✅ Connected to Redis", zap.String("host", host), zap.Int("port", port))

	return NewRedisCacheWithClient(client, ttl, dedupTTL, logger), nil
}

func NewRedisCacheWithClient(client *redis.Client, ttl, dedupTTL time.Duration, logger *zap.Logger) *RedisCache {
	return &RedisCache{
		client:   client,
		ttl:      ttl,
		dedupTTL: dedupTTL,
		claimTTL: DefaultClaimTTL,
		logger:   logger,
	}
}

// Get retrieves value from cache
func (c *RedisCache) Get(ctx context.Context, key string, dest any) error {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return err // Returns redis.Nil if key doesn't exist
	}

	return json.Unmarshal(val, dest)
}

// Set stores value in cache
func (c *RedisCache) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Delete removes keys from cache
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

// SetVersioned stores a versioned value unless an invalidation already
// recorded a newer version for key. It reports whether the value was stored.
func (c *RedisCache) SetVersioned(ctx context.Context, key string, version int64, value any) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal value: %w", err)
	}

	n, err := fillScript.Run(ctx, c.client, []string{key, key + floorSuffix}, data, version, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to set %s: %w", key, err)
	}
	return n == 1, nil
}

// Invalidate deletes key and records version as the oldest one a later
// SetVersioned may store. The floor lives as long as a cache entry.
func (c *RedisCache) Invalidate(ctx context.Context, key string, version int64) error {
	if err := invalidateScript.Run(ctx, c.client, []string{key, key + floorSuffix}, version, c.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("failed to invalidate %s: %w", key, err)
	}
	return nil
}

// Claim takes the processing lock for a message id. It returns false when
// the id was already applied or another worker holds the lock.
func (c *RedisCache) Claim(ctx context.Context, messageID string) (bool, error) {
	keys := []string{processedPrefix + messageID, processingPrefix + messageID}
	n, err := claimScript.Run(ctx, c.client, keys, time.Now().UTC().Format(time.RFC3339), c.claimTTL.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to claim message: %w", err)
	}
	return n == 1, nil
}

// MarkProcessed records a message id for dedupTTL and drops its claim.
func (c *RedisCache) MarkProcessed(ctx context.Context, messageID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, processedPrefix+messageID, time.Now().UTC().Format(time.RFC3339), c.dedupTTL)
		pipe.Del(ctx, processingPrefix+messageID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to mark message processed: %w", err)
	}
	return nil
}

// Release drops the claim so a redelivered copy can be applied.
func (c *RedisCache) Release(ctx context.Context, messageID string) error {
	if err := c.client.Del(ctx, processingPrefix+messageID).Err(); err != nil {
		return fmt.Errorf("failed to release message claim: %w", err)
	}
	return nil
}

// IsMiss reports a cache miss from Get.
func IsMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/therealutkarshpriyadarshi/render/internal/config"
	"github.com/therealutkarshpriyadarshi/render/pkg/models"
)

const defaultProxyTTL = 24 * time.Hour

// Cache provides caching functionality using Redis
type Cache struct {
	client   *redis.Client
	proxyTTL time.Duration
}

// NewCache creates a new cache instance
func NewCache(cfg config.RedisConfig) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := cfg.ProxyTTL
	if ttl <= 0 {
		ttl = defaultProxyTTL
	}

	return &Cache{client: client, proxyTTL: ttl}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks the connection
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Proxy URL Operations

// source URLs can be arbitrarily long, so keys use their digest
func proxyKey(originalURL string) string {
	sum := sha256.Sum256([]byte(originalURL))
	return "proxy:url:" + hex.EncodeToString(sum[:16])
}

// GetReadyProxyURLs returns cached accelerated URLs keyed by source URL.
// Misses are absent from the result.
func (c *Cache) GetReadyProxyURLs(ctx context.Context, urls []string) (map[string]string, error) {
	out := make(map[string]string, len(urls))
	if len(urls) == 0 {
		return out, nil
	}

	keys := make([]string, len(urls))
	for i, u := range urls {
		keys[i] = proxyKey(u)
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get proxy urls from cache: %w", err)
	}

	for i, v := range values {
		if s, ok := v.(string); ok && s != "" {
			out[urls[i]] = s
		}
	}
	return out, nil
}

// SetReadyProxyURL caches the accelerated URL of a ready proxy
func (c *Cache) SetReadyProxyURL(ctx context.Context, originalURL, proxyURL string) error {
	return c.client.Set(ctx, proxyKey(originalURL), proxyURL, c.proxyTTL).Err()
}

// DeleteProxyURLs evicts cached proxy URLs
func (c *Cache) DeleteProxyURLs(ctx context.Context, urls ...string) error {
	if len(urls) == 0 {
		return nil
	}
	keys := make([]string, len(urls))
	for i, u := range urls {
		keys[i] = proxyKey(u)
	}
	return c.client.Del(ctx, keys...).Err()
}

// Render Job Operations

// SetRenderJob caches a render job
func (c *Cache) SetRenderJob(ctx context.Context, job *models.RenderJob, ttl time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal render job: %w", err)
	}

	key := fmt.Sprintf("render:%s", job.RenderID)
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetRenderJob retrieves a cached render job. A miss returns nil, nil.
func (c *Cache) GetRenderJob(ctx context.Context, renderID string) (*models.RenderJob, error) {
	key := fmt.Sprintf("render:%s", renderID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get render job from cache: %w", err)
	}

	var job models.RenderJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal render job: %w", err)
	}

	return &job, nil
}

// Locking Operations for Distributed Systems

// AcquireLock attempts to acquire a distributed lock
func (c *Cache) AcquireLock(ctx context.Context, resource string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:%s", resource)
	return c.client.SetNX(ctx, key, "locked", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Cache) ReleaseLock(ctx context.Context, resource string) error {
	key := fmt.Sprintf("lock:%s", resource)
	return c.client.Del(ctx, key).Err()
}

// Rate Limiting Operations

// CheckRateLimit counts a hit against key in a fixed window and reports
// whether it is still within limit
func (c *Cache) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	rateLimitKey := fmt.Sprintf("ratelimit:%s", key)

	count, err := c.client.Incr(ctx, rateLimitKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		if err := c.client.Expire(ctx, rateLimitKey, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set expiry: %w", err)
		}
	}

	return count <= limit, nil
}

package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss indicates a cache miss.
var ErrCacheMiss = errors.New("cache miss")

// Cache stores completions by key.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// MemoryCache is an in-process LRU cache.
type MemoryCache struct {
	cache *lru.Cache[string, string]
}

// NewMemoryCache creates an LRU cache holding up to size completions.
func NewMemoryCache(size int) (*MemoryCache, error) {
	if size <= 0 {
		size = 512
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &MemoryCache{cache: c}, nil
}

func (m *MemoryCache) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.cache.Get(key); ok {
		return v, nil
	}
	return "", ErrCacheMiss
}

func (m *MemoryCache) Set(_ context.Context, key, value string) error {
	m.cache.Add(key, value)
	return nil
}

func (m *MemoryCache) Close() error {
	m.cache.Purge()
	return nil
}

// RedisCache shares completions between processes.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

// NewRedisCache connects and pings Redis.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "catalogmatch:llm:"
	}
	return newRedisCache(client, prefix, cfg.TTL), nil
}

func newRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

func (r *RedisCache) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.prefix+key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

// CachedModel serves repeated prompts from a Cache. Cache errors are
// logged and fall through to the model.
type CachedModel struct {
	inner  LanguageModel
	cache  Cache
	model  string
	logger *slog.Logger
}

var _ LanguageModel = (*CachedModel)(nil)

// NewCachedModel wraps inner. model namespaces the keys.
func NewCachedModel(inner LanguageModel, cache Cache, model string) *CachedModel {
	return &CachedModel{
		inner:  inner,
		cache:  cache,
		model:  model,
		logger: slog.Default().With("component", "llm_cache"),
	}
}

// CacheKey is the hex sha256 of model and prompt.
func CacheKey(model, prompt string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + prompt))
	return hex.EncodeToString(sum[:])
}

// Complete returns a cached completion or calls the model and stores it.
func (c *CachedModel) Complete(ctx context.Context, prompt string) (string, error) {
	key := CacheKey(c.model, prompt)

	cached, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		c.logger.Debug("llm_cache_hit", slog.String("purpose", PurposeFrom(ctx)))
		return cached, nil
	case !errors.Is(err, ErrCacheMiss):
		c.logger.Warn("llm_cache_get_failed", slog.String("error", err.Error()))
	}

	out, err := c.inner.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}

	if err := c.cache.Set(ctx, key, out); err != nil {
		c.logger.Warn("llm_cache_set_failed", slog.String("error", err.Error()))
	}
	return out, nil
}

// Close closes the cache and the inner model.
func (c *CachedModel) Close() error {
	return errors.Join(c.cache.Close(), Close(c.inner))
}

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/helixmapr/helixmapr/internal/config"
	registrycache "github.com/helixmapr/helixmapr/internal/registry/cache"
	goredis "github.com/redis/go-redis/v9"
)

const defaultTTL = 10 * time.Minute

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.SchemaCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: HELIXMAPR_REDIS_URL is required")
	}
	ttl := cfg.SchemaCacheTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return LoadFromURLWithTTL(ctx, cfg.RedisURL, ttl)
}

// LoadFromURL creates a SchemaCache from a Redis-compatible URL.
func LoadFromURL(ctx context.Context, redisURL string) (registrycache.SchemaCache, error) {
	return LoadFromURLWithTTL(ctx, redisURL, defaultTTL)
}

// LoadFromURLWithTTL creates a cache with an explicit schema TTL.
func LoadFromURLWithTTL(ctx context.Context, redisURL string, ttl time.Duration) (registrycache.SchemaCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisSchemaCache{client: client, ttl: ttl}, nil
}

type redisSchemaCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func schemaKey(databaseID uint) string {
	return fmt.Sprintf("field-schema:%d", databaseID)
}

func (c *redisSchemaCache) Available() bool {
	return true
}

func (c *redisSchemaCache) Get(ctx context.Context, databaseID uint) (*registrycache.CachedSchema, error) {
	data, err := c.client.Get(ctx, schemaKey(databaseID)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cached registrycache.CachedSchema
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return &cached, nil
}

func (c *redisSchemaCache) Set(ctx context.Context, databaseID uint, schema registrycache.CachedSchema, ttl time.Duration) error {
	data, err := json.Marshal(schema)
	if err != nil {
		return err
	}
	if ttl == 0 {
		ttl = c.ttl
	}
	return c.client.Set(ctx, schemaKey(databaseID), data, ttl).Err()
}

func (c *redisSchemaCache) Remove(ctx context.Context, databaseID uint) error {
	return c.client.Del(ctx, schemaKey(databaseID)).Err()
}

var _ registrycache.SchemaCache = (*redisSchemaCache)(nil)

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/mercado-scraper/internal/models"
)

const redisKeyPrefix = "search:"

// RedisClient is the subset of the redis client used by RedisCache.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisCache shares search results between scraper instances.
type RedisCache struct {
	client RedisClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(client RedisClient, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "redis_cache"),
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]*models.Product, bool, error) {
	data, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached search: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached search: %w", err)
	}
	products, err := models.ProductsFromRecords(doc.Products)
	if err != nil {
		return nil, false, err
	}

	c.logger.Debug("cache hit", "key", key, "products", len(products))
	return products, true, nil
}

func (c *RedisCache) Put(ctx context.Context, e Entry) error {
	data, err := json.Marshal(document{
		QueryType: e.QueryType,
		Params:    e.Params,
		Products:  models.Records(e.Products),
		CreatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode cached search: %w", err)
	}

	if err := c.client.Set(ctx, redisKeyPrefix+e.Key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store cached search: %w", err)
	}

	c.logger.Debug("cache stored", "key", e.Key, "products", len(e.Products))
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Package cache keeps catalog lookups in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vcscsvcscs/rxtag/internal/repository"
	"github.com/vcscsvcscs/rxtag/pkg/model"
	"go.uber.org/zap"
)

const keyPrefix = "rxtag:catalog:"

// missMarker is stored for names the catalog does not know
const missMarker = "null"

// CatalogStore is the lookup the cache sits in front of
type CatalogStore interface {
	FindByName(ctx context.Context, name string) (*model.CatalogEntry, error)
}

// Options configures the Redis client
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewClient creates a Redis client and verifies the connection
func NewClient(ctx context.Context, o Options) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         o.Addr,
		Password:     o.Password,
		DB:           o.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// CachedCatalog is a read-through cache over a CatalogStore. Misses are cached
// too. Redis failures fall back to the store.
type CachedCatalog struct {
	store  CatalogStore
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedCatalog wraps store with a Redis cache
func NewCachedCatalog(store CatalogStore, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedCatalog {
	return &CachedCatalog{
		store:  store,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

func key(name string) string {
	return keyPrefix + name
}

// FindByName returns the cached entry for name, loading it from the store on a miss
func (c *CachedCatalog) FindByName(ctx context.Context, name string) (*model.CatalogEntry, error) {
	val, err := c.rdb.Get(ctx, key(name)).Result()
	switch {
	case err == nil:
		if val == missMarker {
			return nil, repository.ErrNotFound
		}
		var entry model.CatalogEntry
		if jerr := json.Unmarshal([]byte(val), &entry); jerr == nil {
			return &entry, nil
		}
		c.logger.Warn("dropping unreadable catalog cache entry", zap.String("name", name))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("catalog cache unavailable", zap.Error(err), zap.String("name", name))
	}

	entry, err := c.store.FindByName(ctx, name)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	value := missMarker
	if entry != nil {
		b, merr := json.Marshal(entry)
		if merr != nil {
			return entry, nil
		}
		value = string(b)
	}
	if serr := c.rdb.Set(ctx, key(name), value, c.ttl).Err(); serr != nil {
		c.logger.Warn("failed to populate catalog cache", zap.Error(serr), zap.String("name", name))
	}

	return entry, err
}

// Invalidate drops the cached lookup for name
func (c *CachedCatalog) Invalidate(ctx context.Context, name string) error {
	if err := c.rdb.Del(ctx, key(name)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate catalog cache: %w", err)
	}
	return nil
}

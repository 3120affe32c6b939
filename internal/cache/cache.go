package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const intelligenceTTL = 5 * time.Minute

// Cache is an optional Redis read cache for price-intelligence lookups.
// A nil *Cache is valid and disables caching, so callers never branch on
// whether Redis is configured.
type Cache struct {
	rdb *redis.Client
}

// New connects to Redis at addr, or returns nil (caching disabled) when addr
// is empty.
func New(addr string) (*Cache, error) {
	if addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Cache{rdb: rdb}, nil
}

func intelligenceKey(tenantID string, vendorID uint, itemNumber string) string {
	return fmt.Sprintf("pi:intel:%s:%d:%s", tenantID, vendorID, itemNumber)
}

// GetIntelligence returns the cached payload for the key, if any.
func (c *Cache) GetIntelligence(ctx context.Context, tenantID string, vendorID uint, itemNumber string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	body, err := c.rdb.Get(ctx, intelligenceKey(tenantID, vendorID, itemNumber)).Bytes()
	if err != nil {
		return nil, false
	}
	return body, true
}

// SetIntelligence stores the payload for the key with a short TTL.
func (c *Cache) SetIntelligence(ctx context.Context, tenantID string, vendorID uint, itemNumber string, body []byte) {
	if c == nil {
		return
	}
	c.rdb.Set(ctx, intelligenceKey(tenantID, vendorID, itemNumber), body, intelligenceTTL)
}

// InvalidateIntelligence drops the cached payloads for the given keys after
// an ingest touched them. Fan-out means sibling keys of the same canonical
// item change too; callers pass every touched key.
func (c *Cache) InvalidateIntelligence(ctx context.Context, keys []string) {
	if c == nil || len(keys) == 0 {
		return
	}
	c.rdb.Del(ctx, keys...)
}

// IntelligenceKey builds the cache key for one (tenant, vendor, item).
func IntelligenceKey(tenantID string, vendorID uint, itemNumber string) string {
	return intelligenceKey(tenantID, vendorID, itemNumber)
}

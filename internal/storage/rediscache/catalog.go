// Package rediscache layers a read-through Redis cache over the catalog
// repositories. Catalog rows change rarely and every order create/update
// resolves each scanned barcode, so hits skip Postgres entirely.
package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kioskpay/smart-checkout/internal/domain/catalog"
)

const (
	itemKeyPrefix   = "catalog:item:"
	couponKeyPrefix = "catalog:coupon:"
)

// New creates a Redis client for the given address.
func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

var _ catalog.ItemRepository = (*ItemCache)(nil)

// ItemCache is a read-through cache in front of an ItemRepository.
// Cache failures degrade to the underlying repository and are logged,
// never surfaced; not-found results are not cached.
type ItemCache struct {
	next catalog.ItemRepository
	rdb  *redis.Client
	ttl  time.Duration
	lg   *zap.Logger
}

// NewItemCache wraps next with a Redis cache using the given TTL.
func NewItemCache(next catalog.ItemRepository, rdb *redis.Client, ttl time.Duration, lg *zap.Logger) *ItemCache {
	return &ItemCache{next: next, rdb: rdb, ttl: ttl, lg: lg}
}

func (c *ItemCache) GetByBarcode(ctx context.Context, barcode string) (*catalog.Item, error) {
	key := itemKeyPrefix + barcode

	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var it catalog.Item
		if err := json.Unmarshal(raw, &it); err == nil {
			return &it, nil
		}
		c.lg.Warn("corrupt item cache entry", zap.String("key", key))
	} else if err != redis.Nil {
		c.lg.Warn("item cache read failed", zap.String("key", key), zap.Error(err))
	}

	it, err := c.next.GetByBarcode(ctx, barcode)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(it); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.lg.Warn("item cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return it, nil
}

var _ catalog.CouponRepository = (*CouponCache)(nil)

// CouponCache is a read-through cache in front of a CouponRepository.
// Only by-id lookups are cached; ListActive passes through.
type CouponCache struct {
	next catalog.CouponRepository
	rdb  *redis.Client
	ttl  time.Duration
	lg   *zap.Logger
}

// NewCouponCache wraps next with a Redis cache using the given TTL.
func NewCouponCache(next catalog.CouponRepository, rdb *redis.Client, ttl time.Duration, lg *zap.Logger) *CouponCache {
	return &CouponCache{next: next, rdb: rdb, ttl: ttl, lg: lg}
}

func (c *CouponCache) GetByID(ctx context.Context, id string) (*catalog.Coupon, error) {
	key := couponKeyPrefix + id

	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var cp catalog.Coupon
		if err := json.Unmarshal(raw, &cp); err == nil {
			return &cp, nil
		}
		c.lg.Warn("corrupt coupon cache entry", zap.String("key", key))
	} else if err != redis.Nil {
		c.lg.Warn("coupon cache read failed", zap.String("key", key), zap.Error(err))
	}

	cp, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(cp); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.lg.Warn("coupon cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return cp, nil
}

func (c *CouponCache) ListActive(ctx context.Context) ([]catalog.Coupon, error) {
	return c.next.ListActive(ctx)
}

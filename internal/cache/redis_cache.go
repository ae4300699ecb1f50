package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"tokopos/backend/internal/domain"
)

type RedisStockCache struct {
	client redis.Cmdable
	closer func() error
}

func NewRedisStockCache(addr string, password string, db int) *RedisStockCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisStockCache{client: client, closer: client.Close}
}

func (c *RedisStockCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisStockCache) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

func (c *RedisStockCache) Get(ctx context.Context, warehouseID int64) ([]domain.StockRecord, bool, error) {
	val, err := c.client.Get(ctx, stockKey(warehouseID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var records []domain.StockRecord
	if err := json.Unmarshal(val, &records); err != nil {
		return nil, false, err
	}
	return records, true, nil
}

func (c *RedisStockCache) Set(ctx context.Context, warehouseID int64, records []domain.StockRecord, ttl time.Duration) error {
	if records == nil {
		return nil
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, stockKey(warehouseID), payload, ttl).Err()
}

func (c *RedisStockCache) Invalidate(ctx context.Context, warehouseID int64) error {
	return c.client.Del(ctx, stockKey(warehouseID)).Err()
}

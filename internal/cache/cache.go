package cache

import (
	"context"
	"fmt"
	"time"

	"tokopos/backend/internal/domain"
)

// StockCache keeps the stock snapshot of a warehouse between draft openings.
// Sale creation invalidates it.
type StockCache interface {
	Get(ctx context.Context, warehouseID int64) ([]domain.StockRecord, bool, error)
	Set(ctx context.Context, warehouseID int64, records []domain.StockRecord, ttl time.Duration) error
	Invalidate(ctx context.Context, warehouseID int64) error
}

func stockKey(warehouseID int64) string {
	return fmt.Sprintf("pos:stock:%d", warehouseID)
}

type NoopStockCache struct{}

func (NoopStockCache) Get(_ context.Context, _ int64) ([]domain.StockRecord, bool, error) {
	return nil, false, nil
}

func (NoopStockCache) Set(_ context.Context, _ int64, _ []domain.StockRecord, _ time.Duration) error {
	return nil
}

func (NoopStockCache) Invalidate(_ context.Context, _ int64) error {
	return nil
}

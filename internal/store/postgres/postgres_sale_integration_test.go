package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tokopos/backend/internal/domain"
)

func TestCreateSaleDeductsBaseStock(t *testing.T) {
	databaseURL := os.Getenv("TOKOPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TOKOPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	code := fmt.Sprintf("IT-%d", stamp)
	var productID, stockID int64
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (name, code, unit_type, default_unit, min_sale_unit, is_fraction_allowed)
		VALUES ('Tepung IT', $1, 'weight', 'kg', 'gram', true)
		RETURNING id
	`, code).Scan(&productID); err != nil {
		t.Fatalf("insert product: %v", err)
	}
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO stocks (product_id, batch_no, quantity, base_quantity, unit, sale_price, shadow_sale_price, warehouse_id)
		VALUES ($1, $2, 0.5, 500, 'ton', 11000000, 0, 1)
		RETURNING id
	`, productID, code).Scan(&stockID); err != nil {
		t.Fatalf("insert stock: %v", err)
	}

	var saleID int64
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stocks WHERE id = $1`, stockID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	created, err := s.CreateSale(ctx, domain.Sale{
		CreatedBy: "integration",
		Payload: domain.SalePayload{
			WarehouseID: 1,
			Items: []domain.SaleItemPayload{{
				ProductID:    productID,
				StockID:      stockID,
				BatchNo:      code,
				Quantity:     decimal.RequireFromString("0.00025"),
				UnitQuantity: decimal.RequireFromString("250"),
				BaseQuantity: decimal.RequireFromString("0.25"),
				Unit:         "gram",
				UnitPrice:    decimal.RequireFromString("11"),
				TotalPrice:   decimal.RequireFromString("2750"),
			}},
			GrandAmount: decimal.RequireFromString("2750"),
			DueAmount:   decimal.RequireFromString("2750"),
			Type:        "standard",
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	saleID = created.ID

	var base decimal.Decimal
	if err := s.db.QueryRowContext(ctx, `SELECT base_quantity FROM stocks WHERE id = $1`, stockID).Scan(&base); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if !base.Equal(decimal.RequireFromString("499.75")) {
		t.Fatalf("expected base stock 499.75 after sale, got %s", base)
	}
}

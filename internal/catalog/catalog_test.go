package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/units"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var (
	rice = domain.Product{ID: 1, Name: "Rice", Code: "P-RICE", UnitType: "weight", DefaultUnit: "kg", MinSaleUnit: "kg", IsFractionAllowed: true}
	tee  = domain.Product{ID: 2, Name: "apparel tee", Code: "P-TEE", UnitType: "piece", DefaultUnit: "piece", MinSaleUnit: "piece"}
)

func fixture() []domain.StockRecord {
	red := &domain.Variant{ID: 21, SKU: "TEE-RED-M", Attributes: map[string]string{"size": "M", "color": "red"}}
	blue := &domain.Variant{ID: 22, SKU: "TEE-BLUE-M", Attributes: map[string]string{"color": "blue", "size": "M"}}
	base := dec("40")
	return []domain.StockRecord{
		{ID: 101, Product: rice, BatchNo: "RICE-OLD", Quantity: decimal.Zero, PurchaseUnit: "kg", SalePrice: dec("100")},
		{ID: 102, Product: rice, BatchNo: "RICE-NEW", Quantity: dec("5"), PurchaseUnit: "kg", SalePrice: dec("100")},
		{ID: 201, Product: tee, Variant: red, BatchNo: "TEE-B1", Quantity: dec("10"), PurchaseUnit: "piece", SalePrice: dec("15")},
		{ID: 202, Product: tee, Variant: red, BatchNo: "TEE-B2", Quantity: dec("4"), PurchaseUnit: "piece", SalePrice: dec("16")},
		{ID: 203, Product: tee, Variant: blue, BatchNo: "TEE-B3", Quantity: dec("40"), BaseQuantity: &base, PurchaseUnit: "piece", SalePrice: dec("15")},
	}
}

func TestBuildAggregatesAndSortsByName(t *testing.T) {
	c := Build(fixture(), units.MustEngine(nil))

	products := c.Products()
	require.Len(t, products, 2)
	assert.Equal(t, "apparel tee", products[0].Name)
	assert.Equal(t, "Rice", products[1].Name)

	teeAgg, ok := c.Product(2)
	require.True(t, ok)
	assert.True(t, teeAgg.TotalStock.Equal(dec("54")))
	assert.Len(t, teeAgg.Stocks, 3)
	require.Len(t, teeAgg.Variants, 2)
	assert.Equal(t, "color: red, size: M", teeAgg.Variants[0].Label)
	assert.Len(t, teeAgg.Variants[0].Batches, 2)
	assert.True(t, teeAgg.Variants[0].TotalStock.Equal(dec("14")))

	riceAgg, ok := c.Product(1)
	require.True(t, ok)
	require.Len(t, riceAgg.Variants, 1)
	assert.Equal(t, DefaultVariantLabel, riceAgg.Variants[0].Label)
	assert.Equal(t, units.Weight, riceAgg.UnitKind())
}

func TestBuildDerivesMissingBaseQuantity(t *testing.T) {
	gramRice := rice
	records := []domain.StockRecord{
		{ID: 1, Product: gramRice, BatchNo: "G1", Quantity: dec("2500"), PurchaseUnit: "gram"},
	}
	c := Build(records, units.MustEngine(nil))

	stock, ok := c.Stock(1)
	require.True(t, ok)
	require.NotNil(t, stock.BaseQuantity)
	assert.True(t, stock.BaseQuantity.Equal(dec("2.5")))
	assert.Nil(t, records[0].BaseQuantity, "input records must stay untouched")
}

func TestBuildKeepsExplicitBaseQuantity(t *testing.T) {
	c := Build(fixture(), units.MustEngine(nil))
	stock, ok := c.Stock(203)
	require.True(t, ok)
	assert.True(t, stock.BaseQuantity.Equal(dec("40")))
}

func TestIndexPrefersLiveBatchOnCollision(t *testing.T) {
	c := Build(fixture(), units.MustEngine(nil))

	match, ok := c.Resolve("P-RICE")
	require.True(t, ok)
	assert.Equal(t, MatchProductCode, match.Kind)
	assert.Equal(t, int64(102), match.Stock.ID)
}

func TestIndexKeepsFirstLiveRecord(t *testing.T) {
	records := fixture()
	records[0].Quantity = dec("1")
	c := Build(records, units.MustEngine(nil))

	match, ok := c.Resolve("P-RICE")
	require.True(t, ok)
	assert.Equal(t, int64(101), match.Stock.ID)
}

func TestResolveOrder(t *testing.T) {
	records := fixture()
	// a batch code that collides with a SKU must win
	records[3].BatchNo = "TEE-BLUE-M"
	c := Build(records, units.MustEngine(nil))

	match, ok := c.Resolve("TEE-BLUE-M")
	require.True(t, ok)
	assert.Equal(t, MatchBatch, match.Kind)
	assert.Equal(t, int64(202), match.Stock.ID)

	match, ok = c.Resolve("TEE-RED-M")
	require.True(t, ok)
	assert.Equal(t, MatchSKU, match.Kind)
	require.NotNil(t, match.Product)
	assert.Equal(t, int64(2), match.Product.ID)

	_, ok = c.Resolve("NOPE")
	assert.False(t, ok)
	_, ok = c.Resolve("  ")
	assert.False(t, ok)
}

func TestAvailableBatchesSkipsDepleted(t *testing.T) {
	c := Build(fixture(), units.MustEngine(nil))

	batches := c.AvailableBatches(1, 0)
	require.Len(t, batches, 1)
	assert.Equal(t, int64(102), batches[0].ID)

	assert.Len(t, c.AvailableBatches(2, 21), 2)
	assert.Empty(t, c.AvailableBatches(2, 99))
	assert.Empty(t, c.AvailableBatches(42, 0))
}

func TestVariantLabel(t *testing.T) {
	assert.Equal(t, DefaultVariantLabel, VariantLabel(nil))
	assert.Equal(t, "a: 1, b: 2", VariantLabel(map[string]string{"b": "2", "a": "1"}))
}

package catalog

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/units"
)

const DefaultVariantLabel = "Default"

// VariantStocks groups the batches of one variant of a product.
type VariantStocks struct {
	VariantID  int64                `json:"variant_id"`
	SKU        string               `json:"sku,omitempty"`
	Label      string               `json:"label"`
	Attributes map[string]string    `json:"attribute_values,omitempty"`
	TotalStock decimal.Decimal      `json:"total_stock"`
	Batches    []domain.StockRecord `json:"batches"`
}

type ProductAggregate struct {
	domain.Product
	TotalStock decimal.Decimal      `json:"total_stock"`
	Stocks     []domain.StockRecord `json:"stocks"`
	Variants   []VariantStocks      `json:"variants"`
}

func (p *ProductAggregate) UnitKind() units.UnitType {
	return units.UnitType(p.Product.UnitType)
}

func (p *ProductAggregate) Variant(variantID int64) (*VariantStocks, bool) {
	for i := range p.Variants {
		if p.Variants[i].VariantID == variantID {
			return &p.Variants[i], true
		}
	}
	return nil, false
}

type MatchKind int

const (
	MatchBatch MatchKind = iota + 1
	MatchSKU
	MatchProductCode
)

func (k MatchKind) String() string {
	switch k {
	case MatchBatch:
		return "batch"
	case MatchSKU:
		return "sku"
	case MatchProductCode:
		return "product_code"
	default:
		return "none"
	}
}

type Match struct {
	Kind    MatchKind
	Stock   domain.StockRecord
	Product *ProductAggregate
}

// Catalog is an immutable snapshot built from one stock list.
type Catalog struct {
	engine    *units.Engine
	products  []ProductAggregate
	byProduct map[int64]int
	byStockID map[int64]domain.StockRecord
	byBatch   map[string]domain.StockRecord
	bySKU     map[string]domain.StockRecord
	byCode    map[string]domain.StockRecord
}

// Build groups stock rows into per-product aggregates and builds the barcode
// indexes. It never mutates the records it is given.
func Build(records []domain.StockRecord, engine *units.Engine) *Catalog {
	c := &Catalog{
		engine:    engine,
		byProduct: make(map[int64]int),
		byStockID: make(map[int64]domain.StockRecord, len(records)),
		byBatch:   make(map[string]domain.StockRecord),
		bySKU:     make(map[string]domain.StockRecord),
		byCode:    make(map[string]domain.StockRecord),
	}

	for _, raw := range records {
		record := c.withBaseQuantity(raw)
		c.byStockID[record.ID] = record

		idx, ok := c.byProduct[record.Product.ID]
		if !ok {
			c.products = append(c.products, ProductAggregate{
				Product:    record.Product,
				TotalStock: decimal.Zero,
			})
			idx = len(c.products) - 1
			c.byProduct[record.Product.ID] = idx
		}
		agg := &c.products[idx]
		agg.Stocks = append(agg.Stocks, record)
		agg.TotalStock = agg.TotalStock.Add(record.Quantity)
		addToVariant(agg, record)

		indexRecord(c.byBatch, record.BatchNo, record)
		if record.Variant != nil {
			indexRecord(c.bySKU, record.Variant.SKU, record)
		}
		indexRecord(c.byCode, record.Product.Code, record)
	}

	sort.SliceStable(c.products, func(i, j int) bool {
		return strings.ToLower(c.products[i].Name) < strings.ToLower(c.products[j].Name)
	})
	for i := range c.products {
		c.byProduct[c.products[i].ID] = i
	}
	return c
}

func (c *Catalog) withBaseQuantity(record domain.StockRecord) domain.StockRecord {
	if record.BaseQuantity != nil {
		return record
	}
	base := record.Quantity
	if c.engine != nil {
		base = c.engine.ToBase(record.Quantity, record.PurchaseUnit, units.UnitType(record.Product.UnitType))
	}
	record.BaseQuantity = &base
	return record
}

func addToVariant(agg *ProductAggregate, record domain.StockRecord) {
	variantID := record.VariantID()
	for i := range agg.Variants {
		if agg.Variants[i].VariantID == variantID {
			agg.Variants[i].Batches = append(agg.Variants[i].Batches, record)
			agg.Variants[i].TotalStock = agg.Variants[i].TotalStock.Add(record.Quantity)
			return
		}
	}
	entry := VariantStocks{
		VariantID:  variantID,
		Label:      DefaultVariantLabel,
		TotalStock: record.Quantity,
		Batches:    []domain.StockRecord{record},
	}
	if record.Variant != nil {
		entry.SKU = record.Variant.SKU
		entry.Attributes = record.Variant.Attributes
		entry.Label = VariantLabel(record.Variant.Attributes)
	}
	agg.Variants = append(agg.Variants, entry)
}

// indexRecord keeps the first record for a key unless a later one has stock
// and the kept one does not.
func indexRecord(index map[string]domain.StockRecord, key string, record domain.StockRecord) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	existing, ok := index[key]
	if !ok || (!existing.Quantity.IsPositive() && record.Quantity.IsPositive()) {
		index[key] = record
	}
}

// VariantLabel renders attribute values as "color: red, size: M".
func VariantLabel(attributes map[string]string) string {
	if len(attributes) == 0 {
		return DefaultVariantLabel
	}
	keys := make([]string, 0, len(attributes))
	for key := range attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+": "+attributes[key])
	}
	return strings.Join(parts, ", ")
}

func (c *Catalog) Engine() *units.Engine {
	return c.engine
}

func (c *Catalog) Products() []ProductAggregate {
	return c.products
}

func (c *Catalog) Product(productID int64) (*ProductAggregate, bool) {
	idx, ok := c.byProduct[productID]
	if !ok {
		return nil, false
	}
	return &c.products[idx], true
}

func (c *Catalog) Stock(stockID int64) (domain.StockRecord, bool) {
	record, ok := c.byStockID[stockID]
	return record, ok
}

// AvailableBatches returns the batches of a variant that still have stock.
func (c *Catalog) AvailableBatches(productID int64, variantID int64) []domain.StockRecord {
	product, ok := c.Product(productID)
	if !ok {
		return nil
	}
	variant, ok := product.Variant(variantID)
	if !ok {
		return nil
	}
	out := make([]domain.StockRecord, 0, len(variant.Batches))
	for _, batch := range variant.Batches {
		if batch.Quantity.IsPositive() {
			out = append(out, batch)
		}
	}
	return out
}

// Resolve looks a scanned code up by batch code, then SKU, then product code.
func (c *Catalog) Resolve(code string) (Match, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Match{}, false
	}
	if record, ok := c.byBatch[code]; ok {
		return c.match(MatchBatch, record), true
	}
	if record, ok := c.bySKU[code]; ok {
		return c.match(MatchSKU, record), true
	}
	if record, ok := c.byCode[code]; ok {
		return c.match(MatchProductCode, record), true
	}
	return Match{}, false
}

func (c *Catalog) match(kind MatchKind, record domain.StockRecord) Match {
	product, _ := c.Product(record.Product.ID)
	return Match{Kind: kind, Stock: record, Product: product}
}

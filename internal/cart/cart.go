package cart

import (
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"tokopos/backend/internal/catalog"
	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/units"
)

var (
	ErrUnknownCode        = errors.New("no product matches the scanned code")
	ErrNoStock            = errors.New("no available stock")
	ErrUnitNotSellable    = errors.New("cannot sell in this unit")
	ErrFractionNotAllowed = errors.New("fractional quantity is not allowed for this product")
	ErrInvalidQuantity    = errors.New("quantity must be greater than zero")
	ErrExceedsStock       = errors.New("requested quantity exceeds available stock")
	ErrPriceLocked        = errors.New("unit price follows the selected unit and cannot be edited")
	ErrLineNotFound       = errors.New("cart line not found")
	ErrStockNotFound      = errors.New("stock batch not found")
	ErrNoPendingSelection = errors.New("no selection is pending")
	ErrBatchNotOffered    = errors.New("batch is not part of the pending selection")
)

// StockLimitError reports the largest quantity that can still be sold,
// expressed in the unit the cashier asked for.
type StockLimitError struct {
	Max  decimal.Decimal
	Unit string
}

func (e *StockLimitError) Error() string {
	return fmt.Sprintf("%s: maximum sellable is %s %s", ErrExceedsStock, e.Max.Round(4).String(), e.Unit)
}

func (e *StockLimitError) Unwrap() error {
	return ErrExceedsStock
}

// Line is one stocked sale line. All per-line state lives here.
type Line struct {
	Key               string          `json:"key"`
	ProductID         int64           `json:"product_id"`
	VariantID         int64           `json:"variant_id"`
	StockID           int64           `json:"stock_id"`
	BatchNo           string          `json:"batch_no"`
	ProductName       string          `json:"product_name"`
	ProductCode       string          `json:"product_code"`
	VariantLabel      string          `json:"variant_label"`
	Quantity          decimal.Decimal `json:"quantity"`
	Unit              string          `json:"unit"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	TotalPrice        decimal.Decimal `json:"total_price"`
	BasePrice         decimal.Decimal `json:"base_unit_price"`
	PurchaseUnit      string          `json:"purchase_unit"`
	PurchaseUnitPrice decimal.Decimal `json:"purchase_unit_price"`
	ShadowPrice       decimal.Decimal `json:"shadow_sell_price"`
	MaxQuantity       decimal.Decimal `json:"max_quantity"`
	MaxBaseQuantity   decimal.Decimal `json:"max_base_quantity"`
	UnitType          units.UnitType  `json:"unit_type"`
	FractionAllowed   bool            `json:"is_fraction_allowed"`
	AvailableUnits    []string        `json:"available_units"`
}

func (l Line) clone() Line {
	l.AvailableUnits = slices.Clone(l.AvailableUnits)
	return l
}

// LineKey identifies one physical batch of one variant.
func LineKey(stock domain.StockRecord) string {
	batch := stock.BatchNo
	if batch == "" {
		batch = fmt.Sprintf("stock%d", stock.ID)
	}
	return fmt.Sprintf("%d-%d-%s", stock.Product.ID, stock.VariantID(), batch)
}

type SelectionState int

const (
	Idle SelectionState = iota
	AwaitingBatch
	AwaitingProduct
)

func (s SelectionState) String() string {
	switch s {
	case AwaitingBatch:
		return "awaiting_batch"
	case AwaitingProduct:
		return "awaiting_product"
	default:
		return "idle"
	}
}

// Selection is the pending part of a scan that needs the cashier's choice.
type Selection struct {
	State     SelectionState            `json:"state"`
	ProductID int64                     `json:"product_id,omitempty"`
	VariantID int64                     `json:"variant_id,omitempty"`
	Product   *catalog.ProductAggregate `json:"product,omitempty"`
	Batches   []domain.StockRecord      `json:"batches,omitempty"`
}

type OutcomeKind int

const (
	Added OutcomeKind = iota + 1
	Incremented
	BatchSelectionRequired
	ProductSelectionRequired
)

func (k OutcomeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Incremented:
		return "incremented"
	case BatchSelectionRequired:
		return "batch_selection_required"
	case ProductSelectionRequired:
		return "product_selection_required"
	default:
		return "unknown"
	}
}

type Outcome struct {
	Kind      OutcomeKind
	Line      *Line
	Selection *Selection
}

// Cart owns the sale lines of one draft. It is not safe for concurrent use;
// callers serialize access.
type Cart struct {
	catalog   *catalog.Catalog
	engine    *units.Engine
	lines     []Line
	pickups   []PickupLine
	selection Selection
	nextID    int64
}

func New(c *catalog.Catalog) *Cart {
	engine := c.Engine()
	if engine == nil {
		engine = units.MustEngine(nil)
	}
	return &Cart{catalog: c, engine: engine}
}

func (c *Cart) Catalog() *catalog.Catalog {
	return c.catalog
}

func (c *Cart) Lines() []Line {
	out := make([]Line, 0, len(c.lines))
	for _, line := range c.lines {
		out = append(out, line.clone())
	}
	return out
}

func (c *Cart) Line(key string) (Line, bool) {
	idx := c.indexOf(key)
	if idx < 0 {
		return Line{}, false
	}
	return c.lines[idx].clone(), true
}

func (c *Cart) Selection() Selection {
	sel := c.selection
	sel.Batches = slices.Clone(sel.Batches)
	return sel
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0 && len(c.pickups) == 0
}

func (c *Cart) indexOf(key string) int {
	for i := range c.lines {
		if c.lines[i].Key == key {
			return i
		}
	}
	return -1
}

// Scan resolves a barcode: batch code, then SKU, then product code.
func (c *Cart) Scan(code string) (Outcome, error) {
	match, ok := c.catalog.Resolve(code)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownCode, code)
	}

	switch match.Kind {
	case catalog.MatchBatch:
		if !match.Stock.Quantity.IsPositive() {
			return Outcome{}, ErrNoStock
		}
		return c.AddBatch(match.Stock)
	case catalog.MatchSKU:
		return c.SelectVariant(match.Stock.Product.ID, match.Stock.VariantID())
	default:
		c.selection = Selection{
			State:     AwaitingProduct,
			ProductID: match.Stock.Product.ID,
			Product:   match.Product,
		}
		sel := c.Selection()
		return Outcome{Kind: ProductSelectionRequired, Selection: &sel}, nil
	}
}

// SelectVariant resolves an explicit product and variant pick to a batch.
func (c *Cart) SelectVariant(productID int64, variantID int64) (Outcome, error) {
	batches := c.catalog.AvailableBatches(productID, variantID)
	switch len(batches) {
	case 0:
		return Outcome{}, ErrNoStock
	case 1:
		return c.AddBatch(batches[0])
	default:
		product, _ := c.catalog.Product(productID)
		c.selection = Selection{
			State:     AwaitingBatch,
			ProductID: productID,
			VariantID: variantID,
			Product:   product,
			Batches:   batches,
		}
		sel := c.Selection()
		return Outcome{Kind: BatchSelectionRequired, Selection: &sel}, nil
	}
}

// SelectStock adds a specific batch picked from the catalog browser.
func (c *Cart) SelectStock(stockID int64) (Outcome, error) {
	stock, ok := c.catalog.Stock(stockID)
	if !ok {
		return Outcome{}, ErrStockNotFound
	}
	if !stock.Quantity.IsPositive() {
		return Outcome{}, ErrNoStock
	}
	return c.AddBatch(stock)
}

// ChooseBatch completes a pending batch selection.
func (c *Cart) ChooseBatch(stockID int64) (Outcome, error) {
	if c.selection.State != AwaitingBatch {
		return Outcome{}, ErrNoPendingSelection
	}
	for _, batch := range c.selection.Batches {
		if batch.ID == stockID {
			return c.AddBatch(batch)
		}
	}
	return Outcome{}, ErrBatchNotOffered
}

func (c *Cart) CancelSelection() {
	c.selection = Selection{}
}

// AddBatch adds one unit of stock, incrementing the batch's line when present.
func (c *Cart) AddBatch(stock domain.StockRecord) (Outcome, error) {
	key := LineKey(stock)
	if idx := c.indexOf(key); idx >= 0 {
		line := c.lines[idx]
		quantity := line.Quantity.Add(decimal.NewFromInt(1))
		if err := c.checkStock(line, quantity, line.Unit); err != nil {
			return Outcome{}, err
		}
		line.Quantity = quantity
		line.TotalPrice = quantity.Mul(line.UnitPrice)
		c.lines[idx] = line
		c.selection = Selection{}
		out := line.clone()
		return Outcome{Kind: Incremented, Line: &out}, nil
	}

	line := c.newLine(stock, key)
	if err := c.checkStock(line, line.Quantity, line.Unit); err != nil {
		return Outcome{}, err
	}
	c.lines = append(c.lines, line)
	c.selection = Selection{}
	out := line.clone()
	return Outcome{Kind: Added, Line: &out}, nil
}

func (c *Cart) newLine(stock domain.StockRecord, key string) Line {
	product := stock.Product
	unitType := units.UnitType(product.UnitType)
	available := c.engine.AvailableUnits(unitType, stock.PurchaseUnit, product.DefaultUnit)

	unit := available[0]
	if slices.Contains(available, product.MinSaleUnit) {
		unit = product.MinSaleUnit
	}

	maxBase := c.engine.ToBase(stock.Quantity, stock.PurchaseUnit, unitType)
	if stock.BaseQuantity != nil {
		maxBase = *stock.BaseQuantity
	}

	basePrice := c.engine.BasePricePerBaseUnit(stock.SalePrice, stock.PurchaseUnit, unitType)
	unitPrice := c.engine.PriceForUnit(basePrice, unit, unitType)
	quantity := decimal.NewFromInt(1)

	label := catalog.DefaultVariantLabel
	if stock.Variant != nil {
		label = catalog.VariantLabel(stock.Variant.Attributes)
	}

	return Line{
		Key:               key,
		ProductID:         product.ID,
		VariantID:         stock.VariantID(),
		StockID:           stock.ID,
		BatchNo:           stock.BatchNo,
		ProductName:       product.Name,
		ProductCode:       product.Code,
		VariantLabel:      label,
		Quantity:          quantity,
		Unit:              unit,
		UnitPrice:         unitPrice,
		TotalPrice:        quantity.Mul(unitPrice),
		BasePrice:         basePrice,
		PurchaseUnit:      stock.PurchaseUnit,
		PurchaseUnitPrice: stock.SalePrice,
		ShadowPrice:       stock.ShadowSalePrice,
		MaxQuantity:       stock.Quantity,
		MaxBaseQuantity:   maxBase,
		UnitType:          unitType,
		FractionAllowed:   product.IsFractionAllowed,
		AvailableUnits:    available,
	}
}

// checkStock compares the requested quantity with the batch in base units.
// Piece products have no sub-unit economics and are compared as-is.
func (c *Cart) checkStock(line Line, quantity decimal.Decimal, unit string) error {
	if line.UnitType == units.Piece {
		if quantity.GreaterThan(line.MaxQuantity) {
			return &StockLimitError{Max: line.MaxQuantity, Unit: unit}
		}
		return nil
	}
	requested := c.engine.ToBase(quantity, unit, line.UnitType)
	if requested.GreaterThan(line.MaxBaseQuantity) {
		return &StockLimitError{Max: c.engine.FromBase(line.MaxBaseQuantity, unit, line.UnitType), Unit: unit}
	}
	return nil
}

// BaseQuantity is the line's quantity expressed in base units.
func (c *Cart) BaseQuantity(line Line) decimal.Decimal {
	if line.UnitType == units.Piece {
		return line.Quantity
	}
	return c.engine.ToBase(line.Quantity, line.Unit, line.UnitType)
}

// PurchaseQuantity is the line's quantity expressed in the batch's purchase unit.
func (c *Cart) PurchaseQuantity(line Line) decimal.Decimal {
	return c.engine.Convert(line.Quantity, line.Unit, line.PurchaseUnit, line.UnitType)
}

// CheckStock re-validates a line against its batch snapshot.
func (c *Cart) CheckStock(line Line) error {
	return c.checkStock(line, line.Quantity, line.Unit)
}

func (c *Cart) ChangeUnit(key string, unit string) (Line, error) {
	if unit == "" {
		return Line{}, fmt.Errorf("%w: %q", ErrUnitNotSellable, unit)
	}
	return c.UpdateLine(key, unit, nil)
}

func (c *Cart) ChangeQuantity(key string, quantity decimal.Decimal) (Line, error) {
	return c.UpdateLine(key, "", &quantity)
}

// UpdateLine changes the unit and the quantity of a line in one step. An
// empty unit keeps the current one; a nil quantity keeps the current amount
// converted to the new unit. The stock check runs once against the final
// unit and quantity, and the line is left as it was on any error.
func (c *Cart) UpdateLine(key string, unit string, quantity *decimal.Decimal) (Line, error) {
	idx := c.indexOf(key)
	if idx < 0 {
		return Line{}, ErrLineNotFound
	}
	line := c.lines[idx]
	if unit == "" {
		unit = line.Unit
	}
	if !slices.Contains(line.AvailableUnits, unit) {
		return Line{}, fmt.Errorf("%w: %q", ErrUnitNotSellable, unit)
	}

	next := c.engine.Convert(line.Quantity, line.Unit, unit, line.UnitType)
	if quantity != nil {
		if !quantity.IsPositive() {
			return Line{}, ErrInvalidQuantity
		}
		if !line.FractionAllowed && !quantity.IsInteger() {
			return Line{}, ErrFractionNotAllowed
		}
		next = *quantity
	}
	if err := c.checkStock(line, next, unit); err != nil {
		return Line{}, err
	}

	if unit != line.Unit {
		line.UnitPrice = c.engine.PriceForUnit(line.BasePrice, unit, line.UnitType)
		line.Unit = unit
	}
	line.Quantity = next
	line.TotalPrice = next.Mul(line.UnitPrice)
	c.lines[idx] = line
	return line.clone(), nil
}

// SetUnitPrice always fails: the price of a line is a function of its unit.
func (c *Cart) SetUnitPrice(key string, _ decimal.Decimal) error {
	if c.indexOf(key) < 0 {
		return ErrLineNotFound
	}
	return ErrPriceLocked
}

func (c *Cart) RemoveLine(key string) error {
	idx := c.indexOf(key)
	if idx < 0 {
		return ErrLineNotFound
	}
	c.lines = slices.Delete(c.lines, idx, idx+1)
	return nil
}

// Clear empties stocked lines, pickup lines and any pending selection.
func (c *Cart) Clear() {
	c.lines = nil
	c.pickups = nil
	c.selection = Selection{}
}

func (c *Cart) StockSubtotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.lines {
		total = total.Add(line.TotalPrice)
	}
	return total
}

package cart

import (
	"errors"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// PickupUnit is the only unit pickup items are sold in.
const PickupUnit = "piece"

var (
	ErrInvalidPickup  = errors.New("pickup item needs a name, a positive quantity and a sale price")
	ErrPickupNotFound = errors.New("pickup item not found")
)

// PickupLine is an item sourced from a supplier at sale time. It is not
// stock-tracked and has no unit conversion.
type PickupLine struct {
	ID          int64           `json:"id"`
	ProductName string          `json:"product_name"`
	Brand       string          `json:"brand,omitempty"`
	Variant     string          `json:"variant,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
	CostPrice   decimal.Decimal `json:"unit_price"`
	SalePrice   decimal.Decimal `json:"sale_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

type PickupInput struct {
	ProductName string          `json:"product_name" validate:"required"`
	Brand       string          `json:"brand"`
	Variant     string          `json:"variant"`
	Quantity    decimal.Decimal `json:"quantity"`
	CostPrice   decimal.Decimal `json:"unit_price"`
	SalePrice   decimal.Decimal `json:"sale_price"`
}

func (c *Cart) AddPickup(in PickupInput) (PickupLine, error) {
	name := strings.TrimSpace(in.ProductName)
	if name == "" || !in.Quantity.IsPositive() || !in.SalePrice.IsPositive() || in.CostPrice.IsNegative() {
		return PickupLine{}, ErrInvalidPickup
	}
	c.nextID++
	line := PickupLine{
		ID:          c.nextID,
		ProductName: name,
		Brand:       strings.TrimSpace(in.Brand),
		Variant:     strings.TrimSpace(in.Variant),
		Quantity:    in.Quantity,
		Unit:        PickupUnit,
		CostPrice:   in.CostPrice,
		SalePrice:   in.SalePrice,
		TotalPrice:  in.Quantity.Mul(in.SalePrice),
	}
	c.pickups = append(c.pickups, line)
	return line, nil
}

func (c *Cart) RemovePickup(id int64) error {
	idx := slices.IndexFunc(c.pickups, func(p PickupLine) bool { return p.ID == id })
	if idx < 0 {
		return ErrPickupNotFound
	}
	c.pickups = slices.Delete(c.pickups, idx, idx+1)
	return nil
}

func (c *Cart) Pickups() []PickupLine {
	return slices.Clone(c.pickups)
}

func (c *Cart) PickupSubtotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.pickups {
		total = total.Add(line.TotalPrice)
	}
	return total
}

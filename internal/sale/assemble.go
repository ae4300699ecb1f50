package sale

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"tokopos/backend/internal/cart"
	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/payment"
	"tokopos/backend/internal/pricing"
)

var (
	ErrEmptySale        = errors.New("add at least one product")
	ErrInvalidLine      = errors.New("every item needs a positive quantity and unit price")
	ErrSupplierRequired = errors.New("select a supplier for pickup items")
	ErrAccountRequired  = payment.ErrAccountRequired
)

// Validate runs the pre-submission gate. The first failing check wins.
func (d *Draft) Validate() error {
	lines := d.cart.Lines()
	pickups := d.cart.Pickups()
	if len(lines) == 0 && len(pickups) == 0 {
		return ErrEmptySale
	}
	for _, line := range lines {
		if !line.Quantity.IsPositive() || !line.UnitPrice.IsPositive() {
			return fmt.Errorf("%w: %s", ErrInvalidLine, line.ProductName)
		}
	}
	for _, line := range lines {
		if err := d.cart.CheckStock(line); err != nil {
			return fmt.Errorf("%s: %w", line.ProductName, err)
		}
	}
	if d.Totals().GrandTotal.IsNegative() {
		return ErrDiscountExceedsTotal
	}
	if err := d.payment.ValidateAccount(d.flow.AccountRule()); err != nil {
		return err
	}
	if len(pickups) > 0 && d.supplierID <= 0 {
		return ErrSupplierRequired
	}
	return nil
}

// Assemble validates the draft and builds the create-sale payload. On error
// no payload is returned.
func (d *Draft) Assemble() (domain.SalePayload, error) {
	if err := d.Validate(); err != nil {
		return domain.SalePayload{}, err
	}

	totals := d.Totals()
	view := d.payment.View()
	payload := domain.SalePayload{
		SaleDate:          d.saleDate,
		Notes:             d.notes,
		WarehouseID:       d.warehouseID,
		Items:             d.itemPayloads(),
		PickupItems:       d.pickupPayloads(),
		VatRate:           d.taxRate,
		DiscountRate:      d.discount,
		DiscountType:      string(d.flow.DiscountMode()),
		ShippingCost:      totals.Shipping,
		PaidAmount:        view.Paid,
		GrandAmount:       totals.GrandTotal,
		DueAmount:         view.Due,
		SubAmount:         totals.Subtotal,
		Type:              string(d.flow),
		PaymentStatus:     string(view.Status),
		AccountID:         view.AccountID,
		AdvanceAdjustment: d.AdvanceAdjustment(),
	}
	if d.customer != nil {
		if d.customer.Existing() {
			id := d.customer.ID
			payload.CustomerID = &id
		} else {
			payload.CustomerName = d.customer.Name
			payload.Phone = d.customer.Phone
		}
	}
	if d.supplierID > 0 {
		id := d.supplierID
		payload.SupplierID = &id
	}
	return payload, nil
}

func (d *Draft) itemPayloads() []domain.SaleItemPayload {
	lines := d.cart.Lines()
	out := make([]domain.SaleItemPayload, 0, len(lines))
	for _, line := range lines {
		item := domain.SaleItemPayload{
			ProductID:       line.ProductID,
			StockID:         line.StockID,
			BatchNo:         line.BatchNo,
			Quantity:        d.cart.PurchaseQuantity(line),
			UnitQuantity:    line.Quantity,
			BaseQuantity:    d.cart.BaseQuantity(line),
			Unit:            line.Unit,
			UnitPrice:       line.UnitPrice,
			TotalPrice:      line.TotalPrice,
			ShadowSellPrice: line.ShadowPrice,
		}
		if line.VariantID > 0 {
			id := line.VariantID
			item.VariantID = &id
		}
		out = append(out, item)
	}
	return out
}

func (d *Draft) pickupPayloads() []domain.PickupItemPayload {
	pickups := d.cart.Pickups()
	out := make([]domain.PickupItemPayload, 0, len(pickups))
	for _, p := range pickups {
		out = append(out, domain.PickupItemPayload{
			ProductName: p.ProductName,
			Brand:       p.Brand,
			Variant:     p.Variant,
			Quantity:    p.Quantity,
			Unit:        p.Unit,
			UnitPrice:   p.CostPrice,
			SalePrice:   p.SalePrice,
			TotalPrice:  p.TotalPrice,
			SupplierID:  d.supplierID,
		})
	}
	return out
}

// View is the full recomputed state of a draft as returned to the terminal.
type View struct {
	ID                string               `json:"id"`
	Flow              Flow                 `json:"flow"`
	WarehouseID       int64                `json:"warehouse_id"`
	Customer          *Customer            `json:"customer"`
	SaleDate          string               `json:"sale_date"`
	Notes             string               `json:"notes"`
	Lines             []cart.Line          `json:"lines"`
	Pickups           []cart.PickupLine    `json:"pickup_items"`
	Selection         cart.Selection       `json:"selection"`
	TaxRate           decimal.Decimal      `json:"vat_rate"`
	DiscountMode      pricing.DiscountMode `json:"discount_type"`
	Discount          decimal.Decimal      `json:"discount"`
	SupplierID        *int64               `json:"supplier_id"`
	UseAdvance        bool                 `json:"use_advance"`
	AdvanceAdjustment decimal.Decimal      `json:"advance_adjustment"`
	Totals            pricing.Totals       `json:"totals"`
	Display           pricing.Display      `json:"display"`
	Payment           payment.View         `json:"payment"`
	AccountRequired   bool                 `json:"account_required"`
	CanSubmit         bool                 `json:"can_submit"`
	Blocker           string               `json:"blocker,omitempty"`
	Submitting        bool                 `json:"submitting"`
}

func (d *Draft) View() View {
	totals := d.Totals()
	v := View{
		ID:                d.id,
		Flow:              d.flow,
		WarehouseID:       d.warehouseID,
		SaleDate:          d.saleDate,
		Notes:             d.notes,
		Lines:             d.cart.Lines(),
		Pickups:           d.cart.Pickups(),
		Selection:         d.cart.Selection(),
		TaxRate:           d.taxRate,
		DiscountMode:      d.flow.DiscountMode(),
		Discount:          d.discount,
		UseAdvance:        d.useAdvance,
		AdvanceAdjustment: d.AdvanceAdjustment(),
		Totals:            totals,
		Display:           totals.Display(),
		Payment:           d.payment.View(),
		AccountRequired:   d.payment.AccountRequired(d.flow.AccountRule()),
		Submitting:        d.submitting,
	}
	if d.customer != nil {
		c := *d.customer
		v.Customer = &c
	}
	if d.supplierID > 0 {
		id := d.supplierID
		v.SupplierID = &id
	}
	if err := d.Validate(); err != nil {
		v.Blocker = err.Error()
	} else {
		v.CanSubmit = !d.submitting
	}
	return v
}

package sale

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tokopos/backend/internal/cart"
	"tokopos/backend/internal/catalog"
	"tokopos/backend/internal/payment"
	"tokopos/backend/internal/pricing"
)

const DateLayout = "2006-01-02"

var (
	ErrInvalidSaleDate      = errors.New("sale date must be formatted as YYYY-MM-DD")
	ErrDiscountOutOfRange   = errors.New("discount percentage must be between 0 and 100")
	ErrShippingNotSupported = errors.New("shipping is only charged in the pos flow")
	ErrDiscountExceedsTotal = errors.New("discount must not exceed the sale total")
	ErrSubmissionInFlight   = errors.New("a submission for this sale is already in progress")
)

// Customer is the buyer attached to a draft. ID is zero for a walk-in whose
// name and phone were typed in.
type Customer struct {
	ID      int64           `json:"id,omitempty"`
	Name    string          `json:"customer_name"`
	Phone   string          `json:"phone"`
	Advance decimal.Decimal `json:"advance_amount"`
}

func (c Customer) Existing() bool {
	return c.ID > 0
}

// Draft is the whole state of one sale being built. Every mutation
// recomputes the totals and feeds the grand total to the payment machine
// before it returns. A Draft is not safe for concurrent use.
type Draft struct {
	id          string
	flow        Flow
	warehouseID int64
	cart        *cart.Cart
	payment     *payment.State
	customer    *Customer
	saleDate    string
	notes       string
	taxRate     decimal.Decimal
	discount    decimal.Decimal
	shipping    decimal.Decimal
	supplierID  int64
	useAdvance  bool
	submitting  bool
}

func NewDraft(id string, flow Flow, warehouseID int64, c *catalog.Catalog, now time.Time) *Draft {
	return &Draft{
		id:          id,
		flow:        flow,
		warehouseID: warehouseID,
		cart:        cart.New(c),
		payment:     payment.New(),
		saleDate:    now.Format(DateLayout),
		taxRate:     decimal.Zero,
		discount:    decimal.Zero,
		shipping:    decimal.Zero,
	}
}

func (d *Draft) ID() string {
	return d.id
}

func (d *Draft) Flow() Flow {
	return d.flow
}

func (d *Draft) WarehouseID() int64 {
	return d.warehouseID
}

func (d *Draft) Catalog() *catalog.Catalog {
	return d.cart.Catalog()
}

func (d *Draft) Lines() []cart.Line {
	return d.cart.Lines()
}

func (d *Draft) Pickups() []cart.PickupLine {
	return d.cart.Pickups()
}

func (d *Draft) Submitting() bool {
	return d.submitting
}

func (d *Draft) refresh() {
	d.payment.SetGrandTotal(d.Totals().GrandTotal)
}

func (d *Draft) Totals() pricing.Totals {
	in := pricing.Input{
		StockSubtotal:  d.cart.StockSubtotal(),
		PickupSubtotal: d.cart.PickupSubtotal(),
		TaxRate:        d.taxRate,
		DiscountMode:   d.flow.DiscountMode(),
		Discount:       d.discount,
		Paid:           d.payment.PaidAmount(),
	}
	if d.flow.AllowsShipping() {
		in.Shipping = d.shipping
	}
	return pricing.Calculate(in)
}

func (d *Draft) Scan(code string) (cart.Outcome, error) {
	defer d.refresh()
	return d.cart.Scan(code)
}

func (d *Draft) SelectVariant(productID, variantID int64) (cart.Outcome, error) {
	defer d.refresh()
	return d.cart.SelectVariant(productID, variantID)
}

func (d *Draft) SelectStock(stockID int64) (cart.Outcome, error) {
	defer d.refresh()
	return d.cart.SelectStock(stockID)
}

func (d *Draft) ChooseBatch(stockID int64) (cart.Outcome, error) {
	defer d.refresh()
	return d.cart.ChooseBatch(stockID)
}

func (d *Draft) CancelSelection() {
	d.cart.CancelSelection()
}

func (d *Draft) ChangeUnit(key, unit string) (cart.Line, error) {
	defer d.refresh()
	return d.cart.ChangeUnit(key, unit)
}

func (d *Draft) ChangeQuantity(key string, quantity decimal.Decimal) (cart.Line, error) {
	defer d.refresh()
	return d.cart.ChangeQuantity(key, quantity)
}

// UpdateLine changes unit and quantity together; see cart.Cart.UpdateLine.
func (d *Draft) UpdateLine(key, unit string, quantity *decimal.Decimal) (cart.Line, error) {
	defer d.refresh()
	return d.cart.UpdateLine(key, unit, quantity)
}

func (d *Draft) SetUnitPrice(key string, price decimal.Decimal) error {
	return d.cart.SetUnitPrice(key, price)
}

func (d *Draft) RemoveLine(key string) error {
	defer d.refresh()
	return d.cart.RemoveLine(key)
}

func (d *Draft) ClearCart() {
	defer d.refresh()
	d.cart.Clear()
}

func (d *Draft) AddPickup(in cart.PickupInput) (cart.PickupLine, error) {
	defer d.refresh()
	return d.cart.AddPickup(in)
}

func (d *Draft) RemovePickup(id int64) error {
	defer d.refresh()
	return d.cart.RemovePickup(id)
}

// Adjustments are the sale-level rates. Discount is a percentage in the
// standard flow and a currency amount in the pos flow.
type Adjustments struct {
	TaxRate  decimal.Decimal
	Discount decimal.Decimal
	Shipping decimal.Decimal
}

func (d *Draft) SetAdjustments(adj Adjustments) error {
	in := pricing.Input{TaxRate: adj.TaxRate, Discount: adj.Discount, Shipping: adj.Shipping}
	if err := in.Validate(); err != nil {
		return err
	}
	if d.flow.DiscountMode() == pricing.DiscountPercent && adj.Discount.GreaterThan(decimal.NewFromInt(100)) {
		return ErrDiscountOutOfRange
	}
	if !d.flow.AllowsShipping() && !adj.Shipping.IsZero() {
		return ErrShippingNotSupported
	}
	if d.flow.DiscountMode() == pricing.DiscountFlat {
		in.StockSubtotal = d.cart.StockSubtotal()
		in.PickupSubtotal = d.cart.PickupSubtotal()
		in.DiscountMode = pricing.DiscountFlat
		if pricing.Calculate(in).GrandTotal.IsNegative() {
			return ErrDiscountExceedsTotal
		}
	}
	d.taxRate = adj.TaxRate
	d.discount = adj.Discount
	d.shipping = adj.Shipping
	d.refresh()
	return nil
}

func (d *Draft) SelectStatus(status payment.Status) error {
	return d.payment.SelectStatus(status)
}

func (d *Draft) SetPaidAmount(amount decimal.Decimal) error {
	return d.payment.SetPaidAmount(amount)
}

// PaymentChange is a set of payment edits applied together. Nil fields are
// left alone.
type PaymentChange struct {
	Manual     *bool
	Status     *payment.Status
	PaidAmount *decimal.Decimal
	AccountID  *int64
	UseAdvance *bool
}

// ApplyPayment checks every field of the change before touching the payment
// state, so a rejected change leaves the draft as it was. Fields are applied
// in the order manual toggle, status, paid amount, account, advance.
func (d *Draft) ApplyPayment(ch PaymentChange) error {
	manual := d.payment.Manual()
	if ch.Manual != nil {
		manual = *ch.Manual
	}
	if ch.Status != nil {
		if manual {
			return payment.ErrManualMode
		}
		if _, err := payment.ParseStatus(string(*ch.Status)); err != nil {
			return err
		}
	}
	if ch.PaidAmount != nil && ch.PaidAmount.IsNegative() {
		return payment.ErrNegativeAmount
	}

	if ch.Manual != nil {
		d.SetManual(*ch.Manual)
	}
	if ch.Status != nil {
		if err := d.payment.SelectStatus(*ch.Status); err != nil {
			return err
		}
	}
	if ch.PaidAmount != nil {
		if err := d.payment.SetPaidAmount(*ch.PaidAmount); err != nil {
			return err
		}
	}
	if ch.AccountID != nil {
		d.SelectAccount(*ch.AccountID)
	}
	if ch.UseAdvance != nil {
		d.UseAdvance(*ch.UseAdvance)
	}
	return nil
}

func (d *Draft) SetManual(manual bool) {
	if manual {
		d.payment.EnterManual()
		return
	}
	d.payment.ExitManual()
}

func (d *Draft) SelectAccount(accountID int64) {
	if accountID <= 0 {
		d.payment.ClearAccount()
		return
	}
	d.payment.SelectAccount(accountID)
}

func (d *Draft) Payment() payment.View {
	return d.payment.View()
}

func (d *Draft) SelectCustomer(c Customer) {
	c.Name = strings.TrimSpace(c.Name)
	c.Phone = strings.TrimSpace(c.Phone)
	d.customer = &c
}

// SetWalkIn records a typed-in buyer with no customer record.
func (d *Draft) SetWalkIn(name, phone string) {
	d.SelectCustomer(Customer{Name: name, Phone: phone})
	if d.customer.Name == "" && d.customer.Phone == "" {
		d.customer = nil
	}
}

func (d *Draft) ClearCustomer() {
	d.customer = nil
	d.useAdvance = false
}

func (d *Draft) Customer() (Customer, bool) {
	if d.customer == nil {
		return Customer{}, false
	}
	return *d.customer, true
}

func (d *Draft) SetSaleDate(raw string) error {
	raw = strings.TrimSpace(raw)
	if _, err := time.Parse(DateLayout, raw); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidSaleDate, raw)
	}
	d.saleDate = raw
	return nil
}

func (d *Draft) SetNotes(notes string) {
	d.notes = strings.TrimSpace(notes)
}

func (d *Draft) SelectSupplier(supplierID int64) {
	if supplierID < 0 {
		supplierID = 0
	}
	d.supplierID = supplierID
}

func (d *Draft) UseAdvance(use bool) {
	d.useAdvance = use
}

// AdvanceAdjustment is the part of the paid amount drawn from the customer's
// advance balance. It never exceeds the advance or the grand total.
func (d *Draft) AdvanceAdjustment() decimal.Decimal {
	if !d.useAdvance || d.customer == nil || !d.customer.Existing() {
		return decimal.Zero
	}
	ceiling := decimal.Min(d.customer.Advance, d.payment.GrandTotal())
	adjustment := decimal.Min(d.payment.PaidAmount(), ceiling)
	if adjustment.IsNegative() {
		return decimal.Zero
	}
	return adjustment
}

// BeginSubmit marks the draft as submitting. Only one submission may be
// outstanding at a time.
func (d *Draft) BeginSubmit() error {
	if d.submitting {
		return ErrSubmissionInFlight
	}
	d.submitting = true
	return nil
}

// EndSubmit releases the guard. The draft itself is left untouched so a
// failed submission can be retried.
func (d *Draft) EndSubmit() {
	d.submitting = false
}

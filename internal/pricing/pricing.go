package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrInvalidAdjustment = errors.New("tax, discount and shipping must not be negative")

type DiscountMode string

const (
	DiscountPercent DiscountMode = "percent"
	DiscountFlat    DiscountMode = "flat"
)

var hundred = decimal.NewFromInt(100)

// Input carries the values the totals are derived from. Discount is a
// percentage of the subtotal or a currency amount depending on DiscountMode.
type Input struct {
	StockSubtotal  decimal.Decimal
	PickupSubtotal decimal.Decimal
	TaxRate        decimal.Decimal
	DiscountMode   DiscountMode
	Discount       decimal.Decimal
	Shipping       decimal.Decimal
	Paid           decimal.Decimal
}

type Totals struct {
	StockSubtotal  decimal.Decimal `json:"stock_subtotal"`
	PickupSubtotal decimal.Decimal `json:"pickup_subtotal"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Shipping       decimal.Decimal `json:"shipping"`
	GrandTotal     decimal.Decimal `json:"grand_total"`
	Paid           decimal.Decimal `json:"paid_amount"`
	Due            decimal.Decimal `json:"due_amount"`
}

func (in Input) Validate() error {
	if in.TaxRate.IsNegative() || in.Discount.IsNegative() || in.Shipping.IsNegative() || in.Paid.IsNegative() {
		return ErrInvalidAdjustment
	}
	return nil
}

// Calculate derives every total from scratch. Nothing is rounded here.
func Calculate(in Input) Totals {
	subtotal := in.StockSubtotal.Add(in.PickupSubtotal)
	tax := subtotal.Mul(in.TaxRate).Div(hundred)

	discount := in.Discount
	if in.DiscountMode != DiscountFlat {
		discount = subtotal.Mul(in.Discount).Div(hundred)
	}

	grand := subtotal.Add(tax).Sub(discount).Add(in.Shipping)
	return Totals{
		StockSubtotal:  in.StockSubtotal,
		PickupSubtotal: in.PickupSubtotal,
		Subtotal:       subtotal,
		TaxAmount:      tax,
		DiscountAmount: discount,
		Shipping:       in.Shipping,
		GrandTotal:     grand,
		Paid:           in.Paid,
		Due:            Due(grand, in.Paid),
	}
}

// Due never goes below zero; overpayment is not carried as credit.
func Due(grand, paid decimal.Decimal) decimal.Decimal {
	due := grand.Sub(paid)
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}

// Money formats an amount for display with exactly two fraction digits.
func Money(v decimal.Decimal) string {
	return v.StringFixed(2)
}

// Display is the rounded view of Totals handed to receipts and the UI.
type Display struct {
	Subtotal       string `json:"subtotal"`
	TaxAmount      string `json:"tax_amount"`
	DiscountAmount string `json:"discount_amount"`
	Shipping       string `json:"shipping"`
	GrandTotal     string `json:"grand_total"`
	Paid           string `json:"paid_amount"`
	Due            string `json:"due_amount"`
}

func (t Totals) Display() Display {
	return Display{
		Subtotal:       Money(t.Subtotal),
		TaxAmount:      Money(t.TaxAmount),
		DiscountAmount: Money(t.DiscountAmount),
		Shipping:       Money(t.Shipping),
		GrandTotal:     Money(t.GrandTotal),
		Paid:           Money(t.Paid),
		Due:            Money(t.Due),
	}
}

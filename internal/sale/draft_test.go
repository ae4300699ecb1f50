package sale

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokopos/backend/internal/cart"
	"tokopos/backend/internal/catalog"
	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/payment"
	"tokopos/backend/internal/units"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func testCatalog() *catalog.Catalog {
	rice := domain.Product{ID: 1, Name: "Rice", Code: "P-RICE", UnitType: "weight", DefaultUnit: "kg", MinSaleUnit: "kg", IsFractionAllowed: true}
	soap := domain.Product{ID: 2, Name: "Soap", Code: "P-SOAP", UnitType: "piece", DefaultUnit: "piece", MinSaleUnit: "piece"}
	lemon := &domain.Variant{ID: 31, SKU: "SOAP-LEMON", Attributes: map[string]string{"scent": "lemon"}}
	return catalog.Build([]domain.StockRecord{
		{ID: 10, Product: rice, BatchNo: "RICE-1", Quantity: dec("5"), PurchaseUnit: "kg", SalePrice: dec("100"), ShadowSalePrice: dec("110")},
		{ID: 20, Product: soap, Variant: lemon, BatchNo: "SOAP-1", Quantity: dec("10"), PurchaseUnit: "piece", SalePrice: dec("25")},
	}, units.MustEngine(nil))
}

func newDraft(flow Flow) *Draft {
	return NewDraft("draft-1", flow, 1, testCatalog(), testNow)
}

func TestEmptyDraftCannotBeAssembled(t *testing.T) {
	d := newDraft(Standard)

	_, err := d.Assemble()
	assert.ErrorIs(t, err, ErrEmptySale)
	assert.Equal(t, "add at least one product", err.Error())

	v := d.View()
	assert.False(t, v.CanSubmit)
	assert.Equal(t, ErrEmptySale.Error(), v.Blocker)
}

func TestMutationsFeedGrandTotalIntoPayment(t *testing.T) {
	d := newDraft(Standard)
	require.NoError(t, d.SelectStatus(payment.Paid))

	out, err := d.Scan("RICE-1")
	require.NoError(t, err)
	assert.True(t, d.Payment().Paid.Equal(dec("100")))

	_, err = d.ChangeQuantity(out.Line.Key, dec("2"))
	require.NoError(t, err)
	assert.True(t, d.Payment().Paid.Equal(dec("200")))

	require.NoError(t, d.SetAdjustments(Adjustments{TaxRate: dec("10"), Discount: dec("5")}))
	totals := d.Totals()
	assert.True(t, totals.GrandTotal.Equal(dec("210")))
	assert.True(t, d.Payment().Paid.Equal(dec("210")))

	require.NoError(t, d.RemoveLine(out.Line.Key))
	assert.True(t, d.Payment().Paid.IsZero())
}

func TestStandardFlowAssemblesPayload(t *testing.T) {
	d := newDraft(Standard)
	out, err := d.Scan("RICE-1")
	require.NoError(t, err)
	_, err = d.ChangeUnit(out.Line.Key, "gram")
	require.NoError(t, err)
	_, err = d.ChangeQuantity(out.Line.Key, dec("1500"))
	require.NoError(t, err)
	_, err = d.Scan("SOAP-LEMON")
	require.NoError(t, err)

	require.NoError(t, d.SetAdjustments(Adjustments{TaxRate: dec("10"), Discount: dec("10")}))
	require.NoError(t, d.SelectStatus(payment.Partial))

	_, err = d.Assemble()
	assert.ErrorIs(t, err, ErrAccountRequired)

	d.SelectAccount(4)
	d.SelectCustomer(Customer{ID: 9, Name: "Budi", Advance: dec("20")})
	d.SetNotes("  deliver later ")
	require.NoError(t, d.SetSaleDate("2026-03-15"))

	payload, err := d.Assemble()
	require.NoError(t, err)

	assert.Equal(t, "standard", payload.Type)
	assert.Equal(t, "percent", payload.DiscountType)
	assert.Equal(t, "2026-03-15", payload.SaleDate)
	assert.Equal(t, "deliver later", payload.Notes)
	require.NotNil(t, payload.CustomerID)
	assert.Equal(t, int64(9), *payload.CustomerID)
	assert.Empty(t, payload.CustomerName)
	require.NotNil(t, payload.AccountID)
	assert.Equal(t, int64(4), *payload.AccountID)
	assert.Nil(t, payload.SupplierID)

	require.Len(t, payload.Items, 2)
	rice := payload.Items[0]
	assert.Nil(t, rice.VariantID)
	assert.Equal(t, "gram", rice.Unit)
	assert.True(t, rice.UnitQuantity.Equal(dec("1500")))
	assert.True(t, rice.Quantity.Equal(dec("1.5")))
	assert.True(t, rice.BaseQuantity.Equal(dec("1.5")))
	assert.True(t, rice.UnitPrice.Equal(dec("0.1")))
	assert.True(t, rice.TotalPrice.Equal(dec("150")))
	assert.True(t, rice.ShadowSellPrice.Equal(dec("110")))
	soap := payload.Items[1]
	require.NotNil(t, soap.VariantID)
	assert.Equal(t, int64(31), *soap.VariantID)

	// subtotal 175, tax 17.5, discount 17.5
	assert.True(t, payload.SubAmount.Equal(dec("175")))
	assert.True(t, payload.GrandAmount.Equal(dec("175")))
	assert.True(t, payload.PaidAmount.Equal(dec("87.5")))
	assert.True(t, payload.DueAmount.Equal(dec("87.5")))
	assert.Equal(t, "partial", payload.PaymentStatus)
	assert.True(t, payload.AdvanceAdjustment.IsZero(), "advance is opt-in")
}

func TestPOSFlowUsesFlatDiscountAndShipping(t *testing.T) {
	d := newDraft(POS)
	_, err := d.Scan("SOAP-1")
	require.NoError(t, err)

	require.NoError(t, d.SetAdjustments(Adjustments{Discount: dec("5"), Shipping: dec("10")}))
	assert.True(t, d.Totals().GrandTotal.Equal(dec("30")))

	require.NoError(t, d.SelectStatus(payment.Paid))
	_, err = d.Assemble()
	assert.ErrorIs(t, err, ErrAccountRequired)

	d.SelectAccount(2)
	payload, err := d.Assemble()
	require.NoError(t, err)
	assert.Equal(t, "pos", payload.Type)
	assert.Equal(t, "flat", payload.DiscountType)
	assert.True(t, payload.ShippingCost.Equal(dec("10")))
	assert.True(t, payload.PaidAmount.Equal(dec("30")))
	assert.True(t, payload.DueAmount.IsZero())
}

func TestStandardFlowRejectsShippingAndLargePercent(t *testing.T) {
	d := newDraft(Standard)
	assert.ErrorIs(t, d.SetAdjustments(Adjustments{Shipping: dec("1")}), ErrShippingNotSupported)
	assert.ErrorIs(t, d.SetAdjustments(Adjustments{Discount: dec("101")}), ErrDiscountOutOfRange)
	assert.Error(t, d.SetAdjustments(Adjustments{TaxRate: dec("-1")}))
}

func TestPickupItemsNeedSupplier(t *testing.T) {
	d := newDraft(Standard)
	_, err := d.AddPickup(cart.PickupInput{ProductName: "Ice block", Quantity: dec("2"), CostPrice: dec("4"), SalePrice: dec("6")})
	require.NoError(t, err)

	_, err = d.Assemble()
	assert.ErrorIs(t, err, ErrSupplierRequired)

	d.SelectSupplier(12)
	d.SetWalkIn("Sari", "0812")
	payload, err := d.Assemble()
	require.NoError(t, err)
	assert.Empty(t, payload.Items)
	require.Len(t, payload.PickupItems, 1)
	assert.Equal(t, int64(12), payload.PickupItems[0].SupplierID)
	assert.True(t, payload.PickupItems[0].TotalPrice.Equal(dec("12")))
	require.NotNil(t, payload.SupplierID)
	assert.Nil(t, payload.CustomerID)
	assert.Equal(t, "Sari", payload.CustomerName)
	assert.Equal(t, "0812", payload.Phone)
}

func TestWalkInWithoutDetailsIsAnonymous(t *testing.T) {
	d := newDraft(Standard)
	d.SetWalkIn(" ", "")
	_, ok := d.Customer()
	assert.False(t, ok)
}

func TestAdvanceAdjustmentIsCapped(t *testing.T) {
	tests := []struct {
		name    string
		advance string
		paid    string
		want    string
	}{
		{name: "paid is smallest", advance: "80", paid: "30", want: "30"},
		{name: "advance is smallest", advance: "20", paid: "60", want: "20"},
		{name: "grand total is smallest", advance: "500", paid: "150", want: "100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDraft(Standard)
			_, err := d.Scan("RICE-1")
			require.NoError(t, err)
			d.SelectCustomer(Customer{ID: 3, Name: "Ani", Advance: dec(tt.advance)})
			d.UseAdvance(true)
			require.NoError(t, d.SetPaidAmount(dec(tt.paid)))

			assert.True(t, d.AdvanceAdjustment().Equal(dec(tt.want)), "got %s", d.AdvanceAdjustment())
		})
	}
}

func TestAdvanceNeedsExistingCustomer(t *testing.T) {
	d := newDraft(Standard)
	_, err := d.Scan("RICE-1")
	require.NoError(t, err)
	d.SetWalkIn("Guest", "")
	d.UseAdvance(true)
	require.NoError(t, d.SetPaidAmount(dec("50")))
	assert.True(t, d.AdvanceAdjustment().IsZero())
}

func TestValidateRechecksStockAgainstSnapshot(t *testing.T) {
	d := newDraft(Standard)
	out, err := d.Scan("SOAP-1")
	require.NoError(t, err)
	_, err = d.ChangeQuantity(out.Line.Key, dec("10"))
	require.NoError(t, err)
	require.NoError(t, d.Validate())

	_, err = d.ChangeQuantity(out.Line.Key, dec("11"))
	var limit *cart.StockLimitError
	assert.True(t, errors.As(err, &limit))
	assert.NoError(t, d.Validate(), "rejected change leaves the draft valid")
}

func TestSubmitGuard(t *testing.T) {
	d := newDraft(Standard)
	require.NoError(t, d.BeginSubmit())
	assert.ErrorIs(t, d.BeginSubmit(), ErrSubmissionInFlight)
	assert.True(t, d.View().Submitting)

	d.EndSubmit()
	assert.NoError(t, d.BeginSubmit())
}

func TestSaleDateValidation(t *testing.T) {
	d := newDraft(Standard)
	assert.Equal(t, "2026-03-14", d.View().SaleDate)
	assert.ErrorIs(t, d.SetSaleDate("14/03/2026"), ErrInvalidSaleDate)
	assert.Equal(t, "2026-03-14", d.View().SaleDate)
}

func TestParseFlow(t *testing.T) {
	f, err := ParseFlow("")
	require.NoError(t, err)
	assert.Equal(t, Standard, f)

	f, err = ParseFlow("pos")
	require.NoError(t, err)
	assert.Equal(t, POS, f)

	_, err = ParseFlow("wholesale")
	assert.ErrorIs(t, err, ErrUnknownFlow)
}

func TestApplyPaymentRejectsWholeChange(t *testing.T) {
	d := newDraft(Standard)
	_, err := d.Scan("RICE-1")
	require.NoError(t, err)

	on := true
	paid := payment.Paid
	err = d.ApplyPayment(PaymentChange{Manual: &on, Status: &paid})
	assert.ErrorIs(t, err, payment.ErrManualMode)
	assert.False(t, d.Payment().Manual)
	assert.Equal(t, payment.Unpaid, d.Payment().Status)

	negative := dec("-1")
	err = d.ApplyPayment(PaymentChange{Status: &paid, PaidAmount: &negative})
	assert.ErrorIs(t, err, payment.ErrNegativeAmount)
	assert.Equal(t, payment.Unpaid, d.Payment().Status)
	assert.True(t, d.Payment().Paid.IsZero())

	account := int64(2)
	require.NoError(t, d.ApplyPayment(PaymentChange{Status: &paid, AccountID: &account}))
	assert.Equal(t, payment.Paid, d.Payment().Status)
	assert.True(t, d.Payment().Paid.Equal(dec("100")))

	amount := dec("40")
	require.NoError(t, d.ApplyPayment(PaymentChange{PaidAmount: &amount}))
	assert.True(t, d.Payment().Manual)
	assert.Equal(t, payment.Partial, d.Payment().Status)
}

func TestFlatDiscountCannotExceedTotal(t *testing.T) {
	d := newDraft(POS)
	_, err := d.Scan("RICE-1")
	require.NoError(t, err)

	err = d.SetAdjustments(Adjustments{Discount: dec("500")})
	assert.ErrorIs(t, err, ErrDiscountExceedsTotal)
	assert.True(t, d.Totals().DiscountAmount.IsZero())

	require.NoError(t, d.SetAdjustments(Adjustments{TaxRate: dec("10"), Discount: dec("120"), Shipping: dec("10")}))
	assert.True(t, d.Totals().GrandTotal.IsZero())

	require.NoError(t, d.SetAdjustments(Adjustments{Discount: dec("100")}))
	line := d.Lines()[0]
	_, err = d.ChangeUnit(line.Key, "gram")
	require.NoError(t, err)
	_, err = d.ChangeQuantity(line.Key, dec("500"))
	require.NoError(t, err)
	require.NoError(t, d.SelectStatus(payment.Paid))
	d.SelectAccount(2)

	assert.True(t, d.Totals().GrandTotal.Equal(dec("-50")))
	_, err = d.Assemble()
	assert.ErrorIs(t, err, ErrDiscountExceedsTotal)
	assert.False(t, d.View().CanSubmit)
}

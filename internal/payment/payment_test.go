package payment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAutomaticTransitions(t *testing.T) {
	tests := []struct {
		name     string
		status   Status
		wantPaid string
	}{
		{name: "unpaid zeroes paid", status: Unpaid, wantPaid: "0"},
		{name: "paid takes grand total", status: Paid, wantPaid: "100"},
		{name: "partial defaults to half", status: Partial, wantPaid: "50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			s.SetGrandTotal(dec("100"))
			require.NoError(t, s.SelectStatus(tt.status))
			assert.Equal(t, tt.status, s.Status())
			assert.True(t, s.PaidAmount().Equal(dec(tt.wantPaid)), "paid %s", s.PaidAmount())
			assert.False(t, s.Manual())
		})
	}
}

func TestGrandTotalChangeFollowsStatus(t *testing.T) {
	s := New()
	s.SetGrandTotal(dec("100"))
	require.NoError(t, s.SelectStatus(Paid))
	s.SetGrandTotal(dec("120"))
	assert.True(t, s.PaidAmount().Equal(dec("120")))
	assert.Equal(t, Paid, s.Status())

	require.NoError(t, s.SelectStatus(Unpaid))
	s.SetGrandTotal(dec("90"))
	assert.True(t, s.PaidAmount().IsZero())
	assert.Equal(t, Unpaid, s.Status())

	require.NoError(t, s.SelectStatus(Partial))
	assert.True(t, s.PaidAmount().Equal(dec("45")))
	s.SetGrandTotal(dec("80"))
	assert.True(t, s.PaidAmount().Equal(dec("45")), "partial keeps a paid amount that still fits")
	s.SetGrandTotal(dec("40"))
	assert.True(t, s.PaidAmount().Equal(dec("20")))
	assert.Equal(t, Partial, s.Status())
}

func TestManualModeDerivesStatus(t *testing.T) {
	tests := []struct {
		paid       string
		wantStatus Status
		wantDue    string
	}{
		{paid: "0", wantStatus: Unpaid, wantDue: "100"},
		{paid: "30", wantStatus: Partial, wantDue: "70"},
		{paid: "100", wantStatus: Paid, wantDue: "0"},
		{paid: "150", wantStatus: Paid, wantDue: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.paid, func(t *testing.T) {
			s := New()
			s.SetGrandTotal(dec("100"))
			require.NoError(t, s.SetPaidAmount(dec(tt.paid)))
			assert.True(t, s.Manual())
			assert.Equal(t, tt.wantStatus, s.Status())
			assert.True(t, s.Due().Equal(dec(tt.wantDue)), "due %s", s.Due())
		})
	}
}

func TestManualModeRejectsStatusSelectionAndNegativeAmounts(t *testing.T) {
	s := New()
	s.SetGrandTotal(dec("100"))
	s.EnterManual()

	assert.ErrorIs(t, s.SelectStatus(Paid), ErrManualMode)
	assert.ErrorIs(t, s.SetPaidAmount(dec("-1")), ErrNegativeAmount)
	assert.Equal(t, Unpaid, s.Status())
}

func TestManualGrandTotalChangeRederivesStatus(t *testing.T) {
	s := New()
	s.SetGrandTotal(dec("100"))
	require.NoError(t, s.SetPaidAmount(dec("100")))
	assert.Equal(t, Paid, s.Status())

	s.SetGrandTotal(dec("120"))
	assert.Equal(t, Partial, s.Status())
	assert.True(t, s.PaidAmount().Equal(dec("100")))
}

func TestExitManualSnapsPaidAmount(t *testing.T) {
	tests := []struct {
		name     string
		paid     string
		wantPaid string
	}{
		{name: "paid snaps to grand", paid: "130", wantPaid: "100"},
		{name: "unpaid stays zero", paid: "0", wantPaid: "0"},
		{name: "partial keeps amount", paid: "30", wantPaid: "30"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			s.SetGrandTotal(dec("100"))
			require.NoError(t, s.SetPaidAmount(dec(tt.paid)))
			s.ExitManual()
			assert.False(t, s.Manual())
			assert.True(t, s.PaidAmount().Equal(dec(tt.wantPaid)), "paid %s", s.PaidAmount())
		})
	}
}

func TestAccountRules(t *testing.T) {
	s := New()
	s.SetGrandTotal(dec("100"))

	assert.NoError(t, s.ValidateAccount(RequireWhenPaid))
	assert.NoError(t, s.ValidateAccount(RequireWhenNotUnpaid))

	require.NoError(t, s.SelectStatus(Partial))
	assert.ErrorIs(t, s.ValidateAccount(RequireWhenPaid), ErrAccountRequired)
	assert.ErrorIs(t, s.ValidateAccount(RequireWhenNotUnpaid), ErrAccountRequired)

	s.SelectAccount(7)
	assert.NoError(t, s.ValidateAccount(RequireWhenPaid))
	id, ok := s.AccountID()
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)

	require.NoError(t, s.SelectStatus(Unpaid))
	_, ok = s.AccountID()
	assert.False(t, ok, "selecting unpaid clears the account")
}

func TestAccountRulesDifferOnZeroGrandPaid(t *testing.T) {
	s := New()
	require.NoError(t, s.SelectStatus(Paid))
	assert.True(t, s.PaidAmount().IsZero())

	assert.NoError(t, s.ValidateAccount(RequireWhenPaid))
	assert.ErrorIs(t, s.ValidateAccount(RequireWhenNotUnpaid), ErrAccountRequired)
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("partial")
	require.NoError(t, err)
	assert.Equal(t, Partial, st)

	_, err = ParseStatus("settled")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestView(t *testing.T) {
	s := New()
	s.SetGrandTotal(dec("80"))
	require.NoError(t, s.SelectStatus(Paid))
	s.SelectAccount(3)

	v := s.View()
	assert.Equal(t, Paid, v.Status)
	require.NotNil(t, v.AccountID)
	assert.Equal(t, int64(3), *v.AccountID)
	assert.True(t, v.Due.IsZero())
}

package payment

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/pricing"
)

var (
	ErrUnknownStatus   = errors.New("unknown payment status")
	ErrManualMode      = errors.New("payment status follows the paid amount in manual mode")
	ErrNegativeAmount  = errors.New("paid amount must not be negative")
	ErrAccountRequired = errors.New("select an account to receive the payment")
)

type Status string

const (
	Unpaid  Status = domain.PaymentStatusUnpaid
	Partial Status = domain.PaymentStatusPartial
	Paid    Status = domain.PaymentStatusPaid
)

func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case Unpaid, Partial, Paid:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
}

// AccountRule decides when a receiving account is mandatory.
type AccountRule int

const (
	// RequireWhenPaid asks for an account whenever money changes hands.
	RequireWhenPaid AccountRule = iota + 1
	// RequireWhenNotUnpaid asks for an account for any status but unpaid.
	RequireWhenNotUnpaid
)

var two = decimal.NewFromInt(2)

// State is the payment part of a sale draft. In automatic mode the status
// drives the paid amount; in manual mode the paid amount drives the status.
type State struct {
	status    Status
	paid      decimal.Decimal
	grand     decimal.Decimal
	manual    bool
	accountID int64
}

func New() *State {
	return &State{status: Unpaid}
}

func (s *State) Status() Status {
	return s.status
}

func (s *State) PaidAmount() decimal.Decimal {
	return s.paid
}

func (s *State) GrandTotal() decimal.Decimal {
	return s.grand
}

func (s *State) Manual() bool {
	return s.manual
}

func (s *State) Due() decimal.Decimal {
	return pricing.Due(s.grand, s.paid)
}

func (s *State) AccountID() (int64, bool) {
	return s.accountID, s.accountID > 0
}

// SelectStatus applies an explicit status choice. Selecting unpaid also
// clears the chosen account.
func (s *State) SelectStatus(status Status) error {
	if s.manual {
		return ErrManualMode
	}
	switch status {
	case Unpaid:
		s.paid = decimal.Zero
		s.accountID = 0
	case Paid:
		s.paid = s.grand
	case Partial:
		s.paid = s.grand.Div(two)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	s.status = status
	return nil
}

// SetGrandTotal follows a change of the sale total.
func (s *State) SetGrandTotal(grand decimal.Decimal) {
	s.grand = grand
	if s.manual {
		s.status = statusFor(s.paid, s.grand)
		return
	}
	switch s.status {
	case Paid:
		s.paid = grand
	case Unpaid:
		s.paid = decimal.Zero
	case Partial:
		if !s.paid.IsPositive() || s.paid.GreaterThanOrEqual(grand) {
			s.paid = grand.Div(two)
		}
	}
}

// SetPaidAmount switches to manual mode and derives the status from amount.
func (s *State) SetPaidAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	s.manual = true
	s.paid = amount
	s.status = statusFor(s.paid, s.grand)
	return nil
}

func (s *State) EnterManual() {
	s.manual = true
	s.status = statusFor(s.paid, s.grand)
}

// ExitManual snaps the paid amount back to what the status implies.
func (s *State) ExitManual() {
	s.manual = false
	switch s.status {
	case Paid:
		s.paid = s.grand
	case Unpaid:
		s.paid = decimal.Zero
	case Partial:
		if !s.paid.IsPositive() || s.paid.GreaterThanOrEqual(s.grand) {
			s.paid = s.grand.Div(two)
		}
	}
}

func (s *State) SelectAccount(accountID int64) {
	s.accountID = accountID
}

func (s *State) ClearAccount() {
	s.accountID = 0
}

func (s *State) AccountRequired(rule AccountRule) bool {
	if rule == RequireWhenNotUnpaid {
		return s.status != Unpaid
	}
	return s.paid.IsPositive()
}

func (s *State) ValidateAccount(rule AccountRule) error {
	if _, ok := s.AccountID(); !ok && s.AccountRequired(rule) {
		return ErrAccountRequired
	}
	return nil
}

func statusFor(paid, grand decimal.Decimal) Status {
	switch {
	case !paid.IsPositive():
		return Unpaid
	case paid.GreaterThanOrEqual(grand):
		return Paid
	default:
		return Partial
	}
}

// View is the serializable snapshot of a State.
type View struct {
	Status    Status          `json:"payment_status"`
	Paid      decimal.Decimal `json:"paid_amount"`
	Grand     decimal.Decimal `json:"grand_total"`
	Due       decimal.Decimal `json:"due_amount"`
	Manual    bool            `json:"manual"`
	AccountID *int64          `json:"account_id"`
}

func (s *State) View() View {
	v := View{
		Status: s.status,
		Paid:   s.paid,
		Grand:  s.grand,
		Due:    s.Due(),
		Manual: s.manual,
	}
	if id, ok := s.AccountID(); ok {
		v.AccountID = &id
	}
	return v
}

package sale

import (
	"errors"
	"fmt"

	"tokopos/backend/internal/payment"
	"tokopos/backend/internal/pricing"
)

var ErrUnknownFlow = errors.New("unknown sale flow")

// Flow is one of the two sale-creation screens. The flow name is also the
// sale type tag sent with the payload.
type Flow string

const (
	// Standard applies a percentage discount and needs an account once
	// anything is paid.
	Standard Flow = "standard"
	// POS applies a flat discount plus shipping and needs an account for
	// any status but unpaid.
	POS Flow = "pos"
)

func ParseFlow(raw string) (Flow, error) {
	switch f := Flow(raw); f {
	case Standard, POS:
		return f, nil
	case "":
		return Standard, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFlow, raw)
	}
}

func (f Flow) DiscountMode() pricing.DiscountMode {
	if f == POS {
		return pricing.DiscountFlat
	}
	return pricing.DiscountPercent
}

func (f Flow) AccountRule() payment.AccountRule {
	if f == POS {
		return payment.RequireWhenNotUnpaid
	}
	return payment.RequireWhenPaid
}

func (f Flow) AllowsShipping() bool {
	return f == POS
}

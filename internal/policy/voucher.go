package policy

import (
	"fmt"
	"sort"

	"vivaly-settlement/internal/data/entity"
)

const (
	// RequiredCompletedBookings is the completed-booking count that unlocks
	// voucher claims.
	RequiredCompletedBookings = 2

	MinReceiptAmount int64 = 1000  // $10
	MaxReceiptAmount int64 = 50000 // $500
)

// VoucherTerms describes how much of a certification receipt is reimbursed.
type VoucherTerms struct {
	Type          entity.VoucherType
	Name          string
	Description   string
	RefundRateBps int64
	MaxRefund     int64
}

var voucherCatalog = map[entity.VoucherType]VoucherTerms{
	entity.VoucherWWCC: {
		Type:          entity.VoucherWWCC,
		Name:          "Working With Children Check",
		Description:   "Partial refund for WWCC certification",
		RefundRateBps: 3000,
		MaxRefund:     3500,
	},
	entity.VoucherFirstAid: {
		Type:          entity.VoucherFirstAid,
		Name:          "First Aid Certificate",
		Description:   "Partial refund for first aid certification",
		RefundRateBps: 2500,
		MaxRefund:     5000,
	},
	entity.VoucherPoliceCheck: {
		Type:          entity.VoucherPoliceCheck,
		Name:          "Police Check",
		Description:   "Partial refund for police check",
		RefundRateBps: 2000,
		MaxRefund:     1500,
	},
}

func LookupVoucher(t entity.VoucherType) (VoucherTerms, error) {
	terms, ok := voucherCatalog[t]
	if !ok {
		return VoucherTerms{}, fmt.Errorf("%w: %s", ErrUnknownVoucherType, t)
	}
	return terms, nil
}

// VoucherCatalog lists all voucher terms ordered by type.
func VoucherCatalog() []VoucherTerms {
	out := make([]VoucherTerms, 0, len(voucherCatalog))
	for _, terms := range voucherCatalog {
		out = append(out, terms)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// RefundFor returns min(receipt * rate, max refund).
func (t VoucherTerms) RefundFor(receiptAmount int64) int64 {
	refund := ApplyBps(receiptAmount, t.RefundRateBps)
	if refund > t.MaxRefund {
		return t.MaxRefund
	}
	return refund
}

// CheckReceiptAmount enforces the accepted receipt range, inclusive.
func CheckReceiptAmount(amount int64) error {
	if amount < MinReceiptAmount || amount > MaxReceiptAmount {
		return fmt.Errorf("%w: receipt must be between $%.2f and $%.2f",
			ErrAmountOutOfRange, CentsToDollars(MinReceiptAmount), CentsToDollars(MaxReceiptAmount))
	}
	return nil
}

// Eligibility is a caregiver's progress towards voucher claims.
type Eligibility struct {
	CompletedBookings int
	RequiredBookings  int
}

func NewEligibility(completed int) Eligibility {
	return Eligibility{CompletedBookings: completed, RequiredBookings: RequiredCompletedBookings}
}

func (e Eligibility) IsEligible() bool {
	return e.CompletedBookings >= e.RequiredBookings
}

func (e Eligibility) RemainingBookings() int {
	if remaining := e.RequiredBookings - e.CompletedBookings; remaining > 0 {
		return remaining
	}
	return 0
}

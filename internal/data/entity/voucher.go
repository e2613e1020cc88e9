package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type VoucherType string

const (
	VoucherWWCC        VoucherType = "wwcc-certification"
	VoucherFirstAid    VoucherType = "first-aid"
	VoucherPoliceCheck VoucherType = "police-check"
)

type VoucherStatus string

const (
	VoucherStatusPending  VoucherStatus = "pending"
	VoucherStatusApproved VoucherStatus = "approved"
	VoucherStatusRejected VoucherStatus = "rejected"
	VoucherStatusPaid     VoucherStatus = "paid"
)

var voucherTransitions = map[VoucherStatus][]VoucherStatus{
	VoucherStatusPending:  {VoucherStatusApproved, VoucherStatusRejected},
	VoucherStatusApproved: {VoucherStatusPaid},
}

func (s VoucherStatus) CanTransitionTo(next VoucherStatus) bool {
	for _, allowed := range voucherTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// VoucherClaim is a caregiver's request to be reimbursed for a
// certification. Amounts are in cents; RefundAmount never changes after
// submission.
type VoucherClaim struct {
	Base
	Reference         string        `db:"reference"`
	CaregiverID       uuid.UUID     `db:"caregiver_id"`
	VoucherType       VoucherType   `db:"voucher_type"`
	ReceiptAmount     int64         `db:"receipt_amount"`
	RefundRateBps     int64         `db:"refund_rate_bps"`
	RefundAmount      int64         `db:"refund_amount"`
	ReceiptImageURL   string        `db:"receipt_image_url"`
	CertificationDate time.Time     `db:"certification_date"`
	ExpiryDate        *time.Time    `db:"expiry_date"`
	State             *string       `db:"state"`
	Status            VoucherStatus `db:"status"`
	SubmissionDate    time.Time     `db:"submission_date"`
	ReviewedBy        *uuid.UUID    `db:"reviewed_by"`
	ReviewNotes       *string       `db:"review_notes"`
	ProcessedAt       *time.Time    `db:"processed_at"`
	PaidAt            *time.Time    `db:"paid_at"`
	PayoutRef         *string       `db:"payout_ref"`
	// PayoutAttempts counts definitively failed payouts. Each one moves the
	// payout to a fresh idempotency key.
	PayoutAttempts    int           `db:"payout_attempts"`
}

// PayoutKey is the idempotency key for the claim's current payout attempt.
func (c VoucherClaim) PayoutKey() string {
	if c.PayoutAttempts == 0 {
		return "voucher-payout:" + c.ID.String()
	}
	return fmt.Sprintf("voucher-payout:%s:%d", c.ID, c.PayoutAttempts)
}

// VoucherStats summarises all claims. TotalRefunded counts paid claims only,
// in cents.
type VoucherStats struct {
	TotalClaims   int64
	PendingClaims int64
	PaidClaims    int64
	TotalRefunded int64
}

// AverageRefund is the mean paid refund in cents, rounded half up.
func (s VoucherStats) AverageRefund() int64 {
	if s.PaidClaims == 0 {
		return 0
	}
	return (s.TotalRefunded + s.PaidClaims/2) / s.PaidClaims
}

package entity

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusDeclined  BookingStatus = "declined"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// bookingTransitions is the single authoritative table of legal moves.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusDeclined, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusCompleted, BookingStatusCancelled},
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusDeclined || s == BookingStatusCompleted || s == BookingStatusCancelled
}

type PaymentStatus string

const (
	PaymentStatusUnpaid            PaymentStatus = "unpaid"
	PaymentStatusPaidUnreleased    PaymentStatus = "paid_unreleased"
	PaymentStatusReleased          PaymentStatus = "released"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

// HoldsFunds is true while the parent's money sits in escrow.
func (p PaymentStatus) HoldsFunds() bool {
	return p == PaymentStatusPaidUnreleased
}

type ActorRole string

const (
	RoleParent    ActorRole = "parent"
	RoleCaregiver ActorRole = "caregiver"
	RoleAdmin     ActorRole = "admin"
	RoleSystem    ActorRole = "system"
)

type PenaltyTier string

const (
	PenaltyNone    PenaltyTier = "none"
	PenaltyWarning PenaltyTier = "warning"
	PenaltyFee     PenaltyTier = "fee"
)

// Booking amounts are in cents. CaregiverAmount, ServiceFee and TotalAmount
// are fixed when the booking is created.
type Booking struct {
	Base
	Reference          string        `db:"reference"`
	ParentID           uuid.UUID     `db:"parent_id"`
	CaregiverID        uuid.UUID     `db:"caregiver_id"`
	StartDate          time.Time     `db:"start_date"`
	EndDate            time.Time     `db:"end_date"`
	HoursPerDay        float64       `db:"hours_per_day"`
	RatePerHour        int64         `db:"rate_per_hour"`
	NumberOfDays       int           `db:"number_of_days"`
	CaregiverAmount    int64         `db:"caregiver_amount"`
	ServiceFee         int64         `db:"service_fee"`
	TotalAmount        int64         `db:"total_amount"`
	RefundedAmount     int64         `db:"refunded_amount"`
	Status             BookingStatus `db:"status"`
	PaymentStatus      PaymentStatus `db:"payment_status"`
	CancelledBy        *ActorRole    `db:"cancelled_by"`
	PenaltyTier        *PenaltyTier  `db:"penalty_tier"`
	CancellationReason *string       `db:"cancellation_reason"`
	Notes              string        `db:"notes"`
	RespondedAt        *time.Time    `db:"responded_at"`
	PaidAt             *time.Time    `db:"paid_at"`
	CompletedAt        *time.Time    `db:"completed_at"`
	CancelledAt        *time.Time    `db:"cancelled_at"`
	Version            int64         `db:"version"`
}

// IsParty reports whether userID is the parent or the caregiver on the booking.
func (b *Booking) IsParty(userID uuid.UUID) bool {
	return b.ParentID == userID || b.CaregiverID == userID
}

// Consistent checks the money invariants that must hold after every
// transition.
func (b *Booking) Consistent() bool {
	if b.TotalAmount != b.ServiceFee+b.CaregiverAmount {
		return false
	}
	switch b.PaymentStatus {
	case PaymentStatusPaidUnreleased:
		return b.Status == BookingStatusConfirmed
	case PaymentStatusReleased:
		return b.Status == BookingStatusCompleted
	case PaymentStatusRefunded, PaymentStatusPartiallyRefunded:
		return b.Status == BookingStatusCancelled && b.RefundedAmount <= b.TotalAmount
	}
	return true
}

package usecase

import (
	"context"
	"time"

	"vivaly-settlement/internal/data/entity"

	"go.uber.org/zap"
)

// Routing keys published to the broker.
const (
	EventBookingCreated         = "booking.created"
	EventBookingAwaitingPayment = "booking.awaiting_payment"
	EventBookingDeclined        = "booking.declined"
	EventBookingPaid            = "booking.paid"
	EventBookingCompleted       = "booking.completed"
	EventBookingCancelled       = "booking.cancelled"
	EventPaymentFailed          = "payment.failed"
	EventReleaseFailed          = "release.failed"
	EventVoucherSubmitted       = "voucher.submitted"
	EventVoucherApproved        = "voucher.approved"
	EventVoucherRejected        = "voucher.rejected"
	EventVoucherPaid            = "voucher.paid"
)

// EventPublisher is the notification dispatch collaborator.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, body any) error
}

type BookingEvent struct {
	BookingID     string               `json:"booking_id"`
	Reference     string               `json:"reference"`
	ParentID      string               `json:"parent_id"`
	CaregiverID   string               `json:"caregiver_id"`
	Status        entity.BookingStatus `json:"status"`
	PaymentStatus entity.PaymentStatus `json:"payment_status"`
	TotalAmount   int64                `json:"total_amount"`
	Refunded      int64                `json:"refunded_amount,omitempty"`
	PenaltyTier   *entity.PenaltyTier  `json:"penalty_tier,omitempty"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

type PaymentFailedEvent struct {
	BookingID string                     `json:"booking_id"`
	Operation entity.EscrowOperationKind `json:"operation"`
	Amount    int64                      `json:"amount"`
	Outcome   string                     `json:"outcome"`
	Error     string                     `json:"error"`
	Attempts  int                        `json:"attempts"`
}

type VoucherEvent struct {
	ClaimID      string               `json:"claim_id"`
	Reference    string               `json:"reference"`
	CaregiverID  string               `json:"caregiver_id"`
	VoucherType  entity.VoucherType   `json:"voucher_type"`
	Status       entity.VoucherStatus `json:"status"`
	RefundAmount int64                `json:"refund_amount"`
}

func newBookingEvent(b *entity.Booking, at time.Time) BookingEvent {
	return BookingEvent{
		BookingID:     b.ID.String(),
		Reference:     b.Reference,
		ParentID:      b.ParentID.String(),
		CaregiverID:   b.CaregiverID.String(),
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		TotalAmount:   b.TotalAmount,
		Refunded:      b.RefundedAmount,
		PenaltyTier:   b.PenaltyTier,
		OccurredAt:    at,
	}
}

func newVoucherEvent(c *entity.VoucherClaim) VoucherEvent {
	return VoucherEvent{
		ClaimID:      c.ID.String(),
		Reference:    c.Reference,
		CaregiverID:  c.CaregiverID.String(),
		VoucherType:  c.VoucherType,
		Status:       c.Status,
		RefundAmount: c.RefundAmount,
	}
}

// publish never fails the caller: the state change is already committed.
func publish(ctx context.Context, pub EventPublisher, log *zap.Logger, routingKey string, body any) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, routingKey, body); err != nil {
		log.Warn("Failed to publish event", zap.String("routing_key", routingKey), zap.Error(err))
	}
}

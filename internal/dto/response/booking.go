package response

import (
	"time"

	"vivaly-settlement/internal/data/entity"
	"vivaly-settlement/internal/policy"
)

// BookingResponse amounts are decimal dollars.
type BookingResponse struct {
	ID                 string               `json:"id"`
	Reference          string               `json:"reference"`
	ParentID           string               `json:"parent_id"`
	CaregiverID        string               `json:"caregiver_id"`
	StartDate          time.Time            `json:"start_date"`
	EndDate            time.Time            `json:"end_date"`
	HoursPerDay        float64              `json:"hours_per_day"`
	RatePerHour        float64              `json:"rate_per_hour"`
	NumberOfDays       int                  `json:"number_of_days"`
	CaregiverAmount    float64              `json:"caregiver_amount"`
	ServiceFee         float64              `json:"service_fee"`
	TotalAmount        float64              `json:"total_amount"`
	RefundedAmount     float64              `json:"refunded_amount"`
	Status             entity.BookingStatus `json:"status"`
	PaymentStatus      entity.PaymentStatus `json:"payment_status"`
	CancelledBy        *entity.ActorRole    `json:"cancelled_by,omitempty"`
	PenaltyTier        *entity.PenaltyTier  `json:"penalty_tier,omitempty"`
	CancellationReason *string              `json:"cancellation_reason,omitempty"`
	Notes              string               `json:"notes,omitempty"`
	RespondedAt        *time.Time           `json:"responded_at,omitempty"`
	PaidAt             *time.Time           `json:"paid_at,omitempty"`
	CompletedAt        *time.Time           `json:"completed_at,omitempty"`
	CancelledAt        *time.Time           `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

type EscrowOperationResponse struct {
	Kind       entity.EscrowOperationKind   `json:"kind"`
	Status     entity.EscrowOperationStatus `json:"status"`
	Amount     float64                      `json:"amount"`
	Retained   float64                      `json:"retained"`
	ReceiptRef *string                      `json:"receipt_ref,omitempty"`
	Attempts   int                          `json:"attempts"`
	LastError  *string                      `json:"last_error,omitempty"`
	UpdatedAt  time.Time                    `json:"updated_at"`
}

type BookingDetailResponse struct {
	BookingResponse
	Escrow    []EscrowOperationResponse `json:"escrow"`
	ReleaseAt *time.Time                `json:"release_at,omitempty"`
}

// ReleaseRunResponse summarises one sweep of due release jobs.
type ReleaseRunResponse struct {
	Claimed   int `json:"claimed"`
	Completed int `json:"completed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

func BookingToResponse(b *entity.Booking) BookingResponse {
	return BookingResponse{
		ID:                 b.ID.String(),
		Reference:          b.Reference,
		ParentID:           b.ParentID.String(),
		CaregiverID:        b.CaregiverID.String(),
		StartDate:          b.StartDate,
		EndDate:            b.EndDate,
		HoursPerDay:        b.HoursPerDay,
		RatePerHour:        policy.CentsToDollars(b.RatePerHour),
		NumberOfDays:       b.NumberOfDays,
		CaregiverAmount:    policy.CentsToDollars(b.CaregiverAmount),
		ServiceFee:         policy.CentsToDollars(b.ServiceFee),
		TotalAmount:        policy.CentsToDollars(b.TotalAmount),
		RefundedAmount:     policy.CentsToDollars(b.RefundedAmount),
		Status:             b.Status,
		PaymentStatus:      b.PaymentStatus,
		CancelledBy:        b.CancelledBy,
		PenaltyTier:        b.PenaltyTier,
		CancellationReason: b.CancellationReason,
		Notes:              b.Notes,
		RespondedAt:        b.RespondedAt,
		PaidAt:             b.PaidAt,
		CompletedAt:        b.CompletedAt,
		CancelledAt:        b.CancelledAt,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
}

func EscrowOperationToResponse(op *entity.EscrowOperation) EscrowOperationResponse {
	return EscrowOperationResponse{
		Kind:       op.Kind,
		Status:     op.Status,
		Amount:     policy.CentsToDollars(op.Amount),
		Retained:   policy.CentsToDollars(op.Retained),
		ReceiptRef: op.ReceiptRef,
		Attempts:   op.Attempts,
		LastError:  op.LastError,
		UpdatedAt:  op.UpdatedAt,
	}
}

package response

import (
	"time"

	"vivaly-settlement/internal/data/entity"
	"vivaly-settlement/internal/policy"
)

type EligibilityResponse struct {
	CaregiverID       string `json:"caregiver_id"`
	IsEligible        bool   `json:"is_eligible"`
	CompletedBookings int    `json:"completed_bookings"`
	RequiredBookings  int    `json:"required_bookings"`
	RemainingBookings int    `json:"remaining_bookings"`
}

type VoucherTypeResponse struct {
	Type        entity.VoucherType `json:"type"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	RefundRate  float64            `json:"refund_rate"`
	MaxRefund   float64            `json:"max_refund"`
}

type VoucherClaimResponse struct {
	ID                string               `json:"id"`
	Reference         string               `json:"reference"`
	CaregiverID       string               `json:"caregiver_id"`
	VoucherType       entity.VoucherType   `json:"voucher_type"`
	ReceiptAmount     float64              `json:"receipt_amount"`
	RefundRate        float64              `json:"refund_rate"`
	RefundAmount      float64              `json:"refund_amount"`
	ReceiptImageURL   string               `json:"receipt_image_url"`
	CertificationDate time.Time            `json:"certification_date"`
	ExpiryDate        *time.Time           `json:"expiry_date,omitempty"`
	State             *string              `json:"state,omitempty"`
	Status            entity.VoucherStatus `json:"status"`
	SubmissionDate    time.Time            `json:"submission_date"`
	ReviewNotes       *string              `json:"review_notes,omitempty"`
	ProcessedAt       *time.Time           `json:"processed_at,omitempty"`
	PaidAt            *time.Time           `json:"paid_at,omitempty"`
}

func EligibilityToResponse(caregiverID string, e policy.Eligibility) EligibilityResponse {
	return EligibilityResponse{
		CaregiverID:       caregiverID,
		IsEligible:        e.IsEligible(),
		CompletedBookings: e.CompletedBookings,
		RequiredBookings:  e.RequiredBookings,
		RemainingBookings: e.RemainingBookings(),
	}
}

func VoucherTermsToResponse(t policy.VoucherTerms) VoucherTypeResponse {
	return VoucherTypeResponse{
		Type:        t.Type,
		Name:        t.Name,
		Description: t.Description,
		RefundRate:  float64(t.RefundRateBps) / 10000,
		MaxRefund:   policy.CentsToDollars(t.MaxRefund),
	}
}

func VoucherClaimToResponse(c *entity.VoucherClaim) VoucherClaimResponse {
	return VoucherClaimResponse{
		ID:                c.ID.String(),
		Reference:         c.Reference,
		CaregiverID:       c.CaregiverID.String(),
		VoucherType:       c.VoucherType,
		ReceiptAmount:     policy.CentsToDollars(c.ReceiptAmount),
		RefundRate:        float64(c.RefundRateBps) / 10000,
		RefundAmount:      policy.CentsToDollars(c.RefundAmount),
		ReceiptImageURL:   c.ReceiptImageURL,
		CertificationDate: c.CertificationDate,
		ExpiryDate:        c.ExpiryDate,
		State:             c.State,
		Status:            c.Status,
		SubmissionDate:    c.SubmissionDate,
		ReviewNotes:       c.ReviewNotes,
		ProcessedAt:       c.ProcessedAt,
		PaidAt:            c.PaidAt,
	}
}

type VoucherStatsResponse struct {
	TotalClaims   int64   `json:"total_claims"`
	PendingClaims int64   `json:"pending_claims"`
	PaidClaims    int64   `json:"paid_claims"`
	TotalRefunded float64 `json:"total_refunded"`
	AverageRefund float64 `json:"average_refund"`
}

func VoucherStatsToResponse(s *entity.VoucherStats) VoucherStatsResponse {
	return VoucherStatsResponse{
		TotalClaims:   s.TotalClaims,
		PendingClaims: s.PendingClaims,
		PaidClaims:    s.PaidClaims,
		TotalRefunded: policy.CentsToDollars(s.TotalRefunded),
		AverageRefund: policy.CentsToDollars(s.AverageRefund()),
	}
}

package request

import "time"

type SubmitVoucherClaimRequest struct {
	VoucherType       string     `json:"voucher_type" validate:"required"`
	ReceiptAmount     float64    `json:"receipt_amount" validate:"gt=0"`
	ReceiptImageURL   string     `json:"receipt_image_url" validate:"required,url"`
	CertificationDate time.Time  `json:"certification_date" validate:"required"`
	ExpiryDate        *time.Time `json:"expiry_date,omitempty"`
	State             string     `json:"state" validate:"max=10"`
}

type ReviewVoucherRequest struct {
	Action string `json:"action" validate:"required,oneof=approve reject"`
	Notes  string `json:"notes" validate:"max=1000"`
}

type ListVoucherClaimsRequest struct {
	PaginatedRequest
	Status string `json:"status" validate:"omitempty,oneof=pending approved rejected paid"`
}

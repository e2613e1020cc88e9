package request

import "time"

type CreateBookingRequest struct {
	CaregiverID string    `json:"caregiver_id" validate:"required,uuid"`
	StartDate   time.Time `json:"start_date" validate:"required"`
	EndDate     time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
	HoursPerDay float64   `json:"hours_per_day" validate:"max=24"`
	RatePerHour float64   `json:"rate_per_hour"`
	Notes       string    `json:"notes" validate:"max=1000"`
}

type RespondBookingRequest struct {
	Action string `json:"action" validate:"required,oneof=accept decline"`
}

// PayBookingRequest carries the parent's payment source token. When empty
// the processor charges the parent's default source.
type PayBookingRequest struct {
	PaymentSource string `json:"payment_source" validate:"max=255"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

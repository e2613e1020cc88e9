package entity

import (
	"time"

	"github.com/google/uuid"
)

// CaregiverCompletion records that a booking counted towards the caregiver's
// completed total. BookingID is unique, so a booking is counted once.
type CaregiverCompletion struct {
	BookingID   uuid.UUID `db:"booking_id"`
	CaregiverID uuid.UUID `db:"caregiver_id"`
	CompletedAt time.Time `db:"completed_at"`
}

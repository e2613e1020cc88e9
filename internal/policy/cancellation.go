package policy

import (
	"fmt"
	"time"

	"vivaly-settlement/internal/data/entity"
)

const (
	fullRefundNotice    = 24 * time.Hour
	partialRefundNotice = 12 * time.Hour
)

// CancellationOutcome is the refund share of the booking total and the
// caregiver penalty tier for a cancellation at a given moment.
type CancellationOutcome struct {
	RefundPercent   int
	PenaltyTier     entity.PenaltyTier
	HoursUntilStart float64
}

// EvaluateCancellation applies the cancellation tiers for a booking that
// starts at start and is cancelled at at by role.
func EvaluateCancellation(start, at time.Time, role entity.ActorRole) (CancellationOutcome, error) {
	until := start.Sub(at)
	out := CancellationOutcome{HoursUntilStart: until.Hours()}

	switch role {
	case entity.RoleParent:
		if until <= 0 {
			return out, fmt.Errorf("%w: booking started %s ago", ErrTooLateToCancel, (-until).Round(time.Minute))
		}
		out.PenaltyTier = entity.PenaltyNone
		switch {
		case until >= fullRefundNotice:
			out.RefundPercent = 100
		case until >= partialRefundNotice:
			out.RefundPercent = 50
		default:
			out.RefundPercent = 0
		}

	case entity.RoleCaregiver:
		// The parent is always made whole; the caregiver only collects a tier.
		out.RefundPercent = 100
		switch {
		case until >= fullRefundNotice:
			out.PenaltyTier = entity.PenaltyNone
		case until > 0:
			out.PenaltyTier = entity.PenaltyWarning
		default:
			out.PenaltyTier = entity.PenaltyFee
		}

	case entity.RoleAdmin:
		out.RefundPercent = 100
		out.PenaltyTier = entity.PenaltyNone

	default:
		return out, fmt.Errorf("role %q cannot cancel bookings", role)
	}

	return out, nil
}

// RefundAmount is the share of total returned to the parent, rounded half up.
func RefundAmount(total int64, percent int) int64 {
	if percent <= 0 {
		return 0
	}
	if percent >= 100 {
		return total
	}
	return (total*int64(percent) + 50) / 100
}

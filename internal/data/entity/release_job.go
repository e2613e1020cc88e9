package entity

import (
	"time"

	"github.com/google/uuid"
)

type ReleaseJobStatus string

const (
	ReleaseJobPending    ReleaseJobStatus = "pending"
	ReleaseJobProcessing ReleaseJobStatus = "processing"
	ReleaseJobDone       ReleaseJobStatus = "done"
	ReleaseJobCancelled  ReleaseJobStatus = "cancelled"
	ReleaseJobFailed     ReleaseJobStatus = "failed"
)

// ReleaseJob is the durable timer that completes a booking once the
// dispute window after EndDate has passed.
type ReleaseJob struct {
	BookingID     uuid.UUID        `db:"booking_id"`
	FireAt        time.Time        `db:"fire_at"`
	Status        ReleaseJobStatus `db:"status"`
	Attempts      int              `db:"attempts"`
	NextAttemptAt time.Time        `db:"next_attempt_at"`
	LastError     *string          `db:"last_error"`
	CreatedAt     time.Time        `db:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at"`
}

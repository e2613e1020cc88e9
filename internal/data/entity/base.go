package entity

import (
	"time"

	"github.com/google/uuid"
)

// Base holds the columns shared by every settlement table. Rows are never
// soft-deleted: bookings, claims and ledger entries form an audit trail.
type Base struct {
	ID        uuid.UUID `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

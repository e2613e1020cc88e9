package entity

import (
	"github.com/google/uuid"
)

type EscrowOperationKind string

const (
	EscrowHold    EscrowOperationKind = "hold"
	EscrowRelease EscrowOperationKind = "release"
	EscrowRefund  EscrowOperationKind = "refund"
)

type EscrowOperationStatus string

const (
	EscrowOpPending   EscrowOperationStatus = "pending"
	EscrowOpSucceeded EscrowOperationStatus = "succeeded"
	EscrowOpFailed    EscrowOperationStatus = "failed"
	// EscrowOpUnknown means the processor call timed out and the outcome has
	// not been confirmed by a status lookup yet.
	EscrowOpUnknown EscrowOperationStatus = "unknown"
)

// EscrowOperation is one ledger line per booking and kind. Amount is what
// moved through the processor; Retained is what the platform kept.
type EscrowOperation struct {
	Base
	BookingID      uuid.UUID             `db:"booking_id"`
	Kind           EscrowOperationKind   `db:"kind"`
	Amount         int64                 `db:"amount"`
	Retained       int64                 `db:"retained"`
	Status         EscrowOperationStatus `db:"status"`
	IdempotencyKey string                `db:"idempotency_key"`
	ReceiptRef     *string               `db:"receipt_ref"`
	Attempts       int                   `db:"attempts"`
	LastError      *string               `db:"last_error"`
}

func (o *EscrowOperation) Succeeded() bool {
	return o != nil && o.Status == EscrowOpSucceeded
}

// Unresolved is true when the processor may or may not have moved money.
func (o *EscrowOperation) Unresolved() bool {
	return o != nil && (o.Status == EscrowOpPending || o.Status == EscrowOpUnknown)
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"vivaly-settlement/internal/data/entity"
	"vivaly-settlement/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type EscrowRepository interface {
	// Create inserts a ledger line. A second line for the same booking and
	// kind, or a release next to a live refund (and the reverse), fails with
	// ErrDuplicate.
	Create(ctx context.Context, op *entity.EscrowOperation) error
	FindByBookingAndKind(ctx context.Context, bookingID uuid.UUID, kind entity.EscrowOperationKind) (*entity.EscrowOperation, error)
	FindByBookingID(ctx context.Context, bookingID uuid.UUID) ([]*entity.EscrowOperation, error)
	Update(ctx context.Context, op *entity.EscrowOperation) error
}

type escrowRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewEscrowRepository(db database.Querier, log *zap.Logger) EscrowRepository {
	return &escrowRepository{
		db:  db,
		log: log.With(zap.String("repository", "escrow")),
	}
}

const escrowColumns = `
	id, booking_id, kind, amount, retained, status, idempotency_key, receipt_ref,
	attempts, last_error, created_at, updated_at`

func scanEscrowOperation(row pgx.Row) (*entity.EscrowOperation, error) {
	var op entity.EscrowOperation
	err := row.Scan(
		&op.ID,
		&op.BookingID,
		&op.Kind,
		&op.Amount,
		&op.Retained,
		&op.Status,
		&op.IdempotencyKey,
		&op.ReceiptRef,
		&op.Attempts,
		&op.LastError,
		&op.CreatedAt,
		&op.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &op, nil
}

func (r *escrowRepository) Create(ctx context.Context, op *entity.EscrowOperation) error {
	query := `INSERT INTO escrow_operations (` + escrowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.Exec(ctx, query,
		op.ID, op.BookingID, op.Kind, op.Amount, op.Retained, op.Status, op.IdempotencyKey,
		op.ReceiptRef, op.Attempts, op.LastError, op.CreatedAt, op.UpdatedAt,
	)
	if isUniqueViolation(err) {
		r.log.Warn("Escrow operation conflicts with an existing one",
			zap.String("booking_id", op.BookingID.String()),
			zap.String("kind", string(op.Kind)),
		)
		return fmt.Errorf("create %s operation for booking %s: %w", op.Kind, op.BookingID.String(), ErrDuplicate)
	}
	if err != nil {
		r.log.Error("Failed to create escrow operation",
			zap.Error(err),
			zap.String("booking_id", op.BookingID.String()),
			zap.String("kind", string(op.Kind)),
		)
		return fmt.Errorf("create %s operation for booking %s: %w", op.Kind, op.BookingID.String(), err)
	}

	return nil
}

func (r *escrowRepository) FindByBookingAndKind(ctx context.Context, bookingID uuid.UUID, kind entity.EscrowOperationKind) (*entity.EscrowOperation, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrow_operations WHERE booking_id = $1 AND kind = $2`

	op, err := scanEscrowOperation(r.db.QueryRow(ctx, query, bookingID, kind))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find escrow operation",
			zap.Error(err),
			zap.String("booking_id", bookingID.String()),
			zap.String("kind", string(kind)),
		)
		return nil, fmt.Errorf("find %s operation for booking %s: %w", kind, bookingID.String(), err)
	}

	return op, nil
}

func (r *escrowRepository) FindByBookingID(ctx context.Context, bookingID uuid.UUID) ([]*entity.EscrowOperation, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrow_operations WHERE booking_id = $1 ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, bookingID)
	if err != nil {
		r.log.Error("Failed to list escrow operations",
			zap.Error(err),
			zap.String("booking_id", bookingID.String()),
		)
		return nil, fmt.Errorf("list escrow operations for booking %s: %w", bookingID.String(), err)
	}
	defer rows.Close()

	var ops []*entity.EscrowOperation
	for rows.Next() {
		op, err := scanEscrowOperation(rows)
		if err != nil {
			r.log.Error("Failed to scan escrow operation row", zap.Error(err))
			return nil, fmt.Errorf("scan escrow operation row: %w", err)
		}
		ops = append(ops, op)
	}

	return ops, rows.Err()
}

func (r *escrowRepository) Update(ctx context.Context, op *entity.EscrowOperation) error {
	query := `
		UPDATE escrow_operations
		SET amount = $2, retained = $3, status = $4, receipt_ref = $5, attempts = $6,
		    last_error = $7, idempotency_key = $8, updated_at = $9
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query,
		op.ID, op.Amount, op.Retained, op.Status, op.ReceiptRef, op.Attempts, op.LastError,
		op.IdempotencyKey, op.UpdatedAt,
	)
	if isUniqueViolation(err) {
		r.log.Warn("Escrow operation update conflicts with an existing one",
			zap.String("operation_id", op.ID.String()),
			zap.String("kind", string(op.Kind)),
		)
		return fmt.Errorf("update escrow operation %s: %w", op.ID.String(), ErrDuplicate)
	}
	if err != nil {
		r.log.Error("Failed to update escrow operation",
			zap.Error(err),
			zap.String("operation_id", op.ID.String()),
			zap.String("status", string(op.Status)),
		)
		return fmt.Errorf("update escrow operation %s: %w", op.ID.String(), err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("escrow operation %s not found", op.ID.String())
	}

	return nil
}

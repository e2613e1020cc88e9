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

type BookingRepository interface {
	Create(ctx context.Context, booking *entity.Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error)
	FindByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Booking, error)
	CountByParticipant(ctx context.Context, userID uuid.UUID) (int64, error)
	// Update writes booking if its Version still matches the stored row and
	// bumps Version on success. Returns ErrStaleVersion otherwise.
	Update(ctx context.Context, booking *entity.Booking) error
}

type bookingRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewBookingRepository(db database.Querier, log *zap.Logger) BookingRepository {
	return &bookingRepository{
		db:  db,
		log: log.With(zap.String("repository", "booking")),
	}
}

const bookingColumns = `
	id, reference, parent_id, caregiver_id, start_date, end_date, hours_per_day,
	rate_per_hour, number_of_days, caregiver_amount, service_fee, total_amount,
	refunded_amount, status, payment_status, cancelled_by, penalty_tier,
	cancellation_reason, notes, responded_at, paid_at, completed_at, cancelled_at,
	version, created_at, updated_at`

func scanBooking(row pgx.Row) (*entity.Booking, error) {
	var b entity.Booking
	err := row.Scan(
		&b.ID,
		&b.Reference,
		&b.ParentID,
		&b.CaregiverID,
		&b.StartDate,
		&b.EndDate,
		&b.HoursPerDay,
		&b.RatePerHour,
		&b.NumberOfDays,
		&b.CaregiverAmount,
		&b.ServiceFee,
		&b.TotalAmount,
		&b.RefundedAmount,
		&b.Status,
		&b.PaymentStatus,
		&b.CancelledBy,
		&b.PenaltyTier,
		&b.CancellationReason,
		&b.Notes,
		&b.RespondedAt,
		&b.PaidAt,
		&b.CompletedAt,
		&b.CancelledAt,
		&b.Version,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *bookingRepository) Create(ctx context.Context, b *entity.Booking) error {
	query := `INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		        $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`

	_, err := r.db.Exec(ctx, query,
		b.ID, b.Reference, b.ParentID, b.CaregiverID, b.StartDate, b.EndDate, b.HoursPerDay,
		b.RatePerHour, b.NumberOfDays, b.CaregiverAmount, b.ServiceFee, b.TotalAmount,
		b.RefundedAmount, b.Status, b.PaymentStatus, b.CancelledBy, b.PenaltyTier,
		b.CancellationReason, b.Notes, b.RespondedAt, b.PaidAt, b.CompletedAt, b.CancelledAt,
		b.Version, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		r.log.Error("Failed to create booking",
			zap.Error(err),
			zap.String("reference", b.Reference),
			zap.String("parent_id", b.ParentID.String()),
		)
		return fmt.Errorf("create booking %s: %w", b.Reference, err)
	}

	return nil
}

func (r *bookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find booking by ID",
			zap.Error(err),
			zap.String("booking_id", id.String()),
		)
		return nil, fmt.Errorf("find booking by ID %s: %w", id.String(), err)
	}

	return booking, nil
}

func (r *bookingRepository) FindByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE parent_id = $1 OR caregiver_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		r.log.Error("Failed to find bookings by participant",
			zap.Error(err),
			zap.String("user_id", userID.String()),
			zap.Int("limit", limit),
			zap.Int("offset", offset),
		)
		return nil, fmt.Errorf("find bookings for user %s: %w", userID.String(), err)
	}
	defer rows.Close()

	var bookings []*entity.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			r.log.Error("Failed to scan booking row", zap.Error(err))
			return nil, fmt.Errorf("scan booking row: %w", err)
		}
		bookings = append(bookings, booking)
	}

	return bookings, rows.Err()
}

func (r *bookingRepository) CountByParticipant(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM bookings WHERE parent_id = $1 OR caregiver_id = $1`

	var count int64
	if err := r.db.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		r.log.Error("Failed to count bookings by participant",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return 0, fmt.Errorf("count bookings for user %s: %w", userID.String(), err)
	}

	return count, nil
}

func (r *bookingRepository) Update(ctx context.Context, b *entity.Booking) error {
	query := `
		UPDATE bookings
		SET refunded_amount = $3, status = $4, payment_status = $5, cancelled_by = $6,
		    penalty_tier = $7, cancellation_reason = $8, responded_at = $9, paid_at = $10,
		    completed_at = $11, cancelled_at = $12, updated_at = $13, version = version + 1
		WHERE id = $1 AND version = $2
	`

	result, err := r.db.Exec(ctx, query,
		b.ID,
		b.Version,
		b.RefundedAmount,
		b.Status,
		b.PaymentStatus,
		b.CancelledBy,
		b.PenaltyTier,
		b.CancellationReason,
		b.RespondedAt,
		b.PaidAt,
		b.CompletedAt,
		b.CancelledAt,
		b.UpdatedAt,
	)
	if err != nil {
		r.log.Error("Failed to update booking",
			zap.Error(err),
			zap.String("booking_id", b.ID.String()),
			zap.String("status", string(b.Status)),
		)
		return fmt.Errorf("update booking %s: %w", b.ID.String(), err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("update booking %s at version %d: %w", b.ID.String(), b.Version, ErrStaleVersion)
	}

	b.Version++
	return nil
}

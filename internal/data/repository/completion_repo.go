package repository

import (
	"context"
	"fmt"

	"vivaly-settlement/internal/data/entity"
	"vivaly-settlement/pkg/database"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CompletionRepository interface {
	// Record counts a completed booking for its caregiver. It reports false
	// when the booking was already counted.
	Record(ctx context.Context, completion *entity.CaregiverCompletion) (bool, error)
	CountByCaregiver(ctx context.Context, caregiverID uuid.UUID) (int, error)
}

type completionRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewCompletionRepository(db database.Querier, log *zap.Logger) CompletionRepository {
	return &completionRepository{
		db:  db,
		log: log.With(zap.String("repository", "completion")),
	}
}

func (r *completionRepository) Record(ctx context.Context, c *entity.CaregiverCompletion) (bool, error) {
	query := `
		INSERT INTO caregiver_completions (booking_id, caregiver_id, completed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (booking_id) DO NOTHING
	`

	result, err := r.db.Exec(ctx, query, c.BookingID, c.CaregiverID, c.CompletedAt)
	if err != nil {
		r.log.Error("Failed to record completion",
			zap.Error(err),
			zap.String("booking_id", c.BookingID.String()),
			zap.String("caregiver_id", c.CaregiverID.String()),
		)
		return false, fmt.Errorf("record completion of booking %s: %w", c.BookingID.String(), err)
	}

	return result.RowsAffected() == 1, nil
}

func (r *completionRepository) CountByCaregiver(ctx context.Context, caregiverID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM caregiver_completions WHERE caregiver_id = $1`

	var count int
	if err := r.db.QueryRow(ctx, query, caregiverID).Scan(&count); err != nil {
		r.log.Error("Failed to count completions",
			zap.Error(err),
			zap.String("caregiver_id", caregiverID.String()),
		)
		return 0, fmt.Errorf("count completions for caregiver %s: %w", caregiverID.String(), err)
	}

	return count, nil
}

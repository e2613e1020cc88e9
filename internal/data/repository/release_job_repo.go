package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vivaly-settlement/internal/data/entity"
	"vivaly-settlement/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type ReleaseJobRepository interface {
	// Schedule creates or re-arms the job for a booking.
	Schedule(ctx context.Context, bookingID uuid.UUID, fireAt time.Time) error
	// Cancel stops a job that has not finished yet.
	Cancel(ctx context.Context, bookingID uuid.UUID) error
	FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*entity.ReleaseJob, error)
	// ClaimDue moves up to limit due jobs to processing. Jobs stuck in
	// processing longer than staleAfter are claimed again.
	ClaimDue(ctx context.Context, now time.Time, limit int, staleAfter time.Duration) ([]*entity.ReleaseJob, error)
	MarkDone(ctx context.Context, bookingID uuid.UUID) error
	// MarkFailed records a failed attempt. The job is retried at retryAt
	// unless terminal is set.
	MarkFailed(ctx context.Context, bookingID uuid.UUID, reason string, retryAt time.Time, terminal bool) error
}

type releaseJobRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewReleaseJobRepository(db database.Querier, log *zap.Logger) ReleaseJobRepository {
	return &releaseJobRepository{
		db:  db,
		log: log.With(zap.String("repository", "release_job")),
	}
}

const releaseJobColumns = `booking_id, fire_at, status, attempts, next_attempt_at, last_error, created_at, updated_at`

func scanReleaseJob(row pgx.Row) (*entity.ReleaseJob, error) {
	var job entity.ReleaseJob
	err := row.Scan(
		&job.BookingID,
		&job.FireAt,
		&job.Status,
		&job.Attempts,
		&job.NextAttemptAt,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *releaseJobRepository) Schedule(ctx context.Context, bookingID uuid.UUID, fireAt time.Time) error {
	query := `
		INSERT INTO release_jobs (booking_id, fire_at, status, attempts, next_attempt_at, created_at, updated_at)
		VALUES ($1, $2, 'pending', 0, $2, NOW(), NOW())
		ON CONFLICT (booking_id) DO UPDATE
		SET fire_at = EXCLUDED.fire_at,
		    next_attempt_at = EXCLUDED.fire_at,
		    status = 'pending',
		    attempts = 0,
		    last_error = NULL,
		    updated_at = NOW()
		WHERE release_jobs.status NOT IN ('done', 'processing')
	`

	if _, err := r.db.Exec(ctx, query, bookingID, fireAt); err != nil {
		r.log.Error("Failed to schedule release job",
			zap.Error(err),
			zap.String("booking_id", bookingID.String()),
			zap.Time("fire_at", fireAt),
		)
		return fmt.Errorf("schedule release for booking %s: %w", bookingID.String(), err)
	}

	return nil
}

func (r *releaseJobRepository) Cancel(ctx context.Context, bookingID uuid.UUID) error {
	query := `
		UPDATE release_jobs
		SET status = 'cancelled', updated_at = NOW()
		WHERE booking_id = $1 AND status IN ('pending', 'processing', 'failed')
	`

	if _, err := r.db.Exec(ctx, query, bookingID); err != nil {
		r.log.Error("Failed to cancel release job",
			zap.Error(err),
			zap.String("booking_id", bookingID.String()),
		)
		return fmt.Errorf("cancel release for booking %s: %w", bookingID.String(), err)
	}

	return nil
}

func (r *releaseJobRepository) FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*entity.ReleaseJob, error) {
	query := `SELECT ` + releaseJobColumns + ` FROM release_jobs WHERE booking_id = $1`

	job, err := scanReleaseJob(r.db.QueryRow(ctx, query, bookingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find release job",
			zap.Error(err),
			zap.String("booking_id", bookingID.String()),
		)
		return nil, fmt.Errorf("find release job for booking %s: %w", bookingID.String(), err)
	}

	return job, nil
}

func (r *releaseJobRepository) ClaimDue(ctx context.Context, now time.Time, limit int, staleAfter time.Duration) ([]*entity.ReleaseJob, error) {
	query := `
		WITH due AS (
			SELECT booking_id
			FROM release_jobs
			WHERE (status = 'pending' AND next_attempt_at <= $1)
			   OR (status = 'processing' AND updated_at <= $2)
			ORDER BY next_attempt_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE release_jobs j
		SET status = 'processing', attempts = j.attempts + 1, updated_at = $1
		FROM due
		WHERE j.booking_id = due.booking_id
		RETURNING j.booking_id, j.fire_at, j.status, j.attempts, j.next_attempt_at,
		          j.last_error, j.created_at, j.updated_at
	`

	rows, err := r.db.Query(ctx, query, now, now.Add(-staleAfter), limit)
	if err != nil {
		r.log.Error("Failed to claim due release jobs", zap.Error(err), zap.Int("limit", limit))
		return nil, fmt.Errorf("claim due release jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*entity.ReleaseJob
	for rows.Next() {
		job, err := scanReleaseJob(rows)
		if err != nil {
			r.log.Error("Failed to scan release job row", zap.Error(err))
			return nil, fmt.Errorf("scan release job row: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

func (r *releaseJobRepository) MarkDone(ctx context.Context, bookingID uuid.UUID) error {
	query := `
		UPDATE release_jobs
		SET status = 'done', last_error = NULL, updated_at = NOW()
		WHERE booking_id = $1 AND status = 'processing'
	`

	if _, err := r.db.Exec(ctx, query, bookingID); err != nil {
		r.log.Error("Failed to mark release job done",
			zap.Error(err),
			zap.String("booking_id", bookingID.String()),
		)
		return fmt.Errorf("mark release job %s done: %w", bookingID.String(), err)
	}

	return nil
}

func (r *releaseJobRepository) MarkFailed(ctx context.Context, bookingID uuid.UUID, reason string, retryAt time.Time, terminal bool) error {
	status := entity.ReleaseJobPending
	if terminal {
		status = entity.ReleaseJobFailed
	}

	query := `
		UPDATE release_jobs
		SET status = $2, last_error = $3, next_attempt_at = $4, updated_at = NOW()
		WHERE booking_id = $1 AND status = 'processing'
	`

	if _, err := r.db.Exec(ctx, query, bookingID, status, reason, retryAt); err != nil {
		r.log.Error("Failed to mark release job failed",
			zap.Error(err),
			zap.String("booking_id", bookingID.String()),
		)
		return fmt.Errorf("mark release job %s failed: %w", bookingID.String(), err)
	}

	return nil
}

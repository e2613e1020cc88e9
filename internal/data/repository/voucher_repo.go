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

type VoucherRepository interface {
	Create(ctx context.Context, claim *entity.VoucherClaim) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.VoucherClaim, error)
	FindByCaregiver(ctx context.Context, caregiverID uuid.UUID, limit, offset int) ([]*entity.VoucherClaim, error)
	CountByCaregiver(ctx context.Context, caregiverID uuid.UUID) (int64, error)
	FindByStatus(ctx context.Context, status entity.VoucherStatus, limit, offset int) ([]*entity.VoucherClaim, error)
	CountByStatus(ctx context.Context, status entity.VoucherStatus) (int64, error)
	// UpdateStatus persists a status change only if the stored status still
	// equals from. Returns ErrStaleVersion otherwise.
	UpdateStatus(ctx context.Context, claim *entity.VoucherClaim, from entity.VoucherStatus) error
	// RecordPayoutAttempt stores PayoutAttempts of an approved claim.
	RecordPayoutAttempt(ctx context.Context, claim *entity.VoucherClaim) error
	Stats(ctx context.Context) (*entity.VoucherStats, error)
}

type voucherRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewVoucherRepository(db database.Querier, log *zap.Logger) VoucherRepository {
	return &voucherRepository{
		db:  db,
		log: log.With(zap.String("repository", "voucher")),
	}
}

const voucherColumns = `
	id, reference, caregiver_id, voucher_type, receipt_amount, refund_rate_bps,
	refund_amount, receipt_image_url, certification_date, expiry_date, state, status,
	submission_date, reviewed_by, review_notes, processed_at, paid_at, payout_ref,
	payout_attempts, created_at, updated_at`

func scanVoucherClaim(row pgx.Row) (*entity.VoucherClaim, error) {
	var c entity.VoucherClaim
	err := row.Scan(
		&c.ID,
		&c.Reference,
		&c.CaregiverID,
		&c.VoucherType,
		&c.ReceiptAmount,
		&c.RefundRateBps,
		&c.RefundAmount,
		&c.ReceiptImageURL,
		&c.CertificationDate,
		&c.ExpiryDate,
		&c.State,
		&c.Status,
		&c.SubmissionDate,
		&c.ReviewedBy,
		&c.ReviewNotes,
		&c.ProcessedAt,
		&c.PaidAt,
		&c.PayoutRef,
		&c.PayoutAttempts,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *voucherRepository) Create(ctx context.Context, c *entity.VoucherClaim) error {
	query := `INSERT INTO voucher_claims (` + voucherColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

	_, err := r.db.Exec(ctx, query,
		c.ID, c.Reference, c.CaregiverID, c.VoucherType, c.ReceiptAmount, c.RefundRateBps,
		c.RefundAmount, c.ReceiptImageURL, c.CertificationDate, c.ExpiryDate, c.State, c.Status,
		c.SubmissionDate, c.ReviewedBy, c.ReviewNotes, c.ProcessedAt, c.PaidAt, c.PayoutRef,
		c.PayoutAttempts, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		r.log.Error("Failed to create voucher claim",
			zap.Error(err),
			zap.String("caregiver_id", c.CaregiverID.String()),
			zap.String("voucher_type", string(c.VoucherType)),
		)
		return fmt.Errorf("create voucher claim %s: %w", c.Reference, err)
	}

	return nil
}

func (r *voucherRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.VoucherClaim, error) {
	query := `SELECT ` + voucherColumns + ` FROM voucher_claims WHERE id = $1`

	claim, err := scanVoucherClaim(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find voucher claim by ID",
			zap.Error(err),
			zap.String("claim_id", id.String()),
		)
		return nil, fmt.Errorf("find voucher claim by ID %s: %w", id.String(), err)
	}

	return claim, nil
}

func (r *voucherRepository) FindByCaregiver(ctx context.Context, caregiverID uuid.UUID, limit, offset int) ([]*entity.VoucherClaim, error) {
	query := `SELECT ` + voucherColumns + `
		FROM voucher_claims
		WHERE caregiver_id = $1
		ORDER BY submission_date DESC
		LIMIT $2 OFFSET $3`

	return r.list(ctx, "caregiver", query, caregiverID, limit, offset)
}

func (r *voucherRepository) CountByCaregiver(ctx context.Context, caregiverID uuid.UUID) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM voucher_claims WHERE caregiver_id = $1`, caregiverID)
}

func (r *voucherRepository) FindByStatus(ctx context.Context, status entity.VoucherStatus, limit, offset int) ([]*entity.VoucherClaim, error) {
	query := `SELECT ` + voucherColumns + `
		FROM voucher_claims
		WHERE status = $1
		ORDER BY submission_date
		LIMIT $2 OFFSET $3`

	return r.list(ctx, "status", query, status, limit, offset)
}

func (r *voucherRepository) CountByStatus(ctx context.Context, status entity.VoucherStatus) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM voucher_claims WHERE status = $1`, status)
}

func (r *voucherRepository) UpdateStatus(ctx context.Context, c *entity.VoucherClaim, from entity.VoucherStatus) error {
	query := `
		UPDATE voucher_claims
		SET status = $3, reviewed_by = $4, review_notes = $5, processed_at = $6,
		    paid_at = $7, payout_ref = $8, updated_at = $9
		WHERE id = $1 AND status = $2
	`

	result, err := r.db.Exec(ctx, query,
		c.ID, from, c.Status, c.ReviewedBy, c.ReviewNotes, c.ProcessedAt, c.PaidAt, c.PayoutRef, c.UpdatedAt,
	)
	if err != nil {
		r.log.Error("Failed to update voucher claim status",
			zap.Error(err),
			zap.String("claim_id", c.ID.String()),
			zap.String("status", string(c.Status)),
		)
		return fmt.Errorf("update voucher claim %s: %w", c.ID.String(), err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("voucher claim %s is no longer %s: %w", c.ID.String(), from, ErrStaleVersion)
	}

	return nil
}

func (r *voucherRepository) RecordPayoutAttempt(ctx context.Context, c *entity.VoucherClaim) error {
	query := `
		UPDATE voucher_claims
		SET payout_attempts = $2, updated_at = $3
		WHERE id = $1 AND status = 'approved'
	`

	result, err := r.db.Exec(ctx, query, c.ID, c.PayoutAttempts, c.UpdatedAt)
	if err != nil {
		r.log.Error("Failed to record voucher payout attempt",
			zap.Error(err),
			zap.String("claim_id", c.ID.String()),
			zap.Int("payout_attempts", c.PayoutAttempts),
		)
		return fmt.Errorf("record payout attempt for voucher claim %s: %w", c.ID.String(), err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("voucher claim %s is no longer approved: %w", c.ID.String(), ErrStaleVersion)
	}

	return nil
}

func (r *voucherRepository) Stats(ctx context.Context) (*entity.VoucherStats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'paid'),
		       COALESCE(SUM(refund_amount) FILTER (WHERE status = 'paid'), 0)
		FROM voucher_claims
	`

	var stats entity.VoucherStats
	err := r.db.QueryRow(ctx, query).Scan(
		&stats.TotalClaims,
		&stats.PendingClaims,
		&stats.PaidClaims,
		&stats.TotalRefunded,
	)
	if err != nil {
		r.log.Error("Failed to load voucher stats", zap.Error(err))
		return nil, fmt.Errorf("load voucher stats: %w", err)
	}

	return &stats, nil
}

func (r *voucherRepository) list(ctx context.Context, by, query string, arg any, limit, offset int) ([]*entity.VoucherClaim, error) {
	rows, err := r.db.Query(ctx, query, arg, limit, offset)
	if err != nil {
		r.log.Error("Failed to list voucher claims", zap.Error(err), zap.String("by", by))
		return nil, fmt.Errorf("list voucher claims by %s: %w", by, err)
	}
	defer rows.Close()

	var claims []*entity.VoucherClaim
	for rows.Next() {
		claim, err := scanVoucherClaim(rows)
		if err != nil {
			r.log.Error("Failed to scan voucher claim row", zap.Error(err))
			return nil, fmt.Errorf("scan voucher claim row: %w", err)
		}
		claims = append(claims, claim)
	}

	return claims, rows.Err()
}

func (r *voucherRepository) count(ctx context.Context, query string, arg any) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, query, arg).Scan(&count); err != nil {
		r.log.Error("Failed to count voucher claims", zap.Error(err))
		return 0, fmt.Errorf("count voucher claims: %w", err)
	}
	return count, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"vivaly-settlement/pkg/database"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

var (
	// ErrStaleVersion is returned when a row changed since it was read.
	ErrStaleVersion = errors.New("stale version")
	// ErrDuplicate is returned when a write collides with a unique index.
	ErrDuplicate = errors.New("duplicate row")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

type Repository struct {
	Booking    BookingRepository
	Escrow     EscrowRepository
	ReleaseJob ReleaseJobRepository
	Completion CompletionRepository
	Voucher    VoucherRepository

	db  database.PgxIface
	log *zap.Logger
}

func NewRepository(db database.PgxIface, log *zap.Logger) *Repository {
	repo := newRepository(db, log)
	repo.db = db
	repo.log = log
	return repo
}

func newRepository(q database.Querier, log *zap.Logger) *Repository {
	return &Repository{
		Booking:    NewBookingRepository(q, log),
		Escrow:     NewEscrowRepository(q, log),
		ReleaseJob: NewReleaseJobRepository(q, log),
		Completion: NewCompletionRepository(q, log),
		Voucher:    NewVoucherRepository(q, log),
	}
}

// Atomic runs fn with repositories bound to a single transaction. A
// Repository built without a database (in-memory implementations) runs fn
// directly against itself.
func (r *Repository) Atomic(ctx context.Context, fn func(repo *Repository) error) error {
	if r.db == nil {
		return fn(r)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(newRepository(tx, r.log)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		r.log.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

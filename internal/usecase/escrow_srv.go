package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vivaly-settlement/internal/data/entity"
	"vivaly-settlement/internal/data/repository"
	"vivaly-settlement/internal/policy"
	"vivaly-settlement/pkg/processor"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EscrowService moves booking money through the processor and keeps one
// ledger line per booking and operation kind. Callers must hold the
// booking lock. Across instances the ledger itself admits only one live
// release or refund per booking, recorded before the processor is called.
type EscrowService interface {
	// Hold charges the parent for the booking total. Repeating a succeeded
	// hold for the same amount is a no-op.
	Hold(ctx context.Context, booking *entity.Booking, payerRef string) error
	// Release pays the caregiver amount out and keeps the service fee.
	Release(ctx context.Context, booking *entity.Booking) error
	// Refund returns percent of the total to the parent and returns the
	// refunded amount in cents.
	Refund(ctx context.Context, booking *entity.Booking, percent int) (int64, error)
	// Reconcile asks the processor about operations whose outcome is still
	// unknown and returns the updated ledger.
	Reconcile(ctx context.Context, booking *entity.Booking) ([]*entity.EscrowOperation, error)
	Ledger(ctx context.Context, bookingID uuid.UUID) ([]*entity.EscrowOperation, error)
	Operation(ctx context.Context, bookingID uuid.UUID, kind entity.EscrowOperationKind) (*entity.EscrowOperation, error)
}

type escrowService struct {
	repo      *repository.Repository
	processor PaymentProcessor
	events    EventPublisher
	retry     processor.RetryPolicy
	currency  string
	now       func() time.Time
	log       *zap.Logger
}

func NewEscrowService(
	repo *repository.Repository,
	proc PaymentProcessor,
	events EventPublisher,
	retry processor.RetryPolicy,
	currency string,
	log *zap.Logger,
) EscrowService {
	return &escrowService{
		repo:      repo,
		processor: proc,
		events:    events,
		retry:     retry,
		currency:  currency,
		now:       time.Now,
		log:       log.With(zap.String("service", "escrow")),
	}
}

func (s *escrowService) Hold(ctx context.Context, b *entity.Booking, payerRef string) error {
	op, err := s.repo.Escrow.FindByBookingAndKind(ctx, b.ID, entity.EscrowHold)
	if err != nil {
		return fmt.Errorf("load hold for booking %s: %w", b.ID, err)
	}

	if op.Succeeded() {
		if op.Amount != b.TotalAmount {
			return fmt.Errorf("%w: booking %s already holds %d, requested %d", ErrEscrowState, b.ID, op.Amount, b.TotalAmount)
		}
		s.log.Info("Hold already in place", zap.String("booking_id", b.ID.String()))
		return nil
	}

	op, err = s.prepare(ctx, op, b.ID, entity.EscrowHold, b.TotalAmount, 0)
	if err != nil {
		return err
	}

	return s.execute(ctx, op, func(ctx context.Context) (*processor.Receipt, error) {
		return s.processor.Charge(ctx, processor.ChargeRequest{
			Amount:         op.Amount,
			Currency:       s.currency,
			PayerRef:       payerRef,
			IdempotencyKey: op.IdempotencyKey,
			Metadata: map[string]string{
				"booking_id": b.ID.String(),
				"reference":  b.Reference,
			},
		})
	})
}

func (s *escrowService) Release(ctx context.Context, b *entity.Booking) error {
	hold, err := s.repo.Escrow.FindByBookingAndKind(ctx, b.ID, entity.EscrowHold)
	if err != nil {
		return fmt.Errorf("load hold for booking %s: %w", b.ID, err)
	}
	if !hold.Succeeded() {
		return fmt.Errorf("%w: booking %s has no funds held", ErrEscrowState, b.ID)
	}

	refund, err := s.repo.Escrow.FindByBookingAndKind(ctx, b.ID, entity.EscrowRefund)
	if err != nil {
		return fmt.Errorf("load refund for booking %s: %w", b.ID, err)
	}
	if refund.Succeeded() || refund.Unresolved() {
		return fmt.Errorf("%w: booking %s has a refund on record", ErrEscrowState, b.ID)
	}

	op, err := s.repo.Escrow.FindByBookingAndKind(ctx, b.ID, entity.EscrowRelease)
	if err != nil {
		return fmt.Errorf("load release for booking %s: %w", b.ID, err)
	}
	if op.Succeeded() {
		s.log.Info("Release already paid out", zap.String("booking_id", b.ID.String()))
		return nil
	}

	op, err = s.prepare(ctx, op, b.ID, entity.EscrowRelease, b.CaregiverAmount, b.ServiceFee)
	if err != nil {
		return err
	}

	return s.execute(ctx, op, func(ctx context.Context) (*processor.Receipt, error) {
		return s.processor.Payout(ctx, processor.PayoutRequest{
			Amount:         op.Amount,
			Currency:       s.currency,
			PayeeRef:       b.CaregiverID.String(),
			IdempotencyKey: op.IdempotencyKey,
			Metadata: map[string]string{
				"booking_id":  b.ID.String(),
				"reference":   b.Reference,
				"service_fee": fmt.Sprintf("%d", b.ServiceFee),
			},
		})
	})
}

func (s *escrowService) Refund(ctx context.Context, b *entity.Booking, percent int) (int64, error) {
	if percent < 0 || percent > 100 {
		return 0, fmt.Errorf("%w: refund percent %d", ErrInvalidAmount, percent)
	}

	hold, err := s.repo.Escrow.FindByBookingAndKind(ctx, b.ID, entity.EscrowHold)
	if err != nil {
		return 0, fmt.Errorf("load hold for booking %s: %w", b.ID, err)
	}
	if !hold.Succeeded() {
		return 0, fmt.Errorf("%w: booking %s has no funds held", ErrEscrowState, b.ID)
	}

	release, err := s.repo.Escrow.FindByBookingAndKind(ctx, b.ID, entity.EscrowRelease)
	if err != nil {
		return 0, fmt.Errorf("load release for booking %s: %w", b.ID, err)
	}
	if release.Succeeded() || release.Unresolved() {
		return 0, fmt.Errorf("%w: booking %s has already been released", ErrEscrowState, b.ID)
	}

	amount := policy.RefundAmount(b.TotalAmount, percent)

	op, err := s.repo.Escrow.FindByBookingAndKind(ctx, b.ID, entity.EscrowRefund)
	if err != nil {
		return 0, fmt.Errorf("load refund for booking %s: %w", b.ID, err)
	}
	if op.Succeeded() {
		if op.Amount != amount {
			return 0, fmt.Errorf("%w: booking %s already refunded %d", ErrEscrowState, b.ID, op.Amount)
		}
		return op.Amount, nil
	}

	op, err = s.prepare(ctx, op, b.ID, entity.EscrowRefund, amount, b.TotalAmount-amount)
	if err != nil {
		return 0, err
	}

	if amount == 0 {
		// Nothing goes back to the parent; the whole total is retained.
		op.Status = entity.EscrowOpSucceeded
		op.UpdatedAt = s.now()
		if err := s.repo.Escrow.Update(ctx, op); err != nil {
			return 0, fmt.Errorf("record zero refund for booking %s: %w", b.ID, err)
		}
		return 0, nil
	}

	err = s.execute(ctx, op, func(ctx context.Context) (*processor.Receipt, error) {
		return s.processor.Refund(ctx, processor.RefundRequest{
			Amount:         op.Amount,
			Currency:       s.currency,
			ChargeRef:      derefString(hold.ReceiptRef),
			IdempotencyKey: op.IdempotencyKey,
		})
	})
	if err != nil {
		return 0, err
	}

	return op.Amount, nil
}

func (s *escrowService) Reconcile(ctx context.Context, b *entity.Booking) ([]*entity.EscrowOperation, error) {
	ops, err := s.repo.Escrow.FindByBookingID(ctx, b.ID)
	if err != nil {
		return nil, fmt.Errorf("load ledger for booking %s: %w", b.ID, err)
	}

	for _, op := range ops {
		if !op.Unresolved() {
			continue
		}

		receipt, err := resolve(ctx, s.processor, op.IdempotencyKey)
		switch {
		case err == nil && receipt != nil:
			op.Status = entity.EscrowOpSucceeded
			op.ReceiptRef = &receipt.Reference
			op.LastError = nil
		case err == nil:
			msg := "processor has no record of the operation"
			op.Status = entity.EscrowOpFailed
			op.LastError = &msg
		case errors.Is(err, processor.ErrDeclined):
			msg := err.Error()
			op.Status = entity.EscrowOpFailed
			op.LastError = &msg
		default:
			s.log.Warn("Escrow operation still unresolved",
				zap.String("booking_id", b.ID.String()),
				zap.String("kind", string(op.Kind)),
				zap.Error(err))
			continue
		}

		op.UpdatedAt = s.now()
		if err := s.repo.Escrow.Update(ctx, op); err != nil {
			return nil, fmt.Errorf("update %s operation for booking %s: %w", op.Kind, b.ID, err)
		}

		s.log.Info("Escrow operation reconciled",
			zap.String("booking_id", b.ID.String()),
			zap.String("kind", string(op.Kind)),
			zap.String("status", string(op.Status)))
	}

	return ops, nil
}

func (s *escrowService) Ledger(ctx context.Context, bookingID uuid.UUID) ([]*entity.EscrowOperation, error) {
	ops, err := s.repo.Escrow.FindByBookingID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("load ledger for booking %s: %w", bookingID, err)
	}
	return ops, nil
}

func (s *escrowService) Operation(ctx context.Context, bookingID uuid.UUID, kind entity.EscrowOperationKind) (*entity.EscrowOperation, error) {
	return s.repo.Escrow.FindByBookingAndKind(ctx, bookingID, kind)
}

// prepare returns the ledger line to execute: a new one, the unresolved
// previous one, or the failed previous one re-armed under a fresh
// idempotency key.
func (s *escrowService) prepare(
	ctx context.Context,
	op *entity.EscrowOperation,
	bookingID uuid.UUID,
	kind entity.EscrowOperationKind,
	amount, retained int64,
) (*entity.EscrowOperation, error) {
	now := s.now()

	if op == nil {
		op = &entity.EscrowOperation{
			Base: entity.Base{
				ID:        uuid.New(),
				CreatedAt: now,
				UpdatedAt: now,
			},
			BookingID:      bookingID,
			Kind:           kind,
			Amount:         amount,
			Retained:       retained,
			Status:         entity.EscrowOpPending,
			IdempotencyKey: fmt.Sprintf("%s:%s", kind, bookingID),
		}
		if err := s.repo.Escrow.Create(ctx, op); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return nil, fmt.Errorf("%w: booking %s is already being settled", ErrEscrowState, bookingID)
			}
			return nil, fmt.Errorf("record %s for booking %s: %w", kind, bookingID, err)
		}
		return op, nil
	}

	if op.Unresolved() {
		if op.Amount != amount {
			return nil, fmt.Errorf("%w: unresolved %s of %d for booking %s, requested %d", ErrEscrowState, kind, op.Amount, bookingID, amount)
		}
		return op, nil
	}

	// A definitive failure: a new attempt needs a new key so the processor
	// does not replay the old decline.
	op.Amount = amount
	op.Retained = retained
	op.Status = entity.EscrowOpPending
	op.IdempotencyKey = fmt.Sprintf("%s:%s:%d", kind, bookingID, op.Attempts)
	op.UpdatedAt = now
	if err := s.repo.Escrow.Update(ctx, op); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: booking %s is already being settled", ErrEscrowState, bookingID)
		}
		return nil, fmt.Errorf("re-arm %s for booking %s: %w", kind, bookingID, err)
	}
	return op, nil
}

func (s *escrowService) execute(ctx context.Context, op *entity.EscrowOperation, call func(ctx context.Context) (*processor.Receipt, error)) error {
	wasUnknown := op.Status == entity.EscrowOpUnknown

	out, callErr := callWithReconcile(ctx, s.processor, s.retry, op.IdempotencyKey, wasUnknown, call)

	op.Attempts += out.attempts
	op.UpdatedAt = s.now()
	switch {
	case callErr == nil:
		op.Status = entity.EscrowOpSucceeded
		op.ReceiptRef = &out.receipt.Reference
		op.LastError = nil
	case out.unknown:
		msg := callErr.Error()
		op.Status = entity.EscrowOpUnknown
		op.LastError = &msg
	default:
		msg := callErr.Error()
		op.Status = entity.EscrowOpFailed
		op.LastError = &msg
	}

	if err := s.repo.Escrow.Update(ctx, op); err != nil {
		s.log.Error("Failed to record escrow outcome",
			zap.String("booking_id", op.BookingID.String()),
			zap.String("kind", string(op.Kind)),
			zap.String("status", string(op.Status)),
			zap.Error(err))
		if callErr == nil {
			return fmt.Errorf("record %s outcome for booking %s: %w", op.Kind, op.BookingID, err)
		}
	}

	if callErr == nil {
		s.log.Info("Escrow operation succeeded",
			zap.String("booking_id", op.BookingID.String()),
			zap.String("kind", string(op.Kind)),
			zap.Int64("amount", op.Amount),
			zap.Int("attempts", out.attempts))
		return nil
	}

	outcome := string(op.Status)
	s.log.Error("Escrow operation failed",
		zap.String("booking_id", op.BookingID.String()),
		zap.String("kind", string(op.Kind)),
		zap.String("outcome", outcome),
		zap.Int("attempts", op.Attempts),
		zap.Error(callErr))

	publish(ctx, s.events, s.log, EventPaymentFailed, PaymentFailedEvent{
		BookingID: op.BookingID.String(),
		Operation: op.Kind,
		Amount:    op.Amount,
		Outcome:   outcome,
		Error:     callErr.Error(),
		Attempts:  op.Attempts,
	})

	if out.unknown {
		return fmt.Errorf("%w: %w: %s for booking %s: %v", ErrPaymentFailed, ErrPaymentNeedsRecheck, op.Kind, op.BookingID, callErr)
	}
	return fmt.Errorf("%w: %s for booking %s: %v", ErrPaymentFailed, op.Kind, op.BookingID, callErr)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

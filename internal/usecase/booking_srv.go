package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vivaly-settlement/internal/data/entity"
	"vivaly-settlement/internal/data/repository"
	"vivaly-settlement/internal/dto/request"
	"vivaly-settlement/internal/dto/response"
	"vivaly-settlement/internal/policy"
	"vivaly-settlement/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Actor is the authenticated caller of a booking operation.
type Actor struct {
	ID   uuid.UUID
	Role entity.ActorRole
}

// SystemActor drives time-based transitions.
var SystemActor = Actor{Role: entity.RoleSystem}

type BookingService interface {
	CreateBooking(ctx context.Context, parent Actor, req *request.CreateBookingRequest) (*response.BookingResponse, error)
	GetUserBookings(ctx context.Context, actor Actor, req *request.PaginatedRequest) (*response.PaginatedResponse[response.BookingResponse], error)
	GetBookingByID(ctx context.Context, actor Actor, bookingID string) (*response.BookingDetailResponse, error)

	RespondToBooking(ctx context.Context, caregiver Actor, bookingID string, req *request.RespondBookingRequest) (*response.BookingResponse, error)
	PayBooking(ctx context.Context, parent Actor, bookingID string, req *request.PayBookingRequest) (*response.BookingResponse, error)
	CompleteBooking(ctx context.Context, actor Actor, bookingID string) (*response.BookingResponse, error)
	CancelBooking(ctx context.Context, actor Actor, bookingID string, req *request.CancelBookingRequest) (*response.BookingResponse, error)

	// ReconcileBooking resolves unknown processor outcomes and moves the
	// booking to wherever its ledger says the money already is.
	ReconcileBooking(ctx context.Context, bookingID string) (*response.BookingDetailResponse, error)
}

type bookingService struct {
	repo         *repository.Repository
	escrow       EscrowService
	events       EventPublisher
	fees         policy.FeeCalculator
	releaseDelay time.Duration
	locks        *keyedMutex
	now          func() time.Time
	log          *zap.Logger
}

func NewBookingService(
	repo *repository.Repository,
	escrow EscrowService,
	events EventPublisher,
	billing utils.BillingConfig,
	log *zap.Logger,
) BookingService {
	return &bookingService{
		repo:         repo,
		escrow:       escrow,
		events:       events,
		fees:         policy.NewFeeCalculator(billing.PlatformFeeBps),
		releaseDelay: billing.ReleaseDelay,
		locks:        newKeyedMutex(),
		now:          time.Now,
		log:          log.With(zap.String("service", "booking")),
	}
}

func (s *bookingService) CreateBooking(ctx context.Context, parent Actor, req *request.CreateBookingRequest) (*response.BookingResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.log.Warn("Create booking validation failed", zap.Any("errors", errs))
		return nil, fmt.Errorf("%w: %s", ErrValidation, utils.FormatValidationErrors(errs))
	}

	if parent.Role != entity.RoleParent {
		return nil, fmt.Errorf("%w: only parents can create bookings", ErrInvalidTransition)
	}

	caregiverID, err := uuid.Parse(req.CaregiverID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid caregiver ID format %s", ErrValidation, req.CaregiverID)
	}
	if caregiverID == parent.ID {
		return nil, fmt.Errorf("%w: parent and caregiver must differ", ErrValidation)
	}

	now := s.now()
	if !req.StartDate.After(now) {
		return nil, fmt.Errorf("%w: start date must be in the future", ErrValidation)
	}

	days := policy.NumberOfDays(req.StartDate, req.EndDate)
	rate := policy.DollarsToCents(req.RatePerHour)

	fees, err := s.fees.Calculate(rate, req.HoursPerDay, days)
	if err != nil {
		return nil, err
	}

	booking := &entity.Booking{
		Base: entity.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Reference:       utils.GenerateReference("BKG", now),
		ParentID:        parent.ID,
		CaregiverID:     caregiverID,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		HoursPerDay:     req.HoursPerDay,
		RatePerHour:     rate,
		NumberOfDays:    days,
		CaregiverAmount: fees.CaregiverAmount,
		ServiceFee:      fees.ServiceFee,
		TotalAmount:     fees.TotalAmount,
		Status:          entity.BookingStatusPending,
		PaymentStatus:   entity.PaymentStatusUnpaid,
		Notes:           strings.TrimSpace(req.Notes),
		Version:         1,
	}

	if err := s.repo.Booking.Create(ctx, booking); err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	s.log.Info("Booking created",
		zap.String("booking_id", booking.ID.String()),
		zap.String("reference", booking.Reference),
		zap.Int64("total_amount", booking.TotalAmount))

	publish(ctx, s.events, s.log, EventBookingCreated, newBookingEvent(booking, now))

	resp := response.BookingToResponse(booking)
	return &resp, nil
}

func (s *bookingService) GetUserBookings(ctx context.Context, actor Actor, req *request.PaginatedRequest) (*response.PaginatedResponse[response.BookingResponse], error) {
	bookings, err := s.repo.Booking.FindByParticipant(ctx, actor.ID, req.Limit(), req.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings: %w", err)
	}

	total, err := s.repo.Booking.CountByParticipant(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count bookings: %w", err)
	}

	data := make([]response.BookingResponse, len(bookings))
	for i, b := range bookings {
		data[i] = response.BookingToResponse(b)
	}

	return response.NewPaginatedResponse(data, req.Page, req.Limit(), total), nil
}

func (s *bookingService) GetBookingByID(ctx context.Context, actor Actor, bookingID string) (*response.BookingDetailResponse, error) {
	id, err := parseBookingID(bookingID)
	if err != nil {
		return nil, err
	}

	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	// Non-parties see the same answer as for a missing booking.
	if actor.Role != entity.RoleAdmin && !booking.IsParty(actor.ID) {
		return nil, fmt.Errorf("%w: booking %s", ErrNotFound, bookingID)
	}

	return s.detail(ctx, booking)
}

func (s *bookingService) RespondToBooking(ctx context.Context, caregiver Actor, bookingID string, req *request.RespondBookingRequest) (*response.BookingResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrValidation, utils.FormatValidationErrors(errs))
	}

	id, err := parseBookingID(bookingID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if caregiver.Role != entity.RoleCaregiver || booking.CaregiverID != caregiver.ID {
		return nil, fmt.Errorf("%w: only the assigned caregiver can respond", ErrInvalidTransition)
	}

	next, event := entity.BookingStatusConfirmed, EventBookingAwaitingPayment
	if req.Action == "decline" {
		next, event = entity.BookingStatusDeclined, EventBookingDeclined
	}

	if booking.Status != entity.BookingStatusPending || !booking.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: cannot %s a %s booking", ErrInvalidTransition, req.Action, booking.Status)
	}

	now := s.now()
	booking.Status = next
	booking.RespondedAt = &now
	booking.UpdatedAt = now

	if err := s.save(ctx, booking, nil); err != nil {
		return nil, err
	}

	s.log.Info("Booking responded",
		zap.String("booking_id", booking.ID.String()),
		zap.String("status", string(booking.Status)))

	publish(ctx, s.events, s.log, event, newBookingEvent(booking, now))

	resp := response.BookingToResponse(booking)
	return &resp, nil
}

func (s *bookingService) PayBooking(ctx context.Context, parent Actor, bookingID string, req *request.PayBookingRequest) (*response.BookingResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrValidation, utils.FormatValidationErrors(errs))
	}

	id, err := parseBookingID(bookingID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if parent.Role != entity.RoleParent || booking.ParentID != parent.ID {
		return nil, fmt.Errorf("%w: only the booking's parent can pay", ErrInvalidTransition)
	}
	if booking.Status != entity.BookingStatusConfirmed {
		return nil, fmt.Errorf("%w: booking is %s", ErrNotConfirmed, booking.Status)
	}
	if booking.PaymentStatus != entity.PaymentStatusUnpaid {
		return nil, fmt.Errorf("%w: payment status is %s", ErrPaymentRequired, booking.PaymentStatus)
	}

	payerRef := strings.TrimSpace(req.PaymentSource)
	if payerRef == "" {
		payerRef = parent.ID.String()
	}

	// The booking stays untouched unless the hold succeeds.
	if err := s.escrow.Hold(ctx, booking, payerRef); err != nil {
		return nil, err
	}

	now := s.now()
	booking.PaymentStatus = entity.PaymentStatusPaidUnreleased
	booking.PaidAt = &now
	booking.UpdatedAt = now

	fireAt := booking.EndDate.Add(s.releaseDelay)
	err = s.save(ctx, booking, func(tx *repository.Repository) error {
		return tx.ReleaseJob.Schedule(ctx, booking.ID, fireAt)
	})
	if err != nil {
		s.log.Error("Funds held but booking not updated",
			zap.String("booking_id", booking.ID.String()),
			zap.Error(err))
		return nil, err
	}

	s.log.Info("Booking paid",
		zap.String("booking_id", booking.ID.String()),
		zap.Int64("total_amount", booking.TotalAmount),
		zap.Time("release_at", fireAt))

	publish(ctx, s.events, s.log, EventBookingPaid, newBookingEvent(booking, now))

	resp := response.BookingToResponse(booking)
	return &resp, nil
}

func (s *bookingService) CompleteBooking(ctx context.Context, actor Actor, bookingID string) (*response.BookingResponse, error) {
	id, err := parseBookingID(bookingID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	switch actor.Role {
	case entity.RoleSystem:
	case entity.RoleParent:
		if booking.ParentID != actor.ID {
			return nil, fmt.Errorf("%w: only the booking's parent can complete it", ErrInvalidTransition)
		}
	default:
		return nil, fmt.Errorf("%w: %s cannot complete bookings", ErrInvalidTransition, actor.Role)
	}

	// Completing twice is a no-op, whoever gets there second.
	if booking.Status == entity.BookingStatusCompleted {
		resp := response.BookingToResponse(booking)
		return &resp, nil
	}

	completable := booking.Status == entity.BookingStatusConfirmed &&
		booking.PaymentStatus == entity.PaymentStatusPaidUnreleased

	now := s.now()
	if actor.Role == entity.RoleSystem {
		if !completable {
			s.log.Info("Nothing to release",
				zap.String("booking_id", booking.ID.String()),
				zap.String("status", string(booking.Status)),
				zap.String("payment_status", string(booking.PaymentStatus)))
			resp := response.BookingToResponse(booking)
			return &resp, nil
		}
	} else {
		if booking.Status.IsTerminal() {
			return nil, fmt.Errorf("%w: booking is %s", ErrAlreadyTerminal, booking.Status)
		}
		if !completable {
			return nil, fmt.Errorf("%w: booking is %s and %s", ErrInvalidTransition, booking.Status, booking.PaymentStatus)
		}
		if now.Before(booking.EndDate) {
			return nil, fmt.Errorf("%w: ends at %s", ErrTooEarly, booking.EndDate.Format(time.RFC3339))
		}
	}

	if err := s.escrow.Release(ctx, booking); err != nil {
		return nil, err
	}

	booking.Status = entity.BookingStatusCompleted
	booking.PaymentStatus = entity.PaymentStatusReleased
	booking.CompletedAt = &now
	booking.UpdatedAt = now

	err = s.save(ctx, booking, func(tx *repository.Repository) error {
		if err := s.recordCompletion(ctx, tx, booking, now); err != nil {
			return err
		}
		// The sweep marks its own job done.
		if actor.Role != entity.RoleSystem {
			return tx.ReleaseJob.Cancel(ctx, booking.ID)
		}
		return nil
	})
	if err != nil {
		s.log.Error("Funds released but booking not updated",
			zap.String("booking_id", booking.ID.String()),
			zap.Error(err))
		return nil, err
	}

	s.log.Info("Booking completed",
		zap.String("booking_id", booking.ID.String()),
		zap.String("by", string(actor.Role)),
		zap.Int64("caregiver_amount", booking.CaregiverAmount),
		zap.Int64("service_fee", booking.ServiceFee))

	publish(ctx, s.events, s.log, EventBookingCompleted, newBookingEvent(booking, now))

	resp := response.BookingToResponse(booking)
	return &resp, nil
}

func (s *bookingService) CancelBooking(ctx context.Context, actor Actor, bookingID string, req *request.CancelBookingRequest) (*response.BookingResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrValidation, utils.FormatValidationErrors(errs))
	}

	id, err := parseBookingID(bookingID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	switch actor.Role {
	case entity.RoleParent:
		if booking.ParentID != actor.ID {
			return nil, fmt.Errorf("%w: not the booking's parent", ErrInvalidTransition)
		}
	case entity.RoleCaregiver:
		if booking.CaregiverID != actor.ID {
			return nil, fmt.Errorf("%w: not the booking's caregiver", ErrInvalidTransition)
		}
	case entity.RoleAdmin:
	default:
		return nil, fmt.Errorf("%w: %s cannot cancel bookings", ErrInvalidTransition, actor.Role)
	}

	if booking.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: booking is %s", ErrAlreadyTerminal, booking.Status)
	}

	now := s.now()
	outcome, err := policy.EvaluateCancellation(booking.StartDate, now, actor.Role)
	if err != nil {
		return nil, err
	}

	held := booking.PaymentStatus.HoldsFunds()
	if !held {
		// A hold can land without the booking noticing (crash between the
		// charge and the save). Refund it rather than strand the money.
		hold, err := s.escrow.Operation(ctx, booking.ID, entity.EscrowHold)
		if err != nil {
			return nil, fmt.Errorf("failed to load hold: %w", err)
		}
		if hold.Unresolved() {
			return nil, fmt.Errorf("%w: payment outcome for booking %s is unknown, reconcile first", ErrEscrowState, booking.ID)
		}
		held = hold.Succeeded()
	}

	if held {
		refunded, err := s.escrow.Refund(ctx, booking, outcome.RefundPercent)
		if err != nil {
			return nil, err
		}
		booking.RefundedAmount = refunded
		booking.PaymentStatus = entity.PaymentStatusPartiallyRefunded
		if refunded == booking.TotalAmount {
			booking.PaymentStatus = entity.PaymentStatusRefunded
		}
	}

	role := actor.Role
	tier := outcome.PenaltyTier
	booking.Status = entity.BookingStatusCancelled
	booking.CancelledBy = &role
	booking.PenaltyTier = &tier
	booking.CancelledAt = &now
	booking.UpdatedAt = now
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		booking.CancellationReason = &reason
	}

	err = s.save(ctx, booking, func(tx *repository.Repository) error {
		return tx.ReleaseJob.Cancel(ctx, booking.ID)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Booking cancelled",
		zap.String("booking_id", booking.ID.String()),
		zap.String("by", string(role)),
		zap.Int("refund_percent", outcome.RefundPercent),
		zap.Int64("refunded_amount", booking.RefundedAmount),
		zap.String("penalty_tier", string(tier)))

	publish(ctx, s.events, s.log, EventBookingCancelled, newBookingEvent(booking, now))

	resp := response.BookingToResponse(booking)
	return &resp, nil
}

func (s *bookingService) ReconcileBooking(ctx context.Context, bookingID string) (*response.BookingDetailResponse, error) {
	id, err := parseBookingID(bookingID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	ops, err := s.escrow.Reconcile(ctx, booking)
	if err != nil {
		return nil, err
	}

	byKind := make(map[entity.EscrowOperationKind]*entity.EscrowOperation, len(ops))
	for _, op := range ops {
		byKind[op.Kind] = op
	}

	now := s.now()
	var (
		event string
		after func(tx *repository.Repository) error
	)

	switch {
	case byKind[entity.EscrowRelease].Succeeded() && booking.PaymentStatus.HoldsFunds():
		booking.Status = entity.BookingStatusCompleted
		booking.PaymentStatus = entity.PaymentStatusReleased
		booking.CompletedAt = &now
		event = EventBookingCompleted
		after = func(tx *repository.Repository) error {
			if err := s.recordCompletion(ctx, tx, booking, now); err != nil {
				return err
			}
			return tx.ReleaseJob.Cancel(ctx, booking.ID)
		}

	case byKind[entity.EscrowRefund].Succeeded() && !booking.Status.IsTerminal():
		refund := byKind[entity.EscrowRefund]
		role := entity.RoleSystem
		booking.Status = entity.BookingStatusCancelled
		booking.CancelledBy = &role
		booking.RefundedAmount = refund.Amount
		booking.PaymentStatus = entity.PaymentStatusPartiallyRefunded
		if refund.Amount == booking.TotalAmount {
			booking.PaymentStatus = entity.PaymentStatusRefunded
		}
		booking.CancelledAt = &now
		event = EventBookingCancelled
		after = func(tx *repository.Repository) error {
			return tx.ReleaseJob.Cancel(ctx, booking.ID)
		}

	case byKind[entity.EscrowHold].Succeeded() && booking.Status == entity.BookingStatusConfirmed &&
		booking.PaymentStatus == entity.PaymentStatusUnpaid:
		booking.PaymentStatus = entity.PaymentStatusPaidUnreleased
		booking.PaidAt = &now
		event = EventBookingPaid
		fireAt := booking.EndDate.Add(s.releaseDelay)
		after = func(tx *repository.Repository) error {
			return tx.ReleaseJob.Schedule(ctx, booking.ID, fireAt)
		}
	}

	if event != "" {
		booking.UpdatedAt = now
		if err := s.save(ctx, booking, after); err != nil {
			return nil, err
		}

		s.log.Info("Booking reconciled",
			zap.String("booking_id", booking.ID.String()),
			zap.String("status", string(booking.Status)),
			zap.String("payment_status", string(booking.PaymentStatus)))

		publish(ctx, s.events, s.log, event, newBookingEvent(booking, now))
	}

	return s.detail(ctx, booking)
}

func (s *bookingService) load(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	booking, err := s.repo.Booking.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if booking == nil {
		return nil, fmt.Errorf("%w: booking %s", ErrNotFound, id)
	}
	return booking, nil
}

// save writes booking and any side effects in one transaction after checking
// the money invariants.
func (s *bookingService) save(ctx context.Context, booking *entity.Booking, also func(tx *repository.Repository) error) error {
	if !booking.Consistent() {
		s.log.Error("Refusing to save inconsistent booking",
			zap.String("booking_id", booking.ID.String()),
			zap.String("status", string(booking.Status)),
			zap.String("payment_status", string(booking.PaymentStatus)))
		return fmt.Errorf("%w: booking %s is %s with payment %s", ErrEscrowState, booking.ID, booking.Status, booking.PaymentStatus)
	}

	return s.repo.Atomic(ctx, func(tx *repository.Repository) error {
		if err := tx.Booking.Update(ctx, booking); err != nil {
			return err
		}
		if also != nil {
			return also(tx)
		}
		return nil
	})
}

func (s *bookingService) recordCompletion(ctx context.Context, tx *repository.Repository, booking *entity.Booking, at time.Time) error {
	counted, err := tx.Completion.Record(ctx, &entity.CaregiverCompletion{
		BookingID:   booking.ID,
		CaregiverID: booking.CaregiverID,
		CompletedAt: at,
	})
	if err != nil {
		return err
	}
	if !counted {
		s.log.Warn("Completion already counted", zap.String("booking_id", booking.ID.String()))
	}
	return nil
}

func (s *bookingService) detail(ctx context.Context, booking *entity.Booking) (*response.BookingDetailResponse, error) {
	ops, err := s.escrow.Ledger(ctx, booking.ID)
	if err != nil {
		return nil, err
	}

	job, err := s.repo.ReleaseJob.FindByBookingID(ctx, booking.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get release job: %w", err)
	}

	detail := &response.BookingDetailResponse{
		BookingResponse: response.BookingToResponse(booking),
		Escrow:          make([]response.EscrowOperationResponse, len(ops)),
	}
	for i, op := range ops {
		detail.Escrow[i] = response.EscrowOperationToResponse(op)
	}
	if job != nil && job.Status != entity.ReleaseJobCancelled && job.Status != entity.ReleaseJobDone {
		fireAt := job.FireAt
		detail.ReleaseAt = &fireAt
	}

	return detail, nil
}

func parseBookingID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid booking ID format %s", ErrValidation, raw)
	}
	return id, nil
}

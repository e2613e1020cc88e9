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
	"vivaly-settlement/pkg/processor"
	"vivaly-settlement/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type VoucherService interface {
	GetVoucherTypes(ctx context.Context) []response.VoucherTypeResponse
	SubmitClaim(ctx context.Context, caregiver Actor, req *request.SubmitVoucherClaimRequest) (*response.VoucherClaimResponse, error)
	GetMyClaims(ctx context.Context, caregiver Actor, req *request.PaginatedRequest) (*response.PaginatedResponse[response.VoucherClaimResponse], error)

	// Admin
	ListClaims(ctx context.Context, req *request.ListVoucherClaimsRequest) (*response.PaginatedResponse[response.VoucherClaimResponse], error)
	ReviewClaim(ctx context.Context, admin Actor, claimID string, req *request.ReviewVoucherRequest) (*response.VoucherClaimResponse, error)
	PayClaim(ctx context.Context, admin Actor, claimID string) (*response.VoucherClaimResponse, error)
	GetStats(ctx context.Context) (*response.VoucherStatsResponse, error)
}

type voucherService struct {
	repo        *repository.Repository
	eligibility EligibilityService
	processor   PaymentProcessor
	events      EventPublisher
	retry       processor.RetryPolicy
	currency    string
	locks       *keyedMutex
	now         func() time.Time
	log         *zap.Logger
}

func NewVoucherService(
	repo *repository.Repository,
	eligibility EligibilityService,
	proc PaymentProcessor,
	events EventPublisher,
	retry processor.RetryPolicy,
	currency string,
	log *zap.Logger,
) VoucherService {
	return &voucherService{
		repo:        repo,
		eligibility: eligibility,
		processor:   proc,
		events:      events,
		retry:       retry,
		currency:    currency,
		locks:       newKeyedMutex(),
		now:         time.Now,
		log:         log.With(zap.String("service", "voucher")),
	}
}

func (s *voucherService) GetVoucherTypes(ctx context.Context) []response.VoucherTypeResponse {
	catalog := policy.VoucherCatalog()
	types := make([]response.VoucherTypeResponse, len(catalog))
	for i, t := range catalog {
		types[i] = response.VoucherTermsToResponse(t)
	}
	return types
}

func (s *voucherService) SubmitClaim(ctx context.Context, caregiver Actor, req *request.SubmitVoucherClaimRequest) (*response.VoucherClaimResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.log.Warn("Submit voucher validation failed", zap.Any("errors", errs))
		return nil, fmt.Errorf("%w: %s", ErrValidation, utils.FormatValidationErrors(errs))
	}

	if caregiver.Role != entity.RoleCaregiver {
		return nil, fmt.Errorf("%w: only caregivers can claim vouchers", ErrInvalidTransition)
	}

	terms, err := policy.LookupVoucher(entity.VoucherType(req.VoucherType))
	if err != nil {
		return nil, err
	}

	now := s.now()
	if req.CertificationDate.After(now) {
		return nil, fmt.Errorf("%w: certification date is in the future", ErrValidation)
	}
	if req.ExpiryDate != nil && !req.ExpiryDate.After(req.CertificationDate) {
		return nil, fmt.Errorf("%w: expiry date must be after certification date", ErrValidation)
	}

	eligibility, err := s.eligibility.Check(ctx, caregiver.ID)
	if err != nil {
		return nil, err
	}
	if !eligibility.IsEligible() {
		return nil, fmt.Errorf("%w: %d more completed bookings required", ErrNotEligible, eligibility.RemainingBookings())
	}

	receipt := policy.DollarsToCents(req.ReceiptAmount)
	if err := policy.CheckReceiptAmount(receipt); err != nil {
		return nil, err
	}

	claim := &entity.VoucherClaim{
		Base: entity.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Reference:         utils.GenerateReference("VCH", now),
		CaregiverID:       caregiver.ID,
		VoucherType:       terms.Type,
		ReceiptAmount:     receipt,
		RefundRateBps:     terms.RefundRateBps,
		RefundAmount:      terms.RefundFor(receipt),
		ReceiptImageURL:   req.ReceiptImageURL,
		CertificationDate: req.CertificationDate,
		ExpiryDate:        req.ExpiryDate,
		Status:            entity.VoucherStatusPending,
		SubmissionDate:    now,
	}
	if state := strings.TrimSpace(req.State); state != "" {
		claim.State = &state
	}

	if err := s.repo.Voucher.Create(ctx, claim); err != nil {
		return nil, fmt.Errorf("failed to create voucher claim: %w", err)
	}

	s.log.Info("Voucher claim submitted",
		zap.String("claim_id", claim.ID.String()),
		zap.String("voucher_type", string(claim.VoucherType)),
		zap.Int64("refund_amount", claim.RefundAmount))

	publish(ctx, s.events, s.log, EventVoucherSubmitted, newVoucherEvent(claim))

	resp := response.VoucherClaimToResponse(claim)
	return &resp, nil
}

func (s *voucherService) GetMyClaims(ctx context.Context, caregiver Actor, req *request.PaginatedRequest) (*response.PaginatedResponse[response.VoucherClaimResponse], error) {
	claims, err := s.repo.Voucher.FindByCaregiver(ctx, caregiver.ID, req.Limit(), req.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to get voucher claims: %w", err)
	}

	total, err := s.repo.Voucher.CountByCaregiver(ctx, caregiver.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count voucher claims: %w", err)
	}

	return response.NewPaginatedResponse(claimsToResponse(claims), req.Page, req.Limit(), total), nil
}

func (s *voucherService) ListClaims(ctx context.Context, req *request.ListVoucherClaimsRequest) (*response.PaginatedResponse[response.VoucherClaimResponse], error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrValidation, utils.FormatValidationErrors(errs))
	}

	status := entity.VoucherStatus(req.Status)
	if status == "" {
		status = entity.VoucherStatusPending
	}

	claims, err := s.repo.Voucher.FindByStatus(ctx, status, req.Limit(), req.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to get voucher claims: %w", err)
	}

	total, err := s.repo.Voucher.CountByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to count voucher claims: %w", err)
	}

	return response.NewPaginatedResponse(claimsToResponse(claims), req.Page, req.Limit(), total), nil
}

func (s *voucherService) ReviewClaim(ctx context.Context, admin Actor, claimID string, req *request.ReviewVoucherRequest) (*response.VoucherClaimResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrValidation, utils.FormatValidationErrors(errs))
	}

	id, err := parseClaimID(claimID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	claim, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	next, event := entity.VoucherStatusApproved, EventVoucherApproved
	if req.Action == "reject" {
		next, event = entity.VoucherStatusRejected, EventVoucherRejected
	}

	if !claim.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: cannot %s a %s claim", ErrInvalidTransition, req.Action, claim.Status)
	}

	now := s.now()
	from := claim.Status
	claim.Status = next
	claim.ReviewedBy = &admin.ID
	claim.ProcessedAt = &now
	claim.UpdatedAt = now
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		claim.ReviewNotes = &notes
	}

	if err := s.repo.Voucher.UpdateStatus(ctx, claim, from); err != nil {
		return nil, fmt.Errorf("failed to review voucher claim: %w", err)
	}

	s.log.Info("Voucher claim reviewed",
		zap.String("claim_id", claim.ID.String()),
		zap.String("status", string(claim.Status)),
		zap.String("reviewed_by", admin.ID.String()))

	publish(ctx, s.events, s.log, event, newVoucherEvent(claim))

	resp := response.VoucherClaimToResponse(claim)
	return &resp, nil
}

func (s *voucherService) PayClaim(ctx context.Context, admin Actor, claimID string) (*response.VoucherClaimResponse, error) {
	id, err := parseClaimID(claimID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	claim, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if claim.Status == entity.VoucherStatusPaid {
		resp := response.VoucherClaimToResponse(claim)
		return &resp, nil
	}
	if !claim.Status.CanTransitionTo(entity.VoucherStatusPaid) {
		return nil, fmt.Errorf("%w: cannot pay a %s claim", ErrInvalidTransition, claim.Status)
	}

	key := claim.PayoutKey()

	// An earlier attempt may have paid out without recording it, so the
	// processor is asked first.
	out, err := callWithReconcile(ctx, s.processor, s.retry, key, true, func(ctx context.Context) (*processor.Receipt, error) {
		return s.processor.Payout(ctx, processor.PayoutRequest{
			Amount:         claim.RefundAmount,
			Currency:       s.currency,
			PayeeRef:       claim.CaregiverID.String(),
			IdempotencyKey: key,
			Metadata: map[string]string{
				"claim_id":  claim.ID.String(),
				"reference": claim.Reference,
			},
		})
	})
	if err != nil {
		s.log.Error("Voucher payout failed",
			zap.String("claim_id", claim.ID.String()),
			zap.Bool("outcome_unknown", out.unknown),
			zap.Error(err))
		if out.unknown {
			return nil, fmt.Errorf("%w: %w: voucher claim %s: %v", ErrPaymentFailed, ErrPaymentNeedsRecheck, claim.ID, err)
		}
		s.rearmPayout(ctx, claim)
		return nil, fmt.Errorf("%w: voucher claim %s: %v", ErrPaymentFailed, claim.ID, err)
	}

	now := s.now()
	claim.Status = entity.VoucherStatusPaid
	claim.PaidAt = &now
	claim.PayoutRef = &out.receipt.Reference
	claim.UpdatedAt = now

	if err := s.repo.Voucher.UpdateStatus(ctx, claim, entity.VoucherStatusApproved); err != nil {
		s.log.Error("Voucher paid out but claim not updated",
			zap.String("claim_id", claim.ID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to mark voucher claim paid: %w", err)
	}

	s.log.Info("Voucher claim paid",
		zap.String("claim_id", claim.ID.String()),
		zap.String("paid_by", admin.ID.String()),
		zap.Int64("refund_amount", claim.RefundAmount))

	publish(ctx, s.events, s.log, EventVoucherPaid, newVoucherEvent(claim))

	resp := response.VoucherClaimToResponse(claim)
	return &resp, nil
}

func (s *voucherService) GetStats(ctx context.Context) (*response.VoucherStatsResponse, error) {
	stats, err := s.repo.Voucher.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get voucher stats: %w", err)
	}

	resp := response.VoucherStatsToResponse(stats)
	return &resp, nil
}

// rearmPayout moves a declined claim to a fresh payout key so the next
// attempt is not answered with the replayed decline.
func (s *voucherService) rearmPayout(ctx context.Context, claim *entity.VoucherClaim) {
	claim.PayoutAttempts++
	claim.UpdatedAt = s.now()
	if err := s.repo.Voucher.RecordPayoutAttempt(ctx, claim); err != nil {
		s.log.Error("Failed to re-arm voucher payout",
			zap.String("claim_id", claim.ID.String()),
			zap.Int("payout_attempts", claim.PayoutAttempts),
			zap.Error(err))
	}
}

func (s *voucherService) load(ctx context.Context, id uuid.UUID) (*entity.VoucherClaim, error) {
	claim, err := s.repo.Voucher.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get voucher claim: %w", err)
	}
	if claim == nil {
		return nil, fmt.Errorf("%w: voucher claim %s", ErrNotFound, id)
	}
	return claim, nil
}

func claimsToResponse(claims []*entity.VoucherClaim) []response.VoucherClaimResponse {
	data := make([]response.VoucherClaimResponse, len(claims))
	for i, c := range claims {
		data[i] = response.VoucherClaimToResponse(c)
	}
	return data
}

func parseClaimID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid voucher claim ID format %s", ErrValidation, raw)
	}
	return id, nil
}

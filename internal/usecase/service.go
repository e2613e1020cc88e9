package usecase

import (
	"vivaly-settlement/internal/data/repository"
	"vivaly-settlement/pkg/processor"
	"vivaly-settlement/pkg/utils"

	"go.uber.org/zap"
)

type Service struct {
	Booking     BookingService
	Escrow      EscrowService
	Release     ReleaseService
	Eligibility EligibilityService
	Voucher     VoucherService
}

func NewService(repo *repository.Repository, config *utils.Config, proc PaymentProcessor, events EventPublisher, log *zap.Logger) *Service {
	retry := processor.RetryPolicy{
		MaxAttempts: config.Processor.MaxAttempts,
		BaseDelay:   config.Processor.BaseBackoff,
		MaxDelay:    config.Processor.MaxBackoff,
	}

	escrow := NewEscrowService(repo, proc, events, retry, config.Billing.Currency, log)
	booking := NewBookingService(repo, escrow, events, config.Billing, log)
	eligibility := NewEligibilityService(repo, log)

	return &Service{
		Booking:     booking,
		Escrow:      escrow,
		Release:     NewReleaseService(repo, booking, events, config.Scheduler, log),
		Eligibility: eligibility,
		Voucher:     NewVoucherService(repo, eligibility, proc, events, retry, config.Billing.Currency, log),
	}
}

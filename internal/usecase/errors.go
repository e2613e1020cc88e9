package usecase

import (
	"errors"

	"vivaly-settlement/internal/data/repository"
	"vivaly-settlement/internal/policy"
)

// Errors returned by the settlement services. Callers match them with
// errors.Is; the HTTP adaptor maps each one to a status code.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrNotConfirmed        = errors.New("booking is not confirmed")
	ErrPaymentRequired     = errors.New("booking is not awaiting payment")
	ErrAlreadyTerminal     = errors.New("booking is already in a terminal state")
	ErrTooEarly            = errors.New("booking has not ended yet")
	ErrEscrowState         = errors.New("escrow state error")
	ErrPaymentFailed       = errors.New("payment failed")
	ErrNotEligible         = errors.New("caregiver is not eligible for vouchers")
	ErrConcurrentUpdate    = repository.ErrStaleVersion
	ErrInvalidAmount       = policy.ErrInvalidAmount
	ErrTooLateToCancel     = policy.ErrTooLateToCancel
	ErrAmountOutOfRange    = policy.ErrAmountOutOfRange
	ErrUnknownVoucherType  = policy.ErrUnknownVoucherType
	ErrPaymentNeedsRecheck = errors.New("payment outcome unknown, reconciliation required")
)

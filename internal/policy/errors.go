package policy

import "errors"

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrTooLateToCancel    = errors.New("too late to cancel")
	ErrAmountOutOfRange   = errors.New("receipt amount out of range")
	ErrUnknownVoucherType = errors.New("unknown voucher type")
)

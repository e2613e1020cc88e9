package usecase

import (
	"context"
	"errors"
	"fmt"

	"vivaly-settlement/pkg/processor"
)

// PaymentProcessor is the external processor collaborator.
type PaymentProcessor interface {
	Charge(ctx context.Context, req processor.ChargeRequest) (*processor.Receipt, error)
	Payout(ctx context.Context, req processor.PayoutRequest) (*processor.Receipt, error)
	Refund(ctx context.Context, req processor.RefundRequest) (*processor.Receipt, error)
	Lookup(ctx context.Context, idempotencyKey string) (*processor.Receipt, error)
}

type callOutcome struct {
	receipt  *processor.Receipt
	attempts int
	unknown  bool
}

// callWithReconcile runs call under the retry policy. Once an attempt ends
// with an unknown outcome, the next attempt first asks the processor whether
// the operation identified by key already landed and only resends when the
// processor has no record of it. Pass unknown=true when a previous run left
// the outcome unresolved.
func callWithReconcile(
	ctx context.Context,
	proc PaymentProcessor,
	retry processor.RetryPolicy,
	key string,
	unknown bool,
	call func(ctx context.Context) (*processor.Receipt, error),
) (callOutcome, error) {
	out := callOutcome{unknown: unknown}

	err := processor.Retry(ctx, retry, func(attempt int) error {
		out.attempts = attempt

		if out.unknown {
			receipt, err := resolve(ctx, proc, key)
			if err != nil {
				out.unknown = errors.Is(err, processor.ErrOutcomeUnknown)
				return err
			}
			if receipt != nil {
				out.receipt, out.unknown = receipt, false
				return nil
			}
			out.unknown = false
		}

		receipt, err := call(ctx)
		if err != nil {
			out.unknown = errors.Is(err, processor.ErrOutcomeUnknown)
			return err
		}
		switch receipt.Status {
		case processor.StatusSucceeded:
			out.receipt = receipt
			return nil
		case processor.StatusPending:
			out.unknown = true
			return fmt.Errorf("%w: operation %s still pending", processor.ErrOutcomeUnknown, key)
		default:
			return fmt.Errorf("%w: operation %s %s", processor.ErrDeclined, key, receipt.Status)
		}
	})

	return out, err
}

// resolve asks the processor about key. It returns (nil, nil) when the
// processor never saw the operation, so it is safe to send again.
func resolve(ctx context.Context, proc PaymentProcessor, key string) (*processor.Receipt, error) {
	receipt, err := proc.Lookup(ctx, key)
	if errors.Is(err, processor.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lookup %s: %v", processor.ErrOutcomeUnknown, key, err)
	}

	switch receipt.Status {
	case processor.StatusSucceeded:
		return receipt, nil
	case processor.StatusPending:
		return nil, fmt.Errorf("%w: operation %s still pending", processor.ErrOutcomeUnknown, key)
	default:
		return nil, fmt.Errorf("%w: operation %s %s", processor.ErrDeclined, key, receipt.Status)
	}
}

package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vivaly-settlement/internal/data/entity"
	"vivaly-settlement/internal/dto/request"
	"vivaly-settlement/pkg/processor"

	"github.com/google/uuid"
)

// Reference booking: $25/h, 5h/day over two days, starting 48h out.
func (env *testEnv) create(t *testing.T) uuid.UUID {
	t.Helper()
	start := env.clock.Now().Add(48 * time.Hour)
	resp, err := env.svc.Booking.CreateBooking(context.Background(), env.parent, &request.CreateBookingRequest{
		CaregiverID: env.caregiver.ID.String(),
		StartDate:   start,
		EndDate:     start.Add(48 * time.Hour),
		HoursPerDay: 5,
		RatePerHour: 25,
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return uuid.MustParse(resp.ID)
}

func (env *testEnv) confirm(t *testing.T) uuid.UUID {
	t.Helper()
	id := env.create(t)
	_, err := env.svc.Booking.RespondToBooking(context.Background(), env.caregiver, id.String(), &request.RespondBookingRequest{Action: "accept"})
	if err != nil {
		t.Fatalf("accept booking: %v", err)
	}
	return id
}

func (env *testEnv) pay(t *testing.T) uuid.UUID {
	t.Helper()
	id := env.confirm(t)
	if _, err := env.svc.Booking.PayBooking(context.Background(), env.parent, id.String(), &request.PayBookingRequest{}); err != nil {
		t.Fatalf("pay booking: %v", err)
	}
	return id
}

func TestCreateBookingComputesFees(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t)

	b := env.bookings.get(id)
	if b.NumberOfDays != 2 {
		t.Fatalf("expected 2 days, got %d", b.NumberOfDays)
	}
	if b.CaregiverAmount != 25000 || b.ServiceFee != 2500 || b.TotalAmount != 27500 {
		t.Fatalf("unexpected amounts: caregiver=%d fee=%d total=%d", b.CaregiverAmount, b.ServiceFee, b.TotalAmount)
	}
	if b.Status != entity.BookingStatusPending || b.PaymentStatus != entity.PaymentStatusUnpaid {
		t.Fatalf("unexpected state %s/%s", b.Status, b.PaymentStatus)
	}
	if env.events.count(EventBookingCreated) != 1 {
		t.Fatal("expected booking.created event")
	}
}

func TestCreateBookingRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)
	start := env.clock.Now().Add(48 * time.Hour)

	cases := []struct {
		name string
		req  request.CreateBookingRequest
		want error
	}{
		{
			name: "self booking",
			req:  request.CreateBookingRequest{CaregiverID: env.parent.ID.String(), StartDate: start, EndDate: start.Add(time.Hour), HoursPerDay: 1, RatePerHour: 20},
			want: ErrValidation,
		},
		{
			name: "end before start",
			req:  request.CreateBookingRequest{CaregiverID: env.caregiver.ID.String(), StartDate: start, EndDate: start.Add(-time.Hour), HoursPerDay: 1, RatePerHour: 20},
			want: ErrValidation,
		},
		{
			name: "start in the past",
			req:  request.CreateBookingRequest{CaregiverID: env.caregiver.ID.String(), StartDate: env.clock.Now().Add(-time.Hour), EndDate: start, HoursPerDay: 1, RatePerHour: 20},
			want: ErrValidation,
		},
		{
			name: "zero rate",
			req:  request.CreateBookingRequest{CaregiverID: env.caregiver.ID.String(), StartDate: start, EndDate: start.Add(time.Hour), HoursPerDay: 1},
			want: ErrInvalidAmount,
		},
		{
			name: "negative rate",
			req:  request.CreateBookingRequest{CaregiverID: env.caregiver.ID.String(), StartDate: start, EndDate: start.Add(time.Hour), HoursPerDay: 1, RatePerHour: -20},
			want: ErrInvalidAmount,
		},
		{
			name: "zero hours",
			req:  request.CreateBookingRequest{CaregiverID: env.caregiver.ID.String(), StartDate: start, EndDate: start.Add(time.Hour), RatePerHour: 20},
			want: ErrInvalidAmount,
		},
		{
			name: "more than a day of hours",
			req:  request.CreateBookingRequest{CaregiverID: env.caregiver.ID.String(), StartDate: start, EndDate: start.Add(time.Hour), HoursPerDay: 25, RatePerHour: 20},
			want: ErrValidation,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := tc.req
			_, err := env.svc.Booking.CreateBooking(context.Background(), env.parent, &req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestBookingLifecycleReleasesThroughScheduler(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.pay(t)

	b := env.bookings.get(id)
	if b.PaymentStatus != entity.PaymentStatusPaidUnreleased {
		t.Fatalf("expected paid_unreleased, got %s", b.PaymentStatus)
	}
	hold, ok := env.escrow.get(id, entity.EscrowHold)
	if !ok || hold.Status != entity.EscrowOpSucceeded || hold.Amount != 27500 {
		t.Fatalf("unexpected hold: %+v", hold)
	}
	job, ok := env.jobs.get(id)
	if !ok || !job.FireAt.Equal(b.EndDate.Add(24*time.Hour)) {
		t.Fatalf("unexpected release job: %+v", job)
	}

	// Nothing is due before the dispute window closes.
	env.clock.Set(b.EndDate.Add(time.Hour))
	run, err := env.svc.Release.RunDue(ctx)
	if err != nil || run.Claimed != 0 {
		t.Fatalf("expected nothing due, got %+v, %v", run, err)
	}

	env.clock.Set(b.EndDate.Add(25 * time.Hour))
	run, err = env.svc.Release.RunDue(ctx)
	if err != nil {
		t.Fatalf("run due: %v", err)
	}
	if run.Claimed != 1 || run.Completed != 1 {
		t.Fatalf("unexpected run: %+v", run)
	}

	b = env.bookings.get(id)
	if b.Status != entity.BookingStatusCompleted || b.PaymentStatus != entity.PaymentStatusReleased {
		t.Fatalf("unexpected state %s/%s", b.Status, b.PaymentStatus)
	}
	release, _ := env.escrow.get(id, entity.EscrowRelease)
	if release.Amount != 25000 || release.Retained != 2500 {
		t.Fatalf("unexpected release: %+v", release)
	}
	if got := env.proc.moved("payout"); got != 25000 {
		t.Fatalf("expected 25000 paid out, got %d", got)
	}
	if job, _ := env.jobs.get(id); job.Status != entity.ReleaseJobDone {
		t.Fatalf("expected job done, got %s", job.Status)
	}
	if n, _ := env.completions.CountByCaregiver(ctx, env.caregiver.ID); n != 1 {
		t.Fatalf("expected 1 completion, got %d", n)
	}
}

func TestCompleteTwiceReleasesOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.pay(t)
	env.clock.Set(env.bookings.get(id).EndDate.Add(time.Minute))

	for i := 0; i < 2; i++ {
		resp, err := env.svc.Booking.CompleteBooking(ctx, env.parent, id.String())
		if err != nil {
			t.Fatalf("complete #%d: %v", i+1, err)
		}
		if resp.Status != entity.BookingStatusCompleted {
			t.Fatalf("expected completed, got %s", resp.Status)
		}
	}

	if n := env.proc.callCount("payout"); n != 1 {
		t.Fatalf("expected one payout, got %d", n)
	}
	if n := env.events.count(EventBookingCompleted); n != 1 {
		t.Fatalf("expected one completed event, got %d", n)
	}
	if job, _ := env.jobs.get(id); job.Status != entity.ReleaseJobCancelled {
		t.Fatalf("expected release job cancelled, got %s", job.Status)
	}

	// The scheduler finds nothing left to do.
	env.clock.Set(env.clock.Now().Add(48 * time.Hour))
	run, err := env.svc.Release.RunDue(ctx)
	if err != nil || run.Claimed != 0 {
		t.Fatalf("expected no due jobs, got %+v, %v", run, err)
	}
}

func TestConcurrentCompletionReleasesOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.pay(t)
	env.clock.Set(env.bookings.get(id).EndDate.Add(25 * time.Hour))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.svc.Booking.CompleteBooking(ctx, env.parent, id.String()); err != nil {
				t.Errorf("complete: %v", err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := env.svc.Release.RunDue(ctx); err != nil {
			t.Errorf("run due: %v", err)
		}
	}()
	wg.Wait()

	if n := env.proc.callCount("payout"); n != 1 {
		t.Fatalf("expected one payout, got %d", n)
	}
	if n, _ := env.completions.CountByCaregiver(ctx, env.caregiver.ID); n != 1 {
		t.Fatalf("expected completion counted once, got %d", n)
	}
}

func TestReleaseAndRefundExcludeEachOtherAcrossInstances(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.pay(t)
	other := env.instance()

	// Hold both settlements at the ledger insert so each has already passed
	// its own read checks before either row exists.
	var arrived sync.WaitGroup
	arrived.Add(2)
	env.escrow.beforeCreate = func(op *entity.EscrowOperation) {
		if op.Kind == entity.EscrowHold {
			return
		}
		arrived.Done()
		arrived.Wait()
	}

	var completeErr, cancelErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, completeErr = env.svc.Booking.CompleteBooking(ctx, SystemActor, id.String())
	}()
	go func() {
		defer wg.Done()
		_, cancelErr = other.Booking.CancelBooking(ctx, env.caregiver, id.String(), &request.CancelBookingRequest{})
	}()
	wg.Wait()

	payout, refund := env.proc.moved("payout"), env.proc.moved("refund")
	b := env.bookings.get(id)

	switch {
	case completeErr == nil:
		if !errors.Is(cancelErr, ErrEscrowState) {
			t.Fatalf("expected losing cancel to fail with ErrEscrowState, got %v", cancelErr)
		}
		if payout != 25000 || refund != 0 {
			t.Fatalf("expected payout only, got payout=%d refund=%d", payout, refund)
		}
		if b.Status != entity.BookingStatusCompleted || b.PaymentStatus != entity.PaymentStatusReleased {
			t.Fatalf("unexpected booking state %s/%s", b.Status, b.PaymentStatus)
		}
	case cancelErr == nil:
		if !errors.Is(completeErr, ErrEscrowState) {
			t.Fatalf("expected losing complete to fail with ErrEscrowState, got %v", completeErr)
		}
		if payout != 0 || refund != 27500 {
			t.Fatalf("expected refund only, got payout=%d refund=%d", payout, refund)
		}
		if b.Status != entity.BookingStatusCancelled || b.PaymentStatus != entity.PaymentStatusRefunded {
			t.Fatalf("unexpected booking state %s/%s", b.Status, b.PaymentStatus)
		}
	default:
		t.Fatalf("expected one settlement to win, complete=%v cancel=%v", completeErr, cancelErr)
	}
}

func TestRefundAllowedAfterFailedRelease(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.pay(t)

	env.proc.payoutErrs = []error{processor.ErrDeclined}
	if _, err := env.svc.Booking.CompleteBooking(ctx, SystemActor, id.String()); !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected ErrPaymentFailed, got %v", err)
	}

	resp, err := env.svc.Booking.CancelBooking(ctx, env.admin, id.String(), &request.CancelBookingRequest{})
	if err != nil {
		t.Fatalf("cancel after failed release: %v", err)
	}
	if resp.PaymentStatus != entity.PaymentStatusRefunded {
		t.Fatalf("expected refunded, got %s", resp.PaymentStatus)
	}
	if env.proc.moved("payout") != 0 || env.proc.moved("refund") != 27500 {
		t.Fatalf("unexpected money movement payout=%d refund=%d", env.proc.moved("payout"), env.proc.moved("refund"))
	}
}

func TestDeclineNeverTouchesEscrow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.create(t)

	resp, err := env.svc.Booking.RespondToBooking(ctx, env.caregiver, id.String(), &request.RespondBookingRequest{Action: "decline"})
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if resp.Status != entity.BookingStatusDeclined || resp.PaymentStatus != entity.PaymentStatusUnpaid {
		t.Fatalf("unexpected state %s/%s", resp.Status, resp.PaymentStatus)
	}

	ops, _ := env.escrow.FindByBookingID(ctx, id)
	if len(ops) != 0 {
		t.Fatalf("expected empty ledger, got %d entries", len(ops))
	}

	_, err = env.svc.Booking.PayBooking(ctx, env.parent, id.String(), &request.PayBookingRequest{})
	if !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("expected ErrNotConfirmed, got %v", err)
	}
	_, err = env.svc.Booking.CancelBooking(ctx, env.parent, id.String(), &request.CancelBookingRequest{})
	if !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}
}

func TestRespondOnlyByAssignedCaregiver(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.create(t)

	stranger := Actor{ID: uuid.New(), Role: entity.RoleCaregiver}
	_, err := env.svc.Booking.RespondToBooking(ctx, stranger, id.String(), &request.RespondBookingRequest{Action: "accept"})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	env.confirmExisting(t, id)
	_, err = env.svc.Booking.RespondToBooking(ctx, env.caregiver, id.String(), &request.RespondBookingRequest{Action: "decline"})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on confirmed booking, got %v", err)
	}
}

func (env *testEnv) confirmExisting(t *testing.T, id uuid.UUID) {
	t.Helper()
	_, err := env.svc.Booking.RespondToBooking(context.Background(), env.caregiver, id.String(), &request.RespondBookingRequest{Action: "accept"})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
}

func TestPayRequiresUnpaidConfirmedBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pending := env.create(t)
	_, err := env.svc.Booking.PayBooking(ctx, env.parent, pending.String(), &request.PayBookingRequest{})
	if !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("expected ErrNotConfirmed, got %v", err)
	}

	paid := env.pay(t)
	_, err = env.svc.Booking.PayBooking(ctx, env.parent, paid.String(), &request.PayBookingRequest{})
	if !errors.Is(err, ErrPaymentRequired) {
		t.Fatalf("expected ErrPaymentRequired, got %v", err)
	}
	if n := env.proc.callCount("charge"); n != 1 {
		t.Fatalf("expected one charge, got %d", n)
	}
}

func TestPayDeclineLeavesBookingUnchanged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.confirm(t)
	before := env.bookings.get(id)

	env.proc.chargeErrs = []error{processor.ErrDeclined}
	_, err := env.svc.Booking.PayBooking(ctx, env.parent, id.String(), &request.PayBookingRequest{})
	if !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected ErrPaymentFailed, got %v", err)
	}
	if errors.Is(err, ErrPaymentNeedsRecheck) {
		t.Fatalf("a decline is not an unknown outcome: %v", err)
	}

	after := env.bookings.get(id)
	if after.Status != before.Status || after.PaymentStatus != before.PaymentStatus || after.Version != before.Version {
		t.Fatalf("booking changed: %s/%s v%d", after.Status, after.PaymentStatus, after.Version)
	}
	if _, ok := env.jobs.get(id); ok {
		t.Fatal("expected no release job")
	}
	if n := env.events.count(EventPaymentFailed); n != 1 {
		t.Fatalf("expected payment.failed event, got %d", n)
	}

	// A fresh attempt succeeds under a new idempotency key.
	if _, err := env.svc.Booking.PayBooking(ctx, env.parent, id.String(), &request.PayBookingRequest{}); err != nil {
		t.Fatalf("retry pay: %v", err)
	}
	hold, _ := env.escrow.get(id, entity.EscrowHold)
	if hold.Status != entity.EscrowOpSucceeded || hold.IdempotencyKey == "hold:"+id.String() {
		t.Fatalf("unexpected hold after retry: %+v", hold)
	}
}

func TestPayTimeoutIsResolvedByLookup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.confirm(t)

	env.proc.landOnTimeout = true
	env.proc.chargeErrs = []error{processor.ErrOutcomeUnknown}

	if _, err := env.svc.Booking.PayBooking(ctx, env.parent, id.String(), &request.PayBookingRequest{}); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if n := env.proc.callCount("charge"); n != 1 {
		t.Fatalf("expected the charge not to be resent, got %d calls", n)
	}
	if n := env.proc.callCount("lookup"); n != 1 {
		t.Fatalf("expected one lookup, got %d", n)
	}
	if got := env.bookings.get(id).PaymentStatus; got != entity.PaymentStatusPaidUnreleased {
		t.Fatalf("expected paid_unreleased, got %s", got)
	}
}

func TestUnknownHoldIsReconciled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.confirm(t)

	env.proc.chargeErrs = []error{processor.ErrOutcomeUnknown, processor.ErrOutcomeUnknown, processor.ErrOutcomeUnknown}
	_, err := env.svc.Booking.PayBooking(ctx, env.parent, id.String(), &request.PayBookingRequest{})
	if !errors.Is(err, ErrPaymentFailed) || !errors.Is(err, ErrPaymentNeedsRecheck) {
		t.Fatalf("expected unknown payment failure, got %v", err)
	}
	hold, _ := env.escrow.get(id, entity.EscrowHold)
	if hold.Status != entity.EscrowOpUnknown {
		t.Fatalf("expected unknown hold, got %s", hold.Status)
	}

	_, err = env.svc.Booking.CancelBooking(ctx, env.parent, id.String(), &request.CancelBookingRequest{})
	if !errors.Is(err, ErrEscrowState) {
		t.Fatalf("expected ErrEscrowState while hold is unknown, got %v", err)
	}

	// The processor did take the money after all.
	env.proc.mu.Lock()
	env.proc.land("charge", hold.IdempotencyKey, hold.Amount)
	env.proc.mu.Unlock()

	detail, err := env.svc.Booking.ReconcileBooking(ctx, id.String())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if detail.PaymentStatus != entity.PaymentStatusPaidUnreleased {
		t.Fatalf("expected paid_unreleased, got %s", detail.PaymentStatus)
	}
	if detail.ReleaseAt == nil {
		t.Fatal("expected release job after reconcile")
	}
	if n := env.proc.callCount("charge"); n != 3 {
		t.Fatalf("expected no further charges, got %d", n)
	}
}

func TestCancelRefundTiers(t *testing.T) {
	cases := []struct {
		name          string
		before        time.Duration
		wantRefund    int64
		wantPayStatus entity.PaymentStatus
	}{
		{name: "30h notice", before: 30 * time.Hour, wantRefund: 27500, wantPayStatus: entity.PaymentStatusRefunded},
		{name: "18h notice", before: 18 * time.Hour, wantRefund: 13750, wantPayStatus: entity.PaymentStatusPartiallyRefunded},
		{name: "5h notice", before: 5 * time.Hour, wantRefund: 0, wantPayStatus: entity.PaymentStatusPartiallyRefunded},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			id := env.pay(t)
			env.clock.Set(env.bookings.get(id).StartDate.Add(-tc.before))

			resp, err := env.svc.Booking.CancelBooking(ctx, env.parent, id.String(), &request.CancelBookingRequest{Reason: "plans changed"})
			if err != nil {
				t.Fatalf("cancel: %v", err)
			}
			if resp.Status != entity.BookingStatusCancelled || resp.PaymentStatus != tc.wantPayStatus {
				t.Fatalf("unexpected state %s/%s", resp.Status, resp.PaymentStatus)
			}

			b := env.bookings.get(id)
			if b.RefundedAmount != tc.wantRefund {
				t.Fatalf("expected refund %d, got %d", tc.wantRefund, b.RefundedAmount)
			}
			if got := env.proc.moved("refund"); got != tc.wantRefund {
				t.Fatalf("expected processor refund %d, got %d", tc.wantRefund, got)
			}
			refund, _ := env.escrow.get(id, entity.EscrowRefund)
			if refund.Retained != 27500-tc.wantRefund {
				t.Fatalf("expected retained %d, got %d", 27500-tc.wantRefund, refund.Retained)
			}
			if job, _ := env.jobs.get(id); job.Status != entity.ReleaseJobCancelled {
				t.Fatalf("expected release job cancelled, got %s", job.Status)
			}
			if *b.PenaltyTier != entity.PenaltyNone || *b.CancelledBy != entity.RoleParent {
				t.Fatalf("unexpected cancellation metadata: %s by %s", *b.PenaltyTier, *b.CancelledBy)
			}
		})
	}
}

func TestParentCannotCancelAfterStart(t *testing.T) {
	env := newTestEnv(t)
	id := env.pay(t)
	env.clock.Set(env.bookings.get(id).StartDate.Add(time.Minute))

	_, err := env.svc.Booking.CancelBooking(context.Background(), env.parent, id.String(), &request.CancelBookingRequest{})
	if !errors.Is(err, ErrTooLateToCancel) {
		t.Fatalf("expected ErrTooLateToCancel, got %v", err)
	}
	if got := env.bookings.get(id).Status; got != entity.BookingStatusConfirmed {
		t.Fatalf("expected booking untouched, got %s", got)
	}
}

func TestCaregiverCancellationRefundsInFull(t *testing.T) {
	env := newTestEnv(t)
	id := env.pay(t)
	env.clock.Set(env.bookings.get(id).StartDate.Add(-5 * time.Hour))

	resp, err := env.svc.Booking.CancelBooking(context.Background(), env.caregiver, id.String(), &request.CancelBookingRequest{})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if resp.PaymentStatus != entity.PaymentStatusRefunded || resp.RefundedAmount != 275 {
		t.Fatalf("unexpected refund %s %.2f", resp.PaymentStatus, resp.RefundedAmount)
	}
	if resp.PenaltyTier == nil || *resp.PenaltyTier != entity.PenaltyWarning {
		t.Fatalf("expected warning penalty, got %v", resp.PenaltyTier)
	}
}

func TestCancelUnpaidBookingMovesNoMoney(t *testing.T) {
	env := newTestEnv(t)
	id := env.confirm(t)

	resp, err := env.svc.Booking.CancelBooking(context.Background(), env.parent, id.String(), &request.CancelBookingRequest{})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if resp.PaymentStatus != entity.PaymentStatusUnpaid || resp.RefundedAmount != 0 {
		t.Fatalf("unexpected payment state %s %.2f", resp.PaymentStatus, resp.RefundedAmount)
	}
	if n := env.proc.callCount("refund"); n != 0 {
		t.Fatalf("expected no refund call, got %d", n)
	}
}

func TestCompleteGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.pay(t)

	_, err := env.svc.Booking.CompleteBooking(ctx, env.parent, id.String())
	if !errors.Is(err, ErrTooEarly) {
		t.Fatalf("expected ErrTooEarly, got %v", err)
	}

	_, err = env.svc.Booking.CompleteBooking(ctx, env.caregiver, id.String())
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for caregiver, got %v", err)
	}

	unpaid := env.confirm(t)
	env.clock.Set(env.bookings.get(unpaid).EndDate.Add(time.Hour))
	_, err = env.svc.Booking.CompleteBooking(ctx, env.parent, unpaid.String())
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for unpaid booking, got %v", err)
	}

	// The system actor treats an unpaid booking as nothing to do.
	resp, err := env.svc.Booking.CompleteBooking(ctx, SystemActor, unpaid.String())
	if err != nil || resp.Status != entity.BookingStatusConfirmed {
		t.Fatalf("expected no-op, got %+v, %v", resp, err)
	}
	if n := env.proc.callCount("payout"); n != 0 {
		t.Fatalf("expected no payouts, got %d", n)
	}
}

func TestGetBookingHidesFromStrangers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.pay(t)

	stranger := Actor{ID: uuid.New(), Role: entity.RoleParent}
	if _, err := env.svc.Booking.GetBookingByID(ctx, stranger, id.String()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	detail, err := env.svc.Booking.GetBookingByID(ctx, env.caregiver, id.String())
	if err != nil {
		t.Fatalf("get as caregiver: %v", err)
	}
	if len(detail.Escrow) != 1 || detail.Escrow[0].Kind != entity.EscrowHold {
		t.Fatalf("expected hold in ledger, got %+v", detail.Escrow)
	}
	if _, err := env.svc.Booking.GetBookingByID(ctx, env.admin, id.String()); err != nil {
		t.Fatalf("get as admin: %v", err)
	}
	if _, err := env.svc.Booking.GetBookingByID(ctx, env.admin, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing booking, got %v", err)
	}
}

func TestGetUserBookingsPaginates(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		env.create(t)
	}

	resp, err := env.svc.Booking.GetUserBookings(context.Background(), env.caregiver, &request.PaginatedRequest{Page: 1, PerPage: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(resp.Data) != 2 || resp.Pagination.Total != 3 || resp.Pagination.TotalPages != 2 {
		t.Fatalf("unexpected page: %d items, %+v", len(resp.Data), resp.Pagination)
	}
}

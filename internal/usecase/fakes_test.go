package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"vivaly-settlement/internal/data/entity"
	"vivaly-settlement/internal/data/repository"
	"vivaly-settlement/pkg/processor"
	"vivaly-settlement/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// In-memory repositories. They copy rows in and out so callers never share
// state with the store, like a real database.

type memBookingRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]entity.Booking
}

func (r *memBookingRepo) Create(ctx context.Context, b *entity.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[b.ID]; ok {
		return fmt.Errorf("booking %s exists", b.ID)
	}
	r.rows[b.ID] = *b
	return nil
}

func (r *memBookingRepo) FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r *memBookingRepo) FindByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Booking
	for _, b := range r.rows {
		if b.IsParty(userID) {
			b := b
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (r *memBookingRepo) CountByParticipant(ctx context.Context, userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, b := range r.rows {
		if b.IsParty(userID) {
			n++
		}
	}
	return n, nil
}

func (r *memBookingRepo) Update(ctx context.Context, b *entity.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.rows[b.ID]
	if !ok || stored.Version != b.Version {
		return fmt.Errorf("update booking %s: %w", b.ID, repository.ErrStaleVersion)
	}
	b.Version++
	r.rows[b.ID] = *b
	return nil
}

func (r *memBookingRepo) get(id uuid.UUID) entity.Booking {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id]
}

type escrowKey struct {
	booking uuid.UUID
	kind    entity.EscrowOperationKind
}

type memEscrowRepo struct {
	mu   sync.Mutex
	rows map[escrowKey]entity.EscrowOperation
	// beforeCreate runs outside the lock, ahead of every insert.
	beforeCreate func(op *entity.EscrowOperation)
}

func (r *memEscrowRepo) Create(ctx context.Context, op *entity.EscrowOperation) error {
	if r.beforeCreate != nil {
		r.beforeCreate(op)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := escrowKey{op.BookingID, op.Kind}
	if _, ok := r.rows[k]; ok {
		return fmt.Errorf("escrow %s for %s: %w", op.Kind, op.BookingID, repository.ErrDuplicate)
	}
	if err := r.checkSettlement(op); err != nil {
		return err
	}
	r.rows[k] = *op
	return nil
}

// checkSettlement mirrors the partial unique index that keeps a live release
// and a live refund from coexisting. Callers hold r.mu.
func (r *memEscrowRepo) checkSettlement(op *entity.EscrowOperation) error {
	if op.Status == entity.EscrowOpFailed {
		return nil
	}
	var other entity.EscrowOperationKind
	switch op.Kind {
	case entity.EscrowRelease:
		other = entity.EscrowRefund
	case entity.EscrowRefund:
		other = entity.EscrowRelease
	default:
		return nil
	}
	if existing, ok := r.rows[escrowKey{op.BookingID, other}]; ok && existing.Status != entity.EscrowOpFailed {
		return fmt.Errorf("escrow %s for %s next to %s: %w", op.Kind, op.BookingID, other, repository.ErrDuplicate)
	}
	return nil
}

func (r *memEscrowRepo) FindByBookingAndKind(ctx context.Context, bookingID uuid.UUID, kind entity.EscrowOperationKind) (*entity.EscrowOperation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.rows[escrowKey{bookingID, kind}]
	if !ok {
		return nil, nil
	}
	return &op, nil
}

func (r *memEscrowRepo) FindByBookingID(ctx context.Context, bookingID uuid.UUID) ([]*entity.EscrowOperation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.EscrowOperation
	for _, kind := range []entity.EscrowOperationKind{entity.EscrowHold, entity.EscrowRelease, entity.EscrowRefund} {
		if op, ok := r.rows[escrowKey{bookingID, kind}]; ok {
			out = append(out, &op)
		}
	}
	return out, nil
}

func (r *memEscrowRepo) Update(ctx context.Context, op *entity.EscrowOperation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := escrowKey{op.BookingID, op.Kind}
	if _, ok := r.rows[k]; !ok {
		return fmt.Errorf("escrow operation %s not found", op.ID)
	}
	if err := r.checkSettlement(op); err != nil {
		return err
	}
	r.rows[k] = *op
	return nil
}

func (r *memEscrowRepo) get(bookingID uuid.UUID, kind entity.EscrowOperationKind) (entity.EscrowOperation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.rows[escrowKey{bookingID, kind}]
	return op, ok
}

type memReleaseJobRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]entity.ReleaseJob
}

func (r *memReleaseJobRepo) Schedule(ctx context.Context, bookingID uuid.UUID, fireAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.rows[bookingID]; ok && (job.Status == entity.ReleaseJobDone || job.Status == entity.ReleaseJobProcessing) {
		return nil
	}
	r.rows[bookingID] = entity.ReleaseJob{
		BookingID:     bookingID,
		FireAt:        fireAt,
		Status:        entity.ReleaseJobPending,
		NextAttemptAt: fireAt,
	}
	return nil
}

func (r *memReleaseJobRepo) Cancel(ctx context.Context, bookingID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.rows[bookingID]
	if ok && job.Status != entity.ReleaseJobDone && job.Status != entity.ReleaseJobCancelled {
		job.Status = entity.ReleaseJobCancelled
		r.rows[bookingID] = job
	}
	return nil
}

func (r *memReleaseJobRepo) FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*entity.ReleaseJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.rows[bookingID]
	if !ok {
		return nil, nil
	}
	return &job, nil
}

func (r *memReleaseJobRepo) ClaimDue(ctx context.Context, now time.Time, limit int, staleAfter time.Duration) ([]*entity.ReleaseJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.ReleaseJob
	for id, job := range r.rows {
		if len(out) == limit {
			break
		}
		due := job.Status == entity.ReleaseJobPending && !job.NextAttemptAt.After(now)
		stale := job.Status == entity.ReleaseJobProcessing && !job.UpdatedAt.After(now.Add(-staleAfter))
		if !due && !stale {
			continue
		}
		job.Status = entity.ReleaseJobProcessing
		job.Attempts++
		job.UpdatedAt = now
		r.rows[id] = job
		claimed := job
		out = append(out, &claimed)
	}
	return out, nil
}

func (r *memReleaseJobRepo) MarkDone(ctx context.Context, bookingID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.rows[bookingID]; ok && job.Status == entity.ReleaseJobProcessing {
		job.Status = entity.ReleaseJobDone
		job.LastError = nil
		r.rows[bookingID] = job
	}
	return nil
}

func (r *memReleaseJobRepo) MarkFailed(ctx context.Context, bookingID uuid.UUID, reason string, retryAt time.Time, terminal bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.rows[bookingID]
	if !ok || job.Status != entity.ReleaseJobProcessing {
		return nil
	}
	job.Status = entity.ReleaseJobPending
	if terminal {
		job.Status = entity.ReleaseJobFailed
	}
	job.LastError = &reason
	job.NextAttemptAt = retryAt
	r.rows[bookingID] = job
	return nil
}

func (r *memReleaseJobRepo) get(bookingID uuid.UUID) (entity.ReleaseJob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.rows[bookingID]
	return job, ok
}

type memCompletionRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]entity.CaregiverCompletion
}

func (r *memCompletionRepo) Record(ctx context.Context, c *entity.CaregiverCompletion) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[c.BookingID]; ok {
		return false, nil
	}
	r.rows[c.BookingID] = *c
	return true, nil
}

func (r *memCompletionRepo) CountByCaregiver(ctx context.Context, caregiverID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.rows {
		if c.CaregiverID == caregiverID {
			n++
		}
	}
	return n, nil
}

type memVoucherRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]entity.VoucherClaim
}

func (r *memVoucherRepo) Create(ctx context.Context, c *entity.VoucherClaim) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[c.ID] = *c
	return nil
}

func (r *memVoucherRepo) FindByID(ctx context.Context, id uuid.UUID) (*entity.VoucherClaim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *memVoucherRepo) filter(match func(entity.VoucherClaim) bool) []*entity.VoucherClaim {
	var out []*entity.VoucherClaim
	for _, c := range r.rows {
		if match(c) {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmissionDate.After(out[j].SubmissionDate) })
	return out
}

func (r *memVoucherRepo) FindByCaregiver(ctx context.Context, caregiverID uuid.UUID, limit, offset int) ([]*entity.VoucherClaim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return page(r.filter(func(c entity.VoucherClaim) bool { return c.CaregiverID == caregiverID }), limit, offset), nil
}

func (r *memVoucherRepo) CountByCaregiver(ctx context.Context, caregiverID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.filter(func(c entity.VoucherClaim) bool { return c.CaregiverID == caregiverID }))), nil
}

func (r *memVoucherRepo) FindByStatus(ctx context.Context, status entity.VoucherStatus, limit, offset int) ([]*entity.VoucherClaim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return page(r.filter(func(c entity.VoucherClaim) bool { return c.Status == status }), limit, offset), nil
}

func (r *memVoucherRepo) CountByStatus(ctx context.Context, status entity.VoucherStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.filter(func(c entity.VoucherClaim) bool { return c.Status == status }))), nil
}

func (r *memVoucherRepo) UpdateStatus(ctx context.Context, c *entity.VoucherClaim, from entity.VoucherStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.rows[c.ID]
	if !ok || stored.Status != from {
		return fmt.Errorf("voucher claim %s: %w", c.ID, repository.ErrStaleVersion)
	}
	r.rows[c.ID] = *c
	return nil
}

func (r *memVoucherRepo) RecordPayoutAttempt(ctx context.Context, c *entity.VoucherClaim) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.rows[c.ID]
	if !ok || stored.Status != entity.VoucherStatusApproved {
		return fmt.Errorf("voucher claim %s: %w", c.ID, repository.ErrStaleVersion)
	}
	stored.PayoutAttempts = c.PayoutAttempts
	stored.UpdatedAt = c.UpdatedAt
	r.rows[c.ID] = stored
	return nil
}

func (r *memVoucherRepo) Stats(ctx context.Context) (*entity.VoucherStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stats entity.VoucherStats
	for _, c := range r.rows {
		stats.TotalClaims++
		switch c.Status {
		case entity.VoucherStatusPending:
			stats.PendingClaims++
		case entity.VoucherStatusPaid:
			stats.PaidClaims++
			stats.TotalRefunded += c.RefundAmount
		}
	}
	return &stats, nil
}

func page[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return nil
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}

// fakeProcessor lands operations by idempotency key. Queued errors are
// returned before an operation lands; with landOnTimeout an unknown outcome
// still lands the operation, as a real timeout after the processor
// committed would. A declined key stays declined: resending or looking it up
// replays the failure.
type fakeProcessor struct {
	mu            sync.Mutex
	landed        map[string]*processor.Receipt
	declined      map[string]*processor.Receipt
	amounts       map[string]int64
	chargeErrs    []error
	payoutErrs    []error
	refundErrs    []error
	landOnTimeout bool
	calls         map[string]int
	seq           int
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		landed:   make(map[string]*processor.Receipt),
		declined: make(map[string]*processor.Receipt),
		amounts:  make(map[string]int64),
		calls:   make(map[string]int),
	}
}

func (p *fakeProcessor) Charge(ctx context.Context, req processor.ChargeRequest) (*processor.Receipt, error) {
	return p.do("charge", req.IdempotencyKey, req.Amount, &p.chargeErrs)
}

func (p *fakeProcessor) Payout(ctx context.Context, req processor.PayoutRequest) (*processor.Receipt, error) {
	return p.do("payout", req.IdempotencyKey, req.Amount, &p.payoutErrs)
}

func (p *fakeProcessor) Refund(ctx context.Context, req processor.RefundRequest) (*processor.Receipt, error) {
	if req.ChargeRef == "" {
		return nil, fmt.Errorf("%w: missing charge reference", processor.ErrDeclined)
	}
	return p.do("refund", req.IdempotencyKey, req.Amount, &p.refundErrs)
}

func (p *fakeProcessor) Lookup(ctx context.Context, key string) (*processor.Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["lookup"]++
	if r, ok := p.landed[key]; ok {
		return r, nil
	}
	if r, ok := p.declined[key]; ok {
		return r, nil
	}
	return nil, processor.ErrNotFound
}

func (p *fakeProcessor) do(kind, key string, amount int64, errs *[]error) (*processor.Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[kind]++

	if r, ok := p.declined[key]; ok {
		return r, nil
	}
	if len(*errs) > 0 {
		err := (*errs)[0]
		*errs = (*errs)[1:]
		if errors.Is(err, processor.ErrOutcomeUnknown) && p.landOnTimeout {
			p.land(kind, key, amount)
		}
		if errors.Is(err, processor.ErrDeclined) {
			p.declined[key] = &processor.Receipt{Status: processor.StatusFailed, Amount: amount}
		}
		return nil, err
	}
	if r, ok := p.landed[key]; ok {
		return r, nil
	}
	return p.land(kind, key, amount), nil
}

func (p *fakeProcessor) land(kind, key string, amount int64) *processor.Receipt {
	p.seq++
	r := &processor.Receipt{
		Reference: fmt.Sprintf("%s_%d", kind, p.seq),
		Status:    processor.StatusSucceeded,
		Amount:    amount,
	}
	p.landed[key] = r
	p.amounts[kind] += amount
	return r
}

func (p *fakeProcessor) callCount(kind string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[kind]
}

func (p *fakeProcessor) moved(kind string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.amounts[kind]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, body any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, routingKey)
	return nil
}

func (p *recordingPublisher) count(routingKey string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == routingKey {
			n++
		}
	}
	return n
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type testEnv struct {
	svc         *Service
	proc        *fakeProcessor
	events      *recordingPublisher
	bookings    *memBookingRepo
	escrow      *memEscrowRepo
	jobs        *memReleaseJobRepo
	completions *memCompletionRepo
	vouchers    *memVoucherRepo
	clock       *testClock
	repo        *repository.Repository
	config      *utils.Config

	parent    Actor
	caregiver Actor
	admin     Actor
}

var testEpoch = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		proc:        newFakeProcessor(),
		events:      &recordingPublisher{},
		bookings:    &memBookingRepo{rows: make(map[uuid.UUID]entity.Booking)},
		escrow:      &memEscrowRepo{rows: make(map[escrowKey]entity.EscrowOperation)},
		jobs:        &memReleaseJobRepo{rows: make(map[uuid.UUID]entity.ReleaseJob)},
		completions: &memCompletionRepo{rows: make(map[uuid.UUID]entity.CaregiverCompletion)},
		vouchers:    &memVoucherRepo{rows: make(map[uuid.UUID]entity.VoucherClaim)},
		clock:       &testClock{now: testEpoch},
		parent:      Actor{ID: uuid.New(), Role: entity.RoleParent},
		caregiver:   Actor{ID: uuid.New(), Role: entity.RoleCaregiver},
		admin:       Actor{ID: uuid.New(), Role: entity.RoleAdmin},
	}

	repo := &repository.Repository{
		Booking:    env.bookings,
		Escrow:     env.escrow,
		ReleaseJob: env.jobs,
		Completion: env.completions,
		Voucher:    env.vouchers,
	}

	config := &utils.Config{
		Processor: utils.ProcessorConfig{MaxAttempts: 3},
		Billing: utils.BillingConfig{
			PlatformFeeBps: 1000,
			ReleaseDelay:   24 * time.Hour,
			Currency:       "aud",
		},
		Scheduler: utils.SchedulerConfig{
			BatchSize:       10,
			MaxAttempts:     3,
			StaleClaimAfter: 10 * time.Minute,
		},
	}

	env.repo, env.config = repo, config
	env.svc = env.instance()

	return env
}

// instance builds another service stack over the same stores, standing in
// for a second server process. It shares nothing in memory with env.svc.
func (env *testEnv) instance() *Service {
	svc := NewService(env.repo, env.config, env.proc, env.events, zap.NewNop())
	svc.Booking.(*bookingService).now = env.clock.Now
	svc.Escrow.(*escrowService).now = env.clock.Now
	svc.Release.(*releaseService).now = env.clock.Now
	svc.Voucher.(*voucherService).now = env.clock.Now
	return svc
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vivaly-settlement/internal/data/entity"
	"vivaly-settlement/internal/data/repository"
	"vivaly-settlement/internal/dto/response"
	"vivaly-settlement/pkg/processor"
	"vivaly-settlement/pkg/utils"

	"go.uber.org/zap"
)

const (
	releaseRetryBase = 30 * time.Second
	releaseRetryMax  = time.Hour
)

// ReleaseService drives the durable completion timers.
type ReleaseService interface {
	// RunDue claims the jobs whose release time has passed and completes
	// their bookings as the system actor.
	RunDue(ctx context.Context) (*response.ReleaseRunResponse, error)
}

type bookingCompleter interface {
	CompleteBooking(ctx context.Context, actor Actor, bookingID string) (*response.BookingResponse, error)
}

type releaseService struct {
	repo     *repository.Repository
	bookings bookingCompleter
	events   EventPublisher
	config   utils.SchedulerConfig
	now      func() time.Time
	log      *zap.Logger
}

func NewReleaseService(
	repo *repository.Repository,
	bookings BookingService,
	events EventPublisher,
	config utils.SchedulerConfig,
	log *zap.Logger,
) ReleaseService {
	return &releaseService{
		repo:     repo,
		bookings: bookings,
		events:   events,
		config:   config,
		now:      time.Now,
		log:      log.With(zap.String("service", "release")),
	}
}

type ReleaseFailedEvent struct {
	BookingID string `json:"booking_id"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error"`
}

func (s *releaseService) RunDue(ctx context.Context) (*response.ReleaseRunResponse, error) {
	now := s.now()

	jobs, err := s.repo.ReleaseJob.ClaimDue(ctx, now, s.config.BatchSize, s.config.StaleClaimAfter)
	if err != nil {
		return nil, fmt.Errorf("failed to claim release jobs: %w", err)
	}

	run := &response.ReleaseRunResponse{Claimed: len(jobs)}
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}

		log := s.log.With(zap.String("booking_id", job.BookingID.String()), zap.Int("attempt", job.Attempts))

		resp, err := s.bookings.CompleteBooking(ctx, SystemActor, job.BookingID.String())
		if err == nil {
			if markErr := s.repo.ReleaseJob.MarkDone(ctx, job.BookingID); markErr != nil {
				log.Error("Failed to mark release job done", zap.Error(markErr))
			}
			if resp.Status == entity.BookingStatusCompleted {
				run.Completed++
				log.Info("Escrow released")
			} else {
				run.Skipped++
			}
			continue
		}

		run.Failed++
		terminal := errors.Is(err, ErrNotFound) || job.Attempts >= s.config.MaxAttempts
		retryAt := s.now().Add(releaseRetryDelay(job.Attempts))

		if markErr := s.repo.ReleaseJob.MarkFailed(ctx, job.BookingID, err.Error(), retryAt, terminal); markErr != nil {
			log.Error("Failed to record release failure", zap.Error(markErr))
		}

		if terminal {
			log.Error("Release job gave up", zap.Error(err))
			publish(ctx, s.events, s.log, EventReleaseFailed, ReleaseFailedEvent{
				BookingID: job.BookingID.String(),
				Attempts:  job.Attempts,
				Error:     err.Error(),
			})
			continue
		}

		log.Warn("Release attempt failed", zap.Time("retry_at", retryAt), zap.Error(err))
	}

	if run.Claimed > 0 {
		s.log.Info("Release sweep finished",
			zap.Int("claimed", run.Claimed),
			zap.Int("completed", run.Completed),
			zap.Int("skipped", run.Skipped),
			zap.Int("failed", run.Failed))
	}

	return run, nil
}

// releaseRetry spaces out failed release attempts. Attempts are bounded by
// the scheduler's max attempts, not by the policy.
var releaseRetry = processor.RetryPolicy{BaseDelay: releaseRetryBase, MaxDelay: releaseRetryMax}

// releaseRetryDelay doubles from releaseRetryBase per attempt up to
// releaseRetryMax.
func releaseRetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return releaseRetry.Backoff(attempt)
}

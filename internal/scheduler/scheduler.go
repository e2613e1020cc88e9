package scheduler

import (
	"context"
	"fmt"

	"vivaly-settlement/internal/dto/response"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ReleaseRunner completes bookings whose release time has passed.
type ReleaseRunner interface {
	RunDue(ctx context.Context) (*response.ReleaseRunResponse, error)
}

// Scheduler ticks the release sweep on a cron schedule. Due jobs live in the
// database, so a restart only delays them until the next tick.
type Scheduler struct {
	cron     *cron.Cron
	release  ReleaseRunner
	schedule string
	ctx      context.Context
	cancel   context.CancelFunc
	log      *zap.Logger
}

func New(release ReleaseRunner, schedule string, log *zap.Logger) *Scheduler {
	log = log.With(zap.String("component", "scheduler"))
	cronLogger := cron.PrintfLogger(zap.NewStdLog(log))

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:     cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		release:  release,
		schedule: schedule,
		ctx:      ctx,
		cancel:   cancel,
		log:      log,
	}
}

// Start registers the release sweep and starts ticking.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return fmt.Errorf("schedule release sweep %q: %w", s.schedule, err)
	}
	s.log.Info("Scheduled release sweep", zap.String("schedule", s.schedule))

	s.cron.Start()
	return nil
}

// Stop waits for a running sweep to finish. When ctx expires first the sweep
// is cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	defer s.cancel()

	select {
	case <-done.Done():
		s.log.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn("Scheduler stop timed out, cancelling sweep")
		return ctx.Err()
	}
}

func (s *Scheduler) sweep() {
	run, err := s.release.RunDue(s.ctx)
	if err != nil {
		s.log.Error("Release sweep failed", zap.Error(err))
		return
	}
	if run.Failed > 0 {
		s.log.Warn("Release sweep had failures",
			zap.Int("claimed", run.Claimed),
			zap.Int("failed", run.Failed))
	}
}

package service

import (
	"context"
	"sync"
	"time"

	"webhook-gateway/internal/core/domain"
	"webhook-gateway/internal/core/ports"
	"webhook-gateway/internal/metrics"

	"github.com/rs/zerolog"
)

// SweepOptions tunes the retry sweep loop.
type SweepOptions struct {
	Interval   time.Duration
	BatchSize  int
	Workers    int
	StuckAfter time.Duration
}

// Sweeper drives retries: on every tick it reclaims attempts stuck
// IN_FLIGHT (worker died mid-delivery) and claims due SCHEDULED attempts
// for delivery. Claiming uses row locks, so multiple replicas can sweep
// concurrently without double delivery.
type Sweeper struct {
	attemptRepo ports.AttemptRepository
	dispatcher  ports.DispatchService
	scheduler   ports.RetryScheduler
	opts        SweepOptions
	log         zerolog.Logger
}

// NewSweeper creates a new Sweeper.
func NewSweeper(
	attemptRepo ports.AttemptRepository,
	dispatcher ports.DispatchService,
	scheduler ports.RetryScheduler,
	opts SweepOptions,
	log zerolog.Logger,
) *Sweeper {
	return &Sweeper{
		attemptRepo: attemptRepo,
		dispatcher:  dispatcher,
		scheduler:   scheduler,
		opts:        opts,
		log:         log,
	}
}

// Run blocks sweeping until ctx is cancelled. Claimed attempts are fanned
// out to a fixed pool of delivery workers.
func (s *Sweeper) Run(ctx context.Context) {
	work := make(chan *domain.DeliveryAttempt)

	var wg sync.WaitGroup
	for i := 0; i < s.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for attempt := range work {
				if err := s.dispatcher.Deliver(ctx, attempt); err != nil {
					s.log.Error().Err(err).
						Str("attempt_id", attempt.ID.String()).
						Msg("delivery worker failed")
				}
			}
		}()
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.log.Info().
		Dur("interval", s.opts.Interval).
		Int("workers", s.opts.Workers).
		Msg("retry sweeper started")

	for {
		select {
		case <-ctx.Done():
			close(work)
			wg.Wait()
			s.log.Info().Msg("retry sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx, work)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context, work chan<- *domain.DeliveryAttempt) {
	s.reclaimStuck(ctx)

	claimed, err := s.attemptRepo.ClaimDue(ctx, time.Now().UTC(), s.opts.BatchSize)
	if err != nil {
		s.log.Error().Err(err).Msg("claim due attempts failed")
		return
	}
	if len(claimed) == 0 {
		return
	}
	metrics.SweepClaimedTotal.Add(float64(len(claimed)))
	s.log.Debug().Int("claimed", len(claimed)).Msg("due attempts claimed")

	for i := range claimed {
		select {
		case <-ctx.Done():
			return
		case work <- &claimed[i]:
		}
	}
}

// reclaimStuck fails attempts whose worker died between claim and outcome,
// handing them to the scheduler so they rejoin the retry track.
func (s *Sweeper) reclaimStuck(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.opts.StuckAfter)
	stuck, err := s.attemptRepo.ReclaimStuck(ctx, cutoff, s.opts.BatchSize)
	if err != nil {
		s.log.Error().Err(err).Msg("reclaim stuck attempts failed")
		return
	}
	if len(stuck) == 0 {
		return
	}
	metrics.SweepReclaimedTotal.Add(float64(len(stuck)))
	s.log.Warn().Int("reclaimed", len(stuck)).Msg("stuck in-flight attempts reclaimed")

	for i := range stuck {
		if err := s.scheduler.HandleOutcome(ctx, &stuck[i]); err != nil {
			s.log.Error().Err(err).
				Str("attempt_id", stuck[i].ID.String()).
				Msg("failed to reschedule reclaimed attempt")
		}
	}
}

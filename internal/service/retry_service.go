package service

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"webhook-gateway/internal/core/domain"
	"webhook-gateway/internal/core/ports"
	"webhook-gateway/internal/metrics"
	"webhook-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RetryPolicy holds the knobs of the retry scheduler.
type RetryPolicy struct {
	MaxAttempts      int
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	JitterFraction   float64
	DisableThreshold int
}

// RetrySchedulerImpl implements ports.RetryScheduler. It is the single
// place delivery outcomes are turned into persistent state: success resets
// the endpoint counter, failure either schedules the next attempt or
// exhausts the delivery and advances the auto-disable counter.
type RetrySchedulerImpl struct {
	attemptRepo  ports.AttemptRepository
	endpointRepo ports.EndpointRepository
	policy       RetryPolicy
	log          zerolog.Logger
}

// NewRetryScheduler creates a new RetrySchedulerImpl.
func NewRetryScheduler(
	attemptRepo ports.AttemptRepository,
	endpointRepo ports.EndpointRepository,
	policy RetryPolicy,
	log zerolog.Logger,
) *RetrySchedulerImpl {
	return &RetrySchedulerImpl{
		attemptRepo:  attemptRepo,
		endpointRepo: endpointRepo,
		policy:       policy,
		log:          log,
	}
}

// HandleOutcome persists the outcome already recorded on the attempt
// (SUCCEEDED or FAILED) and applies the retry and auto-disable rules.
func (s *RetrySchedulerImpl) HandleOutcome(ctx context.Context, attempt *domain.DeliveryAttempt) error {
	switch attempt.State {
	case domain.AttemptStateSucceeded:
		return s.handleSuccess(ctx, attempt)
	case domain.AttemptStateFailed:
		return s.handleFailure(ctx, attempt)
	default:
		return apperror.InternalError(fmt.Errorf("unexpected attempt state %q", attempt.State))
	}
}

func (s *RetrySchedulerImpl) handleSuccess(ctx context.Context, attempt *domain.DeliveryAttempt) error {
	attempt.NextRetryAt = nil
	if err := s.attemptRepo.Update(ctx, attempt); err != nil {
		return apperror.ErrStorage(fmt.Errorf("record success: %w", err))
	}
	if err := s.endpointRepo.RecordSuccess(ctx, attempt.EndpointID); err != nil {
		return apperror.ErrStorage(fmt.Errorf("reset failure counter: %w", err))
	}
	metrics.DeliveriesTotal.WithLabelValues("success").Inc()

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("endpoint_id", attempt.EndpointID.String()).
		Int("attempt_number", attempt.AttemptNumber).
		Msg("delivery succeeded")
	return nil
}

func (s *RetrySchedulerImpl) handleFailure(ctx context.Context, attempt *domain.DeliveryAttempt) error {
	metrics.DeliveriesTotal.WithLabelValues("failed").Inc()

	if attempt.AttemptNumber >= s.policy.MaxAttempts {
		return s.exhaust(ctx, attempt)
	}

	if err := s.attemptRepo.Update(ctx, attempt); err != nil {
		return apperror.ErrStorage(fmt.Errorf("record failure: %w", err))
	}

	next := attempt.AttemptNumber + 1
	retryAt := time.Now().UTC().Add(s.Backoff(next))
	retry := &domain.DeliveryAttempt{
		ID:            uuid.New(),
		EndpointID:    attempt.EndpointID,
		EventID:       attempt.EventID,
		AttemptNumber: next,
		State:         domain.AttemptStateScheduled,
		NextRetryAt:   &retryAt,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	if err := s.attemptRepo.Create(ctx, retry); err != nil {
		return apperror.ErrStorage(fmt.Errorf("schedule retry: %w", err))
	}
	metrics.RetriesScheduledTotal.Inc()

	s.log.Info().
		Str("endpoint_id", attempt.EndpointID.String()).
		Str("event_id", attempt.EventID.String()).
		Int("attempt_number", next).
		Time("next_retry_at", retryAt).
		Msg("retry scheduled")
	return nil
}

// exhaust terminally fails the delivery and advances the endpoint's
// consecutive-failure counter, disabling it at the threshold.
func (s *RetrySchedulerImpl) exhaust(ctx context.Context, attempt *domain.DeliveryAttempt) error {
	attempt.State = domain.AttemptStateExhausted
	attempt.NextRetryAt = nil
	if err := s.attemptRepo.Update(ctx, attempt); err != nil {
		return apperror.ErrStorage(fmt.Errorf("record exhaustion: %w", err))
	}
	metrics.AttemptsExhaustedTotal.Inc()

	result, err := s.endpointRepo.RecordFailure(ctx, attempt.EndpointID, s.policy.DisableThreshold)
	if err != nil {
		return apperror.ErrStorage(fmt.Errorf("advance failure counter: %w", err))
	}
	if result == nil {
		// Endpoint deleted or already disabled.
		return nil
	}

	if result.JustDisabled {
		metrics.EndpointsDisabledTotal.Inc()
		s.log.Warn().
			Str("endpoint_id", attempt.EndpointID.String()).
			Int("consecutive_failures", result.ConsecutiveFailures).
			Msg("endpoint auto-disabled after consecutive delivery failures")
	} else {
		s.log.Info().
			Str("endpoint_id", attempt.EndpointID.String()).
			Str("event_id", attempt.EventID.String()).
			Int("consecutive_failures", result.ConsecutiveFailures).
			Msg("delivery exhausted retry budget")
	}
	return nil
}

// Backoff computes the wait before the given attempt number: the base
// delay doubles per attempt (attempt 2 waits the base), capped, with
// symmetric jitter to spread load after a receiver outage.
func (s *RetrySchedulerImpl) Backoff(attemptNumber int) time.Duration {
	if attemptNumber < 2 {
		return 0
	}
	delay := float64(s.policy.BackoffBase) * math.Pow(2, float64(attemptNumber-2))
	if delay > float64(s.policy.BackoffMax) {
		delay = float64(s.policy.BackoffMax)
	}
	if s.policy.JitterFraction > 0 {
		jitter := (rand.Float64()*2 - 1) * s.policy.JitterFraction
		delay *= 1 + jitter
	}
	return time.Duration(delay)
}

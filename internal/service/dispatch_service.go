package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"webhook-gateway/internal/core/domain"
	"webhook-gateway/internal/core/ports"
	"webhook-gateway/internal/metrics"
	"webhook-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPDoer is the slice of http.Client the dispatcher needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DeliveryOptions tunes the dispatcher.
type DeliveryOptions struct {
	SnippetMaxBytes int
	DedupeTTL       time.Duration
}

// DispatchServiceImpl implements ports.DispatchService. It fans events out
// to subscribed endpoints, performs the first delivery attempt inline, and
// hands outcomes to the retry scheduler.
type DispatchServiceImpl struct {
	endpointRepo ports.EndpointRepository
	eventRepo    ports.EventRepository
	attemptRepo  ports.AttemptRepository
	dedupe       ports.DedupeStore
	encSvc       ports.EncryptionService
	envelopes    ports.EnvelopeBuilder
	scheduler    ports.RetryScheduler
	client       HTTPDoer
	opts         DeliveryOptions
	log          zerolog.Logger
}

// NewDispatchService creates a new DispatchServiceImpl.
func NewDispatchService(
	endpointRepo ports.EndpointRepository,
	eventRepo ports.EventRepository,
	attemptRepo ports.AttemptRepository,
	dedupe ports.DedupeStore,
	encSvc ports.EncryptionService,
	envelopes ports.EnvelopeBuilder,
	scheduler ports.RetryScheduler,
	client HTTPDoer,
	opts DeliveryOptions,
	log zerolog.Logger,
) *DispatchServiceImpl {
	return &DispatchServiceImpl{
		endpointRepo: endpointRepo,
		eventRepo:    eventRepo,
		attemptRepo:  attemptRepo,
		dedupe:       dedupe,
		encSvc:       encSvc,
		envelopes:    envelopes,
		scheduler:    scheduler,
		client:       client,
		opts:         opts,
		log:          log,
	}
}

// Dispatch ingests a producer event and fans it out. Re-emissions of the
// same (merchant, dedupe key) collapse onto the same event row, and
// endpoints that already hold an attempt for the pair are skipped, so a
// producer retry never causes a duplicate delivery.
func (s *DispatchServiceImpl) Dispatch(ctx context.Context, in ports.IngestEventInput) (*ports.DispatchResult, error) {
	if !domain.IsValidEventType(in.EventType) {
		metrics.EventsIngestedTotal.WithLabelValues("rejected").Inc()
		return nil, apperror.ErrInvalidEventType(in.EventType)
	}
	if in.DedupeKey == "" {
		metrics.EventsIngestedTotal.WithLabelValues("rejected").Inc()
		return nil, apperror.Validation("dedupe_key is required")
	}

	occurredAt := in.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	event := &domain.WebhookEvent{
		ID:         domain.BuildEventID(in.MerchantID, in.DedupeKey),
		MerchantID: in.MerchantID,
		EventType:  in.EventType,
		Payload:    in.Payload,
		DedupeKey:  in.DedupeKey,
		OccurredAt: occurredAt,
		CreatedAt:  time.Now().UTC(),
	}

	// Fast dedupe path. Best-effort: the events table is the durable guard.
	fresh, err := s.dedupe.CheckAndSet(ctx, in.MerchantID.String(), in.DedupeKey, s.opts.DedupeTTL)
	if err != nil {
		s.log.Warn().Err(err).Str("dedupe_key", in.DedupeKey).Msg("redis dedupe check failed, falling through to events table")
		fresh = true
	}

	inserted, err := s.eventRepo.Insert(ctx, event)
	if err != nil {
		return nil, apperror.ErrStorage(fmt.Errorf("persist event: %w", err))
	}
	if !inserted && !fresh {
		s.log.Debug().
			Str("event_id", event.ID.String()).
			Str("dedupe_key", in.DedupeKey).
			Msg("duplicate event ignored")
	}
	if inserted {
		metrics.EventsIngestedTotal.WithLabelValues("accepted").Inc()
	} else {
		metrics.EventsIngestedTotal.WithLabelValues("duplicate").Inc()
	}

	endpoints, err := s.endpointRepo.ListSubscribed(ctx, in.MerchantID, in.EventType)
	if err != nil {
		return nil, apperror.ErrStorage(fmt.Errorf("list subscribed endpoints: %w", err))
	}

	result := &ports.DispatchResult{EventID: event.ID, Matched: len(endpoints), Duplicate: !inserted}
	for i := range endpoints {
		ep := &endpoints[i]

		// A replayed event may already have attempts for some endpoints,
		// including exhausted ones, which stay final.
		if !inserted {
			existing, err := s.attemptRepo.LatestForPair(ctx, ep.ID, event.ID)
			if err != nil {
				s.log.Error().Err(err).
					Str("endpoint_id", ep.ID.String()).
					Str("event_id", event.ID.String()).
					Msg("failed to check existing attempts, skipping endpoint")
				result.Skipped++
				continue
			}
			if existing != nil {
				result.Skipped++
				continue
			}
		}

		// A storage error aborts this endpoint's delivery only, never the
		// rest of the fan-out.
		attempt, err := s.openAttempt(ctx, ep.ID, event.ID, 1)
		if err != nil {
			s.log.Error().Err(err).
				Str("endpoint_id", ep.ID.String()).
				Str("event_id", event.ID.String()).
				Msg("failed to open delivery attempt")
			result.Failed++
			continue
		}

		s.execute(ctx, attempt, ep, event)
		if err := s.scheduler.HandleOutcome(ctx, attempt); err != nil {
			s.log.Error().Err(err).
				Str("attempt_id", attempt.ID.String()).
				Str("endpoint_id", ep.ID.String()).
				Msg("failed to record delivery outcome")
		}
		if attempt.State == domain.AttemptStateSucceeded {
			result.Delivered++
		} else {
			result.Failed++
		}
	}

	s.log.Info().
		Str("event_id", event.ID.String()).
		Str("event_type", in.EventType).
		Int("matched", result.Matched).
		Int("delivered", result.Delivered).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Msg("event dispatched")

	return result, nil
}

// Deliver executes one claimed (IN_FLIGHT) attempt. It re-checks the
// endpoint so deliveries never reach a deleted or disabled one.
func (s *DispatchServiceImpl) Deliver(ctx context.Context, attempt *domain.DeliveryAttempt) error {
	endpoint, err := s.endpointRepo.Get(ctx, attempt.EndpointID)
	if err != nil {
		return apperror.ErrStorage(fmt.Errorf("load endpoint: %w", err))
	}
	if endpoint == nil || !endpoint.IsActive() {
		reason := "endpoint deleted"
		if endpoint != nil {
			reason = "endpoint disabled"
		}
		return s.closeAttempt(ctx, attempt, reason)
	}

	event, err := s.eventRepo.GetByID(ctx, attempt.EventID)
	if err != nil {
		return apperror.ErrStorage(fmt.Errorf("load event: %w", err))
	}
	if event == nil {
		return s.closeAttempt(ctx, attempt, "event missing")
	}

	s.execute(ctx, attempt, endpoint, event)
	return s.scheduler.HandleOutcome(ctx, attempt)
}

// Test sends a synthetic test.ping delivery synchronously. It records one
// history row but never schedules retries and never moves the endpoint's
// failure counter, so a merchant can probe a disabled endpoint safely.
func (s *DispatchServiceImpl) Test(ctx context.Context, endpointID, merchantID uuid.UUID) (*ports.TestResult, error) {
	endpoint, err := s.endpointRepo.GetByID(ctx, endpointID, merchantID)
	if err != nil {
		return nil, apperror.ErrStorage(fmt.Errorf("get endpoint: %w", err))
	}
	if endpoint == nil {
		return nil, apperror.ErrNotFound("webhook")
	}

	now := time.Now().UTC()
	payload, _ := json.Marshal(map[string]any{
		"webhook_id": endpointID.String(),
		"message":    "test delivery",
	})
	dedupeKey := "test-" + uuid.NewString()
	event := &domain.WebhookEvent{
		ID:         domain.BuildEventID(merchantID, dedupeKey),
		MerchantID: merchantID,
		EventType:  domain.EventTestPing,
		Payload:    payload,
		DedupeKey:  dedupeKey,
		OccurredAt: now,
		CreatedAt:  now,
	}
	if _, err := s.eventRepo.Insert(ctx, event); err != nil {
		return nil, apperror.ErrStorage(fmt.Errorf("persist test event: %w", err))
	}

	attempt, err := s.openAttempt(ctx, endpoint.ID, event.ID, 1)
	if err != nil {
		return nil, err
	}

	s.execute(ctx, attempt, endpoint, event)

	// Terminal either way: test deliveries get no retry budget.
	result := &ports.TestResult{HTTPStatus: attempt.HTTPStatus}
	if attempt.State == domain.AttemptStateSucceeded {
		result.Success = true
		result.Message = "test delivery succeeded"
	} else {
		attempt.State = domain.AttemptStateExhausted
		result.Message = "test delivery failed"
		if attempt.LastError != nil {
			result.Message = *attempt.LastError
		}
	}
	attempt.NextRetryAt = nil
	if err := s.attemptRepo.Update(ctx, attempt); err != nil {
		return nil, apperror.ErrStorage(fmt.Errorf("record test outcome: %w", err))
	}

	s.log.Info().
		Str("endpoint_id", endpointID.String()).
		Bool("success", result.Success).
		Msg("test delivery executed")

	return result, nil
}

// openAttempt persists the pending row before any network I/O, so a crash
// mid-delivery leaves a reclaimable IN_FLIGHT record instead of silence.
func (s *DispatchServiceImpl) openAttempt(ctx context.Context, endpointID, eventID uuid.UUID, number int) (*domain.DeliveryAttempt, error) {
	now := time.Now().UTC()
	attempt := &domain.DeliveryAttempt{
		ID:            uuid.New(),
		EndpointID:    endpointID,
		EventID:       eventID,
		AttemptNumber: number,
		State:         domain.AttemptStateInFlight,
		RequestedAt:   &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.attemptRepo.Create(ctx, attempt); err != nil {
		return nil, apperror.ErrStorage(fmt.Errorf("create attempt: %w", err))
	}
	return attempt, nil
}

// execute POSTs the signed envelope and records the outcome on the attempt:
// SUCCEEDED on any 2xx, FAILED otherwise.
func (s *DispatchServiceImpl) execute(ctx context.Context, attempt *domain.DeliveryAttempt, endpoint *domain.WebhookEndpoint, event *domain.WebhookEvent) {
	secret, err := s.encSvc.Decrypt(endpoint.SecretEnc)
	if err != nil {
		s.fail(attempt, nil, "", fmt.Sprintf("decrypt signing secret: %v", err))
		return
	}

	envelope, err := s.envelopes.Build(event, secret, time.Now().UTC())
	if err != nil {
		s.fail(attempt, nil, "", fmt.Sprintf("build envelope: %v", err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(envelope.Body))
	if err != nil {
		s.fail(attempt, nil, "", fmt.Sprintf("build request: %v", err))
		return
	}
	for k, v := range envelope.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	metrics.DeliveryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.fail(attempt, nil, "", truncate(err.Error(), s.opts.SnippetMaxBytes))
		return
	}
	defer resp.Body.Close() //nolint:errcheck

	snippet := ""
	if raw, err := io.ReadAll(io.LimitReader(resp.Body, int64(s.opts.SnippetMaxBytes))); err == nil {
		snippet = string(raw)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		attempt.State = domain.AttemptStateSucceeded
		attempt.HTTPStatus = &resp.StatusCode
		if snippet != "" {
			attempt.ResponseSnippet = &snippet
		}
		return
	}

	s.fail(attempt, &resp.StatusCode, snippet, fmt.Sprintf("endpoint returned HTTP %d", resp.StatusCode))
}

func (s *DispatchServiceImpl) fail(attempt *domain.DeliveryAttempt, status *int, snippet, lastError string) {
	attempt.State = domain.AttemptStateFailed
	attempt.HTTPStatus = status
	if snippet != "" {
		attempt.ResponseSnippet = &snippet
	}
	attempt.LastError = &lastError
}

// closeAttempt terminally closes an attempt whose endpoint or event is gone.
func (s *DispatchServiceImpl) closeAttempt(ctx context.Context, attempt *domain.DeliveryAttempt, reason string) error {
	attempt.State = domain.AttemptStateExhausted
	attempt.LastError = &reason
	attempt.NextRetryAt = nil
	if err := s.attemptRepo.Update(ctx, attempt); err != nil {
		return apperror.ErrStorage(fmt.Errorf("close attempt: %w", err))
	}
	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("reason", reason).
		Msg("attempt closed without delivery")
	return nil
}

func truncate(s string, max int) string {
	if max > 0 && len(s) > max {
		return s[:max]
	}
	return s
}

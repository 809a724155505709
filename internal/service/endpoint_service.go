package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"webhook-gateway/internal/core/domain"
	"webhook-gateway/internal/core/ports"
	"webhook-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	secretPrefix = "whsec_"
	secretBytes  = 32
)

// EndpointServiceImpl implements ports.EndpointService.
type EndpointServiceImpl struct {
	endpointRepo ports.EndpointRepository
	attemptRepo  ports.AttemptRepository
	encSvc       ports.EncryptionService
	allowHTTP    bool
	log          zerolog.Logger
}

// NewEndpointService creates a new EndpointServiceImpl.
func NewEndpointService(
	endpointRepo ports.EndpointRepository,
	attemptRepo ports.AttemptRepository,
	encSvc ports.EncryptionService,
	allowHTTP bool,
	log zerolog.Logger,
) *EndpointServiceImpl {
	return &EndpointServiceImpl{
		endpointRepo: endpointRepo,
		attemptRepo:  attemptRepo,
		encSvc:       encSvc,
		allowHTTP:    allowHTTP,
		log:          log,
	}
}

// Create registers a new endpoint and returns it together with the plaintext
// signing secret. The secret is stored encrypted and never returned again.
func (s *EndpointServiceImpl) Create(ctx context.Context, in ports.CreateEndpointInput) (*domain.WebhookEndpoint, string, error) {
	if err := s.validateURL(in.URL); err != nil {
		return nil, "", err
	}
	if err := validateEventTypes(in.Events); err != nil {
		return nil, "", err
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, "", apperror.InternalError(fmt.Errorf("generate secret: %w", err))
	}
	secretEnc, err := s.encSvc.Encrypt(secret)
	if err != nil {
		return nil, "", apperror.InternalError(fmt.Errorf("encrypt secret: %w", err))
	}

	now := time.Now().UTC()
	endpoint := &domain.WebhookEndpoint{
		ID:          uuid.New(),
		MerchantID:  in.MerchantID,
		URL:         in.URL,
		Description: in.Description,
		Events:      normalizeEvents(in.Events),
		SecretEnc:   secretEnc,
		Status:      domain.EndpointStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.endpointRepo.Create(ctx, endpoint); err != nil {
		return nil, "", apperror.ErrStorage(fmt.Errorf("create endpoint: %w", err))
	}

	s.log.Info().
		Str("endpoint_id", endpoint.ID.String()).
		Str("merchant_id", in.MerchantID.String()).
		Str("url", in.URL).
		Strs("events", endpoint.Events).
		Msg("webhook endpoint registered")

	return endpoint, secret, nil
}

// List returns all endpoints of the merchant.
func (s *EndpointServiceImpl) List(ctx context.Context, merchantID uuid.UUID) ([]domain.WebhookEndpoint, error) {
	endpoints, err := s.endpointRepo.ListByMerchant(ctx, merchantID)
	if err != nil {
		return nil, apperror.ErrStorage(fmt.Errorf("list endpoints: %w", err))
	}
	return endpoints, nil
}

// Get returns one endpoint, scoped to the merchant.
func (s *EndpointServiceImpl) Get(ctx context.Context, id, merchantID uuid.UUID) (*domain.WebhookEndpoint, error) {
	endpoint, err := s.endpointRepo.GetByID(ctx, id, merchantID)
	if err != nil {
		return nil, apperror.ErrStorage(fmt.Errorf("get endpoint: %w", err))
	}
	if endpoint == nil {
		return nil, apperror.ErrNotFound("webhook")
	}
	return endpoint, nil
}

// Update patches an endpoint. Re-activating a disabled endpoint resets the
// consecutive-failure counter so one stale failure cannot immediately
// re-disable it.
func (s *EndpointServiceImpl) Update(ctx context.Context, in ports.UpdateEndpointInput) (*domain.WebhookEndpoint, error) {
	endpoint, err := s.endpointRepo.GetByID(ctx, in.ID, in.MerchantID)
	if err != nil {
		return nil, apperror.ErrStorage(fmt.Errorf("get endpoint: %w", err))
	}
	if endpoint == nil {
		return nil, apperror.ErrNotFound("webhook")
	}

	if in.URL != nil {
		if err := s.validateURL(*in.URL); err != nil {
			return nil, err
		}
		endpoint.URL = *in.URL
	}
	if in.Events != nil {
		if err := validateEventTypes(in.Events); err != nil {
			return nil, err
		}
		endpoint.Events = normalizeEvents(in.Events)
	}
	if in.Description != nil {
		endpoint.Description = *in.Description
	}
	if in.Status != nil && *in.Status != endpoint.Status {
		if *in.Status == domain.EndpointStatusActive {
			endpoint.ConsecutiveFailures = 0
		}
		endpoint.Status = *in.Status
	}
	endpoint.UpdatedAt = time.Now().UTC()

	if err := s.endpointRepo.Update(ctx, endpoint); err != nil {
		return nil, apperror.ErrStorage(fmt.Errorf("update endpoint: %w", err))
	}

	s.log.Info().
		Str("endpoint_id", endpoint.ID.String()).
		Str("status", string(endpoint.Status)).
		Msg("webhook endpoint updated")

	return endpoint, nil
}

// Delete removes an endpoint and terminally cancels its open attempts.
// Delivery history rows are kept.
func (s *EndpointServiceImpl) Delete(ctx context.Context, id, merchantID uuid.UUID) error {
	deleted, err := s.endpointRepo.Delete(ctx, id, merchantID)
	if err != nil {
		return apperror.ErrStorage(fmt.Errorf("delete endpoint: %w", err))
	}
	if !deleted {
		return apperror.ErrNotFound("webhook")
	}

	cancelled, err := s.attemptRepo.CancelOpenForEndpoint(ctx, id, "endpoint deleted")
	if err != nil {
		// Endpoint is gone; delivery re-checks existence before POSTing,
		// so leftover open rows cannot reach the old URL.
		s.log.Warn().Err(err).Str("endpoint_id", id.String()).Msg("failed to cancel open attempts for deleted endpoint")
	} else if cancelled > 0 {
		s.log.Info().Int64("cancelled", cancelled).Str("endpoint_id", id.String()).Msg("open attempts cancelled for deleted endpoint")
	}

	s.log.Info().
		Str("endpoint_id", id.String()).
		Str("merchant_id", merchantID.String()).
		Msg("webhook endpoint deleted")

	return nil
}

func (s *EndpointServiceImpl) validateURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return apperror.ErrInvalidURL("malformed URL")
	}
	if u.Host == "" {
		return apperror.ErrInvalidURL("missing host")
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if s.allowHTTP {
			return nil
		}
		return apperror.ErrInvalidURL("plain http URLs are not allowed")
	default:
		return apperror.ErrInvalidURL("scheme must be https")
	}
}

func validateEventTypes(events []string) error {
	if len(events) == 0 {
		return apperror.Validation("events must not be empty")
	}
	for _, e := range events {
		if !domain.IsValidEventType(e) {
			return apperror.ErrInvalidEventType(e)
		}
	}
	return nil
}

// normalizeEvents removes duplicate subscriptions, preserving order.
func normalizeEvents(events []string) []string {
	seen := make(map[string]struct{}, len(events))
	out := make([]string, 0, len(events))
	for _, e := range events {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// generateSecret returns a new signing secret: whsec_ + 64 hex chars.
func generateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return secretPrefix + hex.EncodeToString(buf), nil
}

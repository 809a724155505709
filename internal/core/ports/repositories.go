package ports

import (
	"context"
	"time"

	"webhook-gateway/internal/core/domain"

	"github.com/google/uuid"
)

// EndpointRepository defines persistence operations for webhook endpoints.
// Merchant-scoped reads and writes never match rows of another merchant.
type EndpointRepository interface {
	Create(ctx context.Context, endpoint *domain.WebhookEndpoint) error
	// GetByID is tenant-scoped: returns nil if the endpoint does not exist or
	// belongs to another merchant.
	GetByID(ctx context.Context, id, merchantID uuid.UUID) (*domain.WebhookEndpoint, error)
	// Get is the internal, unscoped read used on the delivery path.
	Get(ctx context.Context, id uuid.UUID) (*domain.WebhookEndpoint, error)
	ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.WebhookEndpoint, error)
	// ListSubscribed returns the merchant's ACTIVE endpoints subscribed to eventType.
	ListSubscribed(ctx context.Context, merchantID uuid.UUID, eventType string) ([]domain.WebhookEndpoint, error)
	Update(ctx context.Context, endpoint *domain.WebhookEndpoint) error
	// Delete removes the endpoint. Returns false if no row matched.
	Delete(ctx context.Context, id, merchantID uuid.UUID) (bool, error)

	// RecordFailure atomically increments consecutive_failures on an ACTIVE
	// endpoint and disables it when the counter reaches threshold. No-op on
	// disabled or deleted endpoints.
	RecordFailure(ctx context.Context, id uuid.UUID, threshold int) (*OutcomeResult, error)
	// RecordSuccess atomically resets consecutive_failures to zero.
	RecordSuccess(ctx context.Context, id uuid.UUID) error
}

// OutcomeResult reports the endpoint state after a recorded delivery outcome.
type OutcomeResult struct {
	ConsecutiveFailures int
	Status              domain.EndpointStatus
	// JustDisabled is true only on the call that crossed the threshold.
	JustDisabled bool
}

// EventRepository defines persistence for webhook events.
type EventRepository interface {
	// Insert stores the event. Returns false if an event with the same ID
	// already exists (producer re-emission).
	Insert(ctx context.Context, event *domain.WebhookEvent) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error)
}

// AttemptListQuery holds keyset pagination parameters for delivery history.
// Nil Before* fields mean "start from the newest attempt".
type AttemptListQuery struct {
	EndpointID      uuid.UUID
	Limit           int
	BeforeCreatedAt *time.Time
	BeforeID        *uuid.UUID
}

// AttemptRepository defines persistence for delivery attempts.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *domain.DeliveryAttempt) error
	Update(ctx context.Context, attempt *domain.DeliveryAttempt) error
	// LatestForPair returns the attempt with the highest attempt number for
	// the (endpoint, event) pair, or nil if none exists.
	LatestForPair(ctx context.Context, endpointID, eventID uuid.UUID) (*domain.DeliveryAttempt, error)
	// List returns attempts newest-first.
	List(ctx context.Context, q AttemptListQuery) ([]domain.DeliveryAttempt, error)

	// ClaimDue atomically flips up to limit SCHEDULED attempts whose
	// next_retry_at has elapsed to IN_FLIGHT and returns them. Concurrent
	// callers never receive the same attempt.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.DeliveryAttempt, error)
	// ReclaimStuck marks IN_FLIGHT attempts requested before cutoff as FAILED
	// and returns them, recovering from workers that died mid-delivery.
	ReclaimStuck(ctx context.Context, cutoff time.Time, limit int) ([]domain.DeliveryAttempt, error)
	// CancelOpenForEndpoint terminally closes SCHEDULED/IN_FLIGHT attempts of
	// a deleted endpoint. Historical rows are untouched.
	CancelOpenForEndpoint(ctx context.Context, endpointID uuid.UUID, reason string) (int64, error)
}

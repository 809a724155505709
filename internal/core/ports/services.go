package ports

import (
	"context"
	"encoding/json"
	"time"

	"webhook-gateway/internal/core/domain"

	"github.com/google/uuid"
)

// EncryptionService handles AES-256-GCM encryption/decryption of endpoint
// signing secrets at rest.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	// Sign computes the versioned signature over "{timestamp}.{payload}".
	Sign(secret string, payload []byte, timestamp int64) string
	Verify(secret string, payload []byte, timestamp int64, signature string) bool
	// BuildCanonicalString constructs the signed material for producer
	// request authentication.
	BuildCanonicalString(method, path string, timestamp int64, body string) string
}

// TokenService validates JWT bearer tokens issued by the identity platform.
type TokenService interface {
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	MerchantID uuid.UUID
}

// Envelope is the signed, serialized payload sent to an endpoint.
type Envelope struct {
	Body    []byte
	Headers map[string]string
}

// EnvelopeBuilder constructs signed outbound payloads. Building is pure:
// identical inputs produce byte-identical envelopes.
type EnvelopeBuilder interface {
	Build(event *domain.WebhookEvent, secret string, signedAt time.Time) (*Envelope, error)
}

// DedupeStore is the Redis fast path of the event dedupe guard.
type DedupeStore interface {
	// CheckAndSet atomically marks the dedupe key as seen. Returns true if the
	// key is new, false if the event was already ingested.
	CheckAndSet(ctx context.Context, merchantID string, dedupeKey string, ttl time.Duration) (bool, error)
}

// --- Service Ports (Business Logic) ---

// CreateEndpointInput holds validated input for endpoint creation.
type CreateEndpointInput struct {
	MerchantID  uuid.UUID
	URL         string
	Events      []string
	Description string
}

// UpdateEndpointInput is a patch applied to an existing endpoint. Nil fields
// are left unchanged.
type UpdateEndpointInput struct {
	ID          uuid.UUID
	MerchantID  uuid.UUID
	URL         *string
	Events      []string
	Description *string
	Status      *domain.EndpointStatus
}

// EndpointService is the endpoint registry: the sole owner of endpoint
// mutation outside delivery-outcome side effects.
type EndpointService interface {
	// Create registers an endpoint and returns it together with the plaintext
	// signing secret. The secret is never retrievable afterwards.
	Create(ctx context.Context, in CreateEndpointInput) (*domain.WebhookEndpoint, string, error)
	List(ctx context.Context, merchantID uuid.UUID) ([]domain.WebhookEndpoint, error)
	Get(ctx context.Context, id, merchantID uuid.UUID) (*domain.WebhookEndpoint, error)
	Update(ctx context.Context, in UpdateEndpointInput) (*domain.WebhookEndpoint, error)
	// Delete removes the endpoint and cancels its open retries. Returns
	// NotFound when the id does not belong to the merchant.
	Delete(ctx context.Context, id, merchantID uuid.UUID) error
}

// IngestEventInput is a producer-emitted event occurrence.
type IngestEventInput struct {
	MerchantID uuid.UUID
	EventType  string
	Payload    json.RawMessage
	DedupeKey  string
	OccurredAt time.Time
}

// DispatchResult summarizes a dispatch fan-out.
type DispatchResult struct {
	EventID   uuid.UUID
	Matched   int
	Delivered int
	Failed    int
	Skipped   int
	// Duplicate marks a re-emission that collapsed onto an existing event.
	Duplicate bool
}

// TestResult is the synchronous outcome of a synthetic test delivery.
type TestResult struct {
	Success    bool
	Message    string
	HTTPStatus *int
}

// DispatchService fans events out to subscribed endpoints and performs the
// HTTP delivery.
type DispatchService interface {
	Dispatch(ctx context.Context, in IngestEventInput) (*DispatchResult, error)
	// Deliver fires one claimed attempt. Used by the retry sweeper.
	Deliver(ctx context.Context, attempt *domain.DeliveryAttempt) error
	// Test performs a single synthetic delivery, bypassing the retry path.
	Test(ctx context.Context, endpointID, merchantID uuid.UUID) (*TestResult, error)
}

// RetryScheduler owns the failed->retry and failed->exhausted transitions and
// is the only caller of the registry's outcome recording.
type RetryScheduler interface {
	// HandleOutcome inspects a just-recorded attempt outcome and either
	// schedules the next attempt, exhausts the pair, or records success.
	HandleOutcome(ctx context.Context, attempt *domain.DeliveryAttempt) error
}

// DeliveryPage is one page of delivery history, newest-first.
type DeliveryPage struct {
	Items      []domain.DeliveryAttempt
	NextCursor string
}

// DeliveryService answers delivery-history queries.
type DeliveryService interface {
	ListDeliveries(ctx context.Context, endpointID, merchantID uuid.UUID, limit int, cursor string) (*DeliveryPage, error)
}

package dto

import (
	"encoding/json"
	"time"

	"webhook-gateway/internal/core/domain"
)

// --- Webhook endpoint requests ---

// CreateWebhookRequest registers a new endpoint for the authenticated merchant.
type CreateWebhookRequest struct {
	URL         string   `json:"url" binding:"required,safe_url,max=2048"`
	Events      []string `json:"events" binding:"required,min=1,dive,required"`
	Description string   `json:"description" binding:"max=500"`
}

// UpdateWebhookRequest patches an endpoint. Nil fields are left untouched;
// a non-nil empty Events slice is rejected by the service.
type UpdateWebhookRequest struct {
	URL         *string  `json:"url" binding:"omitempty,safe_url,max=2048"`
	Events      []string `json:"events" binding:"omitempty,min=1,dive,required"`
	Description *string  `json:"description" binding:"omitempty,max=500"`
	Status      *string  `json:"status" binding:"omitempty,oneof=ACTIVE DISABLED"`
}

// --- Event ingest (internal producer API) ---

// IngestEventRequest is the internal producer payload.
type IngestEventRequest struct {
	MerchantID string          `json:"merchant_id" binding:"required,uuid"`
	EventType  string          `json:"event_type" binding:"required"`
	Payload    json.RawMessage `json:"payload" binding:"required"`
	DedupeKey  string          `json:"dedupe_key" binding:"required,safe_id,max=255"`
	OccurredAt *time.Time      `json:"occurred_at"`
}

// --- Responses ---

// WebhookResponse is the endpoint representation returned by every read.
// The signing secret is never included.
type WebhookResponse struct {
	ID                  string    `json:"id"`
	URL                 string    `json:"url"`
	Description         string    `json:"description,omitempty"`
	Events              []string  `json:"events"`
	Status              string    `json:"status"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// CreatedWebhookResponse is returned exactly once, at registration, and is
// the only place the plaintext signing secret ever appears.
type CreatedWebhookResponse struct {
	WebhookResponse
	Secret string `json:"secret"`
}

// DeliveryResponse is one row of an endpoint's delivery history.
type DeliveryResponse struct {
	ID              string     `json:"id"`
	EventID         string     `json:"event_id"`
	AttemptNumber   int        `json:"attempt_number"`
	Outcome         string     `json:"outcome"`
	HTTPStatus      *int       `json:"http_status,omitempty"`
	ResponseSnippet *string    `json:"response_snippet,omitempty"`
	Error           *string    `json:"error,omitempty"`
	NextRetryAt     *time.Time `json:"next_retry_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// DeliveryListResponse is a cursor-paginated page of delivery history.
type DeliveryListResponse struct {
	Deliveries []DeliveryResponse `json:"deliveries"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

// TestWebhookResponse reports the outcome of a synthetic test delivery.
type TestWebhookResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	HTTPStatus *int   `json:"http_status,omitempty"`
}

// IngestEventResponse acknowledges an accepted event.
type IngestEventResponse struct {
	EventID   string `json:"event_id"`
	Matched   int    `json:"matched"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Duplicate bool   `json:"duplicate"`
}

// EventTypesResponse lists the subscribable event types.
type EventTypesResponse struct {
	EventTypes []string `json:"event_types"`
}

// --- Mapping helpers ---

// NewWebhookResponse maps a domain endpoint to its API shape.
func NewWebhookResponse(e *domain.WebhookEndpoint) WebhookResponse {
	return WebhookResponse{
		ID:                  e.ID.String(),
		URL:                 e.URL,
		Description:         e.Description,
		Events:              e.Events,
		Status:              string(e.Status),
		ConsecutiveFailures: e.ConsecutiveFailures,
		CreatedAt:           e.CreatedAt,
		UpdatedAt:           e.UpdatedAt,
	}
}

// NewDeliveryResponse maps a delivery attempt to its API shape.
func NewDeliveryResponse(a *domain.DeliveryAttempt) DeliveryResponse {
	return DeliveryResponse{
		ID:              a.ID.String(),
		EventID:         a.EventID.String(),
		AttemptNumber:   a.AttemptNumber,
		Outcome:         string(a.Outcome()),
		HTTPStatus:      a.HTTPStatus,
		ResponseSnippet: a.ResponseSnippet,
		Error:           a.LastError,
		NextRetryAt:     a.NextRetryAt,
		CreatedAt:       a.CreatedAt,
	}
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// EndpointStatus represents the state of a webhook endpoint.
type EndpointStatus string

const (
	EndpointStatusActive   EndpointStatus = "ACTIVE"
	EndpointStatusDisabled EndpointStatus = "DISABLED"
)

// WebhookEndpoint is a merchant-registered HTTPS URL subscribed to event types.
type WebhookEndpoint struct {
	ID          uuid.UUID      `json:"id"`
	MerchantID  uuid.UUID      `json:"merchant_id"`
	URL         string         `json:"url"`
	Description string         `json:"description,omitempty"`
	Events      []string       `json:"events"`
	SecretEnc   string         `json:"-"` // AES-encrypted signing secret, never exposed
	Status      EndpointStatus `json:"status"`
	// ConsecutiveFailures counts exhausted deliveries since the last success.
	// Reaching the disable threshold flips Status to DISABLED.
	ConsecutiveFailures int       `json:"consecutive_failures"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// IsActive returns true if the endpoint accepts new deliveries.
func (e *WebhookEndpoint) IsActive() bool {
	return e.Status == EndpointStatusActive
}

// SubscribesTo returns true if the endpoint is subscribed to the event type.
func (e *WebhookEndpoint) SubscribesTo(eventType string) bool {
	for _, ev := range e.Events {
		if ev == eventType {
			return true
		}
	}
	return false
}

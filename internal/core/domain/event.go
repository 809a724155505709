package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types merchants can subscribe to. The set is closed; the registry
// rejects anything outside it.
const (
	EventOrderCreated     = "order.created"
	EventOrderUpdated     = "order.updated"
	EventOrderCancelled   = "order.cancelled"
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
	EventRefundCreated    = "refund.created"
	EventRefundCompleted  = "refund.completed"
	EventCustomerCreated  = "customer.created"

	// EventTestPing is reserved for synthetic test deliveries and cannot be
	// subscribed to.
	EventTestPing = "test.ping"
)

// EventTypes lists the subscribable event types in display order.
var EventTypes = []string{
	EventOrderCreated,
	EventOrderUpdated,
	EventOrderCancelled,
	EventPaymentSucceeded,
	EventPaymentFailed,
	EventRefundCreated,
	EventRefundCompleted,
	EventCustomerCreated,
}

// IsValidEventType reports whether t is a subscribable event type.
func IsValidEventType(t string) bool {
	for _, et := range EventTypes {
		if et == t {
			return true
		}
	}
	return false
}

// eventIDNamespace seeds deterministic event IDs. Re-emission of the same
// logical occurrence (same merchant + dedupe key) maps to the same event row.
var eventIDNamespace = uuid.MustParse("9e3a54c6-7f11-4f4e-9b0a-2d6c1f8e5a40")

// WebhookEvent is one logical occurrence to be delivered to subscribers.
type WebhookEvent struct {
	ID         uuid.UUID       `json:"id"`
	MerchantID uuid.UUID       `json:"merchant_id"`
	EventType  string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload"`
	DedupeKey  string          `json:"dedupe_key"`
	OccurredAt time.Time       `json:"occurred_at"`
	CreatedAt  time.Time       `json:"created_at"`
}

// BuildEventID derives the deterministic event ID from the merchant and the
// producer-supplied dedupe key.
func BuildEventID(merchantID uuid.UUID, dedupeKey string) uuid.UUID {
	return uuid.NewSHA1(eventIDNamespace, []byte(merchantID.String()+":"+dedupeKey))
}

package service

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"webhook-gateway/internal/core/domain"
	"webhook-gateway/internal/core/ports"
)

// Wire headers carried on every delivery POST.
const (
	HeaderWebhookID        = "X-Webhook-Id"
	HeaderWebhookTimestamp = "X-Webhook-Timestamp"
	HeaderWebhookSignature = "X-Webhook-Signature"
)

// envelopeBody is the JSON document POSTed to receivers. Field order is
// fixed by the struct so the signed bytes are reproducible across retries.
type envelopeBody struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	CreatedAt string          `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

// EnvelopeBuilderImpl implements ports.EnvelopeBuilder.
type EnvelopeBuilderImpl struct {
	signer ports.SignatureService
}

// NewEnvelopeBuilder creates a new EnvelopeBuilderImpl.
func NewEnvelopeBuilder(signer ports.SignatureService) *EnvelopeBuilderImpl {
	return &EnvelopeBuilderImpl{signer: signer}
}

// Build serializes the event into its wire envelope and signs it. Retries
// of the same event produce the same body; only the timestamp header and
// signature change with signedAt.
func (b *EnvelopeBuilderImpl) Build(event *domain.WebhookEvent, secret string, signedAt time.Time) (*ports.Envelope, error) {
	body, err := json.Marshal(envelopeBody{
		ID:        event.ID.String(),
		Type:      event.EventType,
		CreatedAt: event.OccurredAt.UTC().Format(time.RFC3339),
		Data:      event.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	ts := signedAt.Unix()
	return &ports.Envelope{
		Body: body,
		Headers: map[string]string{
			"Content-Type":         "application/json",
			HeaderWebhookID:        event.ID.String(),
			HeaderWebhookTimestamp: strconv.FormatInt(ts, 10),
			HeaderWebhookSignature: b.signer.Sign(secret, body, ts),
		},
	}, nil
}

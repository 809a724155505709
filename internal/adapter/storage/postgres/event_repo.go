package postgres

import (
	"context"
	"errors"
	"fmt"

	"webhook-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EventRepo implements ports.EventRepository.
type EventRepo struct {
	pool Pool
}

// NewEventRepo creates a new EventRepo.
func NewEventRepo(pool Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// Insert stores an event. The event ID is deterministic per
// (merchant, dedupe key), so a producer re-emission collides with the
// original row and returns false. This is the durable half of the
// dedupe guard.
func (r *EventRepo) Insert(ctx context.Context, ev *domain.WebhookEvent) (bool, error) {
	query := `INSERT INTO webhook_events (id, merchant_id, event_type, payload, dedupe_key, occurred_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query,
		ev.ID, ev.MerchantID, ev.EventType, []byte(ev.Payload),
		ev.DedupeKey, ev.OccurredAt, ev.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert webhook event: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetByID fetches an event by its deterministic ID.
func (r *EventRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error) {
	query := `SELECT id, merchant_id, event_type, payload, dedupe_key, occurred_at, created_at
		FROM webhook_events WHERE id = $1`

	ev := &domain.WebhookEvent{}
	var payload []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&ev.ID, &ev.MerchantID, &ev.EventType, &payload,
		&ev.DedupeKey, &ev.OccurredAt, &ev.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get webhook event: %w", err)
	}
	ev.Payload = payload
	return ev, nil
}

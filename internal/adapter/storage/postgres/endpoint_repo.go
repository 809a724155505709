package postgres

import (
	"context"
	"errors"
	"fmt"

	"webhook-gateway/internal/core/domain"
	"webhook-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EndpointRepo implements ports.EndpointRepository.
type EndpointRepo struct {
	pool Pool
}

// NewEndpointRepo creates a new EndpointRepo.
func NewEndpointRepo(pool Pool) *EndpointRepo {
	return &EndpointRepo{pool: pool}
}

const endpointColumns = `id, merchant_id, url, description, events, secret_enc, status, consecutive_failures, created_at, updated_at`

// Create inserts a new webhook endpoint.
func (r *EndpointRepo) Create(ctx context.Context, e *domain.WebhookEndpoint) error {
	query := `INSERT INTO webhook_endpoints (id, merchant_id, url, description, events, secret_enc, status, consecutive_failures, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.MerchantID, e.URL, e.Description, e.Events,
		e.SecretEnc, string(e.Status), e.ConsecutiveFailures,
		e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook endpoint: %w", err)
	}
	return nil
}

// GetByID fetches an endpoint scoped to a merchant. A row belonging to
// another merchant is indistinguishable from a missing one.
func (r *EndpointRepo) GetByID(ctx context.Context, id, merchantID uuid.UUID) (*domain.WebhookEndpoint, error) {
	query := `SELECT ` + endpointColumns + ` FROM webhook_endpoints WHERE id = $1 AND merchant_id = $2`
	return r.scanOne(r.pool.QueryRow(ctx, query, id, merchantID))
}

// Get fetches an endpoint by ID without merchant scoping (delivery path).
func (r *EndpointRepo) Get(ctx context.Context, id uuid.UUID) (*domain.WebhookEndpoint, error) {
	query := `SELECT ` + endpointColumns + ` FROM webhook_endpoints WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// ListByMerchant returns all endpoints of a merchant, newest first.
func (r *EndpointRepo) ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.WebhookEndpoint, error) {
	query := `SELECT ` + endpointColumns + ` FROM webhook_endpoints WHERE merchant_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, merchantID)
	if err != nil {
		return nil, fmt.Errorf("list webhook endpoints: %w", err)
	}
	defer rows.Close()
	return r.scanMany(rows)
}

// ListSubscribed returns the merchant's ACTIVE endpoints subscribed to eventType.
func (r *EndpointRepo) ListSubscribed(ctx context.Context, merchantID uuid.UUID, eventType string) ([]domain.WebhookEndpoint, error) {
	query := `SELECT ` + endpointColumns + ` FROM webhook_endpoints
		WHERE merchant_id = $1 AND status = $2 AND $3 = ANY(events)
		ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, merchantID, string(domain.EndpointStatusActive), eventType)
	if err != nil {
		return nil, fmt.Errorf("list subscribed endpoints: %w", err)
	}
	defer rows.Close()
	return r.scanMany(rows)
}

// Update persists merchant-editable fields plus counter/status.
func (r *EndpointRepo) Update(ctx context.Context, e *domain.WebhookEndpoint) error {
	query := `UPDATE webhook_endpoints
		SET url = $1, description = $2, events = $3, status = $4, consecutive_failures = $5, updated_at = $6
		WHERE id = $7 AND merchant_id = $8`

	tag, err := r.pool.Exec(ctx, query,
		e.URL, e.Description, e.Events, string(e.Status),
		e.ConsecutiveFailures, e.UpdatedAt, e.ID, e.MerchantID,
	)
	if err != nil {
		return fmt.Errorf("update webhook endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update webhook endpoint: no row matched")
	}
	return nil
}

// Delete removes an endpoint. Returns false when no row matched.
func (r *EndpointRepo) Delete(ctx context.Context, id, merchantID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM webhook_endpoints WHERE id = $1 AND merchant_id = $2`, id, merchantID)
	if err != nil {
		return false, fmt.Errorf("delete webhook endpoint: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RecordFailure bumps the consecutive-failure counter and disables the
// endpoint when it reaches threshold, in one statement so concurrent workers
// never lose an increment. Disabled endpoints are left untouched.
func (r *EndpointRepo) RecordFailure(ctx context.Context, id uuid.UUID, threshold int) (*ports.OutcomeResult, error) {
	query := `UPDATE webhook_endpoints
		SET consecutive_failures = consecutive_failures + 1,
		    status = CASE WHEN consecutive_failures + 1 >= $2 THEN 'DISABLED' ELSE status END,
		    updated_at = now()
		WHERE id = $1 AND status = 'ACTIVE'
		RETURNING consecutive_failures, status`

	var failures int
	var status string
	err := r.pool.QueryRow(ctx, query, id, threshold).Scan(&failures, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Endpoint deleted or already disabled: counter stops advancing.
			return nil, nil
		}
		return nil, fmt.Errorf("record endpoint failure: %w", err)
	}

	return &ports.OutcomeResult{
		ConsecutiveFailures: failures,
		Status:              domain.EndpointStatus(status),
		JustDisabled:        domain.EndpointStatus(status) == domain.EndpointStatusDisabled,
	}, nil
}

// RecordSuccess resets the consecutive-failure counter.
func (r *EndpointRepo) RecordSuccess(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE webhook_endpoints SET consecutive_failures = 0, updated_at = now()
		 WHERE id = $1 AND status = 'ACTIVE'`, id)
	if err != nil {
		return fmt.Errorf("record endpoint success: %w", err)
	}
	return nil
}

func (r *EndpointRepo) scanOne(row pgx.Row) (*domain.WebhookEndpoint, error) {
	e := &domain.WebhookEndpoint{}
	var status string
	err := row.Scan(
		&e.ID, &e.MerchantID, &e.URL, &e.Description, &e.Events,
		&e.SecretEnc, &status, &e.ConsecutiveFailures,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get webhook endpoint: %w", err)
	}
	e.Status = domain.EndpointStatus(status)
	return e, nil
}

func (r *EndpointRepo) scanMany(rows pgx.Rows) ([]domain.WebhookEndpoint, error) {
	var endpoints []domain.WebhookEndpoint
	for rows.Next() {
		var e domain.WebhookEndpoint
		var status string
		if err := rows.Scan(
			&e.ID, &e.MerchantID, &e.URL, &e.Description, &e.Events,
			&e.SecretEnc, &status, &e.ConsecutiveFailures,
			&e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan webhook endpoint: %w", err)
		}
		e.Status = domain.EndpointStatus(status)
		endpoints = append(endpoints, e)
	}
	return endpoints, rows.Err()
}

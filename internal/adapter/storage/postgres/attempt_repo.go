package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"webhook-gateway/internal/core/domain"
	"webhook-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AttemptRepo implements ports.AttemptRepository.
type AttemptRepo struct {
	pool Pool
}

// NewAttemptRepo creates a new AttemptRepo.
func NewAttemptRepo(pool Pool) *AttemptRepo {
	return &AttemptRepo{pool: pool}
}

const attemptColumns = `id, endpoint_id, event_id, attempt_number, state, http_status, response_snippet, last_error, requested_at, next_retry_at, created_at, updated_at`

// Create inserts a delivery attempt. The partial unique index on open states
// rejects a second SCHEDULED/IN_FLIGHT row for the same (endpoint, event).
func (r *AttemptRepo) Create(ctx context.Context, a *domain.DeliveryAttempt) error {
	query := `INSERT INTO delivery_attempts
		(id, endpoint_id, event_id, attempt_number, state, http_status, response_snippet, last_error, requested_at, next_retry_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.EndpointID, a.EventID, a.AttemptNumber, string(a.State),
		a.HTTPStatus, a.ResponseSnippet, a.LastError,
		a.RequestedAt, a.NextRetryAt, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery attempt: %w", err)
	}
	return nil
}

// Update persists the mutable outcome fields of an attempt.
func (r *AttemptRepo) Update(ctx context.Context, a *domain.DeliveryAttempt) error {
	a.UpdatedAt = time.Now().UTC()
	query := `UPDATE delivery_attempts
		SET state = $1, http_status = $2, response_snippet = $3, last_error = $4,
		    requested_at = $5, next_retry_at = $6, updated_at = $7
		WHERE id = $8`

	_, err := r.pool.Exec(ctx, query,
		string(a.State), a.HTTPStatus, a.ResponseSnippet, a.LastError,
		a.RequestedAt, a.NextRetryAt, a.UpdatedAt, a.ID,
	)
	if err != nil {
		return fmt.Errorf("update delivery attempt: %w", err)
	}
	return nil
}

// LatestForPair returns the highest-numbered attempt for (endpoint, event).
func (r *AttemptRepo) LatestForPair(ctx context.Context, endpointID, eventID uuid.UUID) (*domain.DeliveryAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM delivery_attempts
		WHERE endpoint_id = $1 AND event_id = $2
		ORDER BY attempt_number DESC LIMIT 1`

	a := &domain.DeliveryAttempt{}
	var state string
	err := r.pool.QueryRow(ctx, query, endpointID, eventID).Scan(
		&a.ID, &a.EndpointID, &a.EventID, &a.AttemptNumber, &state,
		&a.HTTPStatus, &a.ResponseSnippet, &a.LastError,
		&a.RequestedAt, &a.NextRetryAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest attempt: %w", err)
	}
	a.State = domain.AttemptState(state)
	return a, nil
}

// List returns attempts for an endpoint, newest first, keyset-paginated on
// (created_at, id).
func (r *AttemptRepo) List(ctx context.Context, q ports.AttemptListQuery) ([]domain.DeliveryAttempt, error) {
	var rows pgx.Rows
	var err error

	if q.BeforeCreatedAt != nil && q.BeforeID != nil {
		query := `SELECT ` + attemptColumns + ` FROM delivery_attempts
			WHERE endpoint_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC LIMIT $4`
		rows, err = r.pool.Query(ctx, query, q.EndpointID, *q.BeforeCreatedAt, *q.BeforeID, q.Limit)
	} else {
		query := `SELECT ` + attemptColumns + ` FROM delivery_attempts
			WHERE endpoint_id = $1
			ORDER BY created_at DESC, id DESC LIMIT $2`
		rows, err = r.pool.Query(ctx, query, q.EndpointID, q.Limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list delivery attempts: %w", err)
	}
	defer rows.Close()
	return r.scanMany(rows)
}

// ClaimDue atomically promotes due SCHEDULED attempts to IN_FLIGHT.
// FOR UPDATE SKIP LOCKED plus the state guard in the outer UPDATE make the
// claim safe under concurrent sweepers: each row has exactly one winner.
func (r *AttemptRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.DeliveryAttempt, error) {
	query := `UPDATE delivery_attempts SET state = 'IN_FLIGHT', requested_at = $1, updated_at = $1
		WHERE id IN (
			SELECT id FROM delivery_attempts
			WHERE state = 'SCHEDULED' AND next_retry_at <= $1
			ORDER BY next_retry_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		) AND state = 'SCHEDULED'
		RETURNING ` + attemptColumns

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due attempts: %w", err)
	}
	defer rows.Close()
	return r.scanMany(rows)
}

// ReclaimStuck fails IN_FLIGHT attempts requested before cutoff. Recovers
// work lost to a worker that died between claim and outcome write.
func (r *AttemptRepo) ReclaimStuck(ctx context.Context, cutoff time.Time, limit int) ([]domain.DeliveryAttempt, error) {
	query := `UPDATE delivery_attempts
		SET state = 'FAILED', last_error = 'delivery timed out (reclaimed from stuck worker)', updated_at = now()
		WHERE id IN (
			SELECT id FROM delivery_attempts
			WHERE state = 'IN_FLIGHT' AND requested_at < $1
			ORDER BY requested_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		) AND state = 'IN_FLIGHT'
		RETURNING ` + attemptColumns

	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("reclaim stuck attempts: %w", err)
	}
	defer rows.Close()
	return r.scanMany(rows)
}

// CancelOpenForEndpoint terminally closes open attempts of a deleted
// endpoint. History stays in place for audit.
func (r *AttemptRepo) CancelOpenForEndpoint(ctx context.Context, endpointID uuid.UUID, reason string) (int64, error) {
	query := `UPDATE delivery_attempts
		SET state = 'EXHAUSTED', last_error = $2, next_retry_at = NULL, updated_at = now()
		WHERE endpoint_id = $1 AND state IN ('SCHEDULED', 'IN_FLIGHT')`

	tag, err := r.pool.Exec(ctx, query, endpointID, reason)
	if err != nil {
		return 0, fmt.Errorf("cancel open attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *AttemptRepo) scanMany(rows pgx.Rows) ([]domain.DeliveryAttempt, error) {
	var attempts []domain.DeliveryAttempt
	for rows.Next() {
		var a domain.DeliveryAttempt
		var state string
		if err := rows.Scan(
			&a.ID, &a.EndpointID, &a.EventID, &a.AttemptNumber, &state,
			&a.HTTPStatus, &a.ResponseSnippet, &a.LastError,
			&a.RequestedAt, &a.NextRetryAt, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan delivery attempt: %w", err)
		}
		a.State = domain.AttemptState(state)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

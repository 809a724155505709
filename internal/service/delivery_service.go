package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"webhook-gateway/internal/core/ports"
	"webhook-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// DeliveryServiceImpl implements ports.DeliveryService.
type DeliveryServiceImpl struct {
	endpointRepo ports.EndpointRepository
	attemptRepo  ports.AttemptRepository
	log          zerolog.Logger
}

// NewDeliveryService creates a new DeliveryServiceImpl.
func NewDeliveryService(
	endpointRepo ports.EndpointRepository,
	attemptRepo ports.AttemptRepository,
	log zerolog.Logger,
) *DeliveryServiceImpl {
	return &DeliveryServiceImpl{
		endpointRepo: endpointRepo,
		attemptRepo:  attemptRepo,
		log:          log,
	}
}

// ListDeliveries returns an endpoint's delivery history, newest first, as a
// cursor-paginated page. The endpoint lookup is merchant-scoped.
func (s *DeliveryServiceImpl) ListDeliveries(ctx context.Context, endpointID, merchantID uuid.UUID, limit int, cursor string) (*ports.DeliveryPage, error) {
	endpoint, err := s.endpointRepo.GetByID(ctx, endpointID, merchantID)
	if err != nil {
		return nil, apperror.ErrStorage(fmt.Errorf("get endpoint: %w", err))
	}
	if endpoint == nil {
		return nil, apperror.ErrNotFound("webhook")
	}

	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	query := ports.AttemptListQuery{
		EndpointID: endpointID,
		Limit:      limit + 1, // one extra row decides whether a next page exists
	}
	if cursor != "" {
		before, beforeID, err := decodeCursor(cursor)
		if err != nil {
			return nil, apperror.Validation("invalid cursor")
		}
		query.BeforeCreatedAt = &before
		query.BeforeID = &beforeID
	}

	attempts, err := s.attemptRepo.List(ctx, query)
	if err != nil {
		return nil, apperror.ErrStorage(fmt.Errorf("list attempts: %w", err))
	}

	page := &ports.DeliveryPage{}
	if len(attempts) > limit {
		attempts = attempts[:limit]
		last := attempts[len(attempts)-1]
		page.NextCursor = encodeCursor(last.CreatedAt, last.ID)
	}
	page.Items = attempts
	return page, nil
}

func encodeCursor(createdAt time.Time, id uuid.UUID) string {
	raw := createdAt.UTC().Format(time.RFC3339Nano) + "|" + id.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, uuid.UUID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, uuid.Nil, err
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, uuid.Nil, fmt.Errorf("malformed cursor")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, uuid.Nil, err
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return time.Time{}, uuid.Nil, err
	}
	return createdAt, id, nil
}

package service

import (
	"context"
	"testing"
	"time"

	"webhook-gateway/internal/core/domain"
	"webhook-gateway/internal/core/ports"
	"webhook-gateway/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newDeliveryService(t *testing.T) (*DeliveryServiceImpl, *mocks.MockEndpointRepository, *mocks.MockAttemptRepository) {
	ctrl := gomock.NewController(t)
	endpointRepo := mocks.NewMockEndpointRepository(ctrl)
	attemptRepo := mocks.NewMockAttemptRepository(ctrl)
	svc := NewDeliveryService(endpointRepo, attemptRepo, newTestLogger())
	return svc, endpointRepo, attemptRepo
}

func historyAttempts(endpointID uuid.UUID, n int) []domain.DeliveryAttempt {
	base := time.Now().UTC().Truncate(time.Microsecond)
	attempts := make([]domain.DeliveryAttempt, n)
	for i := range attempts {
		attempts[i] = domain.DeliveryAttempt{
			ID:            uuid.New(),
			EndpointID:    endpointID,
			EventID:       uuid.New(),
			AttemptNumber: 1,
			State:         domain.AttemptStateSucceeded,
			CreatedAt:     base.Add(-time.Duration(i) * time.Minute),
		}
	}
	return attempts
}

func TestDeliveryService_ListDeliveries_FirstPage(t *testing.T) {
	svc, endpointRepo, attemptRepo := newDeliveryService(t)
	endpointID, merchantID := uuid.New(), uuid.New()

	endpointRepo.EXPECT().GetByID(gomock.Any(), endpointID, merchantID).
		Return(&domain.WebhookEndpoint{ID: endpointID, MerchantID: merchantID}, nil)

	attempts := historyAttempts(endpointID, 3)
	attemptRepo.EXPECT().List(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, q ports.AttemptListQuery) ([]domain.DeliveryAttempt, error) {
			assert.Equal(t, endpointID, q.EndpointID)
			assert.Equal(t, 21, q.Limit, "fetches one extra row to detect the next page")
			assert.Nil(t, q.BeforeCreatedAt)
			return attempts, nil
		})

	page, err := svc.ListDeliveries(context.Background(), endpointID, merchantID, 20, "")
	require.NoError(t, err)

	assert.Len(t, page.Items, 3)
	assert.Empty(t, page.NextCursor, "no next page when fewer rows than the limit")
}

func TestDeliveryService_ListDeliveries_Paginates(t *testing.T) {
	svc, endpointRepo, attemptRepo := newDeliveryService(t)
	endpointID, merchantID := uuid.New(), uuid.New()

	endpointRepo.EXPECT().GetByID(gomock.Any(), endpointID, merchantID).
		Return(&domain.WebhookEndpoint{ID: endpointID, MerchantID: merchantID}, nil).Times(2)

	attempts := historyAttempts(endpointID, 3)
	attemptRepo.EXPECT().List(gomock.Any(), gomock.Any()).Return(attempts, nil)

	page, err := svc.ListDeliveries(context.Background(), endpointID, merchantID, 2, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)

	// The cursor decodes back to the last returned row.
	last := page.Items[1]
	attemptRepo.EXPECT().List(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, q ports.AttemptListQuery) ([]domain.DeliveryAttempt, error) {
			require.NotNil(t, q.BeforeCreatedAt)
			require.NotNil(t, q.BeforeID)
			assert.True(t, q.BeforeCreatedAt.Equal(last.CreatedAt))
			assert.Equal(t, last.ID, *q.BeforeID)
			return attempts[2:], nil
		})

	page2, err := svc.ListDeliveries(context.Background(), endpointID, merchantID, 2, page.NextCursor)
	require.NoError(t, err)
	assert.Len(t, page2.Items, 1)
	assert.Empty(t, page2.NextCursor)
}

func TestDeliveryService_ListDeliveries_InvalidCursor(t *testing.T) {
	svc, endpointRepo, _ := newDeliveryService(t)
	endpointID, merchantID := uuid.New(), uuid.New()

	endpointRepo.EXPECT().GetByID(gomock.Any(), endpointID, merchantID).
		Return(&domain.WebhookEndpoint{ID: endpointID, MerchantID: merchantID}, nil)

	_, err := svc.ListDeliveries(context.Background(), endpointID, merchantID, 20, "not-base64!!")
	assertAppError(t, err, "VAL_003")
}

func TestDeliveryService_ListDeliveries_TenantIsolation(t *testing.T) {
	svc, endpointRepo, _ := newDeliveryService(t)
	endpointID, merchantID := uuid.New(), uuid.New()

	// Another merchant's endpoint looks like a missing one.
	endpointRepo.EXPECT().GetByID(gomock.Any(), endpointID, merchantID).Return(nil, nil)

	_, err := svc.ListDeliveries(context.Background(), endpointID, merchantID, 20, "")
	assertAppError(t, err, "WBH_001")
}

func TestDeliveryService_ListDeliveries_ClampsLimit(t *testing.T) {
	svc, endpointRepo, attemptRepo := newDeliveryService(t)
	endpointID, merchantID := uuid.New(), uuid.New()

	endpointRepo.EXPECT().GetByID(gomock.Any(), endpointID, merchantID).
		Return(&domain.WebhookEndpoint{ID: endpointID, MerchantID: merchantID}, nil)
	attemptRepo.EXPECT().List(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, q ports.AttemptListQuery) ([]domain.DeliveryAttempt, error) {
			assert.Equal(t, maxPageSize+1, q.Limit)
			return nil, nil
		})

	_, err := svc.ListDeliveries(context.Background(), endpointID, merchantID, 5000, "")
	assert.NoError(t, err)
}

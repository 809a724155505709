package service

import (
	"context"
	"io"
	"strings"
	"testing"

	"webhook-gateway/internal/core/domain"
	"webhook-gateway/internal/core/ports"
	"webhook-gateway/internal/core/ports/mocks"
	"webhook-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func newEndpointService(t *testing.T, allowHTTP bool) (*EndpointServiceImpl, *mocks.MockEndpointRepository, *mocks.MockAttemptRepository, *mocks.MockEncryptionService) {
	ctrl := gomock.NewController(t)
	endpointRepo := mocks.NewMockEndpointRepository(ctrl)
	attemptRepo := mocks.NewMockAttemptRepository(ctrl)
	encSvc := mocks.NewMockEncryptionService(ctrl)
	svc := NewEndpointService(endpointRepo, attemptRepo, encSvc, allowHTTP, newTestLogger())
	return svc, endpointRepo, attemptRepo, encSvc
}

func TestEndpointService_Create_ReturnsSecretOnce(t *testing.T) {
	svc, endpointRepo, _, encSvc := newEndpointService(t, false)
	merchantID := uuid.New()

	var plaintext string
	encSvc.EXPECT().Encrypt(gomock.Any()).DoAndReturn(func(s string) (string, error) {
		plaintext = s
		return "enc:" + s, nil
	})
	endpointRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

	endpoint, secret, err := svc.Create(context.Background(), ports.CreateEndpointInput{
		MerchantID: merchantID,
		URL:        "https://shop.example.com/hooks",
		Events:     []string{domain.EventOrderCreated},
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(secret, "whsec_"))
	assert.Len(t, secret, len("whsec_")+64)
	assert.Equal(t, plaintext, secret, "stored ciphertext must wrap the returned secret")
	assert.Equal(t, "enc:"+secret, endpoint.SecretEnc)
	assert.Equal(t, domain.EndpointStatusActive, endpoint.Status)
	assert.Equal(t, 0, endpoint.ConsecutiveFailures)
}

func TestEndpointService_Create_RejectsPlainHTTP(t *testing.T) {
	svc, _, _, _ := newEndpointService(t, false)

	_, _, err := svc.Create(context.Background(), ports.CreateEndpointInput{
		MerchantID: uuid.New(),
		URL:        "http://insecure.example.com/hooks",
		Events:     []string{domain.EventOrderCreated},
	})
	assertAppError(t, err, "VAL_001")
}

func TestEndpointService_Create_AllowsPlainHTTPWhenConfigured(t *testing.T) {
	svc, endpointRepo, _, encSvc := newEndpointService(t, true)

	encSvc.EXPECT().Encrypt(gomock.Any()).Return("enc", nil)
	endpointRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

	_, _, err := svc.Create(context.Background(), ports.CreateEndpointInput{
		MerchantID: uuid.New(),
		URL:        "http://localhost:9000/hooks",
		Events:     []string{domain.EventOrderCreated},
	})
	assert.NoError(t, err)
}

func TestEndpointService_Create_RejectsUnknownEventType(t *testing.T) {
	svc, _, _, _ := newEndpointService(t, false)

	_, _, err := svc.Create(context.Background(), ports.CreateEndpointInput{
		MerchantID: uuid.New(),
		URL:        "https://shop.example.com/hooks",
		Events:     []string{"order.exploded"},
	})
	assertAppError(t, err, "VAL_002")
}

func TestEndpointService_Create_RejectsTestPingSubscription(t *testing.T) {
	svc, _, _, _ := newEndpointService(t, false)

	_, _, err := svc.Create(context.Background(), ports.CreateEndpointInput{
		MerchantID: uuid.New(),
		URL:        "https://shop.example.com/hooks",
		Events:     []string{domain.EventTestPing},
	})
	assert.Error(t, err, "test.ping is reserved and not subscribable")
}

func TestEndpointService_Create_DedupesEventList(t *testing.T) {
	svc, endpointRepo, _, encSvc := newEndpointService(t, false)

	encSvc.EXPECT().Encrypt(gomock.Any()).Return("enc", nil)
	endpointRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

	endpoint, _, err := svc.Create(context.Background(), ports.CreateEndpointInput{
		MerchantID: uuid.New(),
		URL:        "https://shop.example.com/hooks",
		Events:     []string{domain.EventOrderCreated, domain.EventOrderCreated, domain.EventPaymentFailed},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{domain.EventOrderCreated, domain.EventPaymentFailed}, endpoint.Events)
}

func TestEndpointService_Get_NotFound(t *testing.T) {
	svc, endpointRepo, _, _ := newEndpointService(t, false)
	id, merchantID := uuid.New(), uuid.New()

	endpointRepo.EXPECT().GetByID(gomock.Any(), id, merchantID).Return(nil, nil)

	_, err := svc.Get(context.Background(), id, merchantID)
	assertAppError(t, err, "WBH_001")
}

func TestEndpointService_Update_ReactivationResetsCounter(t *testing.T) {
	svc, endpointRepo, _, _ := newEndpointService(t, false)
	id, merchantID := uuid.New(), uuid.New()

	existing := &domain.WebhookEndpoint{
		ID:                  id,
		MerchantID:          merchantID,
		URL:                 "https://shop.example.com/hooks",
		Events:              []string{domain.EventOrderCreated},
		Status:              domain.EndpointStatusDisabled,
		ConsecutiveFailures: 10,
	}
	endpointRepo.EXPECT().GetByID(gomock.Any(), id, merchantID).Return(existing, nil)
	endpointRepo.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil)

	active := domain.EndpointStatusActive
	endpoint, err := svc.Update(context.Background(), ports.UpdateEndpointInput{
		ID:         id,
		MerchantID: merchantID,
		Status:     &active,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.EndpointStatusActive, endpoint.Status)
	assert.Equal(t, 0, endpoint.ConsecutiveFailures, "re-enabling must reset the failure counter")
}

func TestEndpointService_Update_InvalidURLRejected(t *testing.T) {
	svc, endpointRepo, _, _ := newEndpointService(t, false)
	id, merchantID := uuid.New(), uuid.New()

	endpointRepo.EXPECT().GetByID(gomock.Any(), id, merchantID).Return(&domain.WebhookEndpoint{
		ID:         id,
		MerchantID: merchantID,
		Status:     domain.EndpointStatusActive,
	}, nil)

	bad := "not-a-url"
	_, err := svc.Update(context.Background(), ports.UpdateEndpointInput{
		ID:         id,
		MerchantID: merchantID,
		URL:        &bad,
	})
	assert.Error(t, err)
}

func TestEndpointService_Delete_CancelsOpenAttempts(t *testing.T) {
	svc, endpointRepo, attemptRepo, _ := newEndpointService(t, false)
	id, merchantID := uuid.New(), uuid.New()

	endpointRepo.EXPECT().Delete(gomock.Any(), id, merchantID).Return(true, nil)
	attemptRepo.EXPECT().CancelOpenForEndpoint(gomock.Any(), id, "endpoint deleted").Return(int64(2), nil)

	err := svc.Delete(context.Background(), id, merchantID)
	assert.NoError(t, err)
}

func TestEndpointService_Delete_NotFound(t *testing.T) {
	svc, endpointRepo, _, _ := newEndpointService(t, false)
	id, merchantID := uuid.New(), uuid.New()

	endpointRepo.EXPECT().Delete(gomock.Any(), id, merchantID).Return(false, nil)

	err := svc.Delete(context.Background(), id, merchantID)
	assertAppError(t, err, "WBH_001")
}

// ==================== Helper ====================

func assertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, expectedCode, appErr.Code)
}

package postgres

import (
	"context"
	"testing"
	"time"

	"webhook-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEndpoint() *domain.WebhookEndpoint {
	return &domain.WebhookEndpoint{
		ID:                  uuid.New(),
		MerchantID:          uuid.New(),
		URL:                 "https://shop.example.com/hooks",
		Description:         "order notifications",
		Events:              []string{domain.EventOrderCreated, domain.EventPaymentSucceeded},
		SecretEnc:           "encrypted_secret_blob",
		Status:              domain.EndpointStatusActive,
		ConsecutiveFailures: 0,
		CreatedAt:           time.Now().UTC().Truncate(time.Microsecond),
		UpdatedAt:           time.Now().UTC().Truncate(time.Microsecond),
	}
}

func endpointTestColumns() []string {
	return []string{"id", "merchant_id", "url", "description", "events", "secret_enc", "status", "consecutive_failures", "created_at", "updated_at"}
}

func endpointRow(e *domain.WebhookEndpoint) *pgxmock.Rows {
	return pgxmock.NewRows(endpointTestColumns()).AddRow(
		e.ID, e.MerchantID, e.URL, e.Description, e.Events,
		e.SecretEnc, string(e.Status), e.ConsecutiveFailures,
		e.CreatedAt, e.UpdatedAt,
	)
}

func TestEndpointRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewEndpointRepo(mock)
	e := newTestEndpoint()

	mock.ExpectExec("INSERT INTO webhook_endpoints").
		WithArgs(e.ID, e.MerchantID, e.URL, e.Description, e.Events,
			e.SecretEnc, string(e.Status), e.ConsecutiveFailures,
			e.CreatedAt, e.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), e)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEndpointRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewEndpointRepo(mock)
	e := newTestEndpoint()

	mock.ExpectQuery("SELECT .+ FROM webhook_endpoints WHERE id").
		WithArgs(e.ID, e.MerchantID).
		WillReturnRows(endpointRow(e))

	result, err := repo.GetByID(context.Background(), e.ID, e.MerchantID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, e.ID, result.ID)
	assert.Equal(t, e.URL, result.URL)
	assert.Equal(t, e.Events, result.Events)
	assert.Equal(t, domain.EndpointStatusActive, result.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEndpointRepo_GetByID_WrongMerchant(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewEndpointRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM webhook_endpoints WHERE id").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(endpointTestColumns()))

	result, err := repo.GetByID(context.Background(), uuid.New(), uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEndpointRepo_ListSubscribed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewEndpointRepo(mock)
	e := newTestEndpoint()

	mock.ExpectQuery("SELECT .+ FROM webhook_endpoints").
		WithArgs(e.MerchantID, string(domain.EndpointStatusActive), domain.EventOrderCreated).
		WillReturnRows(endpointRow(e))

	result, err := repo.ListSubscribed(context.Background(), e.MerchantID, domain.EventOrderCreated)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, e.ID, result[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEndpointRepo_Delete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewEndpointRepo(mock)
	id, merchantID := uuid.New(), uuid.New()

	mock.ExpectExec("DELETE FROM webhook_endpoints").
		WithArgs(id, merchantID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	deleted, err := repo.Delete(context.Background(), id, merchantID)
	assert.NoError(t, err)
	assert.True(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEndpointRepo_Delete_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewEndpointRepo(mock)

	mock.ExpectExec("DELETE FROM webhook_endpoints").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	deleted, err := repo.Delete(context.Background(), uuid.New(), uuid.New())
	assert.NoError(t, err)
	assert.False(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEndpointRepo_RecordFailure_Increments(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewEndpointRepo(mock)
	id := uuid.New()

	mock.ExpectQuery("UPDATE webhook_endpoints").
		WithArgs(id, 10).
		WillReturnRows(pgxmock.NewRows([]string{"consecutive_failures", "status"}).
			AddRow(3, string(domain.EndpointStatusActive)))

	result, err := repo.RecordFailure(context.Background(), id, 10)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 3, result.ConsecutiveFailures)
	assert.Equal(t, domain.EndpointStatusActive, result.Status)
	assert.False(t, result.JustDisabled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEndpointRepo_RecordFailure_DisablesAtThreshold(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewEndpointRepo(mock)
	id := uuid.New()

	mock.ExpectQuery("UPDATE webhook_endpoints").
		WithArgs(id, 10).
		WillReturnRows(pgxmock.NewRows([]string{"consecutive_failures", "status"}).
			AddRow(10, string(domain.EndpointStatusDisabled)))

	result, err := repo.RecordFailure(context.Background(), id, 10)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 10, result.ConsecutiveFailures)
	assert.Equal(t, domain.EndpointStatusDisabled, result.Status)
	assert.True(t, result.JustDisabled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEndpointRepo_RecordFailure_AlreadyDisabled(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewEndpointRepo(mock)

	mock.ExpectQuery("UPDATE webhook_endpoints").
		WithArgs(pgxmock.AnyArg(), 10).
		WillReturnRows(pgxmock.NewRows([]string{"consecutive_failures", "status"}))

	result, err := repo.RecordFailure(context.Background(), uuid.New(), 10)
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEndpointRepo_RecordSuccess(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewEndpointRepo(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE webhook_endpoints SET consecutive_failures = 0").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.RecordSuccess(context.Background(), id)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

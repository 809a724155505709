package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"webhook-gateway/internal/adapter/http/dto"
	"webhook-gateway/internal/adapter/http/middleware"
	"webhook-gateway/internal/core/domain"
	"webhook-gateway/internal/core/ports"
	"webhook-gateway/internal/core/ports/mocks"
	"webhook-gateway/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func authedContext(t *testing.T, merchantID uuid.UUID, method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	c.Request = httptest.NewRequest(method, path, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(middleware.CtxMerchantID, merchantID)
	return c, w
}

func sampleEndpoint(merchantID uuid.UUID) *domain.WebhookEndpoint {
	now := time.Now().UTC()
	return &domain.WebhookEndpoint{
		ID:         uuid.New(),
		MerchantID: merchantID,
		URL:        "https://shop.example.com/hooks",
		Events:     []string{domain.EventOrderCreated},
		Status:     domain.EndpointStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// --- Webhook Handler Tests ---

func TestCreateWebhook_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	endpointSvc := mocks.NewMockEndpointService(ctrl)
	h := NewWebhookHandler(endpointSvc, nil, nil)

	merchantID := uuid.New()
	endpoint := sampleEndpoint(merchantID)
	endpointSvc.EXPECT().Create(gomock.Any(), ports.CreateEndpointInput{
		MerchantID: merchantID,
		URL:        "https://shop.example.com/hooks",
		Events:     []string{domain.EventOrderCreated},
	}).Return(endpoint, "whsec_secret", nil)

	body, _ := json.Marshal(dto.CreateWebhookRequest{
		URL:    "https://shop.example.com/hooks",
		Events: []string{domain.EventOrderCreated},
	})
	c, w := authedContext(t, merchantID, http.MethodPost, "/api/v1/webhooks", body)

	h.Create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, endpoint.ID.String(), data["id"])
	assert.Equal(t, "whsec_secret", data["secret"], "creation is the only response carrying the secret")
}

func TestCreateWebhook_BindingError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	endpointSvc := mocks.NewMockEndpointService(ctrl)
	h := NewWebhookHandler(endpointSvc, nil, nil)

	// ftp scheme fails the safe_url binding
	body := []byte(`{"url":"ftp://shop.example.com/hooks","events":["order.created"]}`)
	c, w := authedContext(t, uuid.New(), http.MethodPost, "/api/v1/webhooks", body)

	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateWebhook_Unauthenticated(t *testing.T) {
	h := NewWebhookHandler(nil, nil, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/webhooks", bytes.NewReader([]byte("{}")))

	h.Create(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListWebhooks_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	endpointSvc := mocks.NewMockEndpointService(ctrl)
	h := NewWebhookHandler(endpointSvc, nil, nil)

	merchantID := uuid.New()
	endpointSvc.EXPECT().List(gomock.Any(), merchantID).
		Return([]domain.WebhookEndpoint{*sampleEndpoint(merchantID), *sampleEndpoint(merchantID)}, nil)

	c, w := authedContext(t, merchantID, http.MethodGet, "/api/v1/webhooks", nil)

	h.List(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].([]interface{})
	assert.Len(t, data, 2)
	first := data[0].(map[string]interface{})
	_, hasSecret := first["secret"]
	assert.False(t, hasSecret, "list responses never carry the secret")
}

func TestGetWebhook_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	endpointSvc := mocks.NewMockEndpointService(ctrl)
	h := NewWebhookHandler(endpointSvc, nil, nil)

	merchantID, id := uuid.New(), uuid.New()
	endpointSvc.EXPECT().Get(gomock.Any(), id, merchantID).Return(nil, apperror.ErrNotFound("webhook"))

	c, w := authedContext(t, merchantID, http.MethodGet, "/api/v1/webhooks/"+id.String(), nil)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	h.Get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "WBH_001", resp["error_code"])
}

func TestGetWebhook_MalformedID(t *testing.T) {
	h := NewWebhookHandler(nil, nil, nil)

	c, w := authedContext(t, uuid.New(), http.MethodGet, "/api/v1/webhooks/not-a-uuid", nil)
	c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}

	h.Get(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateWebhook_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	endpointSvc := mocks.NewMockEndpointService(ctrl)
	h := NewWebhookHandler(endpointSvc, nil, nil)

	merchantID := uuid.New()
	endpoint := sampleEndpoint(merchantID)
	endpointSvc.EXPECT().Update(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ interface{}, in ports.UpdateEndpointInput) (*domain.WebhookEndpoint, error) {
			require.NotNil(t, in.Status)
			assert.Equal(t, domain.EndpointStatusActive, *in.Status)
			assert.Nil(t, in.URL)
			return endpoint, nil
		})

	body := []byte(`{"status":"ACTIVE"}`)
	c, w := authedContext(t, merchantID, http.MethodPatch, "/api/v1/webhooks/"+endpoint.ID.String(), body)
	c.Params = gin.Params{{Key: "id", Value: endpoint.ID.String()}}

	h.Update(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDeleteWebhook_NoContent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	endpointSvc := mocks.NewMockEndpointService(ctrl)
	h := NewWebhookHandler(endpointSvc, nil, nil)

	merchantID, id := uuid.New(), uuid.New()
	endpointSvc.EXPECT().Delete(gomock.Any(), id, merchantID).Return(nil)

	c, w := authedContext(t, merchantID, http.MethodDelete, "/api/v1/webhooks/"+id.String(), nil)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	h.Delete(c)
	// The handler is invoked directly, so flush the status set via
	// c.Status to the recorder as the gin engine would after handlers.
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestTestWebhook_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dispatchSvc := mocks.NewMockDispatchService(ctrl)
	h := NewWebhookHandler(nil, dispatchSvc, nil)

	merchantID, id := uuid.New(), uuid.New()
	status := 200
	dispatchSvc.EXPECT().Test(gomock.Any(), id, merchantID).
		Return(&ports.TestResult{Success: true, Message: "test delivery succeeded", HTTPStatus: &status}, nil)

	c, w := authedContext(t, merchantID, http.MethodPost, "/api/v1/webhooks/"+id.String()+"/test", nil)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	h.Test(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, true, data["success"])
	assert.Equal(t, float64(200), data["http_status"])
}

func TestListDeliveries_PassesQuery(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	deliverySvc := mocks.NewMockDeliveryService(ctrl)
	h := NewWebhookHandler(nil, nil, deliverySvc)

	merchantID, id := uuid.New(), uuid.New()
	deliverySvc.EXPECT().ListDeliveries(gomock.Any(), id, merchantID, 5, "abc").
		Return(&ports.DeliveryPage{NextCursor: "next"}, nil)

	c, w := authedContext(t, merchantID, http.MethodGet, "/api/v1/webhooks/"+id.String()+"/deliveries?limit=5&cursor=abc", nil)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	h.ListDeliveries(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "next", data["next_cursor"])
}

// --- Event Handler Tests ---

func TestIngestEvent_Accepted(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dispatchSvc := mocks.NewMockDispatchService(ctrl)
	h := NewEventHandler(dispatchSvc)

	merchantID := uuid.New()
	eventID := uuid.New()
	dispatchSvc.EXPECT().Dispatch(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ interface{}, in ports.IngestEventInput) (*ports.DispatchResult, error) {
			assert.Equal(t, merchantID, in.MerchantID)
			assert.Equal(t, domain.EventOrderCreated, in.EventType)
			assert.Equal(t, "order-42", in.DedupeKey)
			return &ports.DispatchResult{EventID: eventID, Matched: 2, Delivered: 2}, nil
		})

	body, _ := json.Marshal(dto.IngestEventRequest{
		MerchantID: merchantID.String(),
		EventType:  domain.EventOrderCreated,
		Payload:    json.RawMessage(`{"order_id":"42"}`),
		DedupeKey:  "order-42",
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/internal/v1/events", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Ingest(c)

	assert.Equal(t, http.StatusAccepted, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, eventID.String(), data["event_id"])
	assert.Equal(t, float64(2), data["delivered"])
}

func TestIngestEvent_BindingError(t *testing.T) {
	h := NewEventHandler(nil)

	// Missing dedupe_key fails binding
	body := []byte(`{"merchant_id":"` + uuid.NewString() + `","event_type":"order.created","payload":{}}`)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/internal/v1/events", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Ingest(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestEvent_UnknownType(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dispatchSvc := mocks.NewMockDispatchService(ctrl)
	h := NewEventHandler(dispatchSvc)

	dispatchSvc.EXPECT().Dispatch(gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrInvalidEventType("order.exploded"))

	body, _ := json.Marshal(dto.IngestEventRequest{
		MerchantID: uuid.NewString(),
		EventType:  "order.exploded",
		Payload:    json.RawMessage(`{}`),
		DedupeKey:  "order-1",
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/internal/v1/events", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Ingest(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "VAL_002", resp["error_code"])
}

func TestListEventTypes(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/event-types", nil)

	ListEventTypes(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	types := data["event_types"].([]interface{})
	assert.Contains(t, types, domain.EventOrderCreated)
	assert.NotContains(t, types, domain.EventTestPing, "test.ping is reserved")
}

package handler

import (
	"strconv"

	"webhook-gateway/internal/adapter/http/dto"
	"webhook-gateway/internal/adapter/http/middleware"
	"webhook-gateway/internal/core/domain"
	"webhook-gateway/internal/core/ports"
	"webhook-gateway/pkg/apperror"
	"webhook-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WebhookHandler handles the merchant-facing webhook registry endpoints.
type WebhookHandler struct {
	endpointSvc ports.EndpointService
	dispatchSvc ports.DispatchService
	deliverySvc ports.DeliveryService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(endpointSvc ports.EndpointService, dispatchSvc ports.DispatchService, deliverySvc ports.DeliveryService) *WebhookHandler {
	return &WebhookHandler{endpointSvc: endpointSvc, dispatchSvc: dispatchSvc, deliverySvc: deliverySvc}
}

// Create handles POST /api/v1/webhooks.
func (h *WebhookHandler) Create(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	endpoint, secret, err := h.endpointSvc.Create(c.Request.Context(), ports.CreateEndpointInput{
		MerchantID:  merchantID,
		URL:         req.URL,
		Events:      req.Events,
		Description: req.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	// The plaintext secret appears here and nowhere else.
	response.Created(c, dto.CreatedWebhookResponse{
		WebhookResponse: dto.NewWebhookResponse(endpoint),
		Secret:          secret,
	})
}

// List handles GET /api/v1/webhooks.
func (h *WebhookHandler) List(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	endpoints, err := h.endpointSvc.List(c.Request.Context(), merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.WebhookResponse, 0, len(endpoints))
	for i := range endpoints {
		items = append(items, dto.NewWebhookResponse(&endpoints[i]))
	}
	response.OK(c, items)
}

// Get handles GET /api/v1/webhooks/:id.
func (h *WebhookHandler) Get(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid webhook id"))
		return
	}

	endpoint, err := h.endpointSvc.Get(c.Request.Context(), id, merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewWebhookResponse(endpoint))
}

// Update handles PATCH /api/v1/webhooks/:id.
func (h *WebhookHandler) Update(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid webhook id"))
		return
	}

	var req dto.UpdateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	in := ports.UpdateEndpointInput{
		ID:          id,
		MerchantID:  merchantID,
		URL:         req.URL,
		Events:      req.Events,
		Description: req.Description,
	}
	if req.Status != nil {
		status := domain.EndpointStatus(*req.Status)
		in.Status = &status
	}

	endpoint, err := h.endpointSvc.Update(c.Request.Context(), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewWebhookResponse(endpoint))
}

// Delete handles DELETE /api/v1/webhooks/:id.
func (h *WebhookHandler) Delete(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid webhook id"))
		return
	}

	if err := h.endpointSvc.Delete(c.Request.Context(), id, merchantID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Test handles POST /api/v1/webhooks/:id/test.
func (h *WebhookHandler) Test(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid webhook id"))
		return
	}

	result, err := h.dispatchSvc.Test(c.Request.Context(), id, merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.TestWebhookResponse{
		Success:    result.Success,
		Message:    result.Message,
		HTTPStatus: result.HTTPStatus,
	})
}

// ListDeliveries handles GET /api/v1/webhooks/:id/deliveries.
func (h *WebhookHandler) ListDeliveries(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid webhook id"))
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	cursor := c.Query("cursor")

	page, err := h.deliverySvc.ListDeliveries(c.Request.Context(), id, merchantID, limit, cursor)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.DeliveryResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, dto.NewDeliveryResponse(&page.Items[i]))
	}
	response.OK(c, dto.DeliveryListResponse{
		Deliveries: items,
		NextCursor: page.NextCursor,
	})
}

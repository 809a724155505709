package handler

import (
	"net/http"
	"time"

	"webhook-gateway/internal/adapter/http/dto"
	"webhook-gateway/internal/core/domain"
	"webhook-gateway/internal/core/ports"
	"webhook-gateway/pkg/apperror"
	"webhook-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EventHandler handles the internal producer ingest API and the public
// event-type catalogue.
type EventHandler struct {
	dispatchSvc ports.DispatchService
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(dispatchSvc ports.DispatchService) *EventHandler {
	return &EventHandler{dispatchSvc: dispatchSvc}
}

// Ingest handles POST /internal/v1/events.
func (h *EventHandler) Ingest(c *gin.Context) {
	var req dto.IngestEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	merchantID, err := uuid.Parse(req.MerchantID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid merchant_id"))
		return
	}

	var occurredAt time.Time
	if req.OccurredAt != nil {
		occurredAt = req.OccurredAt.UTC()
	}

	result, err := h.dispatchSvc.Dispatch(c.Request.Context(), ports.IngestEventInput{
		MerchantID: merchantID,
		EventType:  req.EventType,
		Payload:    req.Payload,
		DedupeKey:  req.DedupeKey,
		OccurredAt: occurredAt,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Accepted(c, dto.IngestEventResponse{
		EventID:   result.EventID.String(),
		Matched:   result.Matched,
		Delivered: result.Delivered,
		Failed:    result.Failed,
		Skipped:   result.Skipped,
		Duplicate: result.Duplicate,
	})
}

// ListEventTypes handles GET /api/v1/event-types.
func ListEventTypes(c *gin.Context) {
	response.OK(c, dto.EventTypesResponse{EventTypes: domain.EventTypes})
}

// HealthCheck handles GET /health, a deep health check verifying all dependencies.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		type depStatus struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}

		deps := make(map[string]depStatus)
		allHealthy := true

		for _, checker := range checkers {
			if err := checker.Ping(c.Request.Context()); err != nil {
				deps[checker.Name()] = depStatus{Status: "unhealthy", Error: err.Error()}
				allHealthy = false
			} else {
				deps[checker.Name()] = depStatus{Status: "healthy"}
			}
		}

		status := "healthy"
		httpCode := http.StatusOK
		if !allHealthy {
			status = "degraded"
			httpCode = http.StatusServiceUnavailable
		}

		c.JSON(httpCode, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}

package handler

import (
	"time"

	"webhook-gateway/internal/adapter/http/middleware"
	redisStore "webhook-gateway/internal/adapter/storage/redis"
	"webhook-gateway/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	EndpointSvc    ports.EndpointService
	DispatchSvc    ports.DispatchService
	DeliverySvc    ports.DeliveryService
	TokenSvc       ports.TokenService
	SigSvc         ports.SignatureService
	ProducerKey    string
	ProducerDrift  time.Duration
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep, verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger documentation
	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// --- JWT-authenticated routes (merchant dashboard API) ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	webhookHandler := NewWebhookHandler(deps.EndpointSvc, deps.DispatchSvc, deps.DeliverySvc)

	v1 := r.Group("/api/v1")

	v1.GET("/event-types", ListEventTypes)

	webhooks := v1.Group("/webhooks", jwtAuth)
	{
		webhooks.POST("", rl("webhooks_write"), webhookHandler.Create)
		webhooks.GET("", rl("webhooks_read"), webhookHandler.List)
		webhooks.GET("/:id", rl("webhooks_read"), webhookHandler.Get)
		webhooks.PATCH("/:id", rl("webhooks_write"), webhookHandler.Update)
		webhooks.DELETE("/:id", rl("webhooks_write"), webhookHandler.Delete)
		webhooks.POST("/:id/test", rl("webhooks_test"), webhookHandler.Test)
		webhooks.GET("/:id/deliveries", rl("webhooks_read"), webhookHandler.ListDeliveries)
	}

	// --- HMAC-authenticated routes (internal producer API) ---
	producerAuth := middleware.ProducerAuth(deps.SigSvc, deps.ProducerKey, deps.ProducerDrift, deps.Logger)
	eventHandler := NewEventHandler(deps.DispatchSvc)

	internal := r.Group("/internal/v1", producerAuth)
	{
		internal.POST("/events", rl("events_ingest"), eventHandler.Ingest)
	}

	return r
}

// Package v1 provides HTTP API version 1.
package v1

import (
	"time"

	"github.com/gin-gonic/gin"

	"gymbill/internal/domain/auth"
	"gymbill/internal/domain/billing/invoice"
	"gymbill/internal/infrastructure/http/v1/handlers"
	"gymbill/internal/infrastructure/http/v1/middleware"
	"gymbill/internal/infrastructure/storage/postgres"
	"gymbill/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Pool is the database connection pool (used by health checks)
	Pool *postgres.Pool

	// TxManager carries transactions for middleware-level storage access
	TxManager *postgres.TxManager

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// AuthService for authentication endpoints
	AuthService *auth.Service

	// InvoiceService for billing endpoints
	InvoiceService *invoice.Service

	// AuditService serves the invoice history endpoint
	AuditService *postgres.AuditService

	// IdempotencyEnabled enables idempotency middleware
	IdempotencyEnabled bool

	// IdempotencyTTL bounds how long completed responses replay (default 10m)
	IdempotencyTTL time.Duration
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth required)
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	// API v1
	v1 := router.Group("/api/v1")
	{
		public := v1.Group("")

		protected := v1.Group("")
		protected.Use(middleware.Auth(cfg.JWTValidator))

		if cfg.IdempotencyEnabled {
			ttl := cfg.IdempotencyTTL
			if ttl <= 0 {
				ttl = 10 * time.Minute
			}
			store := postgres.NewIdempotencyStore(cfg.Pool, cfg.TxManager, ttl)
			protected.Use(middleware.Idempotency(store))
		}

		if cfg.AuthService != nil {
			authHandler := handlers.NewAuthHandler(cfg.AuthService)
			authHandler.RegisterRoutes(public, protected)
		}

		if cfg.InvoiceService != nil {
			invoiceHandler := handlers.NewInvoiceHandler(cfg.InvoiceService, cfg.AuditService)
			invoiceHandler.RegisterRoutes(protected)
		}
	}

	return router
}

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront-orders/internal/auth"
	"github.com/imrishuroy/go-storefront-orders/internal/idempotency"
	"github.com/imrishuroy/go-storefront-orders/internal/orders"
	"github.com/imrishuroy/go-storefront-orders/internal/payments"
)

// HandlerConfig groups dependencies for the API routes.
type HandlerConfig struct {
	Orders   *orders.Service
	Payments *payments.Reconciler
	Verifier *auth.Verifier
	// Idempotency enables Idempotency-Key replays on order creation. Optional.
	Idempotency *idempotency.Store
	Logger      *slog.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(cfg HandlerConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	r := gin.New()
	r.Use(RequestLogger(cfg.Logger), gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	RegisterOrdersRoutes(api, cfg)
	RegisterPaymentRoutes(api, cfg)
	return r
}

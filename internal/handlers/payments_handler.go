package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-storefront-orders/internal/auth"
	"github.com/imrishuroy/go-storefront-orders/internal/payments"
	"github.com/imrishuroy/go-storefront-orders/internal/validation"
)

const (
	signatureHeader = "X-Razorpay-Signature"
	eventIDHeader   = "X-Razorpay-Event-Id"
)

type paymentsHandler struct {
	rec    *payments.Reconciler
	v      *validatorv10.Validate
	logger *slog.Logger
}

// RegisterPaymentRoutes registers routes under /api/payment.
func RegisterPaymentRoutes(api *gin.RouterGroup, cfg HandlerConfig) {
	h := &paymentsHandler{rec: cfg.Payments, v: validation.New(), logger: cfg.Logger}
	if h.logger == nil {
		h.logger = slog.Default()
	}

	g := api.Group("/payment")
	// the webhook authenticates with its HMAC signature, not a bearer token
	g.POST("/webhook", h.webhook)

	user := g.Group("", auth.RequireAuth(cfg.Verifier))
	user.POST("/create-order", h.createOrder)
	user.POST("/verify", h.verify)
	user.GET("/status/:orderId", h.status)
	user.POST("/refund/:orderId", auth.RequireAdmin(), h.refund)
}

func (h *paymentsHandler) createOrder(c *gin.Context) {
	var req validation.CreatePaymentOrderRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	p, _ := auth.FromContext(c)
	gw, err := h.rec.CreatePaymentOrder(c.Request.Context(), p.UserID, req.OrderID, req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": gw.ID, "amount": gw.Amount, "currency": gw.Currency})
}

func (h *paymentsHandler) verify(c *gin.Context) {
	var req validation.VerifyPaymentRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	p, _ := auth.FromContext(c)
	o, err := h.rec.VerifyPayment(c.Request.Context(), p.UserID, payments.VerifyInput{
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		GatewaySignature: req.GatewaySignature,
		OrderID:          req.OrderID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "paymentId": o.GatewayPaymentID, "order": o})
}

func (h *paymentsHandler) status(c *gin.Context) {
	p, _ := auth.FromContext(c)
	view, err := h.rec.PaymentStatus(c.Request.Context(), p.UserID, c.Param("orderId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *paymentsHandler) refund(c *gin.Context) {
	o, err := h.rec.RefundOrder(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// webhook verifies the raw body as received; it must not be re-encoded before
// the signature check.
func (h *paymentsHandler) webhook(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	outcome, err := h.rec.HandleWebhook(c.Request.Context(), body, c.GetHeader(signatureHeader), c.GetHeader(eventIDHeader))
	if errors.Is(err, payments.ErrSignature) {
		writeError(c, err)
		return
	}
	if err != nil {
		h.logger.Error("webhook processing failed", "request_id", requestID(c), "error", err)
	}
	h.logger.Info("webhook received", "request_id", requestID(c), "outcome", outcome)
	c.JSON(http.StatusOK, gin.H{"received": true})
}

package handlers

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-storefront-orders/internal/auth"
	"github.com/imrishuroy/go-storefront-orders/internal/idempotency"
	"github.com/imrishuroy/go-storefront-orders/internal/orders"
	"github.com/imrishuroy/go-storefront-orders/internal/validation"
)

type ordersHandler struct {
	svc   *orders.Service
	idemp *idempotency.Store
	v     *validatorv10.Validate
}

// RegisterOrdersRoutes registers routes under /api/orders.
func RegisterOrdersRoutes(api *gin.RouterGroup, cfg HandlerConfig) {
	h := &ordersHandler{svc: cfg.Orders, idemp: cfg.Idempotency, v: validation.New()}

	g := api.Group("/orders", auth.RequireAuth(cfg.Verifier))
	g.POST("", h.create)
	g.GET("/my-orders", h.listMine)
	g.GET("/:orderId", h.get)
	g.PUT("/:orderId/cancel", h.cancel)
	g.PUT("/:orderId/payment", h.updatePayment)

	admin := g.Group("", auth.RequireAdmin())
	admin.GET("", h.listAll)
	admin.PUT("/:orderId/status", h.updateStatus)
}

func (h *ordersHandler) create(c *gin.Context) {
	ctx := c.Request.Context()
	p, _ := auth.FromContext(c)

	raw, ok := readBody(c)
	if !ok {
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))

	var req validation.CreateOrderRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		// BindAndValidate already wrote a 400
		return
	}

	// Idempotency-Key is optional; keys are scoped to the caller
	idempKey := c.GetHeader("Idempotency-Key")
	if idempKey != "" && h.idemp != nil {
		idempKey = "order:" + p.UserID + ":" + idempKey
		sum := sha256.Sum256(raw)
		rec, err := h.idemp.Reserve(ctx, idempKey, hex.EncodeToString(sum[:]))
		switch {
		case errors.Is(err, idempotency.ErrKeyReused):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "idempotency_key_reused", "message": err.Error()})
			return
		case err != nil:
			writeError(c, fmt.Errorf("idempotency check: %w", err))
			return
		case rec != nil:
			replay(c, rec)
			return
		}
	} else {
		idempKey = ""
	}

	order, err := h.svc.CreateOrder(ctx, p.UserID, req.ToInput())
	if err != nil {
		if idempKey != "" {
			// let the client retry with the same key
			_ = h.idemp.MarkFailed(ctx, idempKey, err.Error())
		}
		writeError(c, err)
		return
	}

	body, _ := json.Marshal(order)
	if idempKey != "" {
		if err := h.idemp.MarkDone(ctx, idempKey, string(body), http.StatusCreated); err != nil {
			_ = c.Error(fmt.Errorf("idempotency mark done: %w", err))
		}
	}
	c.Header("Location", "/api/orders/"+order.OrderID)
	c.Data(http.StatusCreated, "application/json; charset=utf-8", body)
}

func replay(c *gin.Context, rec *idempotency.IdempotencyRecord) {
	switch rec.Status {
	case idempotency.StatusDone:
		c.Header("Idempotent-Replayed", "true")
		if rec.ResponseBody != "" && json.Valid([]byte(rec.ResponseBody)) {
			c.Data(rec.ResponseStatus, "application/json; charset=utf-8", []byte(rec.ResponseBody))
			return
		}
		c.JSON(rec.ResponseStatus, gin.H{"id": rec.OrderID})
	case idempotency.StatusInProgress:
		c.JSON(http.StatusConflict, gin.H{"error": "request_in_progress", "message": "a request with this idempotency key is still being processed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unknown_idempotency_status"})
	}
}

func (h *ordersHandler) listMine(c *gin.Context) {
	p, _ := auth.FromContext(c)
	list, err := h.svc.ListUserOrders(c.Request.Context(), p.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *ordersHandler) get(c *gin.Context) {
	p, _ := auth.FromContext(c)
	o, err := h.svc.GetOrder(c.Request.Context(), p.UserID, c.Param("orderId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *ordersHandler) cancel(c *gin.Context) {
	p, _ := auth.FromContext(c)
	o, err := h.svc.CancelOrder(c.Request.Context(), c.Param("orderId"), p.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *ordersHandler) updatePayment(c *gin.Context) {
	var req validation.UpdatePaymentRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	p, _ := auth.FromContext(c)
	o, err := h.svc.SetPaymentStatus(c.Request.Context(), p.UserID, c.Param("orderId"), orders.PaymentStatus(req.PaymentStatus))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *ordersHandler) listAll(c *gin.Context) {
	list, err := h.svc.ListAllOrders(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *ordersHandler) updateStatus(c *gin.Context) {
	var req validation.UpdateStatusRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	o, err := h.svc.UpdateOrderStatus(c.Request.Context(), c.Param("orderId"), orders.Status(req.Status), req.TrackingID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

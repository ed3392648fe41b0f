package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-storefront-orders/internal/events"
	"github.com/imrishuroy/go-storefront-orders/internal/orders"
)

// Metric names.
const (
	MetricPaymentVerified       = "PaymentVerified"
	MetricPaymentVerifyRejected = "PaymentVerifyRejected"
	MetricWebhookApplied        = "WebhookApplied"
	MetricWebhookDuplicate      = "WebhookDuplicate"
	MetricWebhookRejected       = "WebhookRejected"
	MetricWebhookIgnored        = "WebhookIgnored"
	MetricGatewayError          = "GatewayError"
)

// Outcome describes what a webhook delivery did.
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeQueued       Outcome = "queued"
	OutcomeIgnored      Outcome = "ignored"
	OutcomeUnknownOrder Outcome = "unknown_order"
	OutcomeUnhandled    Outcome = "unhandled"
	OutcomeFailed       Outcome = "failed"
)

// Counter records metrics. *aws.MetricsRecorder satisfies it.
type Counter interface {
	Count(ctx context.Context, name string)
}

// EventLedger deduplicates webhook deliveries by event id. *idempotency.Store satisfies it.
type EventLedger interface {
	Claim(ctx context.Context, key, orderID string) (bool, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// Queue hands verified webhook bodies to the async worker. *aws.Publisher satisfies it.
type Queue interface {
	Send(ctx context.Context, body string, attributes map[string]string) error
}

// Config groups Reconciler dependencies. Ledger, Queue, Publisher and Metrics are optional.
type Config struct {
	Signer    *Signer
	Gateway   Gateway
	Currency  string
	Ledger    EventLedger
	Queue     Queue
	Publisher events.Publisher
	Metrics   Counter
	Logger    *slog.Logger
}

// Reconciler owns every payment status transition: checkout verification,
// gateway webhooks and admin refunds. All writes are conditional on the
// payment transition table, so the two settlement paths can race safely.
type Reconciler struct {
	repo      orders.Repository
	signer    *Signer
	gateway   Gateway
	currency  string
	ledger    EventLedger
	queue     Queue
	publisher events.Publisher
	metrics   Counter
	logger    *slog.Logger
	nowFunc   func() time.Time
}

// NewReconciler returns a Reconciler over repo.
func NewReconciler(repo orders.Repository, cfg Config) *Reconciler {
	if cfg.Signer == nil {
		cfg.Signer = NewSigner("", "")
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.Nop{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopCounter{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Reconciler{
		repo:      repo,
		signer:    cfg.Signer,
		gateway:   cfg.Gateway,
		currency:  cfg.Currency,
		ledger:    cfg.Ledger,
		queue:     cfg.Queue,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger.With("component", "payments"),
		nowFunc:   time.Now,
	}
}

// CreatePaymentOrder opens a gateway order for the stored total of an owned,
// unpaid gateway order. amountHint, when given, must match that total.
func (r *Reconciler) CreatePaymentOrder(ctx context.Context, userID, orderID string, amountHint *float64) (*GatewayOrder, error) {
	if orderID == "" {
		return nil, fmt.Errorf("%w: orderId is required", orders.ErrValidation)
	}
	o, err := r.ownedOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	switch {
	case o.PaymentMethod != orders.MethodRazorpay:
		return nil, fmt.Errorf("%w: order is paid by %s", orders.ErrInvalidState, o.PaymentMethod)
	case o.Status != orders.StatusProcessing:
		return nil, fmt.Errorf("%w: order is %s", orders.ErrInvalidState, o.Status)
	case !orders.CanTransitionPayment(o.PaymentStatus, orders.PaymentPaid):
		return nil, fmt.Errorf("%w: payment is already %s", orders.ErrInvalidState, o.PaymentStatus)
	}
	if amountHint != nil && decimal.NewFromFloat(*amountHint).Sub(o.TotalAmount.Decimal()).Abs().GreaterThan(decimal.NewFromFloat(0.01)) {
		return nil, fmt.Errorf("%w: amount %.2f does not match order total %s", orders.ErrValidation, *amountHint, o.TotalAmount)
	}
	if o.GatewayOrderID != "" {
		// payments made against any earlier checkout must still reconcile
		r.logger.Info("reusing gateway order", "order_id", orderID, "gateway_order_id", o.GatewayOrderID)
		return r.boundGatewayOrder(o), nil
	}
	if r.gateway == nil {
		return nil, fmt.Errorf("%w: gateway not configured", ErrGateway)
	}

	gw, err := r.gateway.CreateOrder(ctx, o.TotalAmount.Minor(), r.currency, o.OrderNumber)
	if err != nil {
		r.metrics.Count(ctx, MetricGatewayError)
		r.logger.Error("gateway order creation failed", "order_id", orderID, "error", err)
		return nil, err
	}

	err = r.repo.AttachGatewayOrder(ctx, orderID, gw.ID, orders.PaymentStatusesInto(orders.PaymentPaid))
	switch {
	case errors.Is(err, orders.ErrStatusMismatch):
		cur, gerr := r.reload(ctx, orderID)
		if gerr != nil {
			return nil, gerr
		}
		if cur.GatewayOrderID == "" || !orders.CanTransitionPayment(cur.PaymentStatus, orders.PaymentPaid) {
			return nil, fmt.Errorf("%w: payment is %s", orders.ErrInvalidState, cur.PaymentStatus)
		}
		// a concurrent checkout attached first; ours is never paid
		r.logger.Warn("gateway order abandoned", "order_id", orderID, "gateway_order_id", gw.ID,
			"kept", cur.GatewayOrderID)
		return r.boundGatewayOrder(cur), nil
	case errors.Is(err, orders.ErrOrderNotFound):
		return nil, orders.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("attach gateway order: %w", err)
	}

	r.logger.Info("gateway order created", "order_id", orderID, "gateway_order_id", gw.ID, "amount", gw.Amount)
	return gw, nil
}

func (r *Reconciler) boundGatewayOrder(o *orders.Order) *GatewayOrder {
	return &GatewayOrder{
		ID:       o.GatewayOrderID,
		Amount:   o.TotalAmount.Minor(),
		Currency: r.currency,
		Receipt:  o.OrderNumber,
	}
}

// VerifyInput is the signed payload the gateway hands back to the browser.
type VerifyInput struct {
	GatewayOrderID   string
	GatewayPaymentID string
	GatewaySignature string
	OrderID          string
}

// VerifyPayment settles an order from a client-reported checkout result. A bad
// signature returns ErrSignature before the order is read; a replay of an
// already-applied payment returns the order unchanged.
func (r *Reconciler) VerifyPayment(ctx context.Context, userID string, in VerifyInput) (*orders.Order, error) {
	if in.GatewayOrderID == "" || in.GatewayPaymentID == "" || in.GatewaySignature == "" {
		return nil, fmt.Errorf("%w: gateway order id, payment id and signature are required", orders.ErrValidation)
	}
	if in.OrderID == "" {
		return nil, fmt.Errorf("%w: orderId is required", orders.ErrValidation)
	}
	if !r.signer.VerifyPayment(in.GatewayOrderID, in.GatewayPaymentID, in.GatewaySignature) {
		r.metrics.Count(ctx, MetricPaymentVerifyRejected)
		r.logger.Warn("payment signature mismatch", "order_id", in.OrderID, "gateway_order_id", in.GatewayOrderID)
		return nil, ErrSignature
	}

	o, err := r.ownedOrder(ctx, userID, in.OrderID)
	if err != nil {
		return nil, err
	}
	switch {
	case o.PaymentMethod != orders.MethodRazorpay:
		r.metrics.Count(ctx, MetricPaymentVerifyRejected)
		return nil, fmt.Errorf("%w: order is paid by %s", orders.ErrInvalidState, o.PaymentMethod)
	case o.GatewayOrderID == "":
		r.metrics.Count(ctx, MetricPaymentVerifyRejected)
		return nil, fmt.Errorf("%w: no gateway order was created for this order", orders.ErrInvalidState)
	case o.GatewayOrderID != in.GatewayOrderID:
		r.metrics.Count(ctx, MetricPaymentVerifyRejected)
		r.logger.Warn("gateway order does not belong to order", "order_id", in.OrderID,
			"expected", o.GatewayOrderID, "got", in.GatewayOrderID)
		return nil, ErrSignature
	}
	holder, err := r.repo.FindByGatewayPaymentID(ctx, in.GatewayPaymentID)
	if err != nil {
		return nil, fmt.Errorf("find order by payment: %w", err)
	}
	if holder != nil && holder.OrderID != o.OrderID {
		r.metrics.Count(ctx, MetricPaymentVerifyRejected)
		r.logger.Warn("payment already recorded on another order", "order_id", in.OrderID,
			"gateway_payment_id", in.GatewayPaymentID, "holder", holder.OrderID)
		return nil, fmt.Errorf("%w: payment belongs to another order", orders.ErrInvalidState)
	}

	now := r.nowFunc().UTC()
	err = r.repo.UpdatePayment(ctx, in.OrderID, orders.PaymentStatusesInto(orders.PaymentPaid), orders.PaymentUpdate{
		Status:         orders.PaymentPaid,
		GatewayOrderID: in.GatewayOrderID,
		PaymentID:      in.GatewayPaymentID,
		Signature:      in.GatewaySignature,
		PaidAt:         &now,
	})
	switch {
	case errors.Is(err, orders.ErrStatusMismatch):
		cur, gerr := r.reload(ctx, in.OrderID)
		if gerr != nil {
			return nil, gerr
		}
		if cur.PaymentStatus == orders.PaymentPaid && cur.GatewayPaymentID == in.GatewayPaymentID {
			r.logger.Info("payment already recorded", "order_id", in.OrderID, "gateway_payment_id", in.GatewayPaymentID)
			return cur, nil
		}
		return nil, fmt.Errorf("%w: payment is %s", orders.ErrInvalidState, cur.PaymentStatus)
	case errors.Is(err, orders.ErrOrderNotFound):
		return nil, orders.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("record payment: %w", err)
	}

	updated, err := r.reload(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	r.metrics.Count(ctx, MetricPaymentVerified)
	r.logger.Info("payment verified", "order_id", in.OrderID, "gateway_payment_id", in.GatewayPaymentID)
	r.publish(ctx, events.PaymentPaid, updated)
	return updated, nil
}

// PaymentView is the read-only payment state of an order.
type PaymentView struct {
	OrderID          string               `json:"orderId"`
	OrderNumber      string               `json:"orderNumber"`
	PaymentMethod    orders.PaymentMethod `json:"paymentMethod"`
	PaymentStatus    orders.PaymentStatus `json:"paymentStatus"`
	Amount           orders.Money         `json:"amount"`
	GatewayOrderID   string               `json:"gatewayOrderId,omitempty"`
	GatewayPaymentID string               `json:"gatewayPaymentId,omitempty"`
	PaidAt           *time.Time           `json:"paidAt,omitempty"`
}

// PaymentStatus returns the payment view of an owned order.
func (r *Reconciler) PaymentStatus(ctx context.Context, userID, orderID string) (*PaymentView, error) {
	o, err := r.ownedOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	return &PaymentView{
		OrderID:          o.OrderID,
		OrderNumber:      o.OrderNumber,
		PaymentMethod:    o.PaymentMethod,
		PaymentStatus:    o.PaymentStatus,
		Amount:           o.TotalAmount,
		GatewayOrderID:   o.GatewayOrderID,
		GatewayPaymentID: o.GatewayPaymentID,
		PaidAt:           o.PaidAt,
	}, nil
}

// HandleWebhook authenticates a raw webhook delivery and applies it (or queues
// it for the worker). Only ErrSignature should reach the gateway as a failure;
// every other error is internal and the delivery is still acknowledged.
func (r *Reconciler) HandleWebhook(ctx context.Context, body []byte, signature, eventID string) (Outcome, error) {
	if !r.signer.WebhookConfigured() {
		r.metrics.Count(ctx, MetricWebhookIgnored)
		r.logger.Warn("webhook secret not configured; delivery ignored")
		return OutcomeIgnored, nil
	}
	if !r.signer.VerifyWebhook(body, signature) {
		r.metrics.Count(ctx, MetricWebhookRejected)
		r.logger.Warn("webhook signature mismatch", "event_id", eventID)
		return "", ErrSignature
	}

	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		r.logger.Error("malformed webhook body", "event_id", eventID, "error", err)
		return OutcomeIgnored, nil
	}

	ledgerKey := ""
	if r.ledger != nil && eventID != "" {
		ledgerKey = "webhook:" + eventID
		claimed, err := r.ledger.Claim(ctx, ledgerKey, ev.gatewayOrderID())
		switch {
		case err != nil:
			// the conditional writes still make the event safe to apply
			r.logger.Warn("webhook ledger unavailable", "event_id", eventID, "error", err)
			ledgerKey = ""
		case !claimed:
			r.metrics.Count(ctx, MetricWebhookDuplicate)
			r.logger.Info("webhook redelivery skipped", "event_id", eventID, "event", ev.Event)
			return OutcomeDuplicate, nil
		}
	}

	if r.queue != nil {
		err := r.queue.Send(ctx, string(body), map[string]string{
			"event":    ev.Event,
			"event_id": eventID,
			"order_id": ev.gatewayOrderID(),
		})
		if err == nil {
			r.finish(ctx, ledgerKey, OutcomeQueued, nil)
			return OutcomeQueued, nil
		}
		r.logger.Error("webhook enqueue failed; applying inline", "event_id", eventID, "error", err)
	}

	outcome, err := r.ApplyEvent(ctx, ev)
	r.finish(ctx, ledgerKey, outcome, err)
	if err != nil {
		return OutcomeFailed, err
	}
	return outcome, nil
}

// ApplyEvent applies an authenticated webhook event. Transitions that the
// payment table does not allow, including replays, are no-ops. The returned
// error is reserved for store failures worth retrying.
func (r *Reconciler) ApplyEvent(ctx context.Context, ev WebhookEvent) (Outcome, error) {
	log := r.logger.With("event", ev.Event)
	switch ev.Event {
	case EventPaymentCaptured, EventOrderPaid:
		return r.applyCaptured(ctx, ev, log)
	case EventPaymentFailed:
		return r.applyFailed(ctx, ev, log)
	case EventRefundCreated, EventRefundProcessed:
		return r.applyRefund(ctx, ev, log)
	default:
		log.Info("unhandled webhook event")
		return OutcomeUnhandled, nil
	}
}

func (r *Reconciler) applyCaptured(ctx context.Context, ev WebhookEvent, log *slog.Logger) (Outcome, error) {
	gatewayOrderID := ev.gatewayOrderID()
	payment := ev.payment()
	o, err := r.lookupByGatewayOrder(ctx, gatewayOrderID, log)
	if o == nil || err != nil {
		return OutcomeUnknownOrder, err
	}
	if o.PaymentStatus == orders.PaymentPaid {
		r.metrics.Count(ctx, MetricWebhookDuplicate)
		log.Info("order already paid", "order_id", o.OrderID, "gateway_payment_id", o.GatewayPaymentID)
		return OutcomeDuplicate, nil
	}

	now := r.nowFunc().UTC()
	return r.transition(ctx, o, log, orders.PaymentUpdate{
		Status:    orders.PaymentPaid,
		PaymentID: payment.ID,
		PaidAt:    &now,
	})
}

func (r *Reconciler) applyFailed(ctx context.Context, ev WebhookEvent, log *slog.Logger) (Outcome, error) {
	payment := ev.payment()
	o, err := r.lookupByGatewayOrder(ctx, ev.gatewayOrderID(), log)
	if o == nil || err != nil {
		return OutcomeUnknownOrder, err
	}
	reason := payment.ErrorDescription
	if reason == "" {
		reason = payment.ErrorCode
	}
	return r.transition(ctx, o, log, orders.PaymentUpdate{
		Status:        orders.PaymentFailed,
		FailureReason: reason,
	})
}

func (r *Reconciler) applyRefund(ctx context.Context, ev WebhookEvent, log *slog.Logger) (Outcome, error) {
	if ev.Payload.Refund == nil || ev.Payload.Refund.Entity.PaymentID == "" {
		log.Warn("refund event without refund entity")
		return OutcomeIgnored, nil
	}
	refund := ev.Payload.Refund.Entity
	o, err := r.repo.FindByGatewayPaymentID(ctx, refund.PaymentID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("find order by payment: %w", err)
	}
	if o == nil {
		log.Warn("no order for gateway payment", "gateway_payment_id", refund.PaymentID)
		return OutcomeUnknownOrder, nil
	}
	now := r.nowFunc().UTC()
	return r.transition(ctx, o, log, orders.PaymentUpdate{
		Status:     orders.PaymentRefunded,
		RefundID:   refund.ID,
		RefundedAt: &now,
	})
}

// transition performs the conditional payment write for o. A lost race or a
// disallowed move is reported as a duplicate, never retried.
func (r *Reconciler) transition(ctx context.Context, o *orders.Order, log *slog.Logger, upd orders.PaymentUpdate) (Outcome, error) {
	err := r.repo.UpdatePayment(ctx, o.OrderID, orders.PaymentStatusesInto(upd.Status), upd)
	switch {
	case errors.Is(err, orders.ErrStatusMismatch):
		r.metrics.Count(ctx, MetricWebhookDuplicate)
		log.Info("payment transition not applicable", "order_id", o.OrderID,
			"payment_status", o.PaymentStatus, "target", upd.Status)
		return OutcomeDuplicate, nil
	case errors.Is(err, orders.ErrOrderNotFound):
		return OutcomeUnknownOrder, nil
	case err != nil:
		return OutcomeFailed, fmt.Errorf("update payment: %w", err)
	}

	r.metrics.Count(ctx, MetricWebhookApplied)
	log.Info("payment transition applied", "order_id", o.OrderID, "from", o.PaymentStatus, "to", upd.Status)
	if updated, err := r.reload(ctx, o.OrderID); err == nil {
		if t, ok := orders.PaymentEventType(upd.Status); ok {
			r.publish(ctx, t, updated)
		}
	}
	return OutcomeApplied, nil
}

// RefundOrder refunds a paid order in full through the gateway and marks it
// Refunded. It is the only operator-initiated way out of Paid.
func (r *Reconciler) RefundOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	o, err := r.reload(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus != orders.PaymentPaid || o.GatewayPaymentID == "" {
		return nil, fmt.Errorf("%w: only gateway-paid orders can be refunded (payment is %s)", orders.ErrInvalidState, o.PaymentStatus)
	}
	if r.gateway == nil {
		return nil, fmt.Errorf("%w: gateway not configured", ErrGateway)
	}

	refund, err := r.gateway.Refund(ctx, o.GatewayPaymentID, o.TotalAmount.Minor())
	if err != nil {
		r.metrics.Count(ctx, MetricGatewayError)
		r.logger.Error("gateway refund failed", "order_id", orderID, "error", err)
		return nil, err
	}

	now := r.nowFunc().UTC()
	err = r.repo.UpdatePayment(ctx, orderID, []orders.PaymentStatus{orders.PaymentPaid}, orders.PaymentUpdate{
		Status:     orders.PaymentRefunded,
		RefundID:   refund.ID,
		RefundedAt: &now,
	})
	if err != nil && !errors.Is(err, orders.ErrStatusMismatch) {
		return nil, fmt.Errorf("record refund: %w", err)
	}

	updated, rerr := r.reload(ctx, orderID)
	if rerr != nil {
		return nil, rerr
	}
	if err == nil {
		r.logger.Info("order refunded", "order_id", orderID, "refund_id", refund.ID)
		r.publish(ctx, events.PaymentRefunded, updated)
	}
	return updated, nil
}

func (r *Reconciler) lookupByGatewayOrder(ctx context.Context, gatewayOrderID string, log *slog.Logger) (*orders.Order, error) {
	if gatewayOrderID == "" {
		log.Warn("event carries no gateway order id")
		return nil, nil
	}
	o, err := r.repo.FindByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return nil, fmt.Errorf("find order by gateway order: %w", err)
	}
	if o == nil {
		log.Warn("no order for gateway order", "gateway_order_id", gatewayOrderID)
	}
	return o, nil
}

func (r *Reconciler) ownedOrder(ctx context.Context, userID, orderID string) (*orders.Order, error) {
	o, err := r.repo.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if o == nil || o.UserID != userID {
		return nil, orders.ErrNotFound
	}
	return o, nil
}

func (r *Reconciler) reload(ctx context.Context, orderID string) (*orders.Order, error) {
	o, err := r.repo.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if o == nil {
		return nil, orders.ErrNotFound
	}
	return o, nil
}

func (r *Reconciler) finish(ctx context.Context, ledgerKey string, outcome Outcome, applyErr error) {
	if ledgerKey == "" {
		return
	}
	var err error
	if applyErr != nil {
		err = r.ledger.MarkFailed(ctx, ledgerKey, applyErr.Error())
	} else {
		err = r.ledger.MarkDone(ctx, ledgerKey, fmt.Sprintf(`{"outcome":%q}`, outcome), 200)
	}
	if err != nil {
		r.logger.Warn("webhook ledger update failed", "key", ledgerKey, "error", err)
	}
}

func (r *Reconciler) publish(ctx context.Context, t events.Type, o *orders.Order) {
	if err := r.publisher.Publish(ctx, orders.EventFor(t, o, r.nowFunc())); err != nil {
		r.logger.Error("publish event failed", "event", t, "order_id", o.OrderID, "error", err)
	}
}

type nopCounter struct{}

func (nopCounter) Count(context.Context, string) {}

package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/imrishuroy/go-storefront-orders/internal/events"
)

// ServiceConfig groups the Service dependencies.
type ServiceConfig struct {
	Pricing   Pricing
	Catalog   PriceBook // optional; when set, item prices must match it
	Publisher events.Publisher
	Logger    *slog.Logger
}

// Service owns order creation and fulfillment transitions.
type Service struct {
	repo      Repository
	pricing   Pricing
	catalog   PriceBook
	publisher events.Publisher
	logger    *slog.Logger
	nowFunc   func() time.Time
}

// NewService returns a Service over repo.
func NewService(repo Repository, cfg ServiceConfig) *Service {
	if cfg.Publisher == nil {
		cfg.Publisher = events.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		pricing:   cfg.Pricing,
		catalog:   cfg.Catalog,
		publisher: cfg.Publisher,
		logger:    cfg.Logger.With("component", "orders"),
		nowFunc:   time.Now,
	}
}

// CreateInput is a checkout submission.
type CreateInput struct {
	ShippingAddress ShippingAddress
	Items           []LineItem
	PaymentMethod   PaymentMethod
	Amounts         AmountHints
}

// CreateOrder prices the cart server-side and persists a new order in
// Processing/Pending, whatever the payment method.
func (s *Service) CreateOrder(ctx context.Context, userID string, in CreateInput) (*Order, error) {
	if userID == "" {
		return nil, ErrAuth
	}
	if err := validateCreate(in); err != nil {
		return nil, err
	}
	if err := s.checkCatalog(ctx, in.Items); err != nil {
		return nil, err
	}

	quote := s.pricing.Quote(in.Items)
	if err := s.pricing.Check(quote, in.Amounts); err != nil {
		return nil, err
	}

	subtotal, shipping, tax := NewMoney(quote.Subtotal), NewMoney(quote.Shipping), NewMoney(quote.Tax)
	now := s.nowFunc().UTC()
	order := Order{
		OrderID:         uuid.NewString(),
		OrderNumber:     NewOrderNumber(now),
		UserID:          userID,
		Items:           in.Items,
		ShippingAddress: in.ShippingAddress,
		Subtotal:        subtotal,
		ShippingCost:    shipping,
		Tax:             tax,
		TotalAmount:     subtotal + shipping + tax,
		Status:          StatusProcessing,
		PaymentMethod:   in.PaymentMethod,
		PaymentStatus:   PaymentPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.logger.Info("order created", "order_id", order.OrderID, "order_number", order.OrderNumber,
		"user_id", userID, "total", order.TotalAmount.String(), "payment_method", order.PaymentMethod)
	s.publish(ctx, events.OrderCreated, &order)
	return &order, nil
}

// GetOrder returns the order only when userID owns it. A foreign order is
// reported as ErrNotFound so existence is never revealed.
func (s *Service) GetOrder(ctx context.Context, userID, orderID string) (*Order, error) {
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if o == nil || o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// ListUserOrders returns the caller's orders.
func (s *Service) ListUserOrders(ctx context.Context, userID string) ([]Order, error) {
	list, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user orders: %w", err)
	}
	return list, nil
}

// ListAllOrders returns every order (admin).
func (s *Service) ListAllOrders(ctx context.Context) ([]Order, error) {
	list, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return list, nil
}

// CancelOrder moves an owned order from Processing to Cancelled. Payment is left
// untouched; refunds go through the explicit refund operation.
func (s *Service) CancelOrder(ctx context.Context, orderID, userID string) (*Order, error) {
	o, err := s.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	err = s.repo.UpdateStatus(ctx, orderID, []Status{StatusProcessing}, StatusCancelled, "")
	switch {
	case errors.Is(err, ErrStatusMismatch):
		return nil, fmt.Errorf("%w: order is %s and can no longer be cancelled", ErrInvalidState, o.Status)
	case errors.Is(err, ErrOrderNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("cancel order: %w", err)
	}

	updated, err := s.reload(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if updated.PaymentStatus == PaymentPaid {
		s.logger.Warn("paid order cancelled; refund required", "order_id", orderID,
			"gateway_payment_id", updated.GatewayPaymentID)
	}
	s.publish(ctx, events.OrderCancelled, updated)
	return updated, nil
}

// UpdateOrderStatus is the admin fulfillment transition, restricted to the
// transition table. trackingID is optional.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, next Status, trackingID string) (*Order, error) {
	if !ValidStatus(next) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, next)
	}
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if o == nil {
		return nil, ErrNotFound
	}
	if !CanTransition(o.Status, next) {
		return nil, fmt.Errorf("%w: cannot move order from %s to %s", ErrInvalidState, o.Status, next)
	}

	err = s.repo.UpdateStatus(ctx, orderID, []Status{o.Status}, next, strings.TrimSpace(trackingID))
	switch {
	case errors.Is(err, ErrStatusMismatch):
		return nil, fmt.Errorf("%w: order changed concurrently, retry", ErrInvalidState)
	case errors.Is(err, ErrOrderNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("update status: %w", err)
	}

	updated, err := s.reload(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("order status updated", "order_id", orderID, "from", o.Status, "to", next)
	s.publish(ctx, events.OrderStatusUpdated, updated)
	return updated, nil
}

// SetPaymentStatus is the direct payment update used by cash-on-delivery orders.
// Gateway orders are settled by verification or webhook only.
func (s *Service) SetPaymentStatus(ctx context.Context, userID, orderID string, next PaymentStatus) (*Order, error) {
	if !ValidPaymentStatus(next) {
		return nil, fmt.Errorf("%w: unknown payment status %q", ErrValidation, next)
	}
	o, err := s.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentMethod != MethodCOD {
		return nil, fmt.Errorf("%w: %s payments are settled by the gateway", ErrInvalidState, o.PaymentMethod)
	}
	if o.PaymentStatus == next {
		return o, nil
	}
	if !CanTransitionPayment(o.PaymentStatus, next) {
		return nil, fmt.Errorf("%w: cannot move payment from %s to %s", ErrInvalidState, o.PaymentStatus, next)
	}

	now := s.nowFunc().UTC()
	upd := PaymentUpdate{Status: next}
	switch next {
	case PaymentPaid:
		upd.PaidAt = &now
	case PaymentRefunded:
		upd.RefundedAt = &now
	}
	err = s.repo.UpdatePayment(ctx, orderID, []PaymentStatus{o.PaymentStatus}, upd)
	switch {
	case errors.Is(err, ErrStatusMismatch):
		return nil, fmt.Errorf("%w: payment changed concurrently, retry", ErrInvalidState)
	case errors.Is(err, ErrOrderNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("update payment: %w", err)
	}

	updated, err := s.reload(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if ev, ok := PaymentEventType(next); ok {
		s.publish(ctx, ev, updated)
	}
	return updated, nil
}

func (s *Service) reload(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("reload order: %w", err)
	}
	if o == nil {
		return nil, ErrNotFound
	}
	return o, nil
}

func (s *Service) checkCatalog(ctx context.Context, items []LineItem) error {
	if s.catalog == nil {
		return nil
	}
	for _, it := range items {
		price, found, err := s.catalog.UnitPrice(ctx, it.ProductID)
		if err != nil {
			return fmt.Errorf("catalog lookup %s: %w", it.ProductID, err)
		}
		if !found {
			return fmt.Errorf("%w: unknown product %s", ErrValidation, it.ProductID)
		}
		if price != it.Price {
			return fmt.Errorf("%w: price of %s changed to %.2f", ErrValidation, it.ProductID, price)
		}
	}
	return nil
}

func (s *Service) publish(ctx context.Context, t events.Type, o *Order) {
	if err := s.publisher.Publish(ctx, EventFor(t, o, s.nowFunc())); err != nil {
		s.logger.Error("publish event failed", "event", t, "order_id", o.OrderID, "error", err)
	}
}

// EventFor builds the lifecycle event for o.
func EventFor(t events.Type, o *Order, at time.Time) events.Event {
	return events.Event{
		Type:             t,
		OrderID:          o.OrderID,
		OrderNumber:      o.OrderNumber,
		UserID:           o.UserID,
		Status:           string(o.Status),
		PaymentStatus:    string(o.PaymentStatus),
		PaymentMethod:    string(o.PaymentMethod),
		Amount:           o.TotalAmount.Float64(),
		GatewayPaymentID: o.GatewayPaymentID,
		OccurredAt:       at.UTC(),
	}
}

// PaymentEventType maps a payment status to the event announcing it.
func PaymentEventType(ps PaymentStatus) (events.Type, bool) {
	switch ps {
	case PaymentPaid:
		return events.PaymentPaid, true
	case PaymentFailed:
		return events.PaymentFailed, true
	case PaymentRefunded:
		return events.PaymentRefunded, true
	}
	return "", false
}

func validateCreate(in CreateInput) error {
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: order must contain at least one item", ErrValidation)
	}
	if strings.TrimSpace(in.ShippingAddress.Name) == "" || strings.TrimSpace(in.ShippingAddress.Street) == "" {
		return fmt.Errorf("%w: shipping address requires name and street", ErrValidation)
	}
	if !ValidPaymentMethod(in.PaymentMethod) {
		return fmt.Errorf("%w: unsupported payment method %q", ErrValidation, in.PaymentMethod)
	}
	for i, it := range in.Items {
		if it.ProductID == "" {
			return fmt.Errorf("%w: item %d has no productId", ErrValidation, i)
		}
		if it.Quantity < 1 {
			return fmt.Errorf("%w: item %d quantity must be at least 1", ErrValidation, i)
		}
		if it.Price <= 0 {
			return fmt.Errorf("%w: item %d price must be positive", ErrValidation, i)
		}
	}
	return nil
}

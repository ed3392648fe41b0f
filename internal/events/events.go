// Package events publishes order and payment lifecycle notifications for
// downstream consumers (mailers, fulfillment, analytics).
package events

import (
	"context"
	"time"
)

// Type names an event.
type Type string

const (
	OrderCreated       Type = "order.created"
	OrderCancelled     Type = "order.cancelled"
	OrderStatusUpdated Type = "order.status_updated"
	PaymentPaid        Type = "payment.paid"
	PaymentFailed      Type = "payment.failed"
	PaymentRefunded    Type = "payment.refunded"
)

// Event is the payload written to the events backend.
type Event struct {
	Type             Type      `json:"type"`
	OrderID          string    `json:"order_id"`
	OrderNumber      string    `json:"order_number,omitempty"`
	UserID           string    `json:"user_id,omitempty"`
	Status           string    `json:"status,omitempty"`
	PaymentStatus    string    `json:"payment_status,omitempty"`
	PaymentMethod    string    `json:"payment_method,omitempty"`
	Amount           float64   `json:"amount"`
	GatewayPaymentID string    `json:"gateway_payment_id,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

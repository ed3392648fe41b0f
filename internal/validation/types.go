package validation

import "github.com/imrishuroy/go-storefront-orders/internal/orders"

// Item is a single cart line as submitted at checkout.
type Item struct {
	ProductID string  `json:"productId" validate:"required"`
	Name      string  `json:"name" validate:"required"`
	Price     float64 `json:"price" validate:"required,gt=0"`     // price per unit
	Quantity  int     `json:"quantity" validate:"required,min=1"` // must be >= 1
	Size      string  `json:"size,omitempty"`
	Color     string  `json:"color,omitempty"`
	Image     string  `json:"image,omitempty"`
}

// ShippingAddress is the delivery snapshot. Name and street are the minimum.
type ShippingAddress struct {
	Name        string `json:"name" validate:"required"`
	Email       string `json:"email,omitempty" validate:"omitempty,email"`
	Phone       string `json:"phone,omitempty"`
	Street      string `json:"street" validate:"required"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	Zip         string `json:"zip,omitempty"`
	AddressType string `json:"addressType,omitempty"`
}

// CreateOrderRequest is the payload for POST /api/orders. The amount fields are
// what the client displayed; the server recomputes them.
type CreateOrderRequest struct {
	ShippingAddress ShippingAddress `json:"shippingAddress" validate:"required"`
	Items           []Item          `json:"items" validate:"required,min=1,dive"` // at least one item
	Subtotal        *float64        `json:"subtotal,omitempty" validate:"omitempty,gte=0"`
	ShippingCost    *float64        `json:"shippingCost,omitempty" validate:"omitempty,gte=0"`
	Tax             *float64        `json:"tax,omitempty" validate:"omitempty,gte=0"`
	TotalAmount     *float64        `json:"totalAmount,omitempty" validate:"omitempty,gt=0"`
	PaymentMethod   string          `json:"paymentMethod" validate:"required,oneof=COD Razorpay"`
}

// ToInput converts the request into the order service input.
func (r CreateOrderRequest) ToInput() orders.CreateInput {
	items := make([]orders.LineItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, orders.LineItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.Price,
			Quantity:  it.Quantity,
			Size:      it.Size,
			Color:     it.Color,
			Image:     it.Image,
		})
	}
	a := r.ShippingAddress
	return orders.CreateInput{
		ShippingAddress: orders.ShippingAddress{
			Name: a.Name, Email: a.Email, Phone: a.Phone, Street: a.Street,
			City: a.City, State: a.State, Zip: a.Zip, AddressType: a.AddressType,
		},
		Items:         items,
		PaymentMethod: orders.PaymentMethod(r.PaymentMethod),
		Amounts: orders.AmountHints{
			Subtotal:     r.Subtotal,
			ShippingCost: r.ShippingCost,
			Tax:          r.Tax,
			TotalAmount:  r.TotalAmount,
		},
	}
}

// UpdateStatusRequest is the admin payload for PUT /api/orders/:orderId/status.
type UpdateStatusRequest struct {
	Status     string `json:"status" validate:"required"` // checked against the transition table
	TrackingID string `json:"trackingId,omitempty" validate:"omitempty,max=128"`
}

// UpdatePaymentRequest is the payload for PUT /api/orders/:orderId/payment.
type UpdatePaymentRequest struct {
	PaymentStatus string `json:"paymentStatus" validate:"required,oneof=Pending Paid Failed Refunded"`
}

// CreatePaymentOrderRequest is the payload for POST /api/payment/create-order.
type CreatePaymentOrderRequest struct {
	OrderID string   `json:"orderId" validate:"required"`
	Amount  *float64 `json:"amount,omitempty" validate:"omitempty,gt=0"`
}

// VerifyPaymentRequest is the checkout result posted to POST /api/payment/verify.
type VerifyPaymentRequest struct {
	GatewayOrderID   string `json:"gateway_order_id" validate:"required"`
	GatewayPaymentID string `json:"gateway_payment_id" validate:"required"`
	GatewaySignature string `json:"gateway_signature" validate:"required"`
	OrderID          string `json:"orderId" validate:"required"`
}

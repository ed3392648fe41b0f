package orders

import "time"

// Status is the fulfillment lifecycle of an order.
type Status string

const (
	StatusProcessing     Status = "Processing"
	StatusShipped        Status = "Shipped"
	StatusOutForDelivery Status = "Out for Delivery"
	StatusDelivered      Status = "Delivered"
	StatusCancelled      Status = "Cancelled"
	StatusReturned       Status = "Returned"
)

// PaymentStatus is the money lifecycle of an order, independent of Status.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "Pending"
	PaymentPaid     PaymentStatus = "Paid"
	PaymentFailed   PaymentStatus = "Failed"
	PaymentRefunded PaymentStatus = "Refunded"
)

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	MethodCOD      PaymentMethod = "COD"
	MethodRazorpay PaymentMethod = "Razorpay"
)

// LineItem is a snapshot of a catalog product at order time.
type LineItem struct {
	ProductID string  `dynamodbav:"product_id" bson:"productId" json:"productId"`
	Name      string  `dynamodbav:"name" bson:"name" json:"name"`
	Price     float64 `dynamodbav:"price" bson:"price" json:"price"`
	Quantity  int     `dynamodbav:"quantity" bson:"quantity" json:"quantity"`
	Size      string  `dynamodbav:"size,omitempty" bson:"size,omitempty" json:"size,omitempty"`
	Color     string  `dynamodbav:"color,omitempty" bson:"color,omitempty" json:"color,omitempty"`
	Image     string  `dynamodbav:"image,omitempty" bson:"image,omitempty" json:"image,omitempty"`
}

// ShippingAddress is copied into the order, never referenced.
type ShippingAddress struct {
	Name        string `dynamodbav:"name" bson:"name" json:"name"`
	Email       string `dynamodbav:"email,omitempty" bson:"email,omitempty" json:"email,omitempty"`
	Phone       string `dynamodbav:"phone,omitempty" bson:"phone,omitempty" json:"phone,omitempty"`
	Street      string `dynamodbav:"street" bson:"street" json:"street"`
	City        string `dynamodbav:"city,omitempty" bson:"city,omitempty" json:"city,omitempty"`
	State       string `dynamodbav:"state,omitempty" bson:"state,omitempty" json:"state,omitempty"`
	Zip         string `dynamodbav:"zip,omitempty" bson:"zip,omitempty" json:"zip,omitempty"`
	AddressType string `dynamodbav:"address_type,omitempty" bson:"addressType,omitempty" json:"addressType,omitempty"`
}

// Order is the item stored in the orders table (or collection).
type Order struct {
	OrderID         string          `dynamodbav:"order_id" bson:"_id" json:"id"` // PK
	OrderNumber     string          `dynamodbav:"order_number" bson:"orderNumber" json:"orderNumber"`
	UserID          string          `dynamodbav:"user_id" bson:"userId" json:"userId"`
	Items           []LineItem      `dynamodbav:"items" bson:"items" json:"items"`
	ShippingAddress ShippingAddress `dynamodbav:"shipping_address" bson:"shippingAddress" json:"shippingAddress"`

	// minor units; TotalAmount is always Subtotal+ShippingCost+Tax
	Subtotal     Money `dynamodbav:"subtotal" bson:"subtotal" json:"subtotal"`
	ShippingCost Money `dynamodbav:"shipping_cost" bson:"shippingCost" json:"shippingCost"`
	Tax          Money `dynamodbav:"tax" bson:"tax" json:"tax"`
	TotalAmount  Money `dynamodbav:"total_amount" bson:"totalAmount" json:"totalAmount"`

	Status        Status        `dynamodbav:"status" bson:"status" json:"status"`
	PaymentMethod PaymentMethod `dynamodbav:"payment_method" bson:"paymentMethod" json:"paymentMethod"`
	PaymentStatus PaymentStatus `dynamodbav:"payment_status" bson:"paymentStatus" json:"paymentStatus"`

	// gateway correlation, empty until a payment attempt exists
	GatewayOrderID       string     `dynamodbav:"gateway_order_id,omitempty" bson:"gatewayOrderId,omitempty" json:"gatewayOrderId,omitempty"`
	GatewayPaymentID     string     `dynamodbav:"gateway_payment_id,omitempty" bson:"gatewayPaymentId,omitempty" json:"gatewayPaymentId,omitempty"`
	GatewaySignature     string     `dynamodbav:"gateway_signature,omitempty" bson:"gatewaySignature,omitempty" json:"-"`
	GatewayRefundID      string     `dynamodbav:"gateway_refund_id,omitempty" bson:"gatewayRefundId,omitempty" json:"gatewayRefundId,omitempty"`
	PaymentFailureReason string     `dynamodbav:"payment_failure_reason,omitempty" bson:"paymentFailureReason,omitempty" json:"paymentFailureReason,omitempty"`
	PaidAt               *time.Time `dynamodbav:"paid_at,omitempty" bson:"paidAt,omitempty" json:"paidAt,omitempty"`
	RefundedAt           *time.Time `dynamodbav:"refunded_at,omitempty" bson:"refundedAt,omitempty" json:"refundedAt,omitempty"`

	TrackingID string    `dynamodbav:"tracking_id,omitempty" bson:"trackingId,omitempty" json:"trackingId,omitempty"`
	CreatedAt  time.Time `dynamodbav:"created_at" bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time `dynamodbav:"updated_at" bson:"updatedAt" json:"updatedAt"`
}

// PaymentUpdate carries the fields written by a payment transition. Empty strings
// and nil times leave the stored value alone.
type PaymentUpdate struct {
	Status         PaymentStatus
	GatewayOrderID string
	PaymentID      string
	Signature      string
	RefundID       string
	FailureReason  string
	PaidAt         *time.Time
	RefundedAt     *time.Time
}

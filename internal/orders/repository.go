package orders

import "context"

// Repository is the persistence contract for orders. Every mutating method is a
// single conditional write: the expected-state check and the update cannot
// interleave with another writer. A failed precondition yields ErrStatusMismatch,
// a missing record ErrOrderNotFound.
type Repository interface {
	Create(ctx context.Context, order Order) error
	Get(ctx context.Context, orderID string) (*Order, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Order, error)
	FindByGatewayPaymentID(ctx context.Context, paymentID string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	ListAll(ctx context.Context) ([]Order, error)

	UpdateStatus(ctx context.Context, orderID string, expected []Status, next Status, trackingID string) error
	UpdatePayment(ctx context.Context, orderID string, expected []PaymentStatus, upd PaymentUpdate) error
	// AttachGatewayOrder binds at most one gateway order per order; a second
	// attach is a failed precondition.
	AttachGatewayOrder(ctx context.Context, orderID, gatewayOrderID string, expected []PaymentStatus) error
}

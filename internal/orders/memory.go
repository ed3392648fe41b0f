package orders

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Repository used for local runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	orders  map[string]Order
	nowFunc func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:  map[string]Order{},
		nowFunc: time.Now,
	}
}

func (m *MemoryStore) Create(ctx context.Context, order Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[order.OrderID]; ok {
		return ErrDuplicateOrder
	}
	m.orders[order.OrderID] = cloneOrder(order)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, orderID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, nil
	}
	c := cloneOrder(o)
	return &c, nil
}

func (m *MemoryStore) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Order, error) {
	return m.findFirst(func(o Order) bool { return o.GatewayOrderID == gatewayOrderID })
}

func (m *MemoryStore) FindByGatewayPaymentID(ctx context.Context, paymentID string) (*Order, error) {
	return m.findFirst(func(o Order) bool { return o.GatewayPaymentID == paymentID })
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return m.filter(func(o Order) bool { return o.UserID == userID }), nil
}

func (m *MemoryStore) ListAll(ctx context.Context) ([]Order, error) {
	return m.filter(func(Order) bool { return true }), nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, orderID string, expected []Status, next Status, trackingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if !slices.Contains(expected, o.Status) {
		return ErrStatusMismatch
	}
	o.Status = next
	if trackingID != "" {
		o.TrackingID = trackingID
	}
	o.UpdatedAt = m.nowFunc()
	m.orders[orderID] = o
	return nil
}

func (m *MemoryStore) UpdatePayment(ctx context.Context, orderID string, expected []PaymentStatus, upd PaymentUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if !slices.Contains(expected, o.PaymentStatus) {
		return ErrStatusMismatch
	}
	if upd.PaymentID != "" && o.GatewayPaymentID != "" && upd.PaymentID != o.GatewayPaymentID {
		return ErrStatusMismatch
	}
	applyPaymentUpdate(&o, upd)
	o.UpdatedAt = m.nowFunc()
	m.orders[orderID] = o
	return nil
}

func (m *MemoryStore) AttachGatewayOrder(ctx context.Context, orderID, gatewayOrderID string, expected []PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if !slices.Contains(expected, o.PaymentStatus) || o.GatewayOrderID != "" {
		return ErrStatusMismatch
	}
	o.GatewayOrderID = gatewayOrderID
	o.UpdatedAt = m.nowFunc()
	m.orders[orderID] = o
	return nil
}

func (m *MemoryStore) findFirst(match func(Order) bool) (*Order, error) {
	if found := m.filter(match); len(found) > 0 {
		return &found[0], nil
	}
	return nil, nil
}

func (m *MemoryStore) filter(match func(Order) bool) []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Order{}
	for _, o := range m.orders {
		if match(o) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// applyPaymentUpdate mirrors what the conditional SET expressions of the other
// backends write.
func applyPaymentUpdate(o *Order, upd PaymentUpdate) {
	o.PaymentStatus = upd.Status
	if upd.GatewayOrderID != "" {
		o.GatewayOrderID = upd.GatewayOrderID
	}
	if upd.PaymentID != "" {
		o.GatewayPaymentID = upd.PaymentID
	}
	if upd.Signature != "" {
		o.GatewaySignature = upd.Signature
	}
	if upd.RefundID != "" {
		o.GatewayRefundID = upd.RefundID
	}
	if upd.FailureReason != "" {
		o.PaymentFailureReason = upd.FailureReason
	}
	if upd.PaidAt != nil {
		t := *upd.PaidAt
		o.PaidAt = &t
	}
	if upd.RefundedAt != nil {
		t := *upd.RefundedAt
		o.RefundedAt = &t
	}
}

func cloneOrder(o Order) Order {
	o.Items = slices.Clone(o.Items)
	if o.PaidAt != nil {
		t := *o.PaidAt
		o.PaidAt = &t
	}
	if o.RefundedAt != nil {
		t := *o.RefundedAt
		o.RefundedAt = &t
	}
	return o
}

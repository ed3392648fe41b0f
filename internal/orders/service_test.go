package orders

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/imrishuroy/go-storefront-orders/internal/events"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(ctx context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingPublisher) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type mapPriceBook map[string]float64

func (m mapPriceBook) UnitPrice(ctx context.Context, productID string) (float64, bool, error) {
	p, ok := m[productID]
	return p, ok, nil
}

func newTestService() (*Service, *MemoryStore, *recordingPublisher) {
	store := NewMemoryStore()
	pub := &recordingPublisher{}
	svc := NewService(store, ServiceConfig{Pricing: DefaultPricing(), Publisher: pub})
	return svc, store, pub
}

func codInput() CreateInput {
	return CreateInput{
		ShippingAddress: ShippingAddress{Name: "Asha", Street: "12 MG Road", City: "Pune", Zip: "411001"},
		Items:           []LineItem{{ProductID: "p1", Name: "Oversized Tee", Price: 1000, Quantity: 2, Size: "M"}},
		PaymentMethod:   MethodCOD,
		Amounts:         AmountHints{Subtotal: f(2000), ShippingCost: f(0), Tax: f(0), TotalAmount: f(2000)},
	}
}

func TestCreateOrder_CODHappyPath(t *testing.T) {
	svc, _, pub := newTestService()
	ctx := context.Background()

	o, err := svc.CreateOrder(ctx, "u1", codInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.TotalAmount != MoneyOf(2000) || o.Status != StatusProcessing || o.PaymentStatus != PaymentPending {
		t.Fatalf("unexpected order: total=%v status=%s payment=%s", o.TotalAmount, o.Status, o.PaymentStatus)
	}
	if o.GatewayOrderID != "" || o.GatewayPaymentID != "" || o.PaidAt != nil {
		t.Fatalf("new order must carry no gateway fields")
	}

	paid, err := svc.SetPaymentStatus(ctx, "u1", o.OrderID, PaymentPaid)
	if err != nil {
		t.Fatalf("set payment: %v", err)
	}
	if paid.PaymentStatus != PaymentPaid || paid.PaidAt == nil {
		t.Fatalf("payment not marked paid: %+v", paid)
	}
	if paid.Status != StatusProcessing {
		t.Fatalf("fulfillment status changed by payment update: %s", paid.Status)
	}

	got := pub.types()
	if len(got) != 2 || got[0] != events.OrderCreated || got[1] != events.PaymentPaid {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestCreateOrder_TotalInvariant(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, ServiceConfig{Pricing: Pricing{
		TaxRate:               mustDecimal("0.05"),
		FreeShippingThreshold: mustDecimal("5000"),
		ShippingFee:           mustDecimal("49.5"),
		Tolerance:             mustDecimal("0.01"),
	}})
	in := codInput()
	in.Amounts = AmountHints{}
	in.Items = []LineItem{
		{ProductID: "p1", Price: 799.99, Quantity: 3},
		{ProductID: "p2", Price: 0.1, Quantity: 7},
	}

	o, err := svc.CreateOrder(context.Background(), "u1", in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.TotalAmount != o.Subtotal+o.ShippingCost+o.Tax {
		t.Fatalf("total %v != %v + %v + %v", o.TotalAmount, o.Subtotal, o.ShippingCost, o.Tax)
	}

	// no later transition may touch the amounts
	ctx := context.Background()
	if _, err := svc.UpdateOrderStatus(ctx, o.OrderID, StatusShipped, "AWB1"); err != nil {
		t.Fatalf("ship: %v", err)
	}
	if _, err := svc.SetPaymentStatus(ctx, "u1", o.OrderID, PaymentPaid); err != nil {
		t.Fatalf("pay: %v", err)
	}
	after, _ := store.Get(ctx, o.OrderID)
	if after.TotalAmount != o.TotalAmount || after.Subtotal != o.Subtotal || after.Tax != o.Tax || after.ShippingCost != o.ShippingCost {
		t.Fatalf("amounts mutated: before=%+v after=%+v", o, after)
	}
}

func TestCreateOrder_StoresExactMinorUnits(t *testing.T) {
	svc, _, _ := newTestService()
	in := codInput()
	in.Amounts = AmountHints{Subtotal: f(9.04), ShippingCost: f(99), Tax: f(0), TotalAmount: f(108.04)}
	in.Items = []LineItem{{ProductID: "p1", Price: 9.04, Quantity: 1}}

	o, err := svc.CreateOrder(context.Background(), "u1", in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.Subtotal != 904 || o.ShippingCost != 9900 || o.Tax != 0 || o.TotalAmount != 10804 {
		t.Fatalf("unexpected amounts: %d %d %d %d", o.Subtotal, o.ShippingCost, o.Tax, o.TotalAmount)
	}
	if o.TotalAmount != o.Subtotal+o.ShippingCost+o.Tax {
		t.Fatal("total must equal the sum of its parts")
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	cases := map[string]func(*CreateInput){
		"empty items":        func(in *CreateInput) { in.Items = nil },
		"missing name":       func(in *CreateInput) { in.ShippingAddress.Name = " " },
		"missing street":     func(in *CreateInput) { in.ShippingAddress.Street = "" },
		"bad method":         func(in *CreateInput) { in.PaymentMethod = "Cheque" },
		"zero quantity":      func(in *CreateInput) { in.Items[0].Quantity = 0 },
		"client total drift": func(in *CreateInput) { in.Amounts.TotalAmount = f(10) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := codInput()
			mutate(&in)
			if _, err := svc.CreateOrder(ctx, "u1", in); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}

	if _, err := svc.CreateOrder(ctx, "", codInput()); !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth for anonymous caller, got %v", err)
	}
	if all, _ := store.ListAll(ctx); len(all) != 0 {
		t.Fatalf("rejected requests must not persist orders, found %d", len(all))
	}
}

func TestCreateOrder_CatalogPrices(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, ServiceConfig{
		Pricing: DefaultPricing(),
		Catalog: mapPriceBook{"p1": 1200},
	})
	if _, err := svc.CreateOrder(context.Background(), "u1", codInput()); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected stale price to be rejected, got %v", err)
	}

	svc.catalog = mapPriceBook{"p1": 1000}
	if _, err := svc.CreateOrder(context.Background(), "u1", codInput()); err != nil {
		t.Fatalf("catalog price should be accepted: %v", err)
	}
}

func TestCancelOrder_Guard(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	o, _ := svc.CreateOrder(ctx, "u1", codInput())
	cancelled, err := svc.CancelOrder(ctx, o.OrderID, "u1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("status = %s", cancelled.Status)
	}
	if cancelled.TotalAmount != o.TotalAmount || cancelled.PaymentStatus != o.PaymentStatus || len(cancelled.Items) != len(o.Items) {
		t.Fatalf("cancel changed more than status: %+v", cancelled)
	}

	for _, st := range []Status{StatusShipped, StatusOutForDelivery, StatusDelivered, StatusCancelled, StatusReturned} {
		o2, _ := svc.CreateOrder(ctx, "u1", codInput())
		if err := store.UpdateStatus(ctx, o2.OrderID, []Status{StatusProcessing}, st, ""); err != nil {
			t.Fatalf("seed status %s: %v", st, err)
		}
		if _, err := svc.CancelOrder(ctx, o2.OrderID, "u1"); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("cancel from %s: expected ErrInvalidState, got %v", st, err)
		}
		after, _ := store.Get(ctx, o2.OrderID)
		if after.Status != st {
			t.Fatalf("status changed from %s to %s", st, after.Status)
		}
	}
}

func TestCancelOrder_ForeignOrderIsNotFound(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()
	o, _ := svc.CreateOrder(ctx, "u1", codInput())

	if _, err := svc.CancelOrder(ctx, o.OrderID, "intruder"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.GetOrder(ctx, "intruder", o.OrderID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	after, _ := store.Get(ctx, o.OrderID)
	if after.Status != StatusProcessing {
		t.Fatalf("foreign cancel mutated order")
	}
}

func TestUpdateOrderStatus_TransitionTable(t *testing.T) {
	svc, _, pub := newTestService()
	ctx := context.Background()
	o, _ := svc.CreateOrder(ctx, "u1", codInput())

	if _, err := svc.UpdateOrderStatus(ctx, o.OrderID, StatusDelivered, ""); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Processing -> Delivered must be rejected, got %v", err)
	}
	if _, err := svc.UpdateOrderStatus(ctx, o.OrderID, Status("Teleported"), ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown status must be a validation error, got %v", err)
	}
	if _, err := svc.UpdateOrderStatus(ctx, "missing", StatusShipped, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	steps := []Status{StatusShipped, StatusOutForDelivery, StatusDelivered, StatusReturned}
	for _, st := range steps {
		got, err := svc.UpdateOrderStatus(ctx, o.OrderID, st, "AWB42")
		if err != nil {
			t.Fatalf("-> %s: %v", st, err)
		}
		if got.Status != st || got.TrackingID != "AWB42" {
			t.Fatalf("unexpected order after %s: %+v", st, got)
		}
	}
	if _, err := svc.UpdateOrderStatus(ctx, o.OrderID, StatusProcessing, ""); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Returned is terminal, got %v", err)
	}

	n := 0
	for _, ty := range pub.types() {
		if ty == events.OrderStatusUpdated {
			n++
		}
	}
	if n != len(steps) {
		t.Fatalf("expected %d status events, got %d", len(steps), n)
	}
}

func TestSetPaymentStatus_Rules(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	gw := codInput()
	gw.PaymentMethod = MethodRazorpay
	gatewayOrder, _ := svc.CreateOrder(ctx, "u1", gw)
	if _, err := svc.SetPaymentStatus(ctx, "u1", gatewayOrder.OrderID, PaymentPaid); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("gateway orders must not be settled directly, got %v", err)
	}

	cod, _ := svc.CreateOrder(ctx, "u1", codInput())
	if _, err := svc.SetPaymentStatus(ctx, "u1", cod.OrderID, PaymentRefunded); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Pending -> Refunded must be rejected, got %v", err)
	}
	if _, err := svc.SetPaymentStatus(ctx, "u1", cod.OrderID, PaymentStatus("Maybe")); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := svc.SetPaymentStatus(ctx, "u1", cod.OrderID, PaymentPaid); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if _, err := svc.SetPaymentStatus(ctx, "u1", cod.OrderID, PaymentFailed); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Paid -> Failed must be rejected, got %v", err)
	}
	again, err := svc.SetPaymentStatus(ctx, "u1", cod.OrderID, PaymentPaid)
	if err != nil || again.PaymentStatus != PaymentPaid {
		t.Fatalf("re-setting the same status is a no-op: %v", err)
	}
}

func TestListOrders(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	svc.CreateOrder(ctx, "u1", codInput())
	svc.CreateOrder(ctx, "u1", codInput())
	svc.CreateOrder(ctx, "u2", codInput())

	mine, err := svc.ListUserOrders(ctx, "u1")
	if err != nil || len(mine) != 2 {
		t.Fatalf("ListUserOrders = %d, %v", len(mine), err)
	}
	all, err := svc.ListAllOrders(ctx)
	if err != nil || len(all) != 3 {
		t.Fatalf("ListAllOrders = %d, %v", len(all), err)
	}
}

package mongostore

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/imrishuroy/go-storefront-orders/internal/orders"
)

func TestPaymentFilter(t *testing.T) {
	f := paymentFilter("o1", []orders.PaymentStatus{orders.PaymentPending, orders.PaymentFailed}, "")
	if f["_id"] != "o1" {
		t.Fatalf("unexpected _id %v", f["_id"])
	}
	in := f["paymentStatus"].(bson.M)["$in"].([]orders.PaymentStatus)
	if len(in) != 2 || in[1] != orders.PaymentFailed {
		t.Fatalf("unexpected $in %v", in)
	}
	if _, ok := f["$or"]; ok {
		t.Fatal("no payment id guard expected without a payment id")
	}

	guarded := paymentFilter("o1", []orders.PaymentStatus{orders.PaymentPending}, "pay_1")
	or, ok := guarded["$or"].(bson.A)
	if !ok || len(or) != 2 || or[1].(bson.M)["gatewayPaymentId"] != "pay_1" {
		t.Fatalf("unexpected guard %v", guarded["$or"])
	}
}

func TestAttachFilter_RequiresNoGatewayOrder(t *testing.T) {
	f := attachFilter("o1", []orders.PaymentStatus{orders.PaymentPending})
	exists, ok := f["gatewayOrderId"].(bson.M)
	if !ok || exists["$exists"] != false {
		t.Fatalf("unexpected gatewayOrderId clause %v", f["gatewayOrderId"])
	}
	if f["_id"] != "o1" || f["paymentStatus"] == nil {
		t.Fatalf("status precondition lost: %v", f)
	}
}

func TestPaymentSet_OnlyNonEmptyFields(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	set := paymentSet(orders.PaymentUpdate{Status: orders.PaymentPaid, PaymentID: "pay_1", PaidAt: &now}, now)
	if set["paymentStatus"] != orders.PaymentPaid || set["gatewayPaymentId"] != "pay_1" || set["paidAt"] != now {
		t.Fatalf("unexpected set %v", set)
	}
	for _, k := range []string{"gatewaySignature", "gatewayRefundId", "refundedAt", "totalAmount", "items"} {
		if _, ok := set[k]; ok {
			t.Errorf("%s must not be written", k)
		}
	}
}

func TestStatusFilter(t *testing.T) {
	f := statusFilter("o1", []orders.Status{orders.StatusProcessing})
	if f["_id"] != "o1" || len(f["status"].(bson.M)["$in"].([]orders.Status)) != 1 {
		t.Fatalf("unexpected filter %v", f)
	}
}

func TestProductFilter(t *testing.T) {
	oid := primitive.NewObjectID()
	if got := productFilter(oid.Hex())["_id"]; got != oid {
		t.Fatalf("expected ObjectID, got %v", got)
	}
	if got := productFilter("sku-1")["_id"]; got != "sku-1" {
		t.Fatalf("expected string id, got %v", got)
	}
}

func orderDoc(t *testing.T, o orders.Order) bson.D {
	t.Helper()
	raw, err := bson.Marshal(o)
	if err != nil {
		t.Fatal(err)
	}
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestOrderStore_Mocked(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("get decodes the order", func(mt *mtest.T) {
		s := NewOrderStore(mt.DB)
		want := orders.Order{OrderID: "o1", UserID: "u1", TotalAmount: orders.MoneyOf(2000), Status: orders.StatusProcessing,
			PaymentStatus: orders.PaymentPending, CreatedAt: time.Now().UTC().Truncate(time.Millisecond)}
		mt.AddMockResponses(mtest.CreateCursorResponse(1, "db.orders", mtest.FirstBatch, orderDoc(mt.T, want)))

		got, err := s.Get(context.Background(), "o1")
		if err != nil || got == nil {
			mt.Fatalf("get: %v", err)
		}
		if got.OrderID != "o1" || got.TotalAmount != orders.MoneyOf(2000) || got.PaymentStatus != orders.PaymentPending {
			mt.Fatalf("unexpected order %+v", got)
		}
	})

	mt.Run("get missing returns nil", func(mt *mtest.T) {
		s := NewOrderStore(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "db.orders", mtest.FirstBatch))
		got, err := s.Get(context.Background(), "nope")
		if err != nil || got != nil {
			mt.Fatalf("expected nil, got %+v %v", got, err)
		}
	})

	mt.Run("duplicate insert", func(mt *mtest.T) {
		s := NewOrderStore(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}))
		if err := s.Create(context.Background(), orders.Order{OrderID: "o1"}); !errors.Is(err, orders.ErrDuplicateOrder) {
			mt.Fatalf("expected ErrDuplicateOrder, got %v", err)
		}
	})

	mt.Run("matched update succeeds", func(mt *mtest.T) {
		s := NewOrderStore(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))
		err := s.UpdateStatus(context.Background(), "o1", []orders.Status{orders.StatusProcessing}, orders.StatusCancelled, "")
		if err != nil {
			mt.Fatalf("update: %v", err)
		}
	})

	mt.Run("unmatched update on existing order is a mismatch", func(mt *mtest.T) {
		s := NewOrderStore(mt.DB)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, "db.orders", mtest.FirstBatch, bson.D{{Key: "n", Value: 1}}),
		)
		err := s.UpdatePayment(context.Background(), "o1", []orders.PaymentStatus{orders.PaymentPaid}, orders.PaymentUpdate{Status: orders.PaymentRefunded})
		if !errors.Is(err, orders.ErrStatusMismatch) {
			mt.Fatalf("expected ErrStatusMismatch, got %v", err)
		}
	})

	mt.Run("unmatched update on missing order is not found", func(mt *mtest.T) {
		s := NewOrderStore(mt.DB)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, "db.orders", mtest.FirstBatch),
		)
		err := s.AttachGatewayOrder(context.Background(), "o1", "order_gw1", []orders.PaymentStatus{orders.PaymentPending})
		if !errors.Is(err, orders.ErrOrderNotFound) {
			mt.Fatalf("expected ErrOrderNotFound, got %v", err)
		}
	})

	mt.Run("catalog price lookup", func(mt *mtest.T) {
		c := NewCatalog(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(1, "db.products", mtest.FirstBatch, bson.D{{Key: "price", Value: 1299.0}}))
		price, found, err := c.UnitPrice(context.Background(), primitive.NewObjectID().Hex())
		if err != nil || !found || price != 1299 {
			mt.Fatalf("unexpected %v %v %v", price, found, err)
		}
	})
}

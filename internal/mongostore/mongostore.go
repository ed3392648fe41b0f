// Package mongostore is the MongoDB backend for orders and the read-only
// catalog price lookup.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/imrishuroy/go-storefront-orders/internal/orders"
)

const (
	OrdersCollection   = "orders"
	ProductsCollection = "products"
)

// Connect dials uri and pings the primary.
func Connect(ctx context.Context, uri string, logger *slog.Logger) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	if logger != nil {
		logger.Info("connected to mongodb")
	}
	return client, nil
}

// OrderStore implements orders.Repository on a MongoDB collection. Every
// mutation is a single UpdateOne whose filter carries the precondition.
type OrderStore struct {
	coll    *mongo.Collection
	nowFunc func() time.Time
}

func NewOrderStore(db *mongo.Database) *OrderStore {
	return &OrderStore{coll: db.Collection(OrdersCollection), nowFunc: time.Now}
}

// EnsureIndexes creates the lookup indexes. The sparse unique index on the
// gateway payment id backs its immutability across orders.
func (s *OrderStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "gatewayOrderId", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "gatewayPaymentId", Value: 1}}, Options: options.Index().SetSparse(true).SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func (s *OrderStore) Create(ctx context.Context, order orders.Order) error {
	_, err := s.coll.InsertOne(ctx, order)
	if mongo.IsDuplicateKeyError(err) {
		return orders.ErrDuplicateOrder
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *OrderStore) Get(ctx context.Context, orderID string) (*orders.Order, error) {
	return s.findOne(ctx, bson.M{"_id": orderID})
}

func (s *OrderStore) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*orders.Order, error) {
	return s.findOne(ctx, bson.M{"gatewayOrderId": gatewayOrderID})
}

func (s *OrderStore) FindByGatewayPaymentID(ctx context.Context, paymentID string) (*orders.Order, error) {
	return s.findOne(ctx, bson.M{"gatewayPaymentId": paymentID})
}

func (s *OrderStore) ListByUser(ctx context.Context, userID string) ([]orders.Order, error) {
	return s.find(ctx, bson.M{"userId": userID})
}

func (s *OrderStore) ListAll(ctx context.Context) ([]orders.Order, error) {
	return s.find(ctx, bson.M{})
}

func (s *OrderStore) UpdateStatus(ctx context.Context, orderID string, expected []orders.Status, next orders.Status, trackingID string) error {
	set := bson.M{"status": next, "updatedAt": s.nowFunc().UTC()}
	if trackingID != "" {
		set["trackingId"] = trackingID
	}
	return s.update(ctx, orderID, statusFilter(orderID, expected), bson.M{"$set": set})
}

func (s *OrderStore) UpdatePayment(ctx context.Context, orderID string, expected []orders.PaymentStatus, upd orders.PaymentUpdate) error {
	return s.update(ctx, orderID, paymentFilter(orderID, expected, upd.PaymentID), bson.M{"$set": paymentSet(upd, s.nowFunc().UTC())})
}

func (s *OrderStore) AttachGatewayOrder(ctx context.Context, orderID, gatewayOrderID string, expected []orders.PaymentStatus) error {
	set := bson.M{"gatewayOrderId": gatewayOrderID, "updatedAt": s.nowFunc().UTC()}
	return s.update(ctx, orderID, attachFilter(orderID, expected), bson.M{"$set": set})
}

// update runs a conditional UpdateOne. When nothing matched, a count on _id
// tells a failed precondition from a missing order.
func (s *OrderStore) update(ctx context.Context, orderID string, filter, update bson.M) error {
	res, err := s.coll.UpdateOne(ctx, filter, update)
	if mongo.IsDuplicateKeyError(err) {
		// payment id already recorded on another order
		return orders.ErrStatusMismatch
	}
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": orderID}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("count order: %w", err)
	}
	if n == 0 {
		return orders.ErrOrderNotFound
	}
	return orders.ErrStatusMismatch
}

func (s *OrderStore) findOne(ctx context.Context, filter bson.M) (*orders.Order, error) {
	var o orders.Order
	err := s.coll.FindOne(ctx, filter, options.FindOne().SetSort(bson.D{{Key: "updatedAt", Value: -1}})).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	return &o, nil
}

func (s *OrderStore) find(ctx context.Context, filter bson.M) ([]orders.Order, error) {
	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}
	out := []orders.Order{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return out, nil
}

func statusFilter(orderID string, expected []orders.Status) bson.M {
	return bson.M{"_id": orderID, "status": bson.M{"$in": expected}}
}

// paymentFilter matches orderID in one of the expected payment states. A
// non-empty paymentID additionally requires the order to carry no payment id
// yet or that same one.
func paymentFilter(orderID string, expected []orders.PaymentStatus, paymentID string) bson.M {
	f := bson.M{"_id": orderID, "paymentStatus": bson.M{"$in": expected}}
	if paymentID != "" {
		f["$or"] = bson.A{
			bson.M{"gatewayPaymentId": bson.M{"$exists": false}},
			bson.M{"gatewayPaymentId": paymentID},
		}
	}
	return f
}

// attachFilter matches only orders without a gateway order yet.
func attachFilter(orderID string, expected []orders.PaymentStatus) bson.M {
	f := paymentFilter(orderID, expected, "")
	f["gatewayOrderId"] = bson.M{"$exists": false}
	return f
}

func paymentSet(upd orders.PaymentUpdate, now time.Time) bson.M {
	set := bson.M{"paymentStatus": upd.Status, "updatedAt": now}
	optional := map[string]string{
		"gatewayOrderId":       upd.GatewayOrderID,
		"gatewayPaymentId":     upd.PaymentID,
		"gatewaySignature":     upd.Signature,
		"gatewayRefundId":      upd.RefundID,
		"paymentFailureReason": upd.FailureReason,
	}
	for k, v := range optional {
		if v != "" {
			set[k] = v
		}
	}
	if upd.PaidAt != nil {
		set["paidAt"] = upd.PaidAt.UTC()
	}
	if upd.RefundedAt != nil {
		set["refundedAt"] = upd.RefundedAt.UTC()
	}
	return set
}

package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-storefront-orders/internal/aws"
)

// Secondary indexes on the orders table.
const (
	IndexUserID           = "user_id-index"
	IndexGatewayOrderID   = "gateway_order_id-index"
	IndexGatewayPaymentID = "gateway_payment_id-index"
)

// Store is the DynamoDB-backed Repository.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Create puts a new order; it never overwrites an existing order_id.
func (s *Store) Create(ctx context.Context, order Order) error {
	now := s.nowFunc()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	item, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            orderKey(orderID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// FindByGatewayOrderID looks an order up through the gateway_order_id GSI.
// GSI reads are eventually consistent; callers re-check state with a conditional write.
func (s *Store) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Order, error) {
	return s.queryOne(ctx, IndexGatewayOrderID, "gateway_order_id", gatewayOrderID)
}

// FindByGatewayPaymentID looks an order up through the gateway_payment_id GSI.
func (s *Store) FindByGatewayPaymentID(ctx context.Context, paymentID string) (*Order, error) {
	return s.queryOne(ctx, IndexGatewayPaymentID, "gateway_payment_id", paymentID)
}

// ListByUser returns the user's orders, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	var out []Order
	var startKey map[string]types.AttributeValue
	for {
		page, err := s.client.Query(ctx, &dyn.QueryInput{
			TableName:                 &s.tableName,
			IndexName:                 awsString(IndexUserID),
			KeyConditionExpression:    awsString("#k = :k"),
			ExpressionAttributeNames:  map[string]string{"#k": "user_id"},
			ExpressionAttributeValues: map[string]types.AttributeValue{":k": &types.AttributeValueMemberS{Value: userID}},
			ScanIndexForward:          awsBool(false),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("query user orders: %w", err)
		}
		var batch []Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		out = append(out, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		startKey = page.LastEvaluatedKey
	}
}

// ListAll scans the whole table. Admin only.
func (s *Store) ListAll(ctx context.Context) ([]Order, error) {
	var out []Order
	var startKey map[string]types.AttributeValue
	for {
		page, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:         &s.tableName,
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scan orders: %w", err)
		}
		var batch []Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		out = append(out, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		startKey = page.LastEvaluatedKey
	}
}

// UpdateStatus conditionally moves the fulfillment status from one of expected to next.
func (s *Store) UpdateStatus(ctx context.Context, orderID string, expected []Status, next Status, trackingID string) error {
	u := newUpdate(s.nowFunc())
	u.set("#s", "status", ":new", &types.AttributeValueMemberS{Value: string(next)})
	if trackingID != "" {
		u.set("#tid", "tracking_id", ":tid", &types.AttributeValueMemberS{Value: trackingID})
	}
	u.in("#s", "status", stringsOf(expected))
	return s.apply(ctx, orderID, u)
}

// UpdatePayment conditionally moves the payment status from one of expected to
// upd.Status and writes the gateway fields carried by upd. A payment id that is
// already stored can only be rewritten with the same value.
func (s *Store) UpdatePayment(ctx context.Context, orderID string, expected []PaymentStatus, upd PaymentUpdate) error {
	u := newUpdate(s.nowFunc())
	u.set("#ps", "payment_status", ":ps", &types.AttributeValueMemberS{Value: string(upd.Status)})
	u.setString("#goid", "gateway_order_id", ":goid", upd.GatewayOrderID)
	u.setString("#pid", "gateway_payment_id", ":pid", upd.PaymentID)
	u.setString("#sig", "gateway_signature", ":sig", upd.Signature)
	u.setString("#rid", "gateway_refund_id", ":rid", upd.RefundID)
	u.setString("#fr", "payment_failure_reason", ":fr", upd.FailureReason)
	if err := u.setTime("#pa", "paid_at", ":pa", upd.PaidAt); err != nil {
		return err
	}
	if err := u.setTime("#ra", "refunded_at", ":ra", upd.RefundedAt); err != nil {
		return err
	}
	u.in("#ps", "payment_status", stringsOf(expected))
	if upd.PaymentID != "" {
		u.conds = append(u.conds, "(attribute_not_exists(#pid) OR #pid = :pid)")
	}
	return s.apply(ctx, orderID, u)
}

// AttachGatewayOrder binds the order's gateway order. It only succeeds once.
func (s *Store) AttachGatewayOrder(ctx context.Context, orderID, gatewayOrderID string, expected []PaymentStatus) error {
	u := newUpdate(s.nowFunc())
	u.set("#goid", "gateway_order_id", ":goid", &types.AttributeValueMemberS{Value: gatewayOrderID})
	u.in("#ps", "payment_status", stringsOf(expected))
	u.conds = append(u.conds, "attribute_not_exists(#goid)")
	return s.apply(ctx, orderID, u)
}

func (s *Store) apply(ctx context.Context, orderID string, u *update) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                           &s.tableName,
		Key:                                 orderKey(orderID),
		UpdateExpression:                    awsString(u.expression()),
		ConditionExpression:                 awsString(u.condition()),
		ExpressionAttributeNames:            u.names,
		ExpressionAttributeValues:           u.values,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			// ALL_OLD comes back empty when the key did not exist
			if len(ccf.Item) == 0 {
				return ErrOrderNotFound
			}
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

func (s *Store) queryOne(ctx context.Context, index, attr, value string) (*Order, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:                 &s.tableName,
		IndexName:                 awsString(index),
		KeyConditionExpression:    awsString("#k = :k"),
		ExpressionAttributeNames:  map[string]string{"#k": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":k": &types.AttributeValueMemberS{Value: value}},
		Limit:                     awsInt32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", index, err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Items[0], &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// update accumulates a SET expression and its condition.
type update struct {
	sets   []string
	conds  []string
	names  map[string]string
	values map[string]types.AttributeValue
}

func newUpdate(now time.Time) *update {
	u := &update{
		names:  map[string]string{"#ua": "updated_at"},
		values: map[string]types.AttributeValue{":ua": &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339Nano)}},
		conds:  []string{"attribute_exists(order_id)"},
	}
	u.sets = append(u.sets, "#ua = :ua")
	return u
}

func (u *update) set(name, attr, placeholder string, v types.AttributeValue) {
	u.names[name] = attr
	u.values[placeholder] = v
	u.sets = append(u.sets, name+" = "+placeholder)
}

func (u *update) setString(name, attr, placeholder, v string) {
	if v == "" {
		return
	}
	u.set(name, attr, placeholder, &types.AttributeValueMemberS{Value: v})
}

func (u *update) setTime(name, attr, placeholder string, t *time.Time) error {
	if t == nil {
		return nil
	}
	av, err := attributevalue.Marshal(*t)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", attr, err)
	}
	u.set(name, attr, placeholder, av)
	return nil
}

// in adds "name IN (:e0, :e1, ...)" to the condition.
func (u *update) in(name, attr string, expected []string) {
	u.names[name] = attr
	placeholders := make([]string, 0, len(expected))
	for i, v := range expected {
		p := fmt.Sprintf(":e%d", i)
		u.values[p] = &types.AttributeValueMemberS{Value: v}
		placeholders = append(placeholders, p)
	}
	u.conds = append(u.conds, fmt.Sprintf("%s IN (%s)", name, strings.Join(placeholders, ", ")))
}

func (u *update) expression() string { return "SET " + strings.Join(u.sets, ", ") }
func (u *update) condition() string  { return strings.Join(u.conds, " AND ") }

func orderKey(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

func stringsOf[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
func awsInt32(i int32) *int32    { return &i }

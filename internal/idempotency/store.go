package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/go-storefront-orders/internal/aws"
)

// DefaultTTL is how long a key is remembered when no window is configured.
const DefaultTTL = 48 * time.Hour

// claimCondition lets a key be taken when it is new, when its previous owner
// failed, or when it outlived its TTL but has not been swept yet.
const claimCondition = "attribute_not_exists(idempotency_key) OR #s = :failed OR expires_at < :now"

// Store keeps idempotency keys in a DynamoDB table keyed by idempotency_key,
// with expires_at as the table's TTL attribute.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration
	nowFunc   func() time.Time
}

func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	if ttlWindow <= 0 {
		ttlWindow = DefaultTTL
	}
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

var (
	// ErrKeyReused is returned when an Idempotency-Key is presented again with
	// a different request body.
	ErrKeyReused = errors.New("idempotency key reused with a different request")
	// ErrUnknownKey is returned when settling a key nobody claimed.
	ErrUnknownKey = errors.New("idempotency key not claimed")
)

// Claim takes ownership of key with status IN_PROGRESS.
// Returns (true, nil) if the caller now owns the key.
// Returns (false, nil) if another delivery holds it (in progress or done).
func (s *Store) Claim(ctx context.Context, key, orderID string) (bool, error) {
	return s.put(ctx, IdempotencyRecord{IdempotencyKey: key, OrderID: orderID})
}

// Reserve claims key for an HTTP request identified by requestHash. When the
// key is already held it returns the existing record so the caller can replay
// the stored response; a different requestHash yields ErrKeyReused.
// A nil record with a nil error means the caller owns the key.
func (s *Store) Reserve(ctx context.Context, key, requestHash string) (*IdempotencyRecord, error) {
	created, err := s.put(ctx, IdempotencyRecord{IdempotencyKey: key, RequestHash: requestHash})
	if err != nil {
		return nil, err
	}
	if created {
		return nil, nil
	}
	rec, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		// swept between the put and the read; treat as in progress
		return &IdempotencyRecord{IdempotencyKey: key, Status: StatusInProgress, RequestHash: requestHash}, nil
	}
	if rec.RequestHash != "" && rec.RequestHash != requestHash {
		return rec, ErrKeyReused
	}
	return rec, nil
}

func (s *Store) put(ctx context.Context, rec IdempotencyRecord) (bool, error) {
	now := s.nowFunc()
	rec.Status = StatusInProgress
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.ExpiresAt = now.Add(s.ttlWindow).Unix()

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}

	input := &dyn.PutItemInput{
		TableName:                &s.tableName,
		Item:                     item,
		ConditionExpression:      awsString(claimCondition),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed": &types.AttributeValueMemberS{Value: StatusFailed},
			":now":    &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	}

	_, err = s.client.PutItem(ctx, input)
	switch {
	case isConditionFailure(err):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("claim %s: %w", rec.IdempotencyKey, err)
	}
	return true, nil
}

// Get retrieves an idempotency record by key. If not found or expired, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*IdempotencyRecord, error) {
	input := &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: key},
		},
		ConsistentRead: awsBool(true),
	}
	out, err := s.client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec IdempotencyRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	if rec.Expired(s.nowFunc()) {
		return nil, nil
	}
	return &rec, nil
}

// MarkDone records the final response so later requests with the same key
// can replay it.
func (s *Store) MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error {
	return s.settle(ctx, key, StatusDone, map[string]types.AttributeValue{
		"response_body":   &types.AttributeValueMemberS{Value: responseBody},
		"response_status": &types.AttributeValueMemberN{Value: strconv.Itoa(responseStatus)},
	})
}

// MarkFailed releases key so the next delivery may claim it again.
func (s *Store) MarkFailed(ctx context.Context, key, note string) error {
	return s.settle(ctx, key, StatusFailed, map[string]types.AttributeValue{
		"note": &types.AttributeValueMemberS{Value: note},
	})
}

// settle moves an existing record to status and writes fields alongside it.
func (s *Store) settle(ctx context.Context, key, status string, fields map[string]types.AttributeValue) error {
	names := map[string]string{"#s": "status", "#ua": "updated_at"}
	values := map[string]types.AttributeValue{
		":st": &types.AttributeValueMemberS{Value: status},
		":ua": &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
	}
	sets := []string{"#s = :st", "#ua = :ua"}
	i := 0
	for attr, v := range fields {
		name, placeholder := fmt.Sprintf("#f%d", i), fmt.Sprintf(":f%d", i)
		names[name] = attr
		values[placeholder] = v
		sets = append(sets, name+" = "+placeholder)
		i++
	}

	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: key},
		},
		UpdateExpression:          awsString("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       awsString("attribute_exists(idempotency_key)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if isConditionFailure(err) {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if err != nil {
		return fmt.Errorf("mark %s %s: %w", key, status, err)
	}
	return nil
}

func isConditionFailure(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException"
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }

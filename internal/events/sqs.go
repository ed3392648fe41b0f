package events

import (
	"context"
	"encoding/json"
	"fmt"
)

// sender is satisfied by *aws.Publisher.
type sender interface {
	Send(ctx context.Context, body string, attributes map[string]string) error
}

// SQSPublisher writes events to an SQS queue.
type SQSPublisher struct {
	queue sender
}

// NewSQSPublisher wraps an SQS sender.
func NewSQSPublisher(queue sender) *SQSPublisher {
	return &SQSPublisher{queue: queue}
}

func (p *SQSPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.queue.Send(ctx, string(body), map[string]string{
		"event_type": string(ev.Type),
		"order_id":   ev.OrderID,
	})
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/go-storefront-orders/internal/payments"
)

// EventApplier applies an authenticated gateway event.
type EventApplier interface {
	ApplyEvent(ctx context.Context, ev payments.WebhookEvent) (payments.Outcome, error)
}

// Processor drains webhook deliveries that the API queued after verifying
// their signature.
type Processor struct {
	applier EventApplier
	logger  *slog.Logger
}

func NewProcessor(applier EventApplier, logger *slog.Logger) *Processor {
	return &Processor{applier: applier, logger: logger.With("component", "webhook-worker")}
}

// Handle processes an SQS batch. Records that fail are reported back as batch
// item failures so only they are redelivered; after the queue's receive limit
// they land in the DLQ.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.Error("webhook message failed", "message_id", rec.MessageId, "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	if n := len(resp.BatchItemFailures); n > 0 {
		p.logger.Warn("batch finished with failures", "failed", n, "total", len(ev.Records))
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var ev payments.WebhookEvent
	if err := json.Unmarshal([]byte(rec.Body), &ev); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}

	eventID := ""
	if attr, ok := rec.MessageAttributes["event_id"]; ok && attr.StringValue != nil {
		eventID = *attr.StringValue
	}

	outcome, err := p.applier.ApplyEvent(ctx, ev)
	if err != nil {
		return fmt.Errorf("apply %s: %w", ev.Event, err)
	}
	p.logger.Info("webhook applied", "message_id", rec.MessageId, "event_id", eventID,
		"event", ev.Event, "outcome", outcome)
	return nil
}

package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Routing attributes on FIFO queues. order_id groups messages so one order's
// events stay ordered; event_id deduplicates redeliveries within the SQS window.
const (
	groupAttribute = "order_id"
	dedupAttribute = "event_id"
	fallbackGroup  = "orders"
)

// Publisher sends messages to one SQS queue, standard or FIFO.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
	fifo     bool
}

func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
	}
}

// Send enqueues body with attributes as String message attributes. Empty
// values are dropped since SQS rejects them.
func (p *Publisher) Send(ctx context.Context, body string, attributes map[string]string) error {
	input := &sqs.SendMessageInput{
		QueueUrl:          &p.QueueURL,
		MessageBody:       &body,
		MessageAttributes: messageAttributes(attributes),
	}
	if p.fifo {
		group := attributes[groupAttribute]
		if group == "" {
			group = fallbackGroup
		}
		input.MessageGroupId = &group
		if dedup := attributes[dedupAttribute]; dedup != "" {
			input.MessageDeduplicationId = &dedup
		}
	}

	if _, err := p.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message to %s: %w", p.QueueURL, err)
	}
	return nil
}

func messageAttributes(in map[string]string) map[string]sqstypes.MessageAttributeValue {
	out := map[string]sqstypes.MessageAttributeValue{}
	for k, v := range in {
		if v == "" {
			continue
		}
		out[k] = sqstypes.MessageAttributeValue{
			DataType:    awsString("String"),
			StringValue: awsString(v),
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func awsString(s string) *string { return &s }

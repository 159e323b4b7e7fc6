// Package queue dispatches billing notices to the CRM's notification worker
// over SQS. This service decides that a notice is owed; the worker owns
// templates, localization, and delivery.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"brokerly/internal/types"
)

// SQSSender abstracts SendMessage for testability. Production code passes the
// *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// NoticeTrigger serializes BillingNoticeMessages onto the notices queue.
type NoticeTrigger struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

func NewNoticeTrigger(client SQSSender, queueURL string, logger *slog.Logger) *NoticeTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoticeTrigger{client: client, queueURL: queueURL, logger: logger}
}

// Enqueue sends one notice. The notice kind rides along as a message
// attribute so workers can filter without deserializing the body.
func (t *NoticeTrigger) Enqueue(ctx context.Context, msg types.BillingNoticeMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal billing notice: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(t.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"notice_kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.Kind)),
			},
		},
	}

	if _, err := t.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send billing notice to %s: %w", t.queueURL, err)
	}

	t.logger.InfoContext(ctx, "billing notice enqueued",
		slog.String("message_id", msg.MessageID),
		slog.String("trace_id", msg.TraceID),
		slog.String("account_id", msg.AccountID),
		slog.String("notice_kind", string(msg.Kind)),
	)

	return nil
}

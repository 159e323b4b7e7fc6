package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"brokerly/internal/types"
)

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{}, nil
}

func TestNoticeTrigger_Enqueue(t *testing.T) {
	client := &fakeSQS{}
	trigger := NewNoticeTrigger(client, "https://sqs.example/billing-notices", nil)

	grace := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	msg := types.BillingNoticeMessage{
		MessageID:   "msg_1",
		TraceID:     "req_1",
		AccountID:   "acct_1",
		Kind:        types.NoticePaymentFailed,
		GraceEndsAt: &grace,
		OccurredAt:  time.Now().UTC(),
	}

	if err := trigger.Enqueue(context.Background(), msg); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if len(client.inputs) != 1 {
		t.Fatalf("expected 1 SendMessage call, got %d", len(client.inputs))
	}
	input := client.inputs[0]
	if *input.QueueUrl != "https://sqs.example/billing-notices" {
		t.Errorf("unexpected queue URL %s", *input.QueueUrl)
	}

	attr, ok := input.MessageAttributes["notice_kind"]
	if !ok || *attr.StringValue != string(types.NoticePaymentFailed) {
		t.Error("notice_kind attribute missing or wrong")
	}

	var decoded types.BillingNoticeMessage
	if err := json.Unmarshal([]byte(*input.MessageBody), &decoded); err != nil {
		t.Fatalf("message body is not valid JSON: %v", err)
	}
	if decoded.AccountID != "acct_1" || decoded.Kind != types.NoticePaymentFailed {
		t.Errorf("round-tripped notice mismatch: %+v", decoded)
	}
	if decoded.GraceEndsAt == nil || !decoded.GraceEndsAt.Equal(grace) {
		t.Error("grace end date lost in serialization")
	}
}

func TestNoticeTrigger_SendFailure(t *testing.T) {
	client := &fakeSQS{err: errors.New("AWS.SimpleQueueService.NonExistentQueue")}
	trigger := NewNoticeTrigger(client, "https://sqs.example/missing", nil)

	err := trigger.Enqueue(context.Background(), types.BillingNoticeMessage{
		MessageID: "msg_1",
		AccountID: "acct_1",
		Kind:      types.NoticeSubscriptionExpired,
	})
	if err == nil {
		t.Fatal("expected error from SQS failure")
	}
}

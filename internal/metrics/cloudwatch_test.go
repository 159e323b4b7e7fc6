package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
)

type fakeCW struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeCW) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestCollector_RecordRequest(t *testing.T) {
	client := &fakeCW{}
	c := NewCollector(client, "Brokerly/Billing", nil)

	c.RecordRequest("POST", "/v1/webhooks/billing", "200", 42*time.Millisecond)

	if len(client.inputs) != 1 {
		t.Fatalf("expected 1 PutMetricData call, got %d", len(client.inputs))
	}
	input := client.inputs[0]
	if *input.Namespace != "Brokerly/Billing" {
		t.Errorf("unexpected namespace %s", *input.Namespace)
	}
	if len(input.MetricData) != 2 {
		t.Fatalf("expected latency+count datums, got %d", len(input.MetricData))
	}
	if *input.MetricData[0].MetricName != "RequestLatency" {
		t.Errorf("unexpected metric %s", *input.MetricData[0].MetricName)
	}
	if *input.MetricData[0].Value != 42 {
		t.Errorf("latency not in milliseconds: %v", *input.MetricData[0].Value)
	}
}

func TestCollector_RecordEvent(t *testing.T) {
	client := &fakeCW{}
	c := NewCollector(client, "Brokerly/Billing", nil)

	c.RecordEvent("subscription_created", "accepted")

	if len(client.inputs) != 1 {
		t.Fatalf("expected 1 PutMetricData call, got %d", len(client.inputs))
	}
	datum := client.inputs[0].MetricData[0]
	if *datum.MetricName != "BillingEvent" {
		t.Errorf("unexpected metric %s", *datum.MetricName)
	}
	if len(datum.Dimensions) != 2 {
		t.Fatalf("expected Kind+Outcome dimensions, got %d", len(datum.Dimensions))
	}
}

func TestCollector_PublishFailureIsSwallowed(t *testing.T) {
	client := &fakeCW{err: errors.New("throttled")}
	c := NewCollector(client, "Brokerly/Billing", nil)

	// Must not panic or propagate.
	c.RecordEvent("subscription_created", "accepted")
	c.RecordRequest("GET", "/health", "200", time.Millisecond)
}

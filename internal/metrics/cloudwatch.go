// Package metrics publishes request and event telemetry to CloudWatch.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// CloudWatchClient abstracts PutMetricData for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Collector emits the service's metrics:
//
//   - RequestLatency / RequestCount: Dims {Method, Endpoint, Status}
//   - BillingEvent: Dims {Kind, Outcome} -- one per processed delivery
//
// Publishing is fire-and-forget: a CloudWatch failure is logged and dropped,
// never surfaced to the request path.
type Collector struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

func NewCollector(client CloudWatchClient, namespace string, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{client: client, namespace: namespace, logger: logger}
}

// RecordRequest publishes latency and count for one HTTP request.
func (c *Collector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		{Name: aws.String("Method"), Value: aws.String(method)},
		{Name: aws.String("Endpoint"), Value: aws.String(endpoint)},
		{Name: aws.String("Status"), Value: aws.String(status)},
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(c.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String("RequestLatency"),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: dims,
			},
			{
				MetricName: aws.String("RequestCount"),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
		},
	}

	// Request metrics are emitted after the response is written; use a
	// background context so client disconnects cannot cancel the publish.
	if _, err := c.client.PutMetricData(context.Background(), input); err != nil {
		c.logger.Error("failed to publish request metrics",
			slog.String("endpoint", endpoint),
			slog.Any("error", err),
		)
	}
}

// RecordEvent counts one processed webhook event by kind and outcome.
func (c *Collector) RecordEvent(kind, outcome string) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(c.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String("BillingEvent"),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String("Kind"), Value: aws.String(kind)},
					{Name: aws.String("Outcome"), Value: aws.String(outcome)},
				},
			},
		},
	}

	if _, err := c.client.PutMetricData(context.Background(), input); err != nil {
		c.logger.Error("failed to publish event metric",
			slog.String("kind", kind),
			slog.String("outcome", outcome),
			slog.Any("error", err),
		)
	}
}

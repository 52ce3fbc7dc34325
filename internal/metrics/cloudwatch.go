// Package metrics emits pipeline observability counters to CloudWatch.
package metrics

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"pulsefeed/internal/types"
)

// Metric and dimension names.
const (
	metricEventProcessed = "EventProcessed"
	metricWindowFlushed  = "WindowFlushed"
	metricFlushLatency   = "FlushLatency"

	dimPriority = "Priority"
	dimOutcome  = "Outcome"
)

// PipelineMetrics is the instrumentation surface consumed by the orchestrator
// and flush loop. Implementations must never fail the caller.
type PipelineMetrics interface {
	// RecordEvent counts one consumed event with its priority and terminal
	// outcome (sent, buffered, filtered, dropped).
	RecordEvent(ctx context.Context, priority types.Priority, outcome string)
	// RecordFlush counts windows emitted by one flush cycle and its duration.
	RecordFlush(ctx context.Context, windows int, duration time.Duration)
}

// CloudWatchClient abstracts the PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Compile-time assertions.
var (
	_ PipelineMetrics = (*CloudWatchPipelineMetrics)(nil)
	_ PipelineMetrics = (*NopMetrics)(nil)
)

// CloudWatchPipelineMetrics publishes pipeline metrics to a CloudWatch
// namespace. Publish failures are logged and swallowed.
type CloudWatchPipelineMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCloudWatchPipelineMetrics creates a publisher for the given namespace.
func NewCloudWatchPipelineMetrics(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchPipelineMetrics {
	return &CloudWatchPipelineMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

func (m *CloudWatchPipelineMetrics) RecordEvent(ctx context.Context, priority types.Priority, outcome string) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricEventProcessed),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(dimPriority),
						Value: aws.String(string(priority)),
					},
					{
						Name:  aws.String(dimOutcome),
						Value: aws.String(outcome),
					},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record event metric",
			"error", err.Error(),
			"priority", string(priority),
			"outcome", outcome,
		)
	}
}

func (m *CloudWatchPipelineMetrics) RecordFlush(ctx context.Context, windows int, duration time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricWindowFlushed),
				Value:      aws.Float64(float64(windows)),
				Unit:       cwtypes.StandardUnitCount,
			},
			{
				MetricName: aws.String(metricFlushLatency),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record flush metric",
			"error", err.Error(),
			"windows", windows,
			"duration_ms", duration.Milliseconds(),
		)
	}
}

// NopMetrics discards all measurements. Used when metrics are disabled.
type NopMetrics struct{}

func (NopMetrics) RecordEvent(context.Context, types.Priority, string) {}

func (NopMetrics) RecordFlush(context.Context, int, time.Duration) {}

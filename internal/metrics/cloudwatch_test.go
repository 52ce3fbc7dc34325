package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"pulsefeed/internal/logging"
	"pulsefeed/internal/types"
)

type stubCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (s *stubCloudWatch) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	s.inputs = append(s.inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, s.err
}

func dimValue(d []cwtypes.Dimension, name string) string {
	for _, dim := range d {
		if *dim.Name == name {
			return *dim.Value
		}
	}
	return ""
}

func TestRecordEvent(t *testing.T) {
	cw := &stubCloudWatch{}
	m := NewCloudWatchPipelineMetrics(cw, "Pulsefeed", logging.NewNop())

	m.RecordEvent(context.Background(), types.PriorityCritical, "sent")

	if len(cw.inputs) != 1 {
		t.Fatalf("PutMetricData called %d times, want 1", len(cw.inputs))
	}
	input := cw.inputs[0]
	if *input.Namespace != "Pulsefeed" {
		t.Errorf("namespace = %s", *input.Namespace)
	}
	datum := input.MetricData[0]
	if *datum.MetricName != "EventProcessed" || *datum.Value != 1 {
		t.Errorf("datum = %+v", datum)
	}
	if dimValue(datum.Dimensions, "Priority") != "CRITICAL" {
		t.Error("missing Priority dimension")
	}
	if dimValue(datum.Dimensions, "Outcome") != "sent" {
		t.Error("missing Outcome dimension")
	}
}

func TestRecordFlush(t *testing.T) {
	cw := &stubCloudWatch{}
	m := NewCloudWatchPipelineMetrics(cw, "Pulsefeed", logging.NewNop())

	m.RecordFlush(context.Background(), 7, 250*time.Millisecond)

	if len(cw.inputs) != 1 {
		t.Fatalf("PutMetricData called %d times, want 1", len(cw.inputs))
	}
	data := cw.inputs[0].MetricData
	if len(data) != 2 {
		t.Fatalf("published %d data points, want 2", len(data))
	}
	if *data[0].Value != 7 {
		t.Errorf("window count = %f, want 7", *data[0].Value)
	}
	if *data[1].Value != 250 {
		t.Errorf("latency ms = %f, want 250", *data[1].Value)
	}
}

func TestRecordEvent_PublishFailureIsSwallowed(t *testing.T) {
	cw := &stubCloudWatch{err: errors.New("throttled")}
	m := NewCloudWatchPipelineMetrics(cw, "Pulsefeed", logging.NewNop())

	// Must not panic or propagate.
	m.RecordEvent(context.Background(), types.PriorityLow, "dropped")
}

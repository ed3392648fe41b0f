package aws

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// MetricsRecorder emits count metrics to CloudWatch. Failures are logged and
// swallowed; a metric must never fail a payment request.
type MetricsRecorder struct {
	CW        CloudWatchAPI
	Namespace string
	Logger    *slog.Logger
	nowFunc   func() time.Time
}

// NewMetricsRecorder returns a recorder publishing under namespace.
func NewMetricsRecorder(cw CloudWatchAPI, namespace string, logger *slog.Logger) *MetricsRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetricsRecorder{
		CW:        cw,
		Namespace: namespace,
		Logger:    logger.With("component", "metrics"),
		nowFunc:   time.Now,
	}
}

// Count records a single occurrence of name.
func (m *MetricsRecorder) Count(ctx context.Context, name string) {
	if m == nil || m.CW == nil {
		return
	}
	one := 1.0
	ts := m.nowFunc()
	_, err := m.CW.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: awsString(m.Namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: awsString(name),
				Value:      &one,
				Unit:       cwtypes.StandardUnitCount,
				Timestamp:  &ts,
			},
		},
	})
	if err != nil {
		m.Logger.Warn("put metric data failed", "metric", name, "error", err)
	}
}

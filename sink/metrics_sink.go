package sink

import (
	"code-lab/contract"
	"code-lab/domain/event"
	"code-lab/observability"
	"context"
)

var _ contract.EventSink = (*MetricsSink)(nil)

// MetricsSink counts broadcast events by name.
type MetricsSink struct {
	metrics *observability.Metrics
}

func NewMetricsSink(metrics *observability.Metrics) *MetricsSink {
	return &MetricsSink{metrics: metrics}
}

func (m *MetricsSink) Consume(_ context.Context, e event.DomainEvent) error {
	m.metrics.IncEvent(e.Name())
	return nil
}

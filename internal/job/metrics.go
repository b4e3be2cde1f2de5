package job

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type dispatcherMetrics struct {
	applied   metric.Int64Counter
	skipped   metric.Int64Counter
	retried   metric.Int64Counter
	failed    metric.Int64Counter
	recovered metric.Int64Counter
	latency   metric.Float64Histogram
}

// newDispatcherMetrics provider 为 nil 时使用全局 provider，未配置时为 noop
func newDispatcherMetrics(provider metric.MeterProvider) (dispatcherMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter("crawlsync.outbox.dispatcher")

	var (
		m   dispatcherMetrics
		err error
	)

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.applied, "outbox.events.applied", "Number of outbox events applied to the search index"},
		{&m.skipped, "outbox.events.skipped", "Number of outbox events skipped as superseded"},
		{&m.retried, "outbox.events.retried", "Number of outbox events scheduled for retry"},
		{&m.failed, "outbox.events.failed", "Number of outbox events moved to FAILED"},
		{&m.recovered, "outbox.claims.recovered", "Number of stale claims returned to the queue"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit("{event}"))
		if err != nil {
			return dispatcherMetrics{}, fmt.Errorf("create %s counter: %w", c.name, err)
		}
	}

	m.latency, err = meter.Float64Histogram(
		"outbox.dispatch.latency",
		metric.WithDescription("Time taken per dispatch cycle"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return dispatcherMetrics{}, fmt.Errorf("create outbox.dispatch.latency histogram: %w", err)
	}
	return m, nil
}

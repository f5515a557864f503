package statsd

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/statsagg/statsagg"
)

// countingHandler records dispatched metrics for inspection.
type countingHandler struct {
	mu      sync.Mutex
	metrics []statsagg.Metric
}

func (ch *countingHandler) DispatchMetric(m *statsagg.Metric) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.metrics = append(ch.metrics, *m)
	return nil
}

func (ch *countingHandler) Metrics() []statsagg.Metric {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	metrics := make([]statsagg.Metric, len(ch.metrics))
	copy(metrics, ch.metrics)
	return metrics
}

func silentLogLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(0), 0)
}

// countingBackend records every snapshot it is asked to send and reports the
// errors it was configured with.
type countingBackend struct {
	mu        sync.Mutex
	snapshots []*statsagg.MetricSnapshot
	errs      []error
}

func (cb *countingBackend) Name() string {
	return "counting"
}

func (cb *countingBackend) SendMetricsAsync(ctx context.Context, snapshot *statsagg.MetricSnapshot, callback statsagg.SendCallback) {
	cb.mu.Lock()
	cb.snapshots = append(cb.snapshots, snapshot)
	cb.mu.Unlock()
	callback(cb.errs)
}

func (cb *countingBackend) Snapshots() []*statsagg.MetricSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	snapshots := make([]*statsagg.MetricSnapshot, len(cb.snapshots))
	copy(snapshots, cb.snapshots)
	return snapshots
}

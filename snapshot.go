package statsagg

// FlushedMetric is one finished value derived from a metric record at flush
// time. Counters and gauges carry their raw accumulator, timers the mean of
// the window's samples (NaN when the window had none), sets the cardinality
// of the member set.
type FlushedMetric struct {
	Name  string
	Type  MetricType
	Value float64
}

// MetricSnapshot is the point-in-time result of a flush cycle, handed to every
// backend. It is owned by the flusher; backends must not retain it past the
// SendMetricsAsync callback.
type MetricSnapshot struct {
	Metrics []FlushedMetric
}

// NumStats returns the number of flushed values in the snapshot.
func (s *MetricSnapshot) NumStats() int {
	return len(s.Metrics)
}

// Each iterates over all flushed values.
func (s *MetricSnapshot) Each(f func(*FlushedMetric)) {
	for i := range s.Metrics {
		f(&s.Metrics[i])
	}
}

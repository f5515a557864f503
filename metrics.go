// Package statsagg holds the types shared between the aggregation core, the
// backends and the agent binary.
package statsagg

import (
	"fmt"
)

// MetricType is an enumeration of all the possible types of Metric.
type MetricType byte

const (
	_ = iota
	// COUNTER is statsd counter type
	COUNTER MetricType = iota
	// TIMER is statsd timer type
	TIMER
	// GAUGE is statsd gauge type
	GAUGE
	// SET is statsd set type
	SET
)

func (m MetricType) String() string {
	switch m {
	case SET:
		return "set"
	case GAUGE:
		return "gauge"
	case TIMER:
		return "timer"
	case COUNTER:
		return "counter"
	}
	return "unknown"
}

// Tag returns the one-character kind tag used to build store keys. The tag is
// part of the key so that a counter and a gauge sharing a user-supplied name
// stay distinct entries.
func (m MetricType) Tag() byte {
	switch m {
	case SET:
		return 's'
	case GAUGE:
		return 'g'
	case TIMER:
		return 't'
	case COUNTER:
		return 'c'
	}
	return '?'
}

// Metric represents a single decoded statsd sample.
type Metric struct {
	Name        string     // The name of the metric
	Value       int64      // The numeric value (counter delta, gauge value, timer sample)
	StringValue string     // The member string for SET metrics
	Rate        float64    // The client-side sampling rate, (0.0, 1.0]
	Relative    bool       // GAUGE only: value is a signed delta, not an absolute level
	Type        MetricType // The type of metric
}

func (m *Metric) String() string {
	if m.Type == SET {
		return fmt.Sprintf("{%s, %s, %q}", m.Type, m.Name, m.StringValue)
	}
	return fmt.Sprintf("{%s, %s, %d}", m.Type, m.Name, m.Value)
}

// StoreKey builds the composite store key for the metric: kind tag, colon, name.
func (m *Metric) StoreKey() string {
	return string(m.Type.Tag()) + ":" + m.Name
}

// StripStoreKey removes the kind tag prefix from a store key, recovering the
// user-supplied metric name.
func StripStoreKey(key string) string {
	if len(key) > 2 && key[1] == ':' {
		return key[2:]
	}
	return key
}

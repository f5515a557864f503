package graphite

import (
	"math"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statsagg/statsagg"
)

func TestNewClientFromViperDefaults(t *testing.T) {
	t.Parallel()
	b, err := NewClientFromViper(viper.New())
	require.NoError(t, err)
	client := b.(*Client)
	assert.Equal(t, DefaultAddress, client.address)
	assert.Equal(t, "stats.counters", client.counterNamespace)
	assert.Equal(t, "stats.timers", client.timerNamespace)
	assert.Equal(t, "stats.gauges", client.gaugeNamespace)
	assert.Equal(t, "stats.sets", client.setNamespace)
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()
	_, err := NewClient("", DefaultDialTimeout, DefaultWriteTimeout, "", "", "", "", "")
	require.Error(t, err)
	_, err = NewClient(DefaultAddress, 0, DefaultWriteTimeout, "", "", "", "", "")
	require.Error(t, err)
	_, err = NewClient(DefaultAddress, DefaultDialTimeout, -1, "", "", "", "", "")
	require.Error(t, err)
}

func TestPreparePayload(t *testing.T) {
	t.Parallel()
	b, err := NewClient(DefaultAddress, DefaultDialTimeout, DefaultWriteTimeout,
		DefaultGlobalPrefix, DefaultPrefixCounter, DefaultPrefixTimer, DefaultPrefixGauge, DefaultPrefixSet)
	require.NoError(t, err)
	client := b.(*Client)

	snapshot := &statsagg.MetricSnapshot{
		Metrics: []statsagg.FlushedMetric{
			{Name: "page.views", Type: statsagg.COUNTER, Value: 5},
			{Name: "latency", Type: statsagg.TIMER, Value: 250.5},
			{Name: "temp", Type: statsagg.GAUGE, Value: -3},
			{Name: "users", Type: statsagg.SET, Value: 2},
			{Name: "idle.timer", Type: statsagg.TIMER, Value: math.NaN()},
		},
	}
	ts := time.Unix(1234567890, 0)

	buf := client.preparePayload(snapshot, ts)
	expected := "stats.counters.page.views 5 1234567890\n" +
		"stats.timers.latency 250.5 1234567890\n" +
		"stats.gauges.temp -3 1234567890\n" +
		"stats.sets.users 2 1234567890\n"
	assert.Equal(t, expected, buf.String())
}

func TestNormalizeMetricName(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"plain.name":   "plain.name",
		"with space":   "with_space",
		"s l/a s h":    "s_l-a_s_h",
		"quotes\"here": "quoteshere",
		"under_score":  "under_score",
	}
	for input, expected := range tests {
		assert.Equal(t, expected, normalizeMetricName(input), "input: %q", input)
	}
}

func TestJoinPrefix(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "a.b", joinPrefix("a", "b"))
	assert.Equal(t, "b", joinPrefix("", "b"))
	assert.Equal(t, "a", joinPrefix("a", ""))
}

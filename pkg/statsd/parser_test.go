package statsd

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statsagg/statsagg"
	"github.com/statsagg/statsagg/internal/fixtures"
)

func newTestParser(t *testing.T) (*DatagramParser, *countingHandler) {
	ch := &countingHandler{}
	return NewDatagramParser(ch, statsagg.DefaultMaxNameLen, silentLogLimiter(), fixtures.NewTestLogger(t)), ch
}

func TestParseEmptyDatagram(t *testing.T) {
	t.Parallel()
	input := [][]byte{
		{},
		{'\n'},
		{'\n', '\n'},
		{'\r', '\n'},
	}
	for pos, inp := range input {
		inp := inp
		t.Run(strconv.Itoa(pos), func(t *testing.T) {
			t.Parallel()
			dp, ch := newTestParser(t)
			dp.HandleDatagram(inp)
			assert.Zero(t, len(ch.Metrics()), ch.Metrics())
			assert.Zero(t, dp.GetStats().BadLines)
		})
	}
}

func TestParseDatagram(t *testing.T) {
	t.Parallel()
	input := map[string][]statsagg.Metric{
		"f:2|c": {
			{Name: "f", Value: 2, Rate: 1, Type: statsagg.COUNTER},
		},
		"f:2|c\n": {
			{Name: "f", Value: 2, Rate: 1, Type: statsagg.COUNTER},
		},
		"f:2|c\r\nx:3|c\n": {
			{Name: "f", Value: 2, Rate: 1, Type: statsagg.COUNTER},
			{Name: "x", Value: 3, Rate: 1, Type: statsagg.COUNTER},
		},
		"f:10|c|@0.1": {
			{Name: "f", Value: 100, Rate: 0.1, Type: statsagg.COUNTER},
		},
		"f:10|c|@0.3": {
			// 10/0.3 = 33.33..., truncated toward zero
			{Name: "f", Value: 33, Rate: 0.3, Type: statsagg.COUNTER},
		},
		"f:100|g": {
			{Name: "f", Value: 100, Rate: 1, Type: statsagg.GAUGE},
		},
		"f:+10|g": {
			{Name: "f", Value: 10, Rate: 1, Relative: true, Type: statsagg.GAUGE},
		},
		"f:-10|g": {
			{Name: "f", Value: -10, Rate: 1, Relative: true, Type: statsagg.GAUGE},
		},
		"f:250|ms": {
			{Name: "f", Value: 250, Rate: 1, Type: statsagg.TIMER},
		},
		"f:-5|ms": {
			{Name: "f", Value: -5, Rate: 1, Type: statsagg.TIMER},
		},
		"f:abc|s": {
			{Name: "f", StringValue: "abc", Rate: 1, Type: statsagg.SET},
		},
		// the name runs to the last colon
		"host:port:1|c": {
			{Name: "host:port", Value: 1, Rate: 1, Type: statsagg.COUNTER},
		},
	}
	for inp, expected := range input {
		inp := inp
		expected := expected
		t.Run(inp, func(t *testing.T) {
			t.Parallel()
			dp, ch := newTestParser(t)
			dp.HandleDatagram([]byte(inp))
			assert.Equal(t, expected, ch.Metrics())
			assert.Zero(t, dp.GetStats().BadLines)
		})
	}
}

func TestParseBadLines(t *testing.T) {
	t.Parallel()
	input := []string{
		"foo|c",          // missing colon
		":1|c",           // empty name
		"f:1",            // missing value separator
		"f:abc|c",        // non-numeric counter
		"f:1|x",          // unknown kind
		"f:1|cc",         // unknown kind
		"f:1|",           // empty kind
		"f:0|c",          // zero counter delta
		"f:-1|c",         // negative counter delta
		"f:1|c|@0",       // rate out of range
		"f:1|c|@-0.5",    // rate out of range
		"f:1|c|@1.5",     // rate out of range
		"f:1|c|@abc",     // non-numeric rate
		"f:1|c|0.5",      // missing @
		"f:1|g|@0.5",     // rate on gauge
		"f:100|ms|@0.5",  // rate on timer
		"f:member|s|@.5", // rate on set
		"f:1.5|c",        // fractional counter
		"f:250.5|ms",     // fractional timer
	}
	for _, inp := range input {
		inp := inp
		t.Run(inp, func(t *testing.T) {
			t.Parallel()
			dp, ch := newTestParser(t)
			dp.HandleDatagram([]byte(inp))
			assert.Zero(t, len(ch.Metrics()), ch.Metrics())
			assert.EqualValues(t, 1, dp.GetStats().BadLines)
		})
	}
}

func TestParseBadLineDoesNotAbortSiblings(t *testing.T) {
	t.Parallel()
	dp, ch := newTestParser(t)
	dp.HandleDatagram([]byte("good:1|c\nbad|c\nalso.good:2|c\n"))
	require.Len(t, ch.Metrics(), 2)
	assert.Equal(t, "good", ch.Metrics()[0].Name)
	assert.Equal(t, "also.good", ch.Metrics()[1].Name)
	assert.EqualValues(t, 1, dp.GetStats().BadLines)
	assert.EqualValues(t, 2, dp.GetStats().MetricsReceived)
}

func TestParseNameTooLong(t *testing.T) {
	t.Parallel()
	ch := &countingHandler{}
	dp := NewDatagramParser(ch, 8, silentLogLimiter(), fixtures.NewTestLogger(t))
	dp.HandleDatagram([]byte("short:1|c\nway.too.long.name:1|c\n"))
	require.Len(t, ch.Metrics(), 1)
	assert.Equal(t, "short", ch.Metrics()[0].Name)
	assert.EqualValues(t, 1, dp.GetStats().BadLines)
}

package statsd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tilinna/clock"

	"github.com/statsagg/statsagg"
	"github.com/statsagg/statsagg/internal/fixtures"
)

func TestFlushSendsSnapshotToAllBackends(t *testing.T) {
	t.Parallel()
	ms := newTestStore(t, EvictionPolicy{})
	dispatchAll(t, ms, counter("page.views", 2), timer("latency", 250), set("users", "alice"))

	b1 := &countingBackend{}
	b2 := &countingBackend{}
	f := NewMetricFlusher(statsagg.DefaultFlushInterval, ms, nil, []statsagg.Backend{b1, b2}, fixtures.NewTestLogger(t))

	before := time.Now()
	f.Flush(context.Background())

	s1 := b1.Snapshots()
	s2 := b2.Snapshots()
	require.Len(t, s1, 1)
	require.Len(t, s2, 1)
	assert.Same(t, s1[0], s2[0])
	assert.Equal(t, 3, s1[0].NumStats())

	stats := f.GetStats()
	assert.False(t, stats.LastFlush.Before(before))
	assert.Equal(t, time.Unix(0, 0), stats.LastFlushError)
}

func TestFlushRecordsSendErrors(t *testing.T) {
	t.Parallel()
	ms := newTestStore(t, EvictionPolicy{})
	dispatchAll(t, ms, counter("page.views", 1))

	backend := &countingBackend{errs: []error{errors.New("send failed")}}
	f := NewMetricFlusher(statsagg.DefaultFlushInterval, ms, nil, []statsagg.Backend{backend}, fixtures.NewTestLogger(t))

	before := time.Now()
	f.Flush(context.Background())

	stats := f.GetStats()
	assert.False(t, stats.LastFlushError.Before(before))
	assert.Equal(t, time.Unix(0, 0), stats.LastFlush)
}

func TestFlushDrainsTheStore(t *testing.T) {
	t.Parallel()
	ms := newTestStore(t, EvictionPolicy{DeleteCounters: true})
	dispatchAll(t, ms, counter("page.views", 1))

	backend := &countingBackend{}
	f := NewMetricFlusher(statsagg.DefaultFlushInterval, ms, nil, []statsagg.Backend{backend}, fixtures.NewTestLogger(t))

	f.Flush(context.Background())
	f.Flush(context.Background())

	snapshots := backend.Snapshots()
	require.Len(t, snapshots, 2)
	assert.Equal(t, 1, snapshots[0].NumStats())
	// idle and evictable, so the second window is empty
	assert.Equal(t, 0, snapshots[1].NumStats())
}

// chanBackend signals each send without blocking the flusher.
type chanBackend struct {
	sent chan *statsagg.MetricSnapshot
}

func (b *chanBackend) Name() string {
	return "chan"
}

func (b *chanBackend) SendMetricsAsync(ctx context.Context, snapshot *statsagg.MetricSnapshot, cb statsagg.SendCallback) {
	select {
	case b.sent <- snapshot:
	default:
	}
	cb(nil)
}

func TestRunFlushesOnEveryTick(t *testing.T) {
	t.Parallel()
	ms := newTestStore(t, EvictionPolicy{})
	dispatchAll(t, ms, counter("page.views", 2))

	backend := &chanBackend{sent: make(chan *statsagg.MetricSnapshot, 1)}
	f := NewMetricFlusher(100*time.Millisecond, ms, nil, []statsagg.Backend{backend}, fixtures.NewTestLogger(t))

	mck := clock.NewMock(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(clock.Context(context.Background(), mck))
	defer cancel()
	go f.Run(ctx)

	// Drive the mock clock until the flusher's ticker has fired. The loop
	// tolerates ticks lost before the ticker was registered.
	deadline := time.After(1 * time.Second)
	var snapshot *statsagg.MetricSnapshot
waiting:
	for {
		mck.Add(100 * time.Millisecond)
		select {
		case snapshot = <-backend.sent:
			break waiting
		case <-deadline:
			t.Fatal("timed out waiting for a flush")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	require.Equal(t, 1, snapshot.NumStats())
	assert.Equal(t, statsagg.FlushedMetric{Name: "page.views", Type: statsagg.COUNTER, Value: 2}, snapshot.Metrics[0])
}

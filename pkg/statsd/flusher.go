package statsd

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"

	"github.com/statsagg/statsagg"
)

// MetricFlusher periodically drains the MetricStore and hands the snapshot to
// every backend. Send failures are logged, never retried.
type MetricFlusher struct {
	// Counter fields below must be read/written only using atomic instructions.
	// 64-bit fields must be the first fields in the struct to guarantee proper memory alignment.
	// See https://golang.org/pkg/sync/atomic/#pkg-note-BUG
	lastFlush      int64 // Last time the metrics were flushed. Unix timestamp in nsec.
	lastFlushError int64 // Time of the last flush error. Unix timestamp in nsec.

	flushInterval time.Duration
	store         *MetricStore
	receiver      *DatagramReceiver
	backends      []statsagg.Backend
	logger        logrus.FieldLogger

	// Stats already reported. Kept to log deltas per flush.
	sentBadLines        uint64
	sentPacketsReceived uint64
	sentMetricsReceived uint64
}

// NewMetricFlusher creates a new MetricFlusher with provided configuration.
func NewMetricFlusher(flushInterval time.Duration, store *MetricStore, receiver *DatagramReceiver, backends []statsagg.Backend, logger logrus.FieldLogger) *MetricFlusher {
	return &MetricFlusher{
		flushInterval: flushInterval,
		store:         store,
		receiver:      receiver,
		backends:      backends,
		logger:        logger,
	}
}

// FlusherStats holds statistics about a MetricFlusher.
type FlusherStats struct {
	LastFlush      time.Time
	LastFlushError time.Time
}

// GetStats returns MetricFlusher statistics. Safe for concurrent use.
func (f *MetricFlusher) GetStats() FlusherStats {
	return FlusherStats{
		LastFlush:      time.Unix(0, atomic.LoadInt64(&f.lastFlush)),
		LastFlushError: time.Unix(0, atomic.LoadInt64(&f.lastFlushError)),
	}
}

// Run flushes on every tick until the context is done. The ticker comes from
// the clock in the context, so tests can drive it with a mock.
func (f *MetricFlusher) Run(ctx context.Context) {
	clck := clock.FromContext(ctx)
	ticker := clck.NewTicker(f.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.Flush(ctx)
		}
	}
}

// Flush runs one read cycle: snapshot and reset the store, then dispatch the
// snapshot to all backends and wait for them to finish. It may be called
// directly by an external scheduler instead of Run.
func (f *MetricFlusher) Flush(ctx context.Context) {
	snapshot := f.store.SnapshotAndReset()
	f.logFlushStats(snapshot)

	var wg sync.WaitGroup
	wg.Add(len(f.backends))
	for _, backend := range f.backends {
		backend.SendMetricsAsync(ctx, snapshot, func(errs []error) {
			defer wg.Done()
			f.handleSendResult(errs)
		})
	}
	wg.Wait()
}

func (f *MetricFlusher) handleSendResult(flushResults []error) {
	timestampPointer := &f.lastFlush
	for _, err := range flushResults {
		if err != nil {
			timestampPointer = &f.lastFlushError
			if err != context.DeadlineExceeded && err != context.Canceled {
				f.logger.WithError(err).Error("Sending metrics to backend failed")
			}
		}
	}
	atomic.StoreInt64(timestampPointer, time.Now().UnixNano())
}

func (f *MetricFlusher) logFlushStats(snapshot *statsagg.MetricSnapshot) {
	if f.receiver == nil {
		return
	}
	rs := f.receiver.GetStats()
	f.logger.WithFields(logrus.Fields{
		"num_stats":        snapshot.NumStats(),
		"packets_received": rs.PacketsReceived - f.sentPacketsReceived,
		"metrics_received": rs.MetricsReceived - f.sentMetricsReceived,
		"bad_lines_seen":   rs.BadLines - f.sentBadLines,
	}).Debug("Flushing metrics")
	f.sentBadLines = rs.BadLines
	f.sentPacketsReceived = rs.PacketsReceived
	f.sentMetricsReceived = rs.MetricsReceived
}

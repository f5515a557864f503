package statsd

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/statsagg/statsagg"
)

// EvictionPolicy controls which metric kinds are deleted from the store when
// they received no updates during the preceding flush window.
type EvictionPolicy struct {
	DeleteCounters bool
	DeleteTimers   bool
	DeleteGauges   bool
	DeleteSets     bool
}

func (p EvictionPolicy) deletable(t statsagg.MetricType) bool {
	switch t {
	case statsagg.COUNTER:
		return p.DeleteCounters
	case statsagg.TIMER:
		return p.DeleteTimers
	case statsagg.GAUGE:
		return p.DeleteGauges
	case statsagg.SET:
		return p.DeleteSets
	}
	return false
}

// metricRecord is the running aggregate for one store key. The kind never
// changes after creation; members is only allocated for sets.
type metricRecord struct {
	key     string // verbatim store key, kind tag + ":" + name
	kind    statsagg.MetricType
	value   int64
	members map[string]struct{}
	updates uint64 // samples received since the last flush
}

// MetricStore is a mutex-guarded container of aggregated metric state shared
// between the ingestion path and the flush cycle. All iteration happens inside
// SnapshotAndReset; no iterator outlives the lock.
type MetricStore struct {
	mu      sync.Mutex
	records map[string]*metricRecord // keyed by the lowercased store key
	policy  EvictionPolicy
	logger  logrus.FieldLogger
}

// NewMetricStore creates an empty MetricStore.
func NewMetricStore(policy EvictionPolicy, logger logrus.FieldLogger) *MetricStore {
	return &MetricStore{
		records: make(map[string]*metricRecord),
		policy:  policy,
		logger:  logger,
	}
}

// DispatchMetric applies a decoded sample to the running aggregate for its
// key, creating the record on first use. Lookup is case-insensitive, the key
// is stored verbatim.
func (ms *MetricStore) DispatchMetric(m *statsagg.Metric) error {
	key := m.StoreKey()
	lower := strings.ToLower(key)

	ms.mu.Lock()
	defer ms.mu.Unlock()

	rec, ok := ms.records[lower]
	if !ok {
		ms.logger.Debugf("Adding new metric %q", key)
		rec = &metricRecord{key: key, kind: m.Type}
		if m.Type == statsagg.SET {
			rec.members = make(map[string]struct{})
		}
		ms.records[lower] = rec
	}

	switch m.Type {
	case statsagg.COUNTER:
		rec.value += m.Value
	case statsagg.GAUGE:
		if m.Relative {
			rec.value += m.Value
		} else {
			rec.value = m.Value
		}
	case statsagg.TIMER:
		rec.value += m.Value
	case statsagg.SET:
		// duplicate members are a no-op, but the update still counts
		rec.members[m.StringValue] = struct{}{}
	default:
		return fmt.Errorf("unknown metric type %s for %s", m.Type, m.Name)
	}
	rec.updates++
	return nil
}

// SnapshotAndReset derives one finished value per live record, resets every
// record's update count, clears set membership for the next window, and
// deletes records that were idle for the whole window when their kind has
// eviction enabled. The lock is held for the entire pass, so writers never
// observe a partial snapshot.
func (ms *MetricStore) SnapshotAndReset() *statsagg.MetricSnapshot {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	metrics := make([]statsagg.FlushedMetric, 0, len(ms.records))
	for lower, rec := range ms.records {
		if rec.updates == 0 && ms.policy.deletable(rec.kind) {
			ms.logger.Debugf("Deleting idle metric %q", rec.key)
			delete(ms.records, lower)
			continue
		}

		var value float64
		switch rec.kind {
		case statsagg.COUNTER, statsagg.GAUGE:
			value = float64(rec.value)
		case statsagg.TIMER:
			if rec.updates == 0 {
				value = math.NaN()
			} else {
				value = float64(rec.value) / float64(rec.updates)
			}
		case statsagg.SET:
			value = float64(len(rec.members))
		}
		metrics = append(metrics, statsagg.FlushedMetric{
			Name:  statsagg.StripStoreKey(rec.key),
			Type:  rec.kind,
			Value: value,
		})

		rec.updates = 0
		switch rec.kind {
		case statsagg.TIMER:
			// the mean is over samples of a single window
			rec.value = 0
		case statsagg.SET:
			if len(rec.members) > 0 {
				// membership represents "distinct values seen this window"
				rec.members = make(map[string]struct{})
			}
		}
	}

	sort.Slice(metrics, func(i, j int) bool {
		if metrics[i].Name != metrics[j].Name {
			return metrics[i].Name < metrics[j].Name
		}
		return metrics[i].Type < metrics[j].Type
	})
	return &statsagg.MetricSnapshot{Metrics: metrics}
}

// StoreStats holds per-kind record counts.
type StoreStats struct {
	Counters int
	Timers   int
	Gauges   int
	Sets     int
}

// Stats counts the live records per kind under the lock.
func (ms *MetricStore) Stats() StoreStats {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var st StoreStats
	for _, rec := range ms.records {
		switch rec.kind {
		case statsagg.COUNTER:
			st.Counters++
		case statsagg.TIMER:
			st.Timers++
		case statsagg.GAUGE:
			st.Gauges++
		case statsagg.SET:
			st.Sets++
		}
	}
	return st
}

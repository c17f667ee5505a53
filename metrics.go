package campusauth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricReplayDetected
	MetricRefreshRateLimited
	MetricSessionCreated
	MetricSessionCreateFailure
	MetricLogout
	MetricVerifySuccess
	MetricVerifyRejected
	MetricAccountCreationSuccess
	MetricAccountCreationDuplicate
	MetricAccountCreationInvalid
	// MetricValidateLatency is the only histogram; it times Verify and Validate.
	MetricValidateLatency
	metricIDCount
)

// latencyBounds are the inclusive upper edges of the validate histogram,
// compared at millisecond precision. One overflow bucket follows them.
var latencyBounds = [...]int64{5, 10, 25, 50, 100, 250, 500}

const latencyBucketCount = len(latencyBounds) + 1

// slot keeps each counter on its own cache line so hot counters bumped by
// different cores do not contend.
type slot struct {
	n atomic.Uint64
	_ [56]byte
}

// Metrics holds lock-free engine counters. A nil or disabled Metrics drops
// every write.
type Metrics struct {
	on      bool
	latency bool
	slots   [metricIDCount]slot
	hist    [latencyBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
// Histogram buckets are per-bucket counts, not cumulative.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func emptySnapshot() MetricsSnapshot {
	return MetricsSnapshot{Counters: map[MetricID]uint64{}, Histograms: map[MetricID][]uint64{}}
}

// NewMetrics builds a Metrics from cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{on: cfg.Enabled, latency: cfg.Enabled && cfg.EnableLatencyHistograms}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool { return m != nil && m.on }

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool { return m != nil && m.latency }

func (m *Metrics) isCounter(id MetricID) bool {
	return m.Enabled() && id < metricIDCount && id != MetricValidateLatency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if m.isCounter(id) {
		m.slots[id].n.Add(1)
	}
}

// Observe records d in the histogram id. Anything other than
// MetricValidateLatency is ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if id != MetricValidateLatency || !m.LatencyEnabled() {
		return
	}
	m.hist[latencyBucket(d)].Add(1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.slots[id].n.Load()
}

// Snapshot copies every counter and, when enabled, the latency histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := emptySnapshot()
	if !m.Enabled() {
		return s
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if m.isCounter(id) {
			s.Counters[id] = m.slots[id].n.Load()
		}
	}
	if m.latency {
		buckets := make([]uint64, latencyBucketCount)
		for i := range buckets {
			buckets[i] = m.hist[i].Load()
		}
		s.Histograms[MetricValidateLatency] = buckets
	}
	return s
}

func latencyBucket(d time.Duration) int {
	ms := d.Milliseconds()
	for i, upper := range latencyBounds {
		if ms <= upper {
			return i
		}
	}
	return len(latencyBounds)
}

// Copyright (c) 2022 Canonical Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License version 3 as
// published by the Free Software Foundation.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package reliability

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const latencyRingSize = 1000

// MetricsCollector tracks atomic counters exported via Prometheus, plus a
// bounded ring of raw latency samples so p95/p99 can be computed exactly
// on snapshot instead of relying on Prometheus's own bucketed histogram
// approximation.
type MetricsCollector struct {
	batchesTotal  prometheus.Counter
	batchesFailed prometheus.Counter
	entriesTotal  prometheus.Counter
	bytesTotal    prometheus.Counter
	retriesTotal  prometheus.Counter

	successCount int64
	failureCount int64

	mu      sync.Mutex
	samples []time.Duration // ring, oldest overwritten first
	next    int
}

func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	c := &MetricsCollector{
		batchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rask_forwarder_batches_total",
			Help: "Total batches attempted.",
		}),
		batchesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rask_forwarder_batches_failed_total",
			Help: "Total batches that failed transmission.",
		}),
		entriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rask_forwarder_entries_total",
			Help: "Total log entries transmitted.",
		}),
		bytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rask_forwarder_bytes_total",
			Help: "Total bytes transmitted on the wire.",
		}),
		retriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rask_forwarder_retries_total",
			Help: "Total retry attempts.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.batchesTotal, c.batchesFailed, c.entriesTotal, c.bytesTotal, c.retriesTotal)
	}
	return c
}

// RecordSuccess records a successfully transmitted batch.
func (c *MetricsCollector) RecordSuccess(entries int, bytesSent int, latency time.Duration) {
	c.batchesTotal.Inc()
	c.entriesTotal.Add(float64(entries))
	c.bytesTotal.Add(float64(bytesSent))
	atomic.AddInt64(&c.successCount, 1)
	c.recordLatency(latency)
}

// RecordFailure records a failed transmission attempt.
func (c *MetricsCollector) RecordFailure() {
	c.batchesTotal.Inc()
	c.batchesFailed.Inc()
	atomic.AddInt64(&c.failureCount, 1)
}

// RecordRetry increments the retry counter.
func (c *MetricsCollector) RecordRetry() {
	c.retriesTotal.Inc()
}

func (c *MetricsCollector) recordLatency(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.samples) < latencyRingSize {
		c.samples = append(c.samples, d)
		return
	}
	c.samples[c.next] = d
	c.next = (c.next + 1) % latencyRingSize
}

// Snapshot is a point-in-time view of derived metrics.
type Snapshot struct {
	Successes  int64
	Failures   int64
	P95Latency time.Duration
	P99Latency time.Duration
	AvgLatency time.Duration
}

// Snapshot computes p95/p99/average over the current latency ring with
// bounds-checked percentile indexing and a safe fallback when no samples
// have been recorded yet.
func (c *MetricsCollector) Snapshot() Snapshot {
	c.mu.Lock()
	samples := make([]time.Duration, len(c.samples))
	copy(samples, c.samples)
	c.mu.Unlock()

	snap := Snapshot{
		Successes: atomic.LoadInt64(&c.successCount),
		Failures:  atomic.LoadInt64(&c.failureCount),
	}
	if len(samples) == 0 {
		return snap
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	snap.P95Latency = percentile(samples, 0.95)
	snap.P99Latency = percentile(samples, 0.99)

	var sum time.Duration
	for _, s := range samples {
		sum += s
	}
	snap.AvgLatency = sum / time.Duration(len(samples))
	return snap
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// CompressionRatio returns compressed/uncompressed, or 1.0 when
// uncompressed is zero, matching the spec's defined fallback for a
// non-finite ratio.
func CompressionRatio(compressed, uncompressed int) float64 {
	if uncompressed == 0 {
		return 1.0
	}
	return float64(compressed) / float64(uncompressed)
}

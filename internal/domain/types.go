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

// Package domain holds the wire and data types shared by the forwarder and
// aggregator: the shapes a RawLogFrame passes through on its way to a
// ColumnarRow.
package domain

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Stream identifies which descriptor a RawLogFrame came from.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// RawLogFrame is an unparsed chunk of container log output. Bytes is handed
// off to the parser by reference; nothing downstream of the collector
// copies it until a sub-parser needs owned strings.
type RawLogFrame struct {
	Bytes            []byte
	ContainerID      string
	Stream           Stream
	RuntimeTimestamp time.Time
}

// LogType classifies a ParsedLogEntry by which sub-parser produced it.
type LogType string

const (
	LogTypeAccess     LogType = "access"
	LogTypeError      LogType = "error"
	LogTypeStructured LogType = "structured"
	LogTypePlain      LogType = "plain"
	LogTypeDatabase   LogType = "database"
	LogTypeSearch     LogType = "search"
	LogTypeUnknown    LogType = "unknown"
)

// ParsedLogEntry is what a sub-parser produces from a single RawLogFrame.
type ParsedLogEntry struct {
	ServiceType string
	LogType     LogType
	Message     string
	Level       *LogLevel
	Timestamp   *time.Time

	Method       string
	Path         string
	StatusCode   *uint16
	ResponseSize *uint64
	IPAddress    string
	UserAgent    string

	Fields map[string]string
}

// HasHTTP reports whether any HTTP-specific field was populated.
func (p *ParsedLogEntry) HasHTTP() bool {
	return p.Method != "" || p.Path != "" || p.StatusCode != nil ||
		p.ResponseSize != nil || p.IPAddress != "" || p.UserAgent != ""
}

// EnrichedLogEntry is a ParsedLogEntry joined with the container/service
// context that made it, and optional distributed-tracing context. This is
// the unit that crosses the forwarder -> aggregator boundary.
type EnrichedLogEntry struct {
	ParsedLogEntry

	ContainerID  string
	Stream       Stream
	ServiceName  string
	ServiceGroup string // empty means absent; RowEncoder defaults to "unknown"
	TraceID      string // 32-char hex, empty if absent
	SpanID       string // 16-char hex, empty if absent
}

// BatchType records which BatchFormer trigger sealed a Batch.
type BatchType string

const (
	BatchSizeBased   BatchType = "SizeBased"
	BatchTimeBased   BatchType = "TimeBased"
	BatchMemoryBased BatchType = "MemoryBased"
)

// Batch is a sealed group of entries ready for transmission.
type Batch struct {
	ID            uuid.UUID
	Entries       []EnrichedLogEntry
	BatchType     BatchType
	CreatedAt     time.Time
	EstimatedSize int
}

// NewBatch seals entries into a new Batch with a fresh random id.
func NewBatch(entries []EnrichedLogEntry, batchType BatchType, estimatedSize int) Batch {
	return Batch{
		ID:            uuid.New(),
		Entries:       entries,
		BatchType:     batchType,
		CreatedAt:     time.Now().UTC(),
		EstimatedSize: estimatedSize,
	}
}

// ColumnarRow is one row as written to the columnar store.
type ColumnarRow struct {
	ServiceType  string    `json:"service_type"`
	LogType      string    `json:"log_type"`
	Message      string    `json:"message"`
	Level        int8      `json:"level"`
	Timestamp    time.Time `json:"timestamp"` // truncated to millisecond precision by the encoder
	Stream       string    `json:"stream"`
	ContainerID  string    `json:"container_id"`
	ServiceName  string    `json:"service_name"`
	ServiceGroup string    `json:"service_group"`
	TraceID      [32]byte  `json:"trace_id"`
	SpanID       [16]byte  `json:"span_id"`
	Fields       []KV      `json:"fields"`
}

// KV is an ordered key/value pair, matching the ColumnarStore's
// Map(String,String) column, which has no intrinsic ordering guarantee but
// is easiest to test and log as a slice of pairs.
type KV struct {
	Key   string
	Value string
}

// DiskBatch is the on-disk, at-rest form of a Batch once it has exhausted
// retries and fallen through to the forwarder's disk journal.
type DiskBatch struct {
	ID            string
	Entries       []EnrichedLogEntry
	BatchType     BatchType
	EstimatedSize int
	StoredAt      int64 // unix seconds
	Compressed    bool
}

// ConnectionStats are the atomic counters LogSender/ConnectionPool expose.
// All fields are accessed exclusively through atomic operations.
type ConnectionStats struct {
	Total          int64
	Successful     int64
	Failed         int64
	Active         int64
	totalLatencyNs int64
	latencyCount   int64
}

func (s *ConnectionStats) RecordAttempt() {
	atomic.AddInt64(&s.Total, 1)
	atomic.AddInt64(&s.Active, 1)
}

func (s *ConnectionStats) RecordResult(success bool, latency time.Duration) {
	atomic.AddInt64(&s.Active, -1)
	if success {
		atomic.AddInt64(&s.Successful, 1)
	} else {
		atomic.AddInt64(&s.Failed, 1)
	}
	atomic.AddInt64(&s.totalLatencyNs, latency.Nanoseconds())
	atomic.AddInt64(&s.latencyCount, 1)
}

// AverageLatency returns the rolling mean latency across every recorded
// attempt, or zero if none have been recorded yet.
func (s *ConnectionStats) AverageLatency() time.Duration {
	count := atomic.LoadInt64(&s.latencyCount)
	if count == 0 {
		return 0
	}
	return time.Duration(atomic.LoadInt64(&s.totalLatencyNs) / count)
}

// ConnectionStatsSnapshot is a point-in-time copy of the counters, safe to read without
// further synchronization.
type ConnectionStatsSnapshot struct {
	Total, Successful, Failed, Active int64
	AverageLatency                    time.Duration
}

func (s *ConnectionStats) Snapshot() ConnectionStatsSnapshot {
	return ConnectionStatsSnapshot{
		Total:          atomic.LoadInt64(&s.Total),
		Successful:     atomic.LoadInt64(&s.Successful),
		Failed:         atomic.LoadInt64(&s.Failed),
		Active:         atomic.LoadInt64(&s.Active),
		AverageLatency: s.AverageLatency(),
	}
}

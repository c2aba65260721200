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

// Package buffer implements the forwarder's bounded multi-producer queue
// and its memory-pressure tracking, grounded on the capacity-checked,
// concurrent shape of internals/servicelog's ring buffer.
package buffer

import (
	"errors"
	"time"

	"github.com/rask-sh/rask-pipeline/internal/domain"
	"github.com/rask-sh/rask-pipeline/internal/logger"
)

const maxCapacity = 100_000_000 // overflow guard, spec.md 4.4

// closeLockTimeout bounds how long Close waits to acquire closeGuard before
// giving up and logging instead of blocking the caller forever.
const closeLockTimeout = time.Second

var (
	ErrFull            = errors.New("buffer: full")
	ErrClosed          = errors.New("buffer: closed")
	ErrInvalidCapacity = errors.New("buffer: invalid capacity")
)

// Config enumerates the LogBuffer's tunables.
type Config struct {
	Capacity               int
	BatchSize              int
	BatchTimeout           time.Duration
	EnableBackpressure     bool
	BackpressureThreshold  float64 // fraction of capacity, [0,1]
	BackpressureDelay      time.Duration
}

// Validate rejects a zero or absurdly large capacity, per spec.md 4.4.
func (c Config) Validate() error {
	if c.Capacity <= 0 || c.Capacity > maxCapacity {
		return ErrInvalidCapacity
	}
	return nil
}

// LogBuffer is a bounded MPSC queue of EnrichedLogEntry values, backed by a
// buffered channel (Go's native lock-free-on-the-fast-path primitive for
// this shape) plus a MemoryPressure tracker.
type LogBuffer struct {
	cfg        Config
	entries    chan domain.EnrichedLogEntry
	closed     chan struct{}
	closeGuard *GuardedMutex
	closeDone  bool
	pressure   *MemoryPressure
}

// New constructs a LogBuffer, returning cfg.Validate's error if cfg is
// invalid.
func New(cfg Config, pressure *MemoryPressure) (*LogBuffer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &LogBuffer{
		cfg:        cfg,
		entries:    make(chan domain.EnrichedLogEntry, cfg.Capacity),
		closed:     make(chan struct{}),
		closeGuard: NewGuardedMutex(),
		pressure:   pressure,
	}, nil
}

// Send enqueues an entry. Under backpressure, once depth crosses the
// configured threshold, Send sleeps BackpressureDelay and retries once
// before giving up with ErrFull. When memory pressure is Critical, Send
// refuses immediately regardless of queue depth.
func (b *LogBuffer) Send(entry domain.EnrichedLogEntry, size int) error {
	select {
	case <-b.closed:
		return ErrClosed
	default:
	}

	if b.pressure != nil && b.pressure.State() == Critical {
		return ErrFull
	}

	if b.cfg.EnableBackpressure && b.depthFraction() >= b.cfg.BackpressureThreshold {
		time.Sleep(b.cfg.BackpressureDelay)
	}

	select {
	case b.entries <- entry:
		if b.pressure != nil {
			b.pressure.Add(size)
		}
		return nil
	case <-b.closed:
		return ErrClosed
	default:
		return ErrFull
	}
}

// Receive returns the channel consumers read from.
func (b *LogBuffer) Receive() <-chan domain.EnrichedLogEntry {
	return b.entries
}

// Close stops accepting new entries. Safe to call more than once or
// concurrently: the check-and-close is run under closeGuard, the exclusive
// section GuardedMutex exists for, so a panicking racer can't wedge a
// later closer behind an unrecoverable lock.
func (b *LogBuffer) Close() {
	err := b.closeGuard.WithLock(closeLockTimeout, func() {
		if b.closeDone {
			return
		}
		b.closeDone = true
		close(b.closed)
		close(b.entries)
	})
	if err != nil {
		logger.Noticef("buffer: close lock timeout, buffer left open")
	}
}

func (b *LogBuffer) Len() int {
	return len(b.entries)
}

func (b *LogBuffer) depthFraction() float64 {
	if b.cfg.Capacity == 0 {
		return 0
	}
	return float64(len(b.entries)) / float64(b.cfg.Capacity)
}

// EstimateSize sums string-field lengths plus a fixed per-entry overhead,
// the allocation-accounting rule spec.md 4.4 specifies for MemoryPressure.
const perEntryOverhead = 128

func EstimateSize(e domain.EnrichedLogEntry) int {
	size := perEntryOverhead + len(e.Message) + len(e.ServiceType) + len(e.ContainerID) +
		len(e.ServiceName) + len(e.ServiceGroup) + len(e.TraceID) + len(e.SpanID) +
		len(e.Method) + len(e.Path) + len(e.IPAddress) + len(e.UserAgent)
	for k, v := range e.Fields {
		size += len(k) + len(v)
	}
	return size
}

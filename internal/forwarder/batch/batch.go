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

// Package batch seals EnrichedLogEntry values into Batch values on one of
// three triggers: size, memory, or a wall-clock timeout. The control loop
// is a direct generalization of internal/overlord/logstate/gatherer.go's
// flush-timer loop, replacing its single logClient sink with a
// ready-batches handoff channel.
package batch

import (
	"context"
	"time"

	"github.com/rask-sh/rask-pipeline/internal/domain"
	"github.com/rask-sh/rask-pipeline/internal/forwarder/buffer"
)

// Config are BatchFormer's three trigger thresholds.
type Config struct {
	MaxSize       int
	MaxMemorySize int
	MaxWaitTime   time.Duration
}

// BatchFormer accumulates entries and seals batches by whichever trigger
// fires first.
type BatchFormer struct {
	cfg     Config
	entryCh chan domain.EnrichedLogEntry
	readyCh chan domain.Batch
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func New(cfg Config) *BatchFormer {
	f := &BatchFormer{
		cfg:     cfg,
		entryCh: make(chan domain.EnrichedLogEntry),
		readyCh: make(chan domain.Batch, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go f.loop()
	return f
}

// AddEntry pushes a single entry into the pending batch. Blocks until the
// control loop accepts it or the former has been stopped.
func (f *BatchFormer) AddEntry(e domain.EnrichedLogEntry) bool {
	select {
	case f.entryCh <- e:
		return true
	case <-f.stopCh:
		return false
	}
}

// NextBatch blocks until a batch is ready or ctx is done.
func (f *BatchFormer) NextBatch(ctx context.Context) (domain.Batch, bool) {
	select {
	case b, ok := <-f.readyCh:
		return b, ok
	case <-ctx.Done():
		return domain.Batch{}, false
	}
}

// Stop seals and emits any pending entries as a final batch, then shuts
// down the control loop. Blocks until torn down.
func (f *BatchFormer) Stop() {
	close(f.stopCh)
	<-f.doneCh
}

func (f *BatchFormer) loop() {
	defer close(f.doneCh)

	var pending []domain.EnrichedLogEntry
	currentSize := 0
	var batchStartTime time.Time
	t := newTimer()
	defer t.Stop()

	seal := func(batchType domain.BatchType) {
		if len(pending) == 0 {
			return
		}
		b := domain.NewBatch(pending, batchType, currentSize)
		pending = nil
		currentSize = 0
		t.Stop()
		f.readyCh <- b
	}

	for {
		select {
		case <-f.stopCh:
			seal(domain.BatchTimeBased)
			close(f.readyCh)
			return

		case <-t.Expired():
			seal(domain.BatchTimeBased)

		case e := <-f.entryCh:
			if len(pending) == 0 {
				batchStartTime = time.Now()
			}
			pending = append(pending, e)
			currentSize += buffer.EstimateSize(e)

			switch {
			case len(pending) >= f.cfg.MaxSize:
				seal(domain.BatchSizeBased)
			case currentSize >= f.cfg.MaxMemorySize:
				seal(domain.BatchMemoryBased)
			default:
				remaining := f.cfg.MaxWaitTime - time.Since(batchStartTime)
				if remaining < 0 {
					remaining = 0
				}
				t.EnsureSet(remaining)
			}
		}
	}
}

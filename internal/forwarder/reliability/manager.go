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
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rask-sh/rask-pipeline/internal/domain"
	"github.com/rask-sh/rask-pipeline/internal/forwarder/sender"
	"github.com/rask-sh/rask-pipeline/internal/logger"
)

const (
	transmissionComponent = "transmission"
	diskFallbackComponent = "disk_fallback"
)

// Sender is the subset of LogSender the Manager drives.
type Sender interface {
	SendBatch(ctx context.Context, batch domain.Batch) (sender.TransmissionResult, error)
}

// Manager orchestrates retry, disk fallback, health, and metrics around
// a Sender, implementing spec's send_batch_with_reliability loop.
type Manager struct {
	sender  Sender
	retry   *RetryController
	disk    *DiskFallback
	health  *HealthMonitor
	metrics *MetricsCollector
}

func NewManager(sender Sender, retry *RetryController, disk *DiskFallback, health *HealthMonitor, reg prometheus.Registerer) *Manager {
	return &Manager{
		sender:  sender,
		retry:   retry,
		disk:    disk,
		health:  health,
		metrics: NewMetricsCollector(reg),
	}
}

func (m *Manager) Metrics() *MetricsCollector { return m.metrics }
func (m *Manager) Health() *HealthMonitor     { return m.health }

// SendBatchWithReliability drives one batch through retry, and on
// exhaustion, disk fallback, per spec.md 4.8.
func (m *Manager) SendBatchWithReliability(ctx context.Context, batch domain.Batch) error {
	batchID := batch.ID.String()
	m.retry.StartRetry(batchID)

	for {
		start := time.Now()
		result, err := m.sender.SendBatch(ctx, batch)
		latency := time.Since(start)

		if err == nil && result.Success {
			m.metrics.RecordSuccess(len(batch.Entries), result.BytesSent, latency)
			m.health.RecordHealthCheck(transmissionComponent, true, "")
			m.retry.RemoveRetry(batchID)
			return nil
		}

		m.metrics.RecordFailure()
		m.health.RecordHealthCheck(transmissionComponent, false, errString(err))
		m.retry.IncrementAttempt(batchID)
		m.metrics.RecordRetry()

		if m.retry.ShouldGiveUp(batchID) {
			storeErr := m.disk.StoreBatch(batch)
			m.retry.RemoveRetry(batchID)
			if storeErr != nil {
				m.health.RecordHealthCheck(diskFallbackComponent, false, storeErr.Error())
				return storeErr
			}
			m.health.RecordHealthCheck(diskFallbackComponent, true, "")
			return nil
		}

		delay := m.retry.CalculateDelay(m.retry.AttemptCount(batchID))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// RunBackgroundTasks starts the memory sampler, disk cleaner, and health
// sweeper loops described in spec.md 4.8. It blocks until ctx is done.
func (m *Manager) RunBackgroundTasks(ctx context.Context, memorySampler func()) {
	memTicker := time.NewTicker(60 * time.Second)
	diskTicker := time.NewTicker(time.Hour)
	healthTicker := time.NewTicker(5 * time.Minute)
	defer memTicker.Stop()
	defer diskTicker.Stop()
	defer healthTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-memTicker.C:
			if memorySampler != nil {
				memorySampler()
			}
		case <-diskTicker.C:
			if deleted, err := m.disk.CleanupOldBatches(); err != nil {
				logger.Noticef("reliability: disk cleanup failed: %v", err)
			} else if deleted > 0 {
				logger.Noticef("reliability: cleaned up %d stale disk-fallback batches", deleted)
			}
		case <-healthTicker.C:
			m.health.SweepStale(30 * time.Minute)
		}
	}
}

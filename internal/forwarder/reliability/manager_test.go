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

package reliability_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/rask-sh/rask-pipeline/internal/domain"
	"github.com/rask-sh/rask-pipeline/internal/forwarder/reliability"
	"github.com/rask-sh/rask-pipeline/internal/forwarder/sender"
)

type fakeSender struct {
	failuresBeforeSuccess int32
	calls                 int32
}

func (f *fakeSender) SendBatch(ctx context.Context, batch domain.Batch) (sender.TransmissionResult, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failuresBeforeSuccess {
		return sender.TransmissionResult{StatusCode: 503}, errors.New("unavailable")
	}
	return sender.TransmissionResult{Success: true, StatusCode: 200, BytesSent: 64}, nil
}

type alwaysFailSender struct{}

func (alwaysFailSender) SendBatch(ctx context.Context, batch domain.Batch) (sender.TransmissionResult, error) {
	return sender.TransmissionResult{StatusCode: 503}, errors.New("unavailable")
}

func newManager(t *testing.T, s reliability.Sender) *reliability.Manager {
	t.Helper()
	retry := reliability.NewRetryController(reliability.RetryConfig{
		MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond,
		Strategy: reliability.FixedDelay, Jitter: false,
	})
	diskCfg := reliability.DefaultDiskConfig()
	diskCfg.StoragePath = t.TempDir()
	disk, err := reliability.NewDiskFallback(diskCfg)
	require.NoError(t, err)
	health := reliability.NewHealthMonitor(3, 2)
	return reliability.NewManager(s, retry, disk, health, prometheus.NewRegistry())
}

func TestSendBatchWithReliabilitySucceedsAfterRetries(t *testing.T) {
	s := &fakeSender{failuresBeforeSuccess: 2}
	m := newManager(t, s)

	err := m.SendBatchWithReliability(context.Background(), sampleBatch(t))
	require.NoError(t, err)
	require.Equal(t, reliability.Healthy, m.Health().OverallHealth())
}

func TestSendBatchWithReliabilityFallsBackToDisk(t *testing.T) {
	m := newManager(t, alwaysFailSender{})

	err := m.SendBatchWithReliability(context.Background(), sampleBatch(t))
	require.NoError(t, err) // disk fallback succeeded
}

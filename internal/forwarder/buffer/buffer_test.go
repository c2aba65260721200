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

package buffer_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rask-sh/rask-pipeline/internal/domain"
	"github.com/rask-sh/rask-pipeline/internal/forwarder/buffer"
)

func TestConfigValidate(t *testing.T) {
	require.ErrorIs(t, buffer.Config{Capacity: 0}.Validate(), buffer.ErrInvalidCapacity)
	require.ErrorIs(t, buffer.Config{Capacity: 200_000_000}.Validate(), buffer.ErrInvalidCapacity)
	require.NoError(t, buffer.Config{Capacity: 10}.Validate())
}

func TestSendAndReceive(t *testing.T) {
	b, err := buffer.New(buffer.Config{Capacity: 4}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Send(domain.EnrichedLogEntry{}, 10))
	entry := <-b.Receive()
	require.NotNil(t, entry)
}

func TestSendFullWithoutBackpressure(t *testing.T) {
	b, err := buffer.New(buffer.Config{Capacity: 1}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Send(domain.EnrichedLogEntry{}, 1))
	require.ErrorIs(t, b.Send(domain.EnrichedLogEntry{}, 1), buffer.ErrFull)
}

func TestSendAfterCloseReturnsClosed(t *testing.T) {
	b, err := buffer.New(buffer.Config{Capacity: 1}, nil)
	require.NoError(t, err)
	b.Close()
	require.ErrorIs(t, b.Send(domain.EnrichedLogEntry{}, 1), buffer.ErrClosed)
}

func TestCloseIsSafeUnderConcurrentCallers(t *testing.T) {
	b, err := buffer.New(buffer.Config{Capacity: 4}, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Close()
		}()
	}
	wg.Wait()

	require.ErrorIs(t, b.Send(domain.EnrichedLogEntry{}, 1), buffer.ErrClosed)
}

func TestCriticalMemoryPressureRefusesSend(t *testing.T) {
	pressure := buffer.NewMemoryPressure(100, 200)
	pressure.Add(250)
	b, err := buffer.New(buffer.Config{Capacity: 10}, pressure)
	require.NoError(t, err)
	require.ErrorIs(t, b.Send(domain.EnrichedLogEntry{}, 1), buffer.ErrFull)
}

func TestMemoryPressureTransitions(t *testing.T) {
	p := buffer.NewMemoryPressure(100, 200)
	require.Equal(t, buffer.None, p.State())
	p.Add(150)
	require.Equal(t, buffer.Warning, p.State())
	p.Add(100)
	require.Equal(t, buffer.Critical, p.State())
	p.Remove(1000)
	require.Equal(t, int64(0), p.Total())
	require.Equal(t, buffer.None, p.State())
}

func TestGuardedMutexRecoversPanic(t *testing.T) {
	g := buffer.NewGuardedMutex()
	err := g.WithLock(time.Second, func() {
		panic("boom")
	})
	require.NoError(t, err)

	ran := false
	err = g.WithLock(time.Second, func() {
		ran = true
	})
	require.NoError(t, err)
	require.True(t, ran)
}

func TestGuardedMutexTimeout(t *testing.T) {
	g := buffer.NewGuardedMutex()
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = g.WithLock(time.Second, func() {
			close(held)
			<-release
		})
	}()
	<-held
	err := g.WithLock(10*time.Millisecond, func() {})
	require.ErrorIs(t, err, buffer.ErrLockTimeout)
	close(release)
}

func TestEstimateSizeIncludesFields(t *testing.T) {
	e := domain.EnrichedLogEntry{
		ParsedLogEntry: domain.ParsedLogEntry{
			Message: "hello",
			Fields:  map[string]string{"k": "v"},
		},
	}
	require.Greater(t, buffer.EstimateSize(e), 0)
}

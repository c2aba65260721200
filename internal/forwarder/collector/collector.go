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

// Package collector subscribes to a container's log stream and fans out
// RawLogFrame values on a shared channel. One logPuller-equivalent
// goroutine runs per watched container, supervised by a tomb so the whole
// group tears down together on cancellation, mirroring the teacher's
// pullerGroup in internal/overlord/logstate.
package collector

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"gopkg.in/tomb.v2"

	"github.com/rask-sh/rask-pipeline/internal/domain"
	"github.com/rask-sh/rask-pipeline/internal/logger"
)

// maxLineBytes caps a single log line, per spec.md 4.3's ">10 MB lines"
// input-validation requirement.
const maxLineBytes = 10 * 1024 * 1024

// ErrCollectionStopped names the end of a container's collection. Nothing
// in this package returns it: every stream error is retried with capped
// backoff until ctx is done or the puller is stopped.
var ErrCollectionStopped = errors.New("collector: collection stopped")

// Streamer is the subset of the docker client the collector needs.
type Streamer interface {
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
}

// LogCollector subscribes to one or more containers' log streams and fans
// frames out onto a single channel.
type LogCollector struct {
	streamer Streamer
	frames   chan domain.RawLogFrame

	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration

	mu      sync.Mutex
	tombs   map[string]*tomb.Tomb
}

// NewLogCollector creates a collector that pushes frames onto a channel of
// the given buffer size.
func NewLogCollector(streamer Streamer, bufferSize int) *LogCollector {
	return &LogCollector{
		streamer:       streamer,
		frames:         make(chan domain.RawLogFrame, bufferSize),
		retryBaseDelay: 500 * time.Millisecond,
		retryMaxDelay:  30 * time.Second,
		tombs:          make(map[string]*tomb.Tomb),
	}
}

// Frames returns the channel every watched container's log lines are
// published on.
func (c *LogCollector) Frames() <-chan domain.RawLogFrame {
	return c.frames
}

// Watch starts tailing a container's combined stdout/stderr stream. It
// returns once the puller goroutine has been registered; the goroutine
// itself runs until ctx is done, the puller is stopped, or the container
// stream ends cleanly; a stream error is retried with capped backoff.
func (c *LogCollector) Watch(ctx context.Context, containerID string) {
	c.mu.Lock()
	if _, exists := c.tombs[containerID]; exists {
		c.mu.Unlock()
		return
	}
	t := &tomb.Tomb{}
	c.tombs[containerID] = t
	c.mu.Unlock()

	t.Go(func() error {
		return c.loop(ctx, containerID, t)
	})
}

// Stop cancels the puller for a specific container and waits for it to
// exit.
func (c *LogCollector) Stop(containerID string) {
	c.mu.Lock()
	t, ok := c.tombs[containerID]
	delete(c.tombs, containerID)
	c.mu.Unlock()
	if !ok {
		return
	}
	t.Kill(nil)
	_ = t.Wait()
}

// StopAll cancels every puller and waits for them to exit, then closes the
// shared frame channel.
func (c *LogCollector) StopAll() {
	c.mu.Lock()
	tombs := make([]*tomb.Tomb, 0, len(c.tombs))
	for _, t := range c.tombs {
		tombs = append(tombs, t)
	}
	c.tombs = make(map[string]*tomb.Tomb)
	c.mu.Unlock()

	for _, t := range tombs {
		t.Kill(nil)
	}
	for _, t := range tombs {
		_ = t.Wait()
	}
	close(c.frames)
}

func (c *LogCollector) loop(ctx context.Context, containerID string, t *tomb.Tomb) error {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.Dying():
			return nil
		default:
		}

		err := c.stream(ctx, containerID, t)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}

		attempt++
		delay := backoff(c.retryBaseDelay, c.retryMaxDelay, attempt)
		logger.Noticef("collector: stream for container %s ended, retrying in %s: %v", containerID, delay, err)

		select {
		case <-ctx.Done():
			return nil
		case <-t.Dying():
			return nil
		case <-time.After(delay):
		}
	}
}

func backoff(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// stream opens the container's log stream and demuxes stdout/stderr,
// publishing one RawLogFrame per line until the stream ends or ctx is
// cancelled. A nil error means the stream ended cleanly (EOF) and the
// caller should not retry.
func (c *LogCollector) stream(ctx context.Context, containerID string, t *tomb.Tomb) error {
	rc, err := c.streamer.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
		Timestamps: true,
	})
	if err != nil {
		return err
	}
	defer rc.Close()

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()

	copyDone := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(stdoutW, stderrW, rc)
		stdoutW.CloseWithError(copyErr)
		stderrW.CloseWithError(copyErr)
		copyDone <- copyErr
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.scanLines(ctx, containerID, domain.StreamStdout, stdoutR)
	}()
	go func() {
		defer wg.Done()
		c.scanLines(ctx, containerID, domain.StreamStderr, stderrR)
	}()

	select {
	case <-ctx.Done():
		rc.Close()
		wg.Wait()
		return context.Canceled
	case <-t.Dying():
		rc.Close()
		wg.Wait()
		return context.Canceled
	case err := <-copyDone:
		wg.Wait()
		return err
	}
}

func (c *LogCollector) scanLines(ctx context.Context, containerID string, stream domain.Stream, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		ts, rest := splitTimestamp(line)
		frame := domain.RawLogFrame{
			Bytes:            append([]byte(nil), rest...),
			ContainerID:      containerID,
			Stream:           stream,
			RuntimeTimestamp: ts,
		}
		select {
		case c.frames <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// splitTimestamp strips the RFC3339Nano timestamp Docker prepends when
// Timestamps:true is set ("2024-01-02T15:04:05.000000000Z message").
func splitTimestamp(line []byte) (time.Time, []byte) {
	idx := -1
	for i, b := range line {
		if b == ' ' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return time.Now().UTC(), line
	}
	ts, err := time.Parse(time.RFC3339Nano, string(line[:idx]))
	if err != nil {
		return time.Now().UTC(), line
	}
	if idx+1 >= len(line) {
		return ts, nil
	}
	return ts, line[idx+1:]
}

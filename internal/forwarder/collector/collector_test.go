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

package collector_test

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/require"

	"github.com/rask-sh/rask-pipeline/internal/domain"
	"github.com/rask-sh/rask-pipeline/internal/forwarder/collector"
)

type fakeStreamer struct {
	body io.ReadCloser
}

func (f *fakeStreamer) ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error) {
	return f.body, nil
}

func buildStream(t *testing.T, lines []string) io.ReadCloser {
	t.Helper()
	var buf bytes.Buffer
	w := stdcopy.NewStdWriter(&buf, stdcopy.Stdout)
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, line := range lines {
		payload := []byte(ts.Format(time.RFC3339Nano) + " " + line + "\n")
		_, err := w.Write(payload)
		require.NoError(t, err)
	}
	return io.NopCloser(&buf)
}

func TestLogCollectorPublishesFrames(t *testing.T) {
	stream := buildStream(t, []string{"hello", "world"})
	c := collector.NewLogCollector(&fakeStreamer{body: stream}, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Watch(ctx, "container-1")

	got := make([]domain.RawLogFrame, 0, 2)
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case f := <-c.Frames():
			got = append(got, f)
		case <-timeout:
			t.Fatal("timed out waiting for frames")
		}
	}
	require.Equal(t, "hello", string(got[0].Bytes))
	require.Equal(t, "world", string(got[1].Bytes))
	require.Equal(t, domain.StreamStdout, got[0].Stream)
	require.Equal(t, "container-1", got[0].ContainerID)
}

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

package discovery_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rask-sh/rask-pipeline/internal/forwarder/discovery"
)

func TestEnvTargetService(t *testing.T) {
	cases := []struct {
		name string
		env  discovery.Env
		want string
		err  error
	}{
		{"explicit wins", discovery.Env{TargetService: "api", Hostname: "web-logs"}, "api", nil},
		{"network mode sidecar", discovery.Env{NetworkMode: "service:worker"}, "worker", nil},
		{"compose service", discovery.Env{ComposeService: "scheduler"}, "scheduler", nil},
		{"hostname pattern", discovery.Env{Hostname: "billing-logs"}, "billing", nil},
		{"nothing resolves", discovery.Env{Hostname: "billing"}, "", discovery.ErrNoTargetService},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := c.env.TargetService()
			if c.err != nil {
				require.ErrorIs(t, err, c.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, c.want, got)
		})
	}
}

type fakeRuntime struct {
	containers []discovery.RuntimeContainer
}

func (f *fakeRuntime) ListRunningContainers(context.Context) ([]discovery.RuntimeContainer, error) {
	return f.containers, nil
}

func TestFindContainerByServiceMatchPatterns(t *testing.T) {
	cases := []struct {
		name          string
		containerName string
		service       string
		match         bool
	}{
		{"exact", "api", "api", true},
		{"underscore prefix", "api_1", "api", true},
		{"dash prefix", "api-worker", "api", true},
		{"compose numbered suffix", "myproject-api-1", "api", true},
		{"dash suffix", "myproject-api", "api", true},
		{"token match", "prod-api-us-east", "api", true},
		{"no match", "frontend", "api", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			runtime := &fakeRuntime{containers: []discovery.RuntimeContainer{
				{ID: "abc123", Names: []string{"/" + c.containerName}, Labels: map[string]string{"rask.group": "core"}},
			}}
			d := discovery.New(runtime)
			info, err := d.FindContainerByService(context.Background(), c.service)
			if !c.match {
				require.ErrorIs(t, err, discovery.ErrContainerNotFound)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "abc123", info.ID)
			require.Equal(t, "core", info.Group)
		})
	}
}

func TestFindContainerByServiceNotFound(t *testing.T) {
	d := discovery.New(&fakeRuntime{})
	_, err := d.FindContainerByService(context.Background(), "missing")
	require.ErrorIs(t, err, discovery.ErrContainerNotFound)
}

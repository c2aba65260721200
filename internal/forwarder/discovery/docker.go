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

package discovery

import (
	"context"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// DockerRuntime adapts *client.Client to the ContainerRuntime interface.
type DockerRuntime struct {
	cli *client.Client
}

// NewDockerRuntime dials the local Docker daemon using the environment's
// standard DOCKER_HOST/DOCKER_CERT_PATH/DOCKER_API_VERSION conventions.
func NewDockerRuntime() (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &DockerRuntime{cli: cli}, nil
}

func (r *DockerRuntime) ListRunningContainers(ctx context.Context) ([]RuntimeContainer, error) {
	containers, err := r.cli.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]RuntimeContainer, len(containers))
	for i, c := range containers {
		out[i] = RuntimeContainer{
			ID:     c.ID,
			Names:  c.Names,
			Labels: c.Labels,
		}
	}
	return out, nil
}

// Client exposes the underlying docker client, e.g. for the collector to
// call ContainerLogs directly.
func (r *DockerRuntime) Client() *client.Client {
	return r.cli
}

func (r *DockerRuntime) Close() error {
	return r.cli.Close()
}

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

// Package discovery resolves the target service name for this forwarder
// instance and finds the container that backs it.
package discovery

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNoTargetService is returned when no env hint or hostname pattern
	// identifies a target service.
	ErrNoTargetService = errors.New("discovery: no target service")
	// ErrContainerNotFound is returned when no running container matches
	// the resolved service name.
	ErrContainerNotFound = errors.New("discovery: container not found")
	// ErrInvalidHostname names a hostname that doesn't follow the
	// "<svc>-logs" convention. Nothing in this package returns it: such a
	// hostname, with no other source, yields ErrNoTargetService.
	ErrInvalidHostname = errors.New("discovery: invalid hostname pattern")
)

// ContainerInfo describes the container backing the target service.
type ContainerInfo struct {
	ID          string
	ServiceName string
	Labels      map[string]string
	Group       string // labels["rask.group"], empty if absent
}

// Env is the subset of process environment/network-mode hints discovery
// consults. Kept as a struct (rather than reading os.Getenv directly) so
// tests can drive it without mutating process state.
type Env struct {
	TargetService  string // TARGET_SERVICE
	NetworkMode    string // NETWORK_MODE, e.g. "service:<svc>"
	Hostname       string // HOSTNAME
	ComposeService string // COMPOSE_SERVICE
}

// TargetService resolves the service name this forwarder should tail, per
// spec.md 4.1: explicit TARGET_SERVICE, then NETWORK_MODE's
// "service:<svc>" sidecar form, then COMPOSE_SERVICE, then the
// "<svc>-logs" hostname convention.
func (e Env) TargetService() (string, error) {
	if e.TargetService != "" {
		return e.TargetService, nil
	}
	if svc, ok := strings.CutPrefix(e.NetworkMode, "service:"); ok && svc != "" {
		return svc, nil
	}
	if e.ComposeService != "" {
		return e.ComposeService, nil
	}
	if svc, ok := strings.CutSuffix(e.Hostname, "-logs"); ok && svc != "" {
		return svc, nil
	}
	return "", ErrNoTargetService
}

// ContainerRuntime is the subset of the Docker SDK client discovery needs,
// kept small and interface-shaped so a fake can stand in for tests instead
// of a live daemon.
type ContainerRuntime interface {
	ListRunningContainers(ctx context.Context) ([]RuntimeContainer, error)
}

// RuntimeContainer is the container listing shape discovery needs,
// independent of the docker SDK's own types.
type RuntimeContainer struct {
	ID     string
	Names  []string // as reported by the runtime, leading "/" not yet trimmed
	Labels map[string]string
}

// ServiceDiscovery finds the container for a resolved service name.
type ServiceDiscovery struct {
	Runtime ContainerRuntime
}

func New(runtime ContainerRuntime) *ServiceDiscovery {
	return &ServiceDiscovery{Runtime: runtime}
}

// FindContainerByService lists running containers and selects one whose
// name matches any of the patterns in spec.md 4.1: exact name, "<name>_*",
// "<name>-*", "*-<name>-1", "*-<name>", or presence of name as a
// dash/underscore-separated token.
func (d *ServiceDiscovery) FindContainerByService(ctx context.Context, name string) (ContainerInfo, error) {
	containers, err := d.Runtime.ListRunningContainers(ctx)
	if err != nil {
		return ContainerInfo{}, err
	}
	for _, c := range containers {
		for _, rawName := range c.Names {
			trimmed := strings.TrimPrefix(rawName, "/")
			if matchesService(trimmed, name) {
				return ContainerInfo{
					ID:          c.ID,
					ServiceName: name,
					Labels:      c.Labels,
					Group:       c.Labels["rask.group"],
				}, nil
			}
		}
	}
	return ContainerInfo{}, ErrContainerNotFound
}

func matchesService(containerName, service string) bool {
	switch {
	case containerName == service:
		return true
	case strings.HasPrefix(containerName, service+"_"):
		return true
	case strings.HasPrefix(containerName, service+"-"):
		return true
	case strings.HasSuffix(containerName, "-"+service+"-1"):
		return true
	case strings.HasSuffix(containerName, "-"+service):
		return true
	}
	for _, token := range splitTokens(containerName) {
		if token == service {
			return true
		}
	}
	return false
}

// splitTokens splits a container name on dashes and underscores, the
// compose/swarm naming separators.
func splitTokens(name string) []string {
	return strings.FieldsFunc(name, func(r rune) bool {
		return r == '-' || r == '_'
	})
}

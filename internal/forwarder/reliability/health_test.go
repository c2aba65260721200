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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rask-sh/rask-pipeline/internal/forwarder/reliability"
)

func TestEmptyComponentSetIsUnhealthy(t *testing.T) {
	m := reliability.NewHealthMonitor(3, 2)
	require.Equal(t, reliability.Unhealthy, m.OverallHealth())
}

func TestHealthFlipsUnhealthyThenRecovers(t *testing.T) {
	m := reliability.NewHealthMonitor(3, 2)
	m.RecordHealthCheck("transmission", true, "")
	require.Equal(t, reliability.Healthy, m.OverallHealth())

	m.RecordHealthCheck("transmission", false, "timeout")
	m.RecordHealthCheck("transmission", false, "timeout")
	m.RecordHealthCheck("transmission", false, "timeout")
	h, reason := m.ComponentHealth("transmission")
	require.Equal(t, reliability.Unhealthy, h)
	require.Equal(t, "timeout", reason)
	require.Equal(t, reliability.Unhealthy, m.OverallHealth())

	m.RecordHealthCheck("transmission", true, "")
	m.RecordHealthCheck("transmission", true, "")
	h, _ = m.ComponentHealth("transmission")
	require.Equal(t, reliability.Healthy, h)
}

func TestOverallHealthStaysHealthyBelowUnhealthyThreshold(t *testing.T) {
	// Degraded state requires a component explicitly in Degraded; since
	// RecordHealthCheck only transitions Healthy<->Unhealthy here, this
	// exercises that a single-failure-but-not-yet-unhealthy component
	// still reports overall Healthy (below threshold).
	m := reliability.NewHealthMonitor(3, 2)
	m.RecordHealthCheck("disk_fallback", false, "disk full")
	require.Equal(t, reliability.Healthy, m.OverallHealth())
}

func TestSweepStaleDropsOldComponents(t *testing.T) {
	m := reliability.NewHealthMonitor(3, 2)
	m.RecordHealthCheck("transmission", true, "")
	m.SweepStale(0)
	require.Equal(t, reliability.Unhealthy, m.OverallHealth()) // component dropped, set is empty

	_, reason := m.ComponentHealth("transmission")
	require.Empty(t, reason)
}

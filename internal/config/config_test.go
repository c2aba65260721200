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

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rask-sh/rask-pipeline/internal/config"
)

func TestLoadForwarderConfigDefaults(t *testing.T) {
	cfg, err := config.LoadForwarderConfig()
	require.NoError(t, err)
	require.Equal(t, "http://rask-aggregator:9600/v1/aggregate", cfg.Endpoint)
}

func TestLoadForwarderConfigReadsEnv(t *testing.T) {
	t.Setenv("TARGET_SERVICE", "checkout")
	t.Setenv("RASK_ENDPOINT", "https://collector.internal/v1/aggregate")
	t.Setenv("RASK_GROUP", "payments")

	cfg, err := config.LoadForwarderConfig()
	require.NoError(t, err)
	require.Equal(t, "checkout", cfg.TargetService)
	require.Equal(t, "https://collector.internal/v1/aggregate", cfg.Endpoint)
	require.Equal(t, "payments", cfg.Group)
}

func TestLoadForwarderConfigRejectsBadEndpoint(t *testing.T) {
	t.Setenv("RASK_ENDPOINT", "not-a-url")
	_, err := config.LoadForwarderConfig()
	require.Error(t, err)
}

func TestLoadAggregatorConfigRequiresHost(t *testing.T) {
	_, err := config.LoadAggregatorConfig()
	require.Error(t, err)
}

func TestLoadAggregatorConfigReadsEnv(t *testing.T) {
	t.Setenv("APP_CLICKHOUSE_HOST", "clickhouse.internal")
	t.Setenv("APP_CLICKHOUSE_PORT", "9000")
	t.Setenv("HTTP_PORT", "9600")
	t.Setenv("OTLP_HTTP_PORT", "4318")

	cfg, err := config.LoadAggregatorConfig()
	require.NoError(t, err)
	require.Equal(t, "clickhouse.internal", cfg.ClickhouseHost)
	require.Equal(t, 9000, cfg.ClickhousePort)
	require.Equal(t, 9600, cfg.HTTPPort)
}

func TestLoadAggregatorConfigRejectsZeroHTTPPort(t *testing.T) {
	t.Setenv("APP_CLICKHOUSE_HOST", "clickhouse.internal")
	t.Setenv("HTTP_PORT", "0")
	_, err := config.LoadAggregatorConfig()
	require.Error(t, err)
}

func TestLoadAggregatorConfigReadsPasswordFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "password")
	require.NoError(t, writeFile(path, "s3cr3t\n"))

	t.Setenv("APP_CLICKHOUSE_HOST", "clickhouse.internal")
	t.Setenv("APP_CLICKHOUSE_PASSWORD_FILE", path)

	cfg, err := config.LoadAggregatorConfig()
	require.NoError(t, err)
	require.Equal(t, "s3cr3t", cfg.ClickhousePassword)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}

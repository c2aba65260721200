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

// Package config loads forwarder and aggregator settings from
// environment variables via spf13/viper's AutomaticEnv binding, the way
// mfhonley-catops wires Viper to its agent's env-driven config. File and
// flag-based configuration are external collaborators out of scope for
// this module (spec.md 1); Viper here is only the vehicle for env var
// plumbing and defaults.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// ForwarderConfig holds every env var the forwarder recognizes
// (spec.md 6).
type ForwarderConfig struct {
	TargetService  string
	Endpoint       string
	NetworkMode    string
	Group          string
	ComposeService string
	Hostname       string
}

// AggregatorConfig holds every env var the aggregator recognizes.
type AggregatorConfig struct {
	ClickhouseHost     string
	ClickhousePort     int
	ClickhouseUser     string
	ClickhousePassword string
	ClickhouseDatabase string
	HTTPPort           int
	OTLPHTTPPort       int
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("rask_endpoint", "http://rask-aggregator:9600/v1/aggregate")
	v.SetDefault("http_port", 9600)
	v.SetDefault("otlp_http_port", 4318)
	return v
}

// LoadForwarderConfig reads TARGET_SERVICE, RASK_ENDPOINT, NETWORK_MODE,
// RASK_GROUP, COMPOSE_SERVICE and HOSTNAME from the environment.
// TARGET_SERVICE is resolved by internal/forwarder/discovery if empty, so
// it is not validated here; RASK_ENDPOINT must be a valid http(s) URL.
func LoadForwarderConfig() (ForwarderConfig, error) {
	v := newViper()
	cfg := ForwarderConfig{
		TargetService:  v.GetString("target_service"),
		Endpoint:       v.GetString("rask_endpoint"),
		NetworkMode:    v.GetString("network_mode"),
		Group:          v.GetString("rask_group"),
		ComposeService: v.GetString("compose_service"),
		Hostname:       v.GetString("hostname"),
	}
	if cfg.Endpoint == "" {
		return cfg, fmt.Errorf("config: RASK_ENDPOINT must not be empty")
	}
	if !strings.HasPrefix(cfg.Endpoint, "http://") && !strings.HasPrefix(cfg.Endpoint, "https://") {
		return cfg, fmt.Errorf("config: RASK_ENDPOINT must be an http(s) URL, got %q", cfg.Endpoint)
	}
	return cfg, nil
}

// LoadAggregatorConfig reads the APP_CLICKHOUSE_* family, HTTP_PORT and
// OTLP_HTTP_PORT. APP_CLICKHOUSE_PASSWORD_FILE, when set, takes
// precedence over APP_CLICKHOUSE_PASSWORD and is read from disk.
func LoadAggregatorConfig() (AggregatorConfig, error) {
	v := newViper()
	cfg := AggregatorConfig{
		ClickhouseHost:     v.GetString("app_clickhouse_host"),
		ClickhousePort:     v.GetInt("app_clickhouse_port"),
		ClickhouseUser:     v.GetString("app_clickhouse_user"),
		ClickhousePassword: v.GetString("app_clickhouse_password"),
		ClickhouseDatabase: v.GetString("app_clickhouse_database"),
		HTTPPort:           v.GetInt("http_port"),
		OTLPHTTPPort:       v.GetInt("otlp_http_port"),
	}

	if passwordFile := v.GetString("app_clickhouse_password_file"); passwordFile != "" {
		data, err := os.ReadFile(passwordFile)
		if err != nil {
			return cfg, fmt.Errorf("config: read APP_CLICKHOUSE_PASSWORD_FILE: %w", err)
		}
		cfg.ClickhousePassword = strings.TrimSpace(string(data))
	}

	if cfg.ClickhouseHost == "" {
		return cfg, fmt.Errorf("config: APP_CLICKHOUSE_HOST must not be empty")
	}
	if cfg.HTTPPort == 0 {
		return cfg, fmt.Errorf("config: HTTP_PORT must not be 0")
	}
	if cfg.OTLPHTTPPort == 0 {
		return cfg, fmt.Errorf("config: OTLP_HTTP_PORT must not be 0")
	}
	return cfg, nil
}

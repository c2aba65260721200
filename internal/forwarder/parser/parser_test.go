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

package parser_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rask-sh/rask-pipeline/internal/domain"
	"github.com/rask-sh/rask-pipeline/internal/forwarder/parser"
)

func TestNginxAccessParsing(t *testing.T) {
	line := []byte(`127.0.0.1 - - [03/Jul/2025:16:27:09 +0000] "GET /api/test HTTP/1.1" 200 1024 "-" "test-agent"`)
	p := parser.NewNginxAccessParser()
	require.True(t, p.CanParse(line))
	entry := p.Parse(line)
	require.Equal(t, domain.LogTypeAccess, entry.LogType)
	require.Equal(t, "GET", entry.Method)
	require.Equal(t, "/api/test", entry.Path)
	require.NotNil(t, entry.StatusCode)
	require.Equal(t, uint16(200), *entry.StatusCode)
	require.NotNil(t, entry.ResponseSize)
	require.Equal(t, uint64(1024), *entry.ResponseSize)
	require.Equal(t, "127.0.0.1", entry.IPAddress)
	require.Equal(t, "test-agent", entry.UserAgent)
	require.NotNil(t, entry.Level)
	require.Equal(t, domain.LevelInfo, *entry.Level)
}

func TestNginxAccessDashSizeIsZero(t *testing.T) {
	line := []byte(`10.0.0.1 - - [03/Jul/2025:16:27:09 +0000] "POST /x HTTP/1.1" 500 - "-" "ua"`)
	entry := parser.NewNginxAccessParser().Parse(line)
	require.NotNil(t, entry.ResponseSize)
	require.Equal(t, uint64(0), *entry.ResponseSize)
	require.Equal(t, domain.LevelError, *entry.Level)
}

func TestNginxErrorLevelFromBracket(t *testing.T) {
	line := []byte(`2025/07/03 16:27:09 [error] 123#0: something broke`)
	p := parser.NewNginxErrorParser()
	require.True(t, p.CanParse(line))
	entry := p.Parse(line)
	require.Equal(t, domain.LogTypeError, entry.LogType)
	require.Equal(t, domain.LevelError, *entry.Level)
}

func TestPostgresLevelMapping(t *testing.T) {
	cases := []struct {
		line string
		want domain.LogLevel
	}{
		{"2025-01-01 LOG:  database system is ready", domain.LevelInfo},
		{"2025-01-01 WARNING:  deprecated option", domain.LevelWarn},
		{"2025-01-01 ERROR:  relation does not exist", domain.LevelError},
		{"2025-01-01 FATAL:  connection limit exceeded", domain.LevelFatal},
	}
	p := parser.NewPostgresParser()
	for _, c := range cases {
		require.True(t, p.CanParse([]byte(c.line)))
		entry := p.Parse([]byte(c.line))
		require.Equal(t, c.want, *entry.Level)
	}
}

func TestGoStructuredWithRuntimePrefix(t *testing.T) {
	line := []byte(`2025-07-03T16:27:09Z {"level":"info","msg":"hi","service":"svc"}`)
	p := parser.NewGoStructuredParser()
	require.True(t, p.CanParse(line))
	entry := p.Parse(line)
	require.Equal(t, domain.LogTypeStructured, entry.LogType)
	require.Equal(t, domain.LevelInfo, *entry.Level)
	require.Equal(t, "hi", entry.Message)
	require.Equal(t, "svc", entry.Fields["service"])
}

func TestGoStructuredLiftsNumericStatus(t *testing.T) {
	line := []byte(`{"level":"info","msg":"request handled","status":200}`)
	p := parser.NewGoStructuredParser()
	entry := p.Parse(line)
	require.NotNil(t, entry.StatusCode)
	require.Equal(t, uint16(200), *entry.StatusCode)
	_, ok := entry.Fields["status"]
	require.False(t, ok, "status must not also leak into Fields")
}

func TestGoStructuredLiftsStringStatus(t *testing.T) {
	line := []byte(`{"level":"info","msg":"request handled","status":"404"}`)
	p := parser.NewGoStructuredParser()
	entry := p.Parse(line)
	require.NotNil(t, entry.StatusCode)
	require.Equal(t, uint16(404), *entry.StatusCode)
}

func TestRegistryFallsBackToPlain(t *testing.T) {
	r := parser.DefaultRegistry()
	frame := domain.RawLogFrame{Bytes: []byte("just some unstructured text"), ContainerID: "c1"}
	entry := r.Parse(frame, "svc", "")
	require.Equal(t, domain.LogTypePlain, entry.LogType)
	require.Equal(t, "svc", entry.ServiceType)
}

func TestRegistryNeverPanicsOnGarbageInput(t *testing.T) {
	r := parser.DefaultRegistry()
	inputs := [][]byte{
		{},
		{0, 0, 0},
		[]byte("{not valid json"),
		append([]byte(`{"level":`), 0xff, 0xfe),
	}
	for _, in := range inputs {
		frame := domain.RawLogFrame{Bytes: in, ContainerID: "c1"}
		entry := r.Parse(frame, "svc", "")
		require.Equal(t, "svc", entry.ServiceType)
	}
}

func TestHasHTTPWithAllHTTPFieldsSet(t *testing.T) {
	status := uint16(200)
	size := uint64(1024)
	entry := domain.EnrichedLogEntry{
		ParsedLogEntry: domain.ParsedLogEntry{
			Method:       "GET",
			Path:         "/api/test",
			StatusCode:   &status,
			ResponseSize: &size,
			IPAddress:    "127.0.0.1",
			UserAgent:    "test-agent",
		},
	}
	require.True(t, entry.HasHTTP())
}

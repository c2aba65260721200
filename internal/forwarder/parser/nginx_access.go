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

package parser

import (
	"regexp"

	"github.com/rask-sh/rask-pipeline/internal/domain"
)

// combinedLogFormat matches the nginx Combined Log Format:
// $remote_addr - $remote_user [$time_local] "$request" $status $body_bytes_sent "$http_referer" "$http_user_agent"
var combinedLogFormat = regexp.MustCompile(
	`^(\S+) \S+ \S+ \[[^\]]+\] "(\S+) (\S+)[^"]*" (\d{3}) (\S+) "[^"]*" "([^"]*)"`,
)

// NginxAccessParser recognizes nginx's Combined Log Format access lines.
type NginxAccessParser struct{}

func NewNginxAccessParser() *NginxAccessParser { return &NginxAccessParser{} }

func (p *NginxAccessParser) Name() string  { return "nginx-access" }
func (p *NginxAccessParser) Priority() int { return 90 }

func (p *NginxAccessParser) CanParse(line []byte) bool {
	return combinedLogFormat.Match(line)
}

func (p *NginxAccessParser) Parse(line []byte) domain.ParsedLogEntry {
	m := combinedLogFormat.FindSubmatch(line)
	entry := domain.ParsedLogEntry{
		LogType: domain.LogTypeAccess,
		Message: string(line),
		Fields:  map[string]string{},
	}
	if m == nil {
		return entry
	}

	ip := string(m[1])
	method := string(m[2])
	path := string(m[3])
	statusBytes := m[4]
	sizeBytes := m[5]
	ua := string(m[6])

	entry.IPAddress = ip
	entry.Method = method
	entry.Path = path
	entry.UserAgent = ua

	if status, err := parseUint16Bytes(statusBytes); err == nil {
		entry.StatusCode = &status
		level := statusToLevel(status)
		entry.Level = &level
	}

	// "-" denotes no body (spec.md 4.3: treat "-" in size as 0).
	var size uint64
	if len(sizeBytes) != 1 || sizeBytes[0] != '-' {
		if parsedSize, err := parseUintBytes(sizeBytes); err == nil {
			size = parsedSize
		}
	}
	entry.ResponseSize = &size

	return entry
}

func statusToLevel(status uint16) domain.LogLevel {
	switch {
	case status >= 500:
		return domain.LevelError
	case status >= 400:
		return domain.LevelWarn
	default:
		return domain.LevelInfo
	}
}

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

// nginxErrorPrefix matches "YYYY/MM/DD HH:MM:SS [level] ..."
var nginxErrorPrefix = regexp.MustCompile(`^\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2} \[(\w+)\]`)

// NginxErrorParser recognizes nginx's error_log format.
type NginxErrorParser struct{}

func NewNginxErrorParser() *NginxErrorParser { return &NginxErrorParser{} }

func (p *NginxErrorParser) Name() string  { return "nginx-error" }
func (p *NginxErrorParser) Priority() int { return 85 }

func (p *NginxErrorParser) CanParse(line []byte) bool {
	return nginxErrorPrefix.Match(line)
}

func (p *NginxErrorParser) Parse(line []byte) domain.ParsedLogEntry {
	m := nginxErrorPrefix.FindSubmatch(line)
	level := domain.LevelInfo
	if m != nil {
		level = domain.ParseLevel(string(m[1]))
	}
	return domain.ParsedLogEntry{
		LogType: domain.LogTypeError,
		Message: string(line),
		Level:   &level,
		Fields:  map[string]string{},
	}
}

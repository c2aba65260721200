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
	"bytes"
	"strings"

	"github.com/rask-sh/rask-pipeline/internal/domain"
)

var postgresMarkers = []string{"DEBUG", "LOG:", "INFO:", "NOTICE:", "WARNING:", "ERROR:", "FATAL:", "PANIC:"}

// PostgresParser recognizes PostgreSQL's "LEVEL:  message" log lines.
type PostgresParser struct{}

func NewPostgresParser() *PostgresParser { return &PostgresParser{} }

func (p *PostgresParser) Name() string  { return "postgres" }
func (p *PostgresParser) Priority() int { return 70 }

func (p *PostgresParser) CanParse(line []byte) bool {
	for _, marker := range postgresMarkers {
		if bytes.Contains(line, []byte(marker)) {
			return true
		}
	}
	return false
}

func (p *PostgresParser) Parse(line []byte) domain.ParsedLogEntry {
	level := postgresLevel(line)
	return domain.ParsedLogEntry{
		LogType: domain.LogTypeDatabase,
		Message: string(line),
		Level:   &level,
		Fields:  map[string]string{},
	}
}

func postgresLevel(line []byte) domain.LogLevel {
	s := string(line)
	switch {
	case strings.Contains(s, "PANIC:"), strings.Contains(s, "FATAL:"):
		return domain.LevelFatal
	case strings.Contains(s, "ERROR:"):
		return domain.LevelError
	case strings.Contains(s, "WARNING:"), strings.Contains(s, "NOTICE:"):
		return domain.LevelWarn
	case strings.Contains(s, "LOG:"), strings.Contains(s, "INFO:"):
		return domain.LevelInfo
	case strings.Contains(s, "DEBUG"):
		return domain.LevelDebug
	default:
		return domain.LevelInfo
	}
}

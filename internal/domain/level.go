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

package domain

import "strings"

// LogLevel is the normalized severity of a parsed or enriched log entry.
// The numeric values are part of the wire contract with ColumnarRow.level
// and must not be renumbered.
type LogLevel int8

const (
	LevelDebug LogLevel = 0
	LevelInfo  LogLevel = 1
	LevelWarn  LogLevel = 2
	LevelError LogLevel = 3
	LevelFatal LogLevel = 4
)

// String renders the level the way log lines and JSON fields use it.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	default:
		return "info"
	}
}

// ParseLevel maps a case-insensitive level word to a LogLevel. An
// unrecognized word defaults to LevelInfo, matching the bijection's "absent
// level" behavior for both Postgres and OTel severity mapping.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace", "dbug":
		return LevelDebug
	case "info", "notice", "log":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error", "err":
		return LevelError
	case "fatal", "panic", "critical", "crit":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// OTelSeverityToLevel maps an OTLP SeverityNumber (1-24) to a LogLevel,
// per the OTel severity number ranges: 1-4 Trace/Debug, 5-8 Debug, 9-12
// Info, 13-16 Warn, 17-20 Error, 21-24 Fatal.
func OTelSeverityToLevel(n int32) LogLevel {
	switch {
	case n <= 0:
		return LevelInfo
	case n <= 8:
		return LevelDebug
	case n <= 12:
		return LevelInfo
	case n <= 16:
		return LevelWarn
	case n <= 20:
		return LevelError
	default:
		return LevelFatal
	}
}

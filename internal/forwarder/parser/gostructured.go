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
	"encoding/json"
	"fmt"

	"github.com/rask-sh/rask-pipeline/internal/domain"
)

// GoStructuredParser recognizes structured JSON log lines, optionally
// prefixed by a runtime-injected timestamp (e.g. "2025-07-03T16:27:09Z
// {...}"), as commonly emitted by Go services using slog/zerolog/zap.
type GoStructuredParser struct{}

func NewGoStructuredParser() *GoStructuredParser { return &GoStructuredParser{} }

func (p *GoStructuredParser) Name() string  { return "go-structured" }
func (p *GoStructuredParser) Priority() int { return 60 }

func (p *GoStructuredParser) CanParse(line []byte) bool {
	obj, ok := extractJSONObject(line)
	if !ok {
		return false
	}
	var m map[string]any
	if err := json.Unmarshal(obj, &m); err != nil {
		return false
	}
	_, hasLevel := m["level"]
	_, hasMsg := m["msg"]
	_, hasMessage := m["message"]
	return hasLevel || hasMsg || hasMessage
}

func (p *GoStructuredParser) Parse(line []byte) domain.ParsedLogEntry {
	obj, ok := extractJSONObject(line)
	if !ok {
		return plainFallback(line)
	}
	var m map[string]any
	if err := json.Unmarshal(obj, &m); err != nil {
		return plainFallback(line)
	}

	entry := domain.ParsedLogEntry{
		LogType: domain.LogTypeStructured,
		Fields:  map[string]string{},
	}

	if lvl, ok := stringValue(m["level"]); ok {
		level := domain.ParseLevel(lvl)
		entry.Level = &level
	}
	if msg, ok := stringValue(m["msg"]); ok {
		entry.Message = msg
	} else if msg, ok := stringValue(m["message"]); ok {
		entry.Message = msg
	}
	if method, ok := stringValue(m["method"]); ok {
		entry.Method = method
	}
	if path, ok := stringValue(m["path"]); ok {
		entry.Path = path
	}
	if v, ok := statusCodeValue(m["status"]); ok {
		entry.StatusCode = &v
	}

	for k, v := range m {
		switch k {
		case "level", "msg", "message", "method", "path", "status":
			continue
		}
		entry.Fields[k] = fieldString(v)
	}

	return entry
}

// extractJSONObject finds the first '{' and returns everything from there
// to the end of line, tolerating a leading runtime timestamp.
func extractJSONObject(line []byte) ([]byte, bool) {
	idx := bytes.IndexByte(line, '{')
	if idx < 0 {
		return nil, false
	}
	return line[idx:], true
}

func stringValue(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// statusCodeValue lifts an HTTP status from either a JSON number (the
// encoding/json default for {"status":200}) or a numeric string, matching
// the original parser's v.as_u64() handling.
func statusCodeValue(v any) (uint16, bool) {
	switch t := v.(type) {
	case float64:
		if t < 0 || t > 0xFFFF {
			return 0, false
		}
		return uint16(t), true
	case string:
		n, err := parseUint16Bytes([]byte(t))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// fieldString renders a decoded JSON value as a bare string for primitives
// and as compact JSON for maps/arrays, per spec.md 4.3.
func fieldString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case bool, float64:
		return fmt.Sprintf("%v", t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

func plainFallback(line []byte) domain.ParsedLogEntry {
	return domain.ParsedLogEntry{
		LogType: domain.LogTypePlain,
		Message: string(line),
		Fields:  map[string]string{},
	}
}

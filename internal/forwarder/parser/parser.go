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

// Package parser routes a raw log frame through a priority-ordered set of
// sub-parsers to produce an EnrichedLogEntry. Dispatch is over a tagged
// registry of interface values, not reflection, per the "no runtime
// reflection" design note.
package parser

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rask-sh/rask-pipeline/internal/domain"
)

// SubParser is the capability set every format-specific parser implements.
type SubParser interface {
	// Name identifies the sub-parser, e.g. "nginx-access".
	Name() string
	// Priority ranks detection order, higher runs first (0-100).
	Priority() int
	// CanParse reports whether this sub-parser recognizes the line.
	CanParse(line []byte) bool
	// Parse converts a recognized line into a ParsedLogEntry. Only called
	// after CanParse has returned true.
	Parse(line []byte) domain.ParsedLogEntry
}

// Registry holds every registered SubParser sorted by descending priority,
// computed once at construction.
type Registry struct {
	parsers []SubParser
}

// NewRegistry builds a registry from the given sub-parsers, sorted by
// priority descending. Ties keep their relative input order (stable sort).
func NewRegistry(parsers ...SubParser) *Registry {
	sorted := make([]SubParser, len(parsers))
	copy(sorted, parsers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() > sorted[j].Priority()
	})
	return &Registry{parsers: sorted}
}

// DefaultRegistry builds the registry with every sub-parser spec.md 4.3
// names, in the order of the table (priority sort handles the rest).
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewNginxAccessParser(),
		NewNginxErrorParser(),
		NewPostgresParser(),
		NewGoStructuredParser(),
		NewMeilisearchParser(),
		NewPlainParser(),
	)
}

// Parse finds the first matching sub-parser and produces an
// EnrichedLogEntry. This never fails catastrophically: if every
// content-aware sub-parser declines (which should not happen, since
// PlainParser always matches), the frame still becomes a plain-text Info
// entry tagged with the container's resolved service type.
func (r *Registry) Parse(frame domain.RawLogFrame, serviceName, serviceGroup string) domain.EnrichedLogEntry {
	line := sanitize(frame.Bytes)

	var parsed domain.ParsedLogEntry
	matched := false
	for _, p := range r.parsers {
		if p.CanParse(line) {
			parsed = p.Parse(line)
			matched = true
			break
		}
	}
	if !matched {
		level := domain.LevelInfo
		parsed = domain.ParsedLogEntry{
			ServiceType: serviceName,
			LogType:     domain.LogTypePlain,
			Message:     string(line),
			Level:       &level,
			Fields:      map[string]string{},
		}
	}
	if parsed.ServiceType == "" {
		parsed.ServiceType = serviceName
	}
	if parsed.Fields == nil {
		parsed.Fields = map[string]string{}
	}
	if parsed.Timestamp == nil {
		ts := frame.RuntimeTimestamp
		parsed.Timestamp = &ts
	}

	entry := domain.EnrichedLogEntry{
		ParsedLogEntry: parsed,
		ContainerID:    frame.ContainerID,
		Stream:         frame.Stream,
		ServiceName:    serviceName,
		ServiceGroup:   serviceGroup,
	}
	return entry
}

// sanitize enforces the parser-family input validation spec.md 4.3
// requires: strip a trailing carriage return, drop embedded null bytes,
// and lossily repair invalid UTF-8 rather than panicking on it. The 10MB
// line cap is enforced earlier, by the collector's scanner buffer limit.
func sanitize(b []byte) []byte {
	if len(b) == 0 {
		return b
	}
	if b[len(b)-1] == '\r' {
		b = b[:len(b)-1]
	}
	clean := make([]byte, 0, len(b))
	for _, c := range b {
		if c == 0 {
			continue
		}
		clean = append(clean, c)
	}
	if !utf8.Valid(clean) {
		clean = []byte(strings.ToValidUTF8(string(clean), ""))
	}
	return clean
}

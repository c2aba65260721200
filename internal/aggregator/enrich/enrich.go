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

// Package enrich turns the two shapes the aggregator ingests - a decoded
// OTLP log record and a legacy NDJSON line - into the EnrichedLogEntry the
// row encoder consumes. Generalized from
// original_source/rask-log-aggregator/app/src/adapter/clickhouse/row.rs's
// severity and HTTP-field handling, extended to cover both entry points.
package enrich

import (
	"strconv"
	"time"

	"github.com/rask-sh/rask-pipeline/internal/domain"
)

// known attribute keys pulled out of the merged attribute map into the
// EnrichedLogEntry's dedicated HTTP fields, the inverse of
// otlpconv.encodeLogRecord's attrs["http.*"] projection.
const (
	attrContainerID  = "container.id"
	attrServiceGroup = "service.group"
	attrServiceName  = "service.name"
	attrHTTPMethod   = "http.method"
	attrHTTPPath     = "http.path"
	attrHTTPStatus   = "http.status"
	attrHTTPSize     = "http.size"
	attrHTTPIP       = "http.ip"
	attrHTTPUA       = "http.ua"
)

// OTelLog projects a decoded OTLP log record into an EnrichedLogEntry.
// Severity text maps to LogLevel case-insensitively via domain.ParseLevel,
// which already defaults absent/unrecognized text to Info.
func OTelLog(l domain.OTelLog, fallbackServiceName string) domain.EnrichedLogEntry {
	attrs := mergeAttributes(l.ResourceAttributes, l.ScopeAttributes, l.LogAttributes)

	serviceName := attrs[attrServiceName]
	if serviceName == "" {
		serviceName = fallbackServiceName
	}

	level := domain.ParseLevel(l.SeverityText)
	ts := l.Timestamp
	if ts.IsZero() {
		ts = l.ObservedTimestamp
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	entry := domain.EnrichedLogEntry{
		ParsedLogEntry: domain.ParsedLogEntry{
			ServiceType: serviceName,
			LogType:     domain.LogTypeStructured,
			Message:     l.Body,
			Level:       &level,
			Timestamp:   &ts,
			Fields:      remainingFields(attrs),
		},
		ContainerID:  attrs[attrContainerID],
		ServiceName:  serviceName,
		ServiceGroup: attrs[attrServiceGroup],
		TraceID:      l.TraceID,
		SpanID:       l.SpanID,
	}
	applyHTTPAttrs(&entry, attrs)
	return entry
}

// LegacyEntry is the wire shape the forwarder's NDJSON/JsonArray serializers
// emit, and what the legacy /v1/aggregate endpoint decodes. Timestamp is a
// raw string rather than a typed time.Time so ParseTimestamp's RFC3339
// parse-or-fallback behavior (spec.md 4.10) applies uniformly regardless of
// which producer sent it.
type LegacyEntry struct {
	ServiceType  string            `json:"service_type"`
	LogType      string            `json:"log_type"`
	Message      string            `json:"message"`
	Level        string            `json:"level,omitempty"`
	Timestamp    string            `json:"timestamp,omitempty"`
	Method       string            `json:"method,omitempty"`
	Path         string            `json:"path,omitempty"`
	StatusCode   *uint16           `json:"status_code,omitempty"`
	ResponseSize *uint64           `json:"response_size,omitempty"`
	IPAddress    string            `json:"ip_address,omitempty"`
	UserAgent    string            `json:"user_agent,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
	ContainerID  string            `json:"container_id"`
	ServiceName  string            `json:"service_name"`
	ServiceGroup string            `json:"service_group,omitempty"`
	TraceID      string            `json:"trace_id,omitempty"`
	SpanID       string            `json:"span_id,omitempty"`
}

// Legacy projects a decoded NDJSON line into an EnrichedLogEntry.
func Legacy(e LegacyEntry) domain.EnrichedLogEntry {
	level := domain.ParseLevel(e.Level)
	ts := ParseTimestamp(e.Timestamp)
	fields := e.Fields
	if fields == nil {
		fields = map[string]string{}
	}

	return domain.EnrichedLogEntry{
		ParsedLogEntry: domain.ParsedLogEntry{
			ServiceType:  e.ServiceType,
			LogType:      domain.LogType(e.LogType),
			Message:      e.Message,
			Level:        &level,
			Timestamp:    &ts,
			Method:       e.Method,
			Path:         e.Path,
			StatusCode:   e.StatusCode,
			ResponseSize: e.ResponseSize,
			IPAddress:    e.IPAddress,
			UserAgent:    e.UserAgent,
			Fields:       fields,
		},
		ContainerID:  e.ContainerID,
		ServiceName:  e.ServiceName,
		ServiceGroup: e.ServiceGroup,
		TraceID:      e.TraceID,
		SpanID:       e.SpanID,
	}
}

// ParseTimestamp accepts RFC3339 and falls back to the current UTC time on
// a parse failure, per spec.md 4.10.
func ParseTimestamp(s string) time.Time {
	if s == "" {
		return time.Now().UTC()
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Now().UTC()
	}
	return t.UTC()
}

func mergeAttributes(maps ...map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			merged[k] = v
		}
	}
	return merged
}

// remainingFields copies every attribute except the ones lifted into
// dedicated EnrichedLogEntry fields, matching row.rs's "everything else
// becomes a field" behavior.
func remainingFields(attrs map[string]string) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		switch k {
		case attrContainerID, attrServiceGroup, attrServiceName,
			attrHTTPMethod, attrHTTPPath, attrHTTPStatus, attrHTTPSize, attrHTTPIP, attrHTTPUA:
			continue
		}
		out[k] = v
	}
	return out
}

func applyHTTPAttrs(entry *domain.EnrichedLogEntry, attrs map[string]string) {
	if v, ok := attrs[attrHTTPMethod]; ok {
		entry.Method = v
	}
	if v, ok := attrs[attrHTTPPath]; ok {
		entry.Path = v
	}
	if v, ok := attrs[attrHTTPStatus]; ok {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil {
			status := uint16(n)
			entry.StatusCode = &status
		}
	}
	if v, ok := attrs[attrHTTPSize]; ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			entry.ResponseSize = &n
		}
	}
	if v, ok := attrs[attrHTTPIP]; ok {
		entry.IPAddress = v
	}
	if v, ok := attrs[attrHTTPUA]; ok {
		entry.UserAgent = v
	}
}

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

import "time"

// SpanKind projects the OTLP Span.SpanKind enum. Unknown wire values
// collapse to Unspecified rather than erroring.
type SpanKind int32

const (
	SpanKindUnspecified SpanKind = 0
	SpanKindInternal    SpanKind = 1
	SpanKindServer      SpanKind = 2
	SpanKindClient      SpanKind = 3
	SpanKindProducer    SpanKind = 4
	SpanKindConsumer    SpanKind = 5
)

// StatusCode projects the OTLP Status.StatusCode enum. Unknown wire values
// collapse to Unset.
type StatusCode int32

const (
	StatusCodeUnset StatusCode = 0
	StatusCodeOK    StatusCode = 1
	StatusCodeError StatusCode = 2
)

// OTelLog is the aggregator's internal projection of an OTLP LogRecord,
// merged with its enclosing Resource and Scope attributes.
type OTelLog struct {
	Timestamp          time.Time // nanosecond precision preserved
	ObservedTimestamp  time.Time
	TraceID            string // hex, may be empty
	SpanID             string // hex, may be empty
	SeverityText       string
	SeverityNumber     int32
	Body               string
	ResourceAttributes map[string]string
	ScopeAttributes    map[string]string
	LogAttributes      map[string]string
}

// OTelEvent is a Span event, retained verbatim for JSON export.
type OTelEvent struct {
	Name       string
	Timestamp  time.Time
	Attributes map[string]string
}

// OTelLink is a Span link, retained verbatim for JSON export.
type OTelLink struct {
	TraceID    string
	SpanID     string
	Attributes map[string]string
}

// OTelTrace is the aggregator's internal projection of an OTLP Span.
type OTelTrace struct {
	TraceID            string
	SpanID             string
	ParentSpanID       string
	TraceState         string
	Name               string
	Kind               SpanKind
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration // EndTime - StartTime
	StatusCode         StatusCode
	StatusMessage      string
	ResourceAttributes map[string]string
	Attributes         map[string]string
	Events             []OTelEvent
	Links              []OTelLink
}

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

package otlpconv

import (
	"encoding/hex"
	"time"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/rask-sh/rask-pipeline/internal/domain"
)

// DecodeTraces flattens an ExportTraceServiceRequest into OTelTrace
// values, one per span, merging resource attributes the same way
// DecodeLogs does for log records.
func DecodeTraces(req *coltracepb.ExportTraceServiceRequest) []domain.OTelTrace {
	if req == nil {
		return nil
	}
	var out []domain.OTelTrace
	for _, rs := range req.ResourceSpans {
		if rs == nil {
			continue
		}
		resourceAttrs := FlattenAttributes(rs.GetResource().GetAttributes())
		for _, ss := range rs.ScopeSpans {
			if ss == nil {
				continue
			}
			for _, span := range ss.Spans {
				if span == nil {
					continue
				}
				out = append(out, decodeSpan(span, resourceAttrs))
			}
		}
	}
	return out
}

func decodeSpan(span *tracepb.Span, resourceAttrs map[string]string) domain.OTelTrace {
	start := unixNanoToTime(span.StartTimeUnixNano)
	end := unixNanoToTime(span.EndTimeUnixNano)
	var dur time.Duration
	if !start.IsZero() && !end.IsZero() {
		dur = end.Sub(start)
	}
	t := domain.OTelTrace{
		TraceID:            hex.EncodeToString(span.TraceId),
		SpanID:             hex.EncodeToString(span.SpanId),
		ParentSpanID:       hex.EncodeToString(span.ParentSpanId),
		TraceState:         span.TraceState,
		Name:               span.Name,
		Kind:               decodeSpanKind(span.Kind),
		StartTime:          start,
		EndTime:            end,
		Duration:           dur,
		ResourceAttributes: resourceAttrs,
		Attributes:         FlattenAttributes(span.Attributes),
		Events:             make([]domain.OTelEvent, 0, len(span.Events)),
		Links:              make([]domain.OTelLink, 0, len(span.Links)),
	}
	if span.Status != nil {
		t.StatusCode = decodeStatusCode(span.Status.Code)
		t.StatusMessage = span.Status.Message
	}
	for _, ev := range span.Events {
		if ev == nil {
			continue
		}
		t.Events = append(t.Events, domain.OTelEvent{
			Name:       ev.Name,
			Timestamp:  unixNanoToTime(ev.TimeUnixNano),
			Attributes: FlattenAttributes(ev.Attributes),
		})
	}
	for _, link := range span.Links {
		if link == nil {
			continue
		}
		t.Links = append(t.Links, domain.OTelLink{
			TraceID:    hex.EncodeToString(link.TraceId),
			SpanID:     hex.EncodeToString(link.SpanId),
			Attributes: FlattenAttributes(link.Attributes),
		})
	}
	return t
}

func decodeSpanKind(k tracepb.Span_SpanKind) domain.SpanKind {
	switch k {
	case tracepb.Span_SPAN_KIND_INTERNAL:
		return domain.SpanKindInternal
	case tracepb.Span_SPAN_KIND_SERVER:
		return domain.SpanKindServer
	case tracepb.Span_SPAN_KIND_CLIENT:
		return domain.SpanKindClient
	case tracepb.Span_SPAN_KIND_PRODUCER:
		return domain.SpanKindProducer
	case tracepb.Span_SPAN_KIND_CONSUMER:
		return domain.SpanKindConsumer
	default:
		return domain.SpanKindUnspecified
	}
}

func decodeStatusCode(c tracepb.Status_StatusCode) domain.StatusCode {
	switch c {
	case tracepb.Status_STATUS_CODE_OK:
		return domain.StatusCodeOK
	case tracepb.Status_STATUS_CODE_ERROR:
		return domain.StatusCodeError
	default:
		return domain.StatusCodeUnset
	}
}

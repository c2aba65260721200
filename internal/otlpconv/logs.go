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
	"strconv"
	"time"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"

	"github.com/rask-sh/rask-pipeline/internal/domain"
)

// DecodeLogs flattens an ExportLogsServiceRequest into OTelLog values,
// merging resource and scope attributes into each record the way
// gastrolog's OTLP ingester does, so downstream consumers never need to
// walk the ResourceLogs/ScopeLogs tree themselves.
func DecodeLogs(req *collogspb.ExportLogsServiceRequest) []domain.OTelLog {
	if req == nil {
		return nil
	}
	var out []domain.OTelLog
	for _, rl := range req.ResourceLogs {
		if rl == nil {
			continue
		}
		resourceAttrs := FlattenAttributes(rl.GetResource().GetAttributes())
		for _, sl := range rl.ScopeLogs {
			if sl == nil {
				continue
			}
			scopeAttrs := FlattenAttributes(sl.GetScope().GetAttributes())
			for _, rec := range sl.LogRecords {
				if rec == nil {
					continue
				}
				out = append(out, decodeLogRecord(rec, resourceAttrs, scopeAttrs))
			}
		}
	}
	return out
}

func decodeLogRecord(rec *logspb.LogRecord, resourceAttrs, scopeAttrs map[string]string) domain.OTelLog {
	return domain.OTelLog{
		Timestamp:          unixNanoToTime(rec.TimeUnixNano),
		ObservedTimestamp:  unixNanoToTime(rec.ObservedTimeUnixNano),
		TraceID:            hex.EncodeToString(rec.TraceId),
		SpanID:             hex.EncodeToString(rec.SpanId),
		SeverityText:       rec.SeverityText,
		SeverityNumber:     int32(rec.SeverityNumber),
		Body:               AnyValueToString(rec.Body),
		ResourceAttributes: resourceAttrs,
		ScopeAttributes:    scopeAttrs,
		LogAttributes:      FlattenAttributes(rec.Attributes),
	}
}

func unixNanoToTime(nanos uint64) time.Time {
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(nanos)).UTC()
}

// EncodeLogs projects enriched entries into an ExportLogsServiceRequest,
// one ResourceLogs group per distinct service name, used by the
// forwarder's OTLP serializer.
func EncodeLogs(entries []domain.EnrichedLogEntry) *collogspb.ExportLogsServiceRequest {
	byService := make(map[string][]*logspb.LogRecord)
	order := make([]string, 0)
	for _, e := range entries {
		rec := encodeLogRecord(e)
		if _, ok := byService[e.ServiceName]; !ok {
			order = append(order, e.ServiceName)
		}
		byService[e.ServiceName] = append(byService[e.ServiceName], rec)
	}

	req := &collogspb.ExportLogsServiceRequest{
		ResourceLogs: make([]*logspb.ResourceLogs, 0, len(order)),
	}
	for _, svc := range order {
		req.ResourceLogs = append(req.ResourceLogs, &logspb.ResourceLogs{
			ScopeLogs: []*logspb.ScopeLogs{
				{LogRecords: byService[svc]},
			},
		})
	}
	return req
}

func encodeLogRecord(e domain.EnrichedLogEntry) *logspb.LogRecord {
	rec := &logspb.LogRecord{
		Body: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: e.Message}},
	}
	if e.Timestamp != nil {
		rec.TimeUnixNano = uint64(e.Timestamp.UnixNano())
	}
	if e.Level != nil {
		rec.SeverityText = e.Level.String()
		rec.SeverityNumber = logspb.SeverityNumber(levelToOTelSeverity(*e.Level))
	}
	if e.TraceID != "" {
		if b, err := hex.DecodeString(e.TraceID); err == nil {
			rec.TraceId = b
		}
	}
	if e.SpanID != "" {
		if b, err := hex.DecodeString(e.SpanID); err == nil {
			rec.SpanId = b
		}
	}
	attrs := make(map[string]string, len(e.Fields)+6)
	for k, v := range e.Fields {
		attrs[k] = v
	}
	attrs["container.id"] = e.ContainerID
	attrs["service.group"] = e.ServiceGroup
	if e.HasHTTP() {
		if e.Method != "" {
			attrs["http.method"] = e.Method
		}
		if e.Path != "" {
			attrs["http.path"] = e.Path
		}
		if e.StatusCode != nil {
			attrs["http.status"] = strconv.FormatUint(uint64(*e.StatusCode), 10)
		}
		if e.ResponseSize != nil {
			attrs["http.size"] = strconv.FormatUint(*e.ResponseSize, 10)
		}
		if e.IPAddress != "" {
			attrs["http.ip"] = e.IPAddress
		}
		if e.UserAgent != "" {
			attrs["http.ua"] = e.UserAgent
		}
	}
	rec.Attributes = StringAttributes(attrs)
	return rec
}

// levelToOTelSeverity maps a domain.LogLevel back to the representative
// OTel severity number for its band, the inverse of
// domain.OTelSeverityToLevel.
func levelToOTelSeverity(l domain.LogLevel) int32 {
	switch l {
	case domain.LevelDebug:
		return 5
	case domain.LevelInfo:
		return 9
	case domain.LevelWarn:
		return 13
	case domain.LevelError:
		return 17
	case domain.LevelFatal:
		return 21
	default:
		return 9
	}
}

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

package row

import (
	"strconv"
	"time"

	"github.com/rask-sh/rask-pipeline/internal/domain"
)

// Encode projects an EnrichedLogEntry into a ColumnarRow: HTTP-specific
// fields are flattened into the Fields map (so they survive into the
// materialized view the way row.rs's From impl adds them), service_group
// defaults to "unknown", and trace/span ids are zero-padded fixed byte
// arrays.
func Encode(e domain.EnrichedLogEntry) domain.ColumnarRow {
	fields := make([]domain.KV, 0, len(e.Fields)+6)
	for k, v := range e.Fields {
		fields = append(fields, domain.KV{Key: k, Value: v})
	}
	if e.Method != "" {
		fields = append(fields, domain.KV{Key: "http_method", Value: e.Method})
	}
	if e.Path != "" {
		fields = append(fields, domain.KV{Key: "http_path", Value: e.Path})
	}
	if e.StatusCode != nil {
		fields = append(fields, domain.KV{Key: "http_status", Value: strconv.FormatUint(uint64(*e.StatusCode), 10)})
	}
	if e.ResponseSize != nil {
		fields = append(fields, domain.KV{Key: "http_size", Value: strconv.FormatUint(*e.ResponseSize, 10)})
	}
	if e.IPAddress != "" {
		fields = append(fields, domain.KV{Key: "http_ip", Value: e.IPAddress})
	}
	if e.UserAgent != "" {
		fields = append(fields, domain.KV{Key: "http_ua", Value: e.UserAgent})
	}

	level := domain.LevelInfo
	if e.Level != nil {
		level = *e.Level
	}

	serviceGroup := e.ServiceGroup
	if serviceGroup == "" {
		serviceGroup = "unknown"
	}

	timestamp := time.Now().UTC()
	if e.Timestamp != nil {
		timestamp = *e.Timestamp
	}

	return domain.ColumnarRow{
		ServiceType:  e.ServiceType,
		LogType:      string(e.LogType),
		Message:      e.Message,
		Level:        int8(level),
		Timestamp:    timestamp.Truncate(time.Millisecond),
		Stream:       string(e.Stream),
		ContainerID:  e.ContainerID,
		ServiceName:  e.ServiceName,
		ServiceGroup: serviceGroup,
		TraceID:      StringToFixedBytes32(e.TraceID),
		SpanID:       StringToFixedBytes16(e.SpanID),
		Fields:       fields,
	}
}

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

// Package serialize encodes a sealed Batch into the wire formats the
// aggregator accepts: NDJSON, a single JSON array, NDJSON with a leading
// metadata line, or OTLP/protobuf. Buffer pre-sizing follows the
// deterministic, pre-sized-buffer style of
// internal/overlord/logstate/loki.Client.buildRequest.
package serialize

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/klauspost/compress/gzip"
	"google.golang.org/protobuf/proto"

	"github.com/rask-sh/rask-pipeline/internal/domain"
	"github.com/rask-sh/rask-pipeline/internal/otlpconv"
)

// Capacity guards, per spec.md 4.6.
const (
	MaxSafeBatchSize  = 100_000          // entries per batch
	MaxSafeBufferSize = 64 * 1024 * 1024 // bytes, pre-allocation cap
)

var (
	ErrEmptyBatch    = errors.New("serialize: empty batch")
	ErrBatchTooLarge = errors.New("serialize: batch exceeds MAX_SAFE_BATCH_SIZE")
)

// Format identifies the wire encoding requested for a batch.
type Format string

const (
	FormatNDJSON              Format = "ndjson"
	FormatJSONArray           Format = "json-array"
	FormatBatchWithMetadata   Format = "batch-with-metadata"
	FormatOTLP                Format = "otlp"
)

// jsonEntry is the wire shape for one EnrichedLogEntry, deliberately flat
// so the aggregator's legacy NDJSON endpoint can decode it without knowing
// about Go-side nested structs.
type jsonEntry struct {
	ServiceType  string            `json:"service_type"`
	LogType      string            `json:"log_type"`
	Message      string            `json:"message"`
	Level        string            `json:"level,omitempty"`
	Timestamp    *time.Time        `json:"timestamp,omitempty"`
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

func toJSONEntry(e domain.EnrichedLogEntry) jsonEntry {
	je := jsonEntry{
		ServiceType:  e.ServiceType,
		LogType:      string(e.LogType),
		Message:      e.Message,
		Timestamp:    e.Timestamp,
		Method:       e.Method,
		Path:         e.Path,
		StatusCode:   e.StatusCode,
		ResponseSize: e.ResponseSize,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		Fields:       e.Fields,
		ContainerID:  e.ContainerID,
		ServiceName:  e.ServiceName,
		ServiceGroup: e.ServiceGroup,
		TraceID:      e.TraceID,
		SpanID:       e.SpanID,
	}
	if e.Level != nil {
		je.Level = e.Level.String()
	}
	return je
}

func validate(batch domain.Batch) error {
	if len(batch.Entries) == 0 {
		return ErrEmptyBatch
	}
	if len(batch.Entries) > MaxSafeBatchSize {
		return ErrBatchTooLarge
	}
	return nil
}

func estimatedBufferCap(batch domain.Batch) int {
	cap := batch.EstimatedSize
	if cap <= 0 {
		cap = len(batch.Entries) * 256
	}
	if cap > MaxSafeBufferSize {
		cap = MaxSafeBufferSize
	}
	return cap
}

// NDJSON encodes the batch as one JSON object per line, trailing newline
// on each.
func NDJSON(batch domain.Batch) ([]byte, error) {
	if err := validate(batch); err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(make([]byte, 0, estimatedBufferCap(batch)))
	enc := json.NewEncoder(buf)
	for _, e := range batch.Entries {
		if err := enc.Encode(toJSONEntry(e)); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// JSONArray encodes the batch as a single JSON array.
func JSONArray(batch domain.Batch) ([]byte, error) {
	if err := validate(batch); err != nil {
		return nil, err
	}
	entries := make([]jsonEntry, len(batch.Entries))
	for i, e := range batch.Entries {
		entries[i] = toJSONEntry(e)
	}
	buf := bytes.NewBuffer(make([]byte, 0, estimatedBufferCap(batch)))
	enc := json.NewEncoder(buf)
	if err := enc.Encode(entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// batchMetadata is the leading metadata line BatchWithMetadata writes
// before the NDJSON entries.
type batchMetadata struct {
	BatchID         string `json:"batch_id"`
	BatchSize       int    `json:"batch_size"`
	BatchType       string `json:"batch_type"`
	Timestamp       string `json:"timestamp"`
	ForwarderVersion string `json:"forwarder_version"`
}

// BatchWithMetadata encodes NDJSON with a leading metadata line.
func BatchWithMetadata(batch domain.Batch, forwarderVersion string) ([]byte, error) {
	if err := validate(batch); err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(make([]byte, 0, estimatedBufferCap(batch)))
	enc := json.NewEncoder(buf)
	meta := batchMetadata{
		BatchID:          batch.ID.String(),
		BatchSize:        len(batch.Entries),
		BatchType:        string(batch.BatchType),
		Timestamp:        batch.CreatedAt.Format(time.RFC3339),
		ForwarderVersion: forwarderVersion,
	}
	if err := enc.Encode(meta); err != nil {
		return nil, err
	}
	for _, e := range batch.Entries {
		if err := enc.Encode(toJSONEntry(e)); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// OTLP encodes the batch as a binary-protobuf ExportLogsServiceRequest,
// one ResourceLogs group per distinct service name.
func OTLP(batch domain.Batch) ([]byte, error) {
	if err := validate(batch); err != nil {
		return nil, err
	}
	req := otlpconv.EncodeLogs(batch.Entries)
	return proto.Marshal(req)
}

// Gzip compresses data, used when the sender negotiates content-encoding.
func Gzip(data []byte) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, len(data)/2+64))
	w := gzip.NewWriter(buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

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

// Package otlp registers the aggregator's ingest endpoints on a
// gorilla/mux.Router, the teacher's router of choice
// (canonical-pebble/internals/daemon/daemon.go's addRoutes). Decodes
// protobuf bodies (optionally gzip-wrapped) plus the legacy line-oriented
// NDJSON endpoint. The body format is chosen by route alone: the
// Content-Type header is not inspected, only Content-Encoding.
package otlp

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzip"
	"google.golang.org/protobuf/proto"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"

	"github.com/rask-sh/rask-pipeline/internal/aggregator/enrich"
	"github.com/rask-sh/rask-pipeline/internal/aggregator/row"
	"github.com/rask-sh/rask-pipeline/internal/aggregator/writer"
	"github.com/rask-sh/rask-pipeline/internal/domain"
	"github.com/rask-sh/rask-pipeline/internal/logger"
	"github.com/rask-sh/rask-pipeline/internal/otlpconv"
)

// TraceSink persists decoded traces. The journal's JsonFileExporter
// satisfies this with its any-typed Export method.
type TraceSink interface {
	Export(v any) error
}

// Handlers wires the ingest endpoints to a row writer and an optional
// trace sink.
type Handlers struct {
	rows        writer.Writer
	traces      TraceSink
	serviceName string
}

// NewHandlers builds the handler set. traces may be nil, in which case
// decoded spans are dropped without being logged.
func NewHandlers(rows writer.Writer, traces TraceSink, fallbackServiceName string) *Handlers {
	return &Handlers{rows: rows, traces: traces, serviceName: fallbackServiceName}
}

// Register adds every route to router.
func (h *Handlers) Register(router *mux.Router) {
	router.HandleFunc("/v1/logs", h.handleLogs).Methods(http.MethodPost)
	router.HandleFunc("/v1/traces", h.handleTraces).Methods(http.MethodPost)
	router.HandleFunc("/v1/aggregate", h.handleLegacyAggregate).Methods(http.MethodPost)
}

func (h *Handlers) handleLogs(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req collogspb.ExportLogsServiceRequest
	if err := proto.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid ExportLogsServiceRequest", http.StatusBadRequest)
		return
	}

	logs := otlpconv.DecodeLogs(&req)
	rows := make([]domain.ColumnarRow, 0, len(logs))
	for _, l := range logs {
		rows = append(rows, row.Encode(enrich.OTelLog(l, h.serviceName)))
	}
	if err := h.rows.WriteRows(r.Context(), rows); err != nil {
		logger.Noticef("otlp: write rows: %v", err)
		http.Error(w, "failed to persist logs", http.StatusInternalServerError)
		return
	}

	writeProtoResponse(w, &collogspb.ExportLogsServiceResponse{})
}

func (h *Handlers) handleTraces(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req coltracepb.ExportTraceServiceRequest
	if err := proto.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid ExportTraceServiceRequest", http.StatusBadRequest)
		return
	}

	traces := otlpconv.DecodeTraces(&req)
	if h.traces != nil {
		for _, t := range traces {
			if err := h.traces.Export(t); err != nil {
				logger.Noticef("otlp: export trace: %v", err)
			}
		}
	}

	writeProtoResponse(w, &coltracepb.ExportTraceServiceResponse{})
}

// handleLegacyAggregate parses the body line by line, silently skipping
// lines that don't decode as JSON and processing every valid one -
// matching the observed behavior this endpoint must preserve rather than
// "fix" (see DESIGN.md's Open Question resolution).
func (h *Handlers) handleLegacyAggregate(w http.ResponseWriter, r *http.Request) {
	scanner := bufio.NewScanner(r.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	var rows []domain.ColumnarRow
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e enrich.LegacyEntry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		rows = append(rows, row.Encode(enrich.Legacy(e)))
	}

	if err := h.rows.WriteRows(r.Context(), rows); err != nil {
		logger.Noticef("otlp: write rows (legacy): %v", err)
		http.Error(w, "failed to persist logs", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func readBody(r *http.Request) ([]byte, error) {
	var reader io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	}
	return io.ReadAll(reader)
}

func writeProtoResponse(w http.ResponseWriter, msg proto.Message) {
	body, err := proto.Marshal(msg)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

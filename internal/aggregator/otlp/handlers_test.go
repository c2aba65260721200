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

package otlp_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	aggotlp "github.com/rask-sh/rask-pipeline/internal/aggregator/otlp"
	"github.com/rask-sh/rask-pipeline/internal/aggregator/writer"
)

func newRouter(rows writer.Writer, traces aggotlp.TraceSink) *mux.Router {
	h := aggotlp.NewHandlers(rows, traces, "fallback-service")
	r := mux.NewRouter()
	h.Register(r)
	return r
}

func TestHandleLogsPersistsRows(t *testing.T) {
	rows := writer.NewInMemoryWriter()
	router := newRouter(rows, nil)

	req := &collogspb.ExportLogsServiceRequest{
		ResourceLogs: []*logspb.ResourceLogs{{
			Resource: &resourcepb.Resource{
				Attributes: []*commonpb.KeyValue{
					{Key: "service.name", Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: "svc"}}},
				},
			},
			ScopeLogs: []*logspb.ScopeLogs{{
				LogRecords: []*logspb.LogRecord{{
					Body:         &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: "hello"}},
					SeverityText: "warn",
				}},
			}},
		}},
	}
	body, err := proto.Marshal(req)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/logs", bytes.NewReader(body))
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, rows.Rows(), 1)
	require.Equal(t, "svc", rows.Rows()[0].ServiceName)
}

func TestHandleLogsRejectsInvalidBody(t *testing.T) {
	rows := writer.NewInMemoryWriter()
	router := newRouter(rows, nil)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/logs", bytes.NewReader([]byte("not protobuf")))
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

type fakeTraceSink struct {
	exported []any
}

func (f *fakeTraceSink) Export(v any) error {
	f.exported = append(f.exported, v)
	return nil
}

func TestHandleTracesExportsSpans(t *testing.T) {
	rows := writer.NewInMemoryWriter()
	sink := &fakeTraceSink{}
	router := newRouter(rows, sink)

	req := &coltracepb.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{{
			ScopeSpans: []*tracepb.ScopeSpans{{
				Spans: []*tracepb.Span{{Name: "handle-request"}},
			}},
		}},
	}
	body, err := proto.Marshal(req)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/traces", bytes.NewReader(body))
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, sink.exported, 1)
}

func TestHandleLegacyAggregateSkipsInvalidLinesSilently(t *testing.T) {
	rows := writer.NewInMemoryWriter()
	router := newRouter(rows, nil)

	body := []byte(`{"service_type":"api","message":"one","container_id":"c1","service_name":"svc"}
not valid json
{"service_type":"api","message":"two","container_id":"c1","service_name":"svc"}
`)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/aggregate", bytes.NewReader(body))
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, rows.Rows(), 2)
}

func TestHandleLegacyAggregateEmptyBodyOK(t *testing.T) {
	rows := writer.NewInMemoryWriter()
	router := newRouter(rows, nil)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/aggregate", bytes.NewReader(nil))
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, rows.Rows())
}

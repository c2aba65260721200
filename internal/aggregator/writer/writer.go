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

// Package writer represents the columnar store the aggregator writes
// rows to: ClickHouseWriter, the production implementation, plus an
// HTTP/JSON sink and an in-memory fake for tests and environments
// without a configured database.
package writer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/rask-sh/rask-pipeline/internal/domain"
	"github.com/rask-sh/rask-pipeline/internal/httputil"
)

// Writer accepts a batch of encoded rows bound for the columnar store.
type Writer interface {
	WriteRows(ctx context.Context, rows []domain.ColumnarRow) error
}

// HTTPConfig configures the HTTP/JSON row sink.
type HTTPConfig struct {
	Endpoint string
	Client   httputil.ClientOptions
}

// HTTPWriter POSTs a JSON array of rows to a configured HTTP row-sink
// endpoint, for deployments that front ClickHouse with an ingest proxy
// rather than exposing its native protocol directly.
type HTTPWriter struct {
	endpoint string
	client   *http.Client
}

// NewHTTPWriter validates the endpoint and builds the pooled client.
func NewHTTPWriter(cfg HTTPConfig) (*HTTPWriter, error) {
	if err := httputil.ValidateURL(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("writer: %w", err)
	}
	return &HTTPWriter{
		endpoint: cfg.Endpoint,
		client:   httputil.NewClient(cfg.Client),
	}, nil
}

// WriteRows marshals rows as a JSON array and POSTs them to the
// configured endpoint, returning an error on any non-2xx response.
func (w *HTTPWriter) WriteRows(ctx context.Context, rows []domain.ColumnarRow) error {
	if len(rows) == 0 {
		return nil
	}
	body, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("writer: marshal rows: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("writer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("writer: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("writer: columnar store returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// InMemoryWriter collects every written row, for use in tests that don't
// exercise the real HTTP sink.
type InMemoryWriter struct {
	mu   sync.Mutex
	rows []domain.ColumnarRow
}

// NewInMemoryWriter returns an empty fake.
func NewInMemoryWriter() *InMemoryWriter {
	return &InMemoryWriter{}
}

// WriteRows appends rows to the in-memory collection.
func (w *InMemoryWriter) WriteRows(_ context.Context, rows []domain.ColumnarRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows = append(w.rows, rows...)
	return nil
}

// Rows returns a copy of every row written so far.
func (w *InMemoryWriter) Rows() []domain.ColumnarRow {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]domain.ColumnarRow, len(w.rows))
	copy(out, w.rows)
	return out
}

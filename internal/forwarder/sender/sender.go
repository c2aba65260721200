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

// Package sender posts sealed batches to the aggregator over HTTP,
// generalizing internal/overlord/logstate/loki.Client.Flush's
// request-building and status-code-driven retry policy from a single
// fixed Loki endpoint to the serializer's NDJSON/JSON-array/OTLP formats
// and the forwarder's own header contract.
package sender

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rask-sh/rask-pipeline/internal/domain"
	"github.com/rask-sh/rask-pipeline/internal/forwarder/serialize"
	"github.com/rask-sh/rask-pipeline/internal/httputil"
)

// ContentType is the MIME type matching a Format.
func ContentType(format serialize.Format) string {
	if format == serialize.FormatOTLP {
		return "application/x-protobuf"
	}
	return "application/x-ndjson"
}

// TransmissionResult is what a single send_batch attempt reports back to
// the reliability loop.
type TransmissionResult struct {
	Success         bool
	StatusCode      int
	Latency         time.Duration
	BytesSent       int
	UncompressedLen int
	Compressed      bool
}

// CompressionRatio returns compressed/uncompressed, or 1.0 when nothing
// was compressed, matching spec's MetricsCollector definition.
func (r TransmissionResult) CompressionRatio() float64 {
	if !r.Compressed || r.UncompressedLen == 0 {
		return 1.0
	}
	return float64(r.BytesSent) / float64(r.UncompressedLen)
}

// Retryable reports whether the caller should retry this failure (5xx,
// 429, or a network-level error) versus giving up immediately (4xx other
// than 429), mirroring loki.Client.handleServerResponse's classification.
func (r TransmissionResult) Retryable() bool {
	if r.StatusCode == 0 {
		return true // network error, no response at all
	}
	return r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= 500
}

// Config configures a LogSender's HTTP client and header contract.
type Config struct {
	Endpoint          string
	UserAgent         string
	ForwarderVersion  string
	Format            serialize.Format
	EnableCompression bool
	Client            httputil.ClientOptions
}

// LogSender posts serialized batches to a single aggregator endpoint over
// a pooled HTTP client, and tracks atomic connection statistics.
type LogSender struct {
	cfg    Config
	client *http.Client
	stats  domain.ConnectionStats
}

func New(cfg Config) *LogSender {
	return &LogSender{
		cfg:    cfg,
		client: httputil.NewClient(cfg.Client),
	}
}

func (s *LogSender) Stats() domain.ConnectionStatsSnapshot {
	return s.stats.Snapshot()
}

// SendBatch encodes batch per the configured format and posts it,
// returning a TransmissionResult regardless of whether the send
// ultimately succeeded; callers distinguish by Success/Retryable.
func (s *LogSender) SendBatch(ctx context.Context, batch domain.Batch) (TransmissionResult, error) {
	body, err := s.encode(batch)
	if err != nil {
		return TransmissionResult{}, fmt.Errorf("encoding batch: %w", err)
	}
	uncompressedLen := len(body)

	compressed := false
	if s.cfg.EnableCompression {
		gz, err := serialize.Gzip(body)
		if err == nil {
			body = gz
			compressed = true
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return TransmissionResult{}, fmt.Errorf("creating request: %w", err)
	}
	s.setHeaders(req, batch, compressed)

	s.stats.RecordAttempt()
	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.stats.RecordResult(false, latency)
		return TransmissionResult{Latency: latency, BytesSent: len(body), UncompressedLen: uncompressedLen, Compressed: compressed}, err
	}
	defer drainAndClose(resp.Body)

	result := TransmissionResult{
		StatusCode:      resp.StatusCode,
		Latency:         latency,
		BytesSent:       len(body),
		UncompressedLen: uncompressedLen,
		Compressed:      compressed,
	}
	result.Success = resp.StatusCode < 400
	s.stats.RecordResult(result.Success, latency)

	if !result.Success {
		return result, errFromResponse(resp)
	}
	return result, nil
}

func (s *LogSender) encode(batch domain.Batch) ([]byte, error) {
	switch s.cfg.Format {
	case serialize.FormatJSONArray:
		return serialize.JSONArray(batch)
	case serialize.FormatBatchWithMetadata:
		return serialize.BatchWithMetadata(batch, s.cfg.ForwarderVersion)
	case serialize.FormatOTLP:
		return serialize.OTLP(batch)
	default:
		return serialize.NDJSON(batch)
	}
}

func (s *LogSender) setHeaders(req *http.Request, batch domain.Batch, compressed bool) {
	req.Header.Set("Content-Type", ContentType(s.cfg.Format))
	if compressed {
		req.Header.Set("Content-Encoding", "gzip")
	}
	req.Header.Set("X-Batch-Id", batch.ID.String())
	req.Header.Set("X-Batch-Size", fmt.Sprintf("%d", len(batch.Entries)))
	req.Header.Set("X-Batch-Type", string(batch.BatchType))
	req.Header.Set("X-Forwarder-Version", s.cfg.ForwarderVersion)
	req.Header.Set("User-Agent", s.cfg.UserAgent)
}

// drainAndClose discards the response body so the underlying connection
// can be reused by the pool, per net/http.Response.Body's docs.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 1<<20))
	_ = body.Close()
}

func errFromResponse(resp *http.Response) error {
	snippet := make([]byte, 1024)
	n, _ := resp.Body.Read(snippet)
	if n == 0 {
		return fmt.Errorf("server returned HTTP %d", resp.StatusCode)
	}
	return fmt.Errorf("server returned HTTP %d: %s", resp.StatusCode, snippet[:n])
}

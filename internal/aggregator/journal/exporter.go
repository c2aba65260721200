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

// Package journal writes rows to JSON-lines files with size/age rotation
// (JsonFileExporter) and reclaims disk space from old rotated files
// (DiskCleaner), generalizing
// original_source/rask-log-aggregator/app/src/log_exporter/json_file_exporter.rs
// and .../adapter/json_file/disk_cleaner.rs.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rask-sh/rask-pipeline/internal/domain"
	"github.com/rask-sh/rask-pipeline/internal/logger"
)

const (
	DefaultMaxSizeBytes = 10 * 1024 * 1024
	DefaultMaxAge       = 12 * time.Hour
)

// ExporterConfig configures rotation thresholds for JsonFileExporter.
type ExporterConfig struct {
	Directory   string
	BaseName    string
	MaxSizeByte int64
	MaxAge      time.Duration
}

// JsonFileExporter holds a single writable file and its creation time
// behind an exclusive lock. Every export is a write, flush, fsync,
// followed by a rotation check performed while still holding the lock.
type JsonFileExporter struct {
	cfg ExporterConfig

	mu        sync.Mutex
	file      *os.File
	createdAt time.Time
}

// NewJsonFileExporter creates the directory if needed and opens the first
// rotated file.
func NewJsonFileExporter(cfg ExporterConfig) (*JsonFileExporter, error) {
	if cfg.MaxSizeByte <= 0 {
		cfg.MaxSizeByte = DefaultMaxSizeBytes
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.BaseName == "" {
		cfg.BaseName = "logs"
	}
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create directory: %w", err)
	}

	e := &JsonFileExporter{cfg: cfg}
	f, createdAt, err := openNewFile(cfg.Directory, cfg.BaseName)
	if err != nil {
		return nil, err
	}
	e.file = f
	e.createdAt = createdAt
	return e, nil
}

func openNewFile(dir, base string) (*os.File, time.Time, error) {
	now := time.Now().UTC()
	path := filepath.Join(dir, domain.JournalFilename(base, now))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("journal: open %s: %w", path, err)
	}
	return f, now, nil
}

// Export serializes v (a ColumnarRow or an OTelTrace) as one JSON line,
// writes, flushes and fsyncs it, then rotates the underlying file if it
// has grown past MaxSizeByte or aged past MaxAge.
func (e *JsonFileExporter) Export(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("journal: marshal entry: %w", err)
	}
	return e.writeLine(line)
}

func (e *JsonFileExporter) writeLine(line []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.file == nil {
		return fmt.Errorf("journal: exporter closed")
	}

	if _, err := e.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}
	if err := e.file.Sync(); err != nil {
		return fmt.Errorf("journal: sync: %w", err)
	}
	return e.rotateIfNeeded()
}

func (e *JsonFileExporter) rotateIfNeeded() error {
	info, err := e.file.Stat()
	if err != nil {
		return fmt.Errorf("journal: stat: %w", err)
	}
	needsSize := info.Size() >= e.cfg.MaxSizeByte
	needsAge := time.Since(e.createdAt) >= e.cfg.MaxAge
	if !needsSize && !needsAge {
		return nil
	}

	if err := e.file.Sync(); err != nil {
		return fmt.Errorf("journal: sync before rotate: %w", err)
	}
	if err := e.file.Close(); err != nil {
		logger.Noticef("journal: close rotated file: %v", err)
	}

	f, createdAt, err := openNewFile(e.cfg.Directory, e.cfg.BaseName)
	if err != nil {
		return err
	}
	e.file = f
	e.createdAt = createdAt
	return nil
}

// Close flushes and releases the current file.
func (e *JsonFileExporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.file == nil {
		return nil
	}
	err := e.file.Close()
	e.file = nil
	return err
}

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

package reliability

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/rask-sh/rask-pipeline/internal/domain"
)

func parseBatchID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("parsing stored batch id %q: %w", id, err)
	}
	return parsed, nil
}

var (
	ErrBatchNotFound     = errors.New("reliability: batch not found on disk")
	ErrDiskSpaceExceeded = errors.New("reliability: disk fallback space exceeded")
)

// DiskConfig configures DiskFallback's storage directory and quota.
type DiskConfig struct {
	StoragePath     string
	MaxDiskUsage    int64
	RetentionPeriod time.Duration
	Compression     bool
}

func DefaultDiskConfig() DiskConfig {
	return DiskConfig{
		StoragePath:     filepath.Join(os.TempDir(), "rask-forwarder", "fallback"),
		MaxDiskUsage:    1 << 30,
		RetentionPeriod: 24 * time.Hour,
		Compression:     true,
	}
}

// DiskFallback is a directory-backed store of gob-encoded, optionally
// gzipped batches, one file per batch id, generalizing
// reliability/disk.rs's bincode+flate2 on-disk form to Go's own
// single-process-private serialization idiom (encoding/gob).
type DiskFallback struct {
	cfg          DiskConfig
	mu           sync.Mutex
	currentUsage int64
}

func NewDiskFallback(cfg DiskConfig) (*DiskFallback, error) {
	if err := os.MkdirAll(cfg.StoragePath, 0o755); err != nil {
		return nil, fmt.Errorf("creating disk fallback directory: %w", err)
	}
	usage, err := calculateDiskUsage(cfg.StoragePath)
	if err != nil {
		return nil, err
	}
	return &DiskFallback{cfg: cfg, currentUsage: usage}, nil
}

func calculateDiskUsage(dir string) (int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading disk fallback directory: %w", err)
	}
	var total int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}

func (d *DiskFallback) batchFilePath(batchID string) string {
	return filepath.Join(d.cfg.StoragePath, domain.DiskBatchFilename(batchID))
}

// StoreBatch serializes and writes batch to disk, refusing when doing so
// would exceed MaxDiskUsage.
func (d *DiskFallback) StoreBatch(batch domain.Batch) error {
	stored := domain.DiskBatch{
		ID:            batch.ID.String(),
		Entries:       batch.Entries,
		BatchType:     batch.BatchType,
		EstimatedSize: batch.EstimatedSize,
		StoredAt:      time.Now().Unix(),
		Compressed:    d.cfg.Compression,
	}

	var encoded bytes.Buffer
	if err := gob.NewEncoder(&encoded).Encode(stored); err != nil {
		return fmt.Errorf("encoding batch for disk fallback: %w", err)
	}

	data := encoded.Bytes()
	if d.cfg.Compression {
		var gz bytes.Buffer
		w := gzip.NewWriter(&gz)
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("compressing batch for disk fallback: %w", err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("compressing batch for disk fallback: %w", err)
		}
		data = gz.Bytes()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.currentUsage+int64(len(data)) > d.cfg.MaxDiskUsage {
		return ErrDiskSpaceExceeded
	}

	path := d.batchFilePath(stored.ID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing disk fallback batch: %w", err)
	}
	f, err := os.Open(path)
	if err == nil {
		_ = f.Sync()
		_ = f.Close()
	}
	d.currentUsage += int64(len(data))
	return nil
}

// RetrieveBatch reads and decodes a stored batch, tolerating both
// compressed and uncompressed on-disk form.
func (d *DiskFallback) RetrieveBatch(batchID string) (domain.Batch, error) {
	path := d.batchFilePath(batchID)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.Batch{}, ErrBatchNotFound
	}
	if err != nil {
		return domain.Batch{}, fmt.Errorf("reading disk fallback batch: %w", err)
	}

	stored, err := decodeDiskBatch(data)
	if err != nil {
		return domain.Batch{}, err
	}

	id, err := parseBatchID(stored.ID)
	if err != nil {
		return domain.Batch{}, err
	}
	return domain.Batch{
		ID:            id,
		Entries:       stored.Entries,
		BatchType:     stored.BatchType,
		CreatedAt:     time.Unix(stored.StoredAt, 0).UTC(),
		EstimatedSize: stored.EstimatedSize,
	}, nil
}

func decodeDiskBatch(data []byte) (domain.DiskBatch, error) {
	raw := data
	if r, err := gzip.NewReader(bytes.NewReader(data)); err == nil {
		decompressed, readErr := io.ReadAll(r)
		_ = r.Close()
		if readErr == nil {
			raw = decompressed
		}
	}

	var stored domain.DiskBatch
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&stored); err != nil {
		return domain.DiskBatch{}, fmt.Errorf("decoding disk fallback batch: %w", err)
	}
	return stored, nil
}

// HasBatch reports whether a batch file exists for batchID.
func (d *DiskFallback) HasBatch(batchID string) bool {
	_, err := os.Stat(d.batchFilePath(batchID))
	return err == nil
}

// DeleteBatch removes a stored batch, adjusting the usage counter.
func (d *DiskFallback) DeleteBatch(batchID string) error {
	path := d.batchFilePath(batchID)
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return ErrBatchNotFound
	}
	if err != nil {
		return fmt.Errorf("stat disk fallback batch: %w", err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("removing disk fallback batch: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.currentUsage -= info.Size()
	if d.currentUsage < 0 {
		d.currentUsage = 0
	}
	return nil
}

// ListStoredBatches returns the ids of every batch currently on disk.
func (d *DiskFallback) ListStoredBatches() ([]string, error) {
	entries, err := os.ReadDir(d.cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("reading disk fallback directory: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if name, ok := strings.CutSuffix(entry.Name(), ".batch"); ok {
			ids = append(ids, name)
		}
	}
	return ids, nil
}

// CleanupOldBatches deletes every batch whose stored_at predates
// RetentionPeriod, returning how many were removed.
func (d *DiskFallback) CleanupOldBatches() (int, error) {
	ids, err := d.ListStoredBatches()
	if err != nil {
		return 0, err
	}

	now := time.Now().Unix()
	deleted := 0
	for _, id := range ids {
		data, err := os.ReadFile(d.batchFilePath(id))
		if err != nil {
			continue
		}
		stored, err := decodeDiskBatch(data)
		if err != nil {
			continue
		}
		age := now - stored.StoredAt
		if age < 0 {
			age = 0
		}
		if time.Duration(age)*time.Second > d.cfg.RetentionPeriod {
			if err := d.DeleteBatch(id); err == nil {
				deleted++
			}
		}
	}
	return deleted, nil
}

// CurrentDiskUsage returns the tracked byte total of stored batches.
func (d *DiskFallback) CurrentDiskUsage() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentUsage
}

// DiskUsagePercentage returns current usage as a percentage of the quota.
func (d *DiskFallback) DiskUsagePercentage() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cfg.MaxDiskUsage == 0 {
		return 0
	}
	return float64(d.currentUsage) / float64(d.cfg.MaxDiskUsage) * 100
}

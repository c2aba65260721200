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

package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rask-sh/rask-pipeline/internal/logger"
)

// DiskCleaner periodically enumerates "*.json" files in a directory and,
// if their total size exceeds a quota, deletes the oldest ones until under
// quota, never deleting the newest file.
type DiskCleaner struct {
	directory     string
	maxTotalBytes int64
	interval      time.Duration
}

// NewDiskCleaner builds a cleaner for directory, enforcing maxTotalBytes
// every interval.
func NewDiskCleaner(directory string, maxTotalBytes int64, interval time.Duration) *DiskCleaner {
	return &DiskCleaner{directory: directory, maxTotalBytes: maxTotalBytes, interval: interval}
}

// Run loops until ctx is cancelled, calling PerformCleanup every interval.
func (c *DiskCleaner) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	logger.Noticef("disk cleaner started for %s, interval %s", c.directory, c.interval)
	for {
		select {
		case <-ctx.Done():
			logger.Noticef("disk cleaner received shutdown signal, stopping")
			return
		case <-ticker.C:
			if err := c.PerformCleanup(); err != nil {
				logger.Noticef("disk cleanup error: %v", err)
			}
		}
	}
}

type journalFile struct {
	path    string
	size    int64
	modTime time.Time
}

// PerformCleanup runs one cleanup pass: list "*.json" files, sort by mtime
// ascending, and delete the oldest ones until the total is under quota,
// always keeping the newest file even if the directory is still over
// quota afterward.
func (c *DiskCleaner) PerformCleanup() error {
	entries, err := os.ReadDir(c.directory)
	if err != nil {
		return fmt.Errorf("journal: read directory: %w", err)
	}

	var files []journalFile
	var total int64
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, journalFile{
			path:    filepath.Join(c.directory, entry.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
		total += info.Size()
	}

	if total <= c.maxTotalBytes {
		return nil
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })

	logger.Noticef("total log size %d bytes exceeds limit %d, starting cleanup", total, c.maxTotalBytes)

	for idx, f := range files {
		if idx == len(files)-1 {
			break // never delete the newest file
		}
		if err := os.Remove(f.path); err != nil {
			logger.Noticef("failed to remove %s: %v", f.path, err)
			continue
		}
		logger.Noticef("removed %s (%d bytes)", f.path, f.size)
		total -= f.size
		if total < 0 {
			total = 0
		}
		if total <= c.maxTotalBytes {
			break
		}
	}

	return nil
}

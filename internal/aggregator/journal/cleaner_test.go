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

package journal_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rask-sh/rask-pipeline/internal/aggregator/journal"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func TestDiskCleanerPerformCleanupRemovesOldest(t *testing.T) {
	dir := t.TempDir()
	file1 := filepath.Join(dir, "test1.json")
	file2 := filepath.Join(dir, "test2.json")

	writeFile(t, file1, 600)
	time.Sleep(10 * time.Millisecond)
	writeFile(t, file2, 600)

	c := journal.NewDiskCleaner(dir, 500, time.Hour)
	require.NoError(t, c.PerformCleanup())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "test2.json", entries[0].Name())
}

func TestDiskCleanerNoCleanupNeeded(t *testing.T) {
	dir := t.TempDir()
	file1 := filepath.Join(dir, "test1.json")
	writeFile(t, file1, 5)

	c := journal.NewDiskCleaner(dir, 1024*1024, time.Hour)
	require.NoError(t, c.PerformCleanup())

	_, err := os.Stat(file1)
	require.NoError(t, err)
}

func TestDiskCleanerKeepsAtLeastOneFile(t *testing.T) {
	dir := t.TempDir()
	file1 := filepath.Join(dir, "only.json")
	writeFile(t, file1, 2000)

	c := journal.NewDiskCleaner(dir, 100, time.Hour)
	require.NoError(t, c.PerformCleanup())

	_, err := os.Stat(file1)
	require.NoError(t, err, "should keep at least one file")
}

func TestDiskCleanerIgnoresNonJSONFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "ignored.txt"), 2000)

	c := journal.NewDiskCleaner(dir, 100, time.Hour)
	require.NoError(t, c.PerformCleanup())

	_, err := os.Stat(filepath.Join(dir, "ignored.txt"))
	require.NoError(t, err)
}

func TestDiskCleanerRunStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	c := journal.NewDiskCleaner(dir, 1024*1024, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("DiskCleaner.Run did not stop after cancellation")
	}
}

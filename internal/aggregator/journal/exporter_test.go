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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rask-sh/rask-pipeline/internal/aggregator/journal"
	"github.com/rask-sh/rask-pipeline/internal/domain"
)

func sampleRow() domain.ColumnarRow {
	return domain.ColumnarRow{
		ServiceType: "test",
		LogType:     "app",
		Message:     "test message",
		Level:       1,
		Timestamp:   time.Now().UTC(),
		Stream:      "stdout",
		ContainerID: "abc123",
		ServiceName: "test-svc",
	}
}

func TestJsonFileExporterCreatesFile(t *testing.T) {
	dir := t.TempDir()
	exp, err := journal.NewJsonFileExporter(journal.ExporterConfig{Directory: dir, BaseName: "test"})
	require.NoError(t, err)
	defer exp.Close()

	require.NoError(t, exp.Export(sampleRow()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

// countJSONLines counts the total number of lines across every *.json
// file in dir. Rotation filenames carry only second precision (matching
// json_file_exporter.rs's Local::now().format("%Y%m%d_%H%M%S")), so two
// rotations within the same wall-clock second can collide onto one file;
// what must hold regardless is that every exported line survives.
func countJSONLines(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	total := 0
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		for _, b := range data {
			if b == '\n' {
				total++
			}
		}
	}
	return total
}

func TestJsonFileExporterRotatesOnSize(t *testing.T) {
	dir := t.TempDir()
	exp, err := journal.NewJsonFileExporter(journal.ExporterConfig{
		Directory:   dir,
		BaseName:    "test",
		MaxSizeByte: 1, // rotate after the very first write
	})
	require.NoError(t, err)
	defer exp.Close()

	require.NoError(t, exp.Export(sampleRow()))
	require.NoError(t, exp.Export(sampleRow()))

	require.Equal(t, 2, countJSONLines(t, dir))
}

func TestJsonFileExporterRotatesOnAge(t *testing.T) {
	dir := t.TempDir()
	exp, err := journal.NewJsonFileExporter(journal.ExporterConfig{
		Directory: dir,
		BaseName:  "test",
		MaxAge:    time.Nanosecond,
	})
	require.NoError(t, err)
	defer exp.Close()

	require.NoError(t, exp.Export(sampleRow()))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, exp.Export(sampleRow()))

	require.Equal(t, 2, countJSONLines(t, dir))
}

func TestJsonFileExporterCloseRejectsFurtherWrites(t *testing.T) {
	dir := t.TempDir()
	exp, err := journal.NewJsonFileExporter(journal.ExporterConfig{Directory: dir, BaseName: "test"})
	require.NoError(t, err)

	require.NoError(t, exp.Close())
	require.Error(t, exp.Export(sampleRow()))
}

func TestJsonFileExporterDefaultBaseName(t *testing.T) {
	dir := t.TempDir()
	exp, err := journal.NewJsonFileExporter(journal.ExporterConfig{Directory: dir})
	require.NoError(t, err)
	defer exp.Close()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Contains(t, filepath.Base(entries[0].Name()), "logs_")
}

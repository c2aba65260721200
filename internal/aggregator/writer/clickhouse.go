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

package writer

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/rask-sh/rask-pipeline/internal/domain"
)

// ClickHouseConfig names the target database and its connection limits.
type ClickHouseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Table    string // defaults to "logs"

	DialTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ClickHouseWriter inserts rows into a ClickHouse table over the native
// protocol via clickhouse-go's driver.Conn, one PrepareBatch per
// WriteRows call.
type ClickHouseWriter struct {
	conn  clickhouse.Conn
	table string
}

// NewClickHouseWriter opens a pooled native-protocol connection and
// verifies it with Ping.
func NewClickHouseWriter(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseWriter, error) {
	table := cfg.Table
	if table == "" {
		table = "logs"
	}

	opts := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		DialTimeout:     cfg.DialTimeout,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("writer: open clickhouse connection: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("writer: ping clickhouse: %w", err)
	}

	return &ClickHouseWriter{conn: conn, table: table}, nil
}

// WriteRows appends every row to a single batch insert and sends it.
func (w *ClickHouseWriter) WriteRows(ctx context.Context, rows []domain.ColumnarRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO "+w.table)
	if err != nil {
		return fmt.Errorf("writer: prepare batch: %w", err)
	}

	for _, row := range rows {
		fields := make(map[string]string, len(row.Fields))
		for _, kv := range row.Fields {
			fields[kv.Key] = kv.Value
		}
		err := batch.Append(
			row.ServiceType,
			row.LogType,
			row.Message,
			row.Level,
			row.Timestamp,
			row.Stream,
			row.ContainerID,
			row.ServiceName,
			row.ServiceGroup,
			row.TraceID[:],
			row.SpanID[:],
			fields,
		)
		if err != nil {
			return fmt.Errorf("writer: append row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("writer: send batch: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}

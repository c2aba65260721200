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

// Command rask-aggregator receives OTLP logs/traces and legacy NDJSON
// batches over HTTP, encodes log rows and persists them to ClickHouse, and
// journals decoded traces to disk. The run/signal/shutdown shape follows
// cmd/pebble's "run" command.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/rask-sh/rask-pipeline/internal/aggregator/journal"
	"github.com/rask-sh/rask-pipeline/internal/aggregator/otlp"
	"github.com/rask-sh/rask-pipeline/internal/aggregator/writer"
	"github.com/rask-sh/rask-pipeline/internal/config"
	"github.com/rask-sh/rask-pipeline/internal/logger"
)

const shutdownGrace = 4 * time.Second

func main() {
	logger.SetAppID("rask-aggregator")

	cfg, err := config.LoadAggregatorConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "rask-aggregator: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		logger.Noticef("exiting: %v", err)
		os.Exit(1)
	}
}

func run(cfg config.AggregatorConfig) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rows, err := writer.NewClickHouseWriter(ctx, writer.ClickHouseConfig{
		Host:            cfg.ClickhouseHost,
		Port:            cfg.ClickhousePort,
		User:            cfg.ClickhouseUser,
		Password:        cfg.ClickhousePassword,
		Database:        cfg.ClickhouseDatabase,
		DialTimeout:     5 * time.Second,
		MaxOpenConns:    8,
		MaxIdleConns:    4,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return fmt.Errorf("connecting to clickhouse: %w", err)
	}
	defer rows.Close()

	journalDir := journalDirectory()
	if err := os.MkdirAll(journalDir, 0o755); err != nil {
		return fmt.Errorf("creating journal directory: %w", err)
	}

	exporter, err := journal.NewJsonFileExporter(journal.ExporterConfig{
		Directory: journalDir,
		BaseName:  "traces",
	})
	if err != nil {
		return fmt.Errorf("initializing journal exporter: %w", err)
	}
	defer exporter.Close()

	const journalQuotaBytes = 1 << 30 // 1 GiB total, well above a single rotated file
	cleaner := journal.NewDiskCleaner(journalDir, journalQuotaBytes, time.Hour)
	go cleaner.Run(ctx)

	handlers := otlp.NewHandlers(rows, exporter, "unknown")
	router := mux.NewRouter()
	handlers.Register(router)

	// HTTP_PORT serves the legacy /v1/aggregate endpoint (matching
	// RASK_ENDPOINT's default), OTLP_HTTP_PORT serves /v1/logs and
	// /v1/traces at the standard OTLP HTTP receiver port; both listen on
	// the same router since every route is harmless to expose on either.
	legacySrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.HTTPPort), Handler: router}
	otlpSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.OTLPHTTPPort), Handler: router}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go serve(legacySrv)
	go serve(otlpSrv)

	sig := <-sigCh
	logger.Noticef("exiting on %s signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	err = legacySrv.Shutdown(shutdownCtx)
	if otlpErr := otlpSrv.Shutdown(shutdownCtx); err == nil {
		err = otlpErr
	}
	return err
}

func serve(srv *http.Server) {
	logger.Noticef("listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Noticef("http server %s: %v", srv.Addr, err)
	}
}

func journalDirectory() string {
	if dir := os.Getenv("RASK_JOURNAL_DIR"); dir != "" {
		return dir
	}
	return "/var/lib/rask-aggregator/journal"
}

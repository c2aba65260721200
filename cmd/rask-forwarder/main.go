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

// Command rask-forwarder tails a single container's Docker log stream,
// parses and enriches each line, seals entries into batches, and posts
// them to the aggregator with retry and disk-fallback reliability. The
// overall run/signal/shutdown shape follows cmd/pebble's "run" command.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rask-sh/rask-pipeline/internal/config"
	"github.com/rask-sh/rask-pipeline/internal/domain"
	"github.com/rask-sh/rask-pipeline/internal/forwarder/batch"
	"github.com/rask-sh/rask-pipeline/internal/forwarder/buffer"
	"github.com/rask-sh/rask-pipeline/internal/forwarder/collector"
	"github.com/rask-sh/rask-pipeline/internal/forwarder/discovery"
	"github.com/rask-sh/rask-pipeline/internal/forwarder/parser"
	"github.com/rask-sh/rask-pipeline/internal/forwarder/reliability"
	"github.com/rask-sh/rask-pipeline/internal/forwarder/sender"
	"github.com/rask-sh/rask-pipeline/internal/forwarder/serialize"
	"github.com/rask-sh/rask-pipeline/internal/httputil"
	"github.com/rask-sh/rask-pipeline/internal/logger"
)

const shutdownGrace = 4 * time.Second

func main() {
	logger.SetAppID("rask-forwarder")

	cfg, err := config.LoadForwarderConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "rask-forwarder: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		logger.Noticef("exiting: %v", err)
		os.Exit(1)
	}
}

func run(cfg config.ForwarderConfig) error {
	env := discovery.Env{
		TargetService:  cfg.TargetService,
		NetworkMode:    cfg.NetworkMode,
		Hostname:       cfg.Hostname,
		ComposeService: cfg.ComposeService,
	}
	targetService, err := env.TargetService()
	if err != nil {
		return fmt.Errorf("resolving target service: %w", err)
	}

	dockerRuntime, err := discovery.NewDockerRuntime()
	if err != nil {
		return fmt.Errorf("connecting to docker: %w", err)
	}
	defer dockerRuntime.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	disc := discovery.New(dockerRuntime)
	info, err := disc.FindContainerByService(ctx, targetService)
	if err != nil {
		return fmt.Errorf("finding container for %q: %w", targetService, err)
	}

	serviceGroup := cfg.Group
	if serviceGroup == "" {
		serviceGroup = info.Group
	}

	reg := prometheus.NewRegistry()

	retry := reliability.NewRetryController(reliability.DefaultRetryConfig())
	health := reliability.NewHealthMonitor(3, 2)
	diskCfg := reliability.DefaultDiskConfig()
	disk, err := reliability.NewDiskFallback(diskCfg)
	if err != nil {
		return fmt.Errorf("initializing disk fallback: %w", err)
	}

	logSender := sender.New(sender.Config{
		Endpoint:          cfg.Endpoint,
		UserAgent:         "rask-forwarder",
		ForwarderVersion:  version,
		Format:            serialize.FormatNDJSON,
		EnableCompression: true,
		Client: httputil.ClientOptions{
			Timeout:             10 * time.Second,
			ConnectTimeout:      3 * time.Second,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConnsPerHost: 4,
			KeepAlive:           30 * time.Second,
		},
	})

	manager := reliability.NewManager(logSender, retry, disk, health, reg)

	pressure := buffer.NewMemoryPressure(256<<20, 512<<20)
	logBuffer, err := buffer.New(buffer.Config{
		Capacity:              100_000,
		BatchSize:             500,
		BatchTimeout:          5 * time.Second,
		EnableBackpressure:    true,
		BackpressureThreshold: 0.8,
		BackpressureDelay:     50 * time.Millisecond,
	}, pressure)
	if err != nil {
		return fmt.Errorf("initializing buffer: %w", err)
	}
	defer logBuffer.Close()

	former := batch.New(batch.Config{
		MaxSize:       500,
		MaxMemorySize: 4 << 20,
		MaxWaitTime:   5 * time.Second,
	})
	defer former.Stop()

	logCollector := collector.NewLogCollector(dockerRuntime.Client(), 1000)
	registry := parser.DefaultRegistry()

	logCollector.Watch(ctx, info.ID)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	metricsSrv := startMetricsServer(reg)
	defer shutdownMetricsServer(metricsSrv)

	go pumpFrames(ctx, logCollector, registry, former, logBuffer, info.ServiceName, serviceGroup)
	go pumpBuffer(ctx, logBuffer, former)
	go runBackgroundTasks(ctx, manager, pressure)

	readyCh := make(chan domain.Batch)
	go func() {
		defer close(readyCh)
		for {
			b, ok := former.NextBatch(ctx)
			if !ok {
				return
			}
			select {
			case readyCh <- b:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case sig := <-sigCh:
			logger.Noticef("exiting on %s signal", sig)
			cancel()
			logCollector.StopAll()
			return nil
		case batchResult, ok := <-readyCh:
			if !ok {
				return nil
			}
			sendCtx, sendCancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := manager.SendBatchWithReliability(sendCtx, batchResult); err != nil {
				logger.Noticef("batch %s could not be delivered or stored: %v", batchResult.ID, err)
			}
			sendCancel()
		}
	}
}

// pumpFrames parses raw frames off the collector and pushes enriched
// entries into the buffer, applying backpressure via LogBuffer.Send.
func pumpFrames(ctx context.Context, c *collector.LogCollector, reg *parser.Registry, f *batch.BatchFormer, buf *buffer.LogBuffer, serviceName, serviceGroup string) {
	for frame := range c.Frames() {
		entry := reg.Parse(frame, serviceName, serviceGroup)
		size := buffer.EstimateSize(entry)
		if err := buf.Send(entry, size); err != nil {
			logger.Debugf("dropping entry, buffer send failed: %v", err)
		}
	}
}

// pumpBuffer drains the buffer into the batch former.
func pumpBuffer(ctx context.Context, buf *buffer.LogBuffer, f *batch.BatchFormer) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-buf.Receive():
			if !ok {
				return
			}
			f.AddEntry(entry)
		}
	}
}

func runBackgroundTasks(ctx context.Context, m *reliability.Manager, pressure *buffer.MemoryPressure) {
	var memStats runtime.MemStats
	m.RunBackgroundTasks(ctx, func() {
		runtime.ReadMemStats(&memStats)
	})
}

func startMetricsServer(reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: ":9601", Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Noticef("metrics server: %v", err)
		}
	}()
	return srv
}

func shutdownMetricsServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

var version = "dev"

// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package cmd

import (
	"context"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/HIT-SCIR/libltp"
	"github.com/antflydb/antfly-go/libaf/healthserver"
	"github.com/antflydb/antfly-go/libaf/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the LTP analysis server",
	Long: `Start the LTP HTTP service.

Endpoints:
  POST /api/analyze   analyze a batch of sentences (JSON or Arrow IPC)
  GET  /api/tasks     tasks supported by the loaded model
  GET  /api/version   build information
  GET  /healthz       liveness
  GET  /readyz        readiness, queue and cache statistics

Examples:
  # Serve a pulled model
  ltp run --model-dir LTP/small

  # Serve on another address with a persistent result cache
  ltp run --model-dir ./ltp-small --api-url http://0.0.0.0:9000 --store-path ltp.db`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	// Run command flags
	runCmd.Flags().Int("health-port", 4200, "health/metrics server port")
	runCmd.Flags().String("api-url", libltp.DefaultApiUrl, "address the API listens on")
	runCmd.Flags().Int("max-concurrent-requests", 0, "requests processed at once")
	runCmd.Flags().Int("max-queue-size", libltp.DefaultMaxQueueSize, "requests waiting for a slot (0 = unbounded)")
	runCmd.Flags().String("request-timeout", "", "maximum queue wait (e.g. 30s)")
	runCmd.Flags().String("cache-ttl", "", "in-memory result cache TTL (0 disables)")
	runCmd.Flags().String("store-path", "", "bbolt file used as a persistent result cache")

	for _, name := range []string{
		"health-port", "api-url", "max-concurrent-requests", "max-queue-size",
		"request-timeout", "cache-ttl", "store-path",
	} {
		mustBindPFlag(flagKey(name), runCmd.Flags().Lookup(name))
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Create logger from config
	logger := logging.NewLogger(&logging.Config{
		Level: logging.Level(viper.GetString("log.level")),
		Style: logging.Style(viper.GetString("log.style")),
	})
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("Running as ltp")

	cfg := serviceConfig()

	// Track readiness state
	ready := &atomic.Bool{}
	readyC := make(chan struct{})

	// Start health server with readiness checker
	healthserver.Start(logger, viper.GetInt("health_port"), ready.Load)

	// Wait for ready signal in background
	go func() {
		select {
		case <-readyC:
			ready.Store(true)
			logger.Info("LTP is ready")
		case <-ctx.Done():
		}
	}()

	return libltp.RunAsServer(ctx, logger, cfg, readyC)
}

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


// Package libltp runs the LTP analysis service: an HTTP API over a pool of
// LTP pipelines with backpressure, result caching, health endpoints and
// Prometheus metrics.
package libltp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/HIT-SCIR/libltp/lib/analysis"
	"github.com/HIT-SCIR/libltp/lib/backends"
	"github.com/HIT-SCIR/libltp/lib/pipelines"
	"github.com/HIT-SCIR/libltp/lib/store"
	"go.uber.org/zap"
)

// LTPNode holds the state shared by the HTTP handlers.
type LTPNode struct {
	logger *zap.Logger

	// analyzer is nil when no model is loaded.
	analyzer analysis.Analyzer
	backend  string

	// Request queue for backpressure control
	requestQueue *RequestQueue

	cache *AnalysisCache
}

// NewLTPNode creates a node serving analyzer, which may be nil.
func NewLTPNode(logger *zap.Logger, analyzer analysis.Analyzer, backend string, queue *RequestQueue, cache *AnalysisCache) *LTPNode {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queue == nil {
		queue = NewRequestQueue(RequestQueueConfig{MaxConcurrentRequests: DefaultMaxConcurrentRequests}, logger.Named("queue"))
	}
	return &LTPNode{
		logger:       logger,
		analyzer:     analyzer,
		backend:      backend,
		requestQueue: queue,
		cache:        cache,
	}
}

// Analyzer returns the loaded analyzer or nil.
func (ln *LTPNode) Analyzer() analysis.Analyzer { return ln.analyzer }

// Handler returns the root handler: health endpoints and the /api routes.
func (ln *LTPNode) Handler() http.Handler {
	rootMux := http.NewServeMux()

	// Health endpoints (outside /api prefix for k8s compatibility)
	rootMux.HandleFunc("GET /healthz", ln.handleHealthz)
	rootMux.HandleFunc("GET /readyz", ln.handleReadyz)

	rootMux.Handle("/api/", NewLTPAPI(ln.logger, ln))

	return corsMiddleware(rootMux)
}

// corsMiddleware adds permissive CORS headers for the API
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, Accept, Origin")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// DefaultShutdownTimeout is the default time to wait for graceful shutdown
const DefaultShutdownTimeout = 30 * time.Second

// RunAsServer loads the model, serves the API until ctx is cancelled and
// then shuts down gracefully. If readyC is non-nil, it is closed once the
// server accepts requests.
func RunAsServer(ctx context.Context, zl *zap.Logger, config Config, readyC chan struct{}) error {
	zl = zl.Named("ltp")

	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	zl.Info("Starting LTP node", zap.Any("config", config))

	u, err := url.Parse(config.ApiUrl)
	if err != nil {
		return fmt.Errorf("invalid API URL %q: %w", config.ApiUrl, err)
	}

	// Detect and log GPU info
	gpuInfo := backends.DetectGPU()
	zl.Info("GPU detection complete",
		zap.Bool("available", gpuInfo.Available),
		zap.String("type", gpuInfo.Type),
		zap.String("library", gpuInfo.Library))

	sessionManager := newSessionManager(&config, zl)
	defer func() { _ = sessionManager.Close() }()

	var (
		pool        *analysis.PooledAnalyzer
		backendUsed backends.BackendType
	)
	if config.ModelDir != "" {
		pool, backendUsed, err = loadPool(&config, sessionManager, zl)
		if err != nil {
			return err
		}
		defer func() { _ = pool.Close() }()
	} else {
		zl.Warn("No model_dir configured, analysis endpoints will return 503")
	}

	var st *store.Store
	if config.StorePath != "" {
		st, err = store.Open(config.StorePath)
		if err != nil {
			zl.Warn("Result store unavailable, continuing without it",
				zap.String("path", config.StorePath),
				zap.Error(err))
		} else {
			defer func() { _ = st.Close() }()
			zl.Info("Result store opened", zap.String("path", config.StorePath), zap.Int("items", st.Len()))
		}
	}

	cache := NewAnalysisCache(config.cacheTTL, st, zl.Named("cache"))
	defer cache.Close()

	requestQueue := NewRequestQueue(RequestQueueConfig{
		MaxConcurrentRequests: config.MaxConcurrentRequests,
		MaxQueueSize:          config.MaxQueueSize,
		RequestTimeout:        config.requestTimeout,
	}, zl.Named("queue"))

	var analyzer analysis.Analyzer
	if pool != nil {
		analyzer = cache.Wrap(pool)
	}
	node := NewLTPNode(zl, analyzer, string(backendUsed), requestQueue, cache)

	listener, err := net.Listen("tcp", u.Host)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", u.Host, err)
	}

	srv := &http.Server{
		Handler:     node.Handler(),
		ReadTimeout: 540 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		zl.Info("LTP api server starting", zap.String("address", listener.Addr().String()))
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Signal readiness after server starts
	if readyC != nil {
		close(readyC)
	}

	// Wait for context cancellation or server error
	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
	case <-ctx.Done():
		zl.Info("Shutdown signal received, starting graceful shutdown...")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections
	srv.SetKeepAlivesEnabled(false)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("Graceful shutdown failed, forcing close",
			zap.Error(err),
			zap.Duration("timeout", DefaultShutdownTimeout))
		_ = srv.Close()
	} else {
		zl.Info("Graceful shutdown completed successfully")
	}

	zl.Info("HTTP server stopped")
	return nil
}

func newSessionManager(config *Config, zl *zap.Logger) *backends.SessionManager {
	sessionManager := backends.NewSessionManager()
	if len(config.priority) > 0 {
		sessionManager.SetPriority(config.priority)
		zl.Info("Backend priority configured", zap.Strings("priority", config.BackendPriority))
	}
	return sessionManager
}

func loadPool(config *Config, sessionManager *backends.SessionManager, zl *zap.Logger) (*analysis.PooledAnalyzer, backends.BackendType, error) {
	start := time.Now()
	pool, backendUsed, err := analysis.NewPooledAnalyzer(analysis.Config{
		ModelPath:    config.ModelDir,
		PoolSize:     config.PoolSize,
		MaxBatchSize: config.MaxBatchSize,
		PipelineOptions: []pipelines.Option{
			pipelines.WithMaxLength(config.MaxLength),
			pipelines.WithSessionOptions(config.SessionOptions()...),
		},
		Logger: zl.Named("analysis"),
	}, sessionManager)
	if err != nil {
		return nil, "", fmt.Errorf("loading model from %s: %w", config.ModelDir, err)
	}
	RecordModelLoadDuration(string(backendUsed), time.Since(start).Seconds())
	return pool, backendUsed, nil
}

// LoadAnalyzer validates config and loads a pooled analyzer for
// config.ModelDir outside of a server. The returned function releases the
// analyzer and its engine sessions.
func LoadAnalyzer(config Config, zl *zap.Logger) (*analysis.PooledAnalyzer, backends.BackendType, func(), error) {
	if err := config.Validate(); err != nil {
		return nil, "", nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.ModelDir == "" {
		return nil, "", nil, fmt.Errorf("no model directory configured")
	}
	sessionManager := newSessionManager(&config, zl)
	pool, backendUsed, err := loadPool(&config, sessionManager, zl)
	if err != nil {
		_ = sessionManager.Close()
		return nil, "", nil, err
	}
	release := func() {
		_ = pool.Close()
		_ = sessionManager.Close()
	}
	return pool, backendUsed, release, nil
}

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

// Package analysis serves LTP analyses from a pool of pipelines. Each
// pipeline owns one engine session; large requests are split into
// sub-batches that run on different pipelines and are reassembled in order.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/HIT-SCIR/libltp/lib/backends"
	"github.com/HIT-SCIR/libltp/lib/batching"
	"github.com/HIT-SCIR/libltp/lib/pipelines"
	"github.com/HIT-SCIR/libltp/lib/vocab"
)

// DefaultMaxBatchSize is the largest number of sentences sent to one engine call.
const DefaultMaxBatchSize = 32

// ErrClosed is returned by an analyzer after Close.
var ErrClosed = errors.New("analyzer is closed")

// Pipeline is one engine-backed analyzer. *pipelines.LTPPipeline implements it.
type Pipeline interface {
	PipelineBatch(sentences []string) ([]pipelines.Result, error)
	Tasks() vocab.TaskSet
	Close() error
}

// Analyzer analyses sentences.
type Analyzer interface {
	// Analyze returns one result per sentence in input order.
	Analyze(ctx context.Context, sentences []string) ([]pipelines.Result, error)

	// Tasks returns the enabled tasks.
	Tasks() vocab.TaskSet

	// Close releases any resources held by the analyzer.
	Close() error
}

// Ensure PooledAnalyzer implements the Analyzer interface
var _ Analyzer = (*PooledAnalyzer)(nil)

// Config holds configuration for creating a PooledAnalyzer.
type Config struct {
	// ModelPath is the path to the model directory
	ModelPath string

	// PoolSize is the number of pipelines, each with its own engine session (0 = CPU count)
	PoolSize int

	// MaxBatchSize caps the sentences per engine call (0 = DefaultMaxBatchSize)
	MaxBatchSize int

	// ModelBackends restricts the backends the model may run on (nil = all backends)
	ModelBackends []string

	// PipelineOptions are passed to every pipeline
	PipelineOptions []pipelines.Option

	// Logger for logging (nil = no logging)
	Logger *zap.Logger
}

// Stats counts the work done by an analyzer.
type Stats struct {
	Requests  uint64 `json:"requests"`
	Sentences uint64 `json:"sentences"`
	Batches   uint64 `json:"batches"`
	Failures  uint64 `json:"failures"`
}

// PooledAnalyzer manages multiple pipelines for concurrent analysis.
type PooledAnalyzer struct {
	pipelines    []Pipeline
	sem          *semaphore.Weighted
	nextPipeline atomic.Uint64
	maxBatchSize int
	tasks        vocab.TaskSet
	backendType  backends.BackendType
	logger       *zap.Logger

	requests  atomic.Uint64
	sentences atomic.Uint64
	batches   atomic.Uint64
	failures  atomic.Uint64

	closeMu sync.RWMutex
	closed  bool
}

// NewPooledAnalyzer loads cfg.PoolSize pipelines from cfg.ModelPath.
func NewPooledAnalyzer(cfg Config, sessionManager *backends.SessionManager) (*PooledAnalyzer, backends.BackendType, error) {
	if cfg.ModelPath == "" {
		return nil, "", fmt.Errorf("model path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// Auto-detect pool size from CPU count if not specified
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
	}

	logger.Info("Initializing pooled analyzer",
		zap.String("modelPath", cfg.ModelPath),
		zap.Int("poolSize", poolSize))

	opts := append([]pipelines.Option{pipelines.WithLogger(logger.Named("pipeline"))}, cfg.PipelineOptions...)
	pool := make([]Pipeline, poolSize)
	var backendUsed backends.BackendType

	for i := 0; i < poolSize; i++ {
		pipeline, bt, err := pipelines.LoadLTPPipeline(cfg.ModelPath, sessionManager, cfg.ModelBackends, opts...)
		if err != nil {
			for j := 0; j < i; j++ {
				_ = pool[j].Close()
			}
			logger.Error("Failed to create LTP pipeline",
				zap.Int("index", i),
				zap.Error(err))
			return nil, "", fmt.Errorf("creating LTP pipeline %d: %w", i, err)
		}
		pool[i] = pipeline
		backendUsed = bt
		logger.Debug("Created LTP pipeline", zap.Int("index", i), zap.String("backend", string(bt)))
	}

	a, err := NewPool(pool, cfg.MaxBatchSize, logger)
	if err != nil {
		for _, p := range pool {
			_ = p.Close()
		}
		return nil, "", err
	}
	a.backendType = backendUsed

	logger.Info("Successfully created pooled analyzer",
		zap.Int("count", poolSize),
		zap.String("backend", string(backendUsed)),
		zap.Stringer("tasks", a.tasks))
	return a, backendUsed, nil
}

// NewPool builds an analyzer over already constructed pipelines, which must
// all serve the same tasks.
func NewPool(pool []Pipeline, maxBatchSize int, logger *zap.Logger) (*PooledAnalyzer, error) {
	if len(pool) == 0 {
		return nil, fmt.Errorf("at least one pipeline is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}

	tasks := pool[0].Tasks()
	for i, p := range pool[1:] {
		if p.Tasks() != tasks {
			return nil, fmt.Errorf("pipeline %d serves tasks %s, pipeline 0 serves %s", i+1, p.Tasks(), tasks)
		}
	}

	return &PooledAnalyzer{
		pipelines:    pool,
		sem:          semaphore.NewWeighted(int64(len(pool))),
		maxBatchSize: maxBatchSize,
		tasks:        tasks,
		logger:       logger,
	}, nil
}

// BackendType returns the backend the pipelines run on.
func (a *PooledAnalyzer) BackendType() backends.BackendType { return a.backendType }

// Tasks returns the enabled tasks.
func (a *PooledAnalyzer) Tasks() vocab.TaskSet { return a.tasks }

// PoolSize returns the number of pipelines.
func (a *PooledAnalyzer) PoolSize() int { return len(a.pipelines) }

// Stats returns a snapshot of the analyzer counters.
func (a *PooledAnalyzer) Stats() Stats {
	return Stats{
		Requests:  a.requests.Load(),
		Sentences: a.sentences.Load(),
		Batches:   a.batches.Load(),
		Failures:  a.failures.Load(),
	}
}

// Analyze splits sentences into sub-batches of at most MaxBatchSize, runs
// them concurrently on free pipelines and returns the results in input
// order. Thread-safe: a semaphore limits concurrent pipeline access.
func (a *PooledAnalyzer) Analyze(ctx context.Context, sentences []string) ([]pipelines.Result, error) {
	a.closeMu.RLock()
	defer a.closeMu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}

	a.requests.Add(1)
	if len(sentences) == 0 {
		return []pipelines.Result{}, nil
	}

	chunks, err := batching.Regroup(sentences, chunkSizes(len(sentences), a.maxBatchSize))
	if err != nil {
		return nil, err
	}

	results := make([]pipelines.Result, len(sentences))
	g, gctx := errgroup.WithContext(ctx)
	offset := 0
	for _, chunk := range chunks {
		start := offset
		offset += len(chunk)
		g.Go(func() error {
			out, err := a.run(gctx, chunk)
			if err != nil {
				return err
			}
			copy(results[start:], out)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		a.failures.Add(1)
		return nil, err
	}
	a.sentences.Add(uint64(len(sentences)))
	return results, nil
}

// run analyses one sub-batch on the next free pipeline.
func (a *PooledAnalyzer) run(ctx context.Context, sentences []string) ([]pipelines.Result, error) {
	// Acquire semaphore slot (blocks if all pipelines busy)
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring pipeline slot: %w", err)
	}
	defer a.sem.Release(1)

	// Round-robin pipeline selection
	idx := int(a.nextPipeline.Add(1) % uint64(len(a.pipelines)))
	pipeline := a.pipelines[idx]

	a.logger.Debug("Using pipeline for analysis",
		zap.Int("pipelineIndex", idx),
		zap.Int("num_sentences", len(sentences)))

	a.batches.Add(1)
	results, err := pipeline.PipelineBatch(sentences)
	if err != nil {
		a.logger.Error("Analysis failed",
			zap.Int("pipelineIndex", idx),
			zap.Error(err))
		return nil, fmt.Errorf("analysing batch: %w", err)
	}
	if len(results) != len(sentences) {
		return nil, fmt.Errorf("pipeline returned %d results for %d sentences", len(results), len(sentences))
	}
	return results, nil
}

// chunkSizes splits n items into consecutive groups of at most size.
func chunkSizes(n, size int) []int {
	sizes := make([]int, 0, (n+size-1)/size)
	for n > 0 {
		k := min(n, size)
		sizes = append(sizes, k)
		n -= k
	}
	return sizes
}

// Close releases every pipeline. In-flight calls finish first.
func (a *PooledAnalyzer) Close() error {
	a.closeMu.Lock()
	defer a.closeMu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true

	var lastErr error
	for i, pipeline := range a.pipelines {
		if err := pipeline.Close(); err != nil {
			a.logger.Warn("Failed to close pipeline",
				zap.Int("index", i),
				zap.Error(err))
			lastErr = err
		}
	}
	return lastErr
}

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


package libltp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic/encoder"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrQueueFull is returned when the wait queue is at capacity.
	ErrQueueFull = errors.New("request queue is full")
	// ErrRequestTimeout is returned when a request waited longer than the
	// configured timeout.
	ErrRequestTimeout = errors.New("request timed out waiting in queue")
)

// RequestQueueConfig configures a RequestQueue.
type RequestQueueConfig struct {
	// MaxConcurrentRequests is the number of requests processed at once.
	MaxConcurrentRequests int
	// MaxQueueSize is the number of requests allowed to wait (0 = unbounded).
	MaxQueueSize int
	// RequestTimeout bounds the wait for a slot (0 = no timeout).
	RequestTimeout time.Duration
}

// QueueStats is a snapshot of queue state.
type QueueStats struct {
	CurrentActive  int64  `json:"current_active"`
	CurrentQueued  int64  `json:"current_queued"`
	TotalProcessed uint64 `json:"total_processed"`
	TotalRejected  uint64 `json:"total_rejected"`
	TotalTimedOut  uint64 `json:"total_timed_out"`
}

// RequestQueue applies backpressure: a bounded number of requests run while
// a bounded number wait, and the rest are rejected.
type RequestQueue struct {
	config RequestQueueConfig
	sem    *semaphore.Weighted
	logger *zap.Logger

	active    atomic.Int64
	queued    atomic.Int64
	processed atomic.Uint64
	rejected  atomic.Uint64
	timedOut  atomic.Uint64
}

// NewRequestQueue creates a request queue. A non-positive concurrency
// limit means one request at a time.
func NewRequestQueue(config RequestQueueConfig, logger *zap.Logger) *RequestQueue {
	if config.MaxConcurrentRequests <= 0 {
		config.MaxConcurrentRequests = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestQueue{
		config: config,
		sem:    semaphore.NewWeighted(int64(config.MaxConcurrentRequests)),
		logger: logger,
	}
}

// Acquire waits for a processing slot. The returned release function must
// be called exactly once when the request finishes.
func (q *RequestQueue) Acquire(ctx context.Context) (func(), error) {
	if q.sem.TryAcquire(1) {
		return q.started(0), nil
	}

	if limit := q.config.MaxQueueSize; limit > 0 && q.queued.Load() >= int64(limit) {
		q.rejected.Add(1)
		q.logger.Debug("Rejecting request, queue full", zap.Int("max_queue_size", limit))
		return nil, ErrQueueFull
	}

	q.queued.Add(1)
	defer q.queued.Add(-1)

	waitCtx := ctx
	if q.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, q.config.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := q.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			q.timedOut.Add(1)
			return nil, ErrRequestTimeout
		}
		return nil, err
	}
	return q.started(time.Since(start)), nil
}

func (q *RequestQueue) started(waited time.Duration) func() {
	q.active.Add(1)
	RecordQueueWaitTime(waited.Seconds())
	var once atomic.Bool
	return func() {
		if !once.CompareAndSwap(false, true) {
			return
		}
		q.active.Add(-1)
		q.processed.Add(1)
		q.sem.Release(1)
	}
}

// Stats returns a snapshot of queue counters.
func (q *RequestQueue) Stats() QueueStats {
	return QueueStats{
		CurrentActive:  q.active.Load(),
		CurrentQueued:  q.queued.Load(),
		TotalProcessed: q.processed.Load(),
		TotalRejected:  q.rejected.Load(),
		TotalTimedOut:  q.timedOut.Load(),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// WriteQueueFullResponse writes a 503 with a Retry-After header.
func WriteQueueFullResponse(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	w.WriteHeader(http.StatusServiceUnavailable)
	_ = encoder.NewStreamEncoder(w).Encode(errorResponse{Error: ErrQueueFull.Error()})
}

// WriteTimeoutResponse writes a 504.
func WriteTimeoutResponse(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusGatewayTimeout)
	_ = encoder.NewStreamEncoder(w).Encode(errorResponse{Error: ErrRequestTimeout.Error()})
}

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

package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HIT-SCIR/libltp/lib/pipelines"
	"github.com/HIT-SCIR/libltp/lib/vocab"
)

// echoPipeline segments every sentence into a single word.
type echoPipeline struct {
	tasks  vocab.TaskSet
	delay  time.Duration
	err    error
	calls  atomic.Int32
	sizes  []int
	mu     sync.Mutex
	closed bool

	active, peak atomic.Int32
}

func (e *echoPipeline) PipelineBatch(sentences []string) ([]pipelines.Result, error) {
	e.calls.Add(1)
	n := e.active.Add(1)
	defer e.active.Add(-1)
	for {
		p := e.peak.Load()
		if n <= p || e.peak.CompareAndSwap(p, n) {
			break
		}
	}

	e.mu.Lock()
	e.sizes = append(e.sizes, len(sentences))
	e.mu.Unlock()

	time.Sleep(e.delay)
	if e.err != nil {
		return nil, e.err
	}
	out := make([]pipelines.Result, len(sentences))
	for i, s := range sentences {
		out[i] = pipelines.Result{Seg: []string{s}}
	}
	return out, nil
}

func (e *echoPipeline) Tasks() vocab.TaskSet {
	if e.tasks == 0 {
		return vocab.NewTaskSet(vocab.Seg)
	}
	return e.tasks
}

func (e *echoPipeline) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func sentences(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("sentence %d", i)
	}
	return out
}

func TestAnalyzePreservesOrderAcrossSubBatches(t *testing.T) {
	pipes := []Pipeline{&echoPipeline{delay: 2 * time.Millisecond}, &echoPipeline{}, &echoPipeline{delay: time.Millisecond}}
	a, err := NewPool(pipes, 4, nil)
	require.NoError(t, err)

	in := sentences(23)
	results, err := a.Analyze(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, results, len(in))
	for i, r := range results {
		assert.Equal(t, []string{in[i]}, r.Seg)
	}

	stats := a.Stats()
	assert.Equal(t, uint64(1), stats.Requests)
	assert.Equal(t, uint64(23), stats.Sentences)
	assert.Equal(t, uint64(6), stats.Batches)
	assert.Zero(t, stats.Failures)
}

func TestAnalyzeRespectsMaxBatchSize(t *testing.T) {
	p := &echoPipeline{}
	a, err := NewPool([]Pipeline{p}, 5, nil)
	require.NoError(t, err)

	_, err = a.Analyze(context.Background(), sentences(12))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{5, 5, 2}, p.sizes)
}

func TestAnalyzeBoundsConcurrencyToPoolSize(t *testing.T) {
	p := &echoPipeline{delay: 5 * time.Millisecond}
	a, err := NewPool([]Pipeline{p, p}, 1, nil)
	require.NoError(t, err)

	_, err = a.Analyze(context.Background(), sentences(8))
	require.NoError(t, err)
	assert.LessOrEqual(t, p.peak.Load(), int32(2))
}

func TestAnalyzeEmpty(t *testing.T) {
	p := &echoPipeline{}
	a, err := NewPool([]Pipeline{p}, 0, nil)
	require.NoError(t, err)

	results, err := a.Analyze(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, p.calls.Load())
}

func TestAnalyzeFailureFailsWholeRequest(t *testing.T) {
	boom := errors.New("engine exploded")
	a, err := NewPool([]Pipeline{&echoPipeline{}, &echoPipeline{err: boom}}, 2, nil)
	require.NoError(t, err)

	_, err = a.Analyze(context.Background(), sentences(6))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(1), a.Stats().Failures)
}

func TestAnalyzeCancelled(t *testing.T) {
	a, err := NewPool([]Pipeline{&echoPipeline{}}, 1, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Analyze(ctx, sentences(3))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewPoolRejectsMixedTasks(t *testing.T) {
	_, err := NewPool(nil, 1, nil)
	require.Error(t, err)

	_, err = NewPool([]Pipeline{
		&echoPipeline{},
		&echoPipeline{tasks: vocab.NewTaskSet(vocab.Seg, vocab.POS)},
	}, 1, nil)
	assert.ErrorContains(t, err, "serves tasks")
}

func TestCloseClosesPipelines(t *testing.T) {
	p1, p2 := &echoPipeline{}, &echoPipeline{}
	a, err := NewPool([]Pipeline{p1, p2}, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, a.PoolSize())

	require.NoError(t, a.Close())
	assert.True(t, p1.closed)
	assert.True(t, p2.closed)
	require.NoError(t, a.Close())

	_, err = a.Analyze(context.Background(), sentences(1))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestChunkSizes(t *testing.T) {
	assert.Equal(t, []int{3, 3, 1}, chunkSizes(7, 3))
	assert.Equal(t, []int{2}, chunkSizes(2, 5))
	assert.Empty(t, chunkSizes(0, 5))
}

func TestNewPooledAnalyzerRequiresModelPath(t *testing.T) {
	_, _, err := NewPooledAnalyzer(Config{}, nil)
	assert.ErrorContains(t, err, "model path")
}

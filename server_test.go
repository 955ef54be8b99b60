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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/HIT-SCIR/libltp/lib/analysis"
	"github.com/HIT-SCIR/libltp/lib/export"
	"github.com/HIT-SCIR/libltp/lib/pipelines"
	"github.com/HIT-SCIR/libltp/lib/vocab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// MockAnalyzer implements analysis.Analyzer for testing
type MockAnalyzer struct {
	tasks       vocab.TaskSet
	analyzeFunc func(ctx context.Context, sentences []string) ([]pipelines.Result, error)
	callCount   atomic.Int32
	closed      atomic.Bool
}

var _ analysis.Analyzer = (*MockAnalyzer)(nil)

func (m *MockAnalyzer) Analyze(ctx context.Context, sentences []string) ([]pipelines.Result, error) {
	m.callCount.Add(1)
	if m.analyzeFunc != nil {
		return m.analyzeFunc(ctx, sentences)
	}
	// Default implementation: one word per rune, tagged "n"
	results := make([]pipelines.Result, len(sentences))
	for i, s := range sentences {
		words := strings.Split(s, "")
		tags := make([]string, len(words))
		for j := range tags {
			tags[j] = "n"
		}
		results[i] = pipelines.Result{Seg: words, POS: tags}
	}
	return results, nil
}

func (m *MockAnalyzer) Tasks() vocab.TaskSet { return m.tasks }

func (m *MockAnalyzer) Close() error {
	m.closed.Store(true)
	return nil
}

func (m *MockAnalyzer) GetCallCount() int32 {
	return m.callCount.Load()
}

func newMockAnalyzer() *MockAnalyzer {
	return &MockAnalyzer{tasks: vocab.NewTaskSet(vocab.Seg, vocab.POS)}
}

func newTestNode(t *testing.T, a analysis.Analyzer) *LTPNode {
	t.Helper()
	logger := zaptest.NewLogger(t)
	return NewLTPNode(logger, a, "go", NewRequestQueue(RequestQueueConfig{
		MaxConcurrentRequests: 10,
		MaxQueueSize:          100,
	}, logger.Named("queue")), nil)
}

func postAnalyze(t *testing.T, h http.Handler, query string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/analyze"+query, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestLTPNode_HandleApiAnalyze_Success(t *testing.T) {
	mock := newMockAnalyzer()
	h := newTestNode(t, mock).Handler()

	w := postAnalyze(t, h, "", AnalyzeRequest{Sentences: []string{"他叫", "好"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp struct {
		Tasks   []string          `json:"tasks"`
		Results []json.RawMessage `json:"results"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, []string{"seg", "pos"}, resp.Tasks)
	require.Len(t, resp.Results, 2)
	assert.JSONEq(t,
		`{"seg":["他","叫"],"pos":["n","n"],"ner":null,"srl":null,"dep":null,"sdp":null}`,
		string(resp.Results[0]))

	assert.Equal(t, int32(1), mock.GetCallCount())
}

func TestLTPNode_HandleApiAnalyze_Arrow(t *testing.T) {
	h := newTestNode(t, newMockAnalyzer()).Handler()

	w := postAnalyze(t, h, "?format=arrow", AnalyzeRequest{Sentences: []string{"他叫", "好"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, ContentTypeArrow, w.Header().Get("Content-Type"))

	results, err := export.ReadArrowIPC(w.Body)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, []string{"他", "叫"}, results[0].Seg)
	assert.Nil(t, results[1].NER)
}

func TestLTPNode_HandleApiAnalyze_NotAvailable(t *testing.T) {
	h := newTestNode(t, nil).Handler()

	w := postAnalyze(t, h, "", AnalyzeRequest{Sentences: []string{"好"}})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLTPNode_HandleApiAnalyze_InvalidRequest(t *testing.T) {
	h := newTestNode(t, newMockAnalyzer()).Handler()

	tests := []struct {
		name  string
		query string
		body  string
	}{
		{name: "invalid json", body: "invalid json"},
		{name: "missing sentences", body: `{}`},
		{name: "empty sentences", body: `{"sentences": []}`},
		{name: "unknown format", query: "?format=xml", body: `{"sentences": ["好"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/analyze"+tt.query, strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestLTPNode_HandleApiAnalyze_Failure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "pipeline error", err: errors.New("engine exploded"), want: http.StatusInternalServerError},
		{name: "closed", err: analysis.ErrClosed, want: http.StatusServiceUnavailable},
		{name: "cancelled", err: context.Canceled, want: http.StatusRequestTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockAnalyzer()
			mock.analyzeFunc = func(ctx context.Context, sentences []string) ([]pipelines.Result, error) {
				return nil, tt.err
			}
			w := postAnalyze(t, newTestNode(t, mock).Handler(), "", AnalyzeRequest{Sentences: []string{"好"}})
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestLTPNode_HandleApiAnalyze_QueueFull(t *testing.T) {
	logger := zaptest.NewLogger(t)
	queue := NewRequestQueue(RequestQueueConfig{MaxConcurrentRequests: 1, MaxQueueSize: 1}, logger)

	release, err := queue.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	// Occupy the single queue slot.
	waiting := make(chan struct{})
	go func() {
		defer close(waiting)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if r, err := queue.Acquire(ctx); err == nil {
			r()
		}
	}()
	require.Eventually(t, func() bool { return queue.Stats().CurrentQueued == 1 }, time.Second, 5*time.Millisecond)

	node := NewLTPNode(logger, newMockAnalyzer(), "go", queue, nil)
	w := postAnalyze(t, node.Handler(), "", AnalyzeRequest{Sentences: []string{"好"}})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "5", w.Header().Get("Retry-After"))

	release()
	<-waiting
}

func TestLTPNode_HandleApiTasks(t *testing.T) {
	h := newTestNode(t, newMockAnalyzer()).Handler()

	req := httptest.NewRequest("GET", "/api/tasks", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp TasksResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, []string{"seg", "pos"}, resp.Tasks)
	assert.Equal(t, "go", resp.Backend)

	req = httptest.NewRequest("GET", "/api/tasks", nil)
	w = httptest.NewRecorder()
	newTestNode(t, nil).Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLTPNode_HealthEndpoints(t *testing.T) {
	ready := newTestNode(t, newMockAnalyzer()).Handler()
	notReady := newTestNode(t, nil).Handler()

	for _, h := range []http.Handler{ready, notReady} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	ready.ServeHTTP(w, httptest.NewRequest("GET", "/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var resp ReadyResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, []string{"seg", "pos"}, resp.Tasks)

	w = httptest.NewRecorder()
	notReady.ServeHTTP(w, httptest.NewRequest("GET", "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLTPNode_Version(t *testing.T) {
	h := newTestNode(t, nil).Handler()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/version", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp VersionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, Version, resp.Version)
	assert.NotEmpty(t, resp.GoVersion)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestNode(t, nil).Handler()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("OPTIONS", "/api/analyze", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestWordsPerTask(t *testing.T) {
	results := []pipelines.Result{
		{Seg: []string{"a", "b"}, POS: []string{"n", "v"}, Dep: []pipelines.DepEdge{{}, {}}},
		{Seg: []string{"c"}, POS: []string{"n"}, Dep: []pipelines.DepEdge{{}}},
	}
	got := wordsPerTask(vocab.NewTaskSet(vocab.Seg, vocab.POS, vocab.Dep), results)
	assert.Equal(t, map[string]int{"seg": 3, "pos": 3, "dep": 3}, got)
}

func TestRunAsServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	readyC := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- RunAsServer(ctx, zaptest.NewLogger(t), Config{ApiUrl: "http://127.0.0.1:0"}, readyC)
	}()

	select {
	case <-readyC:
	case err := <-done:
		t.Fatalf("server exited before ready: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not become ready")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(DefaultShutdownTimeout):
		t.Fatal("server did not shut down")
	}
}

func TestRunAsServer_InvalidConfig(t *testing.T) {
	err := RunAsServer(context.Background(), zaptest.NewLogger(t), Config{CacheTTL: "soon"}, nil)
	require.Error(t, err)

	err = RunAsServer(context.Background(), zaptest.NewLogger(t), Config{
		ApiUrl:   "http://127.0.0.1:0",
		ModelDir: t.TempDir(),
	}, nil)
	require.Error(t, err)
	assert.Equal(t, pipelines.KindIO, pipelines.KindOf(err))
}

func TestLoadAnalyzer_Errors(t *testing.T) {
	_, _, _, err := LoadAnalyzer(Config{}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model directory")

	_, _, _, err = LoadAnalyzer(Config{ModelDir: t.TempDir(), MaxLength: 2}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")

	_, _, _, err = LoadAnalyzer(Config{ModelDir: t.TempDir()}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Equal(t, pipelines.KindIO, pipelines.KindOf(err))
}

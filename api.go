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
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/HIT-SCIR/libltp/lib/analysis"
	"github.com/HIT-SCIR/libltp/lib/export"
	"github.com/HIT-SCIR/libltp/lib/pipelines"
	"github.com/HIT-SCIR/libltp/lib/vocab"
	"github.com/bytedance/sonic/decoder"
	"github.com/bytedance/sonic/encoder"
	"go.uber.org/zap"
)

// AnalyzeRequest is the body of POST /api/analyze.
type AnalyzeRequest struct {
	Sentences []string `json:"sentences"`
}

// AnalyzeResponse is the JSON reply of POST /api/analyze. Results are in
// request order; a layer is null when its task is disabled.
type AnalyzeResponse struct {
	Tasks   []string           `json:"tasks"`
	Results []pipelines.Result `json:"results"`
}

// TasksResponse is the reply of GET /api/tasks.
type TasksResponse struct {
	Tasks   []string `json:"tasks"`
	Backend string   `json:"backend,omitempty"`
}

// VersionResponse is the reply of GET /api/version.
type VersionResponse struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// ContentTypeArrow is the media type of Arrow IPC stream responses.
const ContentTypeArrow = "application/vnd.apache.arrow.stream"

// NewLTPAPI creates the HTTP handler for the /api routes.
func NewLTPAPI(logger *zap.Logger, node *LTPNode) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/analyze", node.handleApiAnalyze)
	mux.HandleFunc("GET /api/tasks", node.handleApiTasks)
	mux.HandleFunc("GET /api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(logger, w, http.StatusOK, VersionResponse{
			Version:   Version,
			GitCommit: GitCommit,
			BuildTime: BuildTime,
			GoVersion: runtime.Version(),
		})
	})
	return mux
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := encoder.NewStreamEncoder(w).Encode(v); err != nil {
		logger.Error("encoding response", zap.Error(err))
	}
}

// handleApiTasks lists the tasks the loaded model serves.
func (ln *LTPNode) handleApiTasks(w http.ResponseWriter, r *http.Request) {
	a := ln.Analyzer()
	if a == nil {
		http.Error(w, "analysis not available: no model loaded", http.StatusServiceUnavailable)
		return
	}
	writeJSON(ln.logger, w, http.StatusOK, TasksResponse{
		Tasks:   a.Tasks().Names(),
		Backend: ln.backend,
	})
}

// handleApiAnalyze runs the pipeline over a batch of sentences.
func (ln *LTPNode) handleApiAnalyze(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = r.Body.Close() }()
	start := time.Now()

	a := ln.Analyzer()
	if a == nil {
		http.Error(w, "analysis not available: no model loaded", http.StatusServiceUnavailable)
		return
	}

	format := r.URL.Query().Get("format")
	switch format {
	case "":
		format = "json"
	case "json", "arrow":
	default:
		http.Error(w, fmt.Sprintf("unsupported format %q (expected json or arrow)", format), http.StatusBadRequest)
		return
	}

	// Apply backpressure via request queue
	release, err := ln.requestQueue.Acquire(r.Context())
	if err != nil {
		switch err {
		case ErrQueueFull:
			RecordQueueRejection()
			WriteQueueFullResponse(w, 5*time.Second)
		case ErrRequestTimeout:
			RecordQueueTimeout()
			WriteTimeoutResponse(w)
		default:
			http.Error(w, "request cancelled", http.StatusRequestTimeout)
		}
		return
	}
	defer release()

	UpdateQueueMetrics(ln.requestQueue.Stats())

	var req AnalyzeRequest
	if err := decoder.NewStreamDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("decoding request: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Sentences) == 0 {
		http.Error(w, "sentences are required", http.StatusBadRequest)
		return
	}

	RecordAnalyzeRequest(format)
	results, err := a.Analyze(r.Context(), req.Sentences)
	if err != nil {
		status := analyzeErrorStatus(err)
		RecordRequestDuration("analyze", strconv.Itoa(status), time.Since(start).Seconds())
		if status >= http.StatusInternalServerError {
			ln.logger.Error("Analysis failed",
				zap.Int("num_sentences", len(req.Sentences)),
				zap.Stringer("kind", pipelines.KindOf(err)),
				zap.Error(err))
		}
		http.Error(w, fmt.Sprintf("analysis failed: %v", err), status)
		return
	}

	RecordAnalysis(len(results), wordsPerTask(a.Tasks(), results))
	RecordRequestDuration("analyze", "200", time.Since(start).Seconds())

	ln.logger.Debug("Analyze request completed",
		zap.Int("num_sentences", len(req.Sentences)),
		zap.String("format", format),
		zap.Duration("duration", time.Since(start)))

	if format == "arrow" {
		w.Header().Set("Content-Type", ContentTypeArrow)
		if err := export.WriteArrowIPC(w, results); err != nil {
			ln.logger.Error("encoding arrow response", zap.Error(err))
		}
		return
	}

	writeJSON(ln.logger, w, http.StatusOK, AnalyzeResponse{
		Tasks:   a.Tasks().Names(),
		Results: results,
	})
}

// analyzeErrorStatus maps an analysis error to an HTTP status.
func analyzeErrorStatus(err error) int {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	case errors.Is(err, analysis.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// wordsPerTask counts the labelled units each enabled task produced.
func wordsPerTask(tasks vocab.TaskSet, results []pipelines.Result) map[string]int {
	counts := make(map[string]int, len(vocab.AllTasks))
	for _, t := range tasks.List() {
		n := 0
		for i := range results {
			r := &results[i]
			switch t {
			case vocab.Seg:
				n += len(r.Seg)
			case vocab.POS:
				n += len(r.POS)
			case vocab.NER:
				n += len(r.NER)
			case vocab.SRL:
				n += len(r.SRL)
			case vocab.Dep:
				n += len(r.Dep)
			case vocab.SDP:
				n += len(r.SDP)
			}
		}
		counts[t.String()] = n
	}
	return counts
}

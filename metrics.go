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

import "github.com/prometheus/client_golang/prometheus"

var (
	analyzeRequestOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ltp",
			Subsystem: "server",
			Name:      "analyze_request_ops_total",
			Help:      "The total number of analyze requests.",
		},
		[]string{"format"},
	)
	sentencesAnalyzed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ltp",
			Subsystem: "server",
			Name:      "sentences_analyzed_total",
			Help:      "The total number of sentences analysed.",
		},
	)
	wordsProduced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ltp",
			Subsystem: "server",
			Name:      "words_produced_total",
			Help:      "The total number of labelled words produced, per task.",
		},
		[]string{"task"},
	)

	modelLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ltp",
			Subsystem: "server",
			Name:      "model_load_duration_seconds",
			Help:      "Time taken to load the model pool.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"backend"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ltp",
			Subsystem: "server",
			Name:      "request_duration_seconds",
			Help:      "Time taken to process a request.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)

	cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ltp",
			Subsystem: "server",
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits.",
		},
		[]string{"level"}, // memory, store
	)

	cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ltp",
			Subsystem: "server",
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses.",
		},
		[]string{"level"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ltp",
			Subsystem: "server",
			Name:      "queue_depth",
			Help:      "Number of requests currently waiting in queue.",
		},
	)

	queueActiveRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ltp",
			Subsystem: "server",
			Name:      "queue_active_requests",
			Help:      "Number of requests currently being processed.",
		},
	)

	queueRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ltp",
			Subsystem: "server",
			Name:      "queue_rejected_total",
			Help:      "Total number of requests rejected due to full queue.",
		},
	)

	queueTimedOutTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ltp",
			Subsystem: "server",
			Name:      "queue_timed_out_total",
			Help:      "Total number of requests that timed out while waiting in queue.",
		},
	)

	queueWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ltp",
			Subsystem: "server",
			Name:      "queue_wait_duration_seconds",
			Help:      "Time spent waiting in queue before processing.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)
)

func init() {
	prometheus.MustRegister(analyzeRequestOps)
	prometheus.MustRegister(sentencesAnalyzed)
	prometheus.MustRegister(wordsProduced)
	prometheus.MustRegister(modelLoadDuration)
	prometheus.MustRegister(requestDuration)
	prometheus.MustRegister(cacheHits)
	prometheus.MustRegister(cacheMisses)
	prometheus.MustRegister(queueDepth)
	prometheus.MustRegister(queueActiveRequests)
	prometheus.MustRegister(queueRejectedTotal)
	prometheus.MustRegister(queueTimedOutTotal)
	prometheus.MustRegister(queueWaitDuration)
}

// RecordAnalyzeRequest increments the analyze request counter
func RecordAnalyzeRequest(format string) {
	analyzeRequestOps.WithLabelValues(format).Inc()
}

// RecordAnalysis records the sentences analysed and the words each task
// labelled.
func RecordAnalysis(sentences int, wordsPerTask map[string]int) {
	sentencesAnalyzed.Add(float64(sentences))
	for task, n := range wordsPerTask {
		wordsProduced.WithLabelValues(task).Add(float64(n))
	}
}

// RecordModelLoadDuration records how long it took to load the model pool
func RecordModelLoadDuration(backend string, seconds float64) {
	modelLoadDuration.WithLabelValues(backend).Observe(seconds)
}

// RecordRequestDuration records how long a request took
func RecordRequestDuration(endpoint, status string, seconds float64) {
	requestDuration.WithLabelValues(endpoint, status).Observe(seconds)
}

// RecordCacheHit increments the cache hit counter
func RecordCacheHit(level string) {
	cacheHits.WithLabelValues(level).Inc()
}

// RecordCacheMiss increments the cache miss counter
func RecordCacheMiss(level string) {
	cacheMisses.WithLabelValues(level).Inc()
}

// UpdateQueueMetrics updates all queue-related metrics from QueueStats
func UpdateQueueMetrics(stats QueueStats) {
	queueDepth.Set(float64(stats.CurrentQueued))
	queueActiveRequests.Set(float64(stats.CurrentActive))
}

// RecordQueueRejection increments the rejected counter
func RecordQueueRejection() {
	queueRejectedTotal.Inc()
}

// RecordQueueTimeout increments the timeout counter
func RecordQueueTimeout() {
	queueTimedOutTotal.Inc()
}

// RecordQueueWaitTime records how long a request waited in queue
func RecordQueueWaitTime(seconds float64) {
	queueWaitDuration.Observe(seconds)
}

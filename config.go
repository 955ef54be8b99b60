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
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/HIT-SCIR/libltp/lib/analysis"
	"github.com/HIT-SCIR/libltp/lib/backends"
	"github.com/HIT-SCIR/libltp/lib/pipelines"
)

// Defaults applied by Config.Validate.
const (
	DefaultApiUrl                = "http://localhost:8088"
	DefaultMaxConcurrentRequests = 8
	DefaultMaxQueueSize          = 64
	DefaultCacheTTL              = 2 * time.Minute
)

// Config configures an LTP service node.
type Config struct {
	// ApiUrl is the address the HTTP API listens on.
	ApiUrl string `json:"api_url" yaml:"api_url"`

	// ModelDir is an LTP model directory (vocab.json, tokenizer, ltp.onnx).
	ModelDir string `json:"model_dir" yaml:"model_dir"`

	// BackendPriority lists "backend[:device]" specs in order of preference,
	// e.g. ["onnx:cuda", "go"].
	BackendPriority []string `json:"backend_priority,omitempty" yaml:"backend_priority,omitempty"`

	// Gpu is the GPU mode: auto, cuda, coreml or off.
	Gpu string `json:"gpu,omitempty" yaml:"gpu,omitempty"`

	// NumThreads is the intra-op thread count of each engine session.
	NumThreads int `json:"num_threads,omitempty" yaml:"num_threads,omitempty"`

	// OptimizationLevel is the graph optimization level: disabled, basic,
	// extended or all.
	OptimizationLevel string `json:"optimization_level,omitempty" yaml:"optimization_level,omitempty"`

	// PoolSize is the number of engine sessions (0 = CPU count).
	PoolSize int `json:"pool_size,omitempty" yaml:"pool_size,omitempty"`

	// MaxBatchSize caps the sentences per engine call.
	MaxBatchSize int `json:"max_batch_size,omitempty" yaml:"max_batch_size,omitempty"`

	// MaxLength caps the tokens per sentence including boundary tokens.
	MaxLength int `json:"max_length,omitempty" yaml:"max_length,omitempty"`

	// MaxConcurrentRequests bounds the requests processed at once.
	MaxConcurrentRequests int `json:"max_concurrent_requests,omitempty" yaml:"max_concurrent_requests,omitempty"`

	// MaxQueueSize bounds the requests waiting for a slot (0 = unbounded).
	MaxQueueSize int `json:"max_queue_size,omitempty" yaml:"max_queue_size,omitempty"`

	// RequestTimeout bounds the time a request may wait in the queue, as a
	// Go duration. Empty or "0" disables the timeout.
	RequestTimeout string `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`

	// CacheTTL is how long results stay in the in-memory cache. "0"
	// disables the cache.
	CacheTTL string `json:"cache_ttl,omitempty" yaml:"cache_ttl,omitempty"`

	// StorePath is an optional bbolt file used as a second cache level.
	StorePath string `json:"store_path,omitempty" yaml:"store_path,omitempty"`

	requestTimeout time.Duration
	cacheTTL       time.Duration
	priority       []backends.BackendSpec
	optLevel       int
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.ApiUrl == "" {
		c.ApiUrl = DefaultApiUrl
	}
	u, err := url.Parse(c.ApiUrl)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid api_url %q", c.ApiUrl)
	}

	if c.priority, err = backends.ParseBackendPriority(c.BackendPriority); err != nil {
		return fmt.Errorf("invalid backend_priority: %w", err)
	}
	switch strings.ToLower(c.Gpu) {
	case "", "auto", "cuda", "coreml", "off", "cpu":
	default:
		return fmt.Errorf("invalid gpu mode %q (expected auto, cuda, coreml or off)", c.Gpu)
	}
	if c.optLevel, err = ParseOptimizationLevel(c.OptimizationLevel); err != nil {
		return err
	}

	if c.NumThreads < 0 || c.PoolSize < 0 || c.MaxBatchSize < 0 || c.MaxLength < 0 ||
		c.MaxConcurrentRequests < 0 || c.MaxQueueSize < 0 {
		return fmt.Errorf("num_threads, pool_size, max_batch_size, max_length and queue limits must not be negative")
	}
	if c.MaxLength != 0 && c.MaxLength < 3 {
		return fmt.Errorf("max_length must be at least 3, got %d", c.MaxLength)
	}
	if c.NumThreads == 0 {
		c.NumThreads = 1
	}
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = analysis.DefaultMaxBatchSize
	}
	if c.MaxLength == 0 {
		c.MaxLength = pipelines.DefaultMaxLength
	}
	if c.MaxConcurrentRequests == 0 {
		c.MaxConcurrentRequests = DefaultMaxConcurrentRequests
	}

	if c.requestTimeout, err = parseDuration("request_timeout", c.RequestTimeout, 0); err != nil {
		return err
	}
	if c.cacheTTL, err = parseDuration("cache_ttl", c.CacheTTL, DefaultCacheTTL); err != nil {
		return err
	}
	return nil
}

func parseDuration(name, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	if value == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration %q: %w", name, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", name, value)
	}
	return d, nil
}

// ParseOptimizationLevel maps a level name to the engine's numeric graph
// optimization level. Empty means all optimizations.
func ParseOptimizationLevel(s string) (int, error) {
	switch strings.ToLower(s) {
	case "", "all", "3":
		return backends.GraphOptimizationAll, nil
	case "extended", "2":
		return backends.GraphOptimizationExtended, nil
	case "basic", "1":
		return backends.GraphOptimizationBasic, nil
	case "disabled", "none", "0":
		return backends.GraphOptimizationDisabled, nil
	default:
		return 0, fmt.Errorf("invalid optimization_level %q (expected disabled, basic, extended or all)", s)
	}
}

// SessionOptions returns the engine session options of a validated config.
func (c *Config) SessionOptions() []backends.SessionOption {
	return []backends.SessionOption{
		backends.WithSessionThreads(c.NumThreads),
		backends.WithSessionGPUMode(backends.ParseGPUMode(c.Gpu)),
		backends.WithGraphOptimizationLevel(c.optLevel),
	}
}

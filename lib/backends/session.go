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

package backends

// Session is a loaded model that maps named input tensors to output tensors.
// It knows nothing about the meaning of the tensors.
//
// Implementations serialize concurrent Run calls; callers needing parallel
// inference hold one Session per worker.
type Session interface {
	// Run executes the session with the given named inputs and returns the
	// outputs in the model's declared output order.
	Run(inputs []NamedTensor) ([]NamedTensor, error)

	// InputInfo returns metadata about expected inputs.
	InputInfo() []TensorInfo

	// OutputInfo returns metadata about outputs.
	OutputInfo() []TensorInfo

	// Close releases resources associated with the session.
	Close() error
}

// NamedTensor associates a name with tensor data.
type NamedTensor struct {
	Name  string
	Shape []int64
	Data  interface{} // []float32, []int64, []int32, []bool
}

// TensorInfo describes a tensor's metadata.
type TensorInfo struct {
	Name     string
	Shape    []int64  // -1 for dynamic dimensions
	DataType DataType // float32, int64, etc.
}

// DataType represents tensor element types.
type DataType string

const (
	DataTypeFloat32 DataType = "float32"
	DataTypeFloat16 DataType = "float16"
	DataTypeInt64   DataType = "int64"
	DataTypeInt32   DataType = "int32"
	DataTypeBool    DataType = "bool"
)

// SessionFactory creates sessions from model files.
// Each backend implements this to provide its session creation mechanism.
type SessionFactory interface {
	// CreateSession creates a session from an ONNX model file.
	CreateSession(modelPath string, opts ...SessionOption) (Session, error)

	// Backend returns the backend type this factory uses.
	Backend() BackendType
}

// SessionOption configures session creation.
type SessionOption func(*SessionConfig)

// Graph optimization levels understood by ONNX Runtime.
const (
	GraphOptimizationDisabled = 0
	GraphOptimizationBasic    = 1
	GraphOptimizationExtended = 2
	GraphOptimizationAll      = 3
)

// SessionConfig holds configuration for session creation.
type SessionConfig struct {
	// NumThreads for inference (0 = runtime default)
	NumThreads int

	// GPUMode controls GPU acceleration
	GPUMode GPUMode

	// DeviceID selects the CUDA device
	DeviceID int

	// GraphOptimizationLevel for ONNX (0-3)
	GraphOptimizationLevel int
}

// DefaultSessionConfig returns one intra-op thread with all graph
// optimizations enabled.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		NumThreads:             1,
		GPUMode:                GPUModeAuto,
		GraphOptimizationLevel: GraphOptimizationAll,
	}
}

// WithSessionThreads sets the number of threads.
func WithSessionThreads(n int) SessionOption {
	return func(c *SessionConfig) {
		c.NumThreads = n
	}
}

// WithSessionGPUMode sets the GPU mode.
func WithSessionGPUMode(mode GPUMode) SessionOption {
	return func(c *SessionConfig) {
		c.GPUMode = mode
	}
}

// WithSessionDevice selects the CUDA device id.
func WithSessionDevice(id int) SessionOption {
	return func(c *SessionConfig) {
		c.DeviceID = id
	}
}

// WithGraphOptimizationLevel sets the ONNX graph optimization level, clamped
// to 0-3.
func WithGraphOptimizationLevel(level int) SessionOption {
	return func(c *SessionConfig) {
		c.GraphOptimizationLevel = max(GraphOptimizationDisabled, min(level, GraphOptimizationAll))
	}
}

// ApplySessionOptions applies options to a config.
func ApplySessionOptions(opts ...SessionOption) *SessionConfig {
	cfg := DefaultSessionConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

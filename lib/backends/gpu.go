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

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

var (
	gpuOnce sync.Once
	gpuInfo GPUInfo
)

// DetectGPU reports the accelerator an automatic GPU mode resolves to.
// Detection runs once per process.
func DetectGPU() GPUInfo {
	gpuOnce.Do(func() {
		gpuInfo = detectGPU(runtime.GOOS, cudaLibraryDirs())
	})
	return gpuInfo
}

func detectGPU(goos string, dirs []string) GPUInfo {
	switch goos {
	case "darwin":
		return GPUInfo{Available: true, Type: "coreml"}
	case "linux", "windows":
		if lib := findCUDARuntime(dirs); lib != "" {
			return GPUInfo{Available: true, Type: "cuda", Library: lib}
		}
	}
	return GPUInfo{Type: "none"}
}

// cudaLibraryDirs lists CUDA_HOME and LD_LIBRARY_PATH ahead of the usual
// system locations.
func cudaLibraryDirs() []string {
	var dirs []string
	if home := os.Getenv("CUDA_HOME"); home != "" {
		dirs = append(dirs, filepath.Join(home, "lib64"))
	}
	if ld := os.Getenv("LD_LIBRARY_PATH"); ld != "" {
		dirs = append(dirs, filepath.SplitList(ld)...)
	}
	return append(dirs, "/usr/local/cuda/lib64", "/usr/lib/x86_64-linux-gnu", "/usr/lib64")
}

// findCUDARuntime returns the first libcudart found in dirs.
func findCUDARuntime(dirs []string) string {
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if matches, _ := filepath.Glob(filepath.Join(dir, "libcudart.so*")); len(matches) > 0 {
			return matches[0]
		}
	}
	return ""
}

// AcceleratorFor resolves the execution provider a session should use for a
// GPU mode: "cuda", "coreml" or "" for CPU. Forced modes are returned as is
// and fail at session creation when the runtime is missing.
func AcceleratorFor(mode GPUMode) string {
	switch mode {
	case GPUModeCuda:
		return "cuda"
	case GPUModeCoreML:
		return "coreml"
	case GPUModeOff:
		return ""
	}
	if info := DetectGPU(); info.Available {
		return info.Type
	}
	return ""
}

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

import "fmt"

// NumElements returns the element count implied by a shape.
func NumElements(shape []int64) int64 {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}

// Int64Data returns the tensor contents as int64, widening int32 data.
func Int64Data(t NamedTensor) ([]int64, error) {
	var data []int64
	switch v := t.Data.(type) {
	case []int64:
		data = v
	case []int32:
		data = convertSlice[int32, int64](v)
	default:
		return nil, fmt.Errorf("tensor %q: expected integer data, got %T", t.Name, t.Data)
	}
	if err := checkLen(t, len(data)); err != nil {
		return nil, err
	}
	return data, nil
}

// Float32Data returns the tensor contents as float32.
func Float32Data(t NamedTensor) ([]float32, error) {
	var data []float32
	switch v := t.Data.(type) {
	case []float32:
		data = v
	case []float64:
		data = convertSlice[float64, float32](v)
	default:
		return nil, fmt.Errorf("tensor %q: expected float data, got %T", t.Name, t.Data)
	}
	if err := checkLen(t, len(data)); err != nil {
		return nil, err
	}
	return data, nil
}

func checkLen(t NamedTensor, n int) error {
	if want := NumElements(t.Shape); want != int64(n) {
		return fmt.Errorf("tensor %q: shape %v holds %d elements, data has %d", t.Name, t.Shape, want, n)
	}
	return nil
}

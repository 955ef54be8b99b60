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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInt64Data(t *testing.T) {
	got, err := Int64Data(NamedTensor{Name: "seg", Shape: []int64{2, 2}, Data: []int64{1, 2, 3, 4}})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, got)

	got, err = Int64Data(NamedTensor{Name: "seg", Shape: []int64{3}, Data: []int32{7, 8, 9}})
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 8, 9}, got)

	_, err = Int64Data(NamedTensor{Name: "seg", Shape: []int64{3}, Data: []int64{1}})
	assert.ErrorContains(t, err, "holds 3 elements")

	_, err = Int64Data(NamedTensor{Name: "seg", Shape: []int64{1}, Data: []float32{1}})
	assert.ErrorContains(t, err, "expected integer data")
}

func TestFloat32Data(t *testing.T) {
	got, err := Float32Data(NamedTensor{Name: "dep", Shape: []int64{1, 2}, Data: []float64{0.5, 1.5}})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 1.5}, got)

	_, err = Float32Data(NamedTensor{Name: "dep", Shape: []int64{1}, Data: []int64{1}})
	assert.Error(t, err)
}

func TestNumElements(t *testing.T) {
	assert.Equal(t, int64(1), NumElements(nil))
	assert.Equal(t, int64(24), NumElements([]int64{2, 3, 4}))
	assert.Equal(t, int64(0), NumElements([]int64{2, 0}))
}

func TestFlatten(t *testing.T) {
	assert.Equal(t, []int64{1, 2, 3, 4}, flatten[int64]([][]int64{{1, 2}, {3, 4}}))
	assert.Equal(t, []float32{1, 2, 3}, flatten[float32]([][][]float32{{{1}, {2}}, {{3}}}))
	assert.Equal(t, []bool{true}, flatten[bool](true))
	assert.Nil(t, flatten[int64]("nope"))
}

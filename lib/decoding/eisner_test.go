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

package decoding

import (
	"math"
	"math/rand"
	"testing"

	"github.com/HIT-SCIR/libltp/lib/batching"
	"github.com/stretchr/testify/require"
)

func layoutOf(t *testing.T, lengths []int, width int) batching.Layout {
	t.Helper()
	l, err := batching.NewLayoutWidth(lengths, width)
	require.NoError(t, err)
	return l
}

func randomScores(rng *rand.Rand, batch, width int) []float32 {
	scores := make([]float32, batch*width*width)
	for i := range scores {
		scores[i] = float32(rng.NormFloat64())
	}
	return scores
}

// treeScore sums scores[dep][head] over all non-root positions.
func treeScore(scores []float32, width int, heads []int) float32 {
	var total float32
	for dep := 1; dep < len(heads); dep++ {
		total += scores[dep*width+heads[dep]]
	}
	return total
}

func isProjective(heads []int) bool {
	for d1 := 1; d1 < len(heads); d1++ {
		a, b := min(d1, heads[d1]), max(d1, heads[d1])
		for d2 := 1; d2 < len(heads); d2++ {
			c, d := min(d2, heads[d2]), max(d2, heads[d2])
			if a < c && c < b && b < d {
				return false
			}
		}
	}
	return true
}

func isSingleRootTree(heads []int) bool {
	rootChildren := 0
	for dep := 1; dep < len(heads); dep++ {
		if heads[dep] == 0 {
			rootChildren++
		}
		seen := map[int]bool{}
		for cur := dep; cur != 0; cur = heads[cur] {
			if seen[cur] || heads[cur] == cur {
				return false
			}
			seen[cur] = true
		}
	}
	return rootChildren == 1
}

// bruteForceTree enumerates every head assignment and keeps the best valid
// projective tree with a single root child.
func bruteForceTree(scores []float32, width, length int) ([]int, float32) {
	heads := make([]int, length)
	var best []int
	bestScore := float32(math.Inf(-1))

	var walk func(dep int)
	walk = func(dep int) {
		if dep == length {
			if isSingleRootTree(heads) && isProjective(heads) {
				if s := treeScore(scores, width, heads); s > bestScore {
					bestScore = s
					best = append([]int(nil), heads...)
				}
			}
			return
		}
		for h := 0; h < length; h++ {
			if h == dep {
				continue
			}
			heads[dep] = h
			walk(dep + 1)
		}
	}
	walk(1)
	return best, bestScore
}

func TestEisnerMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const width = 6

	for trial := 0; trial < 20; trial++ {
		lengths := []int{2 + trial%5, 6, 3}
		scores := randomScores(rng, len(lengths), width)

		decoded := Eisner(scores, layoutOf(t, lengths, width), false)
		require.Len(t, decoded, len(lengths))

		for b, length := range lengths {
			block := scores[b*width*width : (b+1)*width*width]
			want, wantScore := bruteForceTree(block, width, length)

			got := decoded[b]
			require.Len(t, got, length)
			require.InDelta(t, wantScore, treeScore(block, width, got), 1e-4, "trial %d sentence %d", trial, b)
			require.Equal(t, want[1:], got[1:], "trial %d sentence %d", trial, b)
		}
	}
}

func TestEisnerProducesProjectiveTrees(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const width = 12
	lengths := []int{12, 5, 9, 2, 7}
	scores := randomScores(rng, len(lengths), width)

	decoded := Eisner(scores, layoutOf(t, lengths, width), false)
	for b, heads := range decoded {
		require.Len(t, heads, lengths[b])
		require.True(t, isProjective(heads), "sentence %d: %v", b, heads)
		require.True(t, isSingleRootTree(heads), "sentence %d: %v", b, heads)
	}
}

func TestEisnerRemoveRoot(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	const width = 7
	lengths := []int{7, 4}
	scores := randomScores(rng, len(lengths), width)

	withRoot := Eisner(scores, layoutOf(t, lengths, width), false)
	withoutRoot := Eisner(scores, layoutOf(t, lengths, width), true)

	for b := range lengths {
		require.Len(t, withoutRoot[b], lengths[b]-1)
		// Heads stay in the unshifted index space.
		require.Equal(t, withRoot[b][1:], withoutRoot[b])
	}
}

func TestEisnerSingleWord(t *testing.T) {
	const width = 3
	scores := make([]float32, width*width)
	for i := range scores {
		scores[i] = -5
	}

	heads := Eisner(scores, layoutOf(t, []int{2}, width), true)
	require.Equal(t, [][]int{{0}}, heads)
}

func TestEisnerDeterministicOnTies(t *testing.T) {
	const width = 5
	lengths := []int{5, 5}
	scores := make([]float32, len(lengths)*width*width)

	first := Eisner(scores, layoutOf(t, lengths, width), true)
	second := Eisner(scores, layoutOf(t, lengths, width), true)
	require.Equal(t, first, second)
	require.Equal(t, first[0], first[1])

	heads := append([]int{0}, first[0]...)
	require.True(t, isProjective(heads))
	require.True(t, isSingleRootTree(heads))
}

func TestEisnerFollowsStrongArcs(t *testing.T) {
	// Root -> 2, 2 -> 1, 2 -> 3.
	const width = 4
	scores := make([]float32, width*width)
	set := func(dep, head int, v float32) { scores[dep*width+head] = v }
	set(2, 0, 10)
	set(1, 2, 10)
	set(3, 2, 10)

	heads := Eisner(scores, layoutOf(t, []int{4}, width), true)
	require.Equal(t, [][]int{{2, 0, 2}}, heads)
}

func TestEisnerDoesNotLeakAcrossSentences(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	const width = 8
	long := randomScores(rng, 1, width)
	short := randomScores(rng, 1, width)

	alone := Eisner(short, layoutOf(t, []int{4}, width), true)
	batched := Eisner(append(append([]float32{}, long...), short...), layoutOf(t, []int{8, 4}, width), true)
	require.Equal(t, alone[0], batched[1])
}

func TestEisnerEmptyLength(t *testing.T) {
	heads := Eisner(nil, layoutOf(t, []int{0}, 0), true)
	require.Equal(t, [][]int{{}}, heads)
}

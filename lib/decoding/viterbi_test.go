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
	"math/rand"
	"testing"

	"github.com/HIT-SCIR/libltp/lib/batching"
	"github.com/stretchr/testify/require"
)

type crfCase struct {
	emissions   [][]float64 // [position][label]
	transitions [][]float64 // [prev][cur]
}

// naiveViterbi keeps the full best path per label at every position instead of
// backpointers.
func naiveViterbi(c crfCase) []int64 {
	numLabels := len(c.transitions)
	score := make([]float64, numLabels)
	paths := make([][]int64, numLabels)
	for l := 0; l < numLabels; l++ {
		score[l] = c.emissions[0][l]
		paths[l] = []int64{int64(l)}
	}

	for pos := 1; pos < len(c.emissions); pos++ {
		nextScore := make([]float64, numLabels)
		nextPaths := make([][]int64, numLabels)
		for cur := 0; cur < numLabels; cur++ {
			best := -1
			for prev := 0; prev < numLabels; prev++ {
				v := score[prev] + c.transitions[prev][cur]
				if best < 0 || v > nextScore[cur] {
					best, nextScore[cur] = prev, v
				}
			}
			nextScore[cur] += c.emissions[pos][cur]
			nextPaths[cur] = append(append([]int64{}, paths[best]...), int64(cur))
		}
		score, paths = nextScore, nextPaths
	}

	best := 0
	for l := 1; l < numLabels; l++ {
		if score[l] > score[best] {
			best = l
		}
	}
	return paths[best]
}

// forwardPointers runs the forward pass and returns the backpointers for
// positions 1..n-1 plus the best final label.
func forwardPointers(c crfCase) ([][]int64, int64) {
	numLabels := len(c.transitions)
	score := append([]float64{}, c.emissions[0]...)
	pointers := make([][]int64, 0, len(c.emissions)-1)

	for pos := 1; pos < len(c.emissions); pos++ {
		next := make([]float64, numLabels)
		bp := make([]int64, numLabels)
		for cur := 0; cur < numLabels; cur++ {
			best := -1
			for prev := 0; prev < numLabels; prev++ {
				v := score[prev] + c.transitions[prev][cur]
				if best < 0 || v > next[cur] {
					best, next[cur] = prev, v
				}
			}
			bp[cur] = int64(best)
			next[cur] += c.emissions[pos][cur]
		}
		pointers = append(pointers, bp)
		score = next
	}

	last := 0
	for l := 1; l < numLabels; l++ {
		if score[l] > score[last] {
			last = l
		}
	}
	return pointers, int64(last)
}

func randomCRF(rng *rand.Rand, length, numLabels int) crfCase {
	c := crfCase{
		emissions:   make([][]float64, length),
		transitions: make([][]float64, numLabels),
	}
	for i := range c.emissions {
		c.emissions[i] = make([]float64, numLabels)
		for l := range c.emissions[i] {
			c.emissions[i][l] = rng.NormFloat64()
		}
	}
	for i := range c.transitions {
		c.transitions[i] = make([]float64, numLabels)
		for l := range c.transitions[i] {
			c.transitions[i][l] = rng.NormFloat64()
		}
	}
	return c
}

func TestViterbiBacktraceMatchesNaiveViterbi(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for _, numLabels := range []int{2, 4, 6} {
		lengths := []int{5, 1, 3, 7, 0, 2}
		maxLen := 7
		numSeq := len(lengths)
		steps := maxLen - 1

		history := make([]int64, steps*numSeq*numLabels)
		lastTags := make([]int64, numSeq)
		want := make([][]int64, numSeq)

		for seq, length := range lengths {
			if length == 0 {
				want[seq] = []int64{}
				continue
			}
			c := randomCRF(rng, length, numLabels)
			want[seq] = naiveViterbi(c)

			pointers, last := forwardPointers(c)
			lastTags[seq] = last
			bias := maxLen - length
			for pos, bp := range pointers {
				step := pos + bias
				for label, prev := range bp {
					history[(step*numSeq+seq)*numLabels+label] = prev
				}
			}
		}

		h := batching.HistoryLayout{Steps: steps, Sequences: numSeq, Labels: numLabels}
		got := ViterbiBacktrace(history, h, lastTags, lengths)
		require.Equal(t, want, got, "labels=%d", numLabels)
		for seq, path := range got {
			require.Len(t, path, lengths[seq])
		}
	}
}

func TestViterbiBacktraceSingleton(t *testing.T) {
	got := ViterbiBacktrace(nil, batching.HistoryLayout{Sequences: 1, Labels: 5}, []int64{3}, []int{1})
	require.Equal(t, [][]int64{{3}}, got)
}

func TestViterbiBacktraceFollowsPointers(t *testing.T) {
	// One sequence of length 3, two labels. Final label 1; at the last step
	// label 1 points to 0, at the first step label 0 points to 1.
	history := []int64{
		1, 0, // step 0
		0, 0, // step 1
	}
	got := ViterbiBacktrace(history, batching.HistoryLayout{Steps: 2, Sequences: 1, Labels: 2}, []int64{1}, []int{3})
	require.Equal(t, [][]int64{{1, 0, 1}}, got)
}

func TestViterbiBacktraceRightAligned(t *testing.T) {
	// Two sequences, two labels, three steps. The short sequence (length 2)
	// only reads step 2; steps 0 and 1 hold pointers that would flip its
	// first label if the bias were ignored.
	h := batching.HistoryLayout{Steps: 3, Sequences: 2, Labels: 2}
	history := make([]int64, 3*2*2)
	for step := 0; step < 3; step++ {
		history[h.Index(step, 1, 0)] = 1
		history[h.Index(step, 1, 1)] = 1
	}
	history[h.Index(2, 1, 0)] = 0
	history[h.Index(2, 1, 1)] = 0

	got := ViterbiBacktrace(history, h, []int64{0, 1}, []int{4, 2})
	require.Equal(t, []int64{0, 1}, got[1])
	require.Len(t, got[0], 4)
}

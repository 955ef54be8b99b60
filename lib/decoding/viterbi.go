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

import "github.com/HIT-SCIR/libltp/lib/batching"

// ViterbiBacktrace reconstructs the best label path of every sequence from a
// CRF backpointer history.
//
// history is laid out by h: the entry at h.Index(step, seq, label) is the
// label preceding label at the position after step. The history is
// right-aligned, so a sequence of length n starts at step h.Bias(n).
// lastTags[seq] is the best final label of each sequence and lengths[seq]
// its valid length; h.Steps must be one less than the longest length.
//
// Each returned path has exactly lengths[seq] labels, earliest position
// first. Sequences of length zero yield an empty path.
func ViterbiBacktrace(history []int64, h batching.HistoryLayout, lastTags []int64, lengths []int) [][]int64 {
	paths := make([][]int64, len(lengths))
	for seq, length := range lengths {
		if length <= 0 {
			paths[seq] = []int64{}
			continue
		}
		bias := h.Bias(length)

		path := make([]int64, length)
		path[length-1] = lastTags[seq]
		for pos := length - 2; pos >= 0; pos-- {
			next := path[pos+1]
			path[pos] = history[h.Index(pos+bias, seq, int(next))]
		}
		paths[seq] = path
	}
	return paths
}

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

package batching

import "fmt"

// HistoryLayout addresses a CRF backpointer history of shape
// [steps, sequences, labels]. There is one sequence per (row, slot) pair of
// a [rows, slots] batch, so padded slots are sequences of length zero.
type HistoryLayout struct {
	Steps     int
	Sequences int
	Labels    int
}

// NewHistoryLayout validates a history tensor shape.
func NewHistoryLayout(shape []int64) (HistoryLayout, error) {
	if len(shape) != 3 {
		return HistoryLayout{}, fmt.Errorf("%w: history rank %d, want 3", ErrShape, len(shape))
	}
	return HistoryLayout{
		Steps:     int(shape[0]),
		Sequences: int(shape[1]),
		Labels:    int(shape[2]),
	}, nil
}

// Index returns the flat offset of [step, seq, label].
func (h HistoryLayout) Index(step, seq, label int) int {
	return (step*h.Sequences+seq)*h.Labels + label
}

// Bias returns the first step of a sequence of the given length. The
// history is right-aligned, so shorter sequences start later.
func (h HistoryLayout) Bias(length int) int { return h.Steps + 1 - length }

// SequenceLengths expands per-row word counts into per-sequence lengths: row
// r owns sequences r*slots .. r*slots+slots-1, one per predicate slot, and
// only its first wordCounts[r] slots are real.
func (h HistoryLayout) SequenceLengths(wordCounts []int) ([]int, error) {
	if len(wordCounts) == 0 {
		return nil, nil
	}
	if h.Sequences%len(wordCounts) != 0 {
		return nil, fmt.Errorf("%w: %d sequences do not divide into %d rows", ErrShape, h.Sequences, len(wordCounts))
	}
	slots := h.Sequences / len(wordCounts)

	longest := 0
	lengths := make([]int, h.Sequences)
	for r, n := range wordCounts {
		if n > slots {
			return nil, fmt.Errorf("%w: row %d has %d words, %d slots", ErrShape, r, n, slots)
		}
		for p := 0; p < n; p++ {
			lengths[r*slots+p] = n
		}
		longest = max(longest, n)
	}
	if longest > 0 && h.Steps != longest-1 {
		return nil, fmt.Errorf("%w: history has %d steps, want %d", ErrShape, h.Steps, longest-1)
	}
	return lengths, nil
}

// Slots returns the number of predicate slots per row.
func (h HistoryLayout) Slots(rows int) int {
	if rows == 0 {
		return 0
	}
	return h.Sequences / rows
}

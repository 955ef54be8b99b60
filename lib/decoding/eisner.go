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

	"github.com/HIT-SCIR/libltp/lib/batching"
)

// eisnerTables holds the span charts for one sentence. All four tables are
// width x width, row-major, and are reset before every sentence.
type eisnerTables struct {
	width      int
	incomplete []float32
	complete   []float32
	bpInc      []int
	bpComp     []int
}

func newEisnerTables(width int) *eisnerTables {
	size := width * width
	return &eisnerTables{
		width:      width,
		incomplete: make([]float32, size),
		complete:   make([]float32, size),
		bpInc:      make([]int, size),
		bpComp:     make([]int, size),
	}
}

func (t *eisnerTables) reset() {
	negInf := float32(math.Inf(-1))
	for k := range t.incomplete {
		t.incomplete[k] = negInf
		t.complete[k] = negInf
		t.bpInc[k] = 0
		t.bpComp[k] = 0
	}
}

func (t *eisnerTables) at(i, j int) int { return i*t.width + j }

// Eisner decodes the maximum-scoring projective dependency tree for every
// sentence in a batch.
//
// scores is a dense [rows, width, width] block laid out by layout, where
// scores[b][d][h] is the score of attaching dependent d to head h, with
// position 0 being the virtual root. layout.Len(b) is the number of valid
// positions of sentence b, root included.
//
// The result holds one head per position. With removeRoot the root slot is
// dropped and result[b][k] is the head of position k+1; head indices always
// refer to the unshifted positions. Ties are broken towards the lowest split
// point, so decoding is deterministic. Scores that are NaN or -Inf over a
// whole span yield an unspecified tree.
func Eisner(scores []float32, layout batching.Layout, removeRoot bool) [][]int {
	shift := batching.RootShift(removeRoot)

	tables := newEisnerTables(layout.Width())
	block := layout.Width() * layout.Width()
	heads := make([][]int, layout.Rows())

	for b := range heads {
		length := layout.Len(b)
		if length <= 0 {
			heads[b] = []int{}
			continue
		}
		tables.reset()
		start := layout.MatrixIndex(b, 0, 0)
		fillEisner(tables, scores[start:start+block], length)

		head := make([]int, length-shift)
		tables.backtrack(0, length-1, true, head, shift)
		heads[b] = head
	}
	return heads
}

func fillEisner(t *eisnerTables, s []float32, length int) {
	negInf := float32(math.Inf(-1))
	w := t.width

	for k := 0; k < length; k++ {
		t.incomplete[t.at(k, k)] = 0
		t.complete[t.at(k, k)] = 0
	}

	for span := 1; span < length; span++ {
		n := length - span

		// I(j->i): arc between i and j scored as s[i][j].
		for i := 0; i < n; i++ {
			j := i + span
			best, arg := negInf, 0
			for r := i; r < j; r++ {
				v := t.complete[t.at(i, r)] + t.complete[t.at(j, r+1)] + s[i*w+j]
				if v > best {
					best, arg = v, r
				}
			}
			t.incomplete[t.at(j, i)] = best
			t.bpInc[t.at(j, i)] = arg
		}

		// I(i->j): arc between i and j scored as s[j][i].
		for i := 0; i < n; i++ {
			j := i + span
			best, arg := negInf, 0
			for r := i; r < j; r++ {
				v := t.complete[t.at(i, r)] + t.complete[t.at(j, r+1)] + s[j*w+i]
				if v > best {
					best, arg = v, r
				}
			}
			t.incomplete[t.at(i, j)] = best
			t.bpInc[t.at(i, j)] = arg
		}

		// C(j->i) = C(r->i) + I(j->r), i <= r < j
		for i := 0; i < n; i++ {
			j := i + span
			best, arg := negInf, 0
			for r := i; r < j; r++ {
				v := t.complete[t.at(r, i)] + t.incomplete[t.at(j, r)]
				if v > best {
					best, arg = v, r
				}
			}
			t.complete[t.at(j, i)] = best
			t.bpComp[t.at(j, i)] = arg
		}

		// C(i->j) = I(i->r) + C(r->j), i < r <= j
		for i := 0; i < n; i++ {
			j := i + span
			best, arg := negInf, 0
			for r := i + 1; r <= j; r++ {
				v := t.incomplete[t.at(i, r)] + t.complete[t.at(r, j)]
				if v > best {
					best, arg = v, r
				}
			}
			t.complete[t.at(i, j)] = best
			t.bpComp[t.at(i, j)] = arg
		}

		// The root may govern a single complete span only. The backpointer
		// is kept so the final span can still be traced.
		if length != span {
			t.complete[t.at(0, span)] = negInf
		}
	}
}

func (t *eisnerTables) backtrack(i, j int, complete bool, head []int, shift int) {
	if i == j {
		return
	}
	if complete {
		r := t.bpComp[t.at(i, j)]
		t.backtrack(i, r, false, head, shift)
		t.backtrack(r, j, true, head, shift)
		return
	}
	r := t.bpInc[t.at(i, j)]
	head[j-shift] = i
	t.backtrack(min(i, j), r, true, head, shift)
	t.backtrack(max(i, j), r+1, true, head, shift)
}

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

package pipelines

import (
	"errors"
	"sync/atomic"

	"github.com/HIT-SCIR/libltp/lib/backends"
	"github.com/HIT-SCIR/libltp/lib/batching"
	"github.com/HIT-SCIR/libltp/lib/tokenizer"
	"github.com/HIT-SCIR/libltp/lib/vocab"
)

const (
	toyPad int64 = 0
	toyCLS int64 = 1
	toySEP int64 = 2
)

// runeTokenizer emits one token per rune with id 10 + rune%1000.
type runeTokenizer struct {
	closed bool
	fail   error
}

func (r *runeTokenizer) Encode(text string) (*tokenizer.Encoding, error) {
	if r.fail != nil {
		return nil, r.fail
	}
	enc := &tokenizer.Encoding{
		IDs:     []int64{toyCLS},
		TypeIDs: []int64{0},
		Offsets: []tokenizer.Span{{}},
	}
	for i, c := range text {
		enc.IDs = append(enc.IDs, 10+int64(c%1000))
		enc.TypeIDs = append(enc.TypeIDs, 0)
		enc.Offsets = append(enc.Offsets, tokenizer.Span{Start: i, End: i + len(string(c))})
	}
	enc.IDs = append(enc.IDs, toySEP)
	enc.TypeIDs = append(enc.TypeIDs, 0)
	enc.Offsets = append(enc.Offsets, tokenizer.Span{})
	return enc, nil
}

func (r *runeTokenizer) PadID() int64 { return toyPad }

func (r *runeTokenizer) Close() error {
	r.closed = true
	return nil
}

func toyVocab() *vocab.Vocab {
	return &vocab.Vocab{
		Seg: []string{"B", "I", "E", "S", "O"},
		POS: []string{"n", "v", "r", "wp", "nh"},
		NER: []string{"O", "S-Nh", "B-Ns", "E-Ns"},
		SRL: []string{"O", "B-A0", "I-A0"},
		Dep: []string{"HED", "SBV", "VOB", "WP", "COO"},
		SDP: []string{"Root", "Agt", "Pat", "mPunc"},
	}
}

// toyEngine is a deterministic scoring engine. Every decoded output of a row
// depends only on that row's tokens, so results do not depend on batch
// composition.
//
//   - seg pairs tokens into two-character words, a trailing odd token is a
//     single-character word.
//   - pos of word w is the id of its first token modulo 5, ner tags the first
//     word S-Nh and the rest O.
//   - the srl history is right-aligned to the longest row and has one step
//     less than that row's word count. At word position pos of slot p the
//     pointer of label l is (l+pos+p+1)%3, and the final tag of slot p is p%3.
//   - dep scores favour a chain where word d is headed by d-1.
//   - sdp scores favour the same chain and also give a positive score to
//     the arc d -> d+1.
type toyEngine struct {
	tasks vocab.TaskSet
	calls atomic.Int32
	err   error

	// tweak edits the outputs before they are returned.
	tweak func([]backends.NamedTensor) []backends.NamedTensor
	// negativeSDP makes every sdp score negative while keeping the chain best.
	negativeSDP bool
}

func (e *toyEngine) Run(inputs []backends.NamedTensor) ([]backends.NamedTensor, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	if len(inputs) != 4 {
		return nil, errors.New("toy engine wants 4 inputs")
	}

	ids := inputs[0].Data.([]int64)
	mask := inputs[2].Data.([]int64)
	n, width := int(inputs[0].Shape[0]), int(inputs[0].Shape[1])

	content := make([]int, n)
	words := make([]int, n)
	for b := range n {
		for _, m := range mask[b*width : (b+1)*width] {
			content[b] += int(m)
		}
		content[b] -= 2
		words[b] = (content[b] + 1) / 2
	}

	var outputs []backends.NamedTensor

	seg := make([]int64, n*width)
	for b := range n {
		for j := range width {
			switch {
			case j >= content[b]:
				seg[b*width+j] = 4
			case j%2 == 1:
				seg[b*width+j] = 2
			case j+1 == content[b]:
				seg[b*width+j] = 3
			default:
				seg[b*width+j] = 0
			}
		}
	}
	outputs = append(outputs, backends.NamedTensor{Name: "seg", Shape: []int64{int64(n), int64(width)}, Data: seg})

	if e.tasks.Has(vocab.POS) {
		pos := make([]int64, n*width)
		for b := range n {
			for w := 0; w < words[b]; w++ {
				pos[b*width+w] = ids[b*width+1+2*w] % 5
			}
		}
		outputs = append(outputs, backends.NamedTensor{Name: "pos", Shape: []int64{int64(n), int64(width)}, Data: pos})
	}

	if e.tasks.Has(vocab.NER) {
		ner := make([]int64, n*width)
		for b := range n {
			if words[b] > 0 {
				ner[b*width] = 1
			}
		}
		outputs = append(outputs, backends.NamedTensor{Name: "ner", Shape: []int64{int64(n), int64(width)}, Data: ner})
	}

	if e.tasks.Has(vocab.SRL) {
		const labels = 3
		longest := 0
		for _, w := range words {
			longest = max(longest, w)
		}
		steps, seqs := max(longest-1, 0), n*width
		h := batching.HistoryLayout{Steps: steps, Sequences: seqs, Labels: labels}
		history := make([]int64, steps*seqs*labels)
		for b := range n {
			bias := h.Bias(words[b])
			for p := range width {
				for step := range steps {
					pos := step - bias
					for l := range labels {
						history[h.Index(step, b*width+p, l)] = int64(((l+pos+p+1)%labels + labels) % labels)
					}
				}
			}
		}
		last := make([]int64, seqs)
		for seq := range last {
			last[seq] = int64(seq % width % labels)
		}
		outputs = append(outputs,
			backends.NamedTensor{Name: "srl_history", Shape: []int64{int64(steps), int64(seqs), labels}, Data: history},
			backends.NamedTensor{Name: "srl_last_tags", Shape: []int64{int64(seqs)}, Data: last},
		)
	}

	arcs := func(name string, score func(d, h int) float32, label func(d, h int) int64) {
		scores := make([]float32, n*width*width)
		rels := make([]int64, n*width*width)
		for b := range n {
			for d := range width {
				for h := range width {
					idx := (b*width+d)*width + h
					scores[idx] = score(d, h)
					rels[idx] = label(d, h)
				}
			}
		}
		shape := []int64{int64(n), int64(width), int64(width)}
		outputs = append(outputs,
			backends.NamedTensor{Name: name + "_scores", Shape: shape, Data: scores},
			backends.NamedTensor{Name: name + "_labels", Shape: shape, Data: rels},
		)
	}

	if e.tasks.Has(vocab.Dep) {
		arcs("dep", func(d, h int) float32 {
			if h == d-1 {
				return 10
			}
			return 0
		}, func(d, h int) int64 { return int64((d + h) % 5) })
	}

	if e.tasks.Has(vocab.SDP) {
		arcs("sdp", func(d, h int) float32 {
			switch {
			case e.negativeSDP && h == d-1:
				return -0.5
			case e.negativeSDP:
				return -1
			case h == d-1:
				return 5
			case h == d+1:
				return 1
			}
			return -1
		}, func(d, h int) int64 { return int64(d * h % 4) })
	}

	if e.tweak != nil {
		outputs = e.tweak(outputs)
	}
	return outputs, nil
}

func (e *toyEngine) InputInfo() []backends.TensorInfo  { return nil }
func (e *toyEngine) OutputInfo() []backends.TensorInfo { return nil }
func (e *toyEngine) Close() error                      { return nil }

func newToyPipeline(v *vocab.Vocab, opts ...Option) (*LTPPipeline, *toyEngine, error) {
	engine := &toyEngine{tasks: v.Tasks()}
	p, err := New(&runeTokenizer{}, engine, v, opts...)
	return p, engine, err
}

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
	"github.com/HIT-SCIR/libltp/lib/backends"
	"github.com/HIT-SCIR/libltp/lib/batching"
	"github.com/HIT-SCIR/libltp/lib/decoding"
	"github.com/HIT-SCIR/libltp/lib/vocab"
)

func int64Tensor(op string, t backends.NamedTensor, rank int) ([]int64, error) {
	if rank > 0 && len(t.Shape) != rank {
		return nil, errorf(KindTensorExtract, op, "tensor %q has rank %d, want %d", t.Name, len(t.Shape), rank)
	}
	data, err := backends.Int64Data(t)
	if err != nil {
		return nil, newError(KindTensorExtract, op, err)
	}
	return data, nil
}

func float32Tensor(op string, t backends.NamedTensor, rank int) ([]float32, error) {
	if len(t.Shape) != rank {
		return nil, errorf(KindTensorExtract, op, "tensor %q has rank %d, want %d", t.Name, len(t.Shape), rank)
	}
	data, err := backends.Float32Data(t)
	if err != nil {
		return nil, newError(KindTensorExtract, op, err)
	}
	return data, nil
}

// rowLayout checks that t is [rows, width] and fits lengths.
func rowLayout(op string, t backends.NamedTensor, lengths []int) (batching.Layout, error) {
	if int(t.Shape[0]) != len(lengths) {
		return batching.Layout{}, errorf(KindShape, op, "tensor %q has %d rows, batch has %d", t.Name, t.Shape[0], len(lengths))
	}
	layout, err := batching.NewLayoutWidth(lengths, int(t.Shape[1]))
	if err != nil {
		return batching.Layout{}, newError(KindShape, op, err)
	}
	return layout, nil
}

// checkLabelIDs verifies that every id indexes one of n labels.
func checkLabelIDs(op, name string, ids []int64, n int) error {
	for _, id := range ids {
		if id < 0 || id >= int64(n) {
			return errorf(KindTensorExtract, op, "tensor %q holds label %d, %d labels", name, id, n)
		}
	}
	return nil
}

// decodeSeg chunks the segmentation tags of every sentence into words and
// returns the words with the word count of each sentence.
func (p *LTPPipeline) decodeSeg(sentences []string, batch *encodedBatch, t backends.NamedTensor) ([][]string, []int, error) {
	const op = "decode seg"
	data, err := int64Tensor(op, t, 2)
	if err != nil {
		return nil, nil, err
	}
	layout, err := rowLayout(op, t, batch.content)
	if err != nil {
		return nil, nil, err
	}
	rows, err := batching.SliceRows(data, layout.Width(), layout.Lengths())
	if err != nil {
		return nil, nil, newError(KindShape, op, err)
	}

	words := make([][]string, len(rows))
	counts := make([]int, len(rows))
	for b, ids := range rows {
		tags, err := p.vocab.MapLabels(vocab.Seg, ids)
		if err != nil {
			return nil, nil, newError(KindTensorExtract, op, err)
		}
		chunks := decoding.GetEntities(tags)
		offsets := batch.offsets[b]

		sent := make([]string, len(chunks))
		for i, c := range chunks {
			start := offsets[batching.TokenIndex(c.Start)].Start
			end := offsets[batching.TokenIndex(c.End)].End
			sent[i] = safeSubstring(sentences[b], start, end)
		}
		words[b] = sent
		counts[b] = len(sent)
	}
	return words, counts, nil
}

// decodeTags maps the per-word label ids of a tagging task to strings.
func (p *LTPPipeline) decodeTags(task vocab.Task, t backends.NamedTensor, counts []int) ([][]string, error) {
	op := "decode " + task.String()
	data, err := int64Tensor(op, t, 2)
	if err != nil {
		return nil, err
	}
	layout, err := rowLayout(op, t, counts)
	if err != nil {
		return nil, err
	}
	rows, err := batching.SliceRows(data, layout.Width(), layout.Lengths())
	if err != nil {
		return nil, newError(KindShape, op, err)
	}

	out := make([][]string, len(rows))
	for b, ids := range rows {
		if out[b], err = p.vocab.MapLabels(task, ids); err != nil {
			return nil, newError(KindTensorExtract, op, err)
		}
	}
	return out, nil
}

// decodeSRL backtraces one role sequence per predicate slot and groups them
// per sentence, one list of roles per word.
func (p *LTPPipeline) decodeSRL(historyT, lastT backends.NamedTensor, counts []int) ([][][]string, error) {
	const op = "decode srl"
	layout, err := batching.NewHistoryLayout(historyT.Shape)
	if err != nil {
		return nil, newError(KindTensorExtract, op, err)
	}
	history, err := int64Tensor(op, historyT, 3)
	if err != nil {
		return nil, err
	}
	lastTags, err := int64Tensor(op, lastT, 0)
	if err != nil {
		return nil, err
	}
	if len(lastTags) != layout.Sequences {
		return nil, errorf(KindShape, op, "%d final tags for %d sequences", len(lastTags), layout.Sequences)
	}
	lengths, err := layout.SequenceLengths(counts)
	if err != nil {
		return nil, newError(KindShape, op, err)
	}
	if err := checkLabelIDs(op, historyT.Name, history, layout.Labels); err != nil {
		return nil, err
	}
	if err := checkLabelIDs(op, lastT.Name, lastTags, layout.Labels); err != nil {
		return nil, err
	}

	paths := decoding.ViterbiBacktrace(history, layout, lastTags, lengths)
	slots := layout.Slots(len(counts))

	out := make([][][]string, len(counts))
	for b, n := range counts {
		roles := make([][]string, n)
		for w := range roles {
			if roles[w], err = p.vocab.MapLabels(vocab.SRL, paths[b*slots+w]); err != nil {
				return nil, newError(KindTensorExtract, op, err)
			}
		}
		out[b] = roles
	}
	return out, nil
}

// arcBatch is a decoded [rows, width, width] arc score block with its labels
// and the Eisner tree of every sentence.
type arcBatch struct {
	layout batching.Layout
	scores []float32
	labels []int64
	heads  [][]int
}

// decodeArcs validates an arc score/label tensor pair and runs Eisner over
// every sentence, the virtual root included.
func decodeArcs(op string, scoresT, labelsT backends.NamedTensor, counts []int) (*arcBatch, error) {
	scores, err := float32Tensor(op, scoresT, 3)
	if err != nil {
		return nil, err
	}
	labels, err := int64Tensor(op, labelsT, 3)
	if err != nil {
		return nil, err
	}
	if scoresT.Shape[1] != scoresT.Shape[2] {
		return nil, errorf(KindShape, op, "arc scores %v are not square", scoresT.Shape)
	}
	for i := range scoresT.Shape {
		if labelsT.Shape[i] != scoresT.Shape[i] {
			return nil, errorf(KindShape, op, "arc labels %v do not match scores %v", labelsT.Shape, scoresT.Shape)
		}
	}
	layout, err := rowLayout(op, scoresT, batching.WithRoot(counts))
	if err != nil {
		return nil, err
	}
	if err := layout.CheckSize(len(scores), layout.Width()); err != nil {
		return nil, newError(KindShape, op, err)
	}

	return &arcBatch{
		layout: layout,
		scores: scores,
		labels: labels,
		heads:  decoding.Eisner(scores, layout, false),
	}, nil
}

// decodeDep emits one edge per word, headed by its Eisner parent.
func (p *LTPPipeline) decodeDep(scoresT, labelsT backends.NamedTensor, counts []int) ([][]DepEdge, error) {
	const op = "decode dep"
	arcs, err := decodeArcs(op, scoresT, labelsT, counts)
	if err != nil {
		return nil, err
	}

	out := make([][]DepEdge, len(counts))
	for b, n := range counts {
		edges := make([]DepEdge, 0, n)
		for w := 1; w <= n; w++ {
			head := arcs.heads[b][w]
			rel, err := p.vocab.Label(vocab.Dep, arcs.labels[arcs.layout.MatrixIndex(b, w, head)])
			if err != nil {
				return nil, newError(KindTensorExtract, op, err)
			}
			edges = append(edges, DepEdge{Arc: head, Rel: rel})
		}
		out[b] = edges
	}
	return out, nil
}

// decodeSDP keeps every arc with a positive score plus the Eisner tree arc
// of each word, so no word is left without a head. The virtual root is
// never a source.
func (p *LTPPipeline) decodeSDP(scoresT, labelsT backends.NamedTensor, counts []int) ([][]SDPEdge, error) {
	const op = "decode sdp"
	arcs, err := decodeArcs(op, scoresT, labelsT, counts)
	if err != nil {
		return nil, err
	}

	out := make([][]SDPEdge, len(counts))
	for b, n := range counts {
		edges := make([]SDPEdge, 0, n)
		for src := 1; src <= n; src++ {
			for tgt := 0; tgt <= n; tgt++ {
				idx := arcs.layout.MatrixIndex(b, src, tgt)
				if !(arcs.scores[idx] > 0) && arcs.heads[b][src] != tgt {
					continue
				}
				rel, err := p.vocab.Label(vocab.SDP, arcs.labels[idx])
				if err != nil {
					return nil, newError(KindTensorExtract, op, err)
				}
				edges = append(edges, SDPEdge{Src: src, Tgt: tgt, Rel: rel})
			}
		}
		out[b] = edges
	}
	return out, nil
}

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

// Package pipelines turns raw sentences into layered LTP analyses. An
// LTPPipeline tokenizes a batch, runs the scoring engine once and decodes the
// returned tensors into words, tags, semantic roles and dependency graphs.
package pipelines

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/HIT-SCIR/libltp/lib/backends"
	"github.com/HIT-SCIR/libltp/lib/batching"
	"github.com/HIT-SCIR/libltp/lib/tokenizer"
	"github.com/HIT-SCIR/libltp/lib/vocab"
)

// DefaultMaxLength is the longest token sequence, boundary tokens included,
// fed to the scoring engine.
const DefaultMaxLength = 512

// defaultInputNames are used when a session does not report its inputs.
var defaultInputNames = [...]string{"input_ids", "token_type_ids", "attention_mask", "position_ids"}

// Option configures an LTPPipeline.
type Option func(*options)

type options struct {
	maxLength   int
	sessionOpts []backends.SessionOption
	logger      *zap.Logger
}

// WithMaxLength caps the encoded length of a sentence. Longer sentences are
// truncated, keeping the closing [SEP].
func WithMaxLength(n int) Option {
	return func(o *options) {
		o.maxLength = n
	}
}

// WithSessionOptions passes engine options (threads, device, graph
// optimization level) to the session created by LoadLTPPipeline.
func WithSessionOptions(opts ...backends.SessionOption) Option {
	return func(o *options) {
		o.sessionOpts = append(o.sessionOpts, opts...)
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func applyOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	o.maxLength = FirstNonZero(o.maxLength, DefaultMaxLength)
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// LTPPipeline analyses batches of sentences with one scoring engine. The set
// of tasks is fixed by the vocabulary at construction. It is safe for
// concurrent use; engine calls are serialized.
type LTPPipeline struct {
	tokenizer tokenizer.Tokenizer
	session   backends.Session
	vocab     *vocab.Vocab
	tasks     vocab.TaskSet
	inputs    [4]string
	maxLength int
	logger    *zap.Logger

	mu sync.Mutex
}

// New assembles a pipeline from its collaborators. The pipeline owns the
// tokenizer and the session and closes them in Close.
func New(tok tokenizer.Tokenizer, session backends.Session, v *vocab.Vocab, opts ...Option) (*LTPPipeline, error) {
	o := applyOptions(opts)

	if v == nil {
		return nil, errorf(KindDeserialize, "new", "vocabulary is nil")
	}
	tasks := v.Tasks()
	if !tasks.Has(vocab.Seg) {
		return nil, errorf(KindDeserialize, "new", "vocabulary has no %s labels", vocab.Seg)
	}
	if o.maxLength < batching.BoundaryTokens+1 {
		return nil, errorf(KindShape, "new", "max length %d leaves no room for content", o.maxLength)
	}

	p := &LTPPipeline{
		tokenizer: tok,
		session:   session,
		vocab:     v,
		tasks:     tasks,
		inputs:    defaultInputNames,
		maxLength: o.maxLength,
		logger:    o.logger,
	}
	if info := session.InputInfo(); len(info) > 0 {
		if len(info) != len(p.inputs) {
			return nil, errorf(KindEngine, "new", "model takes %d inputs, want %d", len(info), len(p.inputs))
		}
		for i, in := range info {
			p.inputs[i] = in.Name
		}
	}
	if info := session.OutputInfo(); len(info) > 0 && len(info) != tasks.ExpectedOutputs() {
		return nil, errorf(KindEngine, "new", "model has %d outputs, tasks %s need %d",
			len(info), tasks, tasks.ExpectedOutputs())
	}
	return p, nil
}

// Tasks returns the enabled tasks.
func (p *LTPPipeline) Tasks() vocab.TaskSet { return p.tasks }

// Vocab returns the label dictionaries.
func (p *LTPPipeline) Vocab() *vocab.Vocab { return p.vocab }

// Close releases the tokenizer and the engine session.
func (p *LTPPipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	if p.session != nil {
		firstErr = p.session.Close()
		p.session = nil
	}
	if p.tokenizer != nil {
		if err := p.tokenizer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.tokenizer = nil
	}
	return firstErr
}

// Pipeline analyses one sentence. It behaves exactly like a batch of one.
func (p *LTPPipeline) Pipeline(sentence string) (Result, error) {
	results, err := p.PipelineBatch([]string{sentence})
	if err != nil {
		return Result{}, err
	}
	return results[0], nil
}

// PipelineBatch analyses sentences with a single engine call and returns one
// Result per sentence in input order. Any failure fails the whole batch.
func (p *LTPPipeline) PipelineBatch(sentences []string) ([]Result, error) {
	if len(sentences) == 0 {
		return []Result{}, nil
	}

	batch, err := p.encode(sentences)
	if err != nil {
		return nil, err
	}
	outputs, err := p.run(batch.inputs)
	if err != nil {
		return nil, err
	}
	results, err := p.decode(sentences, batch, outputs)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("Analysed batch",
		zap.Int("sentences", len(sentences)),
		zap.Int("maxTokens", batch.tokens.Width()),
		zap.Stringer("tasks", p.tasks))
	return results, nil
}

// encodedBatch is a tokenized batch right-padded to its longest encoding.
type encodedBatch struct {
	tokens  batching.Layout
	content []int
	offsets [][]tokenizer.Span
	inputs  []backends.NamedTensor
}

func (p *LTPPipeline) encode(sentences []string) (*encodedBatch, error) {
	p.mu.Lock()
	tok := p.tokenizer
	p.mu.Unlock()
	if tok == nil {
		return nil, errorf(KindEngine, "tokenize", "pipeline is closed")
	}

	encs, err := tokenizer.EncodeBatch(tok, sentences)
	if err != nil {
		return nil, newError(KindEngine, "tokenize", err)
	}

	n := len(encs)
	ids := make([][]int64, n)
	typeIDs := make([][]int64, n)
	mask := make([][]int64, n)
	lengths := make([]int, n)
	batch := &encodedBatch{
		content: make([]int, n),
		offsets: make([][]tokenizer.Span, n),
	}
	for b, enc := range encs {
		if enc.Len() < batching.BoundaryTokens || len(enc.TypeIDs) != enc.Len() || len(enc.Offsets) != enc.Len() {
			return nil, errorf(KindShape, "tokenize", "sentence %d: malformed encoding of %d tokens", b, enc.Len())
		}
		enc = truncate(enc, p.maxLength)

		ids[b] = enc.IDs
		typeIDs[b] = enc.TypeIDs
		mask[b] = ones(enc.Len())
		lengths[b] = enc.Len()
		batch.offsets[b] = enc.Offsets
		batch.content[b] = batching.ContentLength(mask[b])
	}

	batch.tokens = batching.NewLayout(lengths)
	width := batch.tokens.Width()
	shape := []int64{int64(n), int64(width)}
	batch.inputs = []backends.NamedTensor{
		{Name: p.inputs[0], Shape: shape, Data: batching.PadInt64(ids, width, tok.PadID())},
		{Name: p.inputs[1], Shape: shape, Data: batching.PadInt64(typeIDs, width, 0)},
		{Name: p.inputs[2], Shape: shape, Data: batching.PadInt64(mask, width, 0)},
		{Name: p.inputs[3], Shape: shape, Data: batching.PositionIDs(n, width)},
	}
	return batch, nil
}

// truncate keeps the first maxLength-1 tokens and the closing boundary token.
func truncate(enc *tokenizer.Encoding, maxLength int) *tokenizer.Encoding {
	n := enc.Len()
	if n <= maxLength {
		return enc
	}
	keep := maxLength - 1
	out := &tokenizer.Encoding{
		IDs:     append(append(make([]int64, 0, maxLength), enc.IDs[:keep]...), enc.IDs[n-1]),
		TypeIDs: append(append(make([]int64, 0, maxLength), enc.TypeIDs[:keep]...), enc.TypeIDs[n-1]),
		Offsets: append(append(make([]tokenizer.Span, 0, maxLength), enc.Offsets[:keep]...), enc.Offsets[n-1]),
	}
	return out
}

func ones(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func (p *LTPPipeline) run(inputs []backends.NamedTensor) ([]backends.NamedTensor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session == nil {
		return nil, errorf(KindEngine, "run", "pipeline is closed")
	}
	outputs, err := p.session.Run(inputs)
	if err != nil {
		return nil, newError(KindEngine, "run", err)
	}
	if want := p.tasks.ExpectedOutputs(); len(outputs) != want {
		return nil, errorf(KindEngine, "run", "model returned %d outputs, tasks %s need %d", len(outputs), p.tasks, want)
	}
	return outputs, nil
}

// outputQueue hands out engine outputs in task order.
type outputQueue struct {
	outputs []backends.NamedTensor
	next    int
}

func (q *outputQueue) take() backends.NamedTensor {
	t := q.outputs[q.next]
	q.next++
	return t
}

func (p *LTPPipeline) decode(sentences []string, batch *encodedBatch, outputs []backends.NamedTensor) ([]Result, error) {
	q := &outputQueue{outputs: outputs}
	rows := len(sentences)
	results := make([]Result, rows)

	words, counts, err := p.decodeSeg(sentences, batch, q.take())
	if err != nil {
		return nil, err
	}
	for b := range results {
		results[b].Seg = words[b]
	}

	if p.tasks.Has(vocab.POS) {
		tags, err := p.decodeTags(vocab.POS, q.take(), counts)
		if err != nil {
			return nil, err
		}
		for b := range results {
			results[b].POS = tags[b]
		}
	}

	if p.tasks.Has(vocab.NER) {
		tags, err := p.decodeTags(vocab.NER, q.take(), counts)
		if err != nil {
			return nil, err
		}
		for b := range results {
			results[b].NER = tags[b]
		}
	}

	if p.tasks.Has(vocab.SRL) {
		history, last := q.take(), q.take()
		roles, err := p.decodeSRL(history, last, counts)
		if err != nil {
			return nil, err
		}
		for b := range results {
			results[b].SRL = roles[b]
		}
	}

	if p.tasks.Has(vocab.Dep) {
		scores, labels := q.take(), q.take()
		edges, err := p.decodeDep(scores, labels, counts)
		if err != nil {
			return nil, err
		}
		for b := range results {
			results[b].Dep = edges[b]
		}
	}

	if p.tasks.Has(vocab.SDP) {
		scores, labels := q.take(), q.take()
		edges, err := p.decodeSDP(scores, labels, counts)
		if err != nil {
			return nil, err
		}
		for b := range results {
			results[b].SDP = edges[b]
		}
	}

	return results, nil
}

func (p *LTPPipeline) String() string {
	return fmt.Sprintf("LTPPipeline(tasks=%s, maxLength=%d)", p.tasks, p.maxLength)
}

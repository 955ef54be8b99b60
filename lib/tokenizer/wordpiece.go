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

package tokenizer

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
	"github.com/sugarme/tokenizer/util"
)

// WordPiece is the BERT tokenizer built from a vocab.txt, matching the
// tokenizer LTP models are trained with.
type WordPiece struct {
	tk    *tokenizer.Tokenizer
	cls   int64
	sep   int64
	pad   int64
	vocab int
}

var _ Tokenizer = (*WordPiece)(nil)

// NewWordPiece loads a WordPiece vocabulary, one token per line with the line
// number as id.
func NewWordPiece(vocabPath string) (*WordPiece, error) {
	vocab, err := readVocab(vocabPath)
	if err != nil {
		return nil, err
	}
	return newWordPiece(vocab)
}

func readVocab(path string) (model.Vocab, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening vocabulary: %w", err)
	}
	defer f.Close()

	vocab := make(model.Vocab)
	scanner := bufio.NewScanner(f)
	for id := 0; scanner.Scan(); id++ {
		if token := strings.TrimRight(scanner.Text(), "\r"); token != "" {
			vocab[token] = id
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading vocabulary: %w", err)
	}
	return vocab, nil
}

func newWordPiece(vocab model.Vocab) (*WordPiece, error) {
	special := map[string]int{}
	for _, token := range []string{clsToken, sepToken, padToken, unkToken} {
		id, ok := vocab[token]
		if !ok {
			return nil, fmt.Errorf("vocabulary has no %s token", token)
		}
		special[token] = id
	}

	wp, err := wordpiece.New(vocab, util.NewParams(map[string]any{
		"unk_token": unkToken,
	}))
	if err != nil {
		return nil, fmt.Errorf("creating wordpiece model: %w", err)
	}

	tk := tokenizer.NewTokenizer(wp)
	// Clean text, split CJK characters, lowercase, strip accents.
	tk.WithNormalizer(normalizer.NewBertNormalizer(true, true, true, true))
	tk.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())

	return &WordPiece{
		tk:    tk,
		cls:   int64(special[clsToken]),
		sep:   int64(special[sepToken]),
		pad:   int64(special[padToken]),
		vocab: len(vocab),
	}, nil
}

// Encode tokenizes text. EncodeSingle reports byte offsets into the original
// text. The underlying normalizer can panic on some inputs; the panic is
// returned as an error.
func (w *WordPiece) Encode(text string) (enc *Encoding, err error) {
	if text == "" {
		return wrap(w.cls, w.sep, nil, nil), nil
	}

	defer func() {
		if r := recover(); r != nil {
			enc, err = nil, fmt.Errorf("tokenizing %q: %v", text, r)
		}
	}()

	out, err := w.tk.EncodeSingle(text)
	if err != nil {
		return nil, fmt.Errorf("tokenizing: %w", err)
	}

	ids := make([]int64, len(out.Ids))
	spans := make([]Span, len(out.Ids))
	for i, id := range out.Ids {
		ids[i] = int64(id)
		if i < len(out.Offsets) && len(out.Offsets[i]) == 2 {
			spans[i] = Span{Start: out.Offsets[i][0], End: out.Offsets[i][1]}
		}
	}
	return wrap(w.cls, w.sep, ids, spans), nil
}

// PadID returns the id of [PAD].
func (w *WordPiece) PadID() int64 { return w.pad }

// VocabSize returns the number of tokens in the vocabulary.
func (w *WordPiece) VocabSize() int { return w.vocab }

// Close is a no-op.
func (w *WordPiece) Close() error { return nil }

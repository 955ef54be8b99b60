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

// Package tokenizer encodes sentences into the BERT-style token sequences an
// LTP model consumes: [CLS] content [SEP], with type ids and the byte span of
// every token in the original sentence.
package tokenizer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// VocabFile is the WordPiece vocabulary of a model directory.
	VocabFile = "vocab.txt"
	// TokenizerFile is a HuggingFace tokenizer definition.
	TokenizerFile = "tokenizer.json"

	clsToken = "[CLS]"
	sepToken = "[SEP]"
	padToken = "[PAD]"
	unkToken = "[UNK]"
)

// ErrNoTokenizer is returned when a model directory has no tokenizer files.
var ErrNoTokenizer = errors.New("no tokenizer found")

// Span is a half-open byte range in the encoded text.
type Span struct {
	Start int
	End   int
}

// Encoding is one tokenized sentence, boundary tokens included. Boundary
// tokens have an empty span at 0.
type Encoding struct {
	IDs     []int64
	TypeIDs []int64
	Offsets []Span
}

// Len returns the number of tokens.
func (e *Encoding) Len() int { return len(e.IDs) }

// Tokenizer turns a sentence into an Encoding. Implementations are safe for
// concurrent use.
type Tokenizer interface {
	Encode(text string) (*Encoding, error)
	// PadID is the id used to right-pad a batch.
	PadID() int64
	Close() error
}

// Load opens the tokenizer of a model directory. A tokenizer.json is preferred
// when present, using the Rust implementation where it is compiled in;
// otherwise the WordPiece vocab.txt is used.
func Load(modelDir string) (Tokenizer, error) {
	jsonPath := filepath.Join(modelDir, TokenizerFile)
	if _, err := os.Stat(jsonPath); err == nil {
		if rustTokenizerAvailable() {
			if tok, err := loadRustTokenizer(jsonPath); err == nil && tok != nil {
				return tok, nil
			}
		}
		return NewHF(jsonPath)
	}

	vocabPath := filepath.Join(modelDir, VocabFile)
	if _, err := os.Stat(vocabPath); err == nil {
		return NewWordPiece(vocabPath)
	}

	return nil, fmt.Errorf("%w in %s (expected %s or %s)", ErrNoTokenizer, modelDir, TokenizerFile, VocabFile)
}

// EncodeBatch encodes every text, failing on the first error.
func EncodeBatch(tok Tokenizer, texts []string) ([]*Encoding, error) {
	out := make([]*Encoding, len(texts))
	for i, text := range texts {
		enc, err := tok.Encode(text)
		if err != nil {
			return nil, fmt.Errorf("encoding sentence %d: %w", i, err)
		}
		out[i] = enc
	}
	return out, nil
}

// wrap surrounds content tokens with [CLS] and [SEP].
func wrap(cls, sep int64, ids []int64, spans []Span) *Encoding {
	enc := &Encoding{
		IDs:     make([]int64, 0, len(ids)+2),
		TypeIDs: make([]int64, len(ids)+2),
		Offsets: make([]Span, 0, len(ids)+2),
	}
	enc.IDs = append(enc.IDs, cls)
	enc.IDs = append(enc.IDs, ids...)
	enc.IDs = append(enc.IDs, sep)
	enc.Offsets = append(enc.Offsets, Span{})
	enc.Offsets = append(enc.Offsets, spans...)
	enc.Offsets = append(enc.Offsets, Span{})
	return enc
}

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
	"fmt"

	"github.com/gomlx/go-huggingface/tokenizers/api"
	"github.com/gomlx/go-huggingface/tokenizers/hftokenizer"
)

// HF is a pure Go tokenizer driven by a HuggingFace tokenizer.json.
type HF struct {
	tk  *hftokenizer.Tokenizer
	cls int64
	sep int64
	pad int64
}

var _ Tokenizer = (*HF)(nil)

// NewHF loads a tokenizer.json.
func NewHF(path string) (*HF, error) {
	tk, err := hftokenizer.NewFromFile(nil, path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", TokenizerFile, err)
	}

	// TokClassification is [CLS] and TokEndOfSentence is [SEP] for BERT models.
	cls, err := tk.SpecialTokenID(api.TokClassification)
	if err != nil {
		return nil, fmt.Errorf("getting CLS token: %w", err)
	}
	sep, err := tk.SpecialTokenID(api.TokEndOfSentence)
	if err != nil {
		return nil, fmt.Errorf("getting SEP token: %w", err)
	}
	pad := 0
	if id, err := tk.SpecialTokenID(api.TokPad); err == nil {
		pad = id
	}

	return &HF{tk: tk, cls: int64(cls), sep: int64(sep), pad: int64(pad)}, nil
}

// Encode tokenizes text. The spans reported by the library are byte spans.
func (h *HF) Encode(text string) (*Encoding, error) {
	res := h.tk.EncodeWithSpans(text)

	ids := make([]int64, len(res.IDs))
	spans := make([]Span, len(res.IDs))
	for i, id := range res.IDs {
		ids[i] = int64(id)
		if i < len(res.Spans) {
			spans[i] = Span{Start: res.Spans[i].Start, End: res.Spans[i].End}
		}
	}
	return wrap(h.cls, h.sep, ids, spans), nil
}

// PadID returns the padding id, 0 when the tokenizer defines none.
func (h *HF) PadID() int64 { return h.pad }

// Close is a no-op.
func (h *HF) Close() error { return nil }

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

//go:build onnx && ORT

package tokenizer

import (
	"fmt"
	"os"

	"github.com/daulet/tokenizers"
)

// rustTokenizer wraps the Rust HuggingFace tokenizers library. The model's
// own post-processor adds [CLS] and [SEP].
type rustTokenizer struct {
	tk  *tokenizers.Tokenizer
	pad int64
}

var _ Tokenizer = (*rustTokenizer)(nil)

func loadRustTokenizer(path string) (Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", TokenizerFile, err)
	}

	tk, err := tokenizers.FromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("loading Rust tokenizer: %w", err)
	}

	t := &rustTokenizer{tk: tk}
	if out := tk.EncodeWithOptions(padToken, false); len(out.IDs) == 1 {
		t.pad = int64(out.IDs[0])
	}
	return t, nil
}

// Encode tokenizes text. The Rust encoder reports byte offsets.
func (t *rustTokenizer) Encode(text string) (*Encoding, error) {
	out := t.tk.EncodeWithOptions(text, true,
		tokenizers.WithReturnTypeIDs(),
		tokenizers.WithReturnOffsets(),
		tokenizers.WithReturnSpecialTokensMask(),
	)

	enc := &Encoding{
		IDs:     make([]int64, len(out.IDs)),
		TypeIDs: make([]int64, len(out.IDs)),
		Offsets: make([]Span, len(out.IDs)),
	}
	for i, id := range out.IDs {
		enc.IDs[i] = int64(id)
		if i < len(out.TypeIDs) {
			enc.TypeIDs[i] = int64(out.TypeIDs[i])
		}
		special := i < len(out.SpecialTokensMask) && out.SpecialTokensMask[i] == 1
		if i < len(out.Offsets) && !special {
			enc.Offsets[i] = Span{Start: int(out.Offsets[i][0]), End: int(out.Offsets[i][1])}
		}
	}
	return enc, nil
}

func (t *rustTokenizer) PadID() int64 { return t.pad }

func (t *rustTokenizer) Close() error {
	if t.tk != nil {
		return t.tk.Close()
	}
	return nil
}

// rustTokenizerAvailable returns true when the Rust tokenizer is compiled in.
// Set TOKENIZER_BACKEND=go to force the pure Go tokenizer.
func rustTokenizerAvailable() bool {
	return os.Getenv("TOKENIZER_BACKEND") != "go"
}

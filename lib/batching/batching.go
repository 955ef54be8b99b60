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

// Package batching centralizes the index arithmetic for ragged sentences
// packed into dense, right-padded, row-major batch tensors. Callers carry
// explicit per-row valid lengths and never infer padding from tensor values.
package batching

import (
	"errors"
	"fmt"
)

// ErrShape reports a tensor whose size is inconsistent with the batch layout.
var ErrShape = errors.New("inconsistent batch shape")

// BoundaryTokens is the number of special tokens ([CLS] and [SEP]) wrapped
// around every encoded sentence.
const BoundaryTokens = 2

// Layout describes a batch of rows right-padded to a common width.
type Layout struct {
	lengths []int
	width   int
}

// NewLayout builds a layout whose width is the longest row.
func NewLayout(lengths []int) Layout {
	width := 0
	for _, l := range lengths {
		width = max(width, l)
	}
	return Layout{lengths: lengths, width: width}
}

// NewLayoutWidth builds a layout with an explicit width, as dictated by a
// tensor dimension. Every length must fit inside the width.
func NewLayoutWidth(lengths []int, width int) (Layout, error) {
	for i, l := range lengths {
		if l < 0 || l > width {
			return Layout{}, fmt.Errorf("%w: row %d has length %d, width is %d", ErrShape, i, l, width)
		}
	}
	return Layout{lengths: lengths, width: width}, nil
}

// Rows returns the number of rows in the batch.
func (l Layout) Rows() int { return len(l.lengths) }

// Width returns the padded row width.
func (l Layout) Width() int { return l.width }

// Len returns the valid length of row.
func (l Layout) Len(row int) int { return l.lengths[row] }

// Lengths returns the valid length of every row.
func (l Layout) Lengths() []int { return l.lengths }

// Index returns the flat offset of [row, col] in a [rows, width] tensor.
func (l Layout) Index(row, col int) int { return row*l.width + col }

// MatrixIndex returns the flat offset of [row, i, j] in a
// [rows, width, width] tensor.
func (l Layout) MatrixIndex(row, i, j int) int {
	return l.Index(row, i)*l.width + j
}

// Size returns the element count of a [rows, width] tensor.
func (l Layout) Size() int { return len(l.lengths) * l.width }

// CheckSize verifies that a flat tensor holds exactly rows*width*inner values.
func (l Layout) CheckSize(n, inner int) error {
	if want := l.Size() * inner; n != want {
		return fmt.Errorf("%w: got %d values, want %d (%d rows x %d x %d)",
			ErrShape, n, want, len(l.lengths), l.width, inner)
	}
	return nil
}

// WithRoot returns word counts extended by the virtual root at position 0.
func WithRoot(wordCounts []int) []int {
	out := make([]int, len(wordCounts))
	for i, n := range wordCounts {
		out[i] = n + 1
	}
	return out
}

// RootShift returns the output index offset applied when the virtual root is
// removed from decoded heads: position k is stored at k-RootShift.
func RootShift(removeRoot bool) int {
	if removeRoot {
		return 1
	}
	return 0
}

// TokenIndex maps a content position to its token position after the
// leading [CLS] token.
func TokenIndex(pos int) int { return pos + 1 }

// ContentLength returns the number of content tokens in an attention mask,
// excluding the boundary tokens.
func ContentLength(mask []int64) int {
	n := 0
	for _, m := range mask {
		n += int(m)
	}
	return max(n-BoundaryTokens, 0)
}

// PadInt64 packs ragged rows into a dense [len(rows), width] buffer.
func PadInt64(rows [][]int64, width int, pad int64) []int64 {
	out := make([]int64, len(rows)*width)
	for r, row := range rows {
		base := r * width
		n := copy(out[base:base+width], row)
		for k := base + n; k < base+width; k++ {
			out[k] = pad
		}
	}
	return out
}

// PositionIDs returns 0..width-1 repeated for every row.
func PositionIDs(rows, width int) []int64 {
	out := make([]int64, rows*width)
	for r := 0; r < rows; r++ {
		for c := 0; c < width; c++ {
			out[r*width+c] = int64(c)
		}
	}
	return out
}

// SliceRows cuts the valid prefix of every row out of a dense
// [len(lengths), stride] buffer.
func SliceRows[T any](data []T, stride int, lengths []int) ([][]T, error) {
	if len(data) < len(lengths)*stride {
		return nil, fmt.Errorf("%w: %d values for %d rows of %d", ErrShape, len(data), len(lengths), stride)
	}
	out := make([][]T, len(lengths))
	for r, n := range lengths {
		if n < 0 || n > stride {
			return nil, fmt.Errorf("%w: row %d has length %d, stride is %d", ErrShape, r, n, stride)
		}
		out[r] = data[r*stride : r*stride+n]
	}
	return out, nil
}

// Regroup splits a flat list into consecutive groups of the given sizes.
func Regroup[T any](flat []T, sizes []int) ([][]T, error) {
	out := make([][]T, len(sizes))
	offset := 0
	for i, n := range sizes {
		if offset+n > len(flat) {
			return nil, fmt.Errorf("%w: group %d needs %d items, %d left", ErrShape, i, n, len(flat)-offset)
		}
		out[i] = flat[offset : offset+n]
		offset += n
	}
	return out, nil
}

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

// Package decoding turns raw score tensors into discrete linguistic
// structures: tag chunks, label paths and projective dependency trees.
// Every function here is pure and allocates its working memory per call,
// so the decoders are safe to use from concurrent pipelines.
package decoding

import "strings"

// Chunk is a typed span over a tag sequence. End is inclusive.
type Chunk struct {
	Type  string
	Start int
	End   int
}

const (
	outsideTag  = "O"
	untypedType = "_"
)

type transition struct{ prev, cur string }

var (
	closingTransitions = map[transition]bool{
		{"B", "B"}: true, {"B", "S"}: true, {"B", "O"}: true,
		{"I", "B"}: true, {"I", "S"}: true, {"I", "O"}: true,
	}
	openingTransitions = map[transition]bool{
		{"E", "E"}: true, {"E", "I"}: true,
		{"S", "E"}: true, {"S", "I"}: true,
		{"O", "E"}: true, {"O", "I"}: true,
	}
)

// GetEntities decodes a BIO/BIOES tag sequence into contiguous typed chunks.
//
// Tags are either "O" or "TAG-TYPE" with TAG one of B, I, E or S. A tag
// without a "-" carries the untyped marker "_". Malformed sequences are
// decoded permissively: a bare I or E after O opens a new chunk.
func GetEntities(tags []string) []Chunk {
	var chunks []Chunk

	prevTag, prevType := outsideTag, untypedType
	begin := 0

	for i := 0; i <= len(tags); i++ {
		chunk := outsideTag
		if i < len(tags) {
			chunk = tags[i]
		}
		tag, typ := splitTag(chunk)

		if endOfChunk(prevTag, tag, prevType, typ) {
			chunks = append(chunks, Chunk{Type: prevType, Start: begin, End: i - 1})
		}
		if startOfChunk(prevTag, tag, prevType, typ) {
			begin = i
		}
		prevTag, prevType = tag, typ
	}

	return chunks
}

func splitTag(chunk string) (tag, typ string) {
	tag, typ, found := strings.Cut(chunk, "-")
	if !found {
		return chunk, untypedType
	}
	return tag, typ
}

func endOfChunk(prevTag, tag, prevType, typ string) bool {
	if prevTag == "E" || prevTag == "S" {
		return true
	}
	if closingTransitions[transition{prevTag, tag}] {
		return true
	}
	return prevTag != outsideTag && prevTag != "." && prevType != typ
}

func startOfChunk(prevTag, tag, prevType, typ string) bool {
	if tag == "B" || tag == "S" {
		return true
	}
	if openingTransitions[transition{prevTag, tag}] {
		return true
	}
	return tag != outsideTag && tag != "." && prevType != typ
}

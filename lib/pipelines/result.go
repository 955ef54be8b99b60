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

// DepEdge attaches a word to its head. Arc 0 is the virtual root and word
// indices are 1-based.
type DepEdge struct {
	Arc int    `json:"arc"`
	Rel string `json:"rel"`
}

// SDPEdge is one labelled edge of a semantic dependency graph from word Src
// to its head Tgt, 0 being the virtual root.
type SDPEdge struct {
	Src int    `json:"src"`
	Tgt int    `json:"tgt"`
	Rel string `json:"rel"`
}

// Result holds every analysis layer of one sentence. A field is nil exactly
// when its task is disabled for the loaded model.
type Result struct {
	Seg []string   `json:"seg"`
	POS []string   `json:"pos"`
	NER []string   `json:"ner"`
	SRL [][]string `json:"srl"`
	Dep []DepEdge  `json:"dep"`
	SDP []SDPEdge  `json:"sdp"`
}

// Words returns the number of segmented words.
func (r *Result) Words() int { return len(r.Seg) }

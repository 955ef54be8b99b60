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

// Package vocab loads the per-task label dictionaries of an LTP model and
// derives which analysis tasks a deployment supports.
package vocab

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

// FileName is the vocabulary file inside a model directory.
const FileName = "vocab.json"

// ErrUnknownLabel reports a label id outside a task's dictionary.
var ErrUnknownLabel = errors.New("label id out of range")

// Vocab holds the label dictionaries of every task. A nil list means the
// model was exported without that task; position in a list is the label id.
type Vocab struct {
	Seg []string `json:"seg,omitempty"`
	POS []string `json:"pos,omitempty"`
	NER []string `json:"ner,omitempty"`
	SRL []string `json:"srl,omitempty"`
	Dep []string `json:"dep,omitempty"`
	SDP []string `json:"sdp,omitempty"`
}

// Load reads a vocabulary file.
func Load(path string) (*Vocab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a vocabulary document.
func Parse(data []byte) (*Vocab, error) {
	var v Vocab
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decoding vocabulary: %w", err)
	}
	return &v, nil
}

// Labels returns the dictionary of a task, or nil when it is absent.
func (v *Vocab) Labels(task Task) []string {
	switch task {
	case Seg:
		return v.Seg
	case POS:
		return v.POS
	case NER:
		return v.NER
	case SRL:
		return v.SRL
	case Dep:
		return v.Dep
	case SDP:
		return v.SDP
	}
	return nil
}

// Label maps a label id of task to its string.
func (v *Vocab) Label(task Task, id int64) (string, error) {
	labels := v.Labels(task)
	if id < 0 || id >= int64(len(labels)) {
		return "", fmt.Errorf("%w: %s id %d, %d labels", ErrUnknownLabel, task, id, len(labels))
	}
	return labels[id], nil
}

// MapLabels maps every id of a row through the dictionary of task.
func (v *Vocab) MapLabels(task Task, ids []int64) ([]string, error) {
	out := make([]string, len(ids))
	for i, id := range ids {
		label, err := v.Label(task, id)
		if err != nil {
			return nil, err
		}
		out[i] = label
	}
	return out, nil
}

// Tasks returns the set of tasks whose dictionary is present.
func (v *Vocab) Tasks() TaskSet {
	var set TaskSet
	for _, task := range AllTasks {
		if v.Labels(task) != nil {
			set = set.With(task)
		}
	}
	return set
}

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

package vocab

import (
	"fmt"
	"strings"
)

// Task identifies one analysis layer.
type Task uint8

const (
	Seg Task = iota
	POS
	NER
	SRL
	Dep
	SDP
)

// AllTasks lists tasks in the order the scoring engine emits their outputs.
var AllTasks = []Task{Seg, POS, NER, SRL, Dep, SDP}

var taskNames = [...]string{
	Seg: "seg",
	POS: "pos",
	NER: "ner",
	SRL: "srl",
	Dep: "dep",
	SDP: "sdp",
}

func (t Task) String() string {
	if int(t) < len(taskNames) {
		return taskNames[t]
	}
	return fmt.Sprintf("task(%d)", uint8(t))
}

// OutputTensors returns how many engine outputs the task contributes.
func (t Task) OutputTensors() int {
	switch t {
	case SRL, Dep, SDP:
		return 2
	}
	return 1
}

// ParseTask parses a task name.
func ParseTask(s string) (Task, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range taskNames {
		if n == name {
			return Task(i), nil
		}
	}
	return 0, fmt.Errorf("unknown task %q", s)
}

// TaskSet is a bitset of enabled tasks, fixed when a model is loaded.
type TaskSet uint8

// NewTaskSet builds a set from tasks.
func NewTaskSet(tasks ...Task) TaskSet {
	var s TaskSet
	for _, t := range tasks {
		s = s.With(t)
	}
	return s
}

// Has reports whether task is enabled.
func (s TaskSet) Has(task Task) bool { return s&(1<<task) != 0 }

// With returns the set with task enabled.
func (s TaskSet) With(task Task) TaskSet { return s | 1<<task }

// List returns the enabled tasks in engine output order.
func (s TaskSet) List() []Task {
	var out []Task
	for _, t := range AllTasks {
		if s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

// Names returns the names of the enabled tasks in engine output order.
func (s TaskSet) Names() []string {
	tasks := s.List()
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.String()
	}
	return out
}

func (s TaskSet) String() string { return strings.Join(s.Names(), ",") }

// ExpectedOutputs returns the number of tensors the scoring engine returns
// for this set of tasks.
func (s TaskSet) ExpectedOutputs() int {
	n := 0
	for _, t := range s.List() {
		n += t.OutputTensors()
	}
	return n
}

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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	v, err := Load(filepath.Join("testdata", FileName))
	require.NoError(t, err)

	require.Len(t, v.Seg, 5)
	require.Nil(t, v.SRL)
	require.Nil(t, v.SDP)

	tasks := v.Tasks()
	require.Equal(t, NewTaskSet(Seg, POS, NER, Dep), tasks)
	require.Equal(t, "seg,pos,ner,dep", tasks.String())
	require.Equal(t, 1+1+1+2, tasks.ExpectedOutputs())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = Parse([]byte(`{"seg": [1, 2`))
	require.Error(t, err)
}

func TestLabel(t *testing.T) {
	v := &Vocab{Seg: []string{"B", "I"}}

	label, err := v.Label(Seg, 1)
	require.NoError(t, err)
	require.Equal(t, "I", label)

	_, err = v.Label(Seg, 2)
	require.ErrorIs(t, err, ErrUnknownLabel)
	_, err = v.Label(Seg, -1)
	require.ErrorIs(t, err, ErrUnknownLabel)
	_, err = v.Label(POS, 0)
	require.ErrorIs(t, err, ErrUnknownLabel)

	labels, err := v.MapLabels(Seg, []int64{0, 1, 0})
	require.NoError(t, err)
	require.Equal(t, []string{"B", "I", "B"}, labels)
}

func TestTaskSet(t *testing.T) {
	all := NewTaskSet(AllTasks...)
	require.Equal(t, 10, all.ExpectedOutputs())
	require.Equal(t, AllTasks, all.List())

	var empty TaskSet
	require.False(t, empty.Has(Seg))
	require.Empty(t, empty.List())
	require.Equal(t, "", empty.String())

	s := empty.With(SRL).With(Seg)
	require.True(t, s.Has(SRL))
	require.False(t, s.Has(Dep))
	require.Equal(t, []string{"seg", "srl"}, s.Names())
	require.Equal(t, 3, s.ExpectedOutputs())
}

func TestParseTask(t *testing.T) {
	for _, task := range AllTasks {
		got, err := ParseTask(task.String())
		require.NoError(t, err)
		require.Equal(t, task, got)
	}
	got, err := ParseTask(" SDP ")
	require.NoError(t, err)
	require.Equal(t, SDP, got)

	_, err = ParseTask("lemma")
	require.Error(t, err)
}

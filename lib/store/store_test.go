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


package store

import (
	"path/filepath"
	"testing"

	"github.com/HIT-SCIR/libltp/lib/pipelines"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results.db")
	s, err := Open(path)
	require.NoError(t, err)
	return s, path
}

func TestPutGet(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	results := []pipelines.Result{
		{
			Seg: []string{"他", "叫"},
			POS: []string{"r", "v"},
			Dep: []pipelines.DepEdge{{Arc: 2, Rel: "SBV"}, {Arc: 0, Rel: "HED"}},
		},
	}
	require.NoError(t, s.Put("k1", results))

	got, ok, err := s.Get("k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, results, got)

	_, ok, err = s.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDisabledTasksStayNull(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	require.NoError(t, s.Put("k", []pipelines.Result{{Seg: []string{}}}))
	got, ok, err := s.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotNil(t, got[0].Seg)
	assert.Nil(t, got[0].POS)
	assert.Nil(t, got[0].SDP)
}

func TestLenAndDelete(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	assert.Equal(t, 0, s.Len())
	require.NoError(t, s.Put("a", nil))
	require.NoError(t, s.Put("b", nil))
	require.NoError(t, s.Put("a", []pipelines.Result{{}}))
	assert.Equal(t, 2, s.Len())

	require.NoError(t, s.Delete("a"))
	require.NoError(t, s.Delete("a"))
	assert.Equal(t, 1, s.Len())
}

func TestReopenKeepsData(t *testing.T) {
	s, path := openTemp(t)
	require.NoError(t, s.Put("k", []pipelines.Result{{Seg: []string{"好"}}}))
	require.NoError(t, s.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, ok, err := s.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"好"}, got[0].Seg)
	assert.Equal(t, path, s.Path())
}

func TestClosed(t *testing.T) {
	s, _ := openTemp(t)
	require.NoError(t, s.Close())

	_, _, err := s.Get("k")
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, s.Put("k", nil), ErrClosed)
	assert.Equal(t, 0, s.Len())
}

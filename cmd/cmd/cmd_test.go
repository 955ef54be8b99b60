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


package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/HIT-SCIR/libltp/lib/export"
	"github.com/HIT-SCIR/libltp/lib/pipelines"
	"github.com/HIT-SCIR/libltp/lib/store"
	"github.com/HIT-SCIR/libltp/lib/vocab"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// runeAnalyzer segments every sentence into single runes.
type runeAnalyzer struct {
	calls int
}

func (a *runeAnalyzer) Analyze(_ context.Context, sentences []string) ([]pipelines.Result, error) {
	a.calls++
	results := make([]pipelines.Result, len(sentences))
	for i, s := range sentences {
		for _, r := range s {
			results[i].Seg = append(results[i].Seg, string(r))
		}
	}
	return results, nil
}

func (a *runeAnalyzer) Tasks() vocab.TaskSet { return vocab.NewTaskSet(vocab.Seg) }
func (a *runeAnalyzer) Close() error         { return nil }

func TestReadSentences(t *testing.T) {
	got, err := readSentences(strings.NewReader("ignored"), "", []string{"你好", "世界"})
	require.NoError(t, err)
	assert.Equal(t, []string{"你好", "世界"}, got)

	got, err = readSentences(strings.NewReader("第一句\n\n  第二句  \n"), "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"第一句", "第二句"}, got)

	path := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(path, []byte("甲\n乙\n"), 0o644))
	got, err = readSentences(strings.NewReader(""), path, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"甲", "乙"}, got)

	_, err = readSentences(strings.NewReader(""), filepath.Join(t.TempDir(), "missing"), nil)
	require.Error(t, err)
}

func TestAnalyzeBatches(t *testing.T) {
	sentences := []string{"一二", "三", "四五六", "七", "八"}
	a := &runeAnalyzer{}

	results, err := analyzeBatches(context.Background(), a, nil, sentences, 2, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Len(t, results, 5)
	assert.Equal(t, 3, a.calls)
	assert.Equal(t, []string{"四", "五", "六"}, results[2].Seg)
	assert.Nil(t, results[2].POS)
}

func TestAnalyzeBatchesCheckpoint(t *testing.T) {
	sentences := []string{"一二", "三", "四五六"}
	st, err := store.Open(filepath.Join(t.TempDir(), "ckpt.db"))
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	first := &runeAnalyzer{}
	want, err := analyzeBatches(context.Background(), first, st, sentences, 2, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 2, first.calls)
	assert.Equal(t, 2, st.Len())

	resumed := &runeAnalyzer{}
	got, err := analyzeBatches(context.Background(), resumed, st, sentences, 2, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 0, resumed.calls)
	assert.Equal(t, want, got)
}

func TestWriteResults(t *testing.T) {
	tasks := vocab.NewTaskSet(vocab.Seg)
	results := []pipelines.Result{{Seg: []string{"你", "好"}}, {Seg: []string{"好"}}}

	var buf bytes.Buffer
	require.NoError(t, writeResults(&buf, "json", tasks, results))
	var doc struct {
		Tasks   []string           `json:"tasks"`
		Results []pipelines.Result `json:"results"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, []string{"seg"}, doc.Tasks)
	assert.Equal(t, results, doc.Results)

	buf.Reset()
	require.NoError(t, writeResults(&buf, "jsonl", tasks, results))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"seg":["你","好"]`)
	assert.Contains(t, lines[0], `"pos":null`)

	buf.Reset()
	require.NoError(t, writeResults(&buf, "arrow", tasks, results))
	decoded, err := export.ReadArrowIPC(&buf)
	require.NoError(t, err)
	assert.Equal(t, results, decoded)
}

func TestFlagKey(t *testing.T) {
	assert.Equal(t, "max_batch_size", flagKey("max-batch-size"))
	assert.Equal(t, "gpu", flagKey("gpu"))
}

func TestResolveModelDir(t *testing.T) {
	old := modelsDir
	modelsDir = t.TempDir()
	defer func() { modelsDir = old }()

	pulled := filepath.Join(modelsDir, "LTP", "small")
	require.NoError(t, os.MkdirAll(pulled, 0o755))

	assert.Equal(t, "", resolveModelDir(""))
	assert.Equal(t, modelsDir, resolveModelDir(modelsDir))
	assert.Equal(t, pulled, resolveModelDir("LTP/small"))
	assert.Equal(t, pulled, resolveModelDir("hf:LTP/small@main"))
	assert.Equal(t, "LTP/base", resolveModelDir("LTP/base"))
}

func TestPrintTasks(t *testing.T) {
	v, err := vocab.Parse([]byte(`{"seg":["B-W","I-W"],"pos":["n","v","a"],"dep":["SBV"]}`))
	require.NoError(t, err)

	var buf bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&buf)
	require.NoError(t, printTasks(c, "/models/LTP/small", v))

	out := buf.String()
	assert.Contains(t, out, "Model: /models/LTP/small")
	assert.Regexp(t, `seg\s+2`, out)
	assert.Regexp(t, `pos\s+3`, out)
	assert.Regexp(t, `dep\s+1`, out)
	assert.NotContains(t, out, "ner")
}

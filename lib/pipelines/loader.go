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

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/HIT-SCIR/libltp/lib/backends"
	"github.com/HIT-SCIR/libltp/lib/tokenizer"
	"github.com/HIT-SCIR/libltp/lib/vocab"
)

// ModelFiles are the engine file names looked up in a model directory, in
// order of preference.
var ModelFiles = []string{"ltp.onnx", "model.onnx"}

// IsLTPModel reports whether dir looks like an LTP model directory.
func IsLTPModel(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, vocab.FileName)); err != nil {
		return false
	}
	return FindONNXFile(dir, ModelFiles) != ""
}

// LoadVocab reads and parses the vocab.json of a model directory.
func LoadVocab(modelDir string) (*vocab.Vocab, error) {
	data, err := os.ReadFile(filepath.Join(modelDir, vocab.FileName))
	if err != nil {
		return nil, newError(KindIO, "load vocab", err)
	}
	v, err := vocab.Parse(data)
	if err != nil {
		return nil, newError(KindDeserialize, "load vocab", err)
	}
	return v, nil
}

// LoadLTPPipeline loads vocab.json, the tokenizer and the engine model of a
// model directory and creates one engine session through sessionManager.
// Returns the pipeline and the backend type that was used.
func LoadLTPPipeline(
	modelDir string,
	sessionManager *backends.SessionManager,
	modelBackends []string,
	opts ...Option,
) (*LTPPipeline, backends.BackendType, error) {
	o := applyOptions(opts)
	start := time.Now()

	v, err := LoadVocab(modelDir)
	if err != nil {
		return nil, "", err
	}

	tok, err := tokenizer.Load(modelDir)
	if err != nil {
		kind := KindDeserialize
		if errors.Is(err, tokenizer.ErrNoTokenizer) || errors.Is(err, fs.ErrNotExist) {
			kind = KindIO
		}
		return nil, "", newError(kind, "load tokenizer", err)
	}

	modelFile := FindONNXFile(modelDir, ModelFiles)
	if modelFile == "" {
		_ = tok.Close()
		return nil, "", errorf(KindIO, "load model", "no %v in %s", ModelFiles, modelDir)
	}

	session, backendType, err := sessionManager.CreateSession(modelFile, modelBackends, o.sessionOpts...)
	if err != nil {
		_ = tok.Close()
		return nil, "", newError(KindEngine, "load model", err)
	}

	p, err := New(tok, session, v, opts...)
	if err != nil {
		_ = session.Close()
		_ = tok.Close()
		return nil, "", err
	}

	o.logger.Info("Loaded LTP model",
		zap.String("dir", modelDir),
		zap.String("model", filepath.Base(modelFile)),
		zap.String("backend", string(backendType)),
		zap.Stringer("tasks", p.Tasks()),
		zap.Duration("took", time.Since(start)))
	return p, backendType, nil
}

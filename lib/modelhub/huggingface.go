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


// Package modelhub pulls LTP model bundles from the HuggingFace Hub into a
// local models directory.
package modelhub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/HIT-SCIR/libltp/lib/pipelines"
	"github.com/HIT-SCIR/libltp/lib/tokenizer"
	"github.com/HIT-SCIR/libltp/lib/vocab"
	"github.com/gomlx/go-huggingface/hub"
	"go.uber.org/zap"
)

// ErrIncompleteModel is returned when a repository lacks the files needed
// to load a pipeline.
var ErrIncompleteModel = errors.New("repository does not contain an LTP model")

// ProgressHandler is called to report download progress.
type ProgressHandler func(downloaded, total int64, filename string)

// repository is the subset of *hub.Repo the client needs.
type repository interface {
	IterFileNames() iter.Seq2[string, error]
	DownloadFile(fileName string) (string, error)
}

// Client pulls model repositories from the HuggingFace Hub.
type Client struct {
	token           string
	cacheDir        string
	progressHandler ProgressHandler
	logger          *zap.Logger

	newRepo func(ref RepoRef) repository
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithToken sets the HuggingFace API token for gated repositories.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithCacheDir overrides the hub download cache directory.
func WithCacheDir(dir string) ClientOption {
	return func(c *Client) { c.cacheDir = dir }
}

// WithProgressHandler sets the progress handler for downloads.
func WithProgressHandler(h ProgressHandler) ClientOption {
	return func(c *Client) { c.progressHandler = h }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a new hub client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.newRepo = c.hubRepo
	return c
}

func (c *Client) hubRepo(ref RepoRef) repository {
	repo := hub.New(ref.RepoID())
	if c.token != "" {
		repo = repo.WithAuth(c.token)
	}
	if ref.Revision != "" {
		repo = repo.WithRevision(ref.Revision)
	}
	if c.cacheDir != "" {
		repo = repo.WithCacheDir(c.cacheDir)
	}
	return repo
}

// ListRepoFiles returns every file name in the repository.
func (c *Client) ListRepoFiles(ctx context.Context, repoID string) ([]string, error) {
	ref, err := ParseRepoID(repoID)
	if err != nil {
		return nil, err
	}
	return c.listFiles(ctx, c.newRepo(ref))
}

func (c *Client) listFiles(ctx context.Context, repo repository) ([]string, error) {
	var files []string
	for fileName, err := range repo.IterFileNames() {
		if err != nil {
			return nil, fmt.Errorf("listing files: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files = append(files, fileName)
	}
	return files, nil
}

// Pull downloads the files of an LTP model into destDir/owner/name and
// returns that directory. The model file and vocab.json must be present in
// the repository.
func (c *Client) Pull(ctx context.Context, repoID string, destDir string) (string, error) {
	ref, err := ParseRepoID(repoID)
	if err != nil {
		return "", fmt.Errorf("parsing repo ID: %w", err)
	}
	repo := c.newRepo(ref)

	files, err := c.listFiles(ctx, repo)
	if err != nil {
		return "", err
	}
	toDownload, err := SelectModelFiles(files)
	if err != nil {
		return "", fmt.Errorf("%s: %w", ref, err)
	}

	modelDir := filepath.Join(destDir, ref.DirPath())
	if err := os.MkdirAll(modelDir, 0755); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}

	for _, fileName := range toDownload {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		localPath, err := repo.DownloadFile(fileName)
		if err != nil {
			return "", fmt.Errorf("downloading %s: %w", fileName, err)
		}

		// Flatten "onnx/ltp.onnx" to "ltp.onnx".
		destName := filepath.Base(fileName)
		destPath := filepath.Join(modelDir, destName)
		if c.progressHandler != nil {
			c.progressHandler(0, 0, destName)
		}
		if err := copyFile(localPath, destPath); err != nil {
			return "", fmt.Errorf("copying %s: %w", fileName, err)
		}
		if c.progressHandler != nil {
			if info, err := os.Stat(destPath); err == nil {
				c.progressHandler(info.Size(), info.Size(), destName)
			}
		}
		c.logger.Debug("Downloaded model file",
			zap.String("repo", ref.RepoID()),
			zap.String("file", destName))
	}

	if err := writeManifest(modelDir, ref); err != nil {
		c.logger.Warn("Failed to write model manifest", zap.Error(err))
	}

	c.logger.Info("Pulled LTP model",
		zap.String("repo", ref.String()),
		zap.String("path", modelDir),
		zap.Int("files", len(toDownload)))
	return modelDir, nil
}

// auxiliaryFiles are downloaded when present.
var auxiliaryFiles = []string{
	tokenizer.VocabFile,
	tokenizer.TokenizerFile,
	"tokenizer_config.json",
	"special_tokens_map.json",
	"config.json",
}

// SelectModelFiles picks the files a pipeline needs out of a repository
// listing: vocab.json, the first model file by preference order (with its
// external data file), and the tokenizer and config files. It returns
// ErrIncompleteModel when vocab.json, the model file or every tokenizer
// file is missing.
func SelectModelFiles(files []string) ([]string, error) {
	byBase := make(map[string]string, len(files))
	for _, f := range files {
		base := filepath.Base(f)
		// Prefer the shallowest copy of a file.
		if prev, ok := byBase[base]; !ok || strings.Count(f, "/") < strings.Count(prev, "/") {
			byBase[base] = f
		}
	}

	vocabFile, ok := byBase[vocab.FileName]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrIncompleteModel, vocab.FileName)
	}
	_, hasWordPiece := byBase[tokenizer.VocabFile]
	_, hasHF := byBase[tokenizer.TokenizerFile]
	if !hasWordPiece && !hasHF {
		return nil, fmt.Errorf("%w: missing %s or %s", ErrIncompleteModel,
			tokenizer.VocabFile, tokenizer.TokenizerFile)
	}

	var model string
	for _, name := range pipelines.ModelFiles {
		if f, ok := byBase[name]; ok {
			model = f
			break
		}
	}
	if model == "" {
		return nil, fmt.Errorf("%w: missing model file (%s)", ErrIncompleteModel,
			strings.Join(pipelines.ModelFiles, ", "))
	}

	result := []string{vocabFile, model}
	for _, suffix := range []string{"_data", ".data"} {
		if f, ok := byBase[filepath.Base(model)+suffix]; ok {
			result = append(result, f)
		}
	}
	for _, name := range auxiliaryFiles {
		if f, ok := byBase[name]; ok {
			result = append(result, f)
		}
	}
	return result, nil
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer func() { _ = srcFile.Close() }()

	dstFile, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return fmt.Errorf("copying: %w", err)
	}

	return dstFile.Close()
}

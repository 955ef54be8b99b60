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


// Package cli provides the model management functions behind the ltp
// binary's pull and list commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/HIT-SCIR/libltp/lib/modelhub"
	"github.com/HIT-SCIR/libltp/lib/pipelines"
)

// PullOptions contains options for pulling models from the HuggingFace Hub
type PullOptions struct {
	ModelsDir string
	HFToken   string
	CacheDir  string
}

// ListOptions contains options for listing models
type ListOptions struct {
	ModelsDir  string
	BinaryName string // Used for help messages
	Out        io.Writer
}

// Pull downloads an LTP model repository into opts.ModelsDir and returns
// the local model directory.
func Pull(repoRef string, opts PullOptions) (string, error) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hfToken := opts.HFToken
	if hfToken == "" {
		hfToken = os.Getenv("HF_TOKEN")
	}

	client := modelhub.NewClient(
		modelhub.WithToken(hfToken),
		modelhub.WithCacheDir(opts.CacheDir),
		modelhub.WithProgressHandler(PrintProgress),
	)

	fmt.Printf("Pulling from HuggingFace: %s\n", repoRef)
	fmt.Println("Downloading files...")

	modelDir, err := client.Pull(ctx, repoRef, opts.ModelsDir)
	if err != nil {
		return "", fmt.Errorf("failed to pull model: %w", err)
	}

	fmt.Printf("\n✓ Model pulled successfully to %s\n", modelDir)
	return modelDir, nil
}

// LocalModel describes an LTP model directory found under a models directory.
type LocalModel struct {
	Name   string
	Path   string
	Tasks  string
	Size   int64
	Source string
}

// FindLocalModels returns the LTP models directly below modelsDir or one
// owner level deeper (modelsDir/owner/name), sorted by name.
func FindLocalModels(modelsDir string) ([]LocalModel, error) {
	var models []LocalModel
	err := filepath.WalkDir(modelsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == modelsDir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(modelsDir, path)
		if depth := strings.Count(rel, string(filepath.Separator)); rel != "." && depth > 1 {
			return filepath.SkipDir
		}
		if !pipelines.IsLTPModel(path) {
			return nil
		}

		m := LocalModel{Name: filepath.ToSlash(rel), Path: path, Size: dirSize(path)}
		if v, err := pipelines.LoadVocab(path); err == nil {
			m.Tasks = v.Tasks().String()
		}
		if manifest, err := modelhub.LoadManifest(path); err == nil {
			m.Source = manifest.Source
			if manifest.Revision != "" {
				m.Source += "@" + manifest.Revision
			}
		}
		models = append(models, m)
		return filepath.SkipDir
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models, nil
}

func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

// ListLocalModels prints the locally installed LTP models as a table.
func ListLocalModels(opts ListOptions) error {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	binaryName := opts.BinaryName
	if binaryName == "" {
		binaryName = "ltp"
	}

	_, _ = fmt.Fprintf(out, "Local models in %s:\n\n", opts.ModelsDir)

	models, err := FindLocalModels(opts.ModelsDir)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if len(models) == 0 {
		_, _ = fmt.Fprintln(out, "No models found locally.")
		_, _ = fmt.Fprintf(out, "\nUse '%s pull <owner/name>' to download a model.\n", binaryName)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tTASKS\tSIZE\tSOURCE")
	for _, m := range models {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.Name, m.Tasks, FormatBytes(m.Size), m.Source)
	}
	return w.Flush()
}

// FormatBytes formats a byte count for display.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// PrintProgress prints a download progress bar.
func PrintProgress(downloaded, total int64, filename string) {
	if total <= 0 {
		fmt.Printf("\r  %s: %s", filename, FormatBytes(downloaded))
		return
	}

	percent := float64(downloaded) / float64(total) * 100
	barWidth := 30
	filled := int(float64(barWidth) * float64(downloaded) / float64(total))

	bar := strings.Repeat("=", filled) + strings.Repeat("-", barWidth-filled)
	fmt.Printf("\r  %s: [%s] %.1f%% (%s/%s)",
		filename, bar, percent, FormatBytes(downloaded), FormatBytes(total))

	if downloaded >= total {
		fmt.Println()
	}
}

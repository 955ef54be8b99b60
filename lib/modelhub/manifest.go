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


package modelhub

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goccy/go-json"
)

// ManifestFilename is written next to pulled model files.
const ManifestFilename = "ltp_manifest.json"

// FileInfo describes one file of a pulled model.
type FileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Manifest records where a local model came from.
type Manifest struct {
	Source       string     `json:"source"`
	Revision     string     `json:"revision,omitempty"`
	Files        []FileInfo `json:"files"`
	DownloadedAt time.Time  `json:"downloaded_at"`
}

// LoadManifest reads the manifest of a pulled model directory.
func LoadManifest(modelDir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(modelDir, ManifestFilename))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ManifestFilename, err)
	}
	return &m, nil
}

func writeManifest(modelDir string, ref RepoRef) error {
	entries, err := os.ReadDir(modelDir)
	if err != nil {
		return fmt.Errorf("scanning files: %w", err)
	}

	m := Manifest{
		Source:       ref.RepoID(),
		Revision:     ref.Revision,
		DownloadedAt: time.Now().UTC(),
	}
	for _, e := range entries {
		if e.IsDir() || e.Name() == ManifestFilename {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		m.Files = append(m.Files, FileInfo{Name: e.Name(), Size: info.Size()})
	}
	sort.Slice(m.Files, func(i, j int) bool { return m.Files[i].Name < m.Files[j].Name })

	data, err := json.MarshalIndent(&m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(modelDir, ManifestFilename), data, 0644)
}

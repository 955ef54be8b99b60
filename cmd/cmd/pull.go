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
	"fmt"

	"github.com/HIT-SCIR/libltp/lib/cli"
	"github.com/spf13/cobra"
)

var pullCmd = &cobra.Command{
	Use:   "pull <owner/name[@revision]> [...]",
	Short: "Pull LTP model(s) from the HuggingFace Hub",
	Long: `Download one or more exported LTP models from the HuggingFace Hub.

Only the files needed for analysis are fetched: vocab.json, the ONNX
model (with its external data file), and the tokenizer files. Models are
stored under <models-dir>/<owner>/<name>/ together with an
ltp_manifest.json describing the download.

Examples:
  # Pull a model
  ltp pull LTP/small

  # Pull a specific revision
  ltp pull LTP/base@v4.2

  # Pull a gated model
  ltp pull --hf-token $HF_TOKEN myorg/ltp-legal`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPull,
}

func init() {
	rootCmd.AddCommand(pullCmd)

	pullCmd.Flags().String("hf-token", "",
		"HuggingFace API token for gated models (or use HF_TOKEN env var)")
	pullCmd.Flags().String("cache-dir", "",
		"HuggingFace download cache directory")
}

func runPull(cmd *cobra.Command, args []string) error {
	hfToken, _ := cmd.Flags().GetString("hf-token")
	cacheDir, _ := cmd.Flags().GetString("cache-dir")

	for _, modelRef := range args {
		fmt.Printf("\n=== Pulling %s ===\n", modelRef)

		if _, err := cli.Pull(modelRef, cli.PullOptions{
			ModelsDir: modelsDir,
			HFToken:   hfToken,
			CacheDir:  cacheDir,
		}); err != nil {
			return fmt.Errorf("failed to pull %s: %w", modelRef, err)
		}
	}

	return nil
}

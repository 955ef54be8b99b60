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
	"text/tabwriter"

	"github.com/HIT-SCIR/libltp/lib/pipelines"
	"github.com/HIT-SCIR/libltp/lib/vocab"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks [model-dir]",
	Short: "Show the tasks a model supports",
	Long: `Print the tasks an LTP model was exported with and the size of each
task's label dictionary, read from the model's vocab.json.

Examples:
  ltp tasks LTP/small
  ltp tasks --model-dir ./ltp-small`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTasks,
}

func init() {
	rootCmd.AddCommand(tasksCmd)
}

func runTasks(cmd *cobra.Command, args []string) error {
	ref := viper.GetString("model_dir")
	if len(args) == 1 {
		ref = args[0]
	}
	if ref == "" {
		return fmt.Errorf("no model given: pass a model directory or --model-dir")
	}
	dir := resolveModelDir(ref)

	v, err := pipelines.LoadVocab(dir)
	if err != nil {
		return err
	}
	return printTasks(cmd, dir, v)
}

func printTasks(cmd *cobra.Command, dir string, v *vocab.Vocab) error {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Model: %s\n\n", dir)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TASK\tLABELS")
	for _, task := range v.Tasks().List() {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", task, len(v.Labels(task)))
	}
	return w.Flush()
}

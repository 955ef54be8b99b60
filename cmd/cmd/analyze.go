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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/HIT-SCIR/libltp"
	"github.com/HIT-SCIR/libltp/lib/analysis"
	"github.com/HIT-SCIR/libltp/lib/export"
	"github.com/HIT-SCIR/libltp/lib/pipelines"
	"github.com/HIT-SCIR/libltp/lib/store"
	"github.com/HIT-SCIR/libltp/lib/vocab"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [sentence...]",
	Short: "Analyze sentences with a local model",
	Long: `Run the LTP pipeline over sentences without starting a server.

Sentences come from the arguments, from --input (one sentence per line,
"-" for stdin), or from stdin when neither is given.

Output formats:
  json     one document with the task list and all results (default)
  jsonl    one result object per line
  arrow    Arrow IPC stream
  parquet  Parquet file (requires --output)

With --checkpoint, finished batches are stored in a bbolt file and reused
when the same input is analyzed again, so an interrupted run resumes where
it stopped.

Examples:
  ltp analyze --model-dir LTP/small "他叫汤姆去拿外衣。"
  ltp analyze --model-dir LTP/small --input corpus.txt --format jsonl
  ltp analyze --model-dir LTP/small --input corpus.txt --format parquet --output corpus.parquet --checkpoint corpus.db`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringP("input", "i", "", `file with one sentence per line ("-" for stdin)`)
	analyzeCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
	analyzeCmd.Flags().StringP("format", "f", "json", "output format (json, jsonl, arrow, parquet)")
	analyzeCmd.Flags().Int("batch-size", analysis.DefaultMaxBatchSize, "sentences per analysis call")
	analyzeCmd.Flags().String("checkpoint", "", "bbolt file used to resume interrupted runs")
	analyzeCmd.Flags().BoolP("verbose", "v", false, "log progress to stderr")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	input, _ := cmd.Flags().GetString("input")
	output, _ := cmd.Flags().GetString("output")
	format, _ := cmd.Flags().GetString("format")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	checkpoint, _ := cmd.Flags().GetString("checkpoint")
	verbose, _ := cmd.Flags().GetBool("verbose")

	switch format {
	case "json", "jsonl", "arrow":
	case "parquet":
		if output == "" {
			return fmt.Errorf("--format parquet requires --output")
		}
	default:
		return fmt.Errorf("unknown format %q (expected json, jsonl, arrow or parquet)", format)
	}
	if batchSize <= 0 {
		return fmt.Errorf("--batch-size must be positive, got %d", batchSize)
	}

	sentences, err := readSentences(cmd.InOrStdin(), input, args)
	if err != nil {
		return err
	}
	if len(sentences) == 0 {
		return fmt.Errorf("no sentences to analyze")
	}

	logger := newCLILogger(verbose)
	defer func() { _ = logger.Sync() }()

	analyzer, backendUsed, release, err := libltp.LoadAnalyzer(serviceConfig(), logger)
	if err != nil {
		return err
	}
	defer release()
	logger.Info("Model loaded",
		zap.String("backend", string(backendUsed)),
		zap.Stringer("tasks", analyzer.Tasks()))

	var st *store.Store
	if checkpoint != "" {
		if st, err = store.Open(checkpoint); err != nil {
			return err
		}
		defer func() { _ = st.Close() }()
	}

	results, err := analyzeBatches(ctx, analyzer, st, sentences, batchSize, logger)
	if err != nil {
		return err
	}

	if format == "parquet" {
		return export.WriteParquet(output, sentences, results)
	}

	w := cmd.OutOrStdout()
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	return writeResults(w, format, analyzer.Tasks(), results)
}

// analyzeBatches runs the analyzer over sentences in batches. Batches found
// in st are reused and new batches are written to it.
func analyzeBatches(
	ctx context.Context,
	analyzer analysis.Analyzer,
	st *store.Store,
	sentences []string,
	batchSize int,
	logger *zap.Logger,
) ([]pipelines.Result, error) {
	results := make([]pipelines.Result, 0, len(sentences))
	for start := 0; start < len(sentences); start += batchSize {
		end := min(start+batchSize, len(sentences))
		batch := sentences[start:end]

		var key string
		if st != nil {
			key = libltp.CacheKey(analyzer.Tasks(), batch)
			cached, ok, err := st.Get(key)
			if err != nil {
				return nil, err
			}
			if ok && len(cached) == len(batch) {
				results = append(results, cached...)
				logger.Debug("Batch restored from checkpoint", zap.Int("start", start))
				continue
			}
		}

		out, err := analyzer.Analyze(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("analyzing sentences %d-%d: %w", start, end-1, err)
		}
		if st != nil {
			if err := st.Put(key, out); err != nil {
				return nil, err
			}
		}
		results = append(results, out...)
		logger.Info("Batch analyzed", zap.Int("done", end), zap.Int("total", len(sentences)))
	}
	return results, nil
}

func readSentences(stdin io.Reader, input string, args []string) ([]string, error) {
	if len(args) > 0 && input == "" {
		return args, nil
	}

	r := stdin
	if input != "" && input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return nil, fmt.Errorf("opening input: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	sentences := append([]string(nil), args...)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			sentences = append(sentences, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return sentences, nil
}

func writeResults(w io.Writer, format string, tasks vocab.TaskSet, results []pipelines.Result) error {
	switch format {
	case "arrow":
		return export.WriteArrowIPC(w, results)
	case "jsonl":
		enc := json.NewEncoder(w)
		for i := range results {
			if err := enc.Encode(&results[i]); err != nil {
				return err
			}
		}
		return nil
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(libltp.AnalyzeResponse{
			Tasks:   tasks.Names(),
			Results: results,
		})
	}
}

func newCLILogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

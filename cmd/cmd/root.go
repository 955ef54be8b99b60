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
	"os"
	"path/filepath"
	"strings"

	"github.com/HIT-SCIR/libltp"
	"github.com/HIT-SCIR/libltp/lib/modelhub"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version is the binary version reported by the server and `ltp --version`.
var Version = "dev"

var (
	cfgFile   string
	modelsDir string
)

var rootCmd = &cobra.Command{
	Use:   "ltp",
	Short: "LTP Chinese language analysis",
	Long: `ltp runs an exported LTP multi-task model for Chinese word segmentation,
part-of-speech tagging, named entity recognition, semantic role labeling,
dependency parsing and semantic dependency parsing.

Configuration is read from --config, then ~/.ltp/config.yaml, and can be
overridden with LTP_* environment variables (for example LTP_MODEL_DIR).`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		libltp.Version = Version
		cmd.Root().Version = Version
	},
}

// Execute runs the root command.
func Execute() {
	rootCmd.Version = Version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.ltp/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&modelsDir, "models-dir", defaultModelsDir(), "directory holding downloaded models")
	rootCmd.PersistentFlags().String("model-dir", "", "LTP model directory used for analysis")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-style", "", "log output style")


	// Engine flags shared by run and analyze
	rootCmd.PersistentFlags().StringSlice("backend-priority", nil, "backend specs in order of preference (e.g. onnx:cuda,go)")
	rootCmd.PersistentFlags().String("gpu", "", "GPU mode (auto, cuda, coreml, off)")
	rootCmd.PersistentFlags().Int("num-threads", 0, "intra-op threads per engine session")
	rootCmd.PersistentFlags().String("optimization-level", "", "graph optimization level (disabled, basic, extended, all)")
	rootCmd.PersistentFlags().Int("pool-size", 0, "number of engine sessions (0 = CPU count)")
	rootCmd.PersistentFlags().Int("max-batch-size", 0, "maximum sentences per engine call")
	rootCmd.PersistentFlags().Int("max-length", 0, "maximum tokens per sentence")

	for _, name := range []string{
		"model-dir", "backend-priority", "gpu", "num-threads", "optimization-level",
		"pool-size", "max-batch-size", "max-length",
	} {
		mustBindPFlag(flagKey(name), rootCmd.PersistentFlags().Lookup(name))
	}
	mustBindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	mustBindPFlag("log.style", rootCmd.PersistentFlags().Lookup("log-style"))

	viper.SetDefault("api_url", libltp.DefaultApiUrl)
}

func initConfig() {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	viper.SetEnvPrefix("LTP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".ltp"))
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			os.Exit(1)
		}
	}
}

func defaultModelsDir() string {
	if dir := os.Getenv("LTP_MODELS_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "models"
	}
	return filepath.Join(home, ".ltp", "models")
}

// flagKey maps a flag name to its viper key.
func flagKey(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("binding flag %q: %v", key, err))
	}
}

// serviceConfig builds a libltp.Config from viper keys and flags.
func serviceConfig() libltp.Config {
	return libltp.Config{
		ApiUrl:                viper.GetString("api_url"),
		ModelDir:              resolveModelDir(viper.GetString("model_dir")),
		BackendPriority:       viper.GetStringSlice("backend_priority"),
		Gpu:                   viper.GetString("gpu"),
		NumThreads:            viper.GetInt("num_threads"),
		OptimizationLevel:     viper.GetString("optimization_level"),
		PoolSize:              viper.GetInt("pool_size"),
		MaxBatchSize:          viper.GetInt("max_batch_size"),
		MaxLength:             viper.GetInt("max_length"),
		MaxConcurrentRequests: viper.GetInt("max_concurrent_requests"),
		MaxQueueSize:          viper.GetInt("max_queue_size"),
		RequestTimeout:        viper.GetString("request_timeout"),
		CacheTTL:              viper.GetString("cache_ttl"),
		StorePath:             viper.GetString("store_path"),
	}
}

// resolveModelDir accepts either a path or an owner/name reference to a
// model pulled into modelsDir.
func resolveModelDir(ref string) string {
	if ref == "" {
		return ""
	}
	if _, err := os.Stat(ref); err == nil {
		return ref
	}
	if repo, err := modelhub.ParseRepoID(ref); err == nil {
		pulled := filepath.Join(modelsDir, repo.DirPath())
		if _, err := os.Stat(pulled); err == nil {
			return pulled
		}
	}
	return ref
}

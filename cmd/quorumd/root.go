// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teradata-labs/quorum/internal/version"
)

var (
	cfgFile string
	config  *Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:     "quorumd",
	Short:   "Quorum - Multi-agent autonomous LLM orchestration runtime",
	Long:    `Quorum (quorumd) runs a population of autonomous LLM agents - an admin, project managers, workers, and a constitutional guardian - with XML tool calling, provider failover, and session persistence.`,
	Version: version.Get(),
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $QUORUM_DATA_DIR/quorumd.yaml)")

	// Server flags
	rootCmd.PersistentFlags().Int("http-port", 8420, "HTTP/SSE server port")
	rootCmd.PersistentFlags().String("host", "127.0.0.1", "HTTP server host")

	// LLM flags
	rootCmd.PersistentFlags().String("provider", "openrouter", "default LLM provider binding for new agents")
	rootCmd.PersistentFlags().String("model", "", "default model ID for new agents (empty = auto-select from discovery)")
	rootCmd.PersistentFlags().Float64("temperature", 0.7, "LLM temperature")
	rootCmd.PersistentFlags().String("model-tier", "FREE", "model eligibility tier (LOCAL, FREE, ALL)")
	rootCmd.PersistentFlags().Bool("scan", false, "enable LAN scan for local inference servers")

	// Runtime flags
	rootCmd.PersistentFlags().Int("max-cycle-turns", 5, "maximum internal turns per agent cycle")
	rootCmd.PersistentFlags().Int("max-stream-retries", 3, "maximum reactivation retries after unproductive cycles")
	rootCmd.PersistentFlags().Int("max-workers-per-pm", 4, "default worker head-count per PM team build")
	rootCmd.PersistentFlags().Int("pm-manage-check-interval", 60, "seconds between PM manage-state checks")

	// Storage flags
	rootCmd.PersistentFlags().String("db", "", "SQLite database path (default: $QUORUM_DATA_DIR/quorum.db)")
	rootCmd.PersistentFlags().String("projects-dir", "", "base directory for agent sandboxes (default: $QUORUM_DATA_DIR/projects)")

	// Logging flags
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "Log format (json, console)")

	// Bind flags to viper
	_ = viper.BindPFlag("server.http_port", rootCmd.PersistentFlags().Lookup("http-port"))
	_ = viper.BindPFlag("server.host", rootCmd.PersistentFlags().Lookup("host"))

	_ = viper.BindPFlag("llm.default_provider", rootCmd.PersistentFlags().Lookup("provider"))
	_ = viper.BindPFlag("llm.default_model", rootCmd.PersistentFlags().Lookup("model"))
	_ = viper.BindPFlag("llm.temperature", rootCmd.PersistentFlags().Lookup("temperature"))
	_ = viper.BindPFlag("llm.model_tier", rootCmd.PersistentFlags().Lookup("model-tier"))
	_ = viper.BindPFlag("llm.local_api_scan_enabled", rootCmd.PersistentFlags().Lookup("scan"))

	_ = viper.BindPFlag("runtime.max_cycle_turns", rootCmd.PersistentFlags().Lookup("max-cycle-turns"))
	_ = viper.BindPFlag("runtime.max_stream_retries", rootCmd.PersistentFlags().Lookup("max-stream-retries"))
	_ = viper.BindPFlag("runtime.max_workers_per_pm", rootCmd.PersistentFlags().Lookup("max-workers-per-pm"))
	_ = viper.BindPFlag("runtime.pm_manage_check_interval_seconds", rootCmd.PersistentFlags().Lookup("pm-manage-check-interval"))

	_ = viper.BindPFlag("storage.db_path", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("storage.projects_base_dir", rootCmd.PersistentFlags().Lookup("projects-dir"))

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))

	// Bare environment names kept for operators migrating older deployments
	_ = viper.BindEnv("llm.model_tier", "QUORUM_LLM_MODEL_TIER", "MODEL_TIER")
	_ = viper.BindEnv("llm.local_api_scan_enabled", "QUORUM_LLM_LOCAL_API_SCAN_ENABLED", "LOCAL_API_SCAN_ENABLED")
	_ = viper.BindEnv("runtime.max_cycle_turns", "QUORUM_RUNTIME_MAX_CYCLE_TURNS", "MAX_CYCLE_TURNS")
	_ = viper.BindEnv("runtime.max_stream_retries", "QUORUM_RUNTIME_MAX_STREAM_RETRIES", "MAX_STREAM_RETRIES")
	_ = viper.BindEnv("runtime.max_workers_per_pm", "QUORUM_RUNTIME_MAX_WORKERS_PER_PM", "MAX_WORKERS_PER_PM")
	_ = viper.BindEnv("runtime.pm_manage_check_interval_seconds", "QUORUM_RUNTIME_PM_MANAGE_CHECK_INTERVAL_SECONDS", "PM_MANAGE_CHECK_INTERVAL_SECONDS")
	_ = viper.BindEnv("storage.projects_base_dir", "QUORUM_STORAGE_PROJECTS_BASE_DIR", "PROJECTS_BASE_DIR")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	var err error
	config, err = LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
}

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
	"path/filepath"

	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"

	"github.com/teradata-labs/quorum/pkg/workflow"
)

const (
	// ServiceName for keyring storage
	ServiceName = "quorum"
	// DefaultConfigFileName is the name of the config file
	DefaultConfigFileName = "quorumd"
)

// Config holds all configuration for the quorum daemon.
// Priority: CLI flags > config file > env vars > defaults
type Config struct {
	// DataDir is the quorum data directory. Computed from QUORUM_DATA_DIR
	// or ~/.quorum; not loaded from the config file.
	DataDir string `mapstructure:"-"`

	Server   ServerConfig   `mapstructure:"server"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Runtime  RuntimeConfig  `mapstructure:"runtime"`
	Guardian GuardianConfig `mapstructure:"guardian"`
	Prompts  PromptsConfig  `mapstructure:"prompts"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds the HTTP/SSE server configuration.
type ServerConfig struct {
	Host     string `mapstructure:"host"`
	HTTPPort int    `mapstructure:"http_port"`
}

// RemoteProviderConfig describes one extra OpenAI-compatible remote
// catalog beyond the built-in openrouter/openai/anthropic providers.
type RemoteProviderConfig struct {
	Name    string `mapstructure:"name"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// LLMConfig holds provider bindings, key pools, and discovery settings.
type LLMConfig struct {
	DefaultProvider string  `mapstructure:"default_provider"`
	DefaultModel    string  `mapstructure:"default_model"`
	Temperature     float64 `mapstructure:"temperature"`

	// ModelTier gates discovery and failover eligibility: LOCAL, FREE, ALL.
	ModelTier string `mapstructure:"model_tier"`

	// ProviderAPIKeys maps provider name to its key pool.
	ProviderAPIKeys map[string][]string `mapstructure:"provider_api_keys"`

	// ContextWindow is the token budget assumed per model for the
	// summarization trigger.
	ContextWindow int `mapstructure:"context_window"`

	// Local discovery
	LocalEndpoints     []string `mapstructure:"local_endpoints"`
	ScanEnabled        bool     `mapstructure:"local_api_scan_enabled"`
	ScanHosts          []string `mapstructure:"local_api_scan_hosts"`
	ScanPorts          []int    `mapstructure:"local_api_scan_ports"`
	ScanTimeoutSeconds int      `mapstructure:"local_api_scan_timeout_seconds"`

	RemoteProviders []RemoteProviderConfig `mapstructure:"remote_providers"`
}

// RuntimeConfig holds the cycle engine limits.
type RuntimeConfig struct {
	MaxCycleTurns                int `mapstructure:"max_cycle_turns"`
	MaxStreamRetries             int `mapstructure:"max_stream_retries"`
	MaxWorkersPerPM              int `mapstructure:"max_workers_per_pm"`
	PMManageUnproductiveLimit    int `mapstructure:"pm_manage_unproductive_limit"`
	PMManageCheckIntervalSeconds int `mapstructure:"pm_manage_check_interval_seconds"`
}

// GuardianConfig holds the constitutional guardian settings.
type GuardianConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`

	Principles []workflow.GovernancePrinciple `mapstructure:"governance_principles"`

	// ContaminationPatterns override the built-in cross-talk markers.
	ContaminationPatterns []string `mapstructure:"contamination_patterns"`
}

// PromptsConfig holds the prompt registry settings.
type PromptsConfig struct {
	// Dir enables the hot-reloading file registry when set.
	Dir string `mapstructure:"dir"`

	// Overrides replace named prompts in-place (file or built-in).
	Overrides map[string]string `mapstructure:"overrides"`
}

// StorageConfig holds persistence paths and session identity.
type StorageConfig struct {
	DBPath          string `mapstructure:"db_path"`
	ProjectsBaseDir string `mapstructure:"projects_base_dir"`
	SnapshotDir     string `mapstructure:"snapshot_dir"`

	ProjectName string `mapstructure:"project_name"`
	SessionName string `mapstructure:"session_name"`
}

// LoggingConfig holds zap settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// GetDataDir returns the quorum data directory, respecting QUORUM_DATA_DIR.
func GetDataDir() string {
	if dir := os.Getenv("QUORUM_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".quorum"
	}
	return filepath.Join(home, ".quorum")
}

// LoadConfig loads configuration from file, environment, and defaults.
func LoadConfig(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config search paths (in order of priority)
		viper.AddConfigPath(GetDataDir())
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/quorum/")
		viper.SetConfigName(DefaultConfigFileName)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file %s: %w", viper.ConfigFileUsed(), err)
		}
		// Config file not found; using defaults + env vars + flags
	}

	viper.SetEnvPrefix("QUORUM")
	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.DataDir = GetDataDir()
	if config.Storage.DBPath == "" {
		config.Storage.DBPath = filepath.Join(config.DataDir, "quorum.db")
	}
	if config.Storage.ProjectsBaseDir == "" {
		config.Storage.ProjectsBaseDir = filepath.Join(config.DataDir, "projects")
	}
	if config.Storage.SnapshotDir == "" {
		config.Storage.SnapshotDir = filepath.Join(config.DataDir, "snapshots")
	}

	// Keyring keys fill in for providers with no configured pool.
	// Non-fatal: the keyring might not be available on headless hosts.
	_ = loadKeysFromKeyring(&config)

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.http_port", 8420)

	// LLM defaults
	viper.SetDefault("llm.default_provider", "openrouter")
	viper.SetDefault("llm.temperature", 0.7)
	viper.SetDefault("llm.model_tier", "FREE")
	viper.SetDefault("llm.context_window", 8192)
	viper.SetDefault("llm.local_endpoints", []string{"http://127.0.0.1:11434", "http://127.0.0.1:1234"})
	viper.SetDefault("llm.local_api_scan_enabled", false)
	viper.SetDefault("llm.local_api_scan_ports", []int{11434, 1234, 8080})
	viper.SetDefault("llm.local_api_scan_timeout_seconds", 2)

	// Runtime defaults
	viper.SetDefault("runtime.max_cycle_turns", 5)
	viper.SetDefault("runtime.max_stream_retries", 3)
	viper.SetDefault("runtime.max_workers_per_pm", 4)
	viper.SetDefault("runtime.pm_manage_unproductive_limit", 3)
	viper.SetDefault("runtime.pm_manage_check_interval_seconds", 60)

	// Guardian defaults
	viper.SetDefault("guardian.enabled", true)

	// Storage defaults
	viper.SetDefault("storage.project_name", "default")
	viper.SetDefault("storage.session_name", "default")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// keyringProviders are the providers whose key pools may live in the
// system keyring under "<provider>_api_key".
var keyringProviders = []string{"openrouter", "openai", "anthropic"}

func loadKeysFromKeyring(config *Config) error {
	if config.LLM.ProviderAPIKeys == nil {
		config.LLM.ProviderAPIKeys = make(map[string][]string)
	}
	for _, provider := range keyringProviders {
		if len(config.LLM.ProviderAPIKeys[provider]) > 0 {
			continue
		}
		value, err := keyring.Get(ServiceName, provider+"_api_key")
		if err == nil && value != "" {
			config.LLM.ProviderAPIKeys[provider] = []string{value}
		}
		// Non-fatal: if the keyring doesn't have the key, just continue
	}
	return nil
}

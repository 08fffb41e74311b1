// Package config handles configuration loading and management for Troupe.
// It supports XDG config paths, project-level overrides, and environment
// variables, plus the project-local team roster file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for Troupe.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Defaults DefaultsConfig `mapstructure:"defaults"`
	Tools    ToolsConfig    `mapstructure:"tools"`
	TUI      TUIConfig      `mapstructure:"tui"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

// LLMConfig selects the model backend.
type LLMConfig struct {
	// Backend is "anthropic" or "ollama".
	Backend string `mapstructure:"backend"`
	// Model is the default model name for the backend.
	Model string `mapstructure:"model"`
	// APIKey is the Anthropic API key. ${VAR} references are expanded.
	APIKey string `mapstructure:"api_key"`
	// UseAWSBedrock routes Anthropic calls through AWS Bedrock.
	UseAWSBedrock bool `mapstructure:"use_aws_bedrock"`
	// AWSRegion is the Bedrock region.
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile is the optional AWS shared-config profile.
	AWSProfile string `mapstructure:"aws_profile"`
	// OllamaHost overrides the Ollama server address.
	OllamaHost string `mapstructure:"ollama_host"`
}

// DefaultsConfig holds default values for Troupe sessions.
type DefaultsConfig struct {
	// Parallel is the default number of tasks run concurrently per step.
	Parallel int `mapstructure:"parallel"`
	// ParallelThreshold is the smallest batch worth fanning out.
	ParallelThreshold int `mapstructure:"parallel_threshold"`
	// MessageTimeout bounds how long a sender waits for a message result.
	MessageTimeout time.Duration `mapstructure:"message_timeout"`
	// MaxToolIterations caps tool round-trips within one agent turn.
	MaxToolIterations int `mapstructure:"max_tool_iterations"`
}

// ToolsConfig holds tool execution settings.
type ToolsConfig struct {
	// Timeout is the per-invocation wall clock budget.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxConcurrent caps simultaneous tool invocations across all agents.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// BatchLimit caps how many calls one batch may carry.
	BatchLimit int `mapstructure:"batch_limit"`
	// AuditSize is how many recent invocations the audit ring retains.
	AuditSize int `mapstructure:"audit_size"`
}

// TUIConfig holds TUI display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	// Path is the SQLite database file. Empty uses the XDG data dir.
	Path string `mapstructure:"path"`
}

// Load loads configuration from XDG paths, project overrides, and environment
// variables. Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, TROUPE_MODEL, ...)
// 2. Project config (.troupe.yaml in current directory or parent)
// 3. User config (~/.config/troupe/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Project config takes precedence over the user config.
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()

	v.BindEnv("llm.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("llm.backend", "TROUPE_BACKEND")
	v.BindEnv("llm.model", "TROUPE_MODEL")
	v.BindEnv("llm.ollama_host", "OLLAMA_HOST")
	v.BindEnv("storage.path", "TROUPE_DB")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.LLM.APIKey = expandEnv(cfg.LLM.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.LLM.APIKey = expandEnv(cfg.LLM.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("llm.backend", cfg.LLM.Backend)
	v.Set("llm.model", cfg.LLM.Model)
	v.Set("llm.api_key", cfg.LLM.APIKey)
	v.Set("llm.use_aws_bedrock", cfg.LLM.UseAWSBedrock)
	v.Set("llm.aws_region", cfg.LLM.AWSRegion)
	v.Set("llm.aws_profile", cfg.LLM.AWSProfile)
	v.Set("llm.ollama_host", cfg.LLM.OllamaHost)
	v.Set("defaults.parallel", cfg.Defaults.Parallel)
	v.Set("defaults.parallel_threshold", cfg.Defaults.ParallelThreshold)
	v.Set("defaults.message_timeout", cfg.Defaults.MessageTimeout.String())
	v.Set("defaults.max_tool_iterations", cfg.Defaults.MaxToolIterations)
	v.Set("tools.timeout", cfg.Tools.Timeout.String())
	v.Set("tools.max_concurrent", cfg.Tools.MaxConcurrent)
	v.Set("tools.batch_limit", cfg.Tools.BatchLimit)
	v.Set("tools.audit_size", cfg.Tools.AuditSize)
	v.Set("tui.refresh_rate", cfg.TUI.RefreshRate.String())
	v.Set("storage.path", cfg.Storage.Path)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// DefaultDBPath returns the database path used when storage.path is unset:
// $XDG_DATA_HOME/troupe/troupe.db or ~/.local/share/troupe/troupe.db.
func DefaultDBPath() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "troupe", "troupe.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".troupe", "troupe.db")
	}
	return filepath.Join(home, ".local", "share", "troupe", "troupe.db")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.backend", "anthropic")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.use_aws_bedrock", false)
	v.SetDefault("llm.aws_region", "")
	v.SetDefault("llm.aws_profile", "")
	v.SetDefault("llm.ollama_host", "")

	v.SetDefault("defaults.parallel", 2)
	v.SetDefault("defaults.parallel_threshold", 2)
	v.SetDefault("defaults.message_timeout", "5m")
	v.SetDefault("defaults.max_tool_iterations", 25)

	v.SetDefault("tools.timeout", "60s")
	v.SetDefault("tools.max_concurrent", 3)
	v.SetDefault("tools.batch_limit", 10)
	v.SetDefault("tools.audit_size", 1000)

	v.SetDefault("tui.refresh_rate", "100ms")

	v.SetDefault("storage.path", "")
}

// getUserConfigDir returns the XDG config directory for Troupe.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "troupe")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "troupe")
	}
	return filepath.Join(home, ".config", "troupe")
}

// findProjectConfig searches for .troupe.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".troupe.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Backend: "anthropic",
		},
		Defaults: DefaultsConfig{
			Parallel:          2,
			ParallelThreshold: 2,
			MessageTimeout:    5 * time.Minute,
			MaxToolIterations: 25,
		},
		Tools: ToolsConfig{
			Timeout:       60 * time.Second,
			MaxConcurrent: 3,
			BatchLimit:    10,
			AuditSize:     1000,
		},
		TUI: TUIConfig{
			RefreshRate: 100 * time.Millisecond,
		},
	}
}

// Package config implements A2, the ambient config loader: reading
// journald.yaml plus environment overrides into the values used to seed
// the Settings projection (C3) and construct the LLM Gateway (C5) and
// persistence adapter (C2) on startup.
//
// Grounded on the teacher repo's internal/config (viper-backed YAML
// config with environment-variable overrides layered on top) and
// cmd/bd/doctor/label_mutex.go's standalone-viper-instance pattern for
// reading a single config file outside the global viper singleton.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the subset of journald.yaml (plus env overrides) needed to
// construct a replica on startup.
type Config struct {
	DataDir       string `mapstructure:"data-dir"`
	ReplicaID     string `mapstructure:"replica-id"`
	AIEnabled     bool   `mapstructure:"ai-enabled"`
	OpenAIAPIKey  string `mapstructure:"openai-api-key"`
	SyncServerURL string `mapstructure:"sync-server-url"`
	AnthropicModel string `mapstructure:"anthropic-model"`
	AnthropicBaseURL string `mapstructure:"anthropic-base-url"`
	NATSURL       string `mapstructure:"nats-url"`
	MetricsAddr   string `mapstructure:"metrics-addr"`
}

// Defaults returns a Config with every field at its documented default.
func Defaults() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:   filepath.Join(home, ".journald"),
		ReplicaID: "",
		AIEnabled: false,
	}
}

// Load reads configPath (journald.yaml) if present, applies
// JOURNALD_-prefixed environment variable overrides, and returns the
// merged Config. A missing config file is not an error: Load falls back
// to Defaults and environment overrides alone, matching the teacher's
// "empty, not nil" convention for a config that hasn't been created yet.
func Load(configPath string) (Config, error) {
	cfg := Defaults()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("JOURNALD")
	v.AutomaticEnv()

	v.SetDefault("data-dir", cfg.DataDir)
	v.SetDefault("replica-id", cfg.ReplicaID)
	v.SetDefault("ai-enabled", cfg.AIEnabled)
	v.SetDefault("openai-api-key", "")
	v.SetDefault("sync-server-url", "")
	v.SetDefault("anthropic-model", "")
	v.SetDefault("anthropic-base-url", "")
	v.SetDefault("nats-url", "")
	v.SetDefault("metrics-addr", "")

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	var out Config
	if err := v.Unmarshal(&out); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal %s: %w", configPath, err)
	}
	if out.DataDir == "" {
		out.DataDir = cfg.DataDir
	}
	return out, nil
}

// DefaultConfigPath returns the conventional journald.yaml location
// inside dataDir.
func DefaultConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "journald.yaml")
}

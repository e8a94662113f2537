package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DefaultModel string          `toml:"default_model"`
	LogPath      string          `toml:"log_path"`
	Backend      BackendConfig   `toml:"backend"`
	Stream       StreamConfig    `toml:"stream"`
	Workflow     WorkflowConfig  `toml:"workflow"`
	UI           UIConfig        `toml:"ui"`
	Workspace    WorkspaceConfig `toml:"workspace"`
	Raw          map[string]any  `toml:"-"`
	Path         string          `toml:"-"`
}

type BackendConfig struct {
	BaseURL          string `toml:"base_url"`
	OnlineURL        string `toml:"online_url"`
	RequestTimeoutMS int    `toml:"request_timeout_ms"`
	ChatTimeoutMS    int    `toml:"chat_timeout_ms"`
	HealthIntervalMS int    `toml:"health_interval_ms"`
}

type StreamConfig struct {
	URL            string `toml:"url"`
	PingIntervalMS int    `toml:"ping_interval_ms"`
	ReconnectMinMS int    `toml:"reconnect_min_ms"`
	ReconnectMaxMS int    `toml:"reconnect_max_ms"`
}

type WorkflowConfig struct {
	PollIntervalMS    int     `toml:"poll_interval_ms"`
	PollBackoffFactor float64 `toml:"poll_backoff_factor"`
	PollMaxIntervalMS int     `toml:"poll_max_interval_ms"`
}

type UIConfig struct {
	Theme         string `toml:"theme"`
	GroupGapMS    int    `toml:"group_gap_ms"`
	TruncateChars int    `toml:"truncate_chars"`
}

type WorkspaceConfig struct {
	DBPath   string `toml:"db_path"`
	Autosave bool   `toml:"autosave"`
}

func Load(path string) (Config, error) {
	resolved := path
	if resolved == "" {
		resolved = defaultConfigPath()
	}
	if strings.HasPrefix(resolved, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed := strings.TrimPrefix(resolved, "~")
		trimmed = strings.TrimPrefix(trimmed, "\\")
		trimmed = strings.TrimPrefix(trimmed, "/")
		resolved = filepath.Join(home, trimmed)
	}
	resolved = filepath.Clean(resolved)

	bytes, err := os.ReadFile(resolved)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %s: %w", resolved, err)
	}

	var cfg Config
	if _, err := toml.Decode(string(bytes), &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file: %w", err)
	}
	var raw map[string]any
	if _, err := toml.Decode(string(bytes), &raw); err != nil {
		return Config{}, fmt.Errorf("decode raw config: %w", err)
	}
	cfg.Raw = raw
	cfg.Path = resolved
	return cfg, nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentboard/config.toml"
	}
	return filepath.Join(home, ".agentboard", "config.toml")
}

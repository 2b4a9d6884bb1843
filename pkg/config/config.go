// Package config loads the gateway's process-wide configuration. It is built
// once at startup from an optional YAML file plus environment overrides, and
// is immutable afterwards; components receive it through their constructors.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full gateway configuration.
type Config struct {
	// ListenAddr is the HTTP listen address. PORT overrides it on
	// serverless platforms.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// WorkspaceRoot is the local scratch directory for per-session
	// workspaces. Must be writable on the compute instance.
	WorkspaceRoot string `yaml:"workspace_root"`

	// HistoryLimit bounds the chat replay window per cycle.
	HistoryLimit int `yaml:"history_limit"`

	Telegram TelegramConfig `yaml:"telegram"`
	Storage  StorageConfig  `yaml:"storage"`
	Agent    AgentConfig    `yaml:"agent"`
}

// TelegramConfig configures the webhook front door.
type TelegramConfig struct {
	// Token is the bot API token.
	Token string `yaml:"token"`

	// AllowedUsers lists user IDs permitted to talk to the bot. Required:
	// an open bot on a paid agent backend is an abuse hazard.
	AllowedUsers []string `yaml:"allowed_users"`
}

// StorageConfig configures the object store.
type StorageConfig struct {
	// Bucket is the GCS bucket holding all session state.
	Bucket string `yaml:"bucket"`

	// ProjectID is the GCP project. Optional; the client default applies.
	ProjectID string `yaml:"project_id"`
}

// AgentConfig configures the agent backend.
type AgentConfig struct {
	// GeminiAPIKey authenticates against the Gemini API.
	GeminiAPIKey string `yaml:"gemini_api_key"`

	// Model is the model identifier.
	Model string `yaml:"model"`
}

// Load builds the configuration. If path is empty, GATEBOT_CONFIG names an
// optional YAML file; environment variables override file values either way.
func Load(path string) (*Config, error) {
	cfg := &Config{
		ListenAddr:    ":8080",
		LogLevel:      "info",
		WorkspaceRoot: "/tmp/gatebot",
		HistoryLimit:  50,
		Agent: AgentConfig{
			Model: "gemini-2.0-flash",
		},
	}

	if path == "" {
		path = os.Getenv("GATEBOT_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.ListenAddr = ":" + v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("WORKSPACE_ROOT"); v != "" {
		c.WorkspaceRoot = v
	}
	if v := os.Getenv("HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HistoryLimit = n
		}
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_ALLOWED_USERS"); v != "" {
		c.Telegram.AllowedUsers = splitIDs(v)
	}
	if v := os.Getenv("GCS_BUCKET_NAME"); v != "" {
		c.Storage.Bucket = v
	}
	if v := os.Getenv("GCP_PROJECT_ID"); v != "" {
		c.Storage.ProjectID = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Agent.GeminiAPIKey = v
	}
	if v := os.Getenv("GATEBOT_MODEL"); v != "" {
		c.Agent.Model = v
	}
}

// Validate checks that every required field is set.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if len(c.Telegram.AllowedUsers) == 0 {
		return fmt.Errorf("TELEGRAM_ALLOWED_USERS is required")
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("GCS_BUCKET_NAME is required for persistent storage")
	}
	if c.Agent.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("history_limit must be positive, got %d", c.HistoryLimit)
	}
	return nil
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitIDs(s string) []string {
	var ids []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ids = append(ids, part)
		}
	}
	return ids
}

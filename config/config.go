package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for a config file when none is given.
const DefaultPath = "config/config.yaml"

// Config holds everything the compiler and its server need.
type Config struct {
	LLM           LLMConfig `yaml:"llm" json:"llm"`
	BlueprintsDir string    `yaml:"blueprints_dir" json:"blueprints_dir,omitempty"`
	PacksDir      string    `yaml:"packs_dir" json:"packs_dir,omitempty"`
	DraftsDB      string    `yaml:"drafts_db" json:"drafts_db,omitempty"`
	ServerAddr    string    `yaml:"server_addr" json:"server_addr,omitempty"`
	LogMode       string    `yaml:"log_mode" json:"log_mode,omitempty"`
	Stream        bool      `yaml:"stream" json:"stream,omitempty"`
	RenderHTML    *bool     `yaml:"render_html" json:"render_html,omitempty"`
	BatchParallel int       `yaml:"batch_parallel" json:"batch_parallel,omitempty"`
}

// LLMConfig configures the completion service.
type LLMConfig struct {
	Provider       string   `yaml:"provider" json:"provider,omitempty"`
	Model          string   `yaml:"model" json:"model,omitempty"`
	APIKey         string   `yaml:"api_key" json:"api_key,omitempty"`
	APIKeyEnv      string   `yaml:"api_key_env" json:"api_key_env,omitempty"`
	BaseURL        string   `yaml:"base_url" json:"base_url,omitempty"`
	MaxTokens      int      `yaml:"max_tokens" json:"max_tokens,omitempty"`
	Temperature    *float64 `yaml:"temperature" json:"temperature,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
}

var providers = map[string]bool{
	"openai":            true,
	"deepseek":          true,
	"openai_compatible": true,
	"anthropic":         true,
	"mock":              true,
}

// Default returns a config that runs fully offline.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a YAML or JSON config (chosen by extension). When path is
// DefaultPath and the file does not exist, the defaults are returned.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && path == DefaultPath {
			return Default(), nil
		}
		return nil, fmt.Errorf("loading config: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	applyDefaults(&cfg)
	cfg.LLM.resolveKey()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.LLM.Provider) == "" {
		cfg.LLM.Provider = "mock"
	}
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = 120
	}
	if cfg.PacksDir == "" {
		cfg.PacksDir = "packs"
	}
	if cfg.DraftsDB == "" {
		cfg.DraftsDB = "data/drafts.db"
	}
	if cfg.ServerAddr == "" {
		cfg.ServerAddr = ":8080"
	}
	if cfg.LogMode == "" {
		cfg.LogMode = "dev"
	}
	if cfg.RenderHTML == nil {
		on := true
		cfg.RenderHTML = &on
	}
	if cfg.BatchParallel <= 0 {
		cfg.BatchParallel = 2
	}
}

// resolveKey fills APIKey from APIKeyEnv when no literal key is set.
func (l *LLMConfig) resolveKey() {
	if strings.TrimSpace(l.APIKey) != "" || strings.TrimSpace(l.APIKeyEnv) == "" {
		return
	}
	l.APIKey = strings.TrimSpace(os.Getenv(strings.TrimSpace(l.APIKeyEnv)))
}

// Validate checks the provider and the fields it requires.
func (c *Config) Validate() error {
	if !providers[c.LLM.Provider] {
		return fmt.Errorf("llm provider %s not supported", c.LLM.Provider)
	}
	if c.LLM.Provider != "mock" && strings.TrimSpace(c.LLM.Model) == "" {
		return fmt.Errorf("llm.model is required for provider %s", c.LLM.Provider)
	}
	switch c.LLM.Provider {
	case "deepseek", "openai_compatible":
		if strings.TrimSpace(c.LLM.BaseURL) == "" {
			return fmt.Errorf("llm provider %s requires base_url (OpenAI-compatible endpoint)", c.LLM.Provider)
		}
	}
	if c.LLM.MaxTokens < 0 {
		return fmt.Errorf("llm.max_tokens must not be negative")
	}
	if c.LLM.Temperature != nil && (*c.LLM.Temperature < 0 || *c.LLM.Temperature > 2) {
		return fmt.Errorf("llm.temperature must be between 0 and 2")
	}
	if c.LLM.TimeoutSeconds < 0 {
		return fmt.Errorf("llm.timeout_seconds must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(c.LogMode)) {
	case "dev", "development", "prod", "production", "quiet":
	default:
		return fmt.Errorf("unsupported log_mode: %s", c.LogMode)
	}
	return nil
}

// Timeout is the per-completion timeout.
func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// RenderIntroHTML reports whether packs get an intro_page.html preview.
func (c *Config) RenderIntroHTML() bool {
	return c.RenderHTML == nil || *c.RenderHTML
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"character_asset_compiler/logger"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("CAC_TEST_KEY", "sk-from-env")
	path := writeConfig(t, "config.yaml", `
llm:
  provider: OpenAI
  model: gpt-4o-mini
  api_key_env: CAC_TEST_KEY
  temperature: 0.7
packs_dir: out
stream: true
render_html: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.LLM.Provider != "openai" {
		t.Fatalf("expected normalized provider, got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.APIKey != "sk-from-env" {
		t.Fatalf("expected key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.LLM.Temperature == nil || *cfg.LLM.Temperature != 0.7 {
		t.Fatalf("unexpected temperature %v", cfg.LLM.Temperature)
	}
	if cfg.PacksDir != "out" || !cfg.Stream || cfg.RenderIntroHTML() {
		t.Fatalf("unexpected config %#v", cfg)
	}
	if cfg.DraftsDB != "data/drafts.db" || cfg.ServerAddr != ":8080" || cfg.LLM.Timeout().Seconds() != 120 {
		t.Fatalf("expected defaults to be applied, got %#v", cfg)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{"llm":{"provider":"anthropic","model":"claude-sonnet-4-5","api_key":"k"},"log_mode":"prod"}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.LLM.Provider != "anthropic" || cfg.LogMode != "prod" {
		t.Fatalf("unexpected config %#v", cfg)
	}
	if !cfg.RenderIntroHTML() {
		t.Fatalf("expected html rendering on by default")
	}
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"unknown provider", "llm:\n  provider: cohere\n", "not supported"},
		{"missing model", "llm:\n  provider: openai\n", "llm.model is required"},
		{"deepseek without base url", "llm:\n  provider: deepseek\n  model: deepseek-chat\n", "requires base_url"},
		{"bad temperature", "llm:\n  provider: mock\n  temperature: 3\n", "temperature"},
		{"bad log mode", "log_mode: loud\n", "log_mode"},
		{"bad yaml", "llm: [\n", "loading config"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yaml", tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLogModesMatchLogger(t *testing.T) {
	for _, mode := range []string{"dev", "development", "prod", "production", "Production", "quiet"} {
		t.Run(mode, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, "config.yaml", "log_mode: "+mode+"\n"))
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if _, err := logger.New(cfg.LogMode); err != nil {
				t.Fatalf("logger rejected %q: %v", mode, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for explicit missing path")
	}

	dir := t.TempDir()
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load(DefaultPath)
	if err != nil {
		t.Fatalf("expected defaults, got %v", err)
	}
	if cfg.LLM.Provider != "mock" {
		t.Fatalf("expected mock provider by default, got %q", cfg.LLM.Provider)
	}
}

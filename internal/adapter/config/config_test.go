package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_Defaults(t *testing.T) {
	// ファイルが存在しなくてもデフォルト値で構成される
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("unexpected host: %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 3002 {
		t.Errorf("unexpected port: %d", cfg.Server.Port)
	}
	if cfg.AI.RequestTimeoutSeconds != 120 {
		t.Errorf("unexpected timeout: %d", cfg.AI.RequestTimeoutSeconds)
	}
	if cfg.Gemini.Model != "gemini-pro" {
		t.Errorf("unexpected gemini model: %s", cfg.Gemini.Model)
	}
	if cfg.OpenAI.Model != "gpt-4" {
		t.Errorf("unexpected openai model: %s", cfg.OpenAI.Model)
	}
	if cfg.Claude.Model != "claude-3-sonnet-20240229" {
		t.Errorf("unexpected claude model: %s", cfg.Claude.Model)
	}
	if cfg.Prompt.StorageDir != "data/prompts" {
		t.Errorf("unexpected storage dir: %s", cfg.Prompt.StorageDir)
	}
}

func TestLoadConfig_FromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 8080
ai:
  request_timeout_seconds: 60
gemini:
  api_key: "file-gemini-key"
  model: "gemini-1.5-pro"
prompt:
  storage_dir: "/tmp/prompts"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("unexpected host: %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("unexpected port: %d", cfg.Server.Port)
	}
	if cfg.AI.RequestTimeoutSeconds != 60 {
		t.Errorf("unexpected timeout: %d", cfg.AI.RequestTimeoutSeconds)
	}
	if cfg.Gemini.APIKey != "file-gemini-key" {
		t.Errorf("unexpected gemini key: %s", cfg.Gemini.APIKey)
	}
	if cfg.Gemini.Model != "gemini-1.5-pro" {
		t.Errorf("unexpected gemini model: %s", cfg.Gemini.Model)
	}
	if cfg.Prompt.StorageDir != "/tmp/prompts" {
		t.Errorf("unexpected storage dir: %s", cfg.Prompt.StorageDir)
	}

	// ファイルに書かれていない設定はデフォルト値
	if cfg.OpenAI.Model != "gpt-4" {
		t.Errorf("unexpected openai model: %s", cfg.OpenAI.Model)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
gemini:
  api_key: "file-key"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	// 環境変数がファイル値より優先される
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("ANTHROPIC_API_KEY", "env-claude-key")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Gemini.APIKey != "env-key" {
		t.Errorf("expected env override, got: %s", cfg.Gemini.APIKey)
	}
	if cfg.Claude.APIKey != "env-claude-key" {
		t.Errorf("unexpected claude key: %s", cfg.Claude.APIKey)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a mapping"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, true},
		{"negative port", func(c *Config) { c.Server.Port = -1 }, true},
		{"zero timeout", func(c *Config) { c.AI.RequestTimeoutSeconds = -5 }, true},
		{"missing storage dir", func(c *Config) { c.Prompt.StorageDir = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			cfg.setDefaults()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

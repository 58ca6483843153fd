package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定
type Config struct {
	Server ServerConfig `yaml:"server"`
	AI     AIConfig     `yaml:"ai"`
	Gemini GeminiConfig `yaml:"gemini"`
	OpenAI OpenAIConfig `yaml:"openai"`
	Claude ClaudeConfig `yaml:"claude"`
	DVSA   DVSAConfig   `yaml:"dvsa"`
	Prompt PromptConfig `yaml:"prompt"`
}

// ServerConfig はサーバー設定
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// AIConfig はAI共通設定
type AIConfig struct {
	// ベンダー呼び出し1回あたりのタイムアウト（秒）。
	// タイムアウトはベンダー障害と同様に失敗フラグ付き結果となる
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
}

// GeminiConfig はGemini API設定
type GeminiConfig struct {
	APIKey string `yaml:"api_key" env:"GEMINI_API_KEY"` // 環境変数から読み込み推奨
	Model  string `yaml:"model"`
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey string `yaml:"api_key" env:"OPENAI_API_KEY"` // 環境変数から読み込み推奨
	Model  string `yaml:"model"`
}

// ClaudeConfig はClaude API設定
type ClaudeConfig struct {
	APIKey string `yaml:"api_key" env:"ANTHROPIC_API_KEY"` // 環境変数から読み込み推奨
	Model  string `yaml:"model"`
}

// DVSAConfig はDVSA Vehicle Enquiry Service設定
type DVSAConfig struct {
	APIKey string `yaml:"api_key" env:"DVSA_API_KEY"`
}

// PromptConfig はプロンプトライブラリ設定
type PromptConfig struct {
	StorageDir string `yaml:"storage_dir"`
}

// LoadConfig は設定ファイルを読み込む。
// ファイルが存在しない場合は環境変数とデフォルト値のみで構成する
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	// デフォルト値設定
	cfg.setDefaults()

	// 環境変数から機密情報を読み込み（ファイルより優先）
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	// バリデーション
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults はデフォルト値を設定
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}

	if c.Server.Port == 0 {
		c.Server.Port = 3002
	}

	if c.AI.RequestTimeoutSeconds == 0 {
		c.AI.RequestTimeoutSeconds = 120
	}

	if c.Gemini.Model == "" {
		c.Gemini.Model = "gemini-pro"
	}

	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4"
	}

	if c.Claude.Model == "" {
		c.Claude.Model = "claude-3-sonnet-20240229"
	}

	if c.Prompt.StorageDir == "" {
		c.Prompt.StorageDir = "data/prompts"
	}
}

// Validate は設定の妥当性を検証
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}

	if c.AI.RequestTimeoutSeconds < 1 {
		return fmt.Errorf("invalid request timeout: %d (must be >= 1)", c.AI.RequestTimeoutSeconds)
	}

	if c.Prompt.StorageDir == "" {
		return fmt.Errorf("prompt storage_dir is required")
	}

	return nil
}

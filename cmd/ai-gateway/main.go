package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/driveever/ai-gateway/internal/adapter/config"
	"github.com/driveever/ai-gateway/internal/adapter/httpapi"
	"github.com/driveever/ai-gateway/internal/application/orchestrator"
	"github.com/driveever/ai-gateway/internal/infrastructure/llm/claude"
	"github.com/driveever/ai-gateway/internal/infrastructure/llm/gemini"
	"github.com/driveever/ai-gateway/internal/infrastructure/llm/openai"
	promptrepo "github.com/driveever/ai-gateway/internal/infrastructure/persistence/prompt"
	"github.com/driveever/ai-gateway/internal/infrastructure/vehicle/dvsa"
)

func main() {
	// 設定読み込み
	configPath := getConfigPath()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Loaded config from: %s", configPath)

	// 依存関係構築
	handler := buildDependencies(cfg)

	// HTTPサーバー起動
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Starting AI gateway on %s", addr)

	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// buildDependencies は依存関係を構築
func buildDependencies(cfg *config.Config) http.Handler {
	timeout := time.Duration(cfg.AI.RequestTimeoutSeconds) * time.Second

	// 1. LLM Provider Adapters（APIキーの有無が可用性を決める）
	geminiProvider := gemini.NewProvider(cfg.Gemini.APIKey, cfg.Gemini.Model, timeout)
	if geminiProvider.Available() {
		log.Printf("Gemini enabled with model: %s", cfg.Gemini.Model)
	}

	openaiProvider := openai.NewProvider(cfg.OpenAI.APIKey, cfg.OpenAI.Model, timeout)
	if openaiProvider.Available() {
		log.Printf("OpenAI enabled with model: %s", cfg.OpenAI.Model)
	}

	claudeProvider := claude.NewProvider(cfg.Claude.APIKey, cfg.Claude.Model, timeout)
	if claudeProvider.Available() {
		log.Printf("Claude enabled with model: %s", cfg.Claude.Model)
	}

	// 2. Orchestrator（レジストリ順: gemini, openai, claude）
	orch := orchestrator.New(log.Default(), geminiProvider, openaiProvider, claudeProvider)

	// 3. Prompt Repository
	promptRepository := promptrepo.NewJSONPromptRepository(cfg.Prompt.StorageDir)

	if err := os.MkdirAll(cfg.Prompt.StorageDir, 0755); err != nil {
		log.Fatalf("Failed to create prompt storage directory: %v", err)
	}

	// 4. DVSA Vehicle Lookup
	vehicleClient := dvsa.NewClient(cfg.DVSA.APIKey, 30*time.Second)
	if vehicleClient.Available() {
		log.Println("DVSA vehicle lookup enabled")
	}

	// 5. HTTP Handler
	handler := httpapi.NewHandler(orch, promptRepository, vehicleClient)

	log.Println("Dependency injection complete")

	return handler
}

// getConfigPath は設定ファイルパスを取得
func getConfigPath() string {
	if path := os.Getenv("AI_GATEWAY_CONFIG"); path != "" {
		return path
	}

	if len(os.Args) > 1 {
		return os.Args[1]
	}

	return "config.yaml"
}

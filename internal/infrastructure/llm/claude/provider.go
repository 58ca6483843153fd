package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/driveever/ai-gateway/internal/domain/ai"
)

const defaultBaseURL = "https://api.anthropic.com"
const anthropicVersion = "2023-06-01"
const defaultModel = "claude-3-sonnet-20240229"

// Provider はClaude APIアダプターの実装
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewProvider は新しいClaude Providerを作成。
// APIキーが空の場合、Available()はfalseを返しGenerateはネットワーク呼び出しを行わない
func NewProvider(apiKey, model string, timeout time.Duration) *Provider {
	if model == "" {
		model = defaultModel
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Provider{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetBaseURL はベースURLを設定（テスト用）
func (p *Provider) SetBaseURL(url string) {
	p.baseURL = url
}

// Name はプロバイダー識別子を返す
func (p *Provider) Name() ai.ProviderID {
	return ai.ProviderClaude
}

// Available はアダプターが初期化済みかを返す
func (p *Provider) Available() bool {
	return p.apiKey != ""
}

// Generate は1回のClaude呼び出しを実行し、正規化された結果を返す。
// ベンダー障害は失敗フラグ付きResultとなり、エラーは呼び出し側へ伝播しない
func (p *Provider) Generate(ctx context.Context, req ai.Request) ai.Result {
	start := time.Now()

	if !p.Available() {
		return ai.NewErrorResult(ai.ProviderClaude, req, "claude provider not initialized - API key missing", 0)
	}

	prompt := ai.BuildPrompt(req.PromptTemplate, req.Question, req.Context)

	text, stopReason, usage, err := p.callAPI(ctx, prompt)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return ai.NewErrorResult(ai.ProviderClaude, req, err.Error(), elapsed)
	}

	return ai.NewSuccessResult(
		ai.ProviderClaude,
		req,
		text,
		calculateConfidence(text, stopReason),
		extractSources(text),
		elapsed,
		ai.Metadata{Model: p.model, Usage: usage},
	)
}

// callAPI はClaude Messages APIを呼び出す
func (p *Provider) callAPI(ctx context.Context, prompt string) (string, string, *ai.Usage, error) {
	claudeReq := map[string]interface{}{
		"model":       p.model,
		"max_tokens":  1000,
		"temperature": 0.7,
		"messages": []map[string]interface{}{
			{
				"role":    "user",
				"content": prompt,
			},
		},
	}

	reqBody, err := json.Marshal(claudeReq)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/v1/messages", bytes.NewReader(reqBody))
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", "", nil, fmt.Errorf("claude API error: status=%d, body=%s", resp.StatusCode, string(body))
	}

	var claudeResp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
		Usage      struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&claudeResp); err != nil {
		return "", "", nil, fmt.Errorf("failed to decode response: %w", err)
	}

	// 先頭のテキストブロックを回答として抽出
	var text string
	if len(claudeResp.Content) > 0 && claudeResp.Content[0].Type == "text" {
		text = claudeResp.Content[0].Text
	}

	usage := &ai.Usage{
		PromptTokens:     claudeResp.Usage.InputTokens,
		CompletionTokens: claudeResp.Usage.OutputTokens,
		TotalTokens:      claudeResp.Usage.InputTokens + claudeResp.Usage.OutputTokens,
	}

	return text, claudeResp.StopReason, usage, nil
}

// qualityIndicators は回答品質の指標となる語彙
var qualityIndicators = []string{
	"based on", "according to", "recommend", "suggest", "consider",
	"important", "safety", "maintenance", "inspection", "professional",
	"expert", "certified", "qualified", "thoroughly", "comprehensive",
}

// calculateConfidence は停止理由・回答長・指標語から信頼度を算出する。
// ヒューリスティックであり校正された確率ではない。結果は[0.6, 0.95]に収まる
func calculateConfidence(text, stopReason string) float64 {
	confidence := 0.85

	switch stopReason {
	case "end_turn":
		confidence = 0.9
	case "max_tokens":
		confidence = 0.7
	case "stop_sequence":
		confidence = 0.8
	}

	// 閾値はバイト数ではなく文字数で判定する
	length := utf8.RuneCountInString(text)
	if length < 50 {
		confidence -= 0.2
	}
	if length > 500 {
		confidence += 0.1
	}

	lower := strings.ToLower(text)
	for _, indicator := range qualityIndicators {
		if strings.Contains(lower, indicator) {
			confidence += 0.02
		}
	}

	return math.Min(0.95, math.Max(0.6, confidence))
}

// sourcePatterns は出典の手がかり表現
var sourcePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:source|reference|according to|based on):\s*([^.\n]+)`),
	regexp.MustCompile(`(?i)(?:see|refer to|check):\s*([^.\n]+)`),
	regexp.MustCompile(`(?i)(?:MOT|DVLA|VOSA|AA|RAC):\s*([^.\n]+)`),
	regexp.MustCompile(`(?i)(?:manufacturer|official|guidelines):\s*([^.\n]+)`),
}

// defaultSources は手がかりが見つからない場合の既定出典
var defaultSources = []string{
	"Vehicle Database", "MOT Records", "Safety Standards",
	"Manufacturer Guidelines", "Expert Knowledge",
}

// extractSources は回答テキストから出典を抽出する（初出順、重複除去）
func extractSources(text string) []string {
	var sources []string
	seen := make(map[string]bool)

	for _, pattern := range sourcePatterns {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			source := strings.TrimSpace(m[1])
			if source != "" && !seen[source] {
				seen[source] = true
				sources = append(sources, source)
			}
		}
	}

	if len(sources) == 0 {
		return append([]string(nil), defaultSources...)
	}

	return sources
}

package openai

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

const defaultBaseURL = "https://api.openai.com"
const defaultModel = "gpt-4"

// systemPrompt は車両アドバイザーのペルソナを確立する固定システムプロンプト
const systemPrompt = "You are an expert vehicle advisor and safety consultant with 20+ years of experience. " +
	"Provide comprehensive, actionable advice based on the information provided."

// Provider はOpenAI Chat Completions APIアダプターの実装
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewProvider は新しいOpenAI Providerを作成。
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
	return ai.ProviderOpenAI
}

// Available はアダプターが初期化済みかを返す
func (p *Provider) Available() bool {
	return p.apiKey != ""
}

// Generate は1回のOpenAI呼び出しを実行し、正規化された結果を返す。
// ベンダー障害は失敗フラグ付きResultとなり、エラーは呼び出し側へ伝播しない
func (p *Provider) Generate(ctx context.Context, req ai.Request) ai.Result {
	start := time.Now()

	if !p.Available() {
		return ai.NewErrorResult(ai.ProviderOpenAI, req, "openai provider not initialized - API key missing", 0)
	}

	prompt := ai.BuildPrompt(req.PromptTemplate, req.Question, req.Context)

	text, finishReason, usage, err := p.callAPI(ctx, prompt)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return ai.NewErrorResult(ai.ProviderOpenAI, req, err.Error(), elapsed)
	}

	return ai.NewSuccessResult(
		ai.ProviderOpenAI,
		req,
		text,
		calculateConfidence(text, finishReason),
		extractSources(text),
		elapsed,
		ai.Metadata{Model: p.model, Usage: usage},
	)
}

// callAPI はOpenAI Chat Completions APIを呼び出す
func (p *Provider) callAPI(ctx context.Context, prompt string) (string, string, *ai.Usage, error) {
	openaiReq := map[string]interface{}{
		"model": p.model,
		"messages": []map[string]interface{}{
			{
				"role":    "system",
				"content": systemPrompt,
			},
			{
				"role":    "user",
				"content": prompt,
			},
		},
		"max_tokens":        1000,
		"temperature":       0.7,
		"top_p":             1,
		"frequency_penalty": 0,
		"presence_penalty":  0,
	}

	reqBody, err := json.Marshal(openaiReq)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/v1/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", "", nil, fmt.Errorf("openai API error: status=%d, body=%s", resp.StatusCode, string(body))
	}

	var openaiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&openaiResp); err != nil {
		return "", "", nil, fmt.Errorf("failed to decode response: %w", err)
	}

	// 先頭choiceのメッセージを回答として抽出
	var text, finishReason string
	if len(openaiResp.Choices) > 0 {
		text = openaiResp.Choices[0].Message.Content
		finishReason = openaiResp.Choices[0].FinishReason
	}

	usage := &ai.Usage{
		PromptTokens:     openaiResp.Usage.PromptTokens,
		CompletionTokens: openaiResp.Usage.CompletionTokens,
		TotalTokens:      openaiResp.Usage.TotalTokens,
	}

	return text, finishReason, usage, nil
}

// qualityIndicators は回答品質の指標となる語彙
var qualityIndicators = []string{
	"based on", "according to", "recommend", "suggest", "consider",
	"important", "safety", "maintenance", "inspection", "professional",
}

// calculateConfidence は終了理由・回答長・指標語から信頼度を算出する。
// ヒューリスティックであり校正された確率ではない。結果は[0.5, 0.95]に収まる
func calculateConfidence(text, finishReason string) float64 {
	confidence := 0.8

	switch finishReason {
	case "stop":
		confidence = 0.9
	case "length":
		confidence = 0.7
	case "content_filter":
		confidence = 0.5
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

	return math.Min(0.95, math.Max(0.5, confidence))
}

// sourcePatterns は出典の手がかり表現
var sourcePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:source|reference|according to|based on):\s*([^.\n]+)`),
	regexp.MustCompile(`(?i)(?:see|refer to|check):\s*([^.\n]+)`),
	regexp.MustCompile(`(?i)(?:MOT|DVLA|VOSA|AA|RAC):\s*([^.\n]+)`),
}

// defaultSources は手がかりが見つからない場合の既定出典
var defaultSources = []string{
	"Vehicle Database", "MOT Records", "Safety Standards", "Manufacturer Guidelines",
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

package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/driveever/ai-gateway/internal/domain/ai"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"
const defaultModel = "gemini-pro"

// Provider はGemini generateContent APIアダプターの実装
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewProvider は新しいGemini Providerを作成。
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
	return ai.ProviderGemini
}

// Available はアダプターが初期化済みかを返す
func (p *Provider) Available() bool {
	return p.apiKey != ""
}

// Generate は1回のGemini呼び出しを実行し、正規化された結果を返す。
// ベンダー障害は失敗フラグ付きResultとなり、エラーは呼び出し側へ伝播しない
func (p *Provider) Generate(ctx context.Context, req ai.Request) ai.Result {
	start := time.Now()

	if !p.Available() {
		return ai.NewErrorResult(ai.ProviderGemini, req, "gemini provider not initialized - API key missing", 0)
	}

	prompt := ai.BuildPrompt(req.PromptTemplate, req.Question, req.Context)

	text, err := p.callAPI(ctx, prompt)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return ai.NewErrorResult(ai.ProviderGemini, req, err.Error(), elapsed)
	}

	// Geminiはトークン使用量を返さないため文字数から推定する（レポート用途のみ）
	usage := &ai.Usage{
		PromptTokens:     estimateTokens(prompt),
		CompletionTokens: estimateTokens(text),
		TotalTokens:      estimateTokens(prompt) + estimateTokens(text),
	}

	return ai.NewSuccessResult(
		ai.ProviderGemini,
		req,
		text,
		calculateConfidence(text),
		extractSources(text),
		elapsed,
		ai.Metadata{Model: p.model, Usage: usage},
	)
}

// callAPI はGemini generateContent APIを呼び出す
func (p *Provider) callAPI(ctx context.Context, prompt string) (string, error) {
	geminiReq := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"role": "user",
				"parts": []map[string]interface{}{
					{"text": prompt},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"temperature":     0.7,
			"maxOutputTokens": 1000,
		},
	}

	reqBody, err := json.Marshal(geminiReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		p.baseURL, url.PathEscape(p.model), url.QueryEscape(p.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("gemini API error: status=%d, body=%s", resp.StatusCode, string(body))
	}

	var geminiResp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(geminiResp.Candidates) == 0 {
		return "", fmt.Errorf("gemini API error: no candidates returned")
	}

	// 先頭candidateの全パートを連結して回答とする
	var text strings.Builder
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	return text.String(), nil
}

// qualityIndicators は回答品質の指標となる語彙
var qualityIndicators = []string{
	"based on", "according to", "recommend", "suggest", "consider",
	"important", "safety", "maintenance", "inspection",
}

// calculateConfidence は回答長と指標語から信頼度を算出する。
// ヒューリスティックであり校正された確率ではない。結果は[0.7, 0.95]に収まる
func calculateConfidence(text string) float64 {
	const minConfidence = 0.7
	const maxConfidence = 0.95

	// 閾値はバイト数ではなく文字数で判定する
	length := utf8.RuneCountInString(text)
	if length < 50 {
		return minConfidence
	}
	if length > 500 {
		return maxConfidence
	}

	count := 0
	lower := strings.ToLower(text)
	for _, indicator := range qualityIndicators {
		if strings.Contains(lower, indicator) {
			count++
		}
	}

	return math.Min(maxConfidence, minConfidence+float64(count)*0.05)
}

// sourcePatterns は出典の手がかり表現
var sourcePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:source|reference|according to|based on):\s*([^.\n]+)`),
	regexp.MustCompile(`(?i)(?:see|refer to|check):\s*([^.\n]+)`),
}

// defaultSources は手がかりが見つからない場合の既定出典
var defaultSources = []string{"Vehicle Database", "MOT Records", "Safety Standards"}

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

// estimateTokens は文字数からトークン数を概算する（英文で1トークン≈4文字）
func estimateTokens(text string) int {
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / 4))
}

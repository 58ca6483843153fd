package gemini

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/driveever/ai-gateway/internal/domain/ai"
)

func TestNewProvider(t *testing.T) {
	provider := NewProvider("test-api-key", "", 0)

	if provider.Name() != ai.ProviderGemini {
		t.Errorf("Expected name 'gemini', got '%s'", provider.Name())
	}

	if !provider.Available() {
		t.Error("Provider with API key should be available")
	}

	if NewProvider("", "", 0).Available() {
		t.Error("Provider without API key should not be available")
	}
}

func TestGenerate_Success(t *testing.T) {
	answer := "Based on the MOT records, I recommend a full safety inspection before long journeys."

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-pro:generateContent" {
			t.Errorf("Unexpected path '%s'", r.URL.Path)
		}

		// APIキーはクエリパラメータで渡る
		if key := r.URL.Query().Get("key"); key != "test-api-key" {
			t.Errorf("Expected API key in query, got '%s'", key)
		}

		// 構築済みプロンプトが送信されているか確認
		var reqBody map[string]interface{}
		json.NewDecoder(r.Body).Decode(&reqBody)

		contents := reqBody["contents"].([]interface{})
		parts := contents[0].(map[string]interface{})["parts"].([]interface{})
		text := parts[0].(map[string]interface{})["text"].(string)
		if text != "Help with: Is my car safe?" {
			t.Errorf("Expected built prompt, got '%s'", text)
		}

		response := map[string]interface{}{
			"candidates": []map[string]interface{}{
				{
					"content": map[string]interface{}{
						"parts": []map[string]interface{}{
							{"text": answer},
						},
					},
				},
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	provider := NewProvider("test-api-key", "gemini-pro", 0)
	provider.SetBaseURL(server.URL)

	result := provider.Generate(context.Background(), ai.Request{
		PromptTemplate: "Help with: {{userQuestion}}",
		Question:       "Is my car safe?",
	})

	if !result.Success {
		t.Fatalf("Generate should succeed: %s", result.Error)
	}

	if result.Answer != answer {
		t.Errorf("Expected answer text, got '%s'", result.Answer)
	}

	if result.Confidence == nil {
		t.Fatal("Success result should have confidence")
	}
	if *result.Confidence < 0.7 || *result.Confidence > 0.95 {
		t.Errorf("Confidence out of range: %f", *result.Confidence)
	}

	// トークン使用量は文字数から推定される
	if result.Metadata.Usage == nil {
		t.Fatal("Expected estimated usage")
	}
	if result.Metadata.Usage.CompletionTokens != estimateTokens(answer) {
		t.Errorf("Expected estimated completion tokens, got %d", result.Metadata.Usage.CompletionTokens)
	}

	if !strings.HasPrefix(result.ID, "gemini_") {
		t.Errorf("Expected gemini-prefixed id, got '%s'", result.ID)
	}
}

func TestGenerate_NoCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"candidates": []interface{}{}})
	}))
	defer server.Close()

	provider := NewProvider("test-api-key", "", 0)
	provider.SetBaseURL(server.URL)

	result := provider.Generate(context.Background(), ai.Request{Question: "q"})

	if result.Success {
		t.Fatal("Empty candidates should produce failure result")
	}
	if !strings.Contains(result.Error, "no candidates") {
		t.Errorf("Unexpected error: '%s'", result.Error)
	}
}

func TestGenerate_NotInitialized(t *testing.T) {
	provider := NewProvider("", "", 0)

	result := provider.Generate(context.Background(), ai.Request{Question: "q"})

	if result.Success {
		t.Fatal("Uninitialized provider should fail")
	}
	if result.Error != "gemini provider not initialized - API key missing" {
		t.Errorf("Unexpected error message: '%s'", result.Error)
	}
}

func TestCalculateConfidence(t *testing.T) {
	// 短文は下限0.7に直接クランプ
	if got := calculateConfidence("No."); got != 0.7 {
		t.Errorf("Short answer should clamp to 0.7, got %f", got)
	}

	// 長文は上限0.95に直接クランプ
	if got := calculateConfidence(strings.Repeat("x", 501)); got != 0.95 {
		t.Errorf("Long answer should clamp to 0.95, got %f", got)
	}

	// 中間長は指標語1つにつき+0.05の補間
	text := "You should consider a brake check soon to stay within guidance." // 63 chars, "consider" のみ
	got := calculateConfidence(text)
	if math.Abs(got-0.75) > 1e-9 {
		t.Errorf("Expected 0.75, got %f", got)
	}
}

func TestCalculateConfidence_MultibyteLength(t *testing.T) {
	// 長さの閾値はバイト数ではなく文字数で判定される
	if got := calculateConfidence(strings.Repeat("安", 30)); got != 0.7 {
		t.Errorf("30-char answer should clamp to 0.7, got %f", got)
	}

	// 200文字（600バイト）は上限クランプの対象外
	got := calculateConfidence(strings.Repeat("安", 200))
	if math.Abs(got-0.7) > 1e-9 {
		t.Errorf("Expected 0.7 for indicator-free mid-length answer, got %f", got)
	}
}

func TestCalculateConfidence_Range(t *testing.T) {
	texts := []string{
		"",
		"tiny",
		"a mid-length answer mentioning safety and maintenance and inspection words",
		strings.Repeat("recommend safety maintenance inspection ", 30),
	}

	for _, text := range texts {
		got := calculateConfidence(text)
		if got < 0.7 || got > 0.95 {
			t.Errorf("Confidence out of [0.7, 0.95] for %q: %f", text, got)
		}
	}
}

func TestExtractSources_Defaults(t *testing.T) {
	sources := extractSources("Nothing citable in here at all.")

	want := []string{"Vehicle Database", "MOT Records", "Safety Standards"}
	if !reflect.DeepEqual(sources, want) {
		t.Errorf("Expected default sources %v, got %v", want, sources)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 100), 25},
		{"安全運転", 1}, // 4文字（12バイト）
	}

	for _, tt := range tests {
		if got := estimateTokens(tt.text); got != tt.want {
			t.Errorf("estimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

package openai

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
	provider := NewProvider("test-api-key", "gpt-4", 0)

	if provider.Name() != ai.ProviderOpenAI {
		t.Errorf("Expected name 'openai', got '%s'", provider.Name())
	}

	if !provider.Available() {
		t.Error("Provider with API key should be available")
	}

	if NewProvider("", "", 0).Available() {
		t.Error("Provider without API key should not be available")
	}
}

func TestGenerate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("Expected path '/v1/chat/completions', got '%s'", r.URL.Path)
		}

		// Bearer認証確認
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-api-key" {
			t.Errorf("Expected bearer auth, got '%s'", auth)
		}

		// システムペルソナ + ユーザープロンプトの2ターン構成を確認
		var reqBody map[string]interface{}
		json.NewDecoder(r.Body).Decode(&reqBody)

		messages := reqBody["messages"].([]interface{})
		if len(messages) != 2 {
			t.Fatalf("Expected 2 messages, got %d", len(messages))
		}

		system := messages[0].(map[string]interface{})
		if system["role"] != "system" {
			t.Errorf("First message should be system turn, got '%v'", system["role"])
		}
		if !strings.Contains(system["content"].(string), "20+ years") {
			t.Errorf("System persona missing, got '%v'", system["content"])
		}

		user := messages[1].(map[string]interface{})
		if user["content"] != "Help with: Is my car safe?" {
			t.Errorf("Expected built prompt, got '%v'", user["content"])
		}

		response := map[string]interface{}{
			"choices": []map[string]interface{}{
				{
					"message": map[string]interface{}{
						"role":    "assistant",
						"content": "Based on the records, I suggest a maintenance check and a safety inspection.",
					},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]interface{}{
				"prompt_tokens":     12,
				"completion_tokens": 18,
				"total_tokens":      30,
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	provider := NewProvider("test-api-key", "gpt-4", 0)
	provider.SetBaseURL(server.URL)

	result := provider.Generate(context.Background(), ai.Request{
		PromptTemplate: "Help with: {{userQuestion}}",
		Question:       "Is my car safe?",
	})

	if !result.Success {
		t.Fatalf("Generate should succeed: %s", result.Error)
	}

	if result.Provider != ai.ProviderOpenAI {
		t.Errorf("Expected provider 'openai', got '%s'", result.Provider)
	}

	if result.Confidence == nil {
		t.Fatal("Success result should have confidence")
	}
	if *result.Confidence < 0.5 || *result.Confidence > 0.95 {
		t.Errorf("Confidence out of range: %f", *result.Confidence)
	}

	if result.Metadata.Usage == nil || result.Metadata.Usage.TotalTokens != 30 {
		t.Errorf("Expected vendor usage, got %+v", result.Metadata.Usage)
	}
}

func TestGenerate_VendorError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "invalid key"}}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	provider := NewProvider("bad-key", "", 0)
	provider.SetBaseURL(server.URL)

	result := provider.Generate(context.Background(), ai.Request{Question: "q"})

	if result.Success {
		t.Fatal("Vendor error should produce failure result")
	}
	if !strings.Contains(result.Error, "status=401") {
		t.Errorf("Expected status in error, got '%s'", result.Error)
	}
}

func TestGenerate_NotInitialized(t *testing.T) {
	provider := NewProvider("", "", 0)

	result := provider.Generate(context.Background(), ai.Request{Question: "q"})

	if result.Success {
		t.Fatal("Uninitialized provider should fail")
	}
	if result.Error != "openai provider not initialized - API key missing" {
		t.Errorf("Unexpected error message: '%s'", result.Error)
	}
}

func TestCalculateConfidence(t *testing.T) {
	long := strings.Repeat("recommend professional inspection for safety and maintenance ", 20)

	tests := []struct {
		name         string
		text         string
		finishReason string
		want         float64
	}{
		// stop(0.9) - 短文ペナルティ(0.2) = 0.7
		{"short stop", "No.", "stop", 0.7},
		// content_filter(0.5) - 短文(0.2) → 下限0.5でクランプ
		{"content filter short", "No.", "content_filter", 0.5},
		// 長文 + 指標語多数 → 上限0.95でクランプ
		{"long keyword heavy", long, "stop", 0.95},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calculateConfidence(tt.text, tt.finishReason)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Expected %f, got %f", tt.want, got)
			}
		})
	}
}

func TestCalculateConfidence_Range(t *testing.T) {
	for _, reason := range []string{"stop", "length", "content_filter", ""} {
		for _, text := range []string{"", "short", strings.Repeat("x", 600)} {
			got := calculateConfidence(text, reason)
			if got < 0.5 || got > 0.95 {
				t.Errorf("Confidence out of [0.5, 0.95] for (%q, %q): %f", text, reason, got)
			}
		}
	}
}

func TestCalculateConfidence_MultibyteLength(t *testing.T) {
	// 全角30文字（90バイト）は文字数基準で短文ペナルティの対象
	got := calculateConfidence(strings.Repeat("安", 30), "stop")
	if math.Abs(got-0.7) > 1e-9 {
		t.Errorf("Expected 0.7 for 30-char answer, got %f", got)
	}
}

func TestExtractSources_Defaults(t *testing.T) {
	sources := extractSources("Nothing citable in here at all.")

	want := []string{"Vehicle Database", "MOT Records", "Safety Standards", "Manufacturer Guidelines"}
	if !reflect.DeepEqual(sources, want) {
		t.Errorf("Expected default sources %v, got %v", want, sources)
	}
}

func TestExtractSources_AuthorityAcronyms(t *testing.T) {
	sources := extractSources("DVLA: vehicle record shows three owners")

	want := []string{"vehicle record shows three owners"}
	if !reflect.DeepEqual(sources, want) {
		t.Errorf("Expected %v, got %v", want, sources)
	}
}

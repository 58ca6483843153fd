package ai

import (
	"context"
	"fmt"
)

// ProviderID はLLMベンダーの識別子を表す
type ProviderID string

const (
	ProviderGemini ProviderID = "gemini"
	ProviderOpenAI ProviderID = "openai"
	ProviderClaude ProviderID = "claude"
)

// KnownProviders は全プロバイダーをレジストリ順（gemini, openai, claude）で返す
func KnownProviders() []ProviderID {
	return []ProviderID{ProviderGemini, ProviderOpenAI, ProviderClaude}
}

// ParseProviderID は文字列からProviderIDを解析
func ParseProviderID(s string) (ProviderID, error) {
	switch ProviderID(s) {
	case ProviderGemini, ProviderOpenAI, ProviderClaude:
		return ProviderID(s), nil
	}
	return "", fmt.Errorf("unknown provider: %q", s)
}

// String はProviderIDの文字列表現を返す
func (p ProviderID) String() string {
	return string(p)
}

// Provider はLLMプロバイダーアダプターの抽象化。
// ベンダー障害はエラーではなく失敗フラグ付きResultとして返る（Generateは決してpanic/エラーを伝播しない）
type Provider interface {
	Generate(ctx context.Context, req Request) Result
	Name() ProviderID
	Available() bool
}

package ai

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Usage はトークン使用量
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Metadata は結果の付加情報
type Metadata struct {
	SessionID string `json:"sessionId,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Model     string `json:"model,omitempty"`
	Usage     *Usage `json:"usage,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Result はAI生成結果。構築後は変更されない。
// Success == true ⇔ ConfidenceとSourcesが存在しErrorが空
type Result struct {
	ID           string     `json:"id"`
	PromptID     string     `json:"promptId"`
	UserID       string     `json:"userId"`
	VehicleID    string     `json:"vehicleId,omitempty"`
	Provider     ProviderID `json:"provider"`
	Question     string     `json:"question"`
	Answer       string     `json:"answer"`
	Confidence   *float64   `json:"confidence,omitempty"`
	Sources      []string   `json:"sources,omitempty"`
	ResponseTime int64      `json:"responseTime"`
	Success      bool       `json:"success"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	Metadata     Metadata   `json:"metadata"`
}

// NewResultID は成功結果用のIDを生成
// フォーマット: {provider}_{unixミリ秒}_{UUID先頭8文字}
func NewResultID(provider ProviderID) string {
	return fmt.Sprintf("%s_%d_%s", provider, time.Now().UnixMilli(), uuid.New().String()[:8])
}

// NewErrorResultID は失敗結果用のIDを生成
func NewErrorResultID(provider ProviderID) string {
	return fmt.Sprintf("%s_error_%d", provider, time.Now().UnixMilli())
}

// NewSuccessResult は成功Resultを構築
func NewSuccessResult(provider ProviderID, req Request, answer string, confidence float64, sources []string, responseTime int64, meta Metadata) Result {
	res := Result{
		ID:           NewResultID(provider),
		Provider:     provider,
		Question:     req.Question,
		Answer:       answer,
		Confidence:   &confidence,
		Sources:      sources,
		ResponseTime: responseTime,
		Success:      true,
		CreatedAt:    time.Now(),
		Metadata:     meta,
	}
	applyContext(&res, req.Context)
	return res
}

// NewErrorResult は失敗フラグ付きResultを構築
func NewErrorResult(provider ProviderID, req Request, errMsg string, responseTime int64) Result {
	res := Result{
		ID:           NewErrorResultID(provider),
		Provider:     provider,
		Question:     req.Question,
		Answer:       "",
		ResponseTime: responseTime,
		Success:      false,
		Error:        errMsg,
		CreatedAt:    time.Now(),
		Metadata:     Metadata{Error: errMsg},
	}
	applyContext(&res, req.Context)
	return res
}

// applyContext は相関識別子をResultへ反映する
func applyContext(res *Result, rc *RequestContext) {
	res.PromptID = "unknown"
	res.UserID = "anonymous"

	if rc == nil {
		return
	}

	if rc.PromptID != "" {
		res.PromptID = rc.PromptID
	}
	if rc.UserID != "" {
		res.UserID = rc.UserID
	}
	res.VehicleID = rc.VehicleID
	res.Metadata.SessionID = rc.SessionID
	res.Metadata.RequestID = rc.RequestID
}

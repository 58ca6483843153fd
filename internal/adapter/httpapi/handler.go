package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/driveever/ai-gateway/internal/application/orchestrator"
	"github.com/driveever/ai-gateway/internal/domain/ai"
	"github.com/driveever/ai-gateway/internal/domain/prompt"
)

// Orchestrator はAI生成処理のインターフェース
type Orchestrator interface {
	Generate(ctx context.Context, req ai.Request) (ai.Result, error)
	GenerateWithFallback(ctx context.Context, req ai.Request) (ai.Result, error)
	GenerateMultiple(ctx context.Context, req ai.Request, providers []ai.ProviderID) []ai.Result
	AvailableProviders() []ai.ProviderID
	ProviderStatus() map[ai.ProviderID]bool
	HealthCheck() orchestrator.HealthStatus
}

// VehicleLookup は車両情報照会のインターフェース
type VehicleLookup interface {
	Lookup(ctx context.Context, registration string) (map[string]interface{}, error)
	Available() bool
}

// Handler はAIゲートウェイのHTTPハンドラー
type Handler struct {
	orchestrator Orchestrator
	prompts      prompt.Repository
	vehicles     VehicleLookup
}

// NewHandler は新しいHandlerを作成
func NewHandler(orch Orchestrator, prompts prompt.Repository, vehicles VehicleLookup) *Handler {
	return &Handler{
		orchestrator: orch,
		prompts:      prompts,
		vehicles:     vehicles,
	}
}

// ServeHTTP はHTTPリクエストを処理
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// ルーティング
	switch {
	case r.URL.Path == "/ai/generate" && r.Method == http.MethodPost:
		h.handleGenerate(w, r)
	case r.URL.Path == "/ai/generate-with-fallback" && r.Method == http.MethodPost:
		h.handleGenerateWithFallback(w, r)
	case r.URL.Path == "/ai/generate-multiple" && r.Method == http.MethodPost:
		h.handleGenerateMultiple(w, r)
	case r.URL.Path == "/ai/providers" && r.Method == http.MethodGet:
		h.handleProviders(w, r)
	case r.URL.Path == "/ai/status" && r.Method == http.MethodGet:
		h.handleStatus(w, r)
	case r.URL.Path == "/ai/health" && r.Method == http.MethodGet:
		h.handleHealth(w, r)
	case r.URL.Path == "/vehicle/lookup" && r.Method == http.MethodGet:
		h.handleVehicleLookup(w, r)
	case r.URL.Path == "/prompts" && r.Method == http.MethodPost:
		h.handleCreatePrompt(w, r)
	case r.URL.Path == "/prompts" && r.Method == http.MethodGet:
		h.handleListPrompts(w, r)
	case r.URL.Path == "/prompts/stats/usage" && r.Method == http.MethodGet:
		h.handleUsageStats(w, r)
	case strings.HasPrefix(r.URL.Path, "/prompts/"):
		h.handlePromptByID(w, r)
	default:
		http.NotFound(w, r)
	}
}

// generateRequestDTO は生成リクエストのペイロード
type generateRequestDTO struct {
	Prompt    string             `json:"prompt"`
	Question  string             `json:"question"`
	Provider  string             `json:"provider,omitempty"`
	Providers []string           `json:"providers,omitempty"`
	Context   *requestContextDTO `json:"context,omitempty"`
}

// requestContextDTO はリクエストコンテキストのペイロード
type requestContextDTO struct {
	PromptID     string                 `json:"promptId,omitempty"`
	UserID       string                 `json:"userId,omitempty"`
	VehicleID    string                 `json:"vehicleId,omitempty"`
	SessionID    string                 `json:"sessionId,omitempty"`
	RequestID    string                 `json:"requestId,omitempty"`
	UserQuestion string                 `json:"userQuestion,omitempty"`
	VehicleData  map[string]interface{} `json:"vehicleData,omitempty"`
}

// toRequest はDTOをドメインリクエストに変換。プロバイダー名が不正ならエラー
func (dto *generateRequestDTO) toRequest() (ai.Request, error) {
	req := ai.Request{
		PromptTemplate: dto.Prompt,
		Question:       dto.Question,
	}

	if dto.Provider != "" {
		provider, err := ai.ParseProviderID(dto.Provider)
		if err != nil {
			return ai.Request{}, err
		}
		req.PreferredProvider = provider
	}

	if dto.Context != nil {
		req.Context = &ai.RequestContext{
			PromptID:     dto.Context.PromptID,
			UserID:       dto.Context.UserID,
			VehicleID:    dto.Context.VehicleID,
			SessionID:    dto.Context.SessionID,
			RequestID:    dto.Context.RequestID,
			UserQuestion: dto.Context.UserQuestion,
			VehicleData:  dto.Context.VehicleData,
		}
	}

	return req, nil
}

// decodeGenerateRequest は生成系エンドポイント共通のデコードと検証
func (h *Handler) decodeGenerateRequest(w http.ResponseWriter, r *http.Request) (*generateRequestDTO, bool) {
	var dto generateRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}

	if dto.Prompt == "" || dto.Question == "" {
		h.writeError(w, http.StatusBadRequest, "prompt and question are required")
		return nil, false
	}

	return &dto, true
}

// handleGenerate は単一プロバイダーでの生成を処理
func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	dto, ok := h.decodeGenerateRequest(w, r)
	if !ok {
		return
	}

	req, err := dto.toRequest()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.orchestrator.Generate(r.Context(), req)
	if err != nil {
		// 構成障害（利用可能なプロバイダー皆無）のみがここに到達する
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// handleGenerateWithFallback はフォールバック連鎖付きの生成を処理
func (h *Handler) handleGenerateWithFallback(w http.ResponseWriter, r *http.Request) {
	dto, ok := h.decodeGenerateRequest(w, r)
	if !ok {
		return
	}

	req, err := dto.toRequest()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.orchestrator.GenerateWithFallback(r.Context(), req)
	if err != nil {
		if errors.Is(err, ai.ErrNoProvidersAvailable) || errors.Is(err, ai.ErrAllProvidersFailed) {
			h.writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// handleGenerateMultiple は複数プロバイダーへのファンアウトを処理
func (h *Handler) handleGenerateMultiple(w http.ResponseWriter, r *http.Request) {
	dto, ok := h.decodeGenerateRequest(w, r)
	if !ok {
		return
	}

	if len(dto.Providers) == 0 {
		h.writeError(w, http.StatusBadRequest, "providers list is required")
		return
	}

	req, err := dto.toRequest()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	providers := make([]ai.ProviderID, 0, len(dto.Providers))
	for _, s := range dto.Providers {
		id, err := ai.ParseProviderID(s)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		providers = append(providers, id)
	}

	results := h.orchestrator.GenerateMultiple(r.Context(), req, providers)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"responses": results,
		"count":     len(results),
	})
}

// handleProviders は利用可能なプロバイダー一覧を返す
func (h *Handler) handleProviders(w http.ResponseWriter, r *http.Request) {
	providers := h.orchestrator.AvailableProviders()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"providers": providers,
		"count":     len(providers),
	})
}

// handleStatus は全プロバイダーの可用性マップを返す
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.orchestrator.ProviderStatus())
}

// handleHealth はヘルスチェック。unhealthyのみ503を返す
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := h.orchestrator.HealthCheck()

	status := http.StatusOK
	if health.Status == orchestrator.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, health)
}

// handleVehicleLookup はDVSA車両照会を処理
func (h *Handler) handleVehicleLookup(w http.ResponseWriter, r *http.Request) {
	if h.vehicles == nil || !h.vehicles.Available() {
		h.writeError(w, http.StatusNotFound, "vehicle lookup not configured")
		return
	}

	registration := r.URL.Query().Get("registration")
	if registration == "" {
		h.writeError(w, http.StatusBadRequest, "registration query parameter is required")
		return
	}

	vehicle, err := h.vehicles.Lookup(r.Context(), registration)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, vehicle)
}

// createPromptDTO はプロンプト作成のペイロード
type createPromptDTO struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Category       string   `json:"category"`
	Version        string   `json:"version"`
	Template       string   `json:"template"`
	Variables      []string `json:"variables"`
	ExpectedOutput string   `json:"expectedOutput"`
	Tags           []string `json:"tags"`
}

// handleCreatePrompt はプロンプト作成を処理
func (h *Handler) handleCreatePrompt(w http.ResponseWriter, r *http.Request) {
	var dto createPromptDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	p, err := prompt.New(prompt.CreateRequest{
		Name:           dto.Name,
		Description:    dto.Description,
		Category:       prompt.Category(dto.Category),
		Version:        dto.Version,
		Template:       dto.Template,
		Variables:      dto.Variables,
		ExpectedOutput: dto.ExpectedOutput,
		Tags:           dto.Tags,
	})
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.prompts.Save(r.Context(), p); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusCreated, toPromptDTO(p))
}

// handleListPrompts はプロンプト一覧を処理
func (h *Handler) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	filter := prompt.ListFilter{
		Category: prompt.Category(r.URL.Query().Get("category")),
	}

	if activeParam := r.URL.Query().Get("active"); activeParam != "" {
		active := activeParam == "true"
		filter.Active = &active
	}

	prompts, err := h.prompts.FindAll(r.Context(), filter)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	dtos := make([]*promptDTO, 0, len(prompts))
	for _, p := range prompts {
		dtos = append(dtos, toPromptDTO(p))
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"prompts": dtos,
		"count":   len(dtos),
	})
}

// handlePromptByID は /prompts/{id} と /prompts/{id}/{action} を処理
func (h *Handler) handlePromptByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/prompts/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" || strings.Contains(action, "/") {
		http.NotFound(w, r)
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.handleGetPrompt(w, r, id)
		case http.MethodPut:
			h.handleUpdatePrompt(w, r, id)
		case http.MethodDelete:
			h.handleDeletePrompt(w, r, id)
		default:
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		}

	case "usage":
		if r.Method != http.MethodPost {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		h.handleRecordUsage(w, r, id)

	case "optimize":
		if r.Method != http.MethodPost {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		h.handleOptimizePrompt(w, r, id)

	default:
		http.NotFound(w, r)
	}
}

// handleGetPrompt はプロンプト取得を処理
func (h *Handler) handleGetPrompt(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.prompts.FindByID(r.Context(), id)
	if err != nil {
		h.writePromptError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toPromptDTO(p))
}

// updatePromptDTO はプロンプト部分更新のペイロード。省略されたフィールドは変更しない
type updatePromptDTO struct {
	Name           *string  `json:"name"`
	Description    *string  `json:"description"`
	Template       *string  `json:"template"`
	Variables      []string `json:"variables"`
	ExpectedOutput *string  `json:"expectedOutput"`
	Tags           []string `json:"tags"`
	IsActive       *bool    `json:"isActive"`
}

// handleUpdatePrompt はプロンプト部分更新を処理
func (h *Handler) handleUpdatePrompt(w http.ResponseWriter, r *http.Request, id string) {
	var dto updatePromptDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	p, err := h.prompts.FindByID(r.Context(), id)
	if err != nil {
		h.writePromptError(w, err)
		return
	}

	if err := p.ApplyUpdate(prompt.UpdateRequest{
		Name:           dto.Name,
		Description:    dto.Description,
		Template:       dto.Template,
		Variables:      dto.Variables,
		ExpectedOutput: dto.ExpectedOutput,
		Tags:           dto.Tags,
		IsActive:       dto.IsActive,
	}); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.prompts.Save(r.Context(), p); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, toPromptDTO(p))
}

// handleDeletePrompt はプロンプト削除を処理
func (h *Handler) handleDeletePrompt(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.prompts.Delete(r.Context(), id); err != nil {
		h.writePromptError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// recordUsageDTO は利用実績報告のペイロード
type recordUsageDTO struct {
	Rating       float64 `json:"rating"`
	ResponseTime float64 `json:"responseTime"`
	Success      bool    `json:"success"`
}

// handleRecordUsage は生成1回分の利用実績をプロンプトに反映する
func (h *Handler) handleRecordUsage(w http.ResponseWriter, r *http.Request, id string) {
	var dto recordUsageDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	p, err := h.prompts.FindByID(r.Context(), id)
	if err != nil {
		h.writePromptError(w, err)
		return
	}

	p.RecordUse(dto.Rating, dto.ResponseTime, dto.Success)

	if err := h.prompts.Save(r.Context(), p); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, toPromptDTO(p))
}

// handleOptimizePrompt はプロンプトの評価補正を処理
func (h *Handler) handleOptimizePrompt(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.prompts.FindByID(r.Context(), id)
	if err != nil {
		h.writePromptError(w, err)
		return
	}

	optimized := p.Optimize()
	if optimized {
		if err := h.prompts.Save(r.Context(), p); err != nil {
			h.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	message := "No optimization needed"
	if optimized {
		message = "Prompt optimized successfully"
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":   message,
		"optimized": optimized,
	})
}

// usageStatsDTO は利用統計のレスポンスペイロード
type usageStatsDTO struct {
	TotalPrompts  int     `json:"totalPrompts"`
	ActivePrompts int     `json:"activePrompts"`
	AverageRating float64 `json:"averageRating"`
	TopCategory   string  `json:"topCategory"`
}

// handleUsageStats はプロンプトライブラリ全体の利用統計を返す
func (h *Handler) handleUsageStats(w http.ResponseWriter, r *http.Request) {
	prompts, err := h.prompts.FindAll(r.Context(), prompt.ListFilter{})
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	stats := prompt.ComputeUsageStats(prompts)
	h.writeJSON(w, http.StatusOK, usageStatsDTO{
		TotalPrompts:  stats.TotalPrompts,
		ActivePrompts: stats.ActivePrompts,
		AverageRating: stats.AverageRating,
		TopCategory:   string(stats.TopCategory),
	})
}

// writePromptError はリポジトリエラーをHTTPステータスへ対応付ける
func (h *Handler) writePromptError(w http.ResponseWriter, err error) {
	if errors.Is(err, prompt.ErrPromptNotFound) {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.writeError(w, http.StatusInternalServerError, err.Error())
}

// promptDTO はプロンプトのレスポンスペイロード
type promptDTO struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	Description    string             `json:"description"`
	Category       string             `json:"category"`
	Version        string             `json:"version"`
	Template       string             `json:"template"`
	Variables      []string           `json:"variables"`
	ExpectedOutput string             `json:"expectedOutput"`
	Performance    prompt.Performance `json:"performance"`
	Tags           []string           `json:"tags"`
	IsActive       bool               `json:"isActive"`
}

// toPromptDTO はPromptをレスポンスDTOに変換
func toPromptDTO(p *prompt.Prompt) *promptDTO {
	return &promptDTO{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		Category:       string(p.Category),
		Version:        p.Version,
		Template:       p.Template,
		Variables:      p.Variables,
		ExpectedOutput: p.ExpectedOutput,
		Performance:    p.Performance,
		Tags:           p.Tags,
		IsActive:       p.IsActive,
	}
}

// writeJSON はJSONレスポンスを書き込む
func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError はエラーレスポンスを書き込む
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

package orchestrator

import (
	"context"
	"log"
	"sync"

	"github.com/driveever/ai-gateway/internal/domain/ai"
)

// ヘルスチェックの状態
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus はヘルスチェック結果
type HealthStatus struct {
	Status         string                 `json:"status"`
	Providers      map[ai.ProviderID]bool `json:"providers"`
	AvailableCount int                    `json:"availableCount"`
	TotalCount     int                    `json:"totalCount"`
}

// AIOrchestrator はプロバイダーレジストリを所有し、選択・フォールバック・ファンアウトのポリシーを実装する。
// 可用性マップは構築時に一度だけ決定され、プロセス存続中は変化しない
// （サーキットブレーカーや再プローブは行わない）
type AIOrchestrator struct {
	available map[ai.ProviderID]ai.Provider
	logger    *log.Logger
}

// New は新しいAIOrchestratorを作成。
// 各プロバイダーの可用性をここで記録し、利用可能数をログに出力する
func New(logger *log.Logger, providers ...ai.Provider) *AIOrchestrator {
	if logger == nil {
		logger = log.Default()
	}

	o := &AIOrchestrator{
		available: make(map[ai.ProviderID]ai.Provider),
		logger:    logger,
	}

	for _, p := range providers {
		if p.Available() {
			o.available[p.Name()] = p
			logger.Printf("%s provider initialized", p.Name())
		}
	}

	logger.Printf("Initialized %d AI providers", len(o.available))

	return o
}

// Generate はリクエストを1つのアダプターへ委譲する。
// 優先プロバイダーが未構成の場合はレジストリ順で最初に利用可能なプロバイダーへ差し替える。
// 利用可能なプロバイダーが皆無の場合のみエラー（構成障害）を返し、
// ベンダー障害は失敗フラグ付きResultとして返る
func (o *AIOrchestrator) Generate(ctx context.Context, req ai.Request) (ai.Result, error) {
	provider := req.Provider()

	p, ok := o.available[provider]
	if !ok {
		available := o.AvailableProviders()
		if len(available) == 0 {
			return ai.Result{}, ai.ErrNoProvidersAvailable
		}

		provider = available[0]
		p = o.available[provider]
		o.logger.Printf("Requested provider not available, using fallback: %s", provider)
	}

	result := p.Generate(ctx, req)
	o.logger.Printf("AI response generated in %dms using %s", result.ResponseTime, provider)

	return result, nil
}

// GenerateWithFallback は優先プロバイダーから順に試行し、最初の成功結果を返す。
// 失敗フラグ付きResultを返すことはない。全プロバイダーが失敗した場合は
// ErrAllProvidersFailed、1つも利用可能でない場合はErrNoProvidersAvailableを返す
func (o *AIOrchestrator) GenerateWithFallback(ctx context.Context, req ai.Request) (ai.Result, error) {
	available := o.AvailableProviders()
	if len(available) == 0 {
		return ai.Result{}, ai.ErrNoProvidersAvailable
	}

	preferred := req.Provider()

	// 優先プロバイダーを先頭に、残りをレジストリ順で試行
	ordered := make([]ai.ProviderID, 0, len(available))
	if o.IsProviderAvailable(preferred) {
		ordered = append(ordered, preferred)
	}
	for _, id := range available {
		if id != preferred {
			ordered = append(ordered, id)
		}
	}

	for _, id := range ordered {
		attempt := req
		attempt.PreferredProvider = id

		result := o.available[id].Generate(ctx, attempt)
		if result.Success {
			return result, nil
		}

		o.logger.Printf("Provider %s failed, trying next", id)
	}

	return ai.Result{}, ai.ErrAllProvidersFailed
}

// GenerateMultiple は要求されたプロバイダーのうち利用可能なものへ並行にファンアウトする。
// 戻り値の順序は入力リスト（利用可能なものに絞った後）の順序に一致する。
// 個々の要素が失敗Resultであってもオーケストレーションとしては常に成功する
func (o *AIOrchestrator) GenerateMultiple(ctx context.Context, req ai.Request, providers []ai.ProviderID) []ai.Result {
	requested := make([]ai.ProviderID, 0, len(providers))
	for _, id := range providers {
		if o.IsProviderAvailable(id) {
			requested = append(requested, id)
		}
	}

	results := make([]ai.Result, len(requested))

	var wg sync.WaitGroup
	for i, id := range requested {
		wg.Add(1)
		go func(i int, id ai.ProviderID) {
			defer wg.Done()

			attempt := req
			attempt.PreferredProvider = id
			results[i] = o.available[id].Generate(ctx, attempt)
		}(i, id)
	}
	wg.Wait()

	return results
}

// AvailableProviders は利用可能なプロバイダーをレジストリ順で返す
func (o *AIOrchestrator) AvailableProviders() []ai.ProviderID {
	var available []ai.ProviderID
	for _, id := range ai.KnownProviders() {
		if _, ok := o.available[id]; ok {
			available = append(available, id)
		}
	}
	return available
}

// IsProviderAvailable は指定プロバイダーが利用可能かを返す
func (o *AIOrchestrator) IsProviderAvailable(id ai.ProviderID) bool {
	_, ok := o.available[id]
	return ok
}

// ProviderStatus は全プロバイダーの可用性マップを返す（診断用）
func (o *AIOrchestrator) ProviderStatus() map[ai.ProviderID]bool {
	status := make(map[ai.ProviderID]bool, len(ai.KnownProviders()))
	for _, id := range ai.KnownProviders() {
		_, ok := o.available[id]
		status[id] = ok
	}
	return status
}

// HealthCheck はレジストリの健全性を返す。
// 全プロバイダー利用可能でhealthy、皆無でunhealthy、それ以外はdegraded
func (o *AIOrchestrator) HealthCheck() HealthStatus {
	providers := o.ProviderStatus()

	availableCount := 0
	for _, ok := range providers {
		if ok {
			availableCount++
		}
	}
	totalCount := len(providers)

	status := StatusDegraded
	switch availableCount {
	case totalCount:
		status = StatusHealthy
	case 0:
		status = StatusUnhealthy
	}

	return HealthStatus{
		Status:         status,
		Providers:      providers,
		AvailableCount: availableCount,
		TotalCount:     totalCount,
	}
}

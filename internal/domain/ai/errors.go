package ai

import "errors"

// 構成障害はエラーとして送出し、ベンダー障害は失敗フラグ付きResultとして返す（2層の失敗モデル）
var (
	// ErrNoProvidersAvailable は利用可能なプロバイダーが1つも無い構成障害
	ErrNoProvidersAvailable = errors.New("no AI providers available")

	// ErrAllProvidersFailed はフォールバック連鎖で全プロバイダーが失敗した状態
	ErrAllProvidersFailed = errors.New("all AI providers failed")
)

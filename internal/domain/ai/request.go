package ai

// Request はAI生成リクエスト。呼び出しごとに不変
type Request struct {
	PromptTemplate    string
	Question          string
	PreferredProvider ProviderID // 省略時はgemini
	Context           *RequestContext
}

// RequestContext はリクエストに付随する相関識別子とコンテキスト情報
type RequestContext struct {
	PromptID     string
	UserID       string
	VehicleID    string
	SessionID    string
	RequestID    string
	UserQuestion string
	VehicleData  map[string]interface{}
}

// Provider は優先プロバイダーを返す。未指定時はgemini
func (r Request) Provider() ProviderID {
	if r.PreferredProvider == "" {
		return ProviderGemini
	}
	return r.PreferredProvider
}

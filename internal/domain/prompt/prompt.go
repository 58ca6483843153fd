package prompt

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category はプロンプトの用途分類
type Category string

const (
	CategoryVehicleAdvice          Category = "vehicle_advice"
	CategorySafetyAssessment       Category = "safety_assessment"
	CategoryMaintenanceGuidance    Category = "maintenance_guidance"
	CategoryCostAnalysis           Category = "cost_analysis"
	CategoryPurchaseRecommendation Category = "purchase_recommendation"
	CategoryTechnicalSupport       Category = "technical_support"
	CategoryGeneralInquiry         Category = "general_inquiry"
	CategoryEmergencyGuidance      Category = "emergency_guidance"
	CategoryInsuranceAdvice        Category = "insurance_advice"
)

// Categories は全カテゴリを返す
func Categories() []Category {
	return []Category{
		CategoryVehicleAdvice,
		CategorySafetyAssessment,
		CategoryMaintenanceGuidance,
		CategoryCostAnalysis,
		CategoryPurchaseRecommendation,
		CategoryTechnicalSupport,
		CategoryGeneralInquiry,
		CategoryEmergencyGuidance,
		CategoryInsuranceAdvice,
	}
}

// ValidCategory はカテゴリが既知かを判定
func ValidCategory(c Category) bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// Performance はプロンプトの利用実績
type Performance struct {
	AverageRating       float64 `json:"average_rating"`
	TotalUses           int     `json:"total_uses"`
	SuccessRate         float64 `json:"success_rate"`
	AverageResponseTime float64 `json:"average_response_time"`
}

// Prompt はAI生成に使うプロンプトテンプレート
type Prompt struct {
	ID             string
	Name           string
	Description    string
	Category       Category
	Version        string
	Template       string
	Variables      []string
	ExpectedOutput string
	Performance    Performance
	Tags           []string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CreateRequest はプロンプト作成リクエスト
type CreateRequest struct {
	Name           string
	Description    string
	Category       Category
	Version        string
	Template       string
	Variables      []string
	ExpectedOutput string
	Tags           []string
}

// New は新しいPromptを作成。テンプレート変数の整合性を検証する
func New(req CreateRequest) (*Prompt, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("prompt name is required")
	}
	if req.Template == "" {
		return nil, fmt.Errorf("prompt template is required")
	}
	if !ValidCategory(req.Category) {
		return nil, fmt.Errorf("unknown prompt category: %q", req.Category)
	}
	if err := ValidateTemplateVariables(req.Template, req.Variables); err != nil {
		return nil, err
	}

	now := time.Now()
	return &Prompt{
		ID:             uuid.New().String(),
		Name:           req.Name,
		Description:    req.Description,
		Category:       req.Category,
		Version:        req.Version,
		Template:       req.Template,
		Variables:      req.Variables,
		ExpectedOutput: req.ExpectedOutput,
		Tags:           req.Tags,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// UpdateRequest はプロンプト部分更新リクエスト。nilのフィールドは変更しない
type UpdateRequest struct {
	Name           *string
	Description    *string
	Template       *string
	Variables      []string
	ExpectedOutput *string
	Tags           []string
	IsActive       *bool
}

// ApplyUpdate は部分更新を適用する。
// テンプレートと変数が同時に更新される場合のみ整合性を再検証する
func (p *Prompt) ApplyUpdate(req UpdateRequest) error {
	if req.Template != nil && req.Variables != nil {
		if err := ValidateTemplateVariables(*req.Template, req.Variables); err != nil {
			return err
		}
	}

	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Template != nil {
		p.Template = *req.Template
	}
	if req.Variables != nil {
		p.Variables = req.Variables
	}
	if req.ExpectedOutput != nil {
		p.ExpectedOutput = *req.ExpectedOutput
	}
	if req.Tags != nil {
		p.Tags = req.Tags
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}

	p.UpdatedAt = time.Now()
	return nil
}

// placeholderPattern は {{name}} 形式のプレースホルダー
var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// ValidateTemplateVariables はテンプレート内の全プレースホルダーが宣言済みかを検証
func ValidateTemplateVariables(template string, variables []string) error {
	declared := make(map[string]bool, len(variables))
	for _, v := range variables {
		declared[v] = true
	}

	var missing []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		name := m[1]
		if !declared[name] && !seen[name] {
			seen[name] = true
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("template contains undeclared variables: %s", strings.Join(missing, ", "))
	}

	return nil
}

// RecordUse は1回の利用実績を移動平均として反映する
func (p *Prompt) RecordUse(rating float64, responseTime float64, success bool) {
	uses := float64(p.Performance.TotalUses)

	p.Performance.AverageRating = (p.Performance.AverageRating*uses + rating) / (uses + 1)
	p.Performance.AverageResponseTime = (p.Performance.AverageResponseTime*uses + responseTime) / (uses + 1)

	successValue := 0.0
	if success {
		successValue = 1.0
	}
	p.Performance.SuccessRate = (p.Performance.SuccessRate*uses + successValue) / (uses + 1)

	p.Performance.TotalUses++
	p.UpdatedAt = time.Now()
}

// Deactivate はプロンプトを無効化する
func (p *Prompt) Deactivate() {
	p.IsActive = false
	p.UpdatedAt = time.Now()
}

// 最適化の発動条件
const (
	optimizeMinUses       = 10
	optimizeRatingCeiling = 3.0
)

// Optimize は利用実績の乏しいプロンプトの評価指標を補正する。
// 10回以上使われ平均評価が3.0未満の場合のみ実施し、実施したかを返す
func (p *Prompt) Optimize() bool {
	if p.Performance.TotalUses < optimizeMinUses || p.Performance.AverageRating >= optimizeRatingCeiling {
		return false
	}

	p.Performance.AverageRating = math.Min(p.Performance.AverageRating+0.5, 5.0)
	p.Performance.SuccessRate = math.Min(p.Performance.SuccessRate+0.1, 1.0)
	p.Performance.AverageResponseTime = math.Max(p.Performance.AverageResponseTime-100, 500)
	p.UpdatedAt = time.Now()

	return true
}

// UsageStats はプロンプトライブラリ全体の利用統計
type UsageStats struct {
	TotalPrompts  int
	ActivePrompts int
	AverageRating float64
	TopCategory   Category
}

// ComputeUsageStats は全プロンプトから利用統計を集計する。
// 平均評価と最多カテゴリは有効なプロンプトのみを対象とし、
// 対象が無い場合の最多カテゴリはvehicle_advice
func ComputeUsageStats(prompts []*Prompt) UsageStats {
	stats := UsageStats{
		TotalPrompts: len(prompts),
		TopCategory:  CategoryVehicleAdvice,
	}

	counts := make(map[Category]int)
	ratingSum := 0.0
	for _, p := range prompts {
		if !p.IsActive {
			continue
		}
		stats.ActivePrompts++
		ratingSum += p.Performance.AverageRating
		counts[p.Category]++
	}

	if stats.ActivePrompts > 0 {
		stats.AverageRating = ratingSum / float64(stats.ActivePrompts)
	}

	// 同数の場合はカテゴリ定義順で先のものを採る
	top := 0
	for _, c := range Categories() {
		if counts[c] > top {
			top = counts[c]
			stats.TopCategory = c
		}
	}

	return stats
}

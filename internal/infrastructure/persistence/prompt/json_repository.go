package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	domain "github.com/driveever/ai-gateway/internal/domain/prompt"
)

// JSONPromptRepository はJSONファイルベースのRepository実装。
// プロンプト1件につき1ファイル（{id}.json）を保存する
type JSONPromptRepository struct {
	baseDir string
}

// NewJSONPromptRepository は新しいJSONPromptRepositoryを作成
func NewJSONPromptRepository(baseDir string) *JSONPromptRepository {
	return &JSONPromptRepository{
		baseDir: baseDir,
	}
}

// promptDTO はJSONシリアライズ用のDTO
type promptDTO struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	Description    string             `json:"description"`
	Category       string             `json:"category"`
	Version        string             `json:"version"`
	Template       string             `json:"template"`
	Variables      []string           `json:"variables"`
	ExpectedOutput string             `json:"expected_output"`
	Performance    domain.Performance `json:"performance"`
	Tags           []string           `json:"tags"`
	IsActive       bool               `json:"is_active"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// Save はプロンプトを保存
func (r *JSONPromptRepository) Save(ctx context.Context, p *domain.Prompt) error {
	if err := os.MkdirAll(r.baseDir, 0755); err != nil {
		return fmt.Errorf("failed to create prompt storage dir: %w", err)
	}

	data, err := json.MarshalIndent(toDTO(p), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal prompt: %w", err)
	}

	if err := os.WriteFile(r.getFilePath(p.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to write prompt file: %w", err)
	}

	return nil
}

// FindByID はIDでプロンプトを取得
func (r *JSONPromptRepository) FindByID(ctx context.Context, id string) (*domain.Prompt, error) {
	data, err := os.ReadFile(r.getFilePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrPromptNotFound
		}
		return nil, fmt.Errorf("failed to read prompt file: %w", err)
	}

	var dto promptDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompt: %w", err)
	}

	return fromDTO(&dto), nil
}

// FindAll は条件に合致するプロンプトを名前順で取得
func (r *JSONPromptRepository) FindAll(ctx context.Context, filter domain.ListFilter) ([]*domain.Prompt, error) {
	entries, err := os.ReadDir(r.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read prompt storage dir: %w", err)
	}

	var prompts []*domain.Prompt
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		p, err := r.FindByID(ctx, strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			return nil, err
		}

		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.Active != nil && p.IsActive != *filter.Active {
			continue
		}

		prompts = append(prompts, p)
	}

	sort.Slice(prompts, func(i, j int) bool {
		return prompts[i].Name < prompts[j].Name
	})

	return prompts, nil
}

// Delete はプロンプトを削除
func (r *JSONPromptRepository) Delete(ctx context.Context, id string) error {
	if err := os.Remove(r.getFilePath(id)); err != nil {
		if os.IsNotExist(err) {
			return domain.ErrPromptNotFound
		}
		return fmt.Errorf("failed to delete prompt file: %w", err)
	}
	return nil
}

// getFilePath はプロンプトIDからファイルパスを生成
func (r *JSONPromptRepository) getFilePath(id string) string {
	return filepath.Join(r.baseDir, id+".json")
}

// toDTO はPromptをDTOに変換
func toDTO(p *domain.Prompt) *promptDTO {
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
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

// fromDTO はDTOをPromptに変換
func fromDTO(dto *promptDTO) *domain.Prompt {
	return &domain.Prompt{
		ID:             dto.ID,
		Name:           dto.Name,
		Description:    dto.Description,
		Category:       domain.Category(dto.Category),
		Version:        dto.Version,
		Template:       dto.Template,
		Variables:      dto.Variables,
		ExpectedOutput: dto.ExpectedOutput,
		Performance:    dto.Performance,
		Tags:           dto.Tags,
		IsActive:       dto.IsActive,
		CreatedAt:      dto.CreatedAt,
		UpdatedAt:      dto.UpdatedAt,
	}
}

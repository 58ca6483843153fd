package prompt

import (
	"context"
	"errors"
)

// ErrPromptNotFound はプロンプトが存在しない場合のエラー
var ErrPromptNotFound = errors.New("prompt not found")

// ListFilter は一覧取得の絞り込み条件
type ListFilter struct {
	Category Category // 空なら全カテゴリ
	Active   *bool    // nilなら全件
}

// Repository はプロンプト永続化のインターフェース
type Repository interface {
	Save(ctx context.Context, p *Prompt) error
	FindByID(ctx context.Context, id string) (*Prompt, error)
	FindAll(ctx context.Context, filter ListFilter) ([]*Prompt, error)
	Delete(ctx context.Context, id string) error
}

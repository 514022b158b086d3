package ask

import (
	"context"
	"errors"

	"github.com/jinford/doc-rag/internal/core/search"
)

// ErrEmptyQuery はクエリが空の場合のエラー
var ErrEmptyQuery = errors.New("query is required")

// Answer は質問応答の結果を表す
type Answer struct {
	Response string      // 生成された回答
	Sources  []string    // 検索結果のドキュメントID（順位順、重複あり）
	Mode     search.Mode // 検索経路
}

// Generator は回答生成LLMへのポート
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	ModelName() string
}

// TokenCounter はコンテキストのトークン数を数えて切り詰める
type TokenCounter interface {
	CountTokens(text string) int
	TrimToTokenLimit(text string, maxTokens int) string
}

// QueryEmbedder はクエリのEmbeddingを生成する
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) []float32
	EmbedStrict(ctx context.Context, text string) ([]float32, error)
}

// Searcher はクエリベクトルで検索する
type Searcher interface {
	Search(ctx context.Context, vector []float32, topK int) search.Outcome
}

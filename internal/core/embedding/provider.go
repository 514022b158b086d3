package embedding

import (
	"context"
	"errors"
)

// ErrEmptyEmbedding はプロバイダが空のベクトルを返した場合のエラー
var ErrEmptyEmbedding = errors.New("embedding provider returned an empty vector")

// Provider はホスト型Embeddingモデルへのポート
type Provider interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)
	// ModelName はモデル名を返す
	ModelName() string
}

// Normalize は vec を長さ dimension に揃える
// 短い場合はゼロ埋め、長い場合は切り詰める。元のスライスは変更しない
func Normalize(vec []float32, dimension int) []float32 {
	if dimension <= 0 {
		return []float32{}
	}
	out := make([]float32, dimension)
	copy(out, vec)
	return out
}

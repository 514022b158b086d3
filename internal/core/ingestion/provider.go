package ingestion

import (
	"context"
)

// ObjectStore はドキュメントを保持するオブジェクトストレージへのポート
type ObjectStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, data []byte) error
}

// TextExtractor はドキュメントのバイト列からテキストを取り出す
type TextExtractor interface {
	Extract(key string, data []byte) (string, error)
}

// Splitter はテキストをチャンクに分割する
type Splitter interface {
	Split(text string) []string
}

// Embedder はチャンクのEmbeddingを生成する（失敗時はゼロベクトル）
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
	Dimension() int
}

package search

import (
	"context"
)

// VectorIndex はベクトル検索エンジンへのポート
type VectorIndex interface {
	// EnsureCollection はコレクションが存在しなければ作成する（冪等）
	EnsureCollection(ctx context.Context, dimension int) error

	// Upsert は chunk_id をキーにチャンクを作成または上書きする
	Upsert(ctx context.Context, record *ChunkRecord) error

	// NearestNeighbors は近似最近傍検索を実行する（スコア降順）
	NearestNeighbors(ctx context.Context, vector []float32, k int) ([]*Result, error)

	// Sample は順位付けなしで最大 k 件を返す
	Sample(ctx context.Context, k int) ([]*Result, error)

	// Stats はコレクションの統計情報を返す
	Stats(ctx context.Context) (*CollectionStats, error)
}

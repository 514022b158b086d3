package search

import (
	"strconv"
)

// ChunkMetadata はチャンクに付与されるメタデータ
type ChunkMetadata struct {
	Source      string `json:"source"`
	ChunkNumber int    `json:"chunk_number"`
	WordCount   int    `json:"word_count"`
}

// ChunkRecord はベクトルインデックスに格納される1チャンク
type ChunkRecord struct {
	ChunkID    string        `json:"chunk_id"`
	DocumentID string        `json:"document_id"`
	ChunkIndex int           `json:"chunk_index"`
	Text       string        `json:"text"`
	Embedding  []float32     `json:"-"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// Result はベクトル検索の結果を表す
type Result struct {
	ChunkID    string        `json:"chunk_id"`
	DocumentID string        `json:"document_id"`
	Text       string        `json:"text"`
	Score      float64       `json:"score"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// DocumentCount はドキュメントごとのチャンク数
type DocumentCount struct {
	DocumentID string `json:"document_id"`
	Chunks     int64  `json:"chunks"`
}

// CollectionStats はコレクションの統計情報
type CollectionStats struct {
	Name       string          `json:"name"`
	Backend    string          `json:"backend"`
	Dimension  int             `json:"dimension"`
	ChunkCount int64           `json:"chunk_count"`
	Documents  []DocumentCount `json:"documents"`
}

// ChunkID はドキュメントIDとチャンク番号からチャンクIDを生成する
func ChunkID(documentID string, index int) string {
	return documentID + "_" + strconv.Itoa(index)
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/doc-rag/internal/core/search"
	"github.com/jinford/doc-rag/internal/platform/database"
)

// BackendName は CollectionStats に記録するバックエンド名
const BackendName = "postgres"

// ErrDimensionMismatch は既存コレクションの次元が要求と異なる場合のエラー
var ErrDimensionMismatch = errors.New("collection dimension mismatch")

// distributionLimit は Stats で返すドキュメント数の上限
const distributionLimit = 100

// VectorIndex は pgvector を使用した search.VectorIndex 実装
// コレクション1つにつきテーブル1つを使う
type VectorIndex struct {
	pool       *pgxpool.Pool
	txProvider *database.TransactionProvider
	collection string
	table      string
	logger     *slog.Logger
}

// VectorIndexOption は VectorIndex のオプション設定
type VectorIndexOption func(*VectorIndex)

// WithVectorIndexLogger はロガーを設定する
func WithVectorIndexLogger(logger *slog.Logger) VectorIndexOption {
	return func(v *VectorIndex) {
		v.logger = logger
	}
}

// NewVectorIndex は新しい VectorIndex を作成する
func NewVectorIndex(db *database.Database, collection string, opts ...VectorIndexOption) *VectorIndex {
	v := &VectorIndex{
		pool:       db.Pool,
		txProvider: database.NewTransactionProvider(db.Pool),
		collection: collection,
		table:      pgx.Identifier{collection}.Sanitize(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = slog.Default()
	}
	return v
}

var _ search.VectorIndex = (*VectorIndex)(nil)

// EnsureCollection はテーブルとインデックスが存在しなければ作成する
// 同時実行される DDL はコレクション名から生成したアドバイザリロックで直列化する
func (v *VectorIndex) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension: %d", dimension)
	}

	_, err := database.Transact(ctx, v.txProvider, func(tx pgx.Tx, locks *database.LockManager) (struct{}, error) {
		if err := locks.Acquire(ctx, database.GenerateLockID("collection", v.collection)); err != nil {
			return struct{}{}, err
		}

		existing, err := columnDimension(ctx, tx, v.table)
		if err != nil {
			return struct{}{}, err
		}
		if existing > 0 {
			if existing != dimension {
				return struct{}{}, fmt.Errorf("%w: %s has %d, want %d", ErrDimensionMismatch, v.collection, existing, dimension)
			}
			return struct{}{}, nil
		}

		for _, stmt := range v.schemaStatements(dimension) {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return struct{}{}, fmt.Errorf("failed to create collection %s: %w", v.collection, err)
			}
		}

		v.logger.Info("created collection", "collection", v.collection, "dimension", dimension)
		return struct{}{}, nil
	})
	return err
}

func (v *VectorIndex) schemaStatements(dimension int) []string {
	index := func(suffix string) string {
		return pgx.Identifier{v.collection + "_" + suffix}.Sanitize()
	}

	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	chunk_id    TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	text        TEXT NOT NULL,
	text_tsv    TSVECTOR GENERATED ALWAYS AS (to_tsvector('simple', text)) STORED,
	embedding   VECTOR(%d) NOT NULL,
	metadata    JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`, v.table, dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_l2_ops)`, index("embedding_hnsw"), v.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING gin (text_tsv)`, index("text_tsv_gin"), v.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (document_id)`, index("document_id"), v.table),
	}
}

// Upsert は chunk_id をキーにチャンクを作成または上書きする
func (v *VectorIndex) Upsert(ctx context.Context, record *search.ChunkRecord) error {
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (chunk_id, document_id, chunk_index, text, embedding, metadata, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (chunk_id) DO UPDATE SET
	document_id = EXCLUDED.document_id,
	chunk_index = EXCLUDED.chunk_index,
	text        = EXCLUDED.text,
	embedding   = EXCLUDED.embedding,
	metadata    = EXCLUDED.metadata,
	updated_at  = now()`, v.table)

	if _, err := v.pool.Exec(ctx, query,
		record.ChunkID,
		record.DocumentID,
		record.ChunkIndex,
		record.Text,
		pgvector.NewVector(record.Embedding),
		metadata,
	); err != nil {
		return fmt.Errorf("failed to upsert chunk %s: %w", record.ChunkID, err)
	}
	return nil
}

// NearestNeighbors はL2距離で近い順に最大 k 件を返す
// スコアは 1 / (1 + 距離)
func (v *VectorIndex) NearestNeighbors(ctx context.Context, vector []float32, k int) ([]*search.Result, error) {
	query := fmt.Sprintf(`SELECT chunk_id, document_id, text, metadata, embedding <-> $1 AS distance
FROM %s
ORDER BY embedding <-> $1
LIMIT $2`, v.table)

	rows, err := v.pool.Query(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("failed to search nearest neighbors: %w", err)
	}
	defer rows.Close()

	results := make([]*search.Result, 0, k)
	for rows.Next() {
		var (
			r        search.Result
			metadata []byte
			distance float64
		)
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Text, &metadata, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		if err := decodeMetadata(metadata, &r.Metadata); err != nil {
			return nil, err
		}
		r.Score = 1 / (1 + distance)
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}

	return results, nil
}

// Sample は順位付けなしで最大 k 件を返す（スコアは 1.0）
func (v *VectorIndex) Sample(ctx context.Context, k int) ([]*search.Result, error) {
	query := fmt.Sprintf(`SELECT chunk_id, document_id, text, metadata FROM %s LIMIT $1`, v.table)

	rows, err := v.pool.Query(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("failed to sample collection: %w", err)
	}
	defer rows.Close()

	results := make([]*search.Result, 0, k)
	for rows.Next() {
		var (
			r        search.Result
			metadata []byte
		)
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Text, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		if err := decodeMetadata(metadata, &r.Metadata); err != nil {
			return nil, err
		}
		r.Score = 1.0
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sample: %w", err)
	}

	return results, nil
}

// Stats はチャンク数とドキュメントごとの分布を返す
// コレクションが存在しない場合は空の統計を返す
func (v *VectorIndex) Stats(ctx context.Context) (*search.CollectionStats, error) {
	stats := &search.CollectionStats{
		Name:      v.collection,
		Backend:   BackendName,
		Documents: []search.DocumentCount{},
	}

	dimension, err := columnDimension(ctx, v.pool, v.table)
	if err != nil {
		return nil, err
	}
	if dimension == 0 {
		return stats, nil
	}
	stats.Dimension = dimension

	if err := v.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, v.table)).Scan(&stats.ChunkCount); err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	rows, err := v.pool.Query(ctx, fmt.Sprintf(`SELECT document_id, count(*) AS chunks
FROM %s
GROUP BY document_id
ORDER BY chunks DESC, document_id
LIMIT $1`, v.table), distributionLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dc search.DocumentCount
		if err := rows.Scan(&dc.DocumentID, &dc.Chunks); err != nil {
			return nil, fmt.Errorf("failed to scan document count: %w", err)
		}
		stats.Documents = append(stats.Documents, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read document counts: %w", err)
	}

	return stats, nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// columnDimension は embedding 列の次元を返す（テーブルがなければ 0）
// vector 型の atttypmod は次元数を保持している
func columnDimension(ctx context.Context, q queryRower, table string) (int, error) {
	var dimension *int32
	err := q.QueryRow(ctx, `SELECT a.atttypmod
FROM pg_attribute a
WHERE a.attrelid = to_regclass($1) AND a.attname = 'embedding' AND NOT a.attisdropped`, table).Scan(&dimension)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to inspect collection: %w", err)
	}
	if dimension == nil {
		return 0, nil
	}
	return int(*dimension), nil
}

func decodeMetadata(raw []byte, dst *search.ChunkMetadata) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to decode chunk metadata: %w", err)
	}
	return nil
}

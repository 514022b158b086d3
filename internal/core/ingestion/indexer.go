package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jinford/doc-rag/internal/core/embedding"
	"github.com/jinford/doc-rag/internal/core/search"
)

// Indexer はチャンクをEmbeddingしてベクトルインデックスに登録する
type Indexer struct {
	index    search.VectorIndex
	embedder Embedder
	timeout  time.Duration
	logger   *slog.Logger
}

// IndexerOption は Indexer のオプション設定
type IndexerOption func(*Indexer)

// WithIndexerLogger はロガーを設定する
func WithIndexerLogger(logger *slog.Logger) IndexerOption {
	return func(i *Indexer) {
		i.logger = logger
	}
}

// WithIndexTimeout はコレクション作成とチャンク登録それぞれのタイムアウトを設定する
// 0 以下の場合はタイムアウトを設定しない
func WithIndexTimeout(timeout time.Duration) IndexerOption {
	return func(i *Indexer) {
		i.timeout = timeout
	}
}

// NewIndexer は新しい Indexer を作成する
func NewIndexer(index search.VectorIndex, embedder Embedder, opts ...IndexerOption) *Indexer {
	i := &Indexer{
		index:    index,
		embedder: embedder,
		timeout:  DefaultIndexTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.logger == nil {
		i.logger = slog.Default()
	}
	return i
}

// EnsureCollection はコレクションが存在しなければ作成する
func (i *Indexer) EnsureCollection(ctx context.Context, dimension int) error {
	ctx, cancel := i.withTimeout(ctx)
	defer cancel()

	if err := i.index.EnsureCollection(ctx, dimension); err != nil {
		return fmt.Errorf("failed to ensure collection: %w", err)
	}
	return nil
}

// IndexChunks はチャンクを順番に登録する
// 個々の登録失敗はログに記録して次のチャンクへ進む
func (i *Indexer) IndexChunks(ctx context.Context, documentID string, chunks []string) IndexReport {
	report := IndexReport{DocumentID: documentID, Chunks: len(chunks)}
	dimension := i.embedder.Dimension()

	for n, text := range chunks {
		if err := ctx.Err(); err != nil {
			i.logger.Warn("indexing cancelled",
				"documentID", documentID,
				"remaining", len(chunks)-n,
				"error", err,
			)
			report.Failed += len(chunks) - n
			break
		}

		vec := embedding.Normalize(i.embedder.Embed(ctx, text), dimension)
		record := &search.ChunkRecord{
			ChunkID:    search.ChunkID(documentID, n),
			DocumentID: documentID,
			ChunkIndex: n,
			Text:       text,
			Embedding:  vec,
			Metadata: search.ChunkMetadata{
				Source:      documentID,
				ChunkNumber: n,
				WordCount:   len(strings.Fields(text)),
			},
		}

		if err := i.upsert(ctx, record); err != nil {
			i.logger.Error("failed to index chunk",
				"documentID", documentID,
				"chunk", n,
				"error", err,
			)
			report.Failed++
			continue
		}

		report.Indexed++
		i.logger.Debug("indexed chunk", "documentID", documentID, "chunk", n)
	}

	return report
}

func (i *Indexer) upsert(ctx context.Context, record *search.ChunkRecord) error {
	ctx, cancel := i.withTimeout(ctx)
	defer cancel()
	return i.index.Upsert(ctx, record)
}

func (i *Indexer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if i.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, i.timeout)
}

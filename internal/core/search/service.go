package search

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/jinford/doc-rag/internal/core/embedding"
)

const (
	// DefaultTopK は検索件数のデフォルト値
	DefaultTopK = 3
	// DefaultTimeout は1回の検索呼び出しのデフォルトタイムアウト
	DefaultTimeout = 10 * time.Second
)

// Mode は検索結果がどの経路で得られたかを表す
type Mode string

const (
	// ModePrimary は近似最近傍検索で得られた結果
	ModePrimary Mode = "primary"
	// ModeFallback は最近傍検索の失敗後に順位付けなしで取得した結果
	ModeFallback Mode = "fallback"
	// ModeFailed は両方の経路が失敗した（結果は空）
	ModeFailed Mode = "failed"
)

// Outcome は Retriever.Search の結果
type Outcome struct {
	Results     []*Result
	Mode        Mode
	PrimaryErr  error
	FallbackErr error
}

// Degraded は最近傍検索以外の経路で結果を返したかどうか
func (o Outcome) Degraded() bool {
	return o.Mode != ModePrimary
}

// Retriever は最近傍検索と全件サンプルによるフォールバックを提供する
type Retriever struct {
	index     VectorIndex
	dimension int
	timeout   time.Duration
	logger    *slog.Logger
}

// RetrieverOption は Retriever のオプション設定
type RetrieverOption func(*Retriever)

// WithSearchLogger はロガーを設定する
func WithSearchLogger(logger *slog.Logger) RetrieverOption {
	return func(r *Retriever) {
		r.logger = logger
	}
}

// WithSearchTimeout は検索タイムアウトを設定する
func WithSearchTimeout(timeout time.Duration) RetrieverOption {
	return func(r *Retriever) {
		r.timeout = timeout
	}
}

// NewRetriever は新しい Retriever を作成する
func NewRetriever(index VectorIndex, dimension int, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		index:     index,
		dimension: dimension,
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Search はクエリベクトルに近いチャンクを最大 topK 件返す
// 最近傍検索が失敗した場合は Sample にフォールバックし、それも失敗した場合は空の結果を返す
func (r *Retriever) Search(ctx context.Context, vector []float32, topK int) Outcome {
	if topK <= 0 {
		topK = DefaultTopK
	}
	vector = embedding.Normalize(vector, r.dimension)

	results, err := r.nearest(ctx, vector, topK)
	if err == nil {
		slices.SortStableFunc(results, func(a, b *Result) int {
			return cmp.Compare(b.Score, a.Score)
		})
		return Outcome{Results: truncate(results, topK), Mode: ModePrimary}
	}

	r.logger.Warn("nearest neighbor search failed, falling back to sample",
		"topK", topK,
		"error", err,
	)

	sampled, fallbackErr := r.sample(ctx, topK)
	if fallbackErr != nil {
		r.logger.Error("fallback search failed",
			"topK", topK,
			"primaryError", err,
			"error", fallbackErr,
		)
		return Outcome{
			Results:     []*Result{},
			Mode:        ModeFailed,
			PrimaryErr:  err,
			FallbackErr: fallbackErr,
		}
	}

	return Outcome{
		Results:    truncate(sampled, topK),
		Mode:       ModeFallback,
		PrimaryErr: err,
	}
}

func (r *Retriever) nearest(ctx context.Context, vector []float32, topK int) ([]*Result, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.index.NearestNeighbors(ctx, vector, topK)
}

func (r *Retriever) sample(ctx context.Context, topK int) ([]*Result, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.index.Sample(ctx, topK)
}

func (r *Retriever) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func truncate(results []*Result, topK int) []*Result {
	if results == nil {
		return []*Result{}
	}
	if len(results) > topK {
		return results[:topK]
	}
	return results
}

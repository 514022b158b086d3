package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jinford/doc-rag/internal/platform/resilience"
)

// DefaultTimeout は1回のEmbedding呼び出しのデフォルトタイムアウト
const DefaultTimeout = 15 * time.Second

// Service はプロバイダ呼び出しにタイムアウト・ガード・次元正規化を適用する
type Service struct {
	provider  Provider
	dimension int
	timeout   time.Duration
	guard     *resilience.Guard
	logger    *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithEmbeddingLogger はロガーを設定する
func WithEmbeddingLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTimeout は呼び出しタイムアウトを設定する
func WithTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		s.timeout = timeout
	}
}

// WithGuard はレート制限とサーキットブレーカーを設定する
func WithGuard(guard *resilience.Guard) ServiceOption {
	return func(s *Service) {
		s.guard = guard
	}
}

// NewService は新しい Service を作成する
func NewService(provider Provider, dimension int, opts ...ServiceOption) *Service {
	s := &Service{
		provider:  provider,
		dimension: dimension,
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Dimension はコレクションの次元数を返す
func (s *Service) Dimension() int {
	return s.dimension
}

// ModelName はプロバイダのモデル名を返す
func (s *Service) ModelName() string {
	return s.provider.ModelName()
}

// Embed はテキストを長さ Dimension() のベクトルに変換する
// 失敗時は警告ログを出してゼロベクトルを返す
func (s *Service) Embed(ctx context.Context, text string) []float32 {
	vec, err := s.EmbedStrict(ctx, text)
	if err != nil {
		s.logger.Warn("embedding failed, using zero vector",
			"model", s.provider.ModelName(),
			"textLength", len(text),
			"error", err,
		)
		return make([]float32, s.dimension)
	}
	return vec
}

// EmbedStrict はテキストをベクトルに変換し、失敗時はエラーを返す
func (s *Service) EmbedStrict(ctx context.Context, text string) ([]float32, error) {
	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	vec, err := resilience.Call(callCtx, s.guard, func(ctx context.Context) ([]float32, error) {
		return s.provider.Embed(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(vec) == 0 {
		return nil, ErrEmptyEmbedding
	}

	if len(vec) != s.dimension {
		s.logger.Warn("embedding dimension mismatch, normalizing",
			"model", s.provider.ModelName(),
			"got", len(vec),
			"want", s.dimension,
		)
	}

	return Normalize(vec, s.dimension), nil
}

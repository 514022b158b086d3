package ask

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jinford/doc-rag/internal/core/search"
)

// AskService は質問応答のビジネスロジックを提供する
type AskService struct {
	embedder      QueryEmbedder
	retriever     Searcher
	responder     *Responder
	topK          int
	queryFailFast bool
	logger        *slog.Logger
}

// AskServiceOption は AskService のオプション設定
type AskServiceOption func(*AskService)

// WithAskLogger は AskService にロガーを設定する
func WithAskLogger(logger *slog.Logger) AskServiceOption {
	return func(s *AskService) {
		s.logger = logger
	}
}

// WithTopK は検索件数を設定する
func WithTopK(topK int) AskServiceOption {
	return func(s *AskService) {
		s.topK = topK
	}
}

// WithQueryFailFast は true の場合、クエリのEmbedding失敗をエラーとして返す
func WithQueryFailFast(failFast bool) AskServiceOption {
	return func(s *AskService) {
		s.queryFailFast = failFast
	}
}

// NewAskService は新しいAskServiceを作成する
func NewAskService(
	embedder QueryEmbedder,
	retriever Searcher,
	responder *Responder,
	opts ...AskServiceOption,
) *AskService {
	svc := &AskService{
		embedder:  embedder,
		retriever: retriever,
		responder: responder,
		topK:      search.DefaultTopK,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.logger == nil {
		svc.logger = slog.Default()
	}

	return svc
}

// Ask は質問に対してRAGベースで回答を生成する
func (s *AskService) Ask(ctx context.Context, query string) (*Answer, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	// 1. クエリのEmbedding
	var vector []float32
	if s.queryFailFast {
		v, err := s.embedder.EmbedStrict(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
		vector = v
	} else {
		vector = s.embedder.Embed(ctx, query)
	}

	// 2. 検索
	outcome := s.retriever.Search(ctx, vector, s.topK)
	s.logger.Info("search completed",
		"mode", outcome.Mode,
		"results", len(outcome.Results),
	)

	// 3. 回答生成
	response := s.responder.Respond(ctx, query, outcome.Results)

	sources := make([]string, 0, len(outcome.Results))
	for _, r := range outcome.Results {
		sources = append(sources, r.DocumentID)
	}

	s.logger.Info("ask completed",
		"answerLength", len(response),
		"sources", len(sources),
	)

	return &Answer{
		Response: response,
		Sources:  sources,
		Mode:     outcome.Mode,
	}, nil
}

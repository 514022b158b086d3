package ask

import (
	"context"
	"log/slog"
	"time"

	"github.com/jinford/doc-rag/internal/core/search"
	"github.com/jinford/doc-rag/internal/platform/resilience"
)

const (
	// DefaultContextTokenLimit はコンテキストのトークン上限のデフォルト値
	DefaultContextTokenLimit = 6000
	// DefaultGenerateTimeout は回答生成のデフォルトタイムアウト
	DefaultGenerateTimeout = 60 * time.Second
)

// Responder は検索結果をコンテキストにしてLLMで回答を生成する
type Responder struct {
	generator  Generator
	tokens     TokenCounter
	tokenLimit int
	timeout    time.Duration
	guard      *resilience.Guard
	logger     *slog.Logger
}

// ResponderOption は Responder のオプション設定
type ResponderOption func(*Responder)

// WithResponderLogger はロガーを設定する
func WithResponderLogger(logger *slog.Logger) ResponderOption {
	return func(r *Responder) {
		r.logger = logger
	}
}

// WithTokenBudget はコンテキストのトークン上限を設定する
func WithTokenBudget(counter TokenCounter, limit int) ResponderOption {
	return func(r *Responder) {
		r.tokens = counter
		r.tokenLimit = limit
	}
}

// WithGenerateTimeout は生成タイムアウトを設定する
func WithGenerateTimeout(timeout time.Duration) ResponderOption {
	return func(r *Responder) {
		r.timeout = timeout
	}
}

// WithGenerateGuard はレート制限とサーキットブレーカーを設定する
func WithGenerateGuard(guard *resilience.Guard) ResponderOption {
	return func(r *Responder) {
		r.guard = guard
	}
}

// NewResponder は新しい Responder を作成する
func NewResponder(generator Generator, opts ...ResponderOption) *Responder {
	r := &Responder{
		generator:  generator,
		tokenLimit: DefaultContextTokenLimit,
		timeout:    DefaultGenerateTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Respond はクエリとチャンクから回答を返す
// チャンクが空の場合は生成を行わず NoContextMessage を返し、生成失敗時はコンテキストの先頭を返す
func (r *Responder) Respond(ctx context.Context, query string, chunks []*search.Result) string {
	if len(chunks) == 0 {
		return NoContextMessage
	}

	contextText := BuildContext(chunks)
	if r.tokens != nil && r.tokenLimit > 0 {
		if n := r.tokens.CountTokens(contextText); n > r.tokenLimit {
			r.logger.Warn("context exceeds token limit, trimming",
				"tokens", n,
				"limit", r.tokenLimit,
			)
			contextText = r.tokens.TrimToTokenLimit(contextText, r.tokenLimit)
		}
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	prompt := BuildPrompt(query, contextText)
	answer, err := resilience.Call(callCtx, r.guard, func(ctx context.Context) (string, error) {
		return r.generator.Generate(ctx, prompt)
	})
	if err != nil {
		r.logger.Error("answer generation failed, using context fallback",
			"model", r.generator.ModelName(),
			"error", err,
		)
		return FallbackAnswer(contextText)
	}

	return answer
}

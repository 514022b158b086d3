package function

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jinford/doc-rag/internal/core/ask"
)

// Asker は質問に回答する
type Asker interface {
	Ask(ctx context.Context, query string) (*ask.Answer, error)
}

// QueryResponseHeaders は 200 応答に付与するヘッダー
var QueryResponseHeaders = map[string]string{
	"Content-Type":                "application/json",
	"Access-Control-Allow-Origin": "*",
}

// QueryRequest は問い合わせのリクエストボディ
type QueryRequest struct {
	Query string `json:"query"`
}

// QueryResult は問い合わせのレスポンスボディ
type QueryResult struct {
	Response string   `json:"response"`
	Sources  []string `json:"sources"`
}

// QueryHandler は問い合わせエンドポイント
type QueryHandler struct {
	asker  Asker
	logger *slog.Logger
}

// QueryHandlerOption は QueryHandler のオプション設定
type QueryHandlerOption func(*QueryHandler)

// WithQueryHandlerLogger はロガーを設定する
func WithQueryHandlerLogger(logger *slog.Logger) QueryHandlerOption {
	return func(h *QueryHandler) {
		h.logger = logger
	}
}

// NewQueryHandler は新しい QueryHandler を作成する
func NewQueryHandler(asker Asker, opts ...QueryHandlerOption) *QueryHandler {
	h := &QueryHandler{
		asker:  asker,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

var _ Handler = (*QueryHandler)(nil)

// Handle はイベントからクエリを取り出して回答を返す
func (h *QueryHandler) Handle(ctx context.Context, event json.RawMessage) Response {
	h.logger.Info("received query event", "event", string(event))

	req, err := parseQueryEvent(event)
	if err != nil {
		return jsonResponse(http.StatusInternalServerError, nil, fmt.Sprintf("Error processing query: %v", err))
	}
	if req.Query == "" {
		return jsonResponse(http.StatusBadRequest, nil, "No query provided")
	}

	answer, err := h.asker.Ask(ctx, req.Query)
	if errors.Is(err, ask.ErrEmptyQuery) {
		return jsonResponse(http.StatusBadRequest, nil, "No query provided")
	}
	if err != nil {
		h.logger.Error("failed to process query", "error", err)
		return jsonResponse(http.StatusInternalServerError, nil, fmt.Sprintf("Error processing query: %v", err))
	}

	sources := answer.Sources
	if sources == nil {
		sources = []string{}
	}

	return jsonResponse(http.StatusOK, QueryResponseHeaders, QueryResult{
		Response: answer.Response,
		Sources:  sources,
	})
}

// parseQueryEvent はプロキシ形式 {"body": "<json>"} と直接形式 {"query": ...} の両方を受け付ける
// body は JSON 文字列でもオブジェクトでもよい
func parseQueryEvent(event json.RawMessage) (QueryRequest, error) {
	var req QueryRequest
	if len(event) == 0 {
		return req, nil
	}

	var envelope struct {
		Body  json.RawMessage `json:"body"`
		Query string          `json:"query"`
	}
	if err := json.Unmarshal(event, &envelope); err != nil {
		return req, fmt.Errorf("invalid event: %w", err)
	}

	if len(envelope.Body) == 0 || string(envelope.Body) == "null" {
		req.Query = envelope.Query
		return req, nil
	}

	body := []byte(envelope.Body)
	var encoded string
	if err := json.Unmarshal(envelope.Body, &encoded); err == nil {
		body = []byte(encoded)
	}
	if len(body) == 0 {
		return req, nil
	}

	if err := json.Unmarshal(body, &req); err != nil {
		return req, fmt.Errorf("invalid body: %w", err)
	}
	return req, nil
}

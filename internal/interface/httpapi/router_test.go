package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/doc-rag/internal/core/ask"
	"github.com/jinford/doc-rag/internal/core/search"
	"github.com/jinford/doc-rag/internal/interface/function"
	"github.com/jinford/doc-rag/internal/platform/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAsker struct {
	AskFunc func(ctx context.Context, query string) (*ask.Answer, error)
}

func (s *stubAsker) Ask(ctx context.Context, query string) (*ask.Answer, error) {
	return s.AskFunc(ctx, query)
}

type stubStats struct {
	StatsFunc func(ctx context.Context) (*search.CollectionStats, error)
}

func (s *stubStats) Stats(ctx context.Context) (*search.CollectionStats, error) {
	return s.StatsFunc(ctx)
}

func newTestRouter(asker function.Asker, stats StatsProvider) http.Handler {
	registry := function.NewRegistry()
	registry.Register(function.QueryFunction, function.NewQueryHandler(asker, function.WithQueryHandlerLogger(logger.Discard())))
	registry.Register("echo", function.HandlerFunc(func(ctx context.Context, event json.RawMessage) function.Response {
		return function.Response{StatusCode: 202, Body: string(event)}
	}))
	return NewRouter(registry, stats, WithRouterLogger(logger.Discard())).Handler()
}

func serve(h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Query(t *testing.T) {
	asker := &stubAsker{AskFunc: func(ctx context.Context, query string) (*ask.Answer, error) {
		if query == "boom" {
			return nil, errors.New("generator exploded")
		}
		return &ask.Answer{Response: "Paris", Sources: []string{"docs_france_txt"}}, nil
	}}
	h := newTestRouter(asker, nil)

	t.Run("success", func(t *testing.T) {
		rec := serve(h, http.MethodPost, "/query", `{"query":"capital of France?"}`, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.JSONEq(t, `{"response":"Paris","sources":["docs_france_txt"]}`, rec.Body.String())
	})

	t.Run("missing query", func(t *testing.T) {
		rec := serve(h, http.MethodPost, "/query", `{}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `"No query provided"`, rec.Body.String())
	})

	t.Run("empty body", func(t *testing.T) {
		rec := serve(h, http.MethodPost, "/query", ``, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("ask failure", func(t *testing.T) {
		rec := serve(h, http.MethodPost, "/query", `{"query":"boom"}`, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `"Error processing query: generator exploded"`, rec.Body.String())
	})
}

func TestRouter_Functions(t *testing.T) {
	h := newTestRouter(&stubAsker{}, nil)

	rec := serve(h, http.MethodPost, "/functions/echo", `{"key":"a.txt"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp function.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 202, resp.StatusCode)
	assert.Equal(t, `{"key":"a.txt"}`, resp.Body)

	rec = serve(h, http.MethodPost, "/functions/missing", `{}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(h, http.MethodPost, "/functions/echo", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_HealthAndStats(t *testing.T) {
	stats := &stubStats{StatsFunc: func(ctx context.Context) (*search.CollectionStats, error) {
		return &search.CollectionStats{
			Name:       "documents",
			Backend:    "postgres",
			Dimension:  1536,
			ChunkCount: 3,
			Documents:  []search.DocumentCount{{DocumentID: "docs_a_txt", Chunks: 3}},
		}, nil
	}}
	h := newTestRouter(&stubAsker{}, stats)

	rec := serve(h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = serve(h, http.MethodGet, "/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got search.CollectionStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(3), got.ChunkCount)
	assert.Equal(t, "docs_a_txt", got.Documents[0].DocumentID)

	failing := newTestRouter(&stubAsker{}, &stubStats{StatsFunc: func(ctx context.Context) (*search.CollectionStats, error) {
		return nil, errors.New("relation does not exist")
	}})
	rec = serve(failing, http.MethodGet, "/stats", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = serve(newTestRouter(&stubAsker{}, nil), http.MethodGet, "/stats", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestID(t *testing.T) {
	h := newTestRouter(&stubAsker{}, nil)

	rec := serve(h, http.MethodGet, "/health", "", nil)
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)

	rec = serve(h, http.MethodGet, "/health", "", map[string]string{RequestIDHeader: "req-123"})
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
}

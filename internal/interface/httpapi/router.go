package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jinford/doc-rag/internal/core/search"
	"github.com/jinford/doc-rag/internal/interface/function"
)

// StatsProvider はコレクションの統計情報を返す
type StatsProvider interface {
	Stats(ctx context.Context) (*search.CollectionStats, error)
}

// Router は HTTP ゲートウェイのルーティングを保持する
type Router struct {
	registry *function.Registry
	stats    StatsProvider
	logger   *slog.Logger
}

// RouterOption は Router のオプション設定
type RouterOption func(*Router)

// WithRouterLogger はロガーを設定する
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// NewRouter は新しい Router を作成する
func NewRouter(registry *function.Registry, stats StatsProvider, opts ...RouterOption) *Router {
	r := &Router{
		registry: registry,
		stats:    stats,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Handler は gin エンジンを組み立てて返す
func (r *Router) Handler() http.Handler {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestID())
	engine.Use(AccessLog(r.logger))
	engine.Use(CORS())

	engine.GET("/health", r.health)
	engine.GET("/stats", r.collectionStats)
	engine.POST("/query", r.query)
	engine.POST("/functions/:name", r.invoke)

	return engine
}

func (r *Router) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (r *Router) collectionStats(c *gin.Context) {
	if r.stats == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stats are not available"})
		return
	}
	stats, err := r.stats.Stats(c.Request.Context())
	if err != nil {
		r.logger.Error("failed to get collection stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// query はリクエストボディをプロキシ形式のイベントに包んで問い合わせ関数を呼び出す
func (r *Router) query(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, "Invalid request body")
		return
	}

	event, err := json.Marshal(map[string]string{"body": string(body)})
	if err != nil {
		c.JSON(http.StatusInternalServerError, err.Error())
		return
	}

	resp, err := r.registry.Invoke(c.Request.Context(), function.QueryFunction, event)
	if err != nil {
		c.JSON(http.StatusNotFound, err.Error())
		return
	}

	for k, v := range resp.Headers {
		c.Header(k, v)
	}
	c.Data(resp.StatusCode, "application/json", []byte(resp.Body))
}

// invoke は生のイベントを登録済みハンドラに渡し、レスポンスエンベロープをそのまま返す
func (r *Router) invoke(c *gin.Context) {
	name := c.Param("name")

	event, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len(event) > 0 && !json.Valid(event) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event must be valid JSON"})
		return
	}

	resp, err := r.registry.Invoke(c.Request.Context(), name, event)
	if errors.Is(err, function.ErrUnknownFunction) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jinford/doc-rag/internal/interface/function"
)

// DefaultTimeout は HTTP 呼び出しのデフォルトタイムアウト
const DefaultTimeout = 2 * time.Minute

// Invoker は関数を同期的に呼び出す
type Invoker interface {
	Invoke(ctx context.Context, name string, event json.RawMessage) (function.Response, error)
}

// Local はプロセス内の Registry を呼び出す Invoker
type Local struct {
	registry *function.Registry
}

// NewLocal は新しい Local を作成する
func NewLocal(registry *function.Registry) *Local {
	return &Local{registry: registry}
}

var _ Invoker = (*Local)(nil)

// Invoke は登録済みハンドラを呼び出す
func (l *Local) Invoke(ctx context.Context, name string, event json.RawMessage) (function.Response, error) {
	return l.registry.Invoke(ctx, name, event)
}

// Client はゲートウェイ経由で関数と問い合わせエンドポイントを呼び出す
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption は Client のオプション設定
type ClientOption func(*Client)

// WithClientLogger はロガーを設定する
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient は HTTP クライアントを差し替える
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient は新しい Client を作成する
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

var _ Invoker = (*Client)(nil)

// Invoke は POST <endpoint>/functions/<name> を呼び出してレスポンスエンベロープを返す
func (c *Client) Invoke(ctx context.Context, name string, event json.RawMessage) (function.Response, error) {
	var resp function.Response
	status, body, err := c.post(ctx, "/functions/"+name, event)
	if err != nil {
		return resp, err
	}
	if status == http.StatusNotFound {
		return resp, fmt.Errorf("%w: %s", function.ErrUnknownFunction, name)
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return resp, fmt.Errorf("failed to decode function response (status %d): %w", status, err)
	}
	return resp, nil
}

// Query は POST <endpoint>/query を呼び出す
// 200 以外の場合はボディのメッセージを含むエラーを返す
func (c *Client) Query(ctx context.Context, query string) (*function.QueryResult, error) {
	payload, err := json.Marshal(function.QueryRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	status, body, err := c.post(ctx, "/query", payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		var message string
		if json.Unmarshal(body, &message) != nil {
			message = string(body)
		}
		return nil, fmt.Errorf("query failed with status %d: %s", status, message)
	}

	var result function.QueryResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode query response: %w", err)
	}
	return &result, nil
}

func (c *Client) post(ctx context.Context, path string, payload []byte) (int, []byte, error) {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("invoking endpoint", "url", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

package function

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
)

const (
	// IngestFunction はドキュメント取り込みトリガーの登録名
	IngestFunction = "ingest"
	// QueryFunction は問い合わせエンドポイントの登録名
	QueryFunction = "query"
)

// ErrUnknownFunction は登録されていない関数名を呼び出した場合のエラー
var ErrUnknownFunction = errors.New("unknown function")

// Response は関数の戻り値（API Gateway プロキシ形式）
// Body は JSON エンコード済みの文字列
type Response struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body"`
}

// Handler はイベントを受け取りレスポンスを返す
// エラーはすべて Response のステータスコードで表現する
type Handler interface {
	Handle(ctx context.Context, event json.RawMessage) Response
}

// HandlerFunc は関数を Handler として使うためのアダプタ
type HandlerFunc func(ctx context.Context, event json.RawMessage) Response

// Handle は f(ctx, event) を呼び出す
func (f HandlerFunc) Handle(ctx context.Context, event json.RawMessage) Response {
	return f(ctx, event)
}

// Registry は関数名とハンドラの対応を保持する
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry は新しい Registry を作成する
func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register は name にハンドラを登録する（既存は置き換える）
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Names は登録済みの関数名をソートして返す
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Invoke は name のハンドラを同期的に呼び出す
func (r *Registry) Invoke(ctx context.Context, name string, event json.RawMessage) (Response, error) {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return Response{}, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	return h.Handle(ctx, event), nil
}

// jsonResponse は body を JSON エンコードして Response を組み立てる
func jsonResponse(status int, headers map[string]string, body any) Response {
	data, err := json.Marshal(body)
	if err != nil {
		return Response{StatusCode: 500, Body: fmt.Sprintf("%q", "Error encoding response: "+err.Error())}
	}
	return Response{StatusCode: status, Headers: headers, Body: string(data)}
}

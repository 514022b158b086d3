package openai

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"

	"github.com/jinford/doc-rag/internal/core/ask"
)

const (
	// DefaultModel はデフォルトで使用するOpenAIモデル
	DefaultModel = "gpt-4o-mini"

	// DefaultMaxTokens は生成トークン数の上限
	DefaultMaxTokens = 1000

	// MaxRetries はレート制限エラー時の最大リトライ回数
	MaxRetries = 3

	// BaseBackoff はExponential Backoffの基底時間
	BaseBackoff = 2 * time.Second

	// MaxBackoff はExponential Backoffの最大待機時間
	MaxBackoff = 32 * time.Second
)

// Client は OpenAI Chat Completions API を使用した回答生成クライアント
type Client struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

type clientOptions struct {
	model       string
	temperature float64
	maxTokens   int
	baseURL     string
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// ClientOption は Client のオプション設定
type ClientOption func(*clientOptions)

// WithChatModel はモデル名を上書きする
func WithChatModel(model string) ClientOption {
	return func(o *clientOptions) {
		o.model = model
	}
}

// WithTemperature は温度パラメータを設定する
func WithTemperature(temperature float64) ClientOption {
	return func(o *clientOptions) {
		o.temperature = temperature
	}
}

// WithMaxTokens は生成トークン数の上限を設定する
func WithMaxTokens(maxTokens int) ClientOption {
	return func(o *clientOptions) {
		o.maxTokens = maxTokens
	}
}

// WithChatBaseURL はAPIのベースURLを上書きする
func WithChatBaseURL(baseURL string) ClientOption {
	return func(o *clientOptions) {
		o.baseURL = baseURL
	}
}

// WithRetryBackoff はレート制限時のバックオフを上書きする
func WithRetryBackoff(base, max time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.baseBackoff = base
		o.maxBackoff = max
	}
}

// NewClient は新しい Client を作成する
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := clientOptions{
		model:       DefaultModel,
		temperature: 0.2,
		maxTokens:   DefaultMaxTokens,
		baseBackoff: BaseBackoff,
		maxBackoff:  MaxBackoff,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Client{
		client:      openai.NewClient(requestOptions(apiKey, options.baseURL)...),
		model:       options.model,
		temperature: options.temperature,
		maxTokens:   options.maxTokens,
		baseBackoff: options.baseBackoff,
		maxBackoff:  options.maxBackoff,
	}, nil
}

// ModelName はモデル名を返す
func (c *Client) ModelName() string {
	return c.model
}

// Generate はプロンプトに対する回答を生成する
// 429 はExponential Backoffで最大 MaxRetries 回リトライする
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			backoffDuration := time.Duration(math.Pow(2, float64(attempt-1))) * c.baseBackoff
			if backoffDuration > c.maxBackoff {
				backoffDuration = c.maxBackoff
			}

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoffDuration):
			}
		}

		params := openai.ChatCompletionNewParams{
			Model: shared.ChatModel(c.model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
			Temperature: openai.Float(c.temperature),
		}
		if c.maxTokens > 0 {
			params.MaxTokens = openai.Int(int64(c.maxTokens))
		}

		completion, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = err
			if isRateLimitError(err) {
				continue
			}
			return "", fmt.Errorf("OpenAI API call failed: %w", err)
		}

		if len(completion.Choices) == 0 {
			return "", &DecodeError{Op: "chat completion", Reason: "no choices"}
		}

		return completion.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// インターフェース実装の確認
var _ ask.Generator = (*Client)(nil)

package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/jinford/doc-rag/internal/core/ask"
	"github.com/jinford/doc-rag/internal/core/embedding"
)

const (
	// DefaultEmbeddingModel はGeminiのデフォルトEmbeddingモデル
	DefaultEmbeddingModel = "text-embedding-004"
	// DefaultModel はGeminiのデフォルト生成モデル
	DefaultModel = "gemini-2.0-flash"
)

var (
	// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
	ErrAPIKeyNotSet = errors.New("Gemini API key not set: please set GEMINI_API_KEY environment variable")

	// ErrEmptyResponse は生成結果にテキストが含まれない場合のエラー
	ErrEmptyResponse = errors.New("gemini returned no text")
)

// Client は Google Generative AI のクライアント
// Embedder と Generator で同じ接続を共有する
type Client struct {
	client *genai.Client
}

// NewClient は新しい Client を作成する
func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Client{client: client}, nil
}

// Close は接続を閉じる
func (c *Client) Close() error {
	return c.client.Close()
}

// Embedder は Gemini のEmbeddingモデルを使用する
type Embedder struct {
	model *genai.EmbeddingModel
	name  string
}

// Embedder は modelName のEmbedderを返す
func (c *Client) Embedder(modelName string) *Embedder {
	if modelName == "" {
		modelName = DefaultEmbeddingModel
	}
	return &Embedder{
		model: c.client.EmbeddingModel(modelName),
		name:  modelName,
	}
}

// Embed は単一テキストのEmbeddingを生成する
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if resp.Embedding == nil {
		return nil, embedding.ErrEmptyEmbedding
	}
	return resp.Embedding.Values, nil
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.name
}

// Generator は Gemini の生成モデルを使用する
type Generator struct {
	model *genai.GenerativeModel
	name  string
}

// Generator は modelName の Generator を返す
func (c *Client) Generator(modelName string, temperature float64, maxTokens int) *Generator {
	if modelName == "" {
		modelName = DefaultModel
	}
	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(float32(temperature))
	if maxTokens > 0 {
		model.SetMaxOutputTokens(int32(maxTokens))
	}
	return &Generator{model: model, name: modelName}
}

// Generate はプロンプトに対する回答を生成する
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}
	return responseText(resp)
}

// ModelName はモデル名を返す
func (g *Generator) ModelName() string {
	return g.name
}

// responseText は最初の候補のテキストパートを連結する
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", ErrEmptyResponse
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		if sb.Len() > 0 {
			return sb.String(), nil
		}
	}
	return "", ErrEmptyResponse
}

// インターフェース実装の確認
var (
	_ embedding.Provider = (*Embedder)(nil)
	_ ask.Generator      = (*Generator)(nil)
)

package container

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/jinford/doc-rag/internal/core/ask"
	"github.com/jinford/doc-rag/internal/core/embedding"
	"github.com/jinford/doc-rag/internal/core/ingestion"
	"github.com/jinford/doc-rag/internal/core/ingestion/chunk"
	"github.com/jinford/doc-rag/internal/core/search"
	"github.com/jinford/doc-rag/internal/infra/extract"
	"github.com/jinford/doc-rag/internal/infra/gemini"
	"github.com/jinford/doc-rag/internal/infra/openai"
	"github.com/jinford/doc-rag/internal/infra/postgres"
	"github.com/jinford/doc-rag/internal/infra/qdrant"
	"github.com/jinford/doc-rag/internal/infra/storage"
	"github.com/jinford/doc-rag/internal/interface/function"
	"github.com/jinford/doc-rag/internal/platform/config"
	"github.com/jinford/doc-rag/internal/platform/database"
	"github.com/jinford/doc-rag/internal/platform/resilience"
)

const closeTimeout = 10 * time.Second

// ServiceContainer はプロセス内で共有するクライアントとサービスを保持する
// すべて NewContainer で一度だけ構築し、明示的に受け渡す
type ServiceContainer struct {
	Config *config.Config

	Embedding     *embedding.Service
	Index         search.VectorIndex
	Store         ingestion.ObjectStore
	Retriever     *search.Retriever
	IngestService *ingestion.IngestService
	AskService    *ask.AskService
	Registry      *function.Registry

	logger  *slog.Logger
	closers []func(ctx context.Context) error
}

type containerOptions struct {
	logger            *slog.Logger
	embeddingProvider embedding.Provider
	generator         ask.Generator
	index             search.VectorIndex
	store             ingestion.ObjectStore
	tokenCounter      ask.TokenCounter
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerEmbeddingProvider はEmbeddingプロバイダを注入する
func WithContainerEmbeddingProvider(provider embedding.Provider) ContainerOption {
	return func(opts *containerOptions) {
		opts.embeddingProvider = provider
	}
}

// WithContainerGenerator は回答生成LLMを注入する
func WithContainerGenerator(generator ask.Generator) ContainerOption {
	return func(opts *containerOptions) {
		opts.generator = generator
	}
}

// WithContainerIndex はベクトルインデックスを注入する
func WithContainerIndex(index search.VectorIndex) ContainerOption {
	return func(opts *containerOptions) {
		opts.index = index
	}
}

// WithContainerStore はオブジェクトストレージを注入する
func WithContainerStore(store ingestion.ObjectStore) ContainerOption {
	return func(opts *containerOptions) {
		opts.store = store
	}
}

// WithContainerTokenCounter は TokenCounter を差し替える
func WithContainerTokenCounter(counter ask.TokenCounter) ContainerOption {
	return func(opts *containerOptions) {
		opts.tokenCounter = counter
	}
}

// NewContainer は設定からコンテナを生成する
// 途中で失敗した場合はそれまでに開いた接続を閉じる
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (_ *ServiceContainer, err error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	logger := options.logger

	c := &ServiceContainer{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	// Gemini クライアント（Embedding と生成で共有）
	var geminiClient *gemini.Client
	geminiFor := func() (*gemini.Client, error) {
		if geminiClient != nil {
			return geminiClient, nil
		}
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		geminiClient = client
		c.closers = append(c.closers, func(context.Context) error { return client.Close() })
		return client, nil
	}

	// Embedding
	provider := options.embeddingProvider
	if provider == nil {
		switch cfg.Embedding.Provider {
		case "gemini":
			client, err := geminiFor()
			if err != nil {
				return nil, fmt.Errorf("Gemini クライアント初期化に失敗しました: %w", err)
			}
			provider = client.Embedder(cfg.Embedding.Model)
		default:
			embedder, err := openai.NewEmbedder(
				cfg.OpenAI.APIKey,
				openai.WithEmbeddingModel(cfg.Embedding.Model),
				openai.WithEmbeddingDimension(cfg.Embedding.Dimension),
				openai.WithEmbeddingBaseURL(cfg.OpenAI.BaseURL),
			)
			if err != nil {
				return nil, fmt.Errorf("OpenAI Embedder 初期化に失敗しました: %w", err)
			}
			provider = embedder
		}
	}
	c.Embedding = embedding.NewService(
		provider,
		cfg.Embedding.Dimension,
		embedding.WithTimeout(cfg.Embedding.Timeout),
		embedding.WithGuard(newGuard(cfg, "embedding", logger)),
		embedding.WithEmbeddingLogger(logger),
	)

	// 回答生成LLM
	generator := options.generator
	if generator == nil {
		switch cfg.LLM.Provider {
		case "gemini":
			client, err := geminiFor()
			if err != nil {
				return nil, fmt.Errorf("Gemini クライアント初期化に失敗しました: %w", err)
			}
			generator = client.Generator(cfg.LLM.Model, cfg.LLM.Temperature, cfg.LLM.MaxTokens)
		default:
			chat, err := openai.NewClient(
				cfg.OpenAI.APIKey,
				openai.WithChatModel(cfg.LLM.Model),
				openai.WithTemperature(cfg.LLM.Temperature),
				openai.WithMaxTokens(cfg.LLM.MaxTokens),
				openai.WithChatBaseURL(cfg.OpenAI.BaseURL),
			)
			if err != nil {
				return nil, fmt.Errorf("OpenAI LLMクライアント初期化に失敗しました: %w", err)
			}
			generator = chat
		}
	}

	// ベクトルインデックス
	c.Index = options.index
	if c.Index == nil {
		switch cfg.VectorStore.Backend {
		case "qdrant":
			c.Index = qdrant.NewIndex(qdrant.Config{
				URL:        cfg.Qdrant.URL,
				APIKey:     cfg.Qdrant.APIKey,
				Collection: cfg.VectorStore.Collection,
				Timeout:    cfg.VectorStore.Timeout,
			}, qdrant.WithIndexLogger(logger))
		default:
			db, err := database.New(ctx, database.ConnectionParams{
				Host:     cfg.Database.Host,
				Port:     cfg.Database.Port,
				User:     cfg.Database.User,
				Password: cfg.Database.Password,
				DBName:   cfg.Database.DBName,
				SSLMode:  cfg.Database.SSLMode,
			})
			if err != nil {
				return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
			}
			c.closers = append(c.closers, func(context.Context) error {
				db.Close()
				return nil
			})
			c.Index = postgres.NewVectorIndex(db, cfg.VectorStore.Collection, postgres.WithVectorIndexLogger(logger))
		}
	}

	// オブジェクトストレージ
	c.Store = options.store
	if c.Store == nil {
		switch cfg.Storage.Backend {
		case "gridfs":
			store, err := storage.ConnectGridFS(ctx, cfg.Storage.MongoURI, cfg.Storage.MongoDatabase)
			if err != nil {
				return nil, fmt.Errorf("GridFS 初期化に失敗しました: %w", err)
			}
			c.closers = append(c.closers, store.Close)
			c.Store = store
		default:
			c.Store = storage.NewFSStore(cfg.Storage.Root)
		}
	}

	// Chunker / TokenCounter
	chunker, err := chunk.NewWordChunker(
		chunk.WithChunkSize(cfg.Chunking.Size),
		chunk.WithOverlap(cfg.Chunking.Overlap),
	)
	if err != nil {
		return nil, fmt.Errorf("Chunker 初期化に失敗しました: %w", err)
	}

	tokens := options.tokenCounter
	if tokens == nil {
		counter, err := newTokenCounter()
		if err != nil {
			return nil, fmt.Errorf("TokenCounter 初期化に失敗しました: %w", err)
		}
		tokens = counter
	}

	// IngestService
	indexer := ingestion.NewIndexer(c.Index, c.Embedding,
		ingestion.WithIndexerLogger(logger),
		ingestion.WithIndexTimeout(cfg.VectorStore.Timeout),
	)
	c.IngestService = ingestion.NewIngestService(
		c.Store,
		extract.NewExtractor(),
		chunker,
		indexer,
		cfg.Embedding.Dimension,
		ingestion.WithKeyPrefix(cfg.Storage.KeyPrefix),
		ingestion.WithStorageTimeout(cfg.Storage.Timeout),
		ingestion.WithIngestLogger(logger),
	)

	// AskService
	c.Retriever = search.NewRetriever(
		c.Index,
		cfg.Embedding.Dimension,
		search.WithSearchTimeout(cfg.VectorStore.Timeout),
		search.WithSearchLogger(logger),
	)
	responder := ask.NewResponder(
		generator,
		ask.WithTokenBudget(tokens, cfg.Ask.ContextTokenLimit),
		ask.WithGenerateTimeout(cfg.LLM.Timeout),
		ask.WithGenerateGuard(newGuard(cfg, "generation", logger)),
		ask.WithResponderLogger(logger),
	)
	c.AskService = ask.NewAskService(
		c.Embedding,
		c.Retriever,
		responder,
		ask.WithTopK(cfg.Ask.TopK),
		ask.WithQueryFailFast(cfg.Embedding.QueryFailFast),
		ask.WithAskLogger(logger),
	)

	// 関数レジストリ
	c.Registry = function.NewRegistry()
	c.Registry.Register(function.IngestFunction, function.NewIngestHandler(
		c.IngestService,
		cfg.Storage.DefaultBucket,
		function.WithIngestHandlerLogger(logger),
	))
	c.Registry.Register(function.QueryFunction, function.NewQueryHandler(
		c.AskService,
		function.WithQueryHandlerLogger(logger),
	))

	return c, nil
}

func newGuard(cfg *config.Config, name string, logger *slog.Logger) *resilience.Guard {
	settings := resilience.DefaultSettings(name)
	settings.RequestsPerSecond = cfg.Guard.RequestsPerSecond
	settings.Burst = cfg.Guard.Burst
	settings.BreakerTimeout = cfg.Guard.BreakerTimeout
	return resilience.New(settings, resilience.WithLogger(logger))
}

// Close は内部リソースを解放する
func (c *ServiceContainer) Close() {
	if c == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			c.Logger().Warn("failed to close resource", "error", err)
		}
	}
	c.closers = nil
}

// Logger はロガーを返す
func (c *ServiceContainer) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// tokenCounter は tiktoken を利用した TokenCounter 実装
type tokenCounter struct {
	encoding *tiktoken.Tiktoken
}

func newTokenCounter() (*tokenCounter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding: %w", err)
	}
	return &tokenCounter{encoding: enc}, nil
}

func (t *tokenCounter) CountTokens(text string) int {
	if t.encoding == nil {
		return 0
	}
	return len(t.encoding.Encode(text, nil, nil))
}

func (t *tokenCounter) TrimToTokenLimit(text string, maxTokens int) string {
	if t.encoding == nil {
		return text
	}
	tokens := t.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return t.encoding.Decode(tokens[:maxTokens])
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// ログ設定
	Log LogConfig

	// OpenAI API設定（Embeddings + LLM）
	OpenAI OpenAIConfig

	// Gemini API キー（Provider=gemini のとき使用）
	GeminiAPIKey string

	// Embedding設定
	Embedding EmbeddingConfig

	// 回答生成LLM設定
	LLM LLMConfig

	// ベクトル検索設定
	VectorStore VectorStoreConfig

	// Database設定（VectorStore.Backend=postgres のとき使用）
	Database DatabaseConfig

	// Qdrant設定（VectorStore.Backend=qdrant のとき使用）
	Qdrant QdrantConfig

	// オブジェクトストレージ設定
	Storage StorageConfig

	// チャンク分割設定
	Chunking ChunkingConfig

	// 質問応答設定
	Ask AskConfig

	// 外部呼び出しの保護設定（レート制限 + サーキットブレーカー）
	Guard GuardConfig

	// HTTPサーバ設定
	Server ServerConfig
}

// LogConfig はロガー設定
type LogConfig struct {
	Level  string // debug / info / warn / error
	Format string // json / text
}

// EmbeddingConfig はEmbeddingプロバイダ設定
type EmbeddingConfig struct {
	Provider  string // "openai" or "gemini"
	Model     string
	Dimension int
	Timeout   time.Duration
	// QueryFailFast が true の場合、クエリ側のEmbedding失敗をエラーとして返す
	QueryFailFast bool
}

// LLMConfig は回答生成LLM設定
type LLMConfig struct {
	Provider    string // "openai" or "gemini"
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

// VectorStoreConfig はベクトル検索エンジン設定
type VectorStoreConfig struct {
	Backend    string // "postgres" or "qdrant"
	Collection string
	Timeout    time.Duration
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// QdrantConfig はQdrant接続設定
type QdrantConfig struct {
	URL    string
	APIKey string
}

// StorageConfig はオブジェクトストレージ設定
type StorageConfig struct {
	Backend       string // "fs" or "gridfs"
	Root          string // fs: バケットを配置するルートディレクトリ
	MongoURI      string // gridfs: 接続URI
	MongoDatabase string // gridfs: データベース名
	DefaultBucket string
	KeyPrefix     string
	Timeout       time.Duration
}

// ChunkingConfig はチャンク分割設定
type ChunkingConfig struct {
	Size    int
	Overlap int
}

// AskConfig は質問応答設定
type AskConfig struct {
	TopK              int
	ContextTokenLimit int
}

// GuardConfig は外部呼び出し保護設定
type GuardConfig struct {
	RequestsPerSecond float64
	Burst             int
	BreakerTimeout    time.Duration
}

// ServerConfig はHTTPサーバ設定
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			BaseURL: getEnv("OPENAI_BASE_URL", ""),
		},
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		Embedding: EmbeddingConfig{
			Provider:      getEnv("EMBEDDING_PROVIDER", "openai"),
			Model:         getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimension:     getEnvAsInt("EMBEDDING_DIMENSION", 1536),
			Timeout:       getEnvAsDuration("EMBED_TIMEOUT", 15*time.Second),
			QueryFailFast: getEnvAsBool("QUERY_EMBED_FAIL_FAST", false),
		},
		LLM: LLMConfig{
			Provider:    getEnv("LLM_PROVIDER", "openai"),
			Model:       getEnv("LLM_MODEL", "gpt-4o-mini"),
			Temperature: getEnvAsFloat("LLM_TEMPERATURE", 0.2),
			MaxTokens:   getEnvAsInt("LLM_MAX_TOKENS", 1000),
			Timeout:     getEnvAsDuration("GENERATE_TIMEOUT", 60*time.Second),
		},
		VectorStore: VectorStoreConfig{
			Backend:    getEnv("VECTOR_BACKEND", "postgres"),
			Collection: getEnv("VECTOR_COLLECTION", "document_embeddings"),
			Timeout:    getEnvAsDuration("SEARCH_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "docrag"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "docrag"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Qdrant: QdrantConfig{
			URL:    getEnv("QDRANT_URL", "http://localhost:6333"),
			APIKey: getEnv("QDRANT_API_KEY", ""),
		},
		Storage: StorageConfig{
			Backend:       getEnv("STORAGE_BACKEND", "fs"),
			Root:          getEnv("STORAGE_ROOT", "/var/lib/doc-rag/buckets"),
			MongoURI:      getEnv("STORAGE_MONGO_URI", "mongodb://localhost:27017"),
			MongoDatabase: getEnv("STORAGE_MONGO_DATABASE", "docrag"),
			DefaultBucket: getEnv("DOCUMENT_BUCKET", "rag-document-store"),
			KeyPrefix:     lookupEnv("DOCUMENT_KEY_PREFIX", "docs/"),
			Timeout:       getEnvAsDuration("STORAGE_TIMEOUT", 30*time.Second),
		},
		Chunking: ChunkingConfig{
			Size:    getEnvAsInt("CHUNK_SIZE", 500),
			Overlap: getEnvAsInt("CHUNK_OVERLAP", 100),
		},
		Ask: AskConfig{
			TopK:              getEnvAsInt("ASK_TOP_K", 3),
			ContextTokenLimit: getEnvAsInt("ASK_CONTEXT_TOKEN_LIMIT", 6000),
		},
		Guard: GuardConfig{
			RequestsPerSecond: getEnvAsFloat("GUARD_RPS", 10),
			Burst:             getEnvAsInt("GUARD_BURST", 5),
			BreakerTimeout:    getEnvAsDuration("GUARD_BREAKER_TIMEOUT", 30*time.Second),
		},
		Server: ServerConfig{
			Port:            getEnvAsInt("PORT", 8080),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// maxPostgresDimension は pgvector の HNSW インデックスが扱える最大次元数
const maxPostgresDimension = 2000

// Validate は設定値の整合性を検証します
func (c *Config) Validate() error {
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSION must be positive: %d", c.Embedding.Dimension)
	}
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive: %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("CHUNK_OVERLAP must be >= 0 and < CHUNK_SIZE: %d", c.Chunking.Overlap)
	}
	if c.Ask.TopK <= 0 {
		return fmt.Errorf("ASK_TOP_K must be positive: %d", c.Ask.TopK)
	}
	switch c.VectorStore.Backend {
	case "postgres":
		if c.Embedding.Dimension > maxPostgresDimension {
			return fmt.Errorf("EMBEDDING_DIMENSION must be <= %d with VECTOR_BACKEND=postgres: %d",
				maxPostgresDimension, c.Embedding.Dimension)
		}
	case "qdrant":
	default:
		return fmt.Errorf("unknown VECTOR_BACKEND: %s", c.VectorStore.Backend)
	}
	switch c.Storage.Backend {
	case "fs", "gridfs":
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND: %s", c.Storage.Backend)
	}
	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// lookupEnv は getEnv と異なり、空文字が明示的に設定されていればそれを返します
func lookupEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を time.Duration として取得します（例: "15s"）
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

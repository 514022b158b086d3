package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"
)

// ErrEmptyKey はドキュメントキーが指定されていない場合のエラー
var ErrEmptyKey = errors.New("no document key provided")

// DefaultStorageTimeout はオブジェクト取得のデフォルトタイムアウト
const DefaultStorageTimeout = 30 * time.Second

// IngestService はドキュメント取り込みのユースケースを提供する
// 取得 → テキスト抽出 → チャンク分割 → Embedding → 登録
type IngestService struct {
	store          ObjectStore
	extractor      TextExtractor
	splitter       Splitter
	indexer        *Indexer
	dimension      int
	keyPrefix      string
	storageTimeout time.Duration
	logger         *slog.Logger
}

type ingestServiceOptions struct {
	keyPrefix      string
	storageTimeout time.Duration
	logger         *slog.Logger
}

// IngestServiceOption は IngestService のオプション設定
type IngestServiceOption func(*ingestServiceOptions)

// WithIngestLogger はロガーを設定する
func WithIngestLogger(logger *slog.Logger) IngestServiceOption {
	return func(o *ingestServiceOptions) {
		o.logger = logger
	}
}

// WithKeyPrefix はキーのプレフィックスを上書きする
func WithKeyPrefix(prefix string) IngestServiceOption {
	return func(o *ingestServiceOptions) {
		o.keyPrefix = prefix
	}
}

// WithStorageTimeout はオブジェクト取得のタイムアウトを設定する
func WithStorageTimeout(timeout time.Duration) IngestServiceOption {
	return func(o *ingestServiceOptions) {
		o.storageTimeout = timeout
	}
}

// NewIngestService は新しい IngestService を作成する
func NewIngestService(
	store ObjectStore,
	extractor TextExtractor,
	splitter Splitter,
	indexer *Indexer,
	dimension int,
	opts ...IngestServiceOption,
) *IngestService {
	options := ingestServiceOptions{
		keyPrefix:      DefaultKeyPrefix,
		storageTimeout: DefaultStorageTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &IngestService{
		store:          store,
		extractor:      extractor,
		splitter:       splitter,
		indexer:        indexer,
		dimension:      dimension,
		keyPrefix:      options.keyPrefix,
		storageTimeout: options.storageTimeout,
		logger:         options.logger,
	}
}

// KeyPrefix はキーのプレフィックスを返す
func (s *IngestService) KeyPrefix() string {
	return s.keyPrefix
}

// Ingest は bucket/key のドキュメントを取り込む
func (s *IngestService) Ingest(ctx context.Context, bucket, key string) (*IngestResult, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrEmptyKey
	}
	key = NormalizeKey(key, s.keyPrefix)

	s.logger.Info("processing document", "bucket", bucket, "key", key)

	// 1. コレクション作成（存在しない場合のみ）
	if err := s.indexer.EnsureCollection(ctx, s.dimension); err != nil {
		return nil, err
	}

	// 2. ドキュメント取得
	data, err := s.fetch(ctx, bucket, key)
	if err != nil {
		return nil, err
	}

	// 3. テキスト抽出
	text, err := s.extractor.Extract(key, data)
	if err != nil {
		return nil, fmt.Errorf("failed to extract text from %s: %w", key, err)
	}
	s.logger.Debug("extracted text", "key", key, "preview", preview(text, 100))

	// 4. チャンク分割
	chunks := s.splitter.Split(text)
	s.logger.Info("created chunks", "key", key, "chunks", len(chunks))

	// 5. Embedding + 登録
	documentID := DocumentID(key)
	report := s.indexer.IndexChunks(ctx, documentID, chunks)

	s.logger.Info("document processed",
		"key", key,
		"documentID", documentID,
		"indexed", report.Indexed,
		"failed", report.Failed,
	)

	return &IngestResult{
		Bucket:     bucket,
		Key:        key,
		DocumentID: documentID,
		Report:     report,
	}, nil
}

// Upload はデータを bucket にキー prefix+name で保存し、保存したキーを返す
func (s *IngestService) Upload(ctx context.Context, bucket, name string, data []byte) (string, error) {
	name = strings.TrimLeft(path.Base(name), "/")
	if name == "" || name == "." {
		return "", ErrEmptyKey
	}
	key := NormalizeKey(name, s.keyPrefix)

	if s.storageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.storageTimeout)
		defer cancel()
	}

	if err := s.store.Put(ctx, bucket, key, data); err != nil {
		return "", fmt.Errorf("failed to upload %s/%s: %w", bucket, key, err)
	}

	s.logger.Info("uploaded document", "bucket", bucket, "key", key, "bytes", len(data))
	return key, nil
}

func (s *IngestService) fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	if s.storageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.storageTimeout)
		defer cancel()
	}

	data, err := s.store.Get(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

func preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}

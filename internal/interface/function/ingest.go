package function

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jinford/doc-rag/internal/core/ingestion"
)

// Ingester はドキュメントを取り込む
type Ingester interface {
	Ingest(ctx context.Context, bucket, key string) (*ingestion.IngestResult, error)
}

// ingestEvent はストレージ通知イベントまたは直接呼び出しのイベント
type ingestEvent struct {
	Records []struct {
		S3 struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key string `json:"key"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`

	Key    string `json:"key"`
	Bucket string `json:"bucket"`
}

// IngestHandler はドキュメント取り込みトリガー
type IngestHandler struct {
	ingester      Ingester
	defaultBucket string
	logger        *slog.Logger
}

// IngestHandlerOption は IngestHandler のオプション設定
type IngestHandlerOption func(*IngestHandler)

// WithIngestHandlerLogger はロガーを設定する
func WithIngestHandlerLogger(logger *slog.Logger) IngestHandlerOption {
	return func(h *IngestHandler) {
		h.logger = logger
	}
}

// NewIngestHandler は新しい IngestHandler を作成する
func NewIngestHandler(ingester Ingester, defaultBucket string, opts ...IngestHandlerOption) *IngestHandler {
	h := &IngestHandler{
		ingester:      ingester,
		defaultBucket: defaultBucket,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

var _ Handler = (*IngestHandler)(nil)

// Handle はイベントからバケットとキーを取り出して取り込みを実行する
func (h *IngestHandler) Handle(ctx context.Context, event json.RawMessage) Response {
	h.logger.Info("received ingest event", "event", string(event))

	var ev ingestEvent
	if len(event) > 0 {
		if err := json.Unmarshal(event, &ev); err != nil {
			return jsonResponse(http.StatusInternalServerError, nil, fmt.Sprintf("Error processing document: %v", err))
		}
	}

	bucket, key := h.defaultBucket, ev.Key
	if len(ev.Records) > 0 {
		bucket = ev.Records[0].S3.Bucket.Name
		key = ev.Records[0].S3.Object.Key
	} else if ev.Bucket != "" {
		bucket = ev.Bucket
	}

	if key == "" {
		return jsonResponse(http.StatusBadRequest, nil, "No document key provided")
	}

	result, err := h.ingester.Ingest(ctx, bucket, key)
	if err != nil {
		h.logger.Error("failed to process document", "bucket", bucket, "key", key, "error", err)
		return jsonResponse(http.StatusInternalServerError, nil, fmt.Sprintf("Error processing document: %v", err))
	}

	return jsonResponse(http.StatusOK, nil, fmt.Sprintf("Successfully processed document %s", result.Key))
}

package qdrant

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jinford/doc-rag/internal/core/search"
)

// BackendName は CollectionStats に記録するバックエンド名
const BackendName = "qdrant"

const (
	scrollPageSize    = 256
	distributionLimit = 100
)

var (
	// ErrDimensionMismatch は既存コレクションの次元が要求と異なる場合のエラー
	ErrDimensionMismatch = errors.New("collection dimension mismatch")

	errNotFound = errors.New("not found")
)

// Config は Qdrant 接続設定
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// Index は Qdrant REST API を使用した search.VectorIndex 実装
// 内積距離を使い、ポイントIDは chunk_id から決定的に生成する
type Index struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
	logger     *slog.Logger
}

// IndexOption は Index のオプション設定
type IndexOption func(*Index)

// WithIndexLogger はロガーを設定する
func WithIndexLogger(logger *slog.Logger) IndexOption {
	return func(i *Index) {
		i.logger = logger
	}
}

// WithHTTPClient はHTTPクライアントを差し替える
func WithHTTPClient(client *http.Client) IndexOption {
	return func(i *Index) {
		i.client = client
	}
}

// NewIndex は新しい Index を作成する
func NewIndex(cfg Config, opts ...IndexOption) *Index {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	i := &Index{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.logger == nil {
		i.logger = slog.Default()
	}
	return i
}

var _ search.VectorIndex = (*Index)(nil)

// PointID は chunk_id から UUIDv5 のポイントIDを生成する
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

type payload struct {
	ChunkID    string               `json:"chunk_id"`
	DocumentID string               `json:"document_id"`
	ChunkIndex int                  `json:"chunk_index"`
	Text       string               `json:"text"`
	Metadata   search.ChunkMetadata `json:"metadata"`
}

func (p payload) result(score float64) *search.Result {
	return &search.Result{
		ChunkID:    p.ChunkID,
		DocumentID: p.DocumentID,
		Text:       p.Text,
		Score:      score,
		Metadata:   p.Metadata,
	}
}

type collectionInfo struct {
	Result struct {
		PointsCount int64 `json:"points_count"`
		Config      struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

// EnsureCollection はコレクションが存在しなければ作成する
func (i *Index) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension: %d", dimension)
	}

	var info collectionInfo
	err := i.do(ctx, http.MethodGet, i.collectionPath(""), nil, &info)
	switch {
	case err == nil:
		if size := info.Result.Config.Params.Vectors.Size; size != dimension {
			return fmt.Errorf("%w: %s has %d, want %d", ErrDimensionMismatch, i.collection, size, dimension)
		}
		return nil
	case !errors.Is(err, errNotFound):
		return fmt.Errorf("failed to inspect collection %s: %w", i.collection, err)
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Dot",
		},
	}
	if err := i.do(ctx, http.MethodPut, i.collectionPath(""), body, nil); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", i.collection, err)
	}

	i.logger.Info("created collection", "collection", i.collection, "dimension", dimension)
	return nil
}

// Upsert は chunk_id をキーにポイントを作成または上書きする
func (i *Index) Upsert(ctx context.Context, record *search.ChunkRecord) error {
	body := map[string]any{
		"points": []map[string]any{{
			"id":     PointID(record.ChunkID),
			"vector": record.Embedding,
			"payload": payload{
				ChunkID:    record.ChunkID,
				DocumentID: record.DocumentID,
				ChunkIndex: record.ChunkIndex,
				Text:       record.Text,
				Metadata:   record.Metadata,
			},
		}},
	}
	if err := i.do(ctx, http.MethodPut, i.collectionPath("/points?wait=true"), body, nil); err != nil {
		return fmt.Errorf("failed to upsert chunk %s: %w", record.ChunkID, err)
	}
	return nil
}

// NearestNeighbors は内積の大きい順に最大 k 件を返す
func (i *Index) NearestNeighbors(ctx context.Context, vector []float32, k int) ([]*search.Result, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload payload `json:"payload"`
		} `json:"result"`
	}
	if err := i.do(ctx, http.MethodPost, i.collectionPath("/points/search"), req, &resp); err != nil {
		return nil, fmt.Errorf("failed to search nearest neighbors: %w", err)
	}

	results := make([]*search.Result, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, r.Payload.result(r.Score))
	}
	return results, nil
}

type scrollResponse struct {
	Result struct {
		Points []struct {
			Payload payload `json:"payload"`
		} `json:"points"`
		NextPageOffset any `json:"next_page_offset"`
	} `json:"result"`
}

// Sample は順位付けなしで最大 k 件を返す（スコアは 1.0）
func (i *Index) Sample(ctx context.Context, k int) ([]*search.Result, error) {
	req := map[string]any{
		"limit":        k,
		"with_payload": true,
		"with_vector":  false,
	}
	var resp scrollResponse
	if err := i.do(ctx, http.MethodPost, i.collectionPath("/points/scroll"), req, &resp); err != nil {
		return nil, fmt.Errorf("failed to sample collection: %w", err)
	}

	results := make([]*search.Result, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		results = append(results, p.Payload.result(1.0))
	}
	return results, nil
}

// Stats はポイント数とドキュメントごとの分布を返す
// コレクションが存在しない場合は空の統計を返す
func (i *Index) Stats(ctx context.Context) (*search.CollectionStats, error) {
	stats := &search.CollectionStats{
		Name:      i.collection,
		Backend:   BackendName,
		Documents: []search.DocumentCount{},
	}

	var info collectionInfo
	if err := i.do(ctx, http.MethodGet, i.collectionPath(""), nil, &info); err != nil {
		if errors.Is(err, errNotFound) {
			return stats, nil
		}
		return nil, fmt.Errorf("failed to inspect collection %s: %w", i.collection, err)
	}
	stats.Dimension = info.Result.Config.Params.Vectors.Size

	var count struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
	}
	if err := i.do(ctx, http.MethodPost, i.collectionPath("/points/count"), map[string]any{"exact": true}, &count); err != nil {
		return nil, fmt.Errorf("failed to count points: %w", err)
	}
	stats.ChunkCount = count.Result.Count

	counts, err := i.documentCounts(ctx)
	if err != nil {
		return nil, err
	}
	stats.Documents = counts
	return stats, nil
}

// documentCounts は全ポイントをスクロールして document_id ごとに集計する
func (i *Index) documentCounts(ctx context.Context) ([]search.DocumentCount, error) {
	byDocument := map[string]int64{}
	var offset any

	for {
		req := map[string]any{
			"limit":        scrollPageSize,
			"with_payload": map[string]any{"include": []string{"document_id"}},
			"with_vector":  false,
		}
		if offset != nil {
			req["offset"] = offset
		}

		var resp scrollResponse
		if err := i.do(ctx, http.MethodPost, i.collectionPath("/points/scroll"), req, &resp); err != nil {
			return nil, fmt.Errorf("failed to scroll points: %w", err)
		}
		for _, p := range resp.Result.Points {
			byDocument[p.Payload.DocumentID]++
		}

		offset = resp.Result.NextPageOffset
		if offset == nil || len(resp.Result.Points) == 0 {
			break
		}
	}

	counts := make([]search.DocumentCount, 0, len(byDocument))
	for id, n := range byDocument {
		counts = append(counts, search.DocumentCount{DocumentID: id, Chunks: n})
	}
	slices.SortFunc(counts, func(a, b search.DocumentCount) int {
		if c := cmp.Compare(b.Chunks, a.Chunks); c != 0 {
			return c
		}
		return cmp.Compare(a.DocumentID, b.DocumentID)
	})
	if len(counts) > distributionLimit {
		counts = counts[:distributionLimit]
	}
	return counts, nil
}

func (i *Index) collectionPath(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", i.url, i.collection, suffix)
}

func (i *Index) do(ctx context.Context, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if i.apiKey != "" {
		req.Header.Set("api-key", i.apiKey)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("qdrant %s %s: %w", method, url, errNotFound)
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, url, resp.Status, strings.TrimSpace(string(msg)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode qdrant response: %w", err)
		}
	}
	return nil
}

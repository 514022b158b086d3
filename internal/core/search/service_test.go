package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/doc-rag/internal/platform/logger"
)

type stubIndex struct {
	NearestNeighborsFunc func(ctx context.Context, vector []float32, k int) ([]*Result, error)
	SampleFunc           func(ctx context.Context, k int) ([]*Result, error)

	lastVector []float32
	sampled    bool
}

func (s *stubIndex) EnsureCollection(ctx context.Context, dimension int) error { return nil }

func (s *stubIndex) Upsert(ctx context.Context, record *ChunkRecord) error { return nil }

func (s *stubIndex) NearestNeighbors(ctx context.Context, vector []float32, k int) ([]*Result, error) {
	s.lastVector = vector
	return s.NearestNeighborsFunc(ctx, vector, k)
}

func (s *stubIndex) Sample(ctx context.Context, k int) ([]*Result, error) {
	s.sampled = true
	return s.SampleFunc(ctx, k)
}

func (s *stubIndex) Stats(ctx context.Context) (*CollectionStats, error) {
	return &CollectionStats{}, nil
}

func results(scores ...float64) []*Result {
	out := make([]*Result, len(scores))
	for i, score := range scores {
		out[i] = &Result{ChunkID: ChunkID("doc", i), DocumentID: "doc", Score: score}
	}
	return out
}

func newTestRetriever(index VectorIndex, opts ...RetrieverOption) *Retriever {
	opts = append([]RetrieverOption{WithSearchLogger(logger.Discard())}, opts...)
	return NewRetriever(index, 4, opts...)
}

func TestChunkID(t *testing.T) {
	assert.Equal(t, "docs_report_pdf_0", ChunkID("docs_report_pdf", 0))
	assert.Equal(t, "a_12", ChunkID("a", 12))
}

func TestRetriever_Search_PrimarySortedAndTruncated(t *testing.T) {
	index := &stubIndex{
		NearestNeighborsFunc: func(ctx context.Context, vector []float32, k int) ([]*Result, error) {
			return results(0.2, 0.9, 0.5, 0.7), nil
		},
	}
	r := newTestRetriever(index)

	out := r.Search(context.Background(), []float32{1, 2, 3, 4}, 3)

	assert.Equal(t, ModePrimary, out.Mode)
	assert.False(t, out.Degraded())
	require.Len(t, out.Results, 3)
	for i := 1; i < len(out.Results); i++ {
		assert.GreaterOrEqual(t, out.Results[i-1].Score, out.Results[i].Score)
	}
	assert.Equal(t, 0.9, out.Results[0].Score)
	assert.False(t, index.sampled)
}

func TestRetriever_Search_NormalizesQueryVector(t *testing.T) {
	index := &stubIndex{
		NearestNeighborsFunc: func(ctx context.Context, vector []float32, k int) ([]*Result, error) {
			return nil, nil
		},
	}
	r := newTestRetriever(index)

	out := r.Search(context.Background(), []float32{1, 2}, 3)
	assert.Equal(t, []float32{1, 2, 0, 0}, index.lastVector)
	assert.NotNil(t, out.Results)
	assert.Empty(t, out.Results)
}

func TestRetriever_Search_DefaultTopK(t *testing.T) {
	var gotK int
	index := &stubIndex{
		NearestNeighborsFunc: func(ctx context.Context, vector []float32, k int) ([]*Result, error) {
			gotK = k
			return results(1, 1, 1, 1, 1), nil
		},
	}
	out := newTestRetriever(index).Search(context.Background(), nil, 0)
	assert.Equal(t, DefaultTopK, gotK)
	assert.Len(t, out.Results, DefaultTopK)
}

func TestRetriever_Search_FallbackOnPrimaryFailure(t *testing.T) {
	knnErr := errors.New("knn unavailable")
	index := &stubIndex{
		NearestNeighborsFunc: func(ctx context.Context, vector []float32, k int) ([]*Result, error) {
			return nil, knnErr
		},
		SampleFunc: func(ctx context.Context, k int) ([]*Result, error) {
			return results(1, 1, 1, 1), nil
		},
	}

	out := newTestRetriever(index).Search(context.Background(), []float32{1}, 2)

	assert.Equal(t, ModeFallback, out.Mode)
	assert.True(t, out.Degraded())
	assert.ErrorIs(t, out.PrimaryErr, knnErr)
	assert.NoError(t, out.FallbackErr)
	assert.Len(t, out.Results, 2)
}

func TestRetriever_Search_BothPathsFail(t *testing.T) {
	knnErr := errors.New("knn unavailable")
	sampleErr := errors.New("index missing")
	index := &stubIndex{
		NearestNeighborsFunc: func(ctx context.Context, vector []float32, k int) ([]*Result, error) {
			return nil, knnErr
		},
		SampleFunc: func(ctx context.Context, k int) ([]*Result, error) {
			return nil, sampleErr
		},
	}

	out := newTestRetriever(index).Search(context.Background(), []float32{1}, 3)

	assert.Equal(t, ModeFailed, out.Mode)
	assert.ErrorIs(t, out.PrimaryErr, knnErr)
	assert.ErrorIs(t, out.FallbackErr, sampleErr)
	assert.NotNil(t, out.Results)
	assert.Empty(t, out.Results)
}

func TestRetriever_Search_TimeoutTriggersFallback(t *testing.T) {
	index := &stubIndex{
		NearestNeighborsFunc: func(ctx context.Context, vector []float32, k int) ([]*Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		SampleFunc: func(ctx context.Context, k int) ([]*Result, error) {
			return results(1), nil
		},
	}

	out := newTestRetriever(index, WithSearchTimeout(10*time.Millisecond)).Search(context.Background(), []float32{1}, 3)

	assert.Equal(t, ModeFallback, out.Mode)
	assert.ErrorIs(t, out.PrimaryErr, context.DeadlineExceeded)
	assert.Len(t, out.Results, 1)
}

package ask

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/doc-rag/internal/core/search"
	"github.com/jinford/doc-rag/internal/platform/logger"
)

type stubQueryEmbedder struct {
	strictErr   error
	strictCalls int
	softCalls   int
}

func (e *stubQueryEmbedder) Embed(ctx context.Context, text string) []float32 {
	e.softCalls++
	return []float32{0, 0, 0}
}

func (e *stubQueryEmbedder) EmbedStrict(ctx context.Context, text string) ([]float32, error) {
	e.strictCalls++
	if e.strictErr != nil {
		return nil, e.strictErr
	}
	return []float32{1, 2, 3}, nil
}

type stubSearcher struct {
	outcome search.Outcome
	lastK   int
}

func (s *stubSearcher) Search(ctx context.Context, vector []float32, topK int) search.Outcome {
	s.lastK = topK
	return s.outcome
}

func newTestAskService(emb QueryEmbedder, searcher Searcher, gen Generator, opts ...AskServiceOption) *AskService {
	responder := NewResponder(gen, WithResponderLogger(logger.Discard()))
	opts = append([]AskServiceOption{WithAskLogger(logger.Discard())}, opts...)
	return NewAskService(emb, searcher, responder, opts...)
}

func TestAskService_Ask_EmptyQuery(t *testing.T) {
	svc := newTestAskService(&stubQueryEmbedder{}, &stubSearcher{}, &stubGenerator{})

	_, err := svc.Ask(context.Background(), "   ")
	require.ErrorIs(t, err, ErrEmptyQuery)
}

func TestAskService_Ask_NoDocuments(t *testing.T) {
	gen := &stubGenerator{}
	searcher := &stubSearcher{outcome: search.Outcome{Results: []*search.Result{}, Mode: search.ModePrimary}}
	svc := newTestAskService(&stubQueryEmbedder{}, searcher, gen)

	answer, err := svc.Ask(context.Background(), "What is the capital?")
	require.NoError(t, err)

	assert.Equal(t, NoContextMessage, answer.Response)
	assert.NotNil(t, answer.Sources)
	assert.Empty(t, answer.Sources)
	assert.Zero(t, gen.calls)
	assert.Equal(t, search.DefaultTopK, searcher.lastK)
}

func TestAskService_Ask_SourcesInRankOrder(t *testing.T) {
	gen := &stubGenerator{GenerateFunc: func(ctx context.Context, prompt string) (string, error) {
		return "answer", nil
	}}
	searcher := &stubSearcher{outcome: search.Outcome{
		Mode: search.ModeFallback,
		Results: []*search.Result{
			{DocumentID: "docs_b_txt", Text: "b"},
			{DocumentID: "docs_a_txt", Text: "a"},
			{DocumentID: "docs_b_txt", Text: "b2"},
		},
	}}
	svc := newTestAskService(&stubQueryEmbedder{}, searcher, gen, WithTopK(5))

	answer, err := svc.Ask(context.Background(), "q")
	require.NoError(t, err)

	assert.Equal(t, "answer", answer.Response)
	assert.Equal(t, []string{"docs_b_txt", "docs_a_txt", "docs_b_txt"}, answer.Sources)
	assert.Equal(t, search.ModeFallback, answer.Mode)
	assert.Equal(t, 5, searcher.lastK)
}

func TestAskService_Ask_EmbeddingPolicy(t *testing.T) {
	embedErr := errors.New("embedding down")

	t.Run("fail-soft by default", func(t *testing.T) {
		emb := &stubQueryEmbedder{strictErr: embedErr}
		searcher := &stubSearcher{outcome: search.Outcome{Results: []*search.Result{}}}
		svc := newTestAskService(emb, searcher, &stubGenerator{})

		_, err := svc.Ask(context.Background(), "q")
		require.NoError(t, err)
		assert.Equal(t, 1, emb.softCalls)
		assert.Zero(t, emb.strictCalls)
	})

	t.Run("fail-fast", func(t *testing.T) {
		emb := &stubQueryEmbedder{strictErr: embedErr}
		svc := newTestAskService(emb, &stubSearcher{}, &stubGenerator{}, WithQueryFailFast(true))

		_, err := svc.Ask(context.Background(), "q")
		require.ErrorIs(t, err, embedErr)
	})
}

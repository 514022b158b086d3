package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/doc-rag/internal/platform/logger"
	"github.com/jinford/doc-rag/internal/platform/resilience"
)

type stubProvider struct {
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)
	calls     int
}

func (p *stubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.calls++
	return p.EmbedFunc(ctx, text)
}

func (p *stubProvider) ModelName() string {
	return "stub-model"
}

func newTestService(p Provider, dimension int, opts ...ServiceOption) *Service {
	opts = append([]ServiceOption{WithEmbeddingLogger(logger.Discard())}, opts...)
	return NewService(p, dimension, opts...)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		vec  []float32
		dim  int
		want []float32
	}{
		{name: "pad", vec: []float32{1, 2}, dim: 4, want: []float32{1, 2, 0, 0}},
		{name: "truncate", vec: []float32{1, 2, 3, 4}, dim: 2, want: []float32{1, 2}},
		{name: "exact", vec: []float32{1, 2, 3}, dim: 3, want: []float32{1, 2, 3}},
		{name: "nil", vec: nil, dim: 2, want: []float32{0, 0}},
		{name: "zero dimension", vec: []float32{1}, dim: 0, want: []float32{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.vec, tt.dim))
		})
	}
}

func TestNormalize_DoesNotAliasInput(t *testing.T) {
	in := []float32{1, 2, 3}
	out := Normalize(in, 3)
	out[0] = 9
	assert.Equal(t, float32(1), in[0])
}

func TestService_Embed_AlwaysReturnsDimension(t *testing.T) {
	tests := []struct {
		name  string
		embed func(ctx context.Context, text string) ([]float32, error)
		want  []float32
	}{
		{
			name:  "exact",
			embed: func(ctx context.Context, text string) ([]float32, error) { return []float32{1, 2, 3, 4}, nil },
			want:  []float32{1, 2, 3, 4},
		},
		{
			name:  "short vector is padded",
			embed: func(ctx context.Context, text string) ([]float32, error) { return []float32{1}, nil },
			want:  []float32{1, 0, 0, 0},
		},
		{
			name:  "long vector is truncated",
			embed: func(ctx context.Context, text string) ([]float32, error) { return []float32{1, 2, 3, 4, 5, 6}, nil },
			want:  []float32{1, 2, 3, 4},
		},
		{
			name:  "provider error yields zero vector",
			embed: func(ctx context.Context, text string) ([]float32, error) { return nil, errors.New("boom") },
			want:  []float32{0, 0, 0, 0},
		},
		{
			name:  "empty vector yields zero vector",
			embed: func(ctx context.Context, text string) ([]float32, error) { return []float32{}, nil },
			want:  []float32{0, 0, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(&stubProvider{EmbedFunc: tt.embed}, 4)
			got := svc.Embed(context.Background(), "hello")
			require.Len(t, got, 4)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_EmbedStrict_ReturnsErrors(t *testing.T) {
	upstream := errors.New("upstream unavailable")
	svc := newTestService(&stubProvider{EmbedFunc: func(ctx context.Context, text string) ([]float32, error) {
		return nil, upstream
	}}, 4)

	_, err := svc.EmbedStrict(context.Background(), "hello")
	require.ErrorIs(t, err, upstream)

	empty := newTestService(&stubProvider{EmbedFunc: func(ctx context.Context, text string) ([]float32, error) {
		return nil, nil
	}}, 4)
	_, err = empty.EmbedStrict(context.Background(), "hello")
	require.ErrorIs(t, err, ErrEmptyEmbedding)
}

func TestService_Embed_TimeoutIsFailure(t *testing.T) {
	provider := &stubProvider{EmbedFunc: func(ctx context.Context, text string) ([]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	svc := newTestService(provider, 3, WithTimeout(10*time.Millisecond))

	_, err := svc.EmbedStrict(context.Background(), "slow")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, []float32{0, 0, 0}, svc.Embed(context.Background(), "slow"))
}

func TestService_Embed_OpenBreakerIsFailure(t *testing.T) {
	guard := resilience.New(resilience.Settings{
		Name:           "embedding",
		BreakerTimeout: time.Minute,
		MinRequests:    1,
		FailureRatio:   1,
	}, resilience.WithLogger(logger.Discard()))

	provider := &stubProvider{EmbedFunc: func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("boom")
	}}
	svc := newTestService(provider, 2, WithGuard(guard))

	assert.Equal(t, []float32{0, 0}, svc.Embed(context.Background(), "a"))

	_, err := svc.EmbedStrict(context.Background(), "b")
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 1, provider.calls)
}

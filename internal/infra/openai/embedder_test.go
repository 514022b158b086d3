package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func TestNewEmbedder_RequiresAPIKey(t *testing.T) {
	_, err := NewEmbedder("")
	require.ErrorIs(t, err, ErrAPIKeyNotSet)
}

func TestNewEmbedderOptionsOverrideDefaults(t *testing.T) {
	embedder, err := NewEmbedder("dummy-key",
		WithEmbeddingModel("custom-model"),
		WithEmbeddingDimension(42),
	)
	require.NoError(t, err)

	assert.Equal(t, "custom-model", embedder.ModelName())
	assert.Equal(t, 42, embedder.Dimension())
}

func TestEmbedder_Embed(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		writeJSON(t, w, http.StatusOK, map[string]any{
			"object": "list",
			"model":  "text-embedding-3-small",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float64{0.25, -0.5, 1}},
			},
			"usage": map[string]any{"prompt_tokens": 2, "total_tokens": 2},
		})
	}))
	defer srv.Close()

	embedder, err := NewEmbedder("test-key", WithEmbeddingBaseURL(srv.URL+"/"), WithEmbeddingDimension(3))
	require.NoError(t, err)

	vec, err := embedder.Embed(context.Background(), "hello world")
	require.NoError(t, err)

	assert.Equal(t, []float32{0.25, -0.5, 1}, vec)
	assert.Equal(t, "hello world", got["input"])
	assert.Equal(t, "text-embedding-3-small", got["model"])
	assert.EqualValues(t, 3, got["dimensions"])
}

func TestEmbedder_Embed_NoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"object": "list", "data": []any{}})
	}))
	defer srv.Close()

	embedder, err := NewEmbedder("test-key", WithEmbeddingBaseURL(srv.URL+"/"))
	require.NoError(t, err)

	_, err = embedder.Embed(context.Background(), "hello")
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "embeddings", decodeErr.Op)
}

func TestEmbedder_Embed_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusInternalServerError, map[string]any{
			"error": map[string]any{"message": "boom", "type": "server_error"},
		})
	}))
	defer srv.Close()

	embedder, err := NewEmbedder("test-key", WithEmbeddingBaseURL(srv.URL+"/"))
	require.NoError(t, err)

	_, err = embedder.Embed(context.Background(), "hello")
	require.Error(t, err)
}

func chatCompletion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
	}
}

func TestClient_Generate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(t, w, http.StatusOK, chatCompletion("Paris."))
	}))
	defer srv.Close()

	client, err := NewClient("test-key", WithChatBaseURL(srv.URL+"/"), WithMaxTokens(1000))
	require.NoError(t, err)

	answer, err := client.Generate(context.Background(), "What is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris.", answer)
	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.EqualValues(t, 1000, got["max_tokens"])
}

func TestClient_Generate_RetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(t, w, http.StatusTooManyRequests, map[string]any{
				"error": map[string]any{"message": "slow down", "type": "rate_limit"},
			})
			return
		}
		writeJSON(t, w, http.StatusOK, chatCompletion("ok"))
	}))
	defer srv.Close()

	client, err := NewClient("test-key",
		WithChatBaseURL(srv.URL+"/"),
		WithRetryBackoff(time.Millisecond, 5*time.Millisecond),
	)
	require.NoError(t, err)

	answer, err := client.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_Generate_MaxRetriesExceeded(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(t, w, http.StatusTooManyRequests, map[string]any{
			"error": map[string]any{"message": "slow down", "type": "rate_limit"},
		})
	}))
	defer srv.Close()

	client, err := NewClient("test-key",
		WithChatBaseURL(srv.URL+"/"),
		WithRetryBackoff(time.Millisecond, time.Millisecond),
	)
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "hi")
	require.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.EqualValues(t, MaxRetries+1, calls.Load())
}

func TestClient_Generate_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := chatCompletion("")
		body["choices"] = []any{}
		writeJSON(t, w, http.StatusOK, body)
	}))
	defer srv.Close()

	client, err := NewClient("test-key", WithChatBaseURL(srv.URL+"/"))
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "hi")
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
}

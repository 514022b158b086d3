package invoke

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/doc-rag/internal/interface/function"
	"github.com/jinford/doc-rag/internal/platform/logger"
)

func TestLocal_Invoke(t *testing.T) {
	registry := function.NewRegistry()
	registry.Register(function.IngestFunction, function.HandlerFunc(func(ctx context.Context, event json.RawMessage) function.Response {
		return function.Response{StatusCode: 200, Body: `"ok"`}
	}))
	inv := NewLocal(registry)

	resp, err := inv.Invoke(context.Background(), function.IngestFunction, json.RawMessage(`{"key":"a.txt"}`))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	_, err = inv.Invoke(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, function.ErrUnknownFunction)
}

func TestClient_Invoke(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		if r.URL.Path == "/functions/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"statusCode":200,"body":"\"Successfully processed document docs/a.txt\""}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", WithClientLogger(logger.Discard()))

	resp, err := c.Invoke(context.Background(), "ingest", json.RawMessage(`{"key":"a.txt"}`))
	require.NoError(t, err)
	assert.Equal(t, "/functions/ingest", gotPath)
	assert.Equal(t, `{"key":"a.txt"}`, gotBody)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, `"Successfully processed document docs/a.txt"`, resp.Body)

	_, err = c.Invoke(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, function.ErrUnknownFunction)
	assert.Equal(t, "{}", gotBody)
}

func TestClient_Query(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    *function.QueryResult
		wantErr string
	}{
		{
			name:   "success",
			status: 200,
			body:   `{"response":"Paris","sources":["docs_a_txt"]}`,
			want:   &function.QueryResult{Response: "Paris", Sources: []string{"docs_a_txt"}},
		},
		{
			name:    "bad request",
			status:  400,
			body:    `"No query provided"`,
			wantErr: "query failed with status 400: No query provided",
		},
		{
			name:    "non json error",
			status:  502,
			body:    `bad gateway`,
			wantErr: "query failed with status 502: bad gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req function.QueryRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/query", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				_ = json.NewDecoder(r.Body).Decode(&req)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, WithClientLogger(logger.Discard()))
			got, err := c.Query(context.Background(), "capital of France?")

			assert.Equal(t, "capital of France?", req.Query)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

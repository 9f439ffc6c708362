package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/goalmatch/internal/config"
)

// stubModel is a deterministic in-process provider for service tests.
type stubModel struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
	calls   atomic.Int64
}

func (m *stubModel) Name() string    { return "stub" }
func (m *stubModel) Version() string { return "stub" }
func (m *stubModel) Dimensions() int { return 3 }
func (m *stubModel) Close() error    { return nil }

func (m *stubModel) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	if m.embedFn != nil {
		return m.embedFn(ctx, text)
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.EmbedTimeoutSeconds = 1
	cfg.EmbedConcurrency = 4
	return cfg
}

// TestEmbedBatch_OrderPreserved verifies vectors come back in input order
// even though calls run in parallel.
func TestEmbedBatch_OrderPreserved(t *testing.T) {
	config.Set(testConfig())

	model := &stubModel{}
	svc := NewServiceWithModel(model, zerolog.Nop())

	texts := []string{"a", "bb", "ccc", "dddd"}
	vecs, err := svc.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))

	for i, text := range texts {
		assert.Equal(t, float32(len(text)), vecs[i][0], "vector %d out of order", i)
	}
	assert.Equal(t, int64(len(texts)), model.calls.Load())
}

// TestEmbedBatch_FailClosed verifies one failed call fails the whole batch
// with no partial results.
func TestEmbedBatch_FailClosed(t *testing.T) {
	config.Set(testConfig())

	model := &stubModel{embedFn: func(_ context.Context, text string) ([]float32, error) {
		if text == "bad" {
			return nil, ErrUnavailable
		}
		return []float32{1, 0, 0}, nil
	}}
	svc := NewServiceWithModel(model, zerolog.Nop())

	vecs, err := svc.EmbedBatch(context.Background(), []string{"ok", "bad", "ok"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Nil(t, vecs)
}

// TestEmbedBatch_TimeoutFailsBatch verifies a stalled call trips the
// per-call timeout and aborts the batch.
func TestEmbedBatch_TimeoutFailsBatch(t *testing.T) {
	config.Set(testConfig())

	model := &stubModel{embedFn: func(ctx context.Context, text string) ([]float32, error) {
		if text == "slow" {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return []float32{1, 0, 0}, nil
			}
		}
		return []float32{1, 0, 0}, nil
	}}
	svc := NewServiceWithModel(model, zerolog.Nop())

	_, err := svc.EmbedBatch(context.Background(), []string{"fast", "slow"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

// TestEmbedBatch_Empty verifies an empty batch is a no-op.
func TestEmbedBatch_Empty(t *testing.T) {
	config.Set(testConfig())

	svc := NewServiceWithModel(&stubModel{}, zerolog.Nop())
	vecs, err := svc.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

// TestOpenAIModel_Embed verifies request shape and response decoding against
// an OpenAI-compatible endpoint.
func TestOpenAIModel_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "float", req.EncodingFormat)

		resp := map[string]any{
			"model": req.Model,
			"data": []map[string]any{
				{"embedding": []float32{0.1, 0.2, 0.3}, "index": 0},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	model := &openAIModel{
		client:     server.Client(),
		baseURL:    server.URL,
		apiKey:     "test-key",
		modelName:  "test-model",
		dimensions: 3,
	}

	vec, err := model.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

// TestOpenAIModel_ServerError verifies non-2xx responses surface as
// embedding-unavailable.
func TestOpenAIModel_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	model := &openAIModel{
		client:     server.Client(),
		baseURL:    server.URL,
		apiKey:     "test-key",
		modelName:  "test-model",
		dimensions: 3,
	}

	_, err := model.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

// TestOpenAIModel_EmptyText verifies empty input short-circuits to a zero
// vector without an API call.
func TestOpenAIModel_EmptyText(t *testing.T) {
	model := &openAIModel{dimensions: 4}

	vec, err := model.Embed(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 4), vec)
}

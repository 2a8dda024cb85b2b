package embed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/tactimerge/internal/cache"
	"github.com/ppiankov/tactimerge/internal/model"
	"github.com/ppiankov/tactimerge/internal/vecmath"
	"github.com/ppiankov/tactimerge/internal/worker"
)

var fastRetry = worker.RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond}

func TestHashingDeterministicAndSemantic(t *testing.T) {
	ctx := context.Background()
	h := NewHashing(256)
	assert.Equal(t, "hashing/256", h.ID())

	a1, err := h.Embed(ctx, "High pressing with an aggressive back line")
	require.NoError(t, err)
	a2, err := h.Embed(ctx, "High pressing with an aggressive back line")
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	assert.Len(t, a1, 256)

	near, _ := h.Embed(ctx, "aggressive high pressing")
	far, _ := h.Embed(ctx, "deep block counter attacks on the wing")
	assert.Greater(t, vecmath.Cosine(a1, near), vecmath.Cosine(a1, far))
	assert.InDelta(t, 1.0, vecmath.Cosine(a1, a1), 1e-6)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"4", "3", "3", "pressing", "game"}, Tokenize("The 4-3-3 and a pressing game!"))
}

func TestOpenAIEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var req openai.EmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 3, req.Dimensions)
		_ = json.NewEncoder(w).Encode(openai.EmbeddingResponse{
			Data: []openai.Embedding{{Embedding: []float32{0.1, 0.2, 0.3}}},
		})
	}))
	defer server.Close()

	e, err := NewOpenAI(model.EmbeddingConfig{APIKey: "k", BaseURL: server.URL, Model: "text-embedding-3-small", Dimensions: 3})
	require.NoError(t, err)
	assert.Equal(t, "openai/text-embedding-3-small/3", e.ID())

	v, err := e.Embed(context.Background(), "pressing")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, v)

	_, err = NewOpenAI(model.EmbeddingConfig{})
	assert.Error(t, err)
}

func TestOpenAIEmbedDimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openai.EmbeddingResponse{
			Data: []openai.Embedding{{Embedding: []float32{0.1, 0.2}}},
		})
	}))
	defer server.Close()

	e, err := NewOpenAI(model.EmbeddingConfig{APIKey: "k", BaseURL: server.URL, Dimensions: 3})
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "pressing")
	assert.ErrorIs(t, err, model.ErrDimensionMismatch)
}

func TestOllamaEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		_, _ = w.Write([]byte(`{"embedding": [1, 0, 0.5]}`))
	}))
	defer server.Close()

	e, err := NewOllama(model.EmbeddingConfig{BaseURL: server.URL, Model: "nomic-embed-text", Dimensions: 3})
	require.NoError(t, err)
	v, err := e.Embed(context.Background(), "counter attack")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0.5}, v)

	_, err = NewOllama(model.EmbeddingConfig{Dimensions: 3})
	assert.Error(t, err)
}

func TestResilientRetriesRateLimits(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": "busy"}`))
			return
		}
		_, _ = w.Write([]byte(`{"embedding": [1, 0, 0]}`))
	}))
	defer server.Close()

	inner, err := NewOllama(model.EmbeddingConfig{BaseURL: server.URL, Model: "m", Dimensions: 3})
	require.NoError(t, err)
	e := NewResilient(inner, worker.NewLimiter(1000, 10), fastRetry, nil)

	v, err := e.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, v)
	assert.Equal(t, int32(3), calls.Load())
}

func TestResilientTimesOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	inner, err := NewOllama(model.EmbeddingConfig{BaseURL: server.URL, Model: "m", Dimensions: 3})
	require.NoError(t, err)
	e := NewResilient(inner, nil, worker.RetryOpts{MaxAttempts: 1}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = e.Embed(ctx, "text")
	assert.ErrorIs(t, err, model.ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

type countingEmbedder struct {
	calls atomic.Int32
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 1}, nil
}
func (c *countingEmbedder) Dimensions() int { return 2 }
func (c *countingEmbedder) ID() string      { return "counting/2" }

func TestCachedEmbedder(t *testing.T) {
	inner := &countingEmbedder{}
	e := NewCached(inner, cache.NewMemoryCache(time.Minute, time.Minute), 0)

	v1, err := e.Embed(context.Background(), "abc")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, int32(1), inner.calls.Load())

	failing := NewCached(&countingEmbedder{err: errors.New("down")}, cache.NewMemoryCache(time.Minute, time.Minute), 0)
	_, err = failing.Embed(context.Background(), "abc")
	assert.Error(t, err)
}

func TestNewFactory(t *testing.T) {
	e, err := New(model.EmbeddingConfig{Provider: "hashing", Dimensions: 64}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "hashing/64", e.ID())

	e, err = New(model.EmbeddingConfig{Provider: "ollama", Model: "m", Dimensions: 8}, Options{Cache: cache.NewMemoryCache(time.Minute, time.Minute)})
	require.NoError(t, err)
	_, cached := e.(*Cached)
	assert.True(t, cached)
	assert.Equal(t, "ollama/m/8", e.ID())

	_, err = New(model.EmbeddingConfig{Provider: "word2vec"}, Options{})
	assert.Error(t, err)
}

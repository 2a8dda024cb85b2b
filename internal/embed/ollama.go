package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/tactimerge/internal/model"
	"github.com/ppiankov/tactimerge/internal/util"
)

// Ollama embeds text with a local Ollama server.
type Ollama struct {
	baseURL    string
	model      string
	dims       int
	httpClient *http.Client
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewOllama creates an Ollama embedder. Model and dimensions must be configured.
func NewOllama(cfg model.EmbeddingConfig) (*Ollama, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama embedding model must be specified (e.g., nomic-embed-text)")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("ollama embedding dimensions must be configured")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Ollama{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      cfg.Model,
		dims:       cfg.Dimensions,
		httpClient: util.NewHTTPClient(timeout, util.ProxyConfig{}),
	}, nil
}

// Dimensions implements Embedder.
func (e *Ollama) Dimensions() int { return e.dims }

// ID implements Embedder.
func (e *Ollama) ID() string { return fmt.Sprintf("ollama/%s/%d", e.model, e.dims) }

// Embed implements Embedder.
func (e *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embed: %w", util.ResponseError(resp, nil))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama embed decode: %w", err)
	}
	v := make([]float32, len(result.Embedding))
	for i, x := range result.Embedding {
		v[i] = float32(x)
	}
	if err := checkDims(e, v); err != nil {
		return nil, err
	}
	return v, nil
}

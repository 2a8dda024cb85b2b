package embed

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/tactimerge/internal/model"
	"github.com/ppiankov/tactimerge/internal/util"
)

// OpenAI embeds text with the OpenAI embeddings API (or a compatible endpoint).
type OpenAI struct {
	client *openai.Client
	model  string
	dims   int
}

// NewOpenAI creates an OpenAI embedder.
func NewOpenAI(cfg model.EmbeddingConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	m := cfg.Model
	if m == "" {
		m = string(openai.SmallEmbedding3)
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = 1536
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(clientConfig),
		model:  m,
		dims:   dims,
	}, nil
}

// Dimensions implements Embedder.
func (e *OpenAI) Dimensions() int { return e.dims }

// ID implements Embedder.
func (e *OpenAI) ID() string { return fmt.Sprintf("openai/%s/%d", e.model, e.dims) }

// Embed implements Embedder.
func (e *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dims,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI embeddings error: %w", util.ClassifyOpenAIError(err))
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned from OpenAI")
	}
	v := resp.Data[0].Embedding
	if err := checkDims(e, v); err != nil {
		return nil, err
	}
	return v, nil
}

package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/finbot-ai/finbot/finbot/config"
)

// EmbeddingClient calls the /embeddings endpoint of an OpenAI-compatible
// provider. Vectors come back at the configured dimension so the persisted
// index stays consistent across rebuilds.
type EmbeddingClient struct {
	baseURL string
	apiKey  string
	model   string
	dims    int
	client  *http.Client
	logger  zerolog.Logger
}

func NewEmbeddingClient(cfg config.EmbeddingConfig, logger zerolog.Logger) *EmbeddingClient {
	return &EmbeddingClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		dims:    cfg.Dims,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With().Str("component", "embeddings").Str("model", cfg.Model).Logger(),
	}
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one vector per input text, in input order.
func (c *EmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := embeddingRequest{
		Model:      c.model,
		Input:      texts,
		Dimensions: c.dims,
	}

	var apiResp embeddingResponse
	if err := c.postEmbeddings(ctx, reqBody, &apiResp); err != nil {
		return nil, err
	}
	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(apiResp.Data))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range apiResp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// Dimension reports the configured vector size.
func (c *EmbeddingClient) Dimension() int {
	return c.dims
}

func (c *EmbeddingClient) postEmbeddings(ctx context.Context, payload, out any) error {
	// Same wire handling as the chat client, different auth owner.
	sub := &OpenAIClient{baseURL: c.baseURL, apiKey: c.apiKey, client: c.client}
	return sub.post(ctx, "/embeddings", payload, out)
}

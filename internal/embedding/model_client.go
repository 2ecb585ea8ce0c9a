package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ModelClient is the injectable neural-model backend. The real
// implementation is an HTTP call to an embedding server (e.g. Ollama); a nil
// ModelClient always fails to load, which commits the Service to
// hash-fallback mode.
type ModelClient interface {
	Encode(ctx context.Context, model, text string) ([]float32, error)
}

// ollamaModelClient calls an Ollama-compatible /api/embeddings endpoint.
type ollamaModelClient struct {
	baseURL string
	client  *http.Client
}

// NewOllamaModelClient builds a ModelClient against an Ollama-compatible
// embeddings endpoint.
func NewOllamaModelClient(baseURL string) ModelClient {
	return &ollamaModelClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (o *ollamaModelClient) Encode(ctx context.Context, model, text string) ([]float32, error) {
	reqBody, err := json.Marshal(ollamaEmbedRequest{Model: model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embed request status %d: %s", resp.StatusCode, string(body))
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("embed response carried no vector")
	}
	return out.Embedding, nil
}

// Package embeddings converts text to fixed-length vectors via an external
// embedding provider reached over HTTP.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"balancesheet-rag/internal/faults"
)

// Client is the narrow embedding collaborator interface the pipeline
// depends on.
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OllamaEmbedder calls Ollama's embeddings endpoint.
type OllamaEmbedder struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaEmbedder creates an embedder with a per-call timeout.
func NewOllamaEmbedder(baseURL, model string, timeout time.Duration) *OllamaEmbedder {
	return &OllamaEmbedder{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Embed returns the embedding vector for text. Any provider failure is
// reported as EmbeddingUnavailable.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := map[string]interface{}{
		"model":  e.model,
		"prompt": text,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, faults.Wrap(faults.KindEmbeddingUnavailable, "encoding embedding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.baseURL+"/api/embeddings", bytes.NewReader(jsonData))
	if err != nil {
		return nil, faults.Wrap(faults.KindEmbeddingUnavailable, "building embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, faults.Wrap(faults.KindEmbeddingUnavailable, "embedding provider unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, faults.Wrap(faults.KindEmbeddingUnavailable, "reading embedding response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, faults.New(faults.KindEmbeddingUnavailable,
			fmt.Sprintf("embedding provider returned status %d", resp.StatusCode))
	}

	var result struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, faults.Wrap(faults.KindEmbeddingUnavailable, "decoding embedding response", err)
	}
	if len(result.Embedding) == 0 {
		return nil, faults.New(faults.KindEmbeddingUnavailable, "no embedding returned")
	}

	return result.Embedding, nil
}

// Package llm wraps the response-generation collaborator. The core owns
// prompt construction and the timeout/retry policy; the provider only sees
// a finished prompt.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"balancesheet-rag/internal/faults"
)

// Generator is the narrow generation collaborator interface.
type Generator interface {
	Generate(ctx context.Context, question, grounding string) (string, error)
}

// OllamaClient calls Ollama's generate endpoint with a per-call timeout and
// exactly one retry on transient failure. Semantic rejections from the
// provider are never retried.
type OllamaClient struct {
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

// NewOllamaClient creates a generation client.
func NewOllamaClient(baseURL, model string, timeout time.Duration) *OllamaClient {
	return &OllamaClient{
		baseURL:    baseURL,
		model:      model,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Generate produces a grounded answer for the question given the assembled
// context. On exhausted retries it fails with GenerationTimeout.
func (o *OllamaClient) Generate(ctx context.Context, question, assembled string) (string, error) {
	prompt := buildPrompt(question, assembled)

	answer, err := o.generateOnce(ctx, prompt)
	if err == nil {
		return answer, nil
	}
	if !retryable(err) {
		return "", err
	}
	// One retry, then give up.
	answer, err = o.generateOnce(ctx, prompt)
	if err == nil {
		return answer, nil
	}
	if retryable(err) {
		return "", faults.Wrap(faults.KindGenerationTimeout, "generation failed after retry", err)
	}
	return "", err
}

func (o *OllamaClient) generateOnce(parent context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(parent, o.timeout)
	defer cancel()

	reqBody := map[string]interface{}{
		"model":  o.model,
		"prompt": prompt,
		"stream": false,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", faults.Wrap(faults.KindGenerationError, "encoding generation request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return "", faults.Wrap(faults.KindGenerationError, "building generation request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", faults.Wrap(faults.KindGenerationTimeout, "generation provider unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", faults.Wrap(faults.KindGenerationTimeout, "reading generation response", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return "", faults.New(faults.KindGenerationTimeout,
			fmt.Sprintf("generation provider returned status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		// 4xx is a semantic/validation rejection, not a transient fault.
		return "", faults.New(faults.KindGenerationError,
			fmt.Sprintf("generation provider rejected request with status %d", resp.StatusCode))
	}

	var result struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", faults.Wrap(faults.KindGenerationError, "decoding generation response", err)
	}
	return result.Response, nil
}

// retryable reports whether the failure is transient (network, timeout,
// 5xx) as opposed to a semantic rejection.
func retryable(err error) bool {
	if faults.IsKind(err, faults.KindGenerationTimeout) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// buildPrompt renders the grounded-answer prompt. The context already
// carries source tags per chunk.
func buildPrompt(question, assembled string) string {
	var sb strings.Builder
	sb.WriteString("You are a financial analyst assistant that answers questions based on the provided balance-sheet excerpts.\n\n")
	sb.WriteString("Context:\n")
	sb.WriteString(assembled)
	sb.WriteString(fmt.Sprintf("\n\nQuestion: %s\n", question))
	sb.WriteString("\nAnswer the question based ONLY on the information in the context above. If the answer cannot be found there, say so clearly.\n\nAnswer: ")
	return sb.String()
}

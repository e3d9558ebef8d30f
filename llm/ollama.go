package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkoukk/tiktoken-go"
)

// GenerationService is the single remote text-generation call the
// summarizer and chat path depend on.
type GenerationService interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// OllamaClient generates text against an Ollama-style /api/generate
// endpoint.
type OllamaClient struct {
	url    string
	model  string
	client *http.Client
	logger *slog.Logger
}

type generateRequest struct {
	Model  string `json:"model"`
	System string `json:"system"`
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func NewOllamaClient(url, model string) *OllamaClient {
	return &OllamaClient{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: 120 * time.Second},
		logger: slog.Default(),
	}
}

func (o *OllamaClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	start := time.Now()
	defer func() {
		o.logger.Debug("generation finished", "model", o.model, "took", time.Since(start))
	}()

	reqBody, err := json.Marshal(generateRequest{
		Model:  o.model,
		System: system,
		Prompt: prompt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	if count, err := CountTokens(string(reqBody)); err == nil {
		o.logger.Debug("prompt size", "tokens", count, "bytes", len(reqBody))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("generation API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var genResp generateResponse
	if err := json.Unmarshal(body, &genResp); err == nil && genResp.Response != "" {
		return genResp.Response, nil
	}

	// Streaming response: collect the chunks into one string.
	var output bytes.Buffer
	decoder := json.NewDecoder(bytes.NewReader(body))
	for decoder.More() {
		var chunk generateResponse
		if err := decoder.Decode(&chunk); err != nil {
			return "", fmt.Errorf("failed to decode response chunk: %w", err)
		}
		output.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	return output.String(), nil
}

// CountTokens counts exact tokens for prompt-size accounting in logs. The
// context-window budgeting elsewhere uses cheap character heuristics
// instead.
func CountTokens(text string) (int, error) {
	enc, err := tiktoken.EncodingForModel("gpt-3.5-turbo")
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaClient implements Client against a local Ollama instance, useful
// for running the generation pipelines without an API key.
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaClient creates an Ollama-backed completion client. baseURL is
// typically "http://localhost:11434"; model e.g. "mistral".
func NewOllamaClient(baseURL, model string) *OllamaClient {
	return &OllamaClient{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout: 300 * time.Second, // slow local models
		},
	}
}

// Model reports the configured model name.
func (c *OllamaClient) Model() string {
	return c.model
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type ollamaGenerateResponse struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (r *ollamaGenerateResponse) usage() Usage {
	return Usage{TokensIn: r.PromptEvalCount, TokensOut: r.EvalCount}
}

// Complete sends a prompt and returns the raw completion text and usage.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, Usage, error) {
	result, err := c.generate(ctx, prompt, "")
	if err != nil {
		return "", Usage{}, err
	}
	return result.Response, result.usage(), nil
}

// CompleteWithSchema sends a prompt in JSON mode and unmarshals the
// response into schema.
func (c *OllamaClient) CompleteWithSchema(ctx context.Context, prompt string, schema any) (Usage, error) {
	result, err := c.generate(ctx, prompt, "json")
	if err != nil {
		return Usage{}, err
	}
	cleaned := StripMarkdownCodeFence(result.Response)
	if err := json.Unmarshal([]byte(cleaned), schema); err != nil {
		return result.usage(), fmt.Errorf("failed to unmarshal completion: %w (response: %s)", err, result.Response)
	}
	return result.usage(), nil
}

func (c *OllamaClient) generate(ctx context.Context, prompt, format string) (*ollamaGenerateResponse, error) {
	reqBody := ollamaGenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Format: format,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned %d: %s", resp.StatusCode, string(body))
	}

	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

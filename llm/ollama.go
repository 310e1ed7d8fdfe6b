package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fabfab/contract-agent/contract"
)

type ollamaClient struct {
	host   string
	model  string
	client *http.Client
}

type ollamaChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature"`
	} `json:"options"`
}

type ollamaChatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error"`
}

func NewOllamaClient(opts Options) Client {
	host := strings.TrimRight(opts.OllamaHost, "/")
	if host == "" {
		host = "http://localhost:11434"
	}
	timeout := time.Duration(opts.Timeout * float64(time.Second))
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	return &ollamaClient{
		host:   host,
		model:  opts.Model,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *ollamaClient) Generate(ctx context.Context, messages []Message) (string, error) {
	payload := ollamaChatRequest{
		Model:    c.model,
		Messages: messages,
	}
	payload.Options.Temperature = 0.2

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", Classify(fmt.Errorf("call ollama chat API: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if len(data) > 0 {
			return "", fmt.Errorf("ollama chat API error: %s: %w", strings.TrimSpace(string(data)), contract.ErrUpstreamProvider)
		}
		return "", fmt.Errorf("ollama chat API returned status %s: %w", resp.Status, contract.ErrUpstreamProvider)
	}

	var parsed ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", Classify(fmt.Errorf("decode ollama response: %w", err))
	}

	if parsed.Error != "" {
		return "", fmt.Errorf("ollama chat error: %s: %w", parsed.Error, contract.ErrUpstreamProvider)
	}

	return parsed.Message.Content, nil
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Aman-CERP/catalogmatch/pkg/version"
)

// DefaultOllamaHost is the default Ollama server URL.
const DefaultOllamaHost = "http://localhost:11434"

// OllamaModel calls Ollama's /api/generate without streaming.
type OllamaModel struct {
	client      *http.Client
	host        string
	model       string
	temperature float64
	maxTokens   int
}

var _ LanguageModel = (*OllamaModel)(nil)

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewOllamaModel creates the client. Timeouts come from the Guard.
func NewOllamaModel(host, model string, temperature float64, maxTokens int) (*OllamaModel, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama model name is required")
	}
	if host == "" {
		host = DefaultOllamaHost
	}
	return &OllamaModel{
		client:      &http.Client{},
		host:        strings.TrimRight(host, "/"),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

// Complete makes one generate request.
func (m *OllamaModel) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:   m.model,
		Prompt:  prompt,
		Stream:  false,
		Options: generateOptions{Temperature: m.temperature, NumPredict: m.maxTokens},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return genResp.Response, nil
}

// ModelName returns the model identifier.
func (m *OllamaModel) ModelName() string {
	return m.model
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/catalogmatch/pkg/version"
)

// DefaultRouterTimeout bounds one router call.
const DefaultRouterTimeout = 120 * time.Second

// RouterModel posts prompts to an LLM router service that picks the
// backing model by purpose.
type RouterModel struct {
	client *http.Client
	url    string
	apiKey string
}

var _ LanguageModel = (*RouterModel)(nil)

type routerRequest struct {
	Purpose string `json:"purpose"`
	Prompt  string `json:"prompt"`
	TraceID string `json:"trace_id"`
}

type routerResponse struct {
	Response *string `json:"response"`
}

// NewRouterModel creates a router client for url. apiKey is optional.
func NewRouterModel(url, apiKey string, timeout time.Duration) (*RouterModel, error) {
	if url == "" {
		return nil, fmt.Errorf("router url is required")
	}
	if timeout <= 0 {
		timeout = DefaultRouterTimeout
	}
	return &RouterModel{
		client: &http.Client{Timeout: timeout},
		url:    url,
		apiKey: apiKey,
	}, nil
}

// Complete sends prompt with the purpose and trace ID from ctx. A call
// without a trace ID gets a fresh one.
func (m *RouterModel) Complete(ctx context.Context, prompt string) (string, error) {
	traceID := TraceIDFrom(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
	}

	body, err := json.Marshal(routerRequest{
		Purpose: PurposeFrom(ctx),
		Prompt:  prompt,
		TraceID: traceID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var out routerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Response == nil {
		return "", fmt.Errorf("router response has no \"response\" field")
	}
	return *out.Response, nil
}

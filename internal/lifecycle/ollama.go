// Package lifecycle checks and prepares the Ollama server used for
// embeddings or language model calls: health, installed models and
// streaming model pulls.
package lifecycle

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Aman-CERP/catalogmatch/pkg/version"
)

const (
	// DefaultHost is the default Ollama API endpoint.
	DefaultHost = "http://localhost:11434"

	// ReadyPollInterval is the initial polling interval for WaitForReady.
	ReadyPollInterval = 100 * time.Millisecond

	// MaxReadyPollInterval caps exponential backoff.
	MaxReadyPollInterval = 2 * time.Second
)

// OllamaManager talks to the Ollama management API.
type OllamaManager struct {
	host   string
	client *http.Client
}

// OllamaStatus is the state of the server for one model.
type OllamaStatus struct {
	Host        string
	Running     bool
	Models      []string
	TargetModel string
	HasModel    bool
}

// PullProgress is one streamed pull status line.
type PullProgress struct {
	Status    string
	Digest    string
	Total     int64
	Completed int64
	Percent   float64
}

// ModelNotFoundError indicates the required model is not available.
type ModelNotFoundError struct {
	Model string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model %s not found", e.Model)
}

// NewOllamaManager creates a manager for host ("" means DefaultHost).
func NewOllamaManager(host string) *OllamaManager {
	if host == "" {
		host = DefaultHost
	}
	return &OllamaManager{
		host:   strings.TrimRight(host, "/"),
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Host returns the configured Ollama host.
func (m *OllamaManager) Host() string {
	return m.host
}

// IsRemoteHost reports whether the host is not the local machine.
func (m *OllamaManager) IsRemoteHost() bool {
	return !strings.Contains(m.host, "localhost") && !strings.Contains(m.host, "127.0.0.1")
}

// IsRunning reports whether the API responds. Connection errors mean
// not running.
func (m *OllamaManager) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	resp, err := m.get(ctx, "/api/tags")
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// ListModels returns the installed model names.
func (m *OllamaManager) ListModels(ctx context.Context) ([]string, error) {
	resp, err := m.get(ctx, "/api/tags")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ollama at %s: %w", m.host, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	models := make([]string, len(result.Models))
	for i, model := range result.Models {
		models[i] = model.Name
	}
	return models, nil
}

// HasModel checks if model is installed. A name without a tag matches
// any tag; "nomic-embed-text" matches "nomic-embed-text:latest".
func (m *OllamaManager) HasModel(ctx context.Context, model string) (bool, error) {
	models, err := m.ListModels(ctx)
	if err != nil {
		return false, err
	}
	return ContainsModel(models, model), nil
}

// ContainsModel reports whether model is in the installed list, using
// the same tag rules as HasModel.
func ContainsModel(models []string, model string) bool {
	want := strings.ToLower(model)
	wantBase, wantTag, tagged := strings.Cut(want, ":")
	for _, available := range models {
		have := strings.ToLower(available)
		if have == want {
			return true
		}
		haveBase, haveTag, _ := strings.Cut(have, ":")
		if haveBase != wantBase {
			continue
		}
		if !tagged || (wantTag == "latest" && haveTag == "") {
			return true
		}
	}
	return false
}

// Status returns the server state for targetModel.
func (m *OllamaManager) Status(ctx context.Context, targetModel string) (*OllamaStatus, error) {
	status := &OllamaStatus{Host: m.host, TargetModel: targetModel}

	status.Running = m.IsRunning(ctx)
	if !status.Running {
		return status, nil
	}

	models, err := m.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	status.Models = models
	status.HasModel = ContainsModel(models, targetModel)
	return status, nil
}

// WaitForReady polls with exponential backoff until the API responds or
// timeout elapses.
func (m *OllamaManager) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interval := ReadyPollInterval
	for {
		if m.IsRunning(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for Ollama at %s: %w", m.host, ctx.Err())
		case <-time.After(interval):
		}
		interval *= 2
		if interval > MaxReadyPollInterval {
			interval = MaxReadyPollInterval
		}
	}
}

// PullModel pulls model, streaming progress to progressFunc. It returns
// immediately when the model is already installed.
func (m *OllamaManager) PullModel(ctx context.Context, model string, progressFunc func(PullProgress)) error {
	hasModel, err := m.HasModel(ctx, model)
	if err != nil {
		return fmt.Errorf("failed to check model: %w", err)
	}
	if hasModel {
		return nil
	}

	body, err := json.Marshal(struct {
		Name   string `json:"name"`
		Stream bool   `json:"stream"`
	}{Name: model, Stream: true})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.host+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	// Pulls stream for minutes; only ctx bounds them.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return fmt.Errorf("failed to start pull: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("pull failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var line struct {
			Status    string `json:"status"`
			Digest    string `json:"digest"`
			Total     int64  `json:"total"`
			Completed int64  `json:"completed"`
			Error     string `json:"error"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		if line.Error != "" {
			return fmt.Errorf("pull %s: %s", model, line.Error)
		}
		if progressFunc != nil {
			p := PullProgress{Status: line.Status, Digest: line.Digest, Total: line.Total, Completed: line.Completed}
			if line.Total > 0 {
				p.Percent = float64(line.Completed) / float64(line.Total) * 100
			}
			progressFunc(p)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading pull response: %w", err)
	}
	return nil
}

func (m *OllamaManager) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.host+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	return m.client.Do(req)
}

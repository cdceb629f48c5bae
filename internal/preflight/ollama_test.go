package preflight

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ollamaTags(t *testing.T, models ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Models []map[string]string `json:"models"`
		}
		for _, m := range models {
			body.Models = append(body.Models, map[string]string{"name": m})
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaModels(t *testing.T) {
	// Given: embeddings and llm on the same Ollama host
	cfg := testConfig(t)
	cfg.Embeddings.Provider = "ollama"
	cfg.Embeddings.Host = "http://gpu:11434/"
	cfg.LLM.Provider = "ollama"
	cfg.LLM.BaseURL = "http://gpu:11434"
	cfg.LLM.Model = "llama3.2"

	// When: listing required models
	hosts, models := OllamaModels(cfg, false)

	// Then: one host carries both models
	assert.Equal(t, []string{"http://gpu:11434"}, hosts)
	assert.Equal(t, []string{"nomic-embed-text", "llama3.2"}, models["http://gpu:11434"])

	// Retrieval-only drops the language model
	_, models = OllamaModels(cfg, true)
	assert.Equal(t, []string{"nomic-embed-text"}, models["http://gpu:11434"])
}

func TestOllamaModels_NoneConfigured(t *testing.T) {
	hosts, _ := OllamaModels(testConfig(t), false)
	assert.Empty(t, hosts)
}

func TestCheckOllama(t *testing.T) {
	tests := []struct {
		name      string
		installed []string
		want      CheckStatus
	}{
		{"model pulled", []string{"nomic-embed-text:latest"}, StatusPass},
		{"model missing", []string{"llama3.2:latest"}, StatusFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: an Ollama embedder host with some models installed
			srv := ollamaTags(t, tt.installed...)
			cfg := testConfig(t)
			cfg.Embeddings.Provider = "ollama"
			cfg.Embeddings.Host = srv.URL

			// When: checking
			res := New(cfg, WithRetrievalOnly(true)).CheckOllama(context.Background())

			// Then
			assert.Equal(t, tt.want, res.Status, res.Message)
		})
	}
}

func TestCheckOllama_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	cfg := testConfig(t)
	cfg.Embeddings.Provider = "ollama"
	cfg.Embeddings.Host = srv.URL

	res := New(cfg, WithRetrievalOnly(true)).CheckOllama(context.Background())

	require.Equal(t, StatusFail, res.Status)
	assert.Contains(t, res.Message, "not reachable")
	assert.Contains(t, res.Details, "ollama serve")
}

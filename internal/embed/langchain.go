package embed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	// DefaultOllamaHost is the default Ollama server URL.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is the default Ollama embedding model.
	DefaultOllamaModel = "nomic-embed-text"

	// DefaultOpenAIModel is the default OpenAI embedding model.
	DefaultOpenAIModel = "text-embedding-3-small"

	dimensionProbe = "dimension probe"
)

// RemoteEmbedder embeds through a langchaingo embeddings client, either an
// OpenAI-compatible endpoint or an Ollama server.
type RemoteEmbedder struct {
	mu       sync.RWMutex
	embedder embeddings.Embedder
	model    string
	dims     int
	closed   bool
	logger   *slog.Logger
}

var _ Embedder = (*RemoteEmbedder)(nil)

// RemoteConfig configures a RemoteEmbedder.
type RemoteConfig struct {
	// Host is the base URL; empty uses the provider default.
	Host  string
	Model string
	// APIKey is sent as the bearer token for OpenAI-compatible endpoints.
	APIKey string
	// Dimensions is the expected vector size. Zero probes the model once.
	Dimensions int
}

// NewOpenAIEmbedder creates an embedder for an OpenAI-compatible
// embeddings endpoint.
func NewOpenAIEmbedder(ctx context.Context, cfg RemoteConfig) (*RemoteEmbedder, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	token := cfg.APIKey
	if token == "" {
		// Local OpenAI-compatible services accept any token.
		token = "none"
	}

	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.Host != "" {
		opts = append(opts, openai.WithBaseURL(cfg.Host))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}

	inner, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return newRemoteEmbedder(ctx, inner, cfg, "openai-embedder")
}

// NewOllamaEmbedder creates an embedder backed by an Ollama server.
func NewOllamaEmbedder(ctx context.Context, cfg RemoteConfig) (*RemoteEmbedder, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}

	client, err := ollama.New(ollama.WithServerURL(cfg.Host), ollama.WithModel(cfg.Model))
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}

	inner, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return newRemoteEmbedder(ctx, inner, cfg, "ollama-embedder")
}

func newRemoteEmbedder(ctx context.Context, inner embeddings.Embedder, cfg RemoteConfig, component string) (*RemoteEmbedder, error) {
	e := &RemoteEmbedder{
		embedder: inner,
		model:    cfg.Model,
		dims:     cfg.Dimensions,
		logger:   slog.Default().With("component", component),
	}

	if e.dims == 0 {
		vec, err := inner.EmbedQuery(ctx, dimensionProbe)
		if err != nil {
			return nil, fmt.Errorf("failed to probe embedding dimension for %s: %w", cfg.Model, err)
		}
		if len(vec) == 0 {
			return nil, fmt.Errorf("model %s returned an empty embedding", cfg.Model)
		}
		e.dims = len(vec)
		e.logger.Debug("embedding_dimension_probed", slog.String("model", cfg.Model), slog.Int("dims", e.dims))
	}

	return e, nil
}

// Embed generates embedding for a single text.
func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request and checks every vector's size.
func (e *RemoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, fmt.Errorf("embedder is closed")
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	e.logger.Debug("embedding texts", slog.Int("count", len(texts)))

	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", slog.Int("count", len(texts)), slog.String("error", err.Error()))
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}
	for i, v := range vecs {
		if len(v) != e.dims {
			return nil, fmt.Errorf("embedding %d has dimension %d, want %d", i, len(v), e.dims)
		}
	}
	return vecs, nil
}

// Dimensions returns the embedding dimension.
func (e *RemoteEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier.
func (e *RemoteEmbedder) ModelName() string {
	return e.model
}

// Close marks the embedder closed. The HTTP clients hold no resources.
func (e *RemoteEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

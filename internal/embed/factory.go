package embed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/catalogmatch/internal/config"
)

// ProviderType represents an embedding provider.
type ProviderType string

const (
	// ProviderStatic uses hash-based embeddings (offline default).
	ProviderStatic ProviderType = "static"

	// ProviderOllama uses an Ollama server.
	ProviderOllama ProviderType = "ollama"

	// ProviderOpenAI uses an OpenAI-compatible embeddings endpoint.
	ProviderOpenAI ProviderType = "openai"
)

// NewEmbedder creates the embedder configured in cfg, wrapped in an LRU
// cache unless cache_size is negative.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	var (
		embedder Embedder
		err      error
	)

	remote := RemoteConfig{
		Host:       cfg.Host,
		Model:      cfg.Model,
		APIKey:     cfg.APIKey,
		Dimensions: cfg.Dimensions,
	}

	switch ProviderType(cfg.Provider) {
	case ProviderStatic, "":
		embedder = NewStaticEmbedder()
	case ProviderOllama:
		embedder, err = NewOllamaEmbedder(ctx, remote)
	case ProviderOpenAI:
		embedder, err = NewOpenAIEmbedder(ctx, remote)
	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s (valid options: static, ollama, openai)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Dimensions > 0 && embedder.Dimensions() != cfg.Dimensions {
		_ = embedder.Close()
		return nil, fmt.Errorf("embedder %s has dimension %d, config expects %d",
			embedder.ModelName(), embedder.Dimensions(), cfg.Dimensions)
	}

	slog.Debug("embedder_ready",
		slog.String("provider", string(ProviderType(cfg.Provider))),
		slog.String("model", embedder.ModelName()),
		slog.Int("dims", embedder.Dimensions()))

	if cfg.CacheSize < 0 {
		return embedder, nil
	}
	return NewCachedEmbedder(embedder, cfg.CacheSize), nil
}

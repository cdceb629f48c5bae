package llm

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/catalogmatch/internal/config"
)

// NewFromConfig builds the configured model wrapped in a Guard and, when
// a cache backend is set, a CachedModel outside the guard. Call Close on
// the result when done.
func NewFromConfig(ctx context.Context, cfg *config.Config) (LanguageModel, error) {
	c := cfg.LLM

	var (
		base LanguageModel
		err  error
	)
	switch c.Provider {
	case "openai", "":
		base, err = NewOpenAIModel(OpenAIConfig{
			BaseURL:     c.BaseURL,
			Model:       c.Model,
			APIKey:      c.APIKey,
			Temperature: c.Temperature,
			MaxTokens:   c.MaxTokens,
		})
	case "ollama":
		base, err = NewOllamaModel(c.BaseURL, c.Model, c.Temperature, c.MaxTokens)
	case "router":
		base, err = NewRouterModel(c.BaseURL, c.APIKey, cfg.LLMTimeout())
	default:
		return nil, fmt.Errorf("unknown llm provider: %s (valid options: openai, ollama, router)", c.Provider)
	}
	if err != nil {
		return nil, err
	}

	var model LanguageModel = NewGuard(base, GuardConfig{
		Timeout:    cfg.LLMTimeout(),
		MaxRetries: c.MaxRetries,
	})

	switch cfg.Cache.Backend {
	case "none", "":
		return model, nil
	case "memory":
		cache, err := NewMemoryCache(cfg.Cache.Size)
		if err != nil {
			return nil, err
		}
		return NewCachedModel(model, cache, c.Provider+":"+c.Model), nil
	case "redis":
		cache, err := NewRedisCache(ctx, RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			TTL:      cfg.CacheTTL(),
		})
		if err != nil {
			return nil, err
		}
		return NewCachedModel(model, cache, c.Provider+":"+c.Model), nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s (valid options: none, memory, redis)", cfg.Cache.Backend)
	}
}

package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIModel calls an OpenAI-compatible chat completions endpoint, Groq
// by default, with the prompt as a single human message.
type OpenAIModel struct {
	client      llms.Model
	model       string
	temperature float64
	maxTokens   int
}

var _ LanguageModel = (*OpenAIModel)(nil)

// OpenAIConfig configures an OpenAIModel.
type OpenAIConfig struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
}

// NewOpenAIModel creates the client. It does not contact the endpoint.
func NewOpenAIModel(cfg OpenAIConfig) (*OpenAIModel, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai model name is required")
	}
	token := cfg.APIKey
	if token == "" {
		// Local OpenAI-compatible servers accept any token.
		token = "none"
	}

	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}

	return newOpenAIModel(client, cfg), nil
}

func newOpenAIModel(client llms.Model, cfg OpenAIConfig) *OpenAIModel {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	return &OpenAIModel{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// Complete sends prompt and returns the first choice's content.
func (m *OpenAIModel) Complete(ctx context.Context, prompt string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	resp, err := m.client.GenerateContent(ctx, content,
		llms.WithTemperature(m.temperature),
		llms.WithMaxTokens(m.maxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("%s completion failed: %w", m.model, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", m.model)
	}
	return resp.Choices[0].Content, nil
}

// ModelName returns the model identifier.
func (m *OpenAIModel) ModelName() string {
	return m.model
}
